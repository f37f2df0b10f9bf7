package script_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tfischl/ispnub/internal/counter"
	"github.com/tfischl/ispnub/internal/hal"
	"github.com/tfischl/ispnub/internal/isp"
	"github.com/tfischl/ispnub/internal/script"
	"github.com/tfischl/ispnub/internal/tick"
)

func newRig(t *testing.T, image []byte) (*script.Interpreter, *hal.Sim, *hal.SimTarget, *counter.Store) {
	t.Helper()
	sim, target := hal.NewSim(image)
	ts := tick.NewSource()
	t.Cleanup(ts.Close)
	driver := isp.New(sim, ts)
	cs := counter.New(sim)
	in := script.New(script.Bytes(image), driver, cs, ts)
	return in, sim, target, cs
}

// S1: empty script.
func TestEmptyScript(t *testing.T) {
	img := script.NewAssembler().End().Bytes()
	in, _, _, _ := newRig(t, img)
	ok, err := in.Run()
	require.NoError(t, err)
	assert.True(t, ok)
}

// S2: connect then disconnect.
func TestConnectDisconnect(t *testing.T) {
	img := script.NewAssembler().Connect(0x00).Disconnect().End().Bytes()
	in, _, _, _ := newRig(t, img)
	ok, err := in.Run()
	require.NoError(t, err)
	assert.True(t, ok)
}

// S3: connect fails — target never echoes sync.
func TestConnectFails(t *testing.T) {
	img := script.NewAssembler().Connect(0x00).Disconnect().End().Bytes()
	in, _, target, _ := newRig(t, img)
	target.SyncOK = false
	ok, err := in.Run()
	require.NoError(t, err)
	assert.False(t, ok)
}

// S4: flash write across a 4-byte page, 6 bytes total.
func TestFlashWriteScript(t *testing.T) {
	data := []byte{0x11, 0x22, 0x33, 0x44, 0x55, 0x66}
	img := script.NewAssembler().
		Connect(0x00).
		Flash(0, 4, data).
		Disconnect().
		End().
		Bytes()
	in, _, target, _ := newRig(t, img)
	ok, err := in.Run()
	require.NoError(t, err)
	assert.True(t, ok)
	for i, want := range data {
		assert.Equal(t, want, target.FlashByte(uint32(i)))
	}

	// spec.md §8 property 8: a flush at the page-4 boundary (byte index
	// 3) and a second flush for the trailing partial page (byte index
	// 5, the final dirty byte, which does not itself land on a page
	// boundary). Property 7: no window boundary crossed, so exactly one
	// extended-address load.
	var flushes, loads int
	for _, ev := range target.Log {
		switch ev.Cmd {
		case 0x4C:
			flushes++
		case 0x4D:
			loads++
		}
	}
	assert.Equal(t, 2, flushes, "one flush at the page boundary, one for the trailing partial page")
	assert.Equal(t, 1, loads, "single 128KiB window, no boundary crossed")
}

// S5: verify mismatch stops the run.
func TestFlashVerifyMismatchStopsRun(t *testing.T) {
	data := []byte{0x11, 0x22, 0x33}
	img := script.NewAssembler().
		Connect(0x00).
		Flash(0, 4, data).
		DecCounter(5). // should never run
		End().
		Bytes()
	in, sim, target, cs := newRig(t, img)
	target.FlashReadOverride = func(addr uint32, want byte) (byte, bool) {
		if addr == 2 {
			return 0x00, true
		}
		return 0, false
	}

	ok, err := in.Run()
	require.NoError(t, err)
	assert.False(t, ok)

	_ = sim
	v, err := cs.Read()
	require.NoError(t, err)
	assert.Equal(t, counter.Virgin, v, "DECCOUNTER must not have executed")
}

// S6: counter flow driven entirely through DECCOUNTER.
func TestCounterScriptFlow(t *testing.T) {
	img := script.NewAssembler().DecCounter(5).End().Bytes()

	sim, _ := hal.NewSim(img)
	ts := tick.NewSource()
	defer ts.Close()
	driver := isp.New(sim, ts)
	cs := counter.New(sim)

	for i := 0; i < 5; i++ {
		in := script.New(script.Bytes(img), driver, cs, ts)
		ok, err := in.Run()
		require.NoError(t, err)
		assert.True(t, ok)
	}
	v, err := cs.Read()
	require.NoError(t, err)
	assert.Equal(t, uint16(0), v)

	in := script.New(script.Bytes(img), driver, cs, ts)
	ok, err := in.Run()
	require.NoError(t, err)
	assert.True(t, ok) // script itself still "succeeds"; counter stays at 0
	v, err = cs.Read()
	require.NoError(t, err)
	assert.Equal(t, uint16(0), v)
}

func TestUnknownOpcodeFailsStop(t *testing.T) {
	img := []byte{0x99}
	in, _, _, _ := newRig(t, img)
	ok, err := in.Run()
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestSPISendAndVerify(t *testing.T) {
	img := script.NewAssembler().
		Connect(0x00).
		SPISend([4]byte{0x40, 0x00, 0x00, 0xAB}). // load flash page byte
		SPISend([4]byte{0x4C, 0x00, 0x00, 0x00}). // flush page
		SPIVerify([4]byte{0x20, 0x00, 0x00, 0x00}, 0xAB).
		Disconnect().
		End().
		Bytes()
	in, _, target, _ := newRig(t, img)
	ok, err := in.Run()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, byte(0xAB), target.FlashByte(0))
}
