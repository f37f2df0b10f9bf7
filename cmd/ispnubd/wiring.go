package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"gopkg.in/yaml.v3"

	"github.com/tfischl/ispnub/internal/counter"
	"github.com/tfischl/ispnub/internal/hal"
	"github.com/tfischl/ispnub/internal/isp"
	"github.com/tfischl/ispnub/internal/script"
	"github.com/tfischl/ispnub/internal/tick"
)

func loadConfig(path string) (hal.LinuxConfig, error) {
	var cfg hal.LinuxConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

func newLogger(verbose bool) *log.Logger {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
	})
	if verbose {
		logger.SetLevel(log.DebugLevel)
	} else {
		logger.SetLevel(log.InfoLevel)
	}
	return logger
}

// chain bundles the wired-up component stack shared by run, once, and
// counter — everything below the operator loop itself.
type chain struct {
	hw      *hal.Linux
	ticks   *tick.Source
	driver  *isp.Driver
	counter *counter.Store
	logger  *log.Logger
}

func buildChain(configPath string, verbose bool) (*chain, error) {
	logger := newLogger(verbose)

	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}

	hw := hal.NewLinux(cfg, script.DefaultImage)
	if err := hw.Init(); err != nil {
		return nil, fmt.Errorf("init hardware: %w", err)
	}

	ticks := tick.NewSource()
	driver := isp.New(hw, ticks)
	cs := counter.New(hw)

	return &chain{hw: hw, ticks: ticks, driver: driver, counter: cs, logger: logger}, nil
}

func (c *chain) close() {
	c.ticks.Close()
	if err := c.hw.Close(); err != nil {
		c.logger.Error("hardware shutdown", "err", err)
	}
}

// newInterpreter returns an Interpreter reading the image currently
// loaded into c.hw (the embedded default, or cfg.ScriptPath's override)
// starting from byte 0.
func (c *chain) newInterpreter() *script.Interpreter {
	return script.New(c.hw, c.driver, c.counter, c.ticks)
}
