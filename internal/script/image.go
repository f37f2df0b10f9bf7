package script

import _ "embed"

// DefaultImage is the factory-default script: connect with SCK option 0
// (the fastest divisor), verify the target is present, then disconnect. It is
// the image ispnubd falls back to when no ScriptPath override is
// configured, and exists so a freshly flashed appliance does something
// observable (a clean connect/disconnect cycle) before an operator
// authors a real programming recipe.
//
//go:embed default.bin
var DefaultImage []byte
