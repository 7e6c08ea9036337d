// Package command parses and validates the JSON command script an
// interface driver executes (spec.md §5, CommandScript; grounded on
// original_source meascon.py's run() reading a JSON command file and
// measiface.py's CMD_DISPATCH table).
package command

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/go-playground/validator/v10"
)

// Names of the commands an interface driver's CMD_DISPATCH table knows
// about directly; anything else is assumed to be an RPC call name and is
// routed through internal/rpc instead (original_source measiface.py).
const (
	CmdPause        = "pause"
	CmdWaitResults  = "wait_results"
	CmdPlotPSD      = "plot_psd"
	CmdPrintResults = "print_results"
	CmdMeasurePaths = "measure_paths"
)

// Command is one entry of a CommandScript.
type Command struct {
	Cmd string `json:"cmd" validate:"required"`

	// ClientList names which clients a command targets; a single-element
	// ["all"] fans out to every registered measurement client (spec.md
	// §6.4 Open Question resolution, SPEC_FULL.md §6.4).
	ClientList []string `json:"client_list,omitempty"`

	// Sync makes the driver stamp this command's StartTime with a shared
	// rendezvous time, Toff seconds (2 when Toff is unset) after the current
	// Unix second; with Toff unset a time cached from the previous sync
	// command is reused. A non-sync command clears the cached time. The
	// driver itself does not wait for that time.
	Sync bool    `json:"sync,omitempty"`
	Toff float64 `json:"toff,omitempty"`

	Duration int     `json:"duration,omitempty" validate:"omitempty,min=0"`
	Timeout  float64 `json:"timeout,omitempty" validate:"omitempty,min=0"`

	// measure_paths parameters. TimeStep is validated separately in
	// Parse, since "required when cmd is measure_paths" is conditional
	// on a sibling field in a way struct tags express awkwardly.
	Freq       float64 `json:"freq,omitempty"`
	Rate       float64 `json:"rate,omitempty"`
	TxGain     float64 `json:"txgain,omitempty"`
	RxGain     float64 `json:"rxgain,omitempty"`
	FreqStep   float64 `json:"freq_step,omitempty"`
	TimeStep   float64 `json:"time_step,omitempty"`
	GetSamples bool    `json:"get_samples,omitempty"`

	// RPC arguments, passed through verbatim for commands that are not
	// in CMD_DISPATCH (rpc.Lookup(cmd) resolves the call; Args provides
	// its overrides).
	Args map[string]string `json:"args,omitempty"`

	// StartTime is filled in by the driver at execution time for
	// Sync commands, never read from the script itself.
	StartTime float64 `json:"-"`
}

// Script is an ordered list of commands to run (spec.md §3, CommandScript).
type Script []Command

// Parse decodes and validates a command script.
func Parse(r io.Reader) (Script, error) {
	var script Script
	if err := json.NewDecoder(r).Decode(&script); err != nil {
		return nil, fmt.Errorf("command: decode script: %w", err)
	}

	v := validator.New()
	for i, c := range script {
		if err := v.Struct(c); err != nil {
			return nil, fmt.Errorf("command: entry %d (%q): %w", i, c.Cmd, err)
		}
		if c.Cmd == CmdMeasurePaths && c.TimeStep <= 0 {
			return nil, fmt.Errorf("command: entry %d (%q): time_step must be positive", i, c.Cmd)
		}
	}
	return script, nil
}

// IsBuiltin reports whether name is one of the driver-local commands rather
// than an RPC call name.
func IsBuiltin(name string) bool {
	switch name {
	case CmdPause, CmdWaitResults, CmdPlotPSD, CmdPrintResults, CmdMeasurePaths:
		return true
	default:
		return false
	}
}
