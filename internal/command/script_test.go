package command

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseValidScript(t *testing.T) {
	const doc = `[
		{"cmd": "pause", "duration": 5},
		{"cmd": "measure_paths", "client_list": ["all"], "txgain": 20, "rxgain": 30, "freq_step": 1e4, "time_step": 1.0, "timeout": 10},
		{"cmd": "print_results", "client_list": ["all"]}
	]`

	script, err := Parse(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, script, 3)
	require.Equal(t, CmdMeasurePaths, script[1].Cmd)
	require.True(t, IsBuiltin(script[1].Cmd))
}

func TestParseRejectsMissingCmd(t *testing.T) {
	const doc = `[{"duration": 5}]`
	_, err := Parse(strings.NewReader(doc))
	require.Error(t, err)
}

func TestParseRejectsNegativeDuration(t *testing.T) {
	const doc = `[{"cmd": "pause", "duration": -1}]`
	_, err := Parse(strings.NewReader(doc))
	require.Error(t, err)
}

func TestParseRejectsNegativeTimeStep(t *testing.T) {
	const doc = `[{"cmd": "measure_paths", "time_step": -1}]`
	_, err := Parse(strings.NewReader(doc))
	require.Error(t, err)
}

func TestIsBuiltinFalseForRPCName(t *testing.T) {
	require.False(t, IsBuiltin("echo"))
	require.False(t, IsBuiltin("txsine"))
}
