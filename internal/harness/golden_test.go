package harness

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshot_Marshal(t *testing.T) {
	r := NewResult()
	r.RunID = "r1"
	r.Outcome = OutcomeSuccess
	r.Master = []string{"S1"}
	r.Trace = []TraceEvent{{Seq: 1, Level: "INFO", Message: "run started"}}

	data, err := Snapshot("s", r).Marshal()
	require.NoError(t, err)

	assert.Equal(t, byte('\n'), data[len(data)-1])

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "s", decoded["scenario_name"])
	assert.NotContains(t, decoded, "code")
	assert.NotContains(t, decoded, "alerts")
}

func TestSnapshot_Stable(t *testing.T) {
	r := NewResult()
	r.Trace = []TraceEvent{{Seq: 1, Message: "m", Attrs: map[string]any{"b": 1, "a": 2, "c": 3}}}

	first, err := Snapshot("s", r).Marshal()
	require.NoError(t, err)
	for range 10 {
		again, err := Snapshot("s", r).Marshal()
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
	assert.Contains(t, string(first), "\"a\": 2,\n        \"b\": 1")
}
