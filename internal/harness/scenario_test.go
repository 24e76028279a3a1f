package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadScenario_Valid(t *testing.T) {
	s := loadScenario(t, "insert_and_remove")

	assert.Equal(t, "insert_and_remove", s.Name)
	assert.Equal(t, "run-insert-and-remove", s.RunID)
	require.Len(t, s.Master, 2)
	assert.Equal(t, "S1", s.Master[0].StoreID)
	assert.InDelta(t, 39.78, s.Master[0].Lat, 1e-9)
	require.Len(t, s.Queue, 3)
	assert.Equal(t, "Removed", s.Queue[2].Kind)
	assert.Equal(t, "Matched", s.Geocode["S3"].Tier)
	assert.NotEmpty(t, s.Assertions)
}

func TestLoadScenario_FileNotFound(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: minimal
description: "Empty queue"
assertions:
  - type: outcome
    outcome: success
`), 0o644))

	s, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, "minimal", s.Name)
}

func TestParseScenario_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "unknown field",
			yaml: "name: x\ndescription: d\nassertion: []\n",
			want: "failed to parse YAML",
		},
		{
			name: "missing name",
			yaml: "description: d\nassertions: [{type: outcome, outcome: success}]\n",
			want: "name is required",
		},
		{
			name: "missing description",
			yaml: "name: x\nassertions: [{type: outcome, outcome: success}]\n",
			want: "description is required",
		},
		{
			name: "no assertions",
			yaml: "name: x\ndescription: d\n",
			want: "assertions list is required",
		},
		{
			name: "bad change kind",
			yaml: "name: x\ndescription: d\nqueue: [{store_id: S1, kind: Updated}]\nassertions: [{type: outcome, outcome: success}]\n",
			want: "queue[0]",
		},
		{
			name: "duplicate master",
			yaml: "name: x\ndescription: d\nmaster: [{store_id: S1}, {store_id: S1}]\nassertions: [{type: outcome, outcome: success}]\n",
			want: "duplicate store_id",
		},
		{
			name: "bad tier",
			yaml: "name: x\ndescription: d\ngeocode: {S1: {tier: Great}}\nassertions: [{type: outcome, outcome: success}]\n",
			want: "unknown tier",
		},
		{
			name: "unknown assertion type",
			yaml: "name: x\ndescription: d\nassertions: [{type: eventually}]\n",
			want: "unknown assertion type",
		},
		{
			name: "bad outcome",
			yaml: "name: x\ndescription: d\nassertions: [{type: outcome, outcome: maybe}]\n",
			want: "outcome must be",
		},
		{
			name: "trace_order without events",
			yaml: "name: x\ndescription: d\nassertions: [{type: trace_order}]\n",
			want: "events list is required",
		},
		{
			name: "final_state without expect",
			yaml: "name: x\ndescription: d\nassertions: [{type: final_state, table: stores}]\n",
			want: "expect is required",
		},
		{
			name: "queue_count bad kind",
			yaml: "name: x\ndescription: d\nassertions: [{type: queue_count, kind: Other}]\n",
			want: "unknown change kind",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
