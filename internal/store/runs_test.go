package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordRun_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	run := RunRecord{
		RunID:       "run-1",
		StartedAt:   time.Date(2024, 1, 2, 3, 4, 5, 600, time.UTC),
		FinishedAt:  time.Date(2024, 1, 2, 3, 4, 6, 0, time.UTC),
		Phase:       PhaseComplete,
		Fingerprint: "abc",
		SelectedNew: 3,
		Rejected:    1,
		Inserted:    2,
		Removed:     1,
		MasterCount: 10,
	}
	require.NoError(t, s.RecordRun(ctx, run))

	got, ok, err := s.LastRun(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, run, got)
}

func TestRecentRuns_NewestFirst(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	// Whole-second and fractional timestamps must still order correctly.
	offsets := []time.Duration{0, 1500 * time.Millisecond, time.Second, 2 * time.Second}
	for i, off := range offsets {
		require.NoError(t, s.RecordRun(ctx, RunRecord{
			RunID:      fmt.Sprintf("run-%d", i),
			StartedAt:  base.Add(off),
			FinishedAt: base.Add(off),
			Phase:      PhaseFailed,
			Message:    "x",
		}))
	}

	runs, err := s.RecentRuns(ctx, 3)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "run-3", runs[0].RunID)
	assert.Equal(t, "run-1", runs[1].RunID)
	assert.Equal(t, "run-2", runs[2].RunID)
}

func TestLastRun_Empty(t *testing.T) {
	s := createTestStore(t)

	_, ok, err := s.LastRun(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRecordRun_DuplicateID(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	run := RunRecord{RunID: "dup", Phase: PhaseFailed}
	require.NoError(t, s.RecordRun(ctx, run))
	require.Error(t, s.RecordRun(ctx, run))
}
