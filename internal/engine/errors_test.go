package engine

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/storesync/internal/notify"
)

func TestRunError_Error(t *testing.T) {
	fault := errors.New("connection refused")

	err := NewResolutionFailure(3, fault)
	assert.Equal(t, "RESOLUTION_SERVICE_FAILURE: failed to resolve 3 addresses: connection refused", err.Error())

	err.RunID = "run-1"
	assert.Equal(t,
		"RESOLUTION_SERVICE_FAILURE: failed to resolve 3 addresses (run=run-1, stage=resolve): connection refused",
		err.Error())
}

func TestRunError_Unwrap(t *testing.T) {
	fault := errors.New("disk I/O error")
	err := fmt.Errorf("outer: %w", NewSynchronizationFailure(fault))

	assert.ErrorIs(t, err, fault)
	assert.True(t, IsSynchronizationFailure(err), "helpers see through wrapping")
}

func TestRunError_Helpers(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{"query", NewQueryFailure("New", errors.New("x")), IsQueryFailure},
		{"resolution", NewResolutionFailure(1, errors.New("x")), IsResolutionFailure},
		{"synchronization", NewSynchronizationFailure(errors.New("x")), IsSynchronizationFailure},
		{"post-processing", NewPostProcessingFailure(errors.New("x")), IsPostProcessingFailure},
		{"notification", NewNotificationFailure(errors.New("x")), IsNotificationFailure},
		{"lock", &RunError{Code: ErrCodeLockUnavailable}, IsLockUnavailable},
		{"unexpected", asRunError(errors.New("x"), StageSelect), IsUnexpected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.check(tt.err))
		})
	}

	assert.False(t, IsQueryFailure(errors.New("plain")))
	assert.False(t, IsQueryFailure(nil))
	assert.False(t, IsResolutionFailure(NewQueryFailure("New", nil)))
}

func TestAsRunError_KeepsCategorized(t *testing.T) {
	orig := NewQueryFailure("Removed", errors.New("x"))
	assert.Same(t, orig, asRunError(fmt.Errorf("wrapped: %w", orig), StageResolve))

	wrapped := asRunError(errors.New("boom"), StageProject)
	assert.Equal(t, ErrCodeUnexpected, wrapped.Code)
	assert.Equal(t, StageProject, wrapped.Stage)
}

func TestRunError_DescribeFailure(t *testing.T) {
	err := NewSynchronizationFailure(errors.New("UNIQUE constraint failed: stores.store_id"))
	err.RunID = "run-7"

	n := notify.New(nil, nil)
	r := n.NewReport(fmt.Errorf("run: %w", err))

	assert.Equal(t, notify.DefaultSubject, r.Subject)
	assert.Equal(t, "run-7", r.RunID)
	assert.Equal(t, StageSynchronize, r.Stage)
	assert.Equal(t, "SYNCHRONIZATION_FAILURE", r.Code)
	assert.Equal(t, "batch rolled back", r.Message)
	assert.Equal(t, "UNIQUE constraint failed: stores.store_id", r.Fault)
	assert.False(t, r.Committed)
}

func TestRunError_DescribeFailure_AfterCommit(t *testing.T) {
	err := NewPostProcessingFailure(errors.New("no such table: warehouses"))
	err.RunID = "run-8"

	r := notify.New(nil, nil).NewReport(err)

	assert.Equal(t, StageProject, r.Stage)
	assert.Equal(t, "POST_PROCESSING_FAILURE", r.Code)
	assert.True(t, r.Committed)
}
