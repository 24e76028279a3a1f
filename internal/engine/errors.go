package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/storesync/internal/notify"
)

// RunError represents a failure detected while running a batch.
//
// Every fatal failure that leaves Run is a *RunError. Errors carry the stage
// that failed and wrap the underlying fault, so errors.Is/As still reach it.
type RunError struct {
	// Code identifies the error category.
	Code RunErrorCode

	// Stage is the pipeline step that failed (select, resolve, ...).
	Stage string

	// Message is a human-readable description.
	Message string

	// RunID identifies the affected run.
	RunID string

	// Err is the underlying fault.
	Err error
}

// RunErrorCode categorizes run errors.
type RunErrorCode string

const (
	// ErrCodeQueryFailure indicates the change queue could not be read.
	ErrCodeQueryFailure RunErrorCode = "QUERY_FAILURE"

	// ErrCodeResolutionFailure indicates the address matching service failed
	// or returned an unusable batch.
	ErrCodeResolutionFailure RunErrorCode = "RESOLUTION_SERVICE_FAILURE"

	// ErrCodeSynchronizationFailure indicates the unit of work rolled back.
	ErrCodeSynchronizationFailure RunErrorCode = "SYNCHRONIZATION_FAILURE"

	// ErrCodePostProcessingFailure indicates a collection could not be
	// reprojected after commit.
	ErrCodePostProcessingFailure RunErrorCode = "POST_PROCESSING_FAILURE"

	// ErrCodeNotificationFailure indicates an alert could not be delivered.
	ErrCodeNotificationFailure RunErrorCode = "NOTIFICATION_DELIVERY_FAILURE"

	// ErrCodeLockUnavailable indicates another run holds the run lock.
	ErrCodeLockUnavailable RunErrorCode = "LOCK_UNAVAILABLE"

	// ErrCodeUnexpected covers anything else reaching the top of a run.
	ErrCodeUnexpected RunErrorCode = "UNEXPECTED_FAILURE"
)

// Pipeline stages.
const (
	StageStartup     = "startup"
	StageLock        = "lock"
	StageSelect      = "select"
	StageResolve     = "resolve"
	StageSynchronize = "synchronize"
	StageProject     = "project"
	StageNotify      = "notify"
)

// Error implements the error interface.
func (e *RunError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.RunID != "" {
		msg += fmt.Sprintf(" (run=%s, stage=%s)", e.RunID, e.Stage)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying fault.
func (e *RunError) Unwrap() error {
	return e.Err
}

// DescribeFailure fills run context into an alert report.
func (e *RunError) DescribeFailure(r *notify.Report) {
	r.RunID = e.RunID
	r.Stage = e.Stage
	r.Code = string(e.Code)
	r.Message = e.Message
	r.Committed = e.Stage == StageProject
	if e.Err != nil {
		r.Fault = e.Err.Error()
	}
}

var _ notify.Describer = (*RunError)(nil)

func hasCode(err error, code RunErrorCode) bool {
	var re *RunError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

// IsQueryFailure returns true if the error is a queue query failure.
func IsQueryFailure(err error) bool { return hasCode(err, ErrCodeQueryFailure) }

// IsResolutionFailure returns true if the error is a matching service failure.
func IsResolutionFailure(err error) bool { return hasCode(err, ErrCodeResolutionFailure) }

// IsSynchronizationFailure returns true if the unit of work rolled back.
func IsSynchronizationFailure(err error) bool { return hasCode(err, ErrCodeSynchronizationFailure) }

// IsPostProcessingFailure returns true if the error is a projection failure.
func IsPostProcessingFailure(err error) bool { return hasCode(err, ErrCodePostProcessingFailure) }

// IsNotificationFailure returns true if an alert could not be delivered.
func IsNotificationFailure(err error) bool { return hasCode(err, ErrCodeNotificationFailure) }

// IsLockUnavailable returns true if another run holds the run lock.
func IsLockUnavailable(err error) bool { return hasCode(err, ErrCodeLockUnavailable) }

// IsUnexpected returns true if the error is an uncategorized failure.
func IsUnexpected(err error) bool { return hasCode(err, ErrCodeUnexpected) }

// NewQueryFailure creates a RunError for a failed queue read.
func NewQueryFailure(kind string, err error) *RunError {
	return &RunError{
		Code:    ErrCodeQueryFailure,
		Stage:   StageSelect,
		Message: fmt.Sprintf("failed to select %s deltas", kind),
		Err:     err,
	}
}

// NewResolutionFailure creates a RunError for a failed geocoding batch.
func NewResolutionFailure(submitted int, err error) *RunError {
	return &RunError{
		Code:    ErrCodeResolutionFailure,
		Stage:   StageResolve,
		Message: fmt.Sprintf("failed to resolve %d addresses", submitted),
		Err:     err,
	}
}

// NewSynchronizationFailure creates a RunError for a rolled-back batch.
func NewSynchronizationFailure(err error) *RunError {
	return &RunError{
		Code:    ErrCodeSynchronizationFailure,
		Stage:   StageSynchronize,
		Message: "batch rolled back",
		Err:     err,
	}
}

// NewPostProcessingFailure creates a RunError for one failed collection.
func NewPostProcessingFailure(err error) *RunError {
	return &RunError{
		Code:    ErrCodePostProcessingFailure,
		Stage:   StageProject,
		Message: "failed to reproject feature collection",
		Err:     err,
	}
}

// NewNotificationFailure creates a RunError for an undelivered alert.
func NewNotificationFailure(err error) *RunError {
	return &RunError{
		Code:    ErrCodeNotificationFailure,
		Stage:   StageNotify,
		Message: "failed to deliver alert",
		Err:     err,
	}
}

// NewStartupFailure creates a RunError for a fault while wiring a run,
// before anything is read from the queue.
func NewStartupFailure(code RunErrorCode, err error) *RunError {
	return &RunError{
		Code:    code,
		Stage:   StageStartup,
		Message: "failed to start run",
		Err:     err,
	}
}

// asRunError returns err as a *RunError, wrapping anything uncategorized as
// ErrCodeUnexpected under the given stage.
func asRunError(err error, stage string) *RunError {
	var re *RunError
	if errors.As(err, &re) {
		return re
	}
	return &RunError{
		Code:    ErrCodeUnexpected,
		Stage:   stage,
		Message: "unexpected failure",
		Err:     err,
	}
}
