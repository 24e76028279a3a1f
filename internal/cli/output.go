package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"

	"github.com/roach88/storesync/internal/engine"
)

// Process exit codes. A failed run and an invalid configuration file exit
// with ExitFailure; anything that stops a command from doing its work
// (flags, unreadable files, an unusable database for read-only commands)
// exits with ExitCommandError.
const (
	ExitSuccess      = 0
	ExitFailure      = 1
	ExitCommandError = 2
)

// Error codes reported by commands other than run. A failed run reports
// its engine.RunErrorCode.
const (
	ErrCodeConfigMissing    = "CONFIG_MISSING"
	ErrCodeConfigInvalid    = "CONFIG_INVALID"
	ErrCodeRecipientsFailed = "RECIPIENTS_INVALID"
)

// ExitError carries the process exit code of a failed command.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

// NewExitError returns an ExitError without an underlying fault.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError returns an ExitError wrapping err.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode maps err to a process exit code. Errors that are not an
// ExitError exit with ExitFailure.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// CLIResponse is the JSON envelope printed by every command in json format.
type CLIResponse struct {
	Status  string    `json:"status"`
	Data    any       `json:"data,omitempty"`
	Error   *CLIError `json:"error,omitempty"`
	TraceID string    `json:"trace_id,omitempty"`
}

// CLIError is the error member of a CLIResponse.
type CLIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// RunFailureDetails locates a failed run in the ledger and the pipeline.
type RunFailureDetails struct {
	RunID string `json:"run_id,omitempty"`
	Stage string `json:"stage,omitempty"`
}

// runCLIError describes a failed run. Faults that are not a RunError are
// reported as UNEXPECTED_FAILURE.
func runCLIError(err error) *CLIError {
	var re *engine.RunError
	if !errors.As(err, &re) {
		return &CLIError{Code: string(engine.ErrCodeUnexpected), Message: err.Error()}
	}
	return &CLIError{
		Code:    string(re.Code),
		Message: re.Error(),
		Details: RunFailureDetails{RunID: re.RunID, Stage: re.Stage},
	}
}

// OutputFormatter prints command results as text or as CLIResponse JSON.
type OutputFormatter struct {
	Format string
	Writer io.Writer

	// ErrWriter receives verbose diagnostics so they never mix with JSON
	// on Writer. Falls back to Writer when nil.
	ErrWriter io.Writer
	Verbose   bool
}

// Success prints data.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{Status: "ok", Data: data})
	}
	_, err := fmt.Fprintln(f.Writer, data)
	return err
}

// Error prints a failure with the given code.
func (f *OutputFormatter) Error(code, message string, details any) error {
	return f.Fail(&CLIError{Code: code, Message: message, Details: details})
}

// RunFailure prints a failed run under its RunError code.
func (f *OutputFormatter) RunFailure(err error) error {
	return f.Fail(runCLIError(err))
}

// Fail prints e. Details are shown in text format only when verbose.
func (f *OutputFormatter) Fail(e *CLIError) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{Status: "error", Error: e})
	}

	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", e.Code, e.Message)
	if f.Verbose && e.Details != nil {
		fmt.Fprintf(f.Writer, "Details: %+v\n", e.Details)
	}
	return nil
}

// Table renders rows as a text table, or data as a JSON envelope when the
// format is json.
func (f *OutputFormatter) Table(header []string, rows [][]string, data any) error {
	if f.Format == "json" {
		return f.Success(data)
	}

	table := tablewriter.NewWriter(f.Writer)
	cols := make([]any, len(header))
	for i, h := range header {
		cols[i] = h
	}
	table.Header(cols...)
	for _, row := range rows {
		if err := table.Append(row); err != nil {
			return fmt.Errorf("render table: %w", err)
		}
	}
	if err := table.Render(); err != nil {
		return fmt.Errorf("render table: %w", err)
	}
	return nil
}

// VerboseLog prints a diagnostic line when verbose is set.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	w := f.ErrWriter
	if w == nil {
		w = f.Writer
	}
	fmt.Fprintf(w, format+"\n", args...)
}
