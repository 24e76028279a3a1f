package delta

import "fmt"

// ResultKind tags a Result.
type ResultKind int

const (
	ResultOk ResultKind = iota
	ResultSkip
	ResultFatal
)

func (k ResultKind) String() string {
	switch k {
	case ResultOk:
		return "ok"
	case ResultSkip:
		return "skip"
	case ResultFatal:
		return "fatal"
	default:
		return fmt.Sprintf("ResultKind(%d)", int(k))
	}
}

// Result is the outcome of a per-item operation: a value, a skip with a
// reason, or a fatal fault. Callers must switch on Kind; a skip is neither a
// success nor a fault.
type Result[T any] struct {
	Kind   ResultKind
	Value  T
	Reason string
	Err    error
}

// Ok wraps a successful value.
func Ok[T any](v T) Result[T] {
	return Result[T]{Kind: ResultOk, Value: v}
}

// Skip records that the item was intentionally not processed.
func Skip[T any](reason string) Result[T] {
	return Result[T]{Kind: ResultSkip, Reason: reason}
}

// Fatal records a fault for the item.
func Fatal[T any](err error) Result[T] {
	return Result[T]{Kind: ResultFatal, Err: err}
}

func (r Result[T]) IsOk() bool    { return r.Kind == ResultOk }
func (r Result[T]) IsSkip() bool  { return r.Kind == ResultSkip }
func (r Result[T]) IsFatal() bool { return r.Kind == ResultFatal }
