package harness

// Outcome values of a run.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// TraceEvent is one log record emitted by the engine during a run.
type TraceEvent struct {
	Seq     int64          `json:"seq"`
	Level   string         `json:"level"`
	Message string         `json:"message"`
	Attrs   map[string]any `json:"attrs,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every assertion held.
	Pass bool `json:"pass"`

	RunID   string `json:"run_id"`
	Outcome string `json:"outcome"`

	// Code is the RunError code of a failed run.
	Code string `json:"code,omitempty"`

	// Master is the master store IDs after the run, in insertion order.
	Master []string `json:"master"`

	// Alerts holds the codes of every alert routed to the notifier.
	Alerts []string `json:"alerts,omitempty"`

	// Trace contains the engine's log records in emission order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains assertion failures. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Master: []string{},
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
