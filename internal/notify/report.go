package notify

import (
	_ "embed"
	"fmt"
	"html/template"
	"strings"
	"time"
)

// DefaultSubject is the subject line of every alert.
const DefaultSubject = "Alert: Error processing store deltas"

//go:embed alert.html.tmpl
var alertTemplateText string

var alertTemplate = template.Must(template.New("alert").Parse(alertTemplateText))

// Report is the content of one failure alert.
type Report struct {
	Subject    string
	RunID      string
	Stage      string
	Code       string
	Message    string
	Fault      string
	OccurredAt time.Time

	// Committed is set when the failure happened after the batch
	// committed, so the master dataset already holds the run's changes.
	Committed bool
}

// Describer is implemented by failures that can fill in run context.
type Describer interface {
	DescribeFailure(r *Report)
}

// Render produces the HTML body addressed to one recipient.
func Render(r Report, to Recipient) (string, error) {
	var b strings.Builder
	data := struct {
		Report    Report
		Recipient Recipient
	}{r, to}
	if err := alertTemplate.Execute(&b, data); err != nil {
		return "", fmt.Errorf("render alert: %w", err)
	}
	return b.String(), nil
}
