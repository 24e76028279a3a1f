package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"
)

//go:generate mockgen -destination=mocks/mock_channel.go -package=mocks -source=notifier.go Channel

// Message is one rendered alert for one recipient.
type Message struct {
	To       Recipient
	Subject  string
	HTMLBody string
}

// Channel delivers a single message. Channels that hold a connection may
// also implement io.Closer; the Notifier closes them after each alert.
type Channel interface {
	Send(ctx context.Context, msg Message) error
}

// DeliveryError reports the recipients an alert could not reach.
type DeliveryError struct {
	Failed []string
	Err    error
}

// Error implements the error interface.
func (e *DeliveryError) Error() string {
	return fmt.Sprintf("alert not delivered to %d recipient(s): %v", len(e.Failed), e.Err)
}

// Unwrap returns the joined per-recipient errors.
func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// Notifier sends failure alerts to a fixed recipient list.
type Notifier struct {
	channel    Channel
	recipients []Recipient
	logger     *slog.Logger
	now        func() time.Time
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithLogger sets the logger used for per-recipient delivery logs.
func WithLogger(l *slog.Logger) Option {
	return func(n *Notifier) {
		n.logger = l
	}
}

// WithNow sets the time source stamped on reports.
func WithNow(now func() time.Time) Option {
	return func(n *Notifier) {
		n.now = now
	}
}

// New creates a Notifier. The recipients slice is copied.
func New(channel Channel, recipients []Recipient, opts ...Option) *Notifier {
	n := &Notifier{
		channel:    channel,
		recipients: append([]Recipient(nil), recipients...),
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Recipients returns a copy of the recipient list.
func (n *Notifier) Recipients() []Recipient {
	return append([]Recipient(nil), n.recipients...)
}

// NewReport builds the report for a failure. Failures implementing
// Describer fill in run context.
func (n *Notifier) NewReport(failure error) Report {
	r := Report{
		Subject:    DefaultSubject,
		Message:    failure.Error(),
		OccurredAt: n.now(),
	}
	var d Describer
	if errors.As(failure, &d) {
		d.DescribeFailure(&r)
	}
	return r
}

// Alert renders and sends the failure report to every recipient. It returns
// a *DeliveryError if any recipient could not be reached.
func (n *Notifier) Alert(ctx context.Context, failure error) error {
	report := n.NewReport(failure)

	if closer, ok := n.channel.(io.Closer); ok {
		defer func() {
			if err := closer.Close(); err != nil {
				n.logger.Warn("close alert channel", "error", err)
			}
		}()
	}

	var (
		errs   []error
		failed []string
	)
	for _, to := range n.recipients {
		body, err := Render(report, to)
		if err == nil {
			err = n.channel.Send(ctx, Message{To: to, Subject: report.Subject, HTMLBody: body})
		}
		if err != nil {
			n.logger.Error("alert delivery failed", "recipient", to.Email, "error", err)
			failed = append(failed, to.Email)
			errs = append(errs, fmt.Errorf("%s: %w", to.Email, err))
			continue
		}
		n.logger.Info("alert sent", "recipient", to.Email)
	}

	if len(errs) > 0 {
		return &DeliveryError{Failed: failed, Err: errors.Join(errs...)}
	}
	return nil
}
