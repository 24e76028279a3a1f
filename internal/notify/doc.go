// Package notify delivers failure alerts for aborted sync runs.
//
// A Notifier renders one HTML report per recipient and hands it to a
// Channel. Delivery is best effort: a failed recipient never stops the
// remaining sends, and the per-recipient failures are joined into a single
// error for the caller to log. There is no retry.
//
// Recipients come from a CSV file with a name,email header. The SMTP
// channel keeps one connection open for the whole alert and issues
// MAIL/RCPT/DATA per recipient.
package notify
