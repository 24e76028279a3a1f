package notify

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"sync"
	"time"
)

// SMTPChannel delivers messages over one SMTP connection, dialed on first
// use and closed by Close.
type SMTPChannel struct {
	addr    string
	from    string
	auth    smtp.Auth
	timeout time.Duration

	mu     sync.Mutex
	client *smtp.Client
}

// NewSMTPChannel creates a channel for the server at addr (host:port).
// auth may be nil for unauthenticated relays.
func NewSMTPChannel(addr, from string, auth smtp.Auth, timeout time.Duration) *SMTPChannel {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &SMTPChannel{addr: addr, from: from, auth: auth, timeout: timeout}
}

// Send issues MAIL/RCPT/DATA for one recipient. After a failed transaction
// the connection is reset so later recipients can still be served.
func (c *SMTPChannel) Send(ctx context.Context, msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	client, err := c.dial(ctx)
	if err != nil {
		return err
	}

	if err := c.transact(client, msg); err != nil {
		if rerr := client.Reset(); rerr != nil {
			// The connection is unusable; the next Send redials.
			_ = client.Close()
			c.client = nil
		}
		return err
	}
	return nil
}

func (c *SMTPChannel) transact(client *smtp.Client, msg Message) error {
	if err := client.Mail(c.from); err != nil {
		return fmt.Errorf("smtp MAIL: %w", err)
	}
	if err := client.Rcpt(msg.To.Email); err != nil {
		return fmt.Errorf("smtp RCPT %s: %w", msg.To.Email, err)
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp DATA: %w", err)
	}
	if _, err := w.Write(c.compose(msg)); err != nil {
		_ = w.Close()
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp DATA: %w", err)
	}
	return nil
}

func (c *SMTPChannel) dial(ctx context.Context) (*smtp.Client, error) {
	if c.client != nil {
		return c.client, nil
	}

	host, _, err := net.SplitHostPort(c.addr)
	if err != nil {
		return nil, fmt.Errorf("smtp address %q: %w", c.addr, err)
	}

	d := net.Dialer{Timeout: c.timeout}
	conn, err := d.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return nil, fmt.Errorf("smtp dial %s: %w", c.addr, err)
	}

	client, err := smtp.NewClient(conn, host)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("smtp handshake %s: %w", c.addr, err)
	}
	if c.auth != nil {
		if err := client.Auth(c.auth); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("smtp auth: %w", err)
		}
	}

	c.client = client
	return client, nil
}

// compose builds the RFC 5322 message with an HTML body.
func (c *SMTPChannel) compose(msg Message) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", c.from)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To.String())
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.HTMLBody)
	return b.Bytes()
}

// Close ends the SMTP session, if one is open.
func (c *SMTPChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client == nil {
		return nil
	}
	err := c.client.Quit()
	c.client = nil
	return err
}
