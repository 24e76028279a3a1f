package notify

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/mail"
	"os"
	"slices"
	"strings"
)

// Recipient is one alert addressee.
type Recipient struct {
	Name  string
	Email string
}

// String formats the recipient as an RFC 5322 address.
func (r Recipient) String() string {
	return (&mail.Address{Name: r.Name, Address: r.Email}).String()
}

// LoadRecipients reads a CSV file with a name,email header.
func LoadRecipients(path string) ([]Recipient, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open recipients: %w", err)
	}
	defer f.Close()

	recipients, err := ParseRecipients(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return recipients, nil
}

// ParseRecipients parses recipient CSV. Column order is taken from the
// header; extra columns are ignored.
func ParseRecipients(r io.Reader) ([]Recipient, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("recipients file is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	for i := range header {
		header[i] = strings.ToLower(strings.TrimSpace(header[i]))
	}
	nameIdx := slices.Index(header, "name")
	emailIdx := slices.Index(header, "email")
	if nameIdx < 0 || emailIdx < 0 {
		return nil, fmt.Errorf("header must contain name and email, got %v", header)
	}

	var out []Recipient
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read recipient: %w", err)
		}
		if len(rec) <= max(nameIdx, emailIdx) {
			line, _ := cr.FieldPos(0)
			return nil, fmt.Errorf("line %d: expected at least %d fields", line, max(nameIdx, emailIdx)+1)
		}

		email := strings.TrimSpace(rec[emailIdx])
		if _, err := mail.ParseAddress(email); err != nil {
			line, _ := cr.FieldPos(emailIdx)
			return nil, fmt.Errorf("line %d: invalid email %q: %w", line, email, err)
		}
		out = append(out, Recipient{Name: strings.TrimSpace(rec[nameIdx]), Email: email})
	}
	return out, nil
}
