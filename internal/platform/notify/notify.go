// Package notify dispatches document notifications to recipients via the
// clinic's hosted mail function. Delivery mechanics (SMTP, templates on the
// mail side) live behind that endpoint; this package only composes and posts
// the message payload.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var ErrMissingRecipient = errors.New("recipient email is required")

// Message is the payload delivered to the mail function for each recipient.
type Message struct {
	SubmissionID string `json:"submission_id"`
	Recipient    string `json:"recipient"`
	PatientName  string `json:"patient_name"`
	FormType     string `json:"form_type"`
	PDFURL       string `json:"pdf_url"`
	ClinicName   string `json:"clinic_name"`
	ClinicEmail  string `json:"clinic_email"`
}

// Sender delivers a single document notification. Implementations must be
// safe for concurrent use.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// ---------------------------------------------------------------------------
// Mock sender for tests and development
// ---------------------------------------------------------------------------

// MockSender records messages instead of delivering them. FailFor lists
// recipient addresses whose delivery should fail, for exercising the
// partial-success fan-out path.
type MockSender struct {
	mu      sync.Mutex
	sent    []Message
	FailFor map[string]bool
}

func NewMockSender() *MockSender {
	return &MockSender{FailFor: make(map[string]bool)}
}

func (m *MockSender) Send(_ context.Context, msg Message) error {
	if msg.Recipient == "" {
		return ErrMissingRecipient
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailFor[msg.Recipient] {
		return fmt.Errorf("mail function rejected delivery to %s", msg.Recipient)
	}
	m.sent = append(m.sent, msg)
	return nil
}

// Sent returns a copy of the successfully recorded messages.
func (m *MockSender) Sent() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Message(nil), m.sent...)
}
