// Package notify hands outgoing email and SMS messages to a delivery
// backend. Delivery itself happens elsewhere.
package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/findosh/fintrack/internal/log"
)

// Channel names used in messages
const (
	ChannelEmail = "email"
	ChannelSMS   = "sms"
)

// Outcome describes what happened to a message. Stub means it was only
// logged, not handed to a real transport.
type Outcome struct {
	Stub bool
}

// Notifier sends email and SMS messages
type Notifier interface {
	SendEmail(ctx context.Context, to, subject, body string) (Outcome, error)
	SendSMS(ctx context.Context, to, body string) (Outcome, error)
}

// Message is the JSON document published for the delivery worker
type Message struct {
	Channel   string    `json:"channel"`
	To        string    `json:"to"`
	Subject   string    `json:"subject,omitempty"`
	Body      string    `json:"body"`
	Timestamp time.Time `json:"timestamp"`
}

// ToJSON converts the message to JSON bytes
func (m *Message) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// LogNotifier writes messages to the log instead of sending them
type LogNotifier struct {
	logger *log.Logger
}

// NewLogNotifier creates a logging notifier
func NewLogNotifier(logger *log.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.WithComponent(log.ComponentNotify)}
}

// SendEmail logs the email
func (n *LogNotifier) SendEmail(ctx context.Context, to, subject, body string) (Outcome, error) {
	n.logger.InfoContext(ctx, "email (not delivered)", "to", to, "subject", subject, "body", body)
	return Outcome{Stub: true}, nil
}

// SendSMS logs the text message
func (n *LogNotifier) SendSMS(ctx context.Context, to, body string) (Outcome, error) {
	n.logger.InfoContext(ctx, "sms (not delivered)", "to", to, "body", body)
	return Outcome{Stub: true}, nil
}
