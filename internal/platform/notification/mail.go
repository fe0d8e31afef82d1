package notification

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ---------------------------------------------------------------------------
// Template Engine
// ---------------------------------------------------------------------------

// Template is a reusable email with {{key}} placeholders.
type Template struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// TemplateEngine manages email templates and renders them with data.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// NewTemplateEngine creates a TemplateEngine with the portal templates
// pre-registered.
func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{
		templates: make(map[string]*Template),
	}
	e.registerBuiltIn()
	return e
}

func (e *TemplateEngine) registerBuiltIn() {
	builtIn := []Template{
		{
			ID:      "password-reset",
			Name:    "Password Reset",
			Subject: "Password Reset Request",
			Body:    "You requested a password reset. Click the following link to reset your password: {{reset_link}}",
		},
		{
			ID:      "patient-registered",
			Name:    "Patient Registered",
			Subject: "Welcome to HealthFirst, {{first_name}}",
			Body:    "Dear {{first_name}}, your registration is complete. Your patient ID is {{patient_id}}.",
		},
		{
			ID:      "provider-registered",
			Name:    "Provider Registered",
			Subject: "Your HealthFirst provider account",
			Body:    "Dear Dr. {{last_name}}, your provider account has been created. Sign in with {{email}} to manage your availability.",
		},
		{
			ID:      "appointment-booked",
			Name:    "Appointment Booked",
			Subject: "Appointment confirmed for {{patient_name}}",
			Body:    "Dear {{patient_name}}, your {{mode}} appointment with {{provider}} is booked for {{date_time}}.",
		},
	}
	for i := range builtIn {
		t := builtIn[i]
		e.templates[t.ID] = &t
	}
}

// RegisterTemplate adds or replaces a template in the engine.
func (e *TemplateEngine) RegisterTemplate(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = &t
}

// Render looks up a template by ID and performs {{key}} replacement using the
// supplied data map. Keys present in the template but absent from data are left
// as-is.
func (e *TemplateEngine) Render(templateID string, data map[string]string) (subject, body string, err error) {
	e.mu.RLock()
	t, ok := e.templates[templateID]
	e.mu.RUnlock()
	if !ok {
		return "", "", fmt.Errorf("template %q not found", templateID)
	}

	subject = t.Subject
	body = t.Body
	for k, v := range data {
		placeholder := "{{" + k + "}}"
		subject = strings.ReplaceAll(subject, placeholder, v)
		body = strings.ReplaceAll(body, placeholder, v)
	}
	return subject, body, nil
}

// ---------------------------------------------------------------------------
// Senders
// ---------------------------------------------------------------------------

// EmailSender is the interface for sending email messages.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// LogEmailSender writes outgoing mail to the log. It stands in for an SMTP
// relay in development.
type LogEmailSender struct {
	Logger zerolog.Logger
}

func (s LogEmailSender) SendEmail(_ context.Context, to, subject, body string) error {
	s.Logger.Info().Str("to", to).Str("subject", subject).Msg(body)
	return nil
}

// EmailCall records a single call to SendEmail.
type EmailCall struct {
	To      string
	Subject string
	Body    string
}

// MockEmailSender is a test double for EmailSender.
type MockEmailSender struct {
	mu         sync.Mutex
	calls      []EmailCall
	ShouldFail bool
	FailError  string
}

// SendEmail records the call and optionally returns an error.
func (m *MockEmailSender) SendEmail(_ context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, EmailCall{To: to, Subject: subject, Body: body})
	if m.ShouldFail {
		return errors.New(m.FailError)
	}
	return nil
}

// Calls returns a copy of recorded email calls.
func (m *MockEmailSender) Calls() []EmailCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]EmailCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// ---------------------------------------------------------------------------
// Mailer
// ---------------------------------------------------------------------------

// Message is one outbound email and its delivery outcome.
type Message struct {
	ID         string            `json:"id"`
	Recipient  string            `json:"recipient"`
	Subject    string            `json:"subject"`
	Body       string            `json:"body"`
	TemplateID string            `json:"template_id,omitempty"`
	Data       map[string]string `json:"data,omitempty"`
	Status     string            `json:"status"`
	CreatedAt  time.Time         `json:"created_at"`
	SentAt     *time.Time        `json:"sent_at,omitempty"`
	Error      string            `json:"error,omitempty"`
}

// Mailer renders templates, sends them and keeps an in-memory outbox.
type Mailer struct {
	sender    EmailSender
	templates *TemplateEngine

	mu     sync.RWMutex
	outbox map[string]*Message
}

func NewMailer(sender EmailSender, tpl *TemplateEngine) *Mailer {
	return &Mailer{
		sender:    sender,
		templates: tpl,
		outbox:    make(map[string]*Message),
	}
}

// Send delivers msg, assigning an ID and timestamps, and records the result.
func (m *Mailer) Send(ctx context.Context, msg *Message) error {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	msg.CreatedAt = time.Now().UTC()
	msg.Status = "pending"

	sendErr := m.sender.SendEmail(ctx, msg.Recipient, msg.Subject, msg.Body)
	if sendErr != nil {
		msg.Status = "failed"
		msg.Error = sendErr.Error()
	} else {
		msg.Status = "sent"
		sentAt := time.Now().UTC()
		msg.SentAt = &sentAt
	}

	m.mu.Lock()
	m.outbox[msg.ID] = msg
	m.mu.Unlock()

	return sendErr
}

// SendTemplate renders templateID with data and sends it to recipient.
func (m *Mailer) SendTemplate(ctx context.Context, templateID string, data map[string]string, recipient string) (*Message, error) {
	subject, body, err := m.templates.Render(templateID, data)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}
	msg := &Message{
		Recipient:  recipient,
		Subject:    subject,
		Body:       body,
		TemplateID: templateID,
		Data:       data,
	}
	if err := m.Send(ctx, msg); err != nil {
		return msg, err
	}
	return msg, nil
}

// Get retrieves a message by ID.
func (m *Mailer) Get(id string) (*Message, error) {
	m.mu.RLock()
	msg, ok := m.outbox[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("message %q not found", id)
	}
	return msg, nil
}

// ListByRecipient returns the messages sent to recipient, newest first, up
// to limit.
func (m *Mailer) ListByRecipient(recipient string, limit int) []*Message {
	m.mu.RLock()
	var result []*Message
	for _, msg := range m.outbox {
		if msg.Recipient == recipient {
			result = append(result, msg)
		}
	}
	m.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result
}

// Stats returns counts of messages grouped by status.
func (m *Mailer) Stats() map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := make(map[string]int)
	for _, msg := range m.outbox {
		stats[msg.Status]++
	}
	return stats
}
