// Package notification delivers out-of-band push and SMS notifications with
// template rendering, an in-memory delivery log, and retry support. It is the
// channel that reaches actors who are not connected to the realtime hub.
package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Channel is the delivery mechanism for a notification.
type Channel string

const (
	ChannelPush Channel = "push"
	ChannelSMS  Channel = "sms"
)

// Notification is one outbound delivery attempt addressed to an actor.
type Notification struct {
	ID           string            `json:"id"`
	Channel      Channel           `json:"channel"`
	Recipient    string            `json:"recipient"`
	Title        string            `json:"title,omitempty"`
	Body         string            `json:"body"`
	TemplateID   string            `json:"template_id,omitempty"`
	TemplateData map[string]string `json:"template_data,omitempty"`
	Status       string            `json:"status"`
	CreatedAt    time.Time         `json:"created_at"`
	SentAt       *time.Time        `json:"sent_at,omitempty"`
	Error        string            `json:"error,omitempty"`
}

// PushSender delivers a push notification to the actor's registered devices.
type PushSender interface {
	SendPush(ctx context.Context, actorID, title, body string) error
}

// SMSSender delivers an SMS to the actor's registered phone number.
type SMSSender interface {
	SendSMS(ctx context.Context, actorID, body string) error
}

// Template is a reusable notification with {{key}} placeholders.
type Template struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Title   string  `json:"title"`
	Body    string  `json:"body"`
	Channel Channel `json:"channel"`
}

// TemplateEngine stores templates and renders them with data.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// NewTemplateEngine creates a TemplateEngine with the built-in templates
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
			ID:      "request-new",
			Name:    "New Request Nearby",
			Title:   "Nueva solicitud cerca de ti",
			Body:    "{{service_name}} a {{distance_km}} km. Precio: S/ {{price}}.",
			Channel: ChannelPush,
		},
		{
			ID:      "request-accepted",
			Name:    "Request Accepted",
			Title:   "Tu solicitud fue aceptada",
			Body:    "{{nurse_name}} aceptó tu solicitud de {{service_name}} y está en camino.",
			Channel: ChannelPush,
		},
		{
			ID:      "nurse-arrived",
			Name:    "Nurse Arrived",
			Title:   "Tu enfermera llegó",
			Body:    "{{nurse_name}} llegó a la dirección indicada.",
			Channel: ChannelPush,
		},
		{
			ID:      "service-completed",
			Name:    "Service Completed",
			Title:   "Servicio completado",
			Body:    "Tu servicio de {{service_name}} ha finalizado. ¡Califica tu experiencia!",
			Channel: ChannelPush,
		},
		{
			ID:      "chat-message",
			Name:    "New Chat Message",
			Title:   "Mensaje de {{sender}}",
			Body:    "{{preview}}",
			Channel: ChannelPush,
		},
		{
			ID:      "panic-alert",
			Name:    "Panic Alert",
			Title:   "ALERTA DE PÁNICO ({{level}})",
			Body:    "{{nurse_name}} activó una alerta. Revisa el panel de emergencias.",
			Channel: ChannelPush,
		},
	}
	for i := range builtIn {
		t := builtIn[i]
		e.templates[t.ID] = &t
	}
}

// RegisterTemplate adds or replaces a template.
func (e *TemplateEngine) RegisterTemplate(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = &t
}

// Render looks up a template and performs {{key}} replacement. Keys present
// in the template but absent from data are left as-is.
func (e *TemplateEngine) Render(templateID string, data map[string]string) (title, body string, channel Channel, err error) {
	e.mu.RLock()
	t, ok := e.templates[templateID]
	e.mu.RUnlock()
	if !ok {
		return "", "", "", fmt.Errorf("template %q not found", templateID)
	}

	title = t.Title
	body = t.Body
	for k, v := range data {
		placeholder := "{{" + k + "}}"
		title = strings.ReplaceAll(title, placeholder, v)
		body = strings.ReplaceAll(body, placeholder, v)
	}
	return title, body, t.Channel, nil
}

// PushCall records a single call to SendPush.
type PushCall struct {
	ActorID string
	Title   string
	Body    string
}

// MockPushSender is a test double for PushSender.
type MockPushSender struct {
	mu         sync.Mutex
	calls      []PushCall
	ShouldFail bool
	FailError  string
}

func (m *MockPushSender) SendPush(_ context.Context, actorID, title, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, PushCall{ActorID: actorID, Title: title, Body: body})
	if m.ShouldFail {
		return errors.New(m.FailError)
	}
	return nil
}

// Calls returns a copy of recorded push calls.
func (m *MockPushSender) Calls() []PushCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]PushCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// SMSCall records a single call to SendSMS.
type SMSCall struct {
	ActorID string
	Body    string
}

// MockSMSSender is a test double for SMSSender.
type MockSMSSender struct {
	mu         sync.Mutex
	calls      []SMSCall
	ShouldFail bool
	FailError  string
}

func (m *MockSMSSender) SendSMS(_ context.Context, actorID, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, SMSCall{ActorID: actorID, Body: body})
	if m.ShouldFail {
		return errors.New(m.FailError)
	}
	return nil
}

// Calls returns a copy of recorded SMS calls.
func (m *MockSMSSender) Calls() []SMSCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SMSCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// Manager orchestrates rendering, delivery, and the in-memory delivery log.
// It satisfies the Notifier interfaces of the domain services.
type Manager struct {
	push      PushSender
	sms       SMSSender
	templates *TemplateEngine
	logger    zerolog.Logger

	mu            sync.RWMutex
	notifications map[string]*Notification
	inflight      sync.WaitGroup
}

func NewManager(push PushSender, sms SMSSender, tpl *TemplateEngine, logger zerolog.Logger) *Manager {
	return &Manager{
		push:          push,
		sms:           sms,
		templates:     tpl,
		logger:        logger.With().Str("component", "notification").Logger(),
		notifications: make(map[string]*Notification),
	}
}

// Notify renders the template and delivers it to the actor, fire and forget.
// Delivery runs on its own goroutine so a slow push gateway never stalls the
// caller. Failures are logged, never propagated; a missed push must not fail
// the operation that triggered it.
func (m *Manager) Notify(ctx context.Context, actorID, templateID string, data map[string]string) {
	// The caller's request context may be cancelled as soon as it returns.
	ctx = context.WithoutCancel(ctx)
	m.inflight.Add(1)
	go func() {
		defer m.inflight.Done()
		if _, err := m.SendFromTemplate(ctx, templateID, data, actorID); err != nil {
			m.logger.Warn().Err(err).Str("actor_id", actorID).Str("template", templateID).Msg("notification delivery failed")
		}
	}()
}

// Wait blocks until all in-flight Notify deliveries have finished. Called
// during shutdown so pending notifications are not cut off.
func (m *Manager) Wait() {
	m.inflight.Wait()
}

// Send delivers a notification through its channel and records the outcome.
func (m *Manager) Send(ctx context.Context, n *Notification) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	n.CreatedAt = time.Now().UTC()
	n.Status = "pending"

	sendErr := m.deliver(ctx, n)
	if sendErr != nil {
		n.Status = "failed"
		n.Error = sendErr.Error()
	} else {
		n.Status = "sent"
		sentAt := time.Now().UTC()
		n.SentAt = &sentAt
	}

	m.mu.Lock()
	m.notifications[n.ID] = n
	m.mu.Unlock()

	return sendErr
}

func (m *Manager) deliver(ctx context.Context, n *Notification) error {
	switch n.Channel {
	case ChannelPush:
		return m.push.SendPush(ctx, n.Recipient, n.Title, n.Body)
	case ChannelSMS:
		return m.sms.SendSMS(ctx, n.Recipient, n.Body)
	default:
		return fmt.Errorf("unsupported channel: %s", n.Channel)
	}
}

// SendFromTemplate renders a template and sends the resulting notification.
func (m *Manager) SendFromTemplate(ctx context.Context, templateID string, data map[string]string, recipient string) (*Notification, error) {
	title, body, channel, err := m.templates.Render(templateID, data)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	n := &Notification{
		Channel:      channel,
		Recipient:    recipient,
		Title:        title,
		Body:         body,
		TemplateID:   templateID,
		TemplateData: data,
	}
	if err := m.Send(ctx, n); err != nil {
		return n, err
	}
	return n, nil
}

// Get retrieves a logged notification by id.
func (m *Manager) Get(_ context.Context, id string) (*Notification, error) {
	m.mu.RLock()
	n, ok := m.notifications[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("notification %q not found", id)
	}
	return n, nil
}

// ListByRecipient returns logged notifications for an actor, up to limit.
func (m *Manager) ListByRecipient(_ context.Context, recipient string, limit int) ([]*Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Notification
	for _, n := range m.notifications {
		if n.Recipient == recipient {
			result = append(result, n)
			if len(result) >= limit {
				break
			}
		}
	}
	return result, nil
}

// Retry re-sends a failed notification. Returns an error if the notification
// is not in failed status.
func (m *Manager) Retry(ctx context.Context, id string) error {
	m.mu.RLock()
	n, ok := m.notifications[id]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("notification %q not found", id)
	}
	if n.Status != "failed" {
		return fmt.Errorf("notification %q is not in failed status (current: %s)", id, n.Status)
	}

	sendErr := m.deliver(ctx, n)

	m.mu.Lock()
	if sendErr != nil {
		n.Status = "failed"
		n.Error = sendErr.Error()
	} else {
		n.Status = "sent"
		sentAt := time.Now().UTC()
		n.SentAt = &sentAt
		n.Error = ""
	}
	m.mu.Unlock()

	return sendErr
}

// Stats returns delivery counts grouped by status.
func (m *Manager) Stats(_ context.Context) map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := make(map[string]int)
	for _, n := range m.notifications {
		stats[n.Status]++
	}
	return stats
}
