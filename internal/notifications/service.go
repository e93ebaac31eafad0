package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"briefsmith/internal/config"
	"briefsmith/internal/services"
)

const userAgent = "briefsmith/0.1.0"

// Event identifies a notification type.
type Event string

const (
	EventSessionCreated   Event = "session_created"
	EventBriefReady       Event = "brief_ready"
	EventFeedbackReceived Event = "feedback_received"
	EventOptedOut         Event = "opted_out"
	EventBriefUpdated     Event = "brief_updated"
	EventSynthesisReady   Event = "synthesis_ready"
	EventError            Event = "error"
	EventTest             Event = "test"
)

// Payload carries the event fields used to render a message.
type Payload map[string]any

// Service publishes session events.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		enabled:  enabledEvents(cfg.Notifications),
	}
}

func enabledEvents(cfg config.Notifications) map[Event]bool {
	return map[Event]bool{
		EventSessionCreated:   cfg.SessionCreated,
		EventBriefReady:       cfg.BriefReady,
		EventFeedbackReceived: cfg.Feedback,
		EventOptedOut:         cfg.Feedback,
		EventBriefUpdated:     cfg.BriefUpdated,
		EventSynthesisReady:   cfg.Synthesis,
		EventError:            cfg.Errors,
		EventTest:             true,
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	enabled  map[Event]bool
}

// NtfyError reports a non-2xx ntfy response.
type NtfyError struct {
	StatusCode int
	Body       string
}

func (e *NtfyError) Error() string {
	return fmt.Sprintf("ntfy returned %d: %s", e.StatusCode, e.Body)
}

// HTTPStatus exposes the response code for retry classification.
func (e *NtfyError) HTTPStatus() int { return e.StatusCode }

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	if n == nil || n.client == nil || !n.enabled[event] {
		return nil
	}
	msg, ok := render(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func render(event Event, payload Payload) (message, bool) {
	company := payload.text("company")
	session := payload.text("sessionID")
	switch event {
	case EventSessionCreated:
		return message{
			title: "Briefsmith - Session Created",
			body:  fmt.Sprintf("🗂️ Preparing brief: %s (%s)", company, payload.text("leader")),
			tags:  []string{"briefsmith", "session", "created"},
		}, true
	case EventBriefReady:
		body := fmt.Sprintf("📝 Brief ready: %s (version %s)", company, payload.text("version"))
		if score := payload.text("score"); score != "" {
			body += "\nQuality score: " + score
		}
		return message{
			title: "Briefsmith - Brief Ready",
			body:  body,
			tags:  []string{"briefsmith", "brief", "ready"},
		}, true
	case EventFeedbackReceived:
		return message{
			title: "Briefsmith - Feedback Received",
			body:  fmt.Sprintf("✍️ %s corrections received for %s", payload.text("count"), company),
			tags:  []string{"briefsmith", "feedback"},
		}, true
	case EventOptedOut:
		return message{
			title:    "Briefsmith - Opted Out",
			body:     fmt.Sprintf("🚫 %s opted out for %s", payload.text("leader"), company),
			tags:     []string{"briefsmith", "feedback", "opt-out"},
			priority: "high",
		}, true
	case EventBriefUpdated:
		return message{
			title: "Briefsmith - Brief Updated",
			body:  fmt.Sprintf("🔁 Brief updated: %s (version %s)", company, payload.text("version")),
			tags:  []string{"briefsmith", "brief", "updated"},
		}, true
	case EventSynthesisReady:
		return message{
			title: "Briefsmith - Synthesis Ready",
			body:  fmt.Sprintf("✅ Synthesis ready: %s", company),
			tags:  []string{"briefsmith", "synthesis", "ready"},
		}, true
	case EventError:
		var builder strings.Builder
		builder.WriteString("❌ Error")
		if stage := payload.text("stage"); stage != "" {
			builder.WriteString(" while ")
			builder.WriteString(stage)
		}
		if company != "" {
			builder.WriteString(" for ")
			builder.WriteString(company)
		}
		builder.WriteString(": ")
		if errText := payload.text("error"); errText != "" {
			builder.WriteString(errText)
		} else {
			builder.WriteString("unknown")
		}
		if session != "" {
			builder.WriteString("\nSession: ")
			builder.WriteString(session)
		}
		return message{
			title:    "Briefsmith - Error",
			body:     builder.String(),
			tags:     []string{"briefsmith", "error", "alert"},
			priority: "high",
		}, true
	case EventTest:
		return message{
			title:    "Briefsmith - Test",
			body:     "🧪 Notification system test",
			tags:     []string{"briefsmith", "test"},
			priority: "low",
		}, true
	}
	return message{}, false
}

func (p Payload) text(key string) string {
	value, ok := p[key]
	if !ok || value == nil {
		return ""
	}
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case error:
		return strings.TrimSpace(v.Error())
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(msg.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if msg.title != "" {
		req.Header.Set("Title", msg.title)
	}
	if len(msg.tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.tags, ","))
	}
	if msg.priority != "" && msg.priority != "default" {
		req.Header.Set("Priority", msg.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return services.Wrap(services.ErrTransient, "", "send ntfy notification", "", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &NtfyError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
