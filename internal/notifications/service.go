package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"meetsync/internal/config"
)

const userAgent = "meetsync/0.1.0"

// Event identifies a notification type.
type Event string

const (
	EventAssetDetected    Event = "asset_detected"
	EventMeetingMatched   Event = "meeting_matched"
	EventFallbackCopy     Event = "fallback_copy"
	EventReviewReady      Event = "review_ready"
	EventPublished        Event = "published"
	EventOffline          Event = "offline"
	EventOnline           Event = "online"
	EventError            Event = "error"
	EventTestNotification Event = "test"
)

// Payload carries event-specific values.
type Payload map[string]any

// Service defines the notification surface exposed to workflow components.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:  topic,
		client:    &http.Client{Timeout: timeout},
		published: cfg.Notifications.Published,
		offline:   cfg.Notifications.Offline,
		errors:    cfg.Notifications.Errors,
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint  string
	client    *http.Client
	published bool
	offline   bool
	errors    bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	if n == nil || !n.enabled(event) {
		return nil
	}
	msg, ok := format(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func (n *ntfyService) enabled(event Event) bool {
	switch event {
	case EventPublished:
		return n.published
	case EventOffline, EventOnline:
		return n.offline
	case EventError:
		return n.errors
	default:
		return true
	}
}

func format(event Event, payload Payload) (message, bool) {
	switch event {
	case EventMeetingMatched:
		title := payload.text("title")
		return message{
			title: "meetsync - Meeting Matched",
			body:  fmt.Sprintf("📅 %s\nFile: %s", title, payload.text("file")),
			tags:  []string{"meetsync", "calendar", "matched"},
		}, title != ""
	case EventFallbackCopy:
		return message{
			title: "meetsync - Saved Without Meeting",
			body:  fmt.Sprintf("📁 Saved under original name: %s", payload.text("file")),
			tags:  []string{"meetsync", "calendar", "fallback"},
		}, true
	case EventReviewReady:
		return message{
			title: "meetsync - Speaker Review",
			body:  fmt.Sprintf("🎙 Transcript ready for review: %s", payload.text("title")),
			tags:  []string{"meetsync", "transcript", "review"},
		}, true
	case EventPublished:
		body := fmt.Sprintf("✅ Logged: %s", payload.text("title"))
		if project := payload.text("project"); project != "" {
			body = fmt.Sprintf("%s\nProject: %s", body, project)
		}
		return message{
			title: "meetsync - Meeting Logged",
			body:  body,
			tags:  []string{"meetsync", "sheets", "published"},
		}, true
	case EventOffline:
		return message{
			title: "meetsync - Offline",
			body:  "📴 Connectivity lost; work is queued until the network returns",
			tags:  []string{"meetsync", "network", "offline"},
		}, true
	case EventOnline:
		return message{
			title: "meetsync - Online",
			body:  fmt.Sprintf("📶 Back online; %s queued item(s) flushed", payload.text("flushed")),
			tags:  []string{"meetsync", "network", "online"},
		}, true
	case EventError:
		var b strings.Builder
		b.WriteString("❌ Error")
		if label := payload.text("context"); label != "" {
			b.WriteString(" with ")
			b.WriteString(label)
		}
		b.WriteString(": ")
		if detail := payload.text("error"); detail != "" {
			b.WriteString(detail)
		} else {
			b.WriteString("unknown")
		}
		return message{
			title:    "meetsync - Error",
			body:     b.String(),
			tags:     []string{"meetsync", "error", "alert"},
			priority: "high",
		}, true
	case EventTestNotification:
		return message{
			title:    "meetsync - Test",
			body:     "🧪 Notification system test",
			tags:     []string{"meetsync", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

func (p Payload) text(key string) string {
	value, ok := p[key]
	if !ok || value == nil {
		return ""
	}
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case int:
		return strconv.Itoa(v)
	case error:
		return strings.TrimSpace(v.Error())
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
	if n.client == nil {
		return nil
	}

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
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
