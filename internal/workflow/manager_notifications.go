package workflow

import (
	"context"
	"errors"

	"meetsync/internal/logging"
	"meetsync/internal/notifications"
)

// say posts a plain chat message. Delivery failures only reach the debug log.
func (m *Manager) say(ctx context.Context, text string) {
	if m.transport == nil {
		return
	}
	if _, err := m.transport.SendText(ctx, text); err != nil {
		if errors.Is(err, context.Canceled) {
			m.logger.Debug("daemon shutting down, could not send chat message")
		} else {
			m.logger.Debug("chat message not delivered", logging.Error(err))
		}
	}
}

func (m *Manager) notify(ctx context.Context, event notifications.Event, payload notifications.Payload) {
	if m.notifier == nil {
		return
	}
	if err := m.notifier.Publish(ctx, event, payload); err != nil {
		if errors.Is(err, context.Canceled) {
			m.logger.Debug("daemon shutting down, could not send notification", logging.String("event", string(event)))
		} else {
			m.logger.Debug("notification failed", logging.String("event", string(event)), logging.Error(err))
		}
	}
}

func (m *Manager) notifyError(ctx context.Context, label string, stepErr error) {
	m.notify(ctx, notifications.EventError, notifications.Payload{
		"error":   stepErr,
		"context": label,
	})
}

// HandleDisconnect reports a lost connection.
func (m *Manager) HandleDisconnect(ctx context.Context) {
	m.notify(ctx, notifications.EventOffline, nil)
}
