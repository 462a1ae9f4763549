package workflow

import (
	"context"
	"fmt"
	"strings"

	"meetsync/internal/logging"
	"meetsync/internal/queue"
)

// StatusSummary represents lightweight workflow diagnostics.
type StatusSummary struct {
	Running  bool
	Online   bool
	LastErr  string
	LastFile string
	Health   queue.HealthSummary
	Counts   queue.Summary
}

// Status returns the latest workflow information.
func (m *Manager) Status(ctx context.Context) StatusSummary {
	m.mu.RLock()
	summary := StatusSummary{
		Running:  m.running,
		LastFile: m.lastFile,
	}
	if m.lastErr != nil {
		summary.LastErr = m.lastErr.Error()
	}
	m.mu.RUnlock()
	summary.Online = m.isOnline()

	counts, err := m.store.Summarize(ctx)
	if err != nil {
		m.logger.Warn("failed to read queue stats",
			logging.Error(err),
			logging.String(logging.FieldEventType, "queue_stats_failed"),
			logging.String(logging.FieldErrorHint, "check queue database access"),
			logging.String(logging.FieldImpact, "status omits counts"),
		)
		return summary
	}
	summary.Counts = counts
	if health, err := m.store.Health(ctx); err == nil {
		summary.Health = health
	}
	return summary
}

// Text renders the summary for a chat reply.
func (s StatusSummary) Text() string {
	var b strings.Builder
	state := "🟢 online"
	if !s.Online {
		state = "📴 offline"
	}
	fmt.Fprintf(&b, "📊 meetsync status (%s)\n", state)
	fmt.Fprintf(&b, "In flight: %d\nWaiting for you: %d\nQueued offline: %d\nPublished: %d\nFailed: %d\n",
		s.Health.InFlight, s.Health.Waiting, s.Health.Offline, s.Health.Published, s.Health.Failed)
	if pending := s.Counts.LogEntries[queue.LogPending]; pending > 0 {
		fmt.Fprintf(&b, "Log entries pending: %d\n", pending)
	}
	if review := s.Counts.Jobs[queue.JobAwaitingSpeakerReview]; review > 0 {
		fmt.Fprintf(&b, "Awaiting speaker review: %d\n", review)
	}
	if s.LastErr != "" {
		fmt.Fprintf(&b, "Last error: %s\n", s.LastErr)
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

func (m *Manager) setLastFile(name string) {
	m.mu.Lock()
	m.lastFile = name
	m.mu.Unlock()
}
