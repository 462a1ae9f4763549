package disambiguation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"meetsync/internal/calendar"
	"meetsync/internal/logging"
	"meetsync/internal/messaging"
	"meetsync/internal/queue"
)

// MaxChoices is the number of candidate buttons on a choice prompt. Further
// candidates are listed in the prompt text only.
const MaxChoices = 5

const maxButtonText = 60

var (
	// ErrAlreadyHandled is returned to every caller that lost the race to
	// close a session.
	ErrAlreadyHandled = errors.New("session already handled")
	// ErrInvalidChoice is returned for an option index outside the snapshot.
	ErrInvalidChoice = errors.New("invalid choice")
)

// Manager opens and closes disambiguation sessions.
type Manager struct {
	store     *queue.Store
	transport messaging.Transport
	prompts   *messaging.Prompts
	loc       *time.Location
	logger    *slog.Logger
}

// NewManager constructs a session manager. Candidate times are shown in loc.
func NewManager(store *queue.Store, transport messaging.Transport, loc *time.Location, logger *slog.Logger) *Manager {
	if loc == nil {
		loc = time.UTC
	}
	return &Manager{
		store:     store,
		transport: transport,
		prompts:   messaging.NewPrompts(store),
		loc:       loc,
		logger:    logging.NewComponentLogger(logger, "disambiguation"),
	}
}

// Snapshot converts calendar events into the candidate form stored with a
// session.
func Snapshot(events []calendar.Event) []queue.Candidate {
	out := make([]queue.Candidate, 0, len(events))
	for _, event := range events {
		out = append(out, queue.Candidate{
			EventID:     event.ID,
			Title:       event.Title,
			Start:       event.Start,
			End:         event.End,
			Description: event.Description,
		})
	}
	return out
}

// Open starts a session for asset and sends its prompt. An asset that
// already has an open session gets queue.ErrOpenSession.
func (m *Manager) Open(ctx context.Context, asset *queue.Asset, kind queue.SessionKind, candidates []calendar.Event) (*queue.Session, error) {
	session := &queue.Session{
		ID:         uuid.NewString(),
		AssetID:    asset.ID,
		Kind:       kind,
		Candidates: Snapshot(candidates),
	}
	if err := m.store.OpenSession(ctx, session); err != nil {
		return nil, err
	}
	logger := m.sessionLogger(session)

	text, keyboard, err := m.buildPrompt(ctx, asset, session)
	if err == nil {
		var messageID int64
		messageID, err = m.transport.SendChoicePrompt(ctx, text, keyboard)
		if err == nil {
			session.PromptMessageID = messageID
			err = m.store.SetSessionPrompt(ctx, session.ID, messageID)
		}
	}
	if err != nil {
		if expireErr := m.store.TransitionSession(ctx, session.ID, queue.SessionAwaitingChoice, queue.SessionExpired, nil); expireErr != nil {
			logger.Debug("expire unsent session failed", logging.Error(expireErr))
		}
		return nil, fmt.Errorf("send disambiguation prompt: %w", err)
	}

	logger.Info("disambiguation prompt sent",
		logging.String("kind", string(kind)),
		logging.Int("candidates", len(session.Candidates)),
		logging.Int64("message_id", session.PromptMessageID),
	)
	return session, nil
}

func (m *Manager) buildPrompt(ctx context.Context, asset *queue.Asset, session *queue.Session) (string, messaging.Keyboard, error) {
	name := filepath.Base(asset.SourcePath)
	var (
		b        strings.Builder
		keyboard messaging.Keyboard
	)
	switch session.Kind {
	case queue.SessionNoMeeting:
		fmt.Fprintf(&b, "❓ No calendar event found for %s", name)
		if asset.RecordedAt != nil {
			fmt.Fprintf(&b, " (%s)", asset.RecordedAt.Format("2006-01-02 15:04"))
		}
		b.WriteString(".\nRetry the lookup after updating the calendar, or cancel.")
		retry, err := m.prompts.Button(ctx, "🔄 Retry", queue.Prompt{Action: queue.ActionRetry, SessionID: session.ID})
		if err != nil {
			return "", nil, err
		}
		cancel, err := m.prompts.Button(ctx, "❌ Cancel", queue.Prompt{Action: queue.ActionCancel, SessionID: session.ID})
		if err != nil {
			return "", nil, err
		}
		keyboard = messaging.Keyboard{{retry, cancel}}
	default:
		fmt.Fprintf(&b, "📅 Several meetings match %s.\nWhich one was recorded?", name)
		for i, candidate := range session.Candidates {
			if i >= MaxChoices {
				break
			}
			button, err := m.prompts.Button(ctx, m.label(candidate), queue.Prompt{
				Action:      queue.ActionSelect,
				SessionID:   session.ID,
				OptionIndex: i,
			})
			if err != nil {
				return "", nil, err
			}
			keyboard = append(keyboard, []messaging.Button{button})
		}
		if extra := len(session.Candidates) - MaxChoices; extra > 0 {
			fmt.Fprintf(&b, "\n\n%d more on this date:", extra)
			for _, candidate := range session.Candidates[MaxChoices:] {
				fmt.Fprintf(&b, "\n• %s", m.label(candidate))
			}
		}
		cancel, err := m.prompts.Button(ctx, "❌ Cancel", queue.Prompt{Action: queue.ActionCancel, SessionID: session.ID})
		if err != nil {
			return "", nil, err
		}
		keyboard = append(keyboard, []messaging.Button{cancel})
	}
	return b.String(), keyboard, nil
}

func (m *Manager) label(candidate queue.Candidate) string {
	text := candidate.Start.In(m.loc).Format("15:04") + " " + candidate.Title
	if utf8.RuneCountInString(text) <= maxButtonText {
		return text
	}
	runes := []rune(text)
	return string(runes[:maxButtonText-1]) + "…"
}

// Resolve records the chosen candidate and returns it. Only the first
// caller for a session wins.
func (m *Manager) Resolve(ctx context.Context, correlationID string, optionIndex int) (*queue.Session, queue.Candidate, error) {
	session, err := m.store.GetSession(ctx, correlationID)
	if err != nil {
		return nil, queue.Candidate{}, err
	}
	if session.Kind != queue.SessionChoice || optionIndex < 0 || optionIndex >= len(session.Candidates) {
		return nil, queue.Candidate{}, fmt.Errorf("session %s option %d: %w", correlationID, optionIndex, ErrInvalidChoice)
	}
	if err := m.close(ctx, session, queue.SessionResolved, &optionIndex); err != nil {
		return nil, queue.Candidate{}, err
	}
	chosen := session.Candidates[optionIndex]
	m.sessionLogger(session).Info("meeting chosen",
		logging.Args(append(logging.DecisionAttrs("meeting_choice", "resolved", "human selection"),
			logging.String("title", chosen.Title),
			logging.Int("option", optionIndex),
		)...)...,
	)
	return session, chosen, nil
}

// Cancel closes the session without a choice.
func (m *Manager) Cancel(ctx context.Context, correlationID string) (*queue.Session, error) {
	session, err := m.store.GetSession(ctx, correlationID)
	if err != nil {
		return nil, err
	}
	if err := m.close(ctx, session, queue.SessionCancelled, nil); err != nil {
		return nil, err
	}
	m.sessionLogger(session).Info("disambiguation cancelled",
		logging.Args(logging.DecisionAttrs("meeting_choice", "cancelled", "human cancelled")...)...,
	)
	return session, nil
}

// Retry expires a no-meeting session so the asset can be looked up again.
func (m *Manager) Retry(ctx context.Context, correlationID string) (*queue.Session, error) {
	session, err := m.store.GetSession(ctx, correlationID)
	if err != nil {
		return nil, err
	}
	if err := m.close(ctx, session, queue.SessionExpired, nil); err != nil {
		return nil, err
	}
	m.sessionLogger(session).Info("calendar lookup retry requested",
		logging.Args(logging.DecisionAttrs("meeting_choice", "retry", "human retry")...)...,
	)
	return session, nil
}

// ExpireForAsset closes any open session of an asset and strips its
// buttons. It returns the number of sessions closed.
func (m *Manager) ExpireForAsset(ctx context.Context, assetID int64) (int64, error) {
	open, err := m.store.OpenSessionForAsset(ctx, assetID)
	if err != nil && !errors.Is(err, queue.ErrNotFound) {
		return 0, err
	}
	n, err := m.store.ExpireSessionsForAsset(ctx, assetID)
	if err != nil {
		return 0, err
	}
	if open != nil && n > 0 {
		m.clearKeyboard(ctx, open)
	}
	return n, nil
}

func (m *Manager) close(ctx context.Context, session *queue.Session, to queue.SessionState, chosen *int) error {
	err := m.store.TransitionSession(ctx, session.ID, queue.SessionAwaitingChoice, to, chosen)
	if errors.Is(err, queue.ErrConflict) {
		m.sessionLogger(session).Info("session already handled",
			logging.Args(logging.DecisionAttrs("session_transition", "ignored", "lost race to "+string(to))...)...,
		)
		return fmt.Errorf("session %s: %w", session.ID, ErrAlreadyHandled)
	}
	if err != nil {
		return err
	}
	session.State = to
	session.ChosenIndex = chosen
	m.clearKeyboard(ctx, session)
	return nil
}

func (m *Manager) clearKeyboard(ctx context.Context, session *queue.Session) {
	if session.PromptMessageID == 0 {
		return
	}
	if err := m.transport.EditReplyMarkup(ctx, session.PromptMessageID, nil); err != nil {
		logging.WarnWithContext(m.sessionLogger(session), "remove prompt buttons failed", "prompt_cleanup_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "stale buttons remain visible but are inert"),
			logging.String(logging.FieldErrorHint, "check Telegram connectivity"),
		)
	}
}

func (m *Manager) sessionLogger(session *queue.Session) *slog.Logger {
	return m.logger.With(
		logging.String(logging.FieldCorrelationID, session.ID),
		logging.Int64(logging.FieldAssetID, session.AssetID),
	)
}
