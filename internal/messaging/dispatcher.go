package messaging

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"meetsync/internal/logging"
	"meetsync/internal/queue"
)

const (
	expiredButtonText = "⚠️ This button has expired. Re-add the file to start over."
	defaultBackoff    = 5 * time.Second
)

// Handler applies the action behind an inbound event.
type Handler interface {
	HandlePrompt(ctx context.Context, prompt *queue.Prompt, cb Callback) error
	HandleReply(ctx context.Context, reply *queue.PendingReply, msg Message) error
	HandleCommand(ctx context.Context, msg Message) error
}

// Dispatcher long-polls the transport and feeds a single consumer, so every
// inbound event is applied exactly once and in order.
type Dispatcher struct {
	transport Transport
	store     *queue.Store
	handler   Handler
	chatID    int64
	logger    *slog.Logger
	backoff   time.Duration
	buffer    int
}

// DispatcherOption customizes a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithBackoff sets the pause after a failed poll.
func WithBackoff(d time.Duration) DispatcherOption {
	return func(disp *Dispatcher) {
		disp.backoff = d
	}
}

// NewDispatcher constructs a dispatcher. Events from chats other than chatID
// are ignored when chatID is non-zero.
func NewDispatcher(transport Transport, store *queue.Store, handler Handler, chatID int64, logger *slog.Logger, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		transport: transport,
		store:     store,
		handler:   handler,
		chatID:    chatID,
		logger:    logging.NewComponentLogger(logger, "dispatcher"),
		backoff:   defaultBackoff,
		buffer:    32,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run polls for updates until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	events := make(chan Update, d.buffer)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(events)
		d.poll(ctx, events)
	}()

	for update := range events {
		d.Dispatch(ctx, update)
	}
	wg.Wait()
	return ctx.Err()
}

func (d *Dispatcher) poll(ctx context.Context, events chan<- Update) {
	var offset int64
	for ctx.Err() == nil {
		updates, err := d.transport.Updates(ctx, offset)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			d.logger.Debug("update poll failed", logging.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(d.backoff):
			}
			continue
		}
		for _, update := range updates {
			if update.ID >= offset {
				offset = update.ID + 1
			}
			select {
			case events <- update:
			case <-ctx.Done():
				return
			}
		}
	}
}

// Dispatch applies a single update.
func (d *Dispatcher) Dispatch(ctx context.Context, update Update) {
	switch {
	case update.Callback != nil:
		d.dispatchCallback(ctx, *update.Callback)
	case update.Message != nil:
		d.dispatchMessage(ctx, *update.Message)
	}
}

func (d *Dispatcher) allowed(chatID int64) bool {
	return d.chatID == 0 || chatID == d.chatID
}

func (d *Dispatcher) dispatchCallback(ctx context.Context, cb Callback) {
	if err := d.transport.AnswerCallback(ctx, cb.ID, ""); err != nil {
		d.logger.Debug("answer callback failed", logging.Error(err))
	}
	if !d.allowed(cb.ChatID) {
		d.logger.Debug("ignoring callback from foreign chat", logging.Int64("chat_id", cb.ChatID))
		return
	}

	token := strings.TrimSpace(cb.Data)
	prompt, err := d.store.GetPrompt(ctx, token)
	if errors.Is(err, queue.ErrNotFound) {
		logging.WarnWithContext(d.logger, "unknown callback token", "callback_unknown",
			logging.String("token", token),
			logging.String(logging.FieldImpact, "button press ignored"),
			logging.String(logging.FieldErrorHint, "the prompt predates the current database"),
		)
		d.notify(ctx, expiredButtonText)
		return
	}
	if err != nil {
		logging.ErrorWithContext(d.logger, "load callback token failed", "callback_lookup_failed", logging.Error(err))
		return
	}

	if err := d.store.MarkPromptUsed(ctx, token); err != nil {
		if errors.Is(err, queue.ErrConflict) {
			d.logger.Info("callback already handled",
				logging.Args(append(logging.DecisionAttrs("callback_dedupe", "ignored", "token already used"),
					logging.String("token", token),
					logging.String("action", string(prompt.Action)),
				)...)...,
			)
			return
		}
		logging.ErrorWithContext(d.logger, "consume callback token failed", "callback_consume_failed", logging.Error(err))
		return
	}

	if err := d.handler.HandlePrompt(ctx, prompt, cb); err != nil {
		logging.ErrorWithContext(d.logger, "callback action failed", "callback_failed",
			logging.String("action", string(prompt.Action)),
			logging.String(logging.FieldJobID, prompt.JobID),
			logging.String(logging.FieldCorrelationID, prompt.SessionID),
			logging.Error(err),
		)
		d.notify(ctx, "❌ "+err.Error())
	}
}

func (d *Dispatcher) dispatchMessage(ctx context.Context, msg Message) {
	if !d.allowed(msg.ChatID) {
		return
	}
	if msg.ReplyToMessageID != 0 {
		reply, err := d.store.GetPendingReply(ctx, msg.ChatID, msg.ReplyToMessageID)
		switch {
		case err == nil:
			if err := d.store.DeletePendingReply(ctx, msg.ChatID, msg.ReplyToMessageID); err != nil {
				logging.ErrorWithContext(d.logger, "clear pending reply failed", "reply_clear_failed", logging.Error(err))
				return
			}
			if err := d.handler.HandleReply(ctx, reply, msg); err != nil {
				logging.ErrorWithContext(d.logger, "reply action failed", "reply_failed",
					logging.String(logging.FieldJobID, reply.JobID),
					logging.Error(err),
				)
				d.notify(ctx, "❌ "+err.Error())
			}
			return
		case !errors.Is(err, queue.ErrNotFound):
			logging.ErrorWithContext(d.logger, "load pending reply failed", "reply_lookup_failed", logging.Error(err))
			return
		}
	}
	if strings.HasPrefix(strings.TrimSpace(msg.Text), "/") {
		if err := d.handler.HandleCommand(ctx, msg); err != nil {
			d.notify(ctx, "⚠️ "+err.Error())
		}
	}
}

func (d *Dispatcher) notify(ctx context.Context, text string) {
	if _, err := d.transport.SendText(ctx, text); err != nil {
		d.logger.Debug("notify chat failed", logging.Error(err))
	}
}
