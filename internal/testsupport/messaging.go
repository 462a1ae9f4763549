package testsupport

import (
	"context"
	"strings"
	"sync"

	"meetsync/internal/messaging"
)

// SentMessage is a message recorded by Transport.
type SentMessage struct {
	ID        int64
	Kind      string
	Text      string
	Keyboard  messaging.Keyboard
	Document  string
	Content   []byte
	FreeReply bool
}

// Transport is an in-memory messaging.Transport.
type Transport struct {
	mu       sync.Mutex
	nextID   int64
	sent     []SentMessage
	edits    map[int64]messaging.Keyboard
	answered []string
	inbound  chan messaging.Update
	SendErr  error
}

// NewTransport returns an empty transport.
func NewTransport() *Transport {
	return &Transport{
		nextID:  100,
		edits:   make(map[int64]messaging.Keyboard),
		inbound: make(chan messaging.Update, 64),
	}
}

func (t *Transport) record(msg SentMessage) (int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.SendErr != nil {
		return 0, t.SendErr
	}
	t.nextID++
	msg.ID = t.nextID
	t.sent = append(t.sent, msg)
	return msg.ID, nil
}

func (t *Transport) SendText(_ context.Context, text string) (int64, error) {
	return t.record(SentMessage{Kind: "text", Text: text})
}

func (t *Transport) SendChoicePrompt(_ context.Context, text string, keyboard messaging.Keyboard) (int64, error) {
	return t.record(SentMessage{Kind: "choice", Text: text, Keyboard: keyboard})
}

func (t *Transport) SendFreeTextPrompt(_ context.Context, text string) (int64, error) {
	return t.record(SentMessage{Kind: "free_text", Text: text, FreeReply: true})
}

func (t *Transport) SendDocument(_ context.Context, name string, content []byte, caption string) (int64, error) {
	return t.record(SentMessage{Kind: "document", Text: caption, Document: name, Content: append([]byte(nil), content...)})
}

func (t *Transport) EditReplyMarkup(_ context.Context, messageID int64, keyboard messaging.Keyboard) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.edits[messageID] = keyboard
	return nil
}

func (t *Transport) AnswerCallback(_ context.Context, callbackID, _ string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.answered = append(t.answered, callbackID)
	return nil
}

// Updates returns queued inbound updates, blocking until one arrives or ctx
// ends.
func (t *Transport) Updates(ctx context.Context, _ int64) ([]messaging.Update, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case update := <-t.inbound:
		return []messaging.Update{update}, nil
	}
}

// Push queues an inbound update.
func (t *Transport) Push(update messaging.Update) {
	t.inbound <- update
}

// Sent returns a copy of every recorded message.
func (t *Transport) Sent() []SentMessage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]SentMessage(nil), t.sent...)
}

// Last returns the most recent message of kind, or false.
func (t *Transport) Last(kind string) (SentMessage, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := len(t.sent) - 1; i >= 0; i-- {
		if t.sent[i].Kind == kind {
			return t.sent[i], true
		}
	}
	return SentMessage{}, false
}

// Count returns how many messages of kind were sent and contain substr.
func (t *Transport) Count(kind, substr string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, msg := range t.sent {
		if msg.Kind == kind && strings.Contains(msg.Text, substr) {
			n++
		}
	}
	return n
}

// Edited reports the keyboard a message was edited to, if any.
func (t *Transport) Edited(messageID int64) (messaging.Keyboard, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	kb, ok := t.edits[messageID]
	return kb, ok
}

// Answered returns the acknowledged callback ids.
func (t *Transport) Answered() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.answered...)
}

// ButtonData finds the callback data of the first button whose text
// contains label in msg.
func ButtonData(msg SentMessage, label string) (string, bool) {
	for _, row := range msg.Keyboard {
		for _, button := range row {
			if strings.Contains(button.Text, label) {
				return button.Data, true
			}
		}
	}
	return "", false
}

// Press builds a callback update for a button.
func Press(chatID, messageID int64, data string) messaging.Update {
	return messaging.Update{Callback: &messaging.Callback{
		ID:        "cb-" + data,
		ChatID:    chatID,
		MessageID: messageID,
		Data:      data,
	}}
}

// Reply builds a text reply update.
func Reply(chatID, replyTo int64, text string) messaging.Update {
	return messaging.Update{Message: &messaging.Message{
		ChatID:           chatID,
		MessageID:        replyTo + 1000,
		ReplyToMessageID: replyTo,
		Text:             text,
	}}
}
