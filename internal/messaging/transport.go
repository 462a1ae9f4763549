package messaging

import "context"

// Button is one inline keyboard button.
type Button struct {
	Text string
	Data string
}

// Keyboard is a grid of buttons, one slice per row. A nil keyboard removes
// the buttons of an existing message.
type Keyboard [][]Button

// Callback is a button press.
type Callback struct {
	ID        string
	ChatID    int64
	MessageID int64
	Data      string
}

// Message is an inbound text message.
type Message struct {
	ChatID           int64
	MessageID        int64
	ReplyToMessageID int64
	Text             string
}

// Update is one inbound event; exactly one of Callback and Message is set.
type Update struct {
	ID       int64
	Callback *Callback
	Message  *Message
}

// Transport sends prompts to the review chat and receives answers.
type Transport interface {
	SendText(ctx context.Context, text string) (int64, error)
	SendChoicePrompt(ctx context.Context, text string, keyboard Keyboard) (int64, error)
	SendFreeTextPrompt(ctx context.Context, text string) (int64, error)
	SendDocument(ctx context.Context, name string, content []byte, caption string) (int64, error)
	EditReplyMarkup(ctx context.Context, messageID int64, keyboard Keyboard) error
	AnswerCallback(ctx context.Context, callbackID, text string) error
	Updates(ctx context.Context, offset int64) ([]Update, error)
}
