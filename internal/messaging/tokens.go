package messaging

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"meetsync/internal/queue"
)

var (
	entropyMu sync.Mutex
	entropy   io.Reader = ulid.Monotonic(rand.Reader, 0)
)

// NewToken returns a fresh callback token.
func NewToken() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// Prompts persists button tokens.
type Prompts struct {
	store *queue.Store
}

// NewPrompts wraps store.
func NewPrompts(store *queue.Store) *Prompts {
	return &Prompts{store: store}
}

// Button stores prompt under a fresh token and returns a button carrying it.
func (p *Prompts) Button(ctx context.Context, text string, prompt queue.Prompt) (Button, error) {
	prompt.Token = NewToken()
	if err := p.store.SavePrompt(ctx, &prompt); err != nil {
		return Button{}, fmt.Errorf("save prompt token: %w", err)
	}
	return Button{Text: text, Data: prompt.Token}, nil
}
