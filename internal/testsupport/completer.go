package testsupport

import (
	"context"
	"strings"
	"sync"
)

// CompleterCall records one completion request.
type CompleterCall struct {
	System string
	User   string
	JSON   bool
}

// Completer is a scripted llm.Completer. Responses are matched by the first
// key of Replies contained in the system prompt; Default answers the rest.
type Completer struct {
	mu    sync.Mutex
	calls []CompleterCall

	Replies map[string]string
	Default string
	Err     error
}

// NewCompleter returns a completer answering every request with reply.
func NewCompleter(reply string) *Completer {
	return &Completer{Default: reply, Replies: make(map[string]string)}
}

// On registers reply for system prompts containing substr.
func (c *Completer) On(substr, reply string) *Completer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Replies[substr] = reply
	return c
}

func (c *Completer) Complete(_ context.Context, system, user string) (string, error) {
	return c.answer(CompleterCall{System: system, User: user})
}

func (c *Completer) CompleteJSON(_ context.Context, system, user string) (string, error) {
	return c.answer(CompleterCall{System: system, User: user, JSON: true})
}

func (c *Completer) answer(call CompleterCall) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, call)
	if c.Err != nil {
		return "", c.Err
	}
	for substr, reply := range c.Replies {
		if strings.Contains(call.System, substr) {
			return reply, nil
		}
	}
	return c.Default, nil
}

// Calls returns the recorded requests.
func (c *Completer) Calls() []CompleterCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]CompleterCall(nil), c.calls...)
}

// SetErr changes the completion failure under the lock.
func (c *Completer) SetErr(err error) {
	c.mu.Lock()
	c.Err = err
	c.mu.Unlock()
}
