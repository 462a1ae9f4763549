package messaging_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"meetsync/internal/logging"
	"meetsync/internal/messaging"
	"meetsync/internal/queue"
	"meetsync/internal/testsupport"
)

type recordingHandler struct {
	mu       sync.Mutex
	prompts  []queue.Prompt
	replies  []string
	commands []string
	err      error
}

func (h *recordingHandler) HandlePrompt(_ context.Context, prompt *queue.Prompt, _ messaging.Callback) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.prompts = append(h.prompts, *prompt)
	return h.err
}

func (h *recordingHandler) HandleReply(_ context.Context, reply *queue.PendingReply, msg messaging.Message) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.replies = append(h.replies, reply.SpeakerSlot+"="+msg.Text)
	return nil
}

func (h *recordingHandler) HandleCommand(_ context.Context, msg messaging.Message) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.commands = append(h.commands, msg.Text)
	return nil
}

func (h *recordingHandler) promptCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.prompts)
}

func setup(t *testing.T) (*queue.Store, *testsupport.Transport, *recordingHandler, *messaging.Dispatcher) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	transport := testsupport.NewTransport()
	handler := &recordingHandler{}
	disp := messaging.NewDispatcher(transport, store, handler, cfg.Telegram.ChatID, logging.NewNop())
	return store, transport, handler, disp
}

func TestTokensAreUniqueAndOrdered(t *testing.T) {
	seen := make(map[string]struct{})
	prev := ""
	for i := 0; i < 100; i++ {
		token := messaging.NewToken()
		if len(token) != 26 {
			t.Fatalf("token %q has length %d", token, len(token))
		}
		if _, ok := seen[token]; ok {
			t.Fatalf("duplicate token %q", token)
		}
		if token <= prev {
			t.Fatalf("tokens not monotonic: %q after %q", token, prev)
		}
		seen[token] = struct{}{}
		prev = token
	}
}

func TestCallbackTokenHonouredOnce(t *testing.T) {
	store, transport, handler, disp := setup(t)
	ctx := context.Background()

	button, err := messaging.NewPrompts(store).Button(ctx, "Finalize", queue.Prompt{Action: queue.ActionFinalize, JobID: "job-1"})
	if err != nil {
		t.Fatalf("Button: %v", err)
	}

	disp.Dispatch(ctx, testsupport.Press(42, 7, button.Data))
	disp.Dispatch(ctx, testsupport.Press(42, 7, button.Data))

	if handler.promptCount() != 1 {
		t.Fatalf("handler ran %d times, want 1", handler.promptCount())
	}
	if handler.prompts[0].Action != queue.ActionFinalize || handler.prompts[0].JobID != "job-1" {
		t.Fatalf("unexpected prompt: %+v", handler.prompts[0])
	}
	if got := len(transport.Answered()); got != 2 {
		t.Fatalf("answered %d callbacks, want 2", got)
	}
}

func TestConcurrentPressesHaveOneWinner(t *testing.T) {
	store, _, handler, disp := setup(t)
	ctx := context.Background()
	button, err := messaging.NewPrompts(store).Button(ctx, "Pick", queue.Prompt{Action: queue.ActionSelect, SessionID: "s-1"})
	if err != nil {
		t.Fatalf("Button: %v", err)
	}
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			disp.Dispatch(ctx, testsupport.Press(42, 7, button.Data))
		}()
	}
	wg.Wait()
	if handler.promptCount() != 1 {
		t.Fatalf("handler ran %d times, want 1", handler.promptCount())
	}
}

func TestUnknownTokenNotifiesExpiry(t *testing.T) {
	_, transport, handler, disp := setup(t)
	disp.Dispatch(context.Background(), testsupport.Press(42, 7, "01HZZZZZZZZZZZZZZZZZZZZZZZ"))
	if handler.promptCount() != 0 {
		t.Fatal("handler should not run for unknown token")
	}
	if transport.Count("text", "expired") != 1 {
		t.Fatalf("expected expiry notice, sent=%+v", transport.Sent())
	}
}

func TestForeignChatIgnored(t *testing.T) {
	store, _, handler, disp := setup(t)
	ctx := context.Background()
	button, _ := messaging.NewPrompts(store).Button(ctx, "Cancel", queue.Prompt{Action: queue.ActionCancel, SessionID: "s-1"})
	disp.Dispatch(ctx, testsupport.Press(999, 7, button.Data))
	if handler.promptCount() != 0 {
		t.Fatal("callback from another chat was handled")
	}
	// The token is still usable from the configured chat.
	disp.Dispatch(ctx, testsupport.Press(42, 7, button.Data))
	if handler.promptCount() != 1 {
		t.Fatal("callback from configured chat was not handled")
	}
}

func TestHandlerErrorIsReported(t *testing.T) {
	store, transport, handler, disp := setup(t)
	ctx := context.Background()
	handler.err = errors.New("scriberr unavailable")
	button, _ := messaging.NewPrompts(store).Button(ctx, "Finalize", queue.Prompt{Action: queue.ActionFinalize, JobID: "job-1"})
	disp.Dispatch(ctx, testsupport.Press(42, 7, button.Data))
	if transport.Count("text", "scriberr unavailable") != 1 {
		t.Fatalf("expected error notice, sent=%+v", transport.Sent())
	}
}

func TestRepliesRouteToPendingSpeaker(t *testing.T) {
	store, _, handler, disp := setup(t)
	ctx := context.Background()
	if err := store.SavePendingReply(ctx, queue.PendingReply{ChatID: 42, MessageID: 55, JobID: "job-1", SpeakerSlot: "SPEAKER_01"}); err != nil {
		t.Fatalf("SavePendingReply: %v", err)
	}
	disp.Dispatch(ctx, testsupport.Reply(42, 55, "Dana"))
	disp.Dispatch(ctx, testsupport.Reply(42, 55, "Dana again"))
	disp.Dispatch(ctx, messaging.Update{Message: &messaging.Message{ChatID: 42, MessageID: 90, Text: "/name job-1 SPEAKER_00 Alex"}})
	disp.Dispatch(ctx, messaging.Update{Message: &messaging.Message{ChatID: 42, MessageID: 91, Text: "hello"}})

	handler.mu.Lock()
	defer handler.mu.Unlock()
	if len(handler.replies) != 1 || handler.replies[0] != "SPEAKER_01=Dana" {
		t.Fatalf("replies = %v", handler.replies)
	}
	if len(handler.commands) != 1 {
		t.Fatalf("commands = %v", handler.commands)
	}
}

func TestRunConsumesPolledUpdates(t *testing.T) {
	store, transport, handler, disp := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	button, _ := messaging.NewPrompts(store).Button(ctx, "Retry", queue.Prompt{Action: queue.ActionRetry, SessionID: "s-9"})
	done := make(chan error, 1)
	go func() { done <- disp.Run(ctx) }()

	transport.Push(testsupport.Press(42, 3, button.Data))
	deadline := time.Now().Add(5 * time.Second)
	for handler.promptCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if handler.promptCount() != 1 {
		t.Fatal("update was not dispatched")
	}
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop")
	}
}
