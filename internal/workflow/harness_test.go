package workflow_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"meetsync/internal/calendar"
	"meetsync/internal/config"
	"meetsync/internal/disambiguation"
	"meetsync/internal/logging"
	"meetsync/internal/messaging"
	"meetsync/internal/publication"
	"meetsync/internal/queue"
	"meetsync/internal/relocate"
	"meetsync/internal/testsupport"
	"meetsync/internal/transcription"
	"meetsync/internal/workflow"
)

const sampleTranscript = `{"segments": [
	{"speaker": "SPEAKER_00", "text": "Hi, this is Alice.", "start": 0, "end": 2},
	{"speaker": "SPEAKER_01", "text": "Hey Alice, Bob here.", "start": 2.5, "end": 4},
	{"speaker": "SPEAKER_00", "text": "Let's review the launch plan.", "start": 61, "end": 63}
]}`

type harness struct {
	cfg        *config.Config
	store      *queue.Store
	transport  *testsupport.Transport
	calendar   *testsupport.CalendarSource
	service    *testsupport.TranscriptionService
	completer  *testsupport.Completer
	sink       *testsupport.LogSink
	supervisor *transcription.Supervisor
	manager    *workflow.Manager
	dispatcher *messaging.Dispatcher

	online atomic.Bool
	ctx    context.Context
	cancel context.CancelFunc
}

func newHarness(t *testing.T, events ...calendar.Event) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	h := &harness{
		cfg:       cfg,
		store:     testsupport.MustOpenStore(t, cfg),
		transport: testsupport.NewTransport(),
		calendar:  testsupport.NewCalendarSource(events...),
		service:   testsupport.NewTranscriptionService(sampleTranscript),
		completer: testsupport.NewCompleter(""),
		sink:      testsupport.NewLogSink(),
	}
	h.online.Store(true)
	h.completer.On("diarization", `{"SPEAKER_00": "Alice", "SPEAKER_01": "Bob"}`)
	h.completer.On("summarise", `{"meeting_type": "Planning", "summary": "Reviewed the launch plan."}`)
	if err := os.MkdirAll(cfg.Paths.WatchDir, 0o755); err != nil {
		t.Fatalf("mkdir watch: %v", err)
	}

	logger := logging.NewNop()
	h.supervisor = transcription.NewSupervisor(cfg, h.store, h.service, h.completer, h.transport, logger,
		transcription.WithPollInterval(5*time.Millisecond))
	builder := publication.NewBuilder(cfg, h.sink, h.sink, h.completer, h.supervisor.JobLink, logger)
	publisher := publication.NewPublisher(cfg, h.store, h.sink, builder, logger, publication.WithOnline(h.isOnline))
	h.manager = workflow.NewManager(cfg, workflow.Deps{
		Store:      h.store,
		Resolver:   calendar.NewResolver(h.calendar, cfg, logger),
		Sessions:   disambiguation.NewManager(h.store, h.transport, cfg.Location(), logger),
		Relocator:  relocate.New(cfg, logger, relocate.WithSpaceCheck(func(string) (uint64, error) { return 1 << 40, nil })),
		Supervisor: h.supervisor,
		Publisher:  publisher,
		Transport:  h.transport,
		Online:     h.isOnline,
	}, logger)
	h.dispatcher = messaging.NewDispatcher(h.transport, h.store, h.manager, cfg.Telegram.ChatID, logger,
		messaging.WithBackoff(time.Millisecond))
	h.ctx, h.cancel = context.WithCancel(context.Background())
	t.Cleanup(h.stop)
	return h
}

func (h *harness) isOnline() bool { return h.online.Load() }

func (h *harness) start(t *testing.T) {
	t.Helper()
	if err := h.manager.Start(h.ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	go func() { _ = h.dispatcher.Run(h.ctx) }()
}

func (h *harness) stop() {
	h.cancel()
	h.manager.Stop()
}

func (h *harness) loc() *time.Location { return h.cfg.Location() }

// drop writes a recording into the watch folder and offers it to intake.
func (h *harness) drop(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(h.cfg.Paths.WatchDir, name)
	testsupport.WriteFile(t, path, 2048)
	if err := h.manager.Offer(h.ctx, path); err != nil {
		t.Fatalf("Offer: %v", err)
	}
	return path
}

func (h *harness) asset(t *testing.T, path string) *queue.Asset {
	t.Helper()
	asset, err := h.store.FindAssetByPath(context.Background(), path)
	if err != nil {
		t.Fatalf("FindAssetByPath: %v", err)
	}
	return asset
}

func (h *harness) waitStatus(t *testing.T, path string, want queue.AssetStatus) *queue.Asset {
	t.Helper()
	var asset *queue.Asset
	eventually(t, "asset "+string(want), func() bool {
		current, err := h.store.FindAssetByPath(context.Background(), path)
		if err != nil {
			return false
		}
		asset = current
		return current.Status == want
	})
	return asset
}

func (h *harness) waitReview(t *testing.T, jobID string) testsupport.SentMessage {
	t.Helper()
	var job *queue.Job
	eventually(t, "speaker review", func() bool {
		current, err := h.store.GetJob(context.Background(), jobID)
		if err != nil {
			return false
		}
		job = current
		return current.Phase == queue.JobAwaitingSpeakerReview && current.ReviewMessageID != 0
	})
	return h.message(t, job.ReviewMessageID)
}

func (h *harness) message(t *testing.T, id int64) testsupport.SentMessage {
	t.Helper()
	for _, msg := range h.transport.Sent() {
		if msg.ID == id {
			return msg
		}
	}
	t.Fatalf("message %d not sent", id)
	return testsupport.SentMessage{}
}

func (h *harness) lastWith(t *testing.T, kind, substr string) testsupport.SentMessage {
	t.Helper()
	var found testsupport.SentMessage
	eventually(t, kind+" message containing "+substr, func() bool {
		sent := h.transport.Sent()
		for i := len(sent) - 1; i >= 0; i-- {
			if sent[i].Kind == kind && strings.Contains(sent[i].Text, substr) {
				found = sent[i]
				return true
			}
		}
		return false
	})
	return found
}

func (h *harness) press(t *testing.T, msg testsupport.SentMessage, label string) {
	t.Helper()
	data, ok := testsupport.ButtonData(msg, label)
	if !ok {
		t.Fatalf("button %q not found in %q", label, msg.Text)
	}
	h.transport.Push(testsupport.Press(h.cfg.Telegram.ChatID, msg.ID, data))
}

func (h *harness) command(text string) {
	h.transport.Push(messaging.Update{Message: &messaging.Message{
		ChatID:    h.cfg.Telegram.ChatID,
		MessageID: time.Now().UnixNano(),
		Text:      text,
	}})
}

// finalizedWithoutEntry leaves a transcribing asset whose job reached
// finalized without a log entry, as after a crash right after finalizing.
func (h *harness) finalizedWithoutEntry(t *testing.T, jobID string) *queue.Asset {
	t.Helper()
	ctx := context.Background()
	asset := testsupport.NewAsset(t, h.store, h.cfg, "2026-01-22_14-26-31.mp4")
	testsupport.MoveAsset(t, h.store, asset, queue.AssetQueuedOffline)
	if err := h.store.TransitionAsset(ctx, asset.ID, queue.AssetQueuedOffline, queue.AssetTranscribing, queue.AssetUpdate{JobID: &jobID}); err != nil {
		t.Fatalf("TransitionAsset: %v", err)
	}
	if err := h.store.CreateJob(ctx, &queue.Job{
		ID:           jobID,
		AssetID:      asset.ID,
		MeetingTitle: "Launch Review",
		VideoPath:    filepath.Join(h.cfg.Paths.OutputDir, "Launch Review_2026-01-22_14-26-31.mp4"),
	}); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	blocks := []queue.Block{{Speaker: "SPEAKER_00", Text: "Launch plan looks good.", Start: 0, End: 3}}
	if err := h.store.SetTranscript(ctx, jobID, blocks, map[string]string{"SPEAKER_00": "Alice"}); err != nil {
		t.Fatalf("SetTranscript: %v", err)
	}
	for _, step := range [][2]queue.JobPhase{
		{queue.JobDraft, queue.JobAwaitingSpeakerReview},
		{queue.JobAwaitingSpeakerReview, queue.JobFinalizing},
		{queue.JobFinalizing, queue.JobFinalized},
	} {
		if err := h.store.TransitionJob(ctx, jobID, step[0], step[1], ""); err != nil {
			t.Fatalf("TransitionJob %s -> %s: %v", step[0], step[1], err)
		}
	}
	asset.Status = queue.AssetTranscribing
	asset.JobID = jobID
	return asset
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
