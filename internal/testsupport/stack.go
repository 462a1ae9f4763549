package testsupport

import (
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
	"meetsync/internal/transcription"
	"meetsync/internal/workflow"
)

// SampleTranscript is a two-speaker Scriberr transcript payload.
const SampleTranscript = `{"segments": [
	{"speaker": "SPEAKER_00", "text": "Hi, this is Alice.", "start": 0, "end": 2},
	{"speaker": "SPEAKER_01", "text": "Hey Alice, Bob here.", "start": 2.5, "end": 4}
]}`

// Stack is a fully wired pipeline backed by in-memory fakes.
type Stack struct {
	Config     *config.Config
	Store      *queue.Store
	Transport  *Transport
	Calendar   *CalendarSource
	Service    *TranscriptionService
	Completer  *Completer
	Sink       *LogSink
	Supervisor *transcription.Supervisor
	Publisher  *publication.Publisher
	Manager    *workflow.Manager
	Dispatcher *messaging.Dispatcher
}

// NewStack wires the workflow manager against fakes. The store is closed by
// t.Cleanup unless a caller takes ownership and closes it first.
func NewStack(t testing.TB, cfg *config.Config, events ...calendar.Event) *Stack {
	t.Helper()
	s := &Stack{
		Config:    cfg,
		Store:     MustOpenStore(t, cfg),
		Transport: NewTransport(),
		Calendar:  NewCalendarSource(events...),
		Service:   NewTranscriptionService(SampleTranscript),
		Completer: NewCompleter(""),
		Sink:      NewLogSink(),
	}
	s.Completer.On("diarization", `{"SPEAKER_00": "Alice", "SPEAKER_01": "Bob"}`)
	s.Completer.On("summarise", `{"meeting_type": "Sync", "summary": "Short sync."}`)

	logger := logging.NewNop()
	s.Supervisor = transcription.NewSupervisor(cfg, s.Store, s.Service, s.Completer, s.Transport, logger,
		transcription.WithPollInterval(5*time.Millisecond))
	builder := publication.NewBuilder(cfg, s.Sink, s.Sink, s.Completer, s.Supervisor.JobLink, logger)
	s.Publisher = publication.NewPublisher(cfg, s.Store, s.Sink, builder, logger)
	s.Manager = workflow.NewManager(cfg, workflow.Deps{
		Store:      s.Store,
		Resolver:   calendar.NewResolver(s.Calendar, cfg, logger),
		Sessions:   disambiguation.NewManager(s.Store, s.Transport, cfg.Location(), logger),
		Relocator:  relocate.New(cfg, logger, relocate.WithSpaceCheck(func(string) (uint64, error) { return 1 << 40, nil })),
		Supervisor: s.Supervisor,
		Publisher:  s.Publisher,
		Transport:  s.Transport,
	}, logger)
	s.Dispatcher = messaging.NewDispatcher(s.Transport, s.Store, s.Manager, cfg.Telegram.ChatID, logger,
		messaging.WithBackoff(time.Millisecond))
	return s
}
