package publication_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"meetsync/internal/config"
	"meetsync/internal/logging"
	"meetsync/internal/publication"
	"meetsync/internal/queue"
	"meetsync/internal/services"
	"meetsync/internal/testsupport"
)

type fixture struct {
	cfg       *config.Config
	store     *queue.Store
	sink      *testsupport.LogSink
	completer *testsupport.Completer
	publisher *publication.Publisher

	mu     sync.Mutex
	online bool
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithTimezoneOffset(3))
	f := &fixture{
		cfg:       cfg,
		store:     testsupport.MustOpenStore(t, cfg),
		sink:      testsupport.NewLogSink(),
		completer: testsupport.NewCompleter(""),
		online:    true,
	}
	f.completer.On("summarise", `{"meeting_type": "Standup", "summary": "Reviewed the week."}`)
	f.sink.ProjectRows = [][]string{{"Apollo", "launch, rocket"}, {"Zeus", "billing, invoices"}}
	builder := publication.NewBuilder(cfg, f.sink, f.sink, f.completer,
		func(id string) string { return "http://scriberr.test/transcription/" + id }, logging.NewNop())
	f.publisher = publication.NewPublisher(cfg, f.store, f.sink, builder, logging.NewNop(),
		publication.WithOnline(f.isOnline))
	return f
}

func (f *fixture) isOnline() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.online
}

func (f *fixture) setOnline(v bool) {
	f.mu.Lock()
	f.online = v
	f.mu.Unlock()
}

func (f *fixture) finalizedJob(t *testing.T, id, text string) *queue.Job {
	t.Helper()
	ctx := context.Background()
	start := time.Date(2026, 1, 22, 11, 26, 31, 0, time.UTC)
	job := &queue.Job{
		ID:           id,
		MeetingTitle: "Design Review",
		MeetingStart: &start,
		VideoPath:    filepath.Join(f.cfg.Paths.OutputDir, "Design Review_2026-01-22 14-26-31.mp4"),
	}
	require.NoError(t, f.store.CreateJob(ctx, job))
	blocks := []queue.Block{
		{Speaker: "SPEAKER_00", Text: "Morning. " + text, Start: 0, End: 4},
		{Speaker: "SPEAKER_01", Text: "Sounds good.", Start: 5, End: 6},
	}
	require.NoError(t, f.store.SetTranscript(ctx, id, blocks, map[string]string{"SPEAKER_00": "Alice", "SPEAKER_01": "Bob"}))
	require.NoError(t, f.store.TransitionJob(ctx, id, queue.JobDraft, queue.JobAwaitingSpeakerReview, ""))
	require.NoError(t, f.store.TransitionJob(ctx, id, queue.JobAwaitingSpeakerReview, queue.JobFinalizing, ""))
	require.NoError(t, f.store.TransitionJob(ctx, id, queue.JobFinalizing, queue.JobFinalized, ""))
	job, err := f.store.GetJob(ctx, id)
	require.NoError(t, err)
	return job
}

func TestPublishAppendsOneRow(t *testing.T) {
	f := newFixture(t)
	job := f.finalizedJob(t, "job-1", "The rocket launch slipped a week.")

	outcome, err := f.publisher.Publish(context.Background(), job)
	require.NoError(t, err)
	require.Equal(t, publication.OutcomePublished, outcome)

	rows := f.sink.Rows()
	require.Len(t, rows, 1)
	row := rows[0]
	require.Len(t, row, len(publication.MeetingHeaders))
	require.Equal(t, "2026-01-22 14:26:31", row[0])
	require.Equal(t, "Design Review", row[1])
	require.Equal(t, "Apollo", row[2])
	require.True(t, strings.HasPrefix(row[3], "file:///"), row[3])
	require.Contains(t, row[3], "Design%20Review_2026-01-22%2014-26-31.mp4")
	require.Equal(t, "http://scriberr.test/transcription/job-1", row[4])
	require.Equal(t, "https://docs.test/Design Review_2026-01-22 14-26-31_transcript", row[5])
	require.Equal(t, "Processed", row[6])
	require.Equal(t, "Standup", row[7])
	require.Equal(t, "Alice, Bob", row[8])
	require.Equal(t, "Reviewed the week.", row[9])

	entry, err := f.store.GetLogEntry(context.Background(), "job-1")
	require.NoError(t, err)
	require.Equal(t, queue.LogPublished, entry.Status)
	require.Equal(t, "Standup", entry.MeetingType)
	require.Equal(t, "Reviewed the week.", entry.Summary)
	require.Equal(t, "Alice, Bob", entry.Speakers)

	doc, ok := f.sink.Document("Design Review_2026-01-22 14-26-31_transcript")
	require.True(t, ok)
	require.Contains(t, doc, "Alice:")

	outcome, err = f.publisher.Publish(context.Background(), job)
	require.ErrorIs(t, err, publication.ErrAlreadyPublished)
	require.Equal(t, publication.OutcomeDuplicate, outcome)
	require.Len(t, f.sink.Rows(), 1)
}

func TestConcurrentPublishAppendsOnce(t *testing.T) {
	f := newFixture(t)
	job := f.finalizedJob(t, "job-race", "Invoices are late.")

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.publisher.Publish(context.Background(), job)
		}()
	}
	wg.Wait()
	require.Len(t, f.sink.Rows(), 1)
}

func TestOfflinePublishQueuesUntilFlush(t *testing.T) {
	f := newFixture(t)
	f.setOnline(false)
	unavailable := services.Wrap(services.ErrTransient, "llm", "complete", "connection refused", nil)
	f.completer.SetErr(unavailable)
	f.sink.SetProjectsErr(services.Wrap(services.ErrTransient, "sheets", "read projects", "connection refused", nil))
	f.sink.SetUploadErr(services.Wrap(services.ErrTransient, "drive", "upload", "connection refused", nil))
	job := f.finalizedJob(t, "job-offline", "Billing review.")

	outcome, err := f.publisher.Publish(context.Background(), job)
	require.NoError(t, err)
	require.Equal(t, publication.OutcomeQueued, outcome)
	require.Empty(t, f.sink.Rows())
	require.Empty(t, f.completer.Calls(), "no classification while offline")
	n, err := f.store.Len(context.Background(), queue.OfflineLogEntry)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	entry, err := f.store.GetLogEntry(context.Background(), job.ID)
	require.NoError(t, err)
	require.Equal(t, "Design Review", entry.MeetingName)
	require.Equal(t, "Alice, Bob", entry.Speakers)
	require.Empty(t, entry.ProjectTag)

	f.completer.SetErr(nil)
	f.sink.SetProjectsErr(nil)
	f.sink.SetUploadErr(nil)
	f.setOnline(true)
	flushed, err := f.publisher.Flush(context.Background(), 0)
	require.NoError(t, err)
	require.Equal(t, 1, flushed)
	rows := f.sink.Rows()
	require.Len(t, rows, 1)
	require.Equal(t, "Zeus", rows[0][2])
	require.NotEmpty(t, rows[0][5])
	require.Equal(t, "Standup", rows[0][7])
	require.Equal(t, "Reviewed the week.", rows[0][9])

	entry, err = f.store.GetLogEntry(context.Background(), job.ID)
	require.NoError(t, err)
	require.Equal(t, queue.LogPublished, entry.Status)
	require.Equal(t, "Zeus", entry.ProjectTag)
	require.Equal(t, "Standup", entry.MeetingType)

	n, err = f.store.Len(context.Background(), queue.OfflineLogEntry)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestFlushParksEntryThatKeepsFailing(t *testing.T) {
	f := newFixture(t)
	f.setOnline(false)
	for _, id := range []string{"job-bad", "job-good"} {
		_, err := f.publisher.Publish(context.Background(), f.finalizedJob(t, id, "Rocket."))
		require.NoError(t, err)
	}
	f.setOnline(true)
	f.sink.SetRejectRow(func(row []string) error {
		if strings.HasSuffix(row[4], "job-bad") {
			return services.Wrap(services.ErrExternalTool, "sheets", "append", "400 bad range", nil)
		}
		return nil
	})

	for attempt := 1; attempt < queue.MaxOfflineAttempts; attempt++ {
		flushed, err := f.publisher.Flush(context.Background(), 0)
		require.ErrorIs(t, err, queue.ErrPermanent)
		require.Zero(t, flushed)
		require.Empty(t, f.sink.Rows(), "job-good waits behind the failing head")
	}

	flushed, err := f.publisher.Flush(context.Background(), 0)
	require.NoError(t, err)
	require.Equal(t, 1, flushed)
	rows := f.sink.Rows()
	require.Len(t, rows, 1)
	require.True(t, strings.HasSuffix(rows[0][4], "job-good"))

	items, err := f.store.ListOffline(context.Background(), queue.OfflineLogEntry)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "job-bad", items[0].Ref)
	require.True(t, items[0].Parked())

	entry, err := f.store.GetLogEntry(context.Background(), "job-bad")
	require.NoError(t, err)
	require.Equal(t, queue.LogPending, entry.Status)
	require.Contains(t, entry.LastError, "400 bad range")
}

func TestTransientAppendFailureReleasesAndQueues(t *testing.T) {
	f := newFixture(t)
	job := f.finalizedJob(t, "job-flaky", "Rocket review.")
	f.sink.SetAppendErr(services.Wrap(services.ErrTransient, "sheets", "append", "503", nil))

	outcome, err := f.publisher.Publish(context.Background(), job)
	require.NoError(t, err)
	require.Equal(t, publication.OutcomeQueued, outcome)

	entry, err := f.store.GetLogEntry(context.Background(), job.ID)
	require.NoError(t, err)
	require.Equal(t, queue.LogPending, entry.Status)
	require.Contains(t, entry.LastError, "503")

	flushed, err := f.publisher.Flush(context.Background(), 0)
	require.Error(t, err)
	require.Zero(t, flushed)

	f.sink.SetAppendErr(nil)
	flushed, err = f.publisher.Flush(context.Background(), 0)
	require.NoError(t, err)
	require.Equal(t, 1, flushed)
	require.Len(t, f.sink.Rows(), 1)
}

func TestPermanentAppendFailureIsReturned(t *testing.T) {
	f := newFixture(t)
	job := f.finalizedJob(t, "job-bad", "Rocket review.")
	f.sink.SetAppendErr(services.Wrap(services.ErrExternalTool, "sheets", "append", "400 bad range", nil))

	outcome, err := f.publisher.Publish(context.Background(), job)
	require.Error(t, err)
	require.Equal(t, publication.OutcomeQueued, outcome)
	n, _ := f.store.Len(context.Background(), queue.OfflineLogEntry)
	require.Equal(t, 1, n)
}

func TestFlushPreservesOrder(t *testing.T) {
	f := newFixture(t)
	f.setOnline(false)
	for _, id := range []string{"job-a", "job-b", "job-c"} {
		_, err := f.publisher.Publish(context.Background(), f.finalizedJob(t, id, "Rocket."))
		require.NoError(t, err)
	}
	f.setOnline(true)

	flushed, err := f.publisher.Flush(context.Background(), 0)
	require.NoError(t, err)
	require.Equal(t, 3, flushed)
	rows := f.sink.Rows()
	require.Len(t, rows, 3)
	for i, id := range []string{"job-a", "job-b", "job-c"} {
		require.True(t, strings.HasSuffix(rows[i][4], id), "row %d is %s", i, rows[i][4])
	}
}

func TestDocumentUploadRetriedOnFlush(t *testing.T) {
	f := newFixture(t)
	f.setOnline(false)
	f.sink.SetUploadErr(errors.New("drive unavailable"))
	job := f.finalizedJob(t, "job-doc", "Rocket.")

	_, err := f.publisher.Publish(context.Background(), job)
	require.NoError(t, err)
	entry, _ := f.store.GetLogEntry(context.Background(), job.ID)
	require.Empty(t, entry.DocumentLink)

	f.sink.SetUploadErr(nil)
	f.setOnline(true)
	_, err = f.publisher.Flush(context.Background(), 0)
	require.NoError(t, err)
	require.NotEmpty(t, f.sink.Rows()[0][5])
}

func TestTagFallsBackToClassifier(t *testing.T) {
	f := newFixture(t)
	f.completer.On("classifier", "Zeus\n")
	job := f.finalizedJob(t, "job-class", "Nothing that names a project.")

	_, err := f.publisher.Publish(context.Background(), job)
	require.NoError(t, err)
	require.Equal(t, "Zeus", f.sink.Rows()[0][2])
}

func TestTagUsesSimilarityWhenClassifierFails(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	sink := testsupport.NewLogSink()
	sink.ProjectRows = [][]string{{"Apollo", "launch"}, {"Hermes", "shipping logistics warehouse"}}
	completer := testsupport.NewCompleter("")
	completer.Err = errors.New("llm down")
	builder := publication.NewBuilder(cfg, sink, nil, completer, nil, logging.NewNop())

	tag := builder.Tag(context.Background(), "the warehouse shipping backlog and logistics planning")
	require.Equal(t, "Hermes", tag)
}

func TestProjectsMergeSheetAndFile(t *testing.T) {
	f := newFixture(t)
	yaml := "projects:\n  - name: apollo\n    keywords: [moon]\n  - name: Hermes\n    keywords: [shipping, ' ']\n"
	require.NoError(t, os.WriteFile(f.cfg.Paths.ProjectsFile, []byte(yaml), 0o644))

	builder := publication.NewBuilder(f.cfg, f.sink, nil, nil, nil, logging.NewNop())
	projects := builder.Projects(context.Background())
	require.Len(t, projects, 3)
	require.Equal(t, "Apollo", projects[0].Name)
	require.Equal(t, []string{"launch", "rocket", "moon"}, projects[0].Keywords)
	require.Equal(t, "Hermes", projects[2].Name)
	require.Equal(t, []string{"shipping"}, projects[2].Keywords)
}

func TestEnsureSheetWritesHeaders(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.publisher.EnsureSheet(context.Background()))
	tabs := f.sink.Tabs()
	require.Equal(t, publication.MeetingHeaders, tabs[f.cfg.Google.MeetingTab])
	require.Equal(t, publication.ProjectHeaders, tabs[f.cfg.Google.ProjectTab])
}

func TestRequeuePending(t *testing.T) {
	f := newFixture(t)
	f.setOnline(false)
	job := f.finalizedJob(t, "job-requeue", "Rocket.")
	_, err := f.publisher.Publish(context.Background(), job)
	require.NoError(t, err)
	require.NoError(t, f.store.Remove(context.Background(), queue.OfflineLogEntry, job.ID))

	n, err := f.publisher.RequeuePending(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)
	length, _ := f.store.Len(context.Background(), queue.OfflineLogEntry)
	require.Equal(t, 1, length)
}

func TestMatchKeywordsPrefersMostHits(t *testing.T) {
	projects := []publication.Project{
		{Name: "Apollo", Keywords: []string{"launch"}},
		{Name: "Zeus", Keywords: []string{"launch", "billing"}},
	}
	project, ok := publication.MatchKeywords(projects, "billing for the launch")
	require.True(t, ok)
	require.Equal(t, "Zeus", project.Name)

	_, ok = publication.MatchKeywords(projects, "unrelated chat")
	require.False(t, ok)
}
