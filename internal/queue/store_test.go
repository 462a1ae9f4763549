package queue_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"meetsync/internal/queue"
	"meetsync/internal/testsupport"
)

func TestAddAssetIsIdempotentByPath(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	first := testsupport.NewAsset(t, store, cfg, "2024-03-15 14-30-00.mp4")
	if first.ID == 0 {
		t.Fatal("expected asset id to be assigned")
	}
	if first.Status != queue.AssetDetected {
		t.Fatalf("expected detected, got %s", first.Status)
	}
	if first.FileName != "2024-03-15 14-30-00.mp4" {
		t.Fatalf("unexpected file name %q", first.FileName)
	}

	again, created, err := store.AddAsset(ctx, first.SourcePath)
	if err != nil {
		t.Fatalf("AddAsset failed: %v", err)
	}
	if created {
		t.Fatal("expected second add to report existing asset")
	}
	if again.ID != first.ID {
		t.Fatalf("expected id %d, got %d", first.ID, again.ID)
	}
}

func TestTransitionAssetRejectsStaleAndInvalidMoves(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	asset := testsupport.NewAsset(t, store, cfg, "clip.mp4")

	err := store.TransitionAsset(ctx, asset.ID, queue.AssetDetected, queue.AssetPublished, queue.AssetUpdate{})
	if !errors.Is(err, queue.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}

	title := "Weekly Sync"
	if err := store.TransitionAsset(ctx, asset.ID, queue.AssetDetected, queue.AssetResolving, queue.AssetUpdate{MeetingTitle: &title}); err != nil {
		t.Fatalf("TransitionAsset failed: %v", err)
	}
	err = store.TransitionAsset(ctx, asset.ID, queue.AssetDetected, queue.AssetResolving, queue.AssetUpdate{})
	if !errors.Is(err, queue.ErrConflict) {
		t.Fatalf("expected ErrConflict on stale transition, got %v", err)
	}

	fetched, err := store.GetAsset(ctx, asset.ID)
	if err != nil {
		t.Fatalf("GetAsset failed: %v", err)
	}
	if fetched.Status != queue.AssetResolving || fetched.MeetingTitle != title {
		t.Fatalf("unexpected asset after transition: %#v", fetched)
	}
}

func TestTransitionAssetHasSingleWinner(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	asset := testsupport.NewAsset(t, store, cfg, "race.mp4")
	testsupport.MoveAsset(t, store, asset, queue.AssetResolving, queue.AssetAwaitingChoice)

	const racers = 8
	var (
		wg        sync.WaitGroup
		winners   atomic.Int32
		conflicts atomic.Int32
	)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.TransitionAsset(ctx, asset.ID, queue.AssetAwaitingChoice, queue.AssetRelocating, queue.AssetUpdate{})
			switch {
			case err == nil:
				winners.Add(1)
			case errors.Is(err, queue.ErrConflict):
				conflicts.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if winners.Load() != 1 {
		t.Fatalf("expected exactly one winner, got %d", winners.Load())
	}
	if conflicts.Load() != racers-1 {
		t.Fatalf("expected %d conflicts, got %d", racers-1, conflicts.Load())
	}
}

func TestResetInterruptedReturnsResolvingToDetected(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	stuck := testsupport.NewAsset(t, store, cfg, "stuck.mp4")
	testsupport.MoveAsset(t, store, stuck, queue.AssetResolving)
	waiting := testsupport.NewAsset(t, store, cfg, "waiting.mp4")
	testsupport.MoveAsset(t, store, waiting, queue.AssetResolving, queue.AssetAwaitingChoice)

	count, err := store.ResetInterrupted(ctx)
	if err != nil {
		t.Fatalf("ResetInterrupted failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 asset reset, got %d", count)
	}
	detected, err := store.ListAssets(ctx, queue.AssetDetected)
	if err != nil {
		t.Fatalf("ListAssets failed: %v", err)
	}
	if len(detected) != 1 || detected[0].ID != stuck.ID {
		t.Fatalf("unexpected detected assets: %#v", detected)
	}
}

func TestOpenSessionAllowsOnePerAsset(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	asset := testsupport.NewAsset(t, store, cfg, "meeting.mp4")
	start := time.Date(2024, 3, 15, 14, 0, 0, 0, time.UTC)
	session := &queue.Session{
		ID:      "sess-1",
		AssetID: asset.ID,
		Kind:    queue.SessionChoice,
		Candidates: []queue.Candidate{
			{EventID: "a", Title: "Standup", Start: start, End: start.Add(time.Hour)},
			{EventID: "b", Title: "Review", Start: start, End: start.Add(30 * time.Minute)},
		},
	}
	if err := store.OpenSession(ctx, session); err != nil {
		t.Fatalf("OpenSession failed: %v", err)
	}

	err := store.OpenSession(ctx, &queue.Session{ID: "sess-2", AssetID: asset.ID, Kind: queue.SessionNoMeeting})
	if !errors.Is(err, queue.ErrOpenSession) {
		t.Fatalf("expected ErrOpenSession, got %v", err)
	}

	fetched, err := store.OpenSessionForAsset(ctx, asset.ID)
	if err != nil {
		t.Fatalf("OpenSessionForAsset failed: %v", err)
	}
	if len(fetched.Candidates) != 2 || fetched.Candidates[1].Title != "Review" {
		t.Fatalf("candidates not persisted: %#v", fetched.Candidates)
	}

	chosen := 1
	if err := store.TransitionSession(ctx, "sess-1", queue.SessionAwaitingChoice, queue.SessionResolved, &chosen); err != nil {
		t.Fatalf("TransitionSession failed: %v", err)
	}
	err = store.TransitionSession(ctx, "sess-1", queue.SessionAwaitingChoice, queue.SessionCancelled, nil)
	if !errors.Is(err, queue.ErrConflict) {
		t.Fatalf("expected ErrConflict after resolution, got %v", err)
	}

	if err := store.OpenSession(ctx, &queue.Session{ID: "sess-3", AssetID: asset.ID, Kind: queue.SessionNoMeeting}); err != nil {
		t.Fatalf("expected new session after resolution, got %v", err)
	}

	resolved, err := store.GetSession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if resolved.ChosenIndex == nil || *resolved.ChosenIndex != 1 {
		t.Fatalf("expected chosen index 1, got %v", resolved.ChosenIndex)
	}
}

func TestJobLifecycleAndOverrides(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	job := &queue.Job{ID: "job-1", MeetingTitle: "Weekly Sync", VideoPath: "/videos/sync.mp4"}
	if err := store.CreateJob(ctx, job); err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}
	blocks := []queue.Block{
		{Speaker: "SPEAKER_00", Text: "Hello", Start: 0, End: 1.5},
		{Speaker: "SPEAKER_01", Text: "Hi there", Start: 1.5, End: 3},
	}
	if err := store.SetTranscript(ctx, job.ID, blocks, map[string]string{"SPEAKER_00": "Alice", "SPEAKER_01": "Bob"}); err != nil {
		t.Fatalf("SetTranscript failed: %v", err)
	}

	if err := store.SetOverride(ctx, job.ID, "SPEAKER_01", "Carol"); !errors.Is(err, queue.ErrConflict) {
		t.Fatalf("expected overrides rejected for draft job, got %v", err)
	}

	if err := store.TransitionJob(ctx, job.ID, queue.JobDraft, queue.JobAwaitingSpeakerReview, ""); err != nil {
		t.Fatalf("TransitionJob failed: %v", err)
	}
	if err := store.SetOverride(ctx, job.ID, "SPEAKER_01", "Carol"); err != nil {
		t.Fatalf("SetOverride failed: %v", err)
	}

	fetched, err := store.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	mapping := fetched.EffectiveMapping()
	if mapping["SPEAKER_00"] != "Alice" || mapping["SPEAKER_01"] != "Carol" {
		t.Fatalf("unexpected effective mapping %v", mapping)
	}
	if got := fetched.Speakers(); len(got) != 2 || got[0] != "SPEAKER_00" {
		t.Fatalf("unexpected speakers %v", got)
	}

	if err := store.TransitionJob(ctx, job.ID, queue.JobAwaitingSpeakerReview, queue.JobFinalizing, ""); err != nil {
		t.Fatalf("TransitionJob to finalizing failed: %v", err)
	}
	err = store.TransitionJob(ctx, job.ID, queue.JobAwaitingSpeakerReview, queue.JobFinalizing, "")
	if !errors.Is(err, queue.ErrConflict) {
		t.Fatalf("expected second finalize to conflict, got %v", err)
	}
	if err := store.TransitionJob(ctx, job.ID, queue.JobFinalizing, queue.JobFinalized, ""); err != nil {
		t.Fatalf("TransitionJob to finalized failed: %v", err)
	}
	final, err := store.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if final.FinalizedAt == nil {
		t.Fatal("expected finalized_at to be set")
	}
}

func TestLogEntryInsertIsIdempotentAndClaimed(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	entry := &queue.LogEntry{JobID: "job-9", MeetingTime: "2024-03-15 14:00", MeetingName: "Weekly Sync"}
	created, err := store.InsertLogEntryIfAbsent(ctx, entry)
	if err != nil || !created {
		t.Fatalf("expected first insert to create, got created=%v err=%v", created, err)
	}
	created, err = store.InsertLogEntryIfAbsent(ctx, &queue.LogEntry{JobID: "job-9", MeetingTime: "x", MeetingName: "other"})
	if err != nil || created {
		t.Fatalf("expected second insert to be a no-op, got created=%v err=%v", created, err)
	}

	if err := store.ClaimLogEntry(ctx, "job-9"); err != nil {
		t.Fatalf("ClaimLogEntry failed: %v", err)
	}
	if err := store.ClaimLogEntry(ctx, "job-9"); !errors.Is(err, queue.ErrConflict) {
		t.Fatalf("expected second claim to conflict, got %v", err)
	}
	if err := store.ReleaseLogEntry(ctx, "job-9", "sheets unavailable"); err != nil {
		t.Fatalf("ReleaseLogEntry failed: %v", err)
	}
	if err := store.ClaimLogEntry(ctx, "job-9"); err != nil {
		t.Fatalf("reclaim failed: %v", err)
	}
	if err := store.CompleteLogEntry(ctx, "job-9"); err != nil {
		t.Fatalf("CompleteLogEntry failed: %v", err)
	}

	fetched, err := store.GetLogEntry(ctx, "job-9")
	if err != nil {
		t.Fatalf("GetLogEntry failed: %v", err)
	}
	if fetched.Status != queue.LogPublished || fetched.Attempts != 2 || fetched.MeetingName != "Weekly Sync" {
		t.Fatalf("unexpected entry %#v", fetched)
	}
	if fetched.PublishedAt == nil || fetched.LastError != "" {
		t.Fatalf("expected published_at set and error cleared: %#v", fetched)
	}
	row := fetched.Row()
	if len(row) != 10 || row[6] != "Processed" {
		t.Fatalf("unexpected row %v", row)
	}
}

func TestDrainIsFIFOAndStopsAtFirstFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	for i := 1; i <= 4; i++ {
		if err := store.Enqueue(ctx, queue.OfflineLogEntry, fmt.Sprintf("job-%d", i)); err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
	}
	if err := store.Enqueue(ctx, queue.OfflineLogEntry, "job-1"); err != nil {
		t.Fatalf("re-enqueue failed: %v", err)
	}
	if err := store.Enqueue(ctx, queue.OfflineVideo, "7"); err != nil {
		t.Fatalf("Enqueue video failed: %v", err)
	}

	var seen []string
	drained, err := store.Drain(ctx, queue.OfflineLogEntry, 0, func(_ context.Context, item *queue.OfflineItem) error {
		seen = append(seen, item.Ref)
		if item.Ref == "job-3" {
			return errors.New("offline again")
		}
		return nil
	})
	if err == nil {
		t.Fatal("expected drain to stop with error")
	}
	if drained != 2 {
		t.Fatalf("expected 2 drained, got %d", drained)
	}
	if fmt.Sprint(seen) != "[job-1 job-2 job-3]" {
		t.Fatalf("unexpected drain order %v", seen)
	}

	remaining, err := store.ListOffline(ctx, queue.OfflineLogEntry)
	if err != nil {
		t.Fatalf("ListOffline failed: %v", err)
	}
	if len(remaining) != 2 || remaining[0].Ref != "job-3" || remaining[1].Ref != "job-4" {
		t.Fatalf("unexpected remaining queue %#v", remaining)
	}
	if n, _ := store.Len(ctx, queue.OfflineVideo); n != 1 {
		t.Fatalf("expected video queue untouched, got %d", n)
	}
}

func TestDrainParksRepeatedPermanentFailures(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	for _, ref := range []string{"job-bad", "job-good"} {
		if err := store.Enqueue(ctx, queue.OfflineLogEntry, ref); err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
	}
	var appended []string
	op := func(_ context.Context, item *queue.OfflineItem) error {
		if item.Ref == "job-bad" {
			return fmt.Errorf("%w: 400 bad range", queue.ErrPermanent)
		}
		appended = append(appended, item.Ref)
		return nil
	}

	for attempt := 1; attempt < queue.MaxOfflineAttempts; attempt++ {
		drained, err := store.Drain(ctx, queue.OfflineLogEntry, 0, op)
		if !errors.Is(err, queue.ErrPermanent) || drained != 0 {
			t.Fatalf("attempt %d: expected head to block, got drained=%d err=%v", attempt, drained, err)
		}
	}
	head, err := store.Peek(ctx, queue.OfflineLogEntry)
	if err != nil {
		t.Fatalf("Peek failed: %v", err)
	}
	if head.Ref != "job-bad" || head.Attempts != queue.MaxOfflineAttempts-1 || head.LastError == "" {
		t.Fatalf("unexpected head %#v", head)
	}

	drained, err := store.Drain(ctx, queue.OfflineLogEntry, 0, op)
	if err != nil {
		t.Fatalf("expected final attempt to park and continue, got %v", err)
	}
	if drained != 1 || fmt.Sprint(appended) != "[job-good]" {
		t.Fatalf("expected job-good drained behind the parked entry, got drained=%d appended=%v", drained, appended)
	}
	if n, _ := store.Len(ctx, queue.OfflineLogEntry); n != 0 {
		t.Fatalf("expected no unparked items, got %d", n)
	}
	items, err := store.ListOffline(ctx, queue.OfflineLogEntry)
	if err != nil {
		t.Fatalf("ListOffline failed: %v", err)
	}
	if len(items) != 1 || !items[0].Parked() || items[0].Ref != "job-bad" {
		t.Fatalf("expected job-bad parked, got %#v", items)
	}

	unparked, err := store.Unpark(ctx, queue.OfflineLogEntry)
	if err != nil || unparked != 1 {
		t.Fatalf("Unpark: unparked=%d err=%v", unparked, err)
	}
	head, err = store.Peek(ctx, queue.OfflineLogEntry)
	if err != nil {
		t.Fatalf("Peek after unpark failed: %v", err)
	}
	if head.Ref != "job-bad" || head.Attempts != 0 || head.Parked() {
		t.Fatalf("unexpected unparked head %#v", head)
	}
}

func TestSetLogEntryDetailsKeepsExistingFields(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	entry := &queue.LogEntry{JobID: "job-d", MeetingTime: "2026-01-22 14:26:31", MeetingName: "Design Review", DocumentLink: "https://docs/a"}
	if _, err := store.InsertLogEntryIfAbsent(ctx, entry); err != nil {
		t.Fatalf("InsertLogEntryIfAbsent failed: %v", err)
	}
	if err := store.SetLogEntryDetails(ctx, &queue.LogEntry{JobID: "job-d", MeetingType: "Standup", Summary: "Short.", ProjectTag: "Zeus"}); err != nil {
		t.Fatalf("SetLogEntryDetails failed: %v", err)
	}
	fetched, err := store.GetLogEntry(ctx, "job-d")
	if err != nil {
		t.Fatalf("GetLogEntry failed: %v", err)
	}
	if fetched.DocumentLink != "https://docs/a" || fetched.MeetingType != "Standup" || fetched.Summary != "Short." || fetched.ProjectTag != "Zeus" {
		t.Fatalf("unexpected entry %#v", fetched)
	}
}

func TestPromptTokensAreSingleUse(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	prompt := &queue.Prompt{Token: "tok1", Action: queue.ActionSelect, SessionID: "sess-1", OptionIndex: 2}
	if err := store.SavePrompt(ctx, prompt); err != nil {
		t.Fatalf("SavePrompt failed: %v", err)
	}
	fetched, err := store.GetPrompt(ctx, "tok1")
	if err != nil {
		t.Fatalf("GetPrompt failed: %v", err)
	}
	if fetched.Action != queue.ActionSelect || fetched.OptionIndex != 2 || fetched.UsedAt != nil {
		t.Fatalf("unexpected prompt %#v", fetched)
	}
	if err := store.MarkPromptUsed(ctx, "tok1"); err != nil {
		t.Fatalf("MarkPromptUsed failed: %v", err)
	}
	if err := store.MarkPromptUsed(ctx, "tok1"); !errors.Is(err, queue.ErrConflict) {
		t.Fatalf("expected reuse to conflict, got %v", err)
	}
	if _, err := store.GetPrompt(ctx, "missing"); !errors.Is(err, queue.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	reply := queue.PendingReply{ChatID: 42, MessageID: 100, JobID: "job-1", SpeakerSlot: "SPEAKER_00"}
	if err := store.SavePendingReply(ctx, reply); err != nil {
		t.Fatalf("SavePendingReply failed: %v", err)
	}
	got, err := store.GetPendingReply(ctx, 42, 100)
	if err != nil || got.SpeakerSlot != "SPEAKER_00" {
		t.Fatalf("unexpected pending reply %#v err=%v", got, err)
	}
	if err := store.DeletePendingRepliesForJob(ctx, "job-1"); err != nil {
		t.Fatalf("DeletePendingRepliesForJob failed: %v", err)
	}
	if _, err := store.GetPendingReply(ctx, 42, 100); !errors.Is(err, queue.ErrNotFound) {
		t.Fatalf("expected reply removed, got %v", err)
	}
}

func TestHealthAndCheckHealth(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	a := testsupport.NewAsset(t, store, cfg, "a.mp4")
	testsupport.MoveAsset(t, store, a, queue.AssetQueuedOffline)
	testsupport.NewAsset(t, store, cfg, "b.mp4")

	health, err := store.Health(ctx)
	if err != nil {
		t.Fatalf("Health failed: %v", err)
	}
	if health.Total != 2 || health.Offline != 1 || health.InFlight != 1 {
		t.Fatalf("unexpected health %#v", health)
	}

	db, err := store.CheckHealth(ctx)
	if err != nil {
		t.Fatalf("CheckHealth failed: %v", err)
	}
	if !db.DatabaseExists || !db.DatabaseReadable || !db.IntegrityCheck {
		t.Fatalf("unexpected database health %#v", db)
	}
	if len(db.MissingTables) != 0 || db.SchemaVersion != 1 {
		t.Fatalf("unexpected schema info %#v", db)
	}
}

func TestParseStatusAndPhase(t *testing.T) {
	if status, ok := queue.ParseAssetStatus(" Published "); !ok || status != queue.AssetPublished {
		t.Fatalf("ParseAssetStatus = %q, %v", status, ok)
	}
	if _, ok := queue.ParseAssetStatus("done"); ok {
		t.Fatal("expected unknown status to be rejected")
	}
	if phase, ok := queue.ParseJobPhase("awaiting-speaker-review"); !ok || phase != queue.JobAwaitingSpeakerReview {
		t.Fatalf("ParseJobPhase = %q, %v", phase, ok)
	}
	if _, ok := queue.ParseJobPhase("reviewing"); ok {
		t.Fatal("expected unknown phase to be rejected")
	}
}
