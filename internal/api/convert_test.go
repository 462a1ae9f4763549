package api_test

import (
	"testing"
	"time"

	"meetsync/internal/api"
	"meetsync/internal/queue"
	"meetsync/internal/workflow"
)

func TestFromAssetFormatsTimes(t *testing.T) {
	recorded := time.Date(2026, 1, 22, 14, 26, 31, 0, time.FixedZone("UTC+2", 2*3600))
	asset := &queue.Asset{
		ID:           7,
		FileName:     "2026-01-22_14-26-31.mp4",
		Status:       queue.AssetTranscribing,
		RecordedAt:   &recorded,
		MeetingTitle: "Design Review",
		JobID:        "job-1",
	}

	dto := api.FromAsset(asset)
	if dto.Status != "transcribing" {
		t.Fatalf("status = %q", dto.Status)
	}
	if dto.RecordedAt != "2026-01-22T12:26:31.000Z" {
		t.Fatalf("recordedAt = %q", dto.RecordedAt)
	}
	if dto.MeetingStart != "" || dto.CreatedAt != "" {
		t.Fatalf("expected unset times to be empty, got %+v", dto)
	}
	if dto.JobID != "job-1" || dto.MeetingTitle != "Design Review" {
		t.Fatalf("unexpected dto %+v", dto)
	}
}

func TestFromJobResolvesSpeakerNames(t *testing.T) {
	job := &queue.Job{
		ID:    "job-1",
		Phase: queue.JobAwaitingSpeakerReview,
		Transcript: []queue.Block{
			{Speaker: "SPEAKER_01", Text: "hello"},
			{Speaker: "SPEAKER_00", Text: "hi"},
			{Speaker: "SPEAKER_02", Text: "hey"},
			{Speaker: "SPEAKER_01", Text: "again"},
		},
		AIMapping: map[string]string{"SPEAKER_00": "Alice", "SPEAKER_01": "Bob"},
		Overrides: map[string]string{"SPEAKER_01": "Robert"},
	}

	dto := api.FromJob(job)
	want := []api.Speaker{
		{Slot: "SPEAKER_01", Name: "Robert", Source: api.SourceOverride},
		{Slot: "SPEAKER_00", Name: "Alice", Source: api.SourceAI},
		{Slot: "SPEAKER_02", Name: "SPEAKER_02", Source: api.SourceSlot},
	}
	if len(dto.Speakers) != len(want) {
		t.Fatalf("speakers = %+v", dto.Speakers)
	}
	for i := range want {
		if dto.Speakers[i] != want[i] {
			t.Fatalf("speaker %d = %+v, want %+v", i, dto.Speakers[i], want[i])
		}
	}
	if dto.Blocks != 4 || dto.Phase != "awaiting_speaker_review" {
		t.Fatalf("unexpected dto %+v", dto)
	}
}

func TestFromStatusSummaryCopiesCounts(t *testing.T) {
	summary := workflow.StatusSummary{
		Running: true,
		Online:  false,
		LastErr: "boom",
		Counts: queue.Summary{
			Assets:      map[queue.AssetStatus]int{queue.AssetPublished: 3, queue.AssetFailed: 1},
			Jobs:        map[queue.JobPhase]int{queue.JobDraft: 2},
			LogEntries:  map[queue.LogStatus]int{queue.LogPending: 1},
			OfflineLen:  map[queue.OfflineKind]int{queue.OfflineVideo: 4},
			OpenSession: 1,
		},
	}

	status := api.FromStatusSummary(summary)
	if !status.Running || status.Online || status.LastError != "boom" {
		t.Fatalf("unexpected flags %+v", status)
	}
	if status.Assets["published"] != 3 || status.Assets["failed"] != 1 {
		t.Fatalf("assets = %v", status.Assets)
	}
	if status.Jobs["draft"] != 2 || status.LogEntries["pending"] != 1 || status.Offline["video"] != 4 {
		t.Fatalf("counts = %+v", status)
	}
	if status.OpenSessions != 1 {
		t.Fatalf("open sessions = %d", status.OpenSessions)
	}
	if keys := api.SortedKeys(status.Assets); len(keys) != 2 || keys[0] != "failed" {
		t.Fatalf("sorted keys = %v", keys)
	}
}
