package api

import (
	"sort"
	"time"

	"meetsync/internal/queue"
	"meetsync/internal/transcript"
	"meetsync/internal/workflow"
)

// Speaker name sources, in precedence order.
const (
	SourceOverride = "override"
	SourceAI       = "ai"
	SourceSlot     = "slot"
)

// FromAsset converts an asset record to its API representation.
func FromAsset(asset *queue.Asset) Asset {
	if asset == nil {
		return Asset{}
	}
	return Asset{
		ID:           asset.ID,
		FileName:     asset.FileName,
		SourcePath:   asset.SourcePath,
		Status:       string(asset.Status),
		RecordedAt:   formatTimePtr(asset.RecordedAt),
		MeetingTitle: asset.MeetingTitle,
		MeetingStart: formatTimePtr(asset.MeetingStart),
		OutputPath:   asset.OutputPath,
		Fallback:     asset.Fallback,
		JobID:        asset.JobID,
		ErrorMessage: asset.ErrorMessage,
		CreatedAt:    formatTime(asset.CreatedAt),
		UpdatedAt:    formatTime(asset.UpdatedAt),
	}
}

// FromAssets converts a slice of asset records into API DTOs.
func FromAssets(assets []*queue.Asset) []Asset {
	if len(assets) == 0 {
		return nil
	}
	out := make([]Asset, 0, len(assets))
	for _, asset := range assets {
		if asset == nil {
			continue
		}
		out = append(out, FromAsset(asset))
	}
	return out
}

// FromJob converts a job record to its API representation. Speakers are
// listed in order of first appearance with the name publication would use.
func FromJob(job *queue.Job) Job {
	if job == nil {
		return Job{}
	}
	dto := Job{
		ID:             job.ID,
		AssetID:        job.AssetID,
		Phase:          string(job.Phase),
		MeetingTitle:   job.MeetingTitle,
		MeetingStart:   formatTimePtr(job.MeetingStart),
		VideoPath:      job.VideoPath,
		TranscriptPath: job.TranscriptPath,
		Blocks:         len(job.Transcript),
		ErrorMessage:   job.ErrorMessage,
		CreatedAt:      formatTime(job.CreatedAt),
		FinalizedAt:    formatTimePtr(job.FinalizedAt),
	}
	mapping := job.EffectiveMapping()
	for _, slot := range job.Speakers() {
		name := mapping[slot]
		if name == "" {
			name = slot
		}
		dto.Speakers = append(dto.Speakers, Speaker{
			Slot:   slot,
			Name:   name,
			Source: speakerSource(job, slot),
		})
	}
	return dto
}

// FromJobs converts a slice of job records into API DTOs.
func FromJobs(jobs []*queue.Job) []Job {
	if len(jobs) == 0 {
		return nil
	}
	out := make([]Job, 0, len(jobs))
	for _, job := range jobs {
		if job == nil {
			continue
		}
		out = append(out, FromJob(job))
	}
	return out
}

// FromOfflineItem converts a queued offline item.
func FromOfflineItem(item *queue.OfflineItem) OfflineItem {
	if item == nil {
		return OfflineItem{}
	}
	return OfflineItem{
		ID:         item.ID,
		Kind:       string(item.Kind),
		Ref:        item.Ref,
		EnqueuedAt: formatTime(item.EnqueuedAt),
		Attempts:   item.Attempts,
		LastError:  item.LastError,
		Parked:     item.Parked(),
	}
}

// FromOfflineItems converts a slice of offline items.
func FromOfflineItems(items []*queue.OfflineItem) []OfflineItem {
	out := make([]OfflineItem, 0, len(items))
	for _, item := range items {
		if item != nil {
			out = append(out, FromOfflineItem(item))
		}
	}
	return out
}

// FromJobDetail converts a job and renders its transcript with the names
// that would be published right now.
func FromJobDetail(job *queue.Job) JobResponse {
	if job == nil {
		return JobResponse{}
	}
	return JobResponse{
		Job:   FromJob(job),
		Lines: transcript.Lines(job.Transcript, job.EffectiveMapping()),
	}
}

// FromStatusSummary converts workflow diagnostics.
func FromStatusSummary(summary workflow.StatusSummary) WorkflowStatus {
	return FromCounts(summary.Counts, WorkflowStatus{
		Running:   summary.Running,
		Online:    summary.Online,
		LastError: summary.LastErr,
		LastFile:  summary.LastFile,
	})
}

// FromCounts fills the count maps of status from a store summary.
func FromCounts(counts queue.Summary, status WorkflowStatus) WorkflowStatus {
	status.Assets = make(map[string]int, len(counts.Assets))
	for k, v := range counts.Assets {
		status.Assets[string(k)] = v
	}
	status.Jobs = make(map[string]int, len(counts.Jobs))
	for k, v := range counts.Jobs {
		status.Jobs[string(k)] = v
	}
	status.LogEntries = make(map[string]int, len(counts.LogEntries))
	for k, v := range counts.LogEntries {
		status.LogEntries[string(k)] = v
	}
	status.Offline = make(map[string]int, len(counts.OfflineLen))
	for k, v := range counts.OfflineLen {
		status.Offline[string(k)] = v
	}
	status.OpenSessions = counts.OpenSession
	return status
}

// SortedKeys returns the keys of counts in lexical order.
func SortedKeys(counts map[string]int) []string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func speakerSource(job *queue.Job, slot string) string {
	if name, ok := job.Overrides[slot]; ok && name != "" {
		return SourceOverride
	}
	if name, ok := job.AIMapping[slot]; ok && name != "" {
		return SourceAI
	}
	return SourceSlot
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}
