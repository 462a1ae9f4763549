package queue

import (
	"strings"
	"time"
)

// AssetStatus represents the lifecycle of a detected video file.
type AssetStatus string

const (
	AssetDetected       AssetStatus = "detected"
	AssetResolving      AssetStatus = "resolving"
	AssetAwaitingChoice AssetStatus = "awaiting_choice"
	AssetQueuedOffline  AssetStatus = "queued_offline"
	AssetRelocating     AssetStatus = "relocating"
	AssetRelocated      AssetStatus = "relocated"
	AssetTranscribing   AssetStatus = "transcribing"
	AssetPublished      AssetStatus = "published"
	AssetFailed         AssetStatus = "failed"
	AssetCancelled      AssetStatus = "cancelled"
	AssetSkipped        AssetStatus = "skipped"
)

var assetTransitions = map[AssetStatus][]AssetStatus{
	AssetDetected:       {AssetResolving, AssetQueuedOffline, AssetSkipped, AssetFailed, AssetCancelled},
	AssetResolving:      {AssetAwaitingChoice, AssetRelocating, AssetQueuedOffline, AssetSkipped, AssetFailed},
	AssetAwaitingChoice: {AssetRelocating, AssetResolving, AssetCancelled, AssetFailed},
	AssetQueuedOffline:  {AssetResolving, AssetTranscribing, AssetFailed, AssetCancelled},
	AssetRelocating:     {AssetRelocated, AssetFailed},
	AssetRelocated:      {AssetTranscribing, AssetQueuedOffline, AssetFailed},
	AssetTranscribing:   {AssetPublished, AssetQueuedOffline, AssetFailed, AssetCancelled},
	AssetFailed:         {AssetDetected},
	AssetCancelled:      {AssetDetected},
	AssetSkipped:        {AssetDetected},
	AssetPublished:      {},
}

// CanTransition reports whether the asset lifecycle allows from → to.
func (s AssetStatus) CanTransition(to AssetStatus) bool {
	for _, next := range assetTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further pipeline work happens for the asset
// without an operator re-adding it.
func (s AssetStatus) IsTerminal() bool {
	switch s {
	case AssetPublished, AssetFailed, AssetCancelled, AssetSkipped:
		return true
	default:
		return false
	}
}

// AllAssetStatuses lists every asset status in pipeline order.
func AllAssetStatuses() []AssetStatus {
	return []AssetStatus{
		AssetDetected, AssetResolving, AssetAwaitingChoice, AssetQueuedOffline,
		AssetRelocating, AssetRelocated, AssetTranscribing, AssetPublished,
		AssetFailed, AssetCancelled, AssetSkipped,
	}
}

// ParseAssetStatus converts user input into an AssetStatus.
func ParseAssetStatus(value string) (AssetStatus, bool) {
	normalized := AssetStatus(strings.ToLower(strings.TrimSpace(value)))
	if _, ok := assetTransitions[normalized]; ok {
		return normalized, true
	}
	return "", false
}

// Asset is a detected video file and everything learned about it.
type Asset struct {
	ID              int64
	SourcePath      string
	FileName        string
	Status          AssetStatus
	RecordedAt      *time.Time
	TimestampToken  string
	TimestampFormat string
	MeetingTitle    string
	MeetingStart    *time.Time
	RenamedPath     string
	OutputPath      string
	Fallback        bool
	JobID           string
	ErrorMessage    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// SessionKind distinguishes disambiguation prompts.
type SessionKind string

const (
	SessionChoice    SessionKind = "choice"
	SessionNoMeeting SessionKind = "no_meeting"
)

// SessionState is the disambiguation state machine.
type SessionState string

const (
	SessionIdle           SessionState = "idle"
	SessionAwaitingChoice SessionState = "awaiting_choice"
	SessionResolved       SessionState = "resolved"
	SessionCancelled      SessionState = "cancelled"
	SessionExpired        SessionState = "expired"
)

var sessionTransitions = map[SessionState][]SessionState{
	SessionIdle:           {SessionAwaitingChoice},
	SessionAwaitingChoice: {SessionResolved, SessionCancelled, SessionExpired},
	SessionResolved:       {},
	SessionCancelled:      {},
	SessionExpired:        {},
}

// CanTransition reports whether the session state machine allows from → to.
func (s SessionState) CanTransition(to SessionState) bool {
	for _, next := range sessionTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Candidate is a calendar event snapshot stored with a session so a choice
// can be resolved after a restart.
type Candidate struct {
	EventID     string    `json:"event_id"`
	Title       string    `json:"title"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Description string    `json:"description,omitempty"`
}

// Session is a disambiguation prompt awaiting a human answer.
type Session struct {
	ID              string
	AssetID         int64
	Kind            SessionKind
	State           SessionState
	Candidates      []Candidate
	ChosenIndex     *int
	PromptMessageID int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// JobPhase is the transcription job lifecycle.
type JobPhase string

const (
	JobDraft                 JobPhase = "draft"
	JobAwaitingSpeakerReview JobPhase = "awaiting_speaker_review"
	JobFinalizing            JobPhase = "finalizing"
	JobFinalized             JobPhase = "finalized"
	JobFailed                JobPhase = "failed"
)

var jobTransitions = map[JobPhase][]JobPhase{
	JobDraft:                 {JobAwaitingSpeakerReview, JobFailed},
	JobAwaitingSpeakerReview: {JobFinalizing, JobFailed},
	JobFinalizing:            {JobFinalized, JobAwaitingSpeakerReview, JobFailed},
	JobFinalized:             {},
	JobFailed:                {},
}

// ParseJobPhase converts user input into a JobPhase. Hyphens are accepted in
// place of underscores.
func ParseJobPhase(value string) (JobPhase, bool) {
	normalized := JobPhase(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(value)), "-", "_"))
	if _, ok := jobTransitions[normalized]; ok {
		return normalized, true
	}
	return "", false
}

// CanTransition reports whether the job lifecycle allows from → to.
func (p JobPhase) CanTransition(to JobPhase) bool {
	for _, next := range jobTransitions[p] {
		if next == to {
			return true
		}
	}
	return false
}

// Job tracks one transcription job from draft to finalized.
type Job struct {
	ID              string
	AssetID         int64
	Phase           JobPhase
	MeetingTitle    string
	MeetingStart    *time.Time
	VideoPath       string
	AIMapping       map[string]string
	Overrides       map[string]string
	Transcript      []Block
	TranscriptPath  string
	ReviewMessageID int64
	ErrorMessage    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	FinalizedAt     *time.Time
}

// Block is one cleaned transcript block persisted with the job.
type Block struct {
	Speaker string  `json:"speaker"`
	Text    string  `json:"text"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
}

// Speakers returns the distinct speaker slots of the transcript in order of
// first appearance.
func (j Job) Speakers() []string {
	seen := make(map[string]struct{}, 4)
	slots := make([]string, 0, 4)
	for _, block := range j.Transcript {
		if _, ok := seen[block.Speaker]; ok {
			continue
		}
		seen[block.Speaker] = struct{}{}
		slots = append(slots, block.Speaker)
	}
	return slots
}

// EffectiveMapping merges the AI proposal with human overrides; overrides win
// key for key.
func (j Job) EffectiveMapping() map[string]string {
	merged := make(map[string]string, len(j.AIMapping)+len(j.Overrides))
	for slot, name := range j.AIMapping {
		merged[slot] = name
	}
	for slot, name := range j.Overrides {
		merged[slot] = name
	}
	return merged
}

// LogStatus is the publication state of a log entry.
type LogStatus string

const (
	LogPending    LogStatus = "pending"
	LogPublishing LogStatus = "publishing"
	LogPublished  LogStatus = "published"
)

var logTransitions = map[LogStatus][]LogStatus{
	LogPending:    {LogPublishing},
	LogPublishing: {LogPublished, LogPending},
	LogPublished:  {},
}

// CanTransition reports whether the publication lifecycle allows from → to.
func (s LogStatus) CanTransition(to LogStatus) bool {
	for _, next := range logTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// LogEntry is the durable meeting log record keyed by job id.
type LogEntry struct {
	JobID        string
	Status       LogStatus
	MeetingTime  string
	MeetingName  string
	MeetingType  string
	Speakers     string
	Summary      string
	ProjectTag   string
	VideoLink    string
	JobLink      string
	DocumentLink string
	Attempts     int
	LastError    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	PublishedAt  *time.Time
}

// Row renders the sheet columns in header order. Meeting type, speakers and
// summary follow the status column so sheets created with the original seven
// columns keep their layout.
func (e LogEntry) Row() []string {
	return []string{
		e.MeetingTime,
		e.MeetingName,
		e.ProjectTag,
		e.VideoLink,
		e.JobLink,
		e.DocumentLink,
		"Processed",
		e.MeetingType,
		e.Speakers,
		e.Summary,
	}
}

// OfflineKind selects one of the offline FIFO queues.
type OfflineKind string

const (
	OfflineVideo    OfflineKind = "video"
	OfflineLogEntry OfflineKind = "log_entry"
)

// MaxOfflineAttempts is the number of permanent failures after which an
// offline item is parked instead of blocking its queue.
const MaxOfflineAttempts = 3

// OfflineItem is a deferred operation waiting for connectivity. Ref is the
// asset id for video items and the job id for log entries. Parked items are
// skipped by Drain until Unpark returns them to the queue.
type OfflineItem struct {
	ID         int64
	Kind       OfflineKind
	Ref        string
	EnqueuedAt time.Time
	Attempts   int
	LastError  string
	ParkedAt   *time.Time
}

// Parked reports whether the item was set aside after repeated failures.
func (i OfflineItem) Parked() bool {
	return i.ParkedAt != nil
}

// PromptAction names what a button press does.
type PromptAction string

const (
	ActionSelect        PromptAction = "select"
	ActionRetry         PromptAction = "retry"
	ActionCancel        PromptAction = "cancel"
	ActionAssignSpeaker PromptAction = "assign_speaker"
	ActionSwapSpeakers  PromptAction = "swap_speakers"
	ActionSwapPick      PromptAction = "swap_pick"
	ActionFinalize      PromptAction = "finalize"
	ActionCancelJob     PromptAction = "cancel_job"
)

// Prompt maps a short callback token to the action it triggers.
type Prompt struct {
	Token       string
	Action      PromptAction
	SessionID   string
	JobID       string
	OptionIndex int
	SpeakerSlot string
	CreatedAt   time.Time
	UsedAt      *time.Time
}

// PendingReply routes a free-text answer to a speaker rename.
type PendingReply struct {
	ChatID      int64
	MessageID   int64
	JobID       string
	SpeakerSlot string
	CreatedAt   time.Time
}

// Summary aggregates counts for status output.
type Summary struct {
	Assets      map[AssetStatus]int
	Jobs        map[JobPhase]int
	LogEntries  map[LogStatus]int
	OfflineLen  map[OfflineKind]int
	OpenSession int
}
