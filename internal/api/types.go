package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Asset describes a recording in a transport-friendly format.
type Asset struct {
	ID           int64  `json:"id"`
	FileName     string `json:"fileName"`
	SourcePath   string `json:"sourcePath"`
	Status       string `json:"status"`
	RecordedAt   string `json:"recordedAt,omitempty"`
	MeetingTitle string `json:"meetingTitle,omitempty"`
	MeetingStart string `json:"meetingStart,omitempty"`
	OutputPath   string `json:"outputPath,omitempty"`
	Fallback     bool   `json:"fallback"`
	JobID        string `json:"jobId,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
	CreatedAt    string `json:"createdAt,omitempty"`
	UpdatedAt    string `json:"updatedAt,omitempty"`
}

// Speaker pairs a diarization slot with the name that will be published.
type Speaker struct {
	Slot   string `json:"slot"`
	Name   string `json:"name"`
	Source string `json:"source"`
}

// Job describes a transcription job.
type Job struct {
	ID             string    `json:"id"`
	AssetID        int64     `json:"assetId"`
	Phase          string    `json:"phase"`
	MeetingTitle   string    `json:"meetingTitle"`
	MeetingStart   string    `json:"meetingStart,omitempty"`
	VideoPath      string    `json:"videoPath,omitempty"`
	TranscriptPath string    `json:"transcriptPath,omitempty"`
	Speakers       []Speaker `json:"speakers,omitempty"`
	Blocks         int       `json:"blocks"`
	ErrorMessage   string    `json:"errorMessage,omitempty"`
	CreatedAt      string    `json:"createdAt,omitempty"`
	FinalizedAt    string    `json:"finalizedAt,omitempty"`
}

// OfflineItem describes deferred work waiting for connectivity.
type OfflineItem struct {
	ID         int64  `json:"id"`
	Kind       string `json:"kind"`
	Ref        string `json:"ref"`
	EnqueuedAt string `json:"enqueuedAt,omitempty"`
	Attempts   int    `json:"attempts,omitempty"`
	LastError  string `json:"lastError,omitempty"`
	Parked     bool   `json:"parked,omitempty"`
}

// WorkflowStatus summarizes workflow execution state.
type WorkflowStatus struct {
	Running      bool           `json:"running"`
	Online       bool           `json:"online"`
	LastError    string         `json:"lastError,omitempty"`
	LastFile     string         `json:"lastFile,omitempty"`
	Assets       map[string]int `json:"assets"`
	Jobs         map[string]int `json:"jobs"`
	LogEntries   map[string]int `json:"logEntries"`
	Offline      map[string]int `json:"offline"`
	OpenSessions int            `json:"openSessions"`
}

// StatusLine is one labelled readiness line rendered by status views.
type StatusLine struct {
	Label    string `json:"label"`
	Severity string `json:"severity"`
	Detail   string `json:"detail,omitempty"`
}

// DaemonStatus describes the running daemon.
type DaemonStatus struct {
	Running      bool           `json:"running"`
	PID          int            `json:"pid"`
	DatabasePath string         `json:"databasePath"`
	LockFilePath string         `json:"lockFilePath"`
	Workflow     WorkflowStatus `json:"workflow"`
}

// AssetListResponse wraps asset listings.
type AssetListResponse struct {
	Assets []Asset `json:"assets"`
}

// JobListResponse wraps job listings.
type JobListResponse struct {
	Jobs []Job `json:"jobs"`
}

// JobResponse wraps a single job with its rendered transcript.
type JobResponse struct {
	Job   Job      `json:"job"`
	Lines []string `json:"lines,omitempty"`
}

// OfflineListResponse wraps the deferred work queues.
type OfflineListResponse struct {
	Items []OfflineItem `json:"items"`
}
