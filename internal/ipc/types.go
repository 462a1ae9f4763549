package ipc

import "meetsync/internal/api"

// StartRequest requests the daemon to start processing.
type StartRequest struct{}

// StartResponse acknowledges a start request.
type StartResponse struct {
	Started bool   `json:"started"`
	Message string `json:"message"`
}

// StopRequest requests the daemon to stop processing and exit.
type StopRequest struct{}

// StopResponse acknowledges a stop request.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}

// StatusRequest requests daemon status.
type StatusRequest struct{}

// StatusResponse reports daemon status and workflow counts.
type StatusResponse struct {
	Running      bool               `json:"running"`
	PID          int                `json:"pid"`
	DatabasePath string             `json:"database_path"`
	LockPath     string             `json:"lock_path"`
	Workflow     api.WorkflowStatus `json:"workflow"`
}

// AddRequest registers a recording by hand.
type AddRequest struct {
	SourcePath string `json:"source_path"`
}

// AddResponse returns the registered asset.
type AddResponse struct {
	Asset api.Asset `json:"asset"`
}

// AssetListRequest lists recordings, optionally filtered by status.
type AssetListRequest struct {
	Statuses []string `json:"statuses"`
}

// AssetListResponse returns recordings.
type AssetListResponse struct {
	Assets []api.Asset `json:"assets"`
}

// OfflineListRequest lists the deferred work queues.
type OfflineListRequest struct{}

// OfflineListResponse returns queued offline items, videos first.
type OfflineListResponse struct {
	Items []api.OfflineItem `json:"items"`
}

// FlushRequest drains the deferred work queues.
type FlushRequest struct{}

// FlushResponse reports how many items were drained.
type FlushResponse struct {
	Videos     int `json:"videos"`
	LogEntries int `json:"log_entries"`
}

// JobListRequest lists transcription jobs, optionally filtered by phase.
type JobListRequest struct {
	Phases []string `json:"phases"`
}

// JobListResponse returns transcription jobs.
type JobListResponse struct {
	Jobs []api.Job `json:"jobs"`
}

// JobShowRequest fetches one job with its transcript.
type JobShowRequest struct {
	ID string `json:"id"`
}

// JobShowResponse returns one job and its rendered transcript lines.
type JobShowResponse struct {
	Job   api.Job  `json:"job"`
	Lines []string `json:"lines"`
}

// JobFinalizeRequest finalizes a job awaiting speaker review.
type JobFinalizeRequest struct {
	ID string `json:"id"`
}

// JobFinalizeResponse reports the job phase after the request.
type JobFinalizeResponse struct {
	Phase string `json:"phase"`
}

// JobCancelRequest aborts an in-flight job.
type JobCancelRequest struct {
	ID string `json:"id"`
}

// JobCancelResponse acknowledges a cancel.
type JobCancelResponse struct {
	Cancelled bool `json:"cancelled"`
}

// SpeakerRenameRequest sets the published name for a speaker slot.
type SpeakerRenameRequest struct {
	JobID string `json:"job_id"`
	Slot  string `json:"slot"`
	Name  string `json:"name"`
}

// SpeakerRenameResponse returns the job after the rename.
type SpeakerRenameResponse struct {
	Job api.Job `json:"job"`
}

// LogTailRequest fetches log lines based on offset and follow semantics.
type LogTailRequest struct {
	Offset     int64  `json:"offset"`
	Limit      int    `json:"limit"`
	Follow     bool   `json:"follow"`
	WaitMillis int    `json:"wait_millis"`
	Match      string `json:"match"`
}

// LogTailResponse returns log lines and the next offset.
type LogTailResponse struct {
	Lines  []string `json:"lines"`
	Offset int64    `json:"offset"`
}

// DatabaseHealthRequest fetches detailed database diagnostics.
type DatabaseHealthRequest struct{}

// DatabaseHealthResponse reports database health information.
type DatabaseHealthResponse struct {
	DBPath           string   `json:"db_path"`
	DatabaseExists   bool     `json:"database_exists"`
	DatabaseReadable bool     `json:"database_readable"`
	SchemaVersion    int      `json:"schema_version"`
	TablesPresent    []string `json:"tables_present"`
	MissingTables    []string `json:"missing_tables"`
	IntegrityCheck   bool     `json:"integrity_check"`
	Error            string   `json:"error"`
}

// TestNotificationRequest triggers a notification test.
type TestNotificationRequest struct{}

// TestNotificationResponse reports notification test outcome.
type TestNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}
