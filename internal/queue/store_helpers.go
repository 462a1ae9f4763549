package queue

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

type rowScanner interface {
	Scan(dest ...any) error
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}

func nullableInt64(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func parseNullTime(value sql.NullString) *time.Time {
	if !value.Valid {
		return nil
	}
	t, err := parseTimeString(value.String)
	if err != nil {
		return nil
	}
	return &t
}

func parseTimeOrZero(value sql.NullString) time.Time {
	t, _ := parseTimeString(value.String)
	return t
}

func encodeMapping(mapping map[string]string) (string, error) {
	if len(mapping) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(mapping)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeMapping(raw sql.NullString) map[string]string {
	mapping := map[string]string{}
	if !raw.Valid || raw.String == "" {
		return mapping
	}
	_ = json.Unmarshal([]byte(raw.String), &mapping)
	return mapping
}

const assetColumns = "id, source_path, file_name, status, recorded_at, timestamp_token, timestamp_format, meeting_title, meeting_start, renamed_path, output_path, fallback, job_id, error_message, created_at, updated_at"

func scanAsset(scanner rowScanner) (*Asset, error) {
	var (
		asset        Asset
		status       string
		recordedAt   sql.NullString
		token        sql.NullString
		format       sql.NullString
		title        sql.NullString
		meetingStart sql.NullString
		renamedPath  sql.NullString
		outputPath   sql.NullString
		fallback     sql.NullInt64
		jobID        sql.NullString
		errorMessage sql.NullString
		createdRaw   sql.NullString
		updatedRaw   sql.NullString
	)
	if err := scanner.Scan(
		&asset.ID,
		&asset.SourcePath,
		&asset.FileName,
		&status,
		&recordedAt,
		&token,
		&format,
		&title,
		&meetingStart,
		&renamedPath,
		&outputPath,
		&fallback,
		&jobID,
		&errorMessage,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}
	asset.Status = AssetStatus(status)
	asset.RecordedAt = parseNullTime(recordedAt)
	asset.TimestampToken = token.String
	asset.TimestampFormat = format.String
	asset.MeetingTitle = title.String
	asset.MeetingStart = parseNullTime(meetingStart)
	asset.RenamedPath = renamedPath.String
	asset.OutputPath = outputPath.String
	asset.Fallback = fallback.Valid && fallback.Int64 != 0
	asset.JobID = jobID.String
	asset.ErrorMessage = errorMessage.String
	asset.CreatedAt = parseTimeOrZero(createdRaw)
	asset.UpdatedAt = parseTimeOrZero(updatedRaw)
	return &asset, nil
}

const sessionColumns = "id, asset_id, kind, state, candidates_json, chosen_index, prompt_message_id, created_at, updated_at"

func scanSession(scanner rowScanner) (*Session, error) {
	var (
		session    Session
		kind       string
		state      string
		candidates sql.NullString
		chosen     sql.NullInt64
		messageID  sql.NullInt64
		createdRaw sql.NullString
		updatedRaw sql.NullString
	)
	if err := scanner.Scan(
		&session.ID,
		&session.AssetID,
		&kind,
		&state,
		&candidates,
		&chosen,
		&messageID,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}
	session.Kind = SessionKind(kind)
	session.State = SessionState(state)
	if candidates.Valid && candidates.String != "" {
		if err := json.Unmarshal([]byte(candidates.String), &session.Candidates); err != nil {
			return nil, err
		}
	}
	if chosen.Valid {
		idx := int(chosen.Int64)
		session.ChosenIndex = &idx
	}
	session.PromptMessageID = messageID.Int64
	session.CreatedAt = parseTimeOrZero(createdRaw)
	session.UpdatedAt = parseTimeOrZero(updatedRaw)
	return &session, nil
}

const jobColumns = "id, asset_id, phase, meeting_title, meeting_start, video_path, ai_mapping_json, overrides_json, transcript_json, transcript_path, review_message_id, error_message, created_at, updated_at, finalized_at"

func scanJob(scanner rowScanner) (*Job, error) {
	var (
		job            Job
		assetID        sql.NullInt64
		phase          string
		meetingStart   sql.NullString
		aiMapping      sql.NullString
		overrides      sql.NullString
		transcript     sql.NullString
		transcriptPath sql.NullString
		reviewID       sql.NullInt64
		errorMessage   sql.NullString
		createdRaw     sql.NullString
		updatedRaw     sql.NullString
		finalizedRaw   sql.NullString
	)
	if err := scanner.Scan(
		&job.ID,
		&assetID,
		&phase,
		&job.MeetingTitle,
		&meetingStart,
		&job.VideoPath,
		&aiMapping,
		&overrides,
		&transcript,
		&transcriptPath,
		&reviewID,
		&errorMessage,
		&createdRaw,
		&updatedRaw,
		&finalizedRaw,
	); err != nil {
		return nil, err
	}
	job.AssetID = assetID.Int64
	job.Phase = JobPhase(phase)
	job.MeetingStart = parseNullTime(meetingStart)
	job.AIMapping = decodeMapping(aiMapping)
	job.Overrides = decodeMapping(overrides)
	if transcript.Valid && transcript.String != "" {
		if err := json.Unmarshal([]byte(transcript.String), &job.Transcript); err != nil {
			return nil, err
		}
	}
	job.TranscriptPath = transcriptPath.String
	job.ReviewMessageID = reviewID.Int64
	job.ErrorMessage = errorMessage.String
	job.CreatedAt = parseTimeOrZero(createdRaw)
	job.UpdatedAt = parseTimeOrZero(updatedRaw)
	job.FinalizedAt = parseNullTime(finalizedRaw)
	return &job, nil
}

const logEntryColumns = "job_id, status, meeting_time, meeting_name, meeting_type, speakers, summary, project_tag, video_link, job_link, document_link, attempts, last_error, created_at, updated_at, published_at"

func scanLogEntry(scanner rowScanner) (*LogEntry, error) {
	var (
		entry        LogEntry
		status       string
		meetingType  sql.NullString
		speakers     sql.NullString
		summary      sql.NullString
		projectTag   sql.NullString
		videoLink    sql.NullString
		jobLink      sql.NullString
		documentLink sql.NullString
		lastError    sql.NullString
		createdRaw   sql.NullString
		updatedRaw   sql.NullString
		publishedRaw sql.NullString
	)
	if err := scanner.Scan(
		&entry.JobID,
		&status,
		&entry.MeetingTime,
		&entry.MeetingName,
		&meetingType,
		&speakers,
		&summary,
		&projectTag,
		&videoLink,
		&jobLink,
		&documentLink,
		&entry.Attempts,
		&lastError,
		&createdRaw,
		&updatedRaw,
		&publishedRaw,
	); err != nil {
		return nil, err
	}
	entry.Status = LogStatus(status)
	entry.MeetingType = meetingType.String
	entry.Speakers = speakers.String
	entry.Summary = summary.String
	entry.ProjectTag = projectTag.String
	entry.VideoLink = videoLink.String
	entry.JobLink = jobLink.String
	entry.DocumentLink = documentLink.String
	entry.LastError = lastError.String
	entry.CreatedAt = parseTimeOrZero(createdRaw)
	entry.UpdatedAt = parseTimeOrZero(updatedRaw)
	entry.PublishedAt = parseNullTime(publishedRaw)
	return &entry, nil
}
