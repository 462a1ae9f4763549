package publication

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"meetsync/internal/config"
	"meetsync/internal/logging"
	"meetsync/internal/queue"
	"meetsync/internal/services/llm"
	"meetsync/internal/transcript"
)

// MeetingTimeLayout is the sheet format of the meeting time column.
const MeetingTimeLayout = "2006-01-02 15:04:05"

// similarityFloor is the minimum fingerprint similarity accepted when the
// classifier is unavailable.
const similarityFloor = 0.15

const classifySystemPrompt = `You summarise meeting transcripts.
Respond with a JSON object with two fields:
  "meeting_type": a short label such as "Standup", "Planning", "Client Call", "Interview", "1:1" or "Workshop"
  "summary": two or three sentences covering decisions and follow-ups
Return only the JSON object.`

const tagSystemPrompt = `You are a classifier. Choose ONE project tag from the list you are given.
Return ONLY the project name string, or NONE when no project fits.`

// Sink is the durable meeting log.
type Sink interface {
	AppendRow(ctx context.Context, sheetID, tab string, row []string) error
	ReadProjects(ctx context.Context, sheetID, tab string) ([][]string, error)
	EnsureTabs(ctx context.Context, sheetID string, headers map[string][]string) error
}

// DocumentStore stores rendered transcripts and returns a shareable link.
type DocumentStore interface {
	UploadDocument(ctx context.Context, name, content, folder string) (string, error)
}

// Builder assembles log entries for finalized jobs.
type Builder struct {
	sink         Sink
	docs         DocumentStore
	completer    llm.Completer
	jobLink      func(jobID string) string
	sheetID      string
	projectTab   string
	projectsFile string
	folderID     string
	loc          *time.Location
	maxTokens    int
	logger       *slog.Logger
}

// NewBuilder constructs a Builder. docs and completer may be nil; entries are
// then enriched without a document link or AI classification.
func NewBuilder(cfg *config.Config, sink Sink, docs DocumentStore, completer llm.Completer, jobLink func(string) string, logger *slog.Logger) *Builder {
	return &Builder{
		sink:         sink,
		docs:         docs,
		completer:    completer,
		jobLink:      jobLink,
		sheetID:      cfg.Google.SheetsID,
		projectTab:   cfg.Google.ProjectTab,
		projectsFile: cfg.Paths.ProjectsFile,
		folderID:     cfg.Google.DriveFolderID,
		loc:          cfg.Location(),
		maxTokens:    cfg.LLM.MaxTokens,
		logger:       logging.NewComponentLogger(logger, "publication"),
	}
}

// Base fills the entry fields derived from the job alone. It calls no
// collaborator, so it is safe while offline.
func (b *Builder) Base(job *queue.Job) *queue.LogEntry {
	entry := &queue.LogEntry{
		JobID:       job.ID,
		MeetingTime: b.MeetingTime(job),
		MeetingName: job.MeetingTitle,
		Speakers:    speakerNames(job, job.EffectiveMapping()),
		VideoLink:   VideoLink(job.VideoPath),
	}
	if b.jobLink != nil {
		entry.JobLink = b.jobLink(job.ID)
	}
	return entry
}

// Enrich fills the document link, classification and project tag that entry
// still lacks and reports whether any field changed. Collaborator failures
// leave the affected field empty for a later attempt.
func (b *Builder) Enrich(ctx context.Context, job *queue.Job, entry *queue.LogEntry) bool {
	changed := false
	if entry.DocumentLink == "" {
		if link, err := b.UploadTranscript(ctx, job); err == nil && link != "" {
			entry.DocumentLink = link
			changed = true
		}
	}
	if ctx.Err() != nil {
		return changed
	}
	text := llm.TrimInput(transcript.Format(job.Transcript, job.EffectiveMapping()), b.maxTokens)
	if entry.MeetingType == "" && entry.Summary == "" {
		entry.MeetingType, entry.Summary = b.Classify(ctx, job.MeetingTitle, text)
		changed = changed || entry.MeetingType != "" || entry.Summary != ""
	}
	if entry.ProjectTag == "" && ctx.Err() == nil {
		entry.ProjectTag = b.Tag(ctx, job.MeetingTitle+"\n"+text)
		changed = changed || entry.ProjectTag != ""
	}
	return changed
}

// MeetingTime renders the meeting start in the configured offset, falling
// back to the job creation time.
func (b *Builder) MeetingTime(job *queue.Job) string {
	start := job.CreatedAt
	if job.MeetingStart != nil {
		start = *job.MeetingStart
	}
	if start.IsZero() {
		return ""
	}
	return start.In(b.loc).Format(MeetingTimeLayout)
}

// UploadTranscript renders the final transcript as HTML and stores it as a
// document.
func (b *Builder) UploadTranscript(ctx context.Context, job *queue.Job) (string, error) {
	if b.docs == nil {
		return "", nil
	}
	html, err := transcript.RenderHTML(job.MeetingTitle, job.Transcript, job.EffectiveMapping())
	if err != nil {
		return "", err
	}
	name := strings.TrimSuffix(filepath.Base(job.VideoPath), filepath.Ext(job.VideoPath)) + "_transcript"
	link, err := b.docs.UploadDocument(ctx, name, html, b.folderID)
	if err != nil {
		logging.WarnWithContext(b.logger, "transcript document upload failed", "document_upload_failed",
			logging.String(logging.FieldJobID, job.ID),
			logging.Error(err),
			logging.String(logging.FieldImpact, "log row published without a document link unless a retry succeeds"),
			logging.String(logging.FieldErrorHint, "check Drive credentials and folder permissions"),
		)
		return "", err
	}
	return link, nil
}

// Classify asks the completer for the meeting type and a short summary.
func (b *Builder) Classify(ctx context.Context, title, text string) (string, string) {
	if b.completer == nil || strings.TrimSpace(text) == "" {
		return "", ""
	}
	user := fmt.Sprintf("Meeting title: %s\n\nTranscript:\n%s", title, text)
	content, err := b.completer.CompleteJSON(ctx, classifySystemPrompt, user)
	if err != nil {
		logging.WarnWithContext(b.logger, "meeting classification failed", "meeting_classify_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "entry stored without meeting type and summary"),
		)
		return "", ""
	}
	var parsed struct {
		MeetingType string `json:"meeting_type"`
		Summary     string `json:"summary"`
	}
	if err := llm.DecodeLLMJSON(content, &parsed); err != nil {
		logging.WarnWithContext(b.logger, "meeting classification returned invalid JSON", "meeting_classify_invalid",
			logging.Error(err),
			logging.String(logging.FieldImpact, "entry stored without meeting type and summary"),
		)
		return "", ""
	}
	return strings.TrimSpace(parsed.MeetingType), strings.TrimSpace(parsed.Summary)
}

// Projects loads the sheet project tab merged with the local projects file.
func (b *Builder) Projects(ctx context.Context) []Project {
	var fromSheet []Project
	if b.sink != nil && b.sheetID != "" {
		rows, err := b.sink.ReadProjects(ctx, b.sheetID, b.projectTab)
		if err != nil {
			logging.WarnWithContext(b.logger, "project list unavailable", "projects_read_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "only local projects are considered for tagging"),
			)
		}
		fromSheet = ProjectsFromRows(rows)
	}
	fromFile, err := LoadProjectsFile(b.projectsFile)
	if err != nil {
		logging.WarnWithContext(b.logger, "projects file ignored", "projects_file_invalid",
			logging.String("path", b.projectsFile),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "fix the YAML syntax of the projects file"),
		)
	}
	return MergeProjects(fromSheet, fromFile)
}

// Tag picks a project for the meeting: keyword match first, then the
// classifier, then fingerprint similarity when no classifier answered.
func (b *Builder) Tag(ctx context.Context, text string) string {
	projects := b.Projects(ctx)
	if len(projects) == 0 {
		return ""
	}
	if project, ok := MatchKeywords(projects, text); ok {
		b.logTag(project.Name, "keyword match")
		return project.Name
	}
	if b.completer != nil {
		var list strings.Builder
		for _, project := range projects {
			fmt.Fprintf(&list, "- %s: %s\n", project.Name, strings.Join(project.Keywords, ", "))
		}
		user := "Projects:\n" + list.String() + "\nTranscript:\n" + text
		answer, err := b.completer.Complete(ctx, tagSystemPrompt, user)
		if err == nil {
			if project, ok := FindProject(projects, answer); ok {
				b.logTag(project.Name, "classifier")
				return project.Name
			}
			b.logTag("", "classifier found no project")
			return ""
		}
		logging.WarnWithContext(b.logger, "project classifier failed", "project_classify_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "falling back to text similarity"),
		)
	}
	if project, ok := MatchSimilarity(projects, text, similarityFloor); ok {
		b.logTag(project.Name, "text similarity")
		return project.Name
	}
	b.logTag("", "no project matched")
	return ""
}

func (b *Builder) logTag(result, reason string) {
	if result == "" {
		result = "none"
	}
	b.logger.Info("project tag decided", logging.Args(logging.DecisionAttrs("project_tag", result, reason)...)...)
}

// VideoLink returns a file:// URL for a local recording.
func VideoLink(path string) string {
	if path == "" {
		return ""
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(path)}).String()
}

func speakerNames(job *queue.Job, mapping map[string]string) string {
	slots := job.Speakers()
	names := make([]string, 0, len(slots))
	for _, slot := range slots {
		name := strings.TrimSpace(mapping[slot])
		if name == "" {
			name = slot
		}
		names = append(names, name)
	}
	return strings.Join(names, ", ")
}
