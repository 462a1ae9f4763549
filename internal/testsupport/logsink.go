package testsupport

import (
	"context"
	"fmt"
	"sync"
)

// LogSink is an in-memory meeting log and document store.
type LogSink struct {
	mu        sync.Mutex
	rows      [][]string
	tabs      map[string][]string
	documents map[string]string

	ProjectRows [][]string
	ProjectsErr error
	AppendErr   error
	UploadErr   error
	// RejectRow, when set, fails appends of the rows it returns an error for.
	RejectRow func(row []string) error
}

// NewLogSink returns an empty sink.
func NewLogSink() *LogSink {
	return &LogSink{
		tabs:      make(map[string][]string),
		documents: make(map[string]string),
	}
}

func (s *LogSink) AppendRow(_ context.Context, _, _ string, row []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.AppendErr != nil {
		return s.AppendErr
	}
	if s.RejectRow != nil {
		if err := s.RejectRow(row); err != nil {
			return err
		}
	}
	s.rows = append(s.rows, append([]string(nil), row...))
	return nil
}

func (s *LogSink) ReadProjects(context.Context, string, string) ([][]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ProjectsErr != nil {
		return nil, s.ProjectsErr
	}
	return s.ProjectRows, nil
}

func (s *LogSink) EnsureTabs(_ context.Context, _ string, headers map[string][]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for tab, header := range headers {
		s.tabs[tab] = append([]string(nil), header...)
	}
	return nil
}

func (s *LogSink) UploadDocument(_ context.Context, name, content, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.UploadErr != nil {
		return "", s.UploadErr
	}
	s.documents[name] = content
	return fmt.Sprintf("https://docs.test/%s", name), nil
}

// Rows returns the appended rows.
func (s *LogSink) Rows() [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]string, len(s.rows))
	copy(out, s.rows)
	return out
}

// Tabs returns the header row ensured for each tab.
func (s *LogSink) Tabs() map[string][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string][]string, len(s.tabs))
	for k, v := range s.tabs {
		out[k] = v
	}
	return out
}

// Document returns the uploaded content for name.
func (s *LogSink) Document(name string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	content, ok := s.documents[name]
	return content, ok
}

// SetAppendErr changes the append failure under the lock.
func (s *LogSink) SetAppendErr(err error) {
	s.mu.Lock()
	s.AppendErr = err
	s.mu.Unlock()
}

// SetUploadErr changes the upload failure under the lock.
func (s *LogSink) SetUploadErr(err error) {
	s.mu.Lock()
	s.UploadErr = err
	s.mu.Unlock()
}

// SetProjectsErr changes the project tab read failure under the lock.
func (s *LogSink) SetProjectsErr(err error) {
	s.mu.Lock()
	s.ProjectsErr = err
	s.mu.Unlock()
}

// SetRejectRow changes the per-row append failure under the lock.
func (s *LogSink) SetRejectRow(fn func(row []string) error) {
	s.mu.Lock()
	s.RejectRow = fn
	s.mu.Unlock()
}
