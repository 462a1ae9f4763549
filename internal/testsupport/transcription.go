package testsupport

import (
	"context"
	"fmt"
	"sync"
)

// TranscriptionService is an in-memory transcription backend. Jobs report
// the statuses in Statuses one call at a time and then stay on the last one.
type TranscriptionService struct {
	mu        sync.Mutex
	nextID    int
	uploads   []string
	started   []string
	cancelled []string
	updates   map[string][]map[string]string
	polls     map[string]int

	Statuses       []string
	TranscriptJSON []byte
	UploadErr      error
	StatusErr      error
	UpdateErr      error
}

// NewTranscriptionService returns a service whose jobs complete on the
// first status check with the given transcript.
func NewTranscriptionService(transcriptJSON string) *TranscriptionService {
	return &TranscriptionService{
		Statuses:       []string{"completed"},
		TranscriptJSON: []byte(transcriptJSON),
		updates:        make(map[string][]map[string]string),
		polls:          make(map[string]int),
	}
}

func (s *TranscriptionService) Upload(_ context.Context, path, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.UploadErr != nil {
		return "", s.UploadErr
	}
	s.nextID++
	s.uploads = append(s.uploads, path)
	return fmt.Sprintf("job-%d", s.nextID), nil
}

func (s *TranscriptionService) Start(_ context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = append(s.started, jobID)
	return nil
}

func (s *TranscriptionService) Status(_ context.Context, jobID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.StatusErr != nil {
		return "", s.StatusErr
	}
	idx := s.polls[jobID]
	s.polls[jobID] = idx + 1
	if len(s.Statuses) == 0 {
		return "processing", nil
	}
	if idx >= len(s.Statuses) {
		idx = len(s.Statuses) - 1
	}
	return s.Statuses[idx], nil
}

func (s *TranscriptionService) Transcript(context.Context, string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.TranscriptJSON...), nil
}

func (s *TranscriptionService) UpdateSpeakers(_ context.Context, jobID string, mapping map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.UpdateErr != nil {
		return s.UpdateErr
	}
	copied := make(map[string]string, len(mapping))
	for k, v := range mapping {
		copied[k] = v
	}
	s.updates[jobID] = append(s.updates[jobID], copied)
	return nil
}

func (s *TranscriptionService) Cancel(_ context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelled = append(s.cancelled, jobID)
	return nil
}

func (s *TranscriptionService) JobLink(jobID string) string {
	return "http://scriberr.test/transcription/" + jobID
}

// Uploads returns the uploaded paths in order.
func (s *TranscriptionService) Uploads() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.uploads...)
}

// Cancelled returns the cancelled job ids.
func (s *TranscriptionService) Cancelled() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.cancelled...)
}

// SpeakerUpdates returns every mapping pushed for jobID.
func (s *TranscriptionService) SpeakerUpdates(jobID string) []map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]map[string]string(nil), s.updates[jobID]...)
}

// LastSpeakers returns the most recent mapping pushed for jobID.
func (s *TranscriptionService) LastSpeakers(jobID string) map[string]string {
	updates := s.SpeakerUpdates(jobID)
	if len(updates) == 0 {
		return nil
	}
	return updates[len(updates)-1]
}

// SetUpdateErr changes the UpdateSpeakers failure under the lock.
func (s *TranscriptionService) SetUpdateErr(err error) {
	s.mu.Lock()
	s.UpdateErr = err
	s.mu.Unlock()
}

// SetStatuses changes the scripted statuses under the lock.
func (s *TranscriptionService) SetStatuses(statuses ...string) {
	s.mu.Lock()
	s.Statuses = statuses
	s.mu.Unlock()
}

// SetUploadErr changes the upload error under the lock.
func (s *TranscriptionService) SetUploadErr(err error) {
	s.mu.Lock()
	s.UploadErr = err
	s.mu.Unlock()
}
