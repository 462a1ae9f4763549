package scriberr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"meetsync/internal/config"
	"meetsync/internal/services"
)

const apiPrefix = "/api/v1/transcription"

// Job statuses reported by the server.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Client is a Scriberr API client.
type Client struct {
	baseURL    string
	apiKey     string
	params     StartParams
	httpClient *http.Client
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// New constructs a client from the scriberr section of cfg.
func New(cfg config.Scriberr, opts ...Option) *Client {
	timeout := time.Duration(cfg.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	client := &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey:     strings.TrimSpace(cfg.APIKey),
		params:     DefaultStartParams(cfg),
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// JobLink returns the web UI link of a transcription job.
func (c *Client) JobLink(jobID string) string {
	return c.baseURL + "/transcription/" + jobID
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("scriberr: http %d: %s", e.StatusCode, strings.TrimSpace(e.Body))
}

// Upload streams the file at path to the server and returns the new job id.
func (c *Client) Upload(ctx context.Context, path, title string) (string, error) {
	const op = "upload"
	file, err := os.Open(path)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "scriberr", op, "open video", err)
	}
	defer file.Close()

	body, writer := io.Pipe()
	form := multipart.NewWriter(writer)
	go func() {
		part, err := form.CreateFormFile("video", filepath.Base(path))
		if err == nil {
			_, err = io.Copy(part, file)
		}
		if err == nil {
			err = form.WriteField("title", title)
		}
		if err == nil {
			err = form.Close()
		}
		writer.CloseWithError(err)
	}()

	req, err := c.newRequest(ctx, http.MethodPost, apiPrefix+"/upload-video", body)
	if err != nil {
		return "", services.Wrap(services.ErrConfiguration, "scriberr", op, "build request", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	var resp struct {
		ID string `json:"id"`
	}
	if err := c.do(req, op, &resp); err != nil {
		return "", err
	}
	if strings.TrimSpace(resp.ID) == "" {
		return "", services.Wrap(services.ErrExternalTool, "scriberr", op, "response missing job id", nil)
	}
	return resp.ID, nil
}

// Start begins transcription of an uploaded job with the configured
// parameters.
func (c *Client) Start(ctx context.Context, jobID string) error {
	return c.postJSON(ctx, "start", apiPrefix+"/"+jobID+"/start", c.params)
}

// Status returns the job status string.
func (c *Client) Status(ctx context.Context, jobID string) (string, error) {
	req, err := c.newRequest(ctx, http.MethodGet, apiPrefix+"/"+jobID+"/status", nil)
	if err != nil {
		return "", services.Wrap(services.ErrConfiguration, "scriberr", "status", "build request", err)
	}
	var resp struct {
		Status string `json:"status"`
	}
	if err := c.do(req, "status", &resp); err != nil {
		return "", err
	}
	return strings.ToLower(strings.TrimSpace(resp.Status)), nil
}

// Transcript downloads the raw transcript payload.
func (c *Client) Transcript(ctx context.Context, jobID string) ([]byte, error) {
	req, err := c.newRequest(ctx, http.MethodGet, apiPrefix+"/"+jobID+"/transcript", nil)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "scriberr", "transcript", "build request", err)
	}
	var raw json.RawMessage
	if err := c.do(req, "transcript", &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

type speakerMapping struct {
	OriginalSpeaker string `json:"original_speaker"`
	CustomName      string `json:"custom_name"`
}

// UpdateSpeakers pushes a slot → name mapping. Entries are sent in slot order.
func (c *Client) UpdateSpeakers(ctx context.Context, jobID string, mapping map[string]string) error {
	slots := make([]string, 0, len(mapping))
	for slot, name := range mapping {
		if strings.TrimSpace(slot) == "" || strings.TrimSpace(name) == "" {
			continue
		}
		slots = append(slots, slot)
	}
	if len(slots) == 0 {
		return nil
	}
	sort.Strings(slots)
	payload := struct {
		Mappings []speakerMapping `json:"mappings"`
	}{Mappings: make([]speakerMapping, 0, len(slots))}
	for _, slot := range slots {
		payload.Mappings = append(payload.Mappings, speakerMapping{
			OriginalSpeaker: strings.TrimSpace(slot),
			CustomName:      strings.TrimSpace(mapping[slot]),
		})
	}
	return c.postJSON(ctx, "update speakers", apiPrefix+"/"+jobID+"/speakers", payload)
}

// Cancel asks the server to stop a running job.
func (c *Client) Cancel(ctx context.Context, jobID string) error {
	return c.postJSON(ctx, "cancel", apiPrefix+"/"+jobID+"/cancel", nil)
}

func (c *Client) postJSON(ctx context.Context, op, path string, payload any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return services.Wrap(services.ErrValidation, "scriberr", op, "encode payload", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := c.newRequest(ctx, http.MethodPost, path, body)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "scriberr", op, "build request", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, op, nil)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	if c.baseURL == "" {
		return nil, errors.New("base url not configured")
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-API-Key", c.apiKey)
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *Client) do(req *http.Request, op string, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classify(op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return classify(op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return classify(op, &StatusError{
			StatusCode: resp.StatusCode,
			Body:       truncate(string(data), 512),
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		})
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return services.Wrap(services.ErrExternalTool, "scriberr", op, "decode response", err)
	}
	return nil
}

func classify(op string, err error) error {
	if err == nil || errors.Is(err, context.Canceled) {
		return err
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.StatusCode == http.StatusRequestTimeout,
			statusErr.StatusCode == http.StatusTooManyRequests,
			statusErr.StatusCode >= http.StatusInternalServerError:
			return services.Wrap(services.ErrTransient, "scriberr", op, "server unavailable", err)
		case statusErr.StatusCode == http.StatusNotFound:
			return services.Wrap(services.ErrNotFound, "scriberr", op, "job not found", err)
		default:
			return services.Wrap(services.ErrExternalTool, "scriberr", op, "request rejected", err)
		}
	}
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return services.Wrap(services.ErrTransient, "scriberr", op, "network failure", err)
	}
	return services.Wrap(services.ErrTransient, "scriberr", op, "connection failure", err)
}

func parseRetryAfter(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if when, err := http.ParseTime(value); err == nil {
		if d := time.Until(when); d > 0 {
			return d
		}
	}
	return 0
}

func truncate(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	return value[:limit] + "..."
}
