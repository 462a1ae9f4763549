package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
)

// Client provides RPC access to the daemon.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the IPC server at the given socket path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, err
	}
	rpcClient := rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return &Client{conn: conn, client: rpcClient}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		_ = c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func call[Req any, Resp any](c *Client, method string, req Req) (*Resp, error) {
	var resp Resp
	if err := c.client.Call(ServiceName+"."+method, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Start requests the daemon to start processing.
func (c *Client) Start() (*StartResponse, error) {
	return call[StartRequest, StartResponse](c, "Start", StartRequest{})
}

// Stop requests the daemon to stop processing and exit.
func (c *Client) Stop() (*StopResponse, error) {
	return call[StopRequest, StopResponse](c, "Stop", StopRequest{})
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	return call[StatusRequest, StatusResponse](c, "Status", StatusRequest{})
}

// Add registers a recording by hand.
func (c *Client) Add(path string) (*AddResponse, error) {
	return call[AddRequest, AddResponse](c, "Add", AddRequest{SourcePath: path})
}

// AssetList lists recordings, optionally filtered by status.
func (c *Client) AssetList(statuses []string) (*AssetListResponse, error) {
	return call[AssetListRequest, AssetListResponse](c, "AssetList", AssetListRequest{Statuses: statuses})
}

// OfflineList lists deferred work.
func (c *Client) OfflineList() (*OfflineListResponse, error) {
	return call[OfflineListRequest, OfflineListResponse](c, "OfflineList", OfflineListRequest{})
}

// Flush drains the deferred work queues.
func (c *Client) Flush() (*FlushResponse, error) {
	return call[FlushRequest, FlushResponse](c, "Flush", FlushRequest{})
}

// JobList lists transcription jobs, optionally filtered by phase.
func (c *Client) JobList(phases []string) (*JobListResponse, error) {
	return call[JobListRequest, JobListResponse](c, "JobList", JobListRequest{Phases: phases})
}

// JobShow fetches one job with its rendered transcript.
func (c *Client) JobShow(id string) (*JobShowResponse, error) {
	return call[JobShowRequest, JobShowResponse](c, "JobShow", JobShowRequest{ID: id})
}

// JobFinalize finalizes a job awaiting speaker review.
func (c *Client) JobFinalize(id string) (*JobFinalizeResponse, error) {
	return call[JobFinalizeRequest, JobFinalizeResponse](c, "JobFinalize", JobFinalizeRequest{ID: id})
}

// JobCancel aborts an in-flight job.
func (c *Client) JobCancel(id string) (*JobCancelResponse, error) {
	return call[JobCancelRequest, JobCancelResponse](c, "JobCancel", JobCancelRequest{ID: id})
}

// SpeakerRename sets the published name for a speaker slot.
func (c *Client) SpeakerRename(jobID, slot, name string) (*SpeakerRenameResponse, error) {
	return call[SpeakerRenameRequest, SpeakerRenameResponse](c, "SpeakerRename",
		SpeakerRenameRequest{JobID: jobID, Slot: slot, Name: name})
}

// LogTail returns log lines from the daemon.
func (c *Client) LogTail(req LogTailRequest) (*LogTailResponse, error) {
	return call[LogTailRequest, LogTailResponse](c, "LogTail", req)
}

// DatabaseHealth retrieves detailed database diagnostics.
func (c *Client) DatabaseHealth() (*DatabaseHealthResponse, error) {
	return call[DatabaseHealthRequest, DatabaseHealthResponse](c, "DatabaseHealth", DatabaseHealthRequest{})
}

// TestNotification sends a test notification.
func (c *Client) TestNotification() (*TestNotificationResponse, error) {
	return call[TestNotificationRequest, TestNotificationResponse](c, "TestNotification", TestNotificationRequest{})
}
