package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"strings"
	"sync"
	"time"

	"meetsync/internal/api"
	"meetsync/internal/daemon"
	"meetsync/internal/logging"
	"meetsync/internal/logs"
	"meetsync/internal/queue"
)

// ServiceName is the JSON-RPC receiver name shared by server and client.
const ServiceName = "Meetsync"

// ServerOption customizes a Server.
type ServerOption func(*Server)

// WithShutdown registers fn to run after a Stop request has stopped the
// daemon. The daemon process uses it to exit.
func WithShutdown(fn func()) ServerOption {
	return func(s *Server) {
		s.shutdown = fn
	}
}

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	daemon    *daemon.Daemon
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server
	shutdown  func()

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.Mutex
	conns map[net.Conn]struct{}
}

// NewServer configures the IPC server at the given socket path.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger, opts ...ServerOption) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	s := &Server{
		path:     path,
		daemon:   d,
		logger:   logger,
		listener: listener,
		ctx:      serverCtx,
		cancel:   cancel,
		conns:    make(map[net.Conn]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	rpcServer := rpc.NewServer()
	svc := &service{daemon: d, logger: logger, ctx: serverCtx, shutdown: s.shutdown}
	if err := rpcServer.RegisterName(ServiceName, svc); err != nil {
		cancel()
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}
	s.rpcServer = rpcServer
	return s, nil
}

// Serve starts accepting RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				if errors.Is(err, net.ErrClosed) {
					return
				}
				s.logger.Warn("accept failed",
					logging.Error(err),
					logging.String(logging.FieldEventType, "ipc_accept_failed"),
					logging.String(logging.FieldImpact, "IPC clients may fail to connect"),
					logging.String(logging.FieldErrorHint, "Check socket permissions and restart the daemon if needed"))
				continue
			}
			s.track(conn, true)
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				defer s.track(c, false)
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

func (s *Server) track(conn net.Conn, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		s.conns[conn] = struct{}{}
		return
	}
	delete(s.conns, conn)
}

// Close stops the server, drops open client connections and removes the
// socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.mu.Lock()
	for conn := range s.conns {
		_ = conn.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		s.logger.Warn("failed to remove socket",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldEventType, "ipc_socket_cleanup_failed"),
			logging.String(logging.FieldImpact, "stale IPC socket may block future starts"),
			logging.String(logging.FieldErrorHint, "Remove the socket file manually or rerun meetsync stop"))
	}
}

type service struct {
	daemon   *daemon.Daemon
	logger   *slog.Logger
	ctx      context.Context
	shutdown func()
}

func (s *service) log() *slog.Logger {
	if s.logger == nil {
		return logging.NewNop()
	}
	return s.logger.With(logging.String("component", "ipc"))
}

func (s *service) Start(_ StartRequest, resp *StartResponse) error {
	s.log().Debug("daemon start requested")
	if s.daemon.Status(s.ctx).Running {
		resp.Message = "daemon already running"
		return nil
	}
	if err := s.daemon.Start(s.ctx); err != nil {
		resp.Started = false
		resp.Message = err.Error()
		return nil
	}
	resp.Started = true
	resp.Message = "daemon started"
	s.log().Info("daemon started via IPC",
		logging.String(logging.FieldEventType, "daemon_start"))
	return nil
}

func (s *service) Stop(_ StopRequest, resp *StopResponse) error {
	s.log().Debug("daemon stop requested")
	s.daemon.Stop()
	resp.Stopped = true
	s.log().Info("daemon stopped via IPC",
		logging.String(logging.FieldEventType, "daemon_stop"))
	if s.shutdown != nil {
		// Reply first; the hook tears down this server.
		go func() {
			time.Sleep(50 * time.Millisecond)
			s.shutdown()
		}()
	}
	return nil
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	status := s.daemon.Status(s.ctx)
	resp.Running = status.Running
	resp.PID = status.PID
	resp.DatabasePath = status.DatabasePath
	resp.LockPath = status.LockFilePath
	resp.Workflow = api.FromStatusSummary(status.Workflow)
	return nil
}

func (s *service) Add(req AddRequest, resp *AddResponse) error {
	asset, err := s.daemon.AddFile(s.ctx, req.SourcePath)
	if err != nil {
		return err
	}
	resp.Asset = api.FromAsset(asset)
	return nil
}

func (s *service) AssetList(req AssetListRequest, resp *AssetListResponse) error {
	statuses := make([]queue.AssetStatus, 0, len(req.Statuses))
	for _, raw := range req.Statuses {
		parsed, ok := queue.ParseAssetStatus(raw)
		if !ok {
			return fmt.Errorf("unknown asset status %q", raw)
		}
		statuses = append(statuses, parsed)
	}
	assets, err := s.daemon.ListAssets(s.ctx, statuses)
	if err != nil {
		return err
	}
	resp.Assets = api.FromAssets(assets)
	return nil
}

func (s *service) OfflineList(_ OfflineListRequest, resp *OfflineListResponse) error {
	items, err := s.daemon.ListOffline(s.ctx)
	if err != nil {
		return err
	}
	resp.Items = api.FromOfflineItems(items)
	return nil
}

func (s *service) Flush(_ FlushRequest, resp *FlushResponse) error {
	s.log().Debug("offline flush requested")
	result, err := s.daemon.FlushOffline(s.ctx)
	if err != nil {
		return err
	}
	resp.Videos = result.Videos
	resp.LogEntries = result.LogEntries
	s.log().Info("offline queues flushed via IPC",
		logging.String(logging.FieldEventType, "offline_flush"),
		logging.Int("videos", result.Videos),
		logging.Int("log_entries", result.LogEntries))
	return nil
}

func (s *service) JobList(req JobListRequest, resp *JobListResponse) error {
	phases := make([]queue.JobPhase, 0, len(req.Phases))
	for _, raw := range req.Phases {
		parsed, ok := queue.ParseJobPhase(raw)
		if !ok {
			return fmt.Errorf("unknown job phase %q", raw)
		}
		phases = append(phases, parsed)
	}
	jobs, err := s.daemon.ListJobs(s.ctx, phases)
	if err != nil {
		return err
	}
	resp.Jobs = api.FromJobs(jobs)
	return nil
}

func (s *service) JobShow(req JobShowRequest, resp *JobShowResponse) error {
	job, err := s.lookupJob(req.ID)
	if err != nil {
		return err
	}
	detail := api.FromJobDetail(job)
	resp.Job = detail.Job
	resp.Lines = detail.Lines
	return nil
}

func (s *service) JobFinalize(req JobFinalizeRequest, resp *JobFinalizeResponse) error {
	if strings.TrimSpace(req.ID) == "" {
		return errors.New("job id is required")
	}
	s.log().Debug("job finalize requested", logging.String(logging.FieldJobID, req.ID))
	if err := s.daemon.FinalizeJob(s.ctx, req.ID); err != nil {
		return err
	}
	job, err := s.daemon.GetJob(s.ctx, req.ID)
	if err != nil {
		return err
	}
	resp.Phase = string(job.Phase)
	return nil
}

func (s *service) JobCancel(req JobCancelRequest, resp *JobCancelResponse) error {
	if strings.TrimSpace(req.ID) == "" {
		return errors.New("job id is required")
	}
	s.log().Debug("job cancel requested", logging.String(logging.FieldJobID, req.ID))
	if err := s.daemon.CancelJob(s.ctx, req.ID); err != nil {
		return err
	}
	resp.Cancelled = true
	return nil
}

func (s *service) SpeakerRename(req SpeakerRenameRequest, resp *SpeakerRenameResponse) error {
	if strings.TrimSpace(req.JobID) == "" {
		return errors.New("job id is required")
	}
	if strings.TrimSpace(req.Slot) == "" {
		return errors.New("speaker slot is required")
	}
	if err := s.daemon.RenameSpeaker(s.ctx, req.JobID, req.Slot, req.Name); err != nil {
		return err
	}
	job, err := s.daemon.GetJob(s.ctx, req.JobID)
	if err != nil {
		return err
	}
	resp.Job = api.FromJob(job)
	return nil
}

func (s *service) lookupJob(id string) (*queue.Job, error) {
	if strings.TrimSpace(id) == "" {
		return nil, errors.New("job id is required")
	}
	job, err := s.daemon.GetJob(s.ctx, id)
	if errors.Is(err, queue.ErrNotFound) {
		return nil, fmt.Errorf("job %s not found", strings.TrimSpace(id))
	}
	return job, err
}

func (s *service) LogTail(req LogTailRequest, resp *LogTailResponse) error {
	logPath := s.daemon.LogPath()
	if logPath == "" {
		resp.Offset = 0
		return nil
	}
	wait := time.Duration(req.WaitMillis) * time.Millisecond
	if wait <= 0 && req.Follow {
		wait = time.Second
	}
	options := logs.TailOptions{
		Offset: req.Offset,
		Limit:  req.Limit,
		Follow: req.Follow,
		Wait:   wait,
		Match:  req.Match,
	}
	ctx := s.ctx
	if req.Follow && wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(s.ctx, wait+500*time.Millisecond)
		defer cancel()
	}
	result, err := logs.Tail(ctx, logPath, options)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			resp.Offset = result.Offset
			return nil
		}
		return err
	}
	resp.Lines = result.Lines
	resp.Offset = result.Offset
	return nil
}

func (s *service) DatabaseHealth(_ DatabaseHealthRequest, resp *DatabaseHealthResponse) error {
	health, err := s.daemon.DatabaseHealth(s.ctx)
	if err != nil && health.Error == "" {
		return err
	}
	resp.DBPath = health.DBPath
	resp.DatabaseExists = health.DatabaseExists
	resp.DatabaseReadable = health.DatabaseReadable
	resp.SchemaVersion = health.SchemaVersion
	resp.TablesPresent = append(resp.TablesPresent, health.TablesPresent...)
	resp.MissingTables = append(resp.MissingTables, health.MissingTables...)
	resp.IntegrityCheck = health.IntegrityCheck
	resp.Error = health.Error
	return nil
}

func (s *service) TestNotification(_ TestNotificationRequest, resp *TestNotificationResponse) error {
	sent, message, err := s.daemon.TestNotification(s.ctx)
	if err != nil {
		return err
	}
	resp.Sent = sent
	resp.Message = message
	return nil
}
