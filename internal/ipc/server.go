package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"sync"

	"log/slog"

	"archivist/internal/api"
	"archivist/internal/catalog"
	"archivist/internal/daemon"
	"archivist/internal/logging"
)

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer configures the IPC server at the given socket path.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger) (*Server, error) {
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

	rpcServer := rpc.NewServer()
	srv := &service{daemon: d, logger: logger, ctx: ctx}
	if err := rpcServer.RegisterName("Archivist", srv); err != nil {
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	return &Server{
		path:      path,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
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
				s.logger.Warn("accept failed",
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "check socket permissions and restart the daemon if needed"))
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// Close stops the server and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		s.logger.Warn("failed to remove socket",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "remove the socket file manually before the next start"))
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
}

func (s *service) log() *slog.Logger {
	return logging.NewComponentLogger(s.logger, "ipc")
}

func (s *service) Ping(_ PingRequest, resp *PingResponse) error {
	resp.PID = os.Getpid()
	return nil
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	status := s.daemon.Status(s.ctx)
	resp.Running = status.Running
	resp.PID = status.PID
	resp.CatalogDBPath = status.CatalogDBPath
	resp.StorageDir = status.StorageDir
	resp.LockPath = status.LockFilePath
	resp.Workers = status.Workers
	resp.Health = api.FromHealthSummary(status.Health)
	return nil
}

func (s *service) Upload(req UploadRequest, resp *UploadResponse) error {
	kind, err := catalog.ParseItemKind(req.Kind)
	if err != nil {
		return err
	}
	s.log().Debug("upload requested", logging.String("path", req.Path))
	result, err := s.daemon.Upload(s.ctx, kind, req.Title, req.Path)
	if err != nil {
		return err
	}
	resp.Item = api.FromItem(result.Item, nil, nil)
	resp.ContentHash = result.File.ContentHash
	resp.IsDuplicate = result.IsDuplicate
	return nil
}

func (s *service) ItemList(req ItemListRequest, resp *ItemListResponse) error {
	statuses := make([]catalog.ItemStatus, 0, len(req.Statuses))
	for _, value := range req.Statuses {
		parsed, err := catalog.ParseItemStatus(value)
		if err != nil {
			return err
		}
		statuses = append(statuses, parsed)
	}
	items, err := s.daemon.ListItems(s.ctx, statuses)
	if err != nil {
		return err
	}
	resp.Items = make([]Item, 0, len(items))
	for _, item := range items {
		resp.Items = append(resp.Items, api.FromItem(item, nil, nil))
	}
	return nil
}

func (s *service) ItemDescribe(req ItemDescribeRequest, resp *ItemDescribeResponse) error {
	if req.ID == "" {
		return errors.New("item id required")
	}
	detail, err := s.daemon.DescribeItem(s.ctx, req.ID)
	if err != nil {
		return err
	}
	if detail == nil {
		return fmt.Errorf("item %s not found", req.ID)
	}
	resp.Detail = api.ItemDetail{
		Item: api.FromItem(detail.Item, detail.State, detail.Categories),
	}
	for _, file := range detail.SourceFiles {
		resp.Detail.SourceFiles = append(resp.Detail.SourceFiles, api.FromSourceFile(file))
	}
	for _, derivative := range detail.Derivatives {
		resp.Detail.Derivatives = append(resp.Detail.Derivatives, api.FromDerivative(derivative))
	}
	for _, entry := range detail.Log {
		resp.Detail.Log = append(resp.Detail.Log, api.FromLogEntry(entry))
	}
	for _, entry := range detail.Reviews {
		resp.Detail.Reviews = append(resp.Detail.Reviews, api.FromReviewEntry(entry))
	}
	return nil
}

func (s *service) ItemKick(req ItemKickRequest, resp *ItemKickResponse) error {
	if req.ID == "" {
		return errors.New("item id required")
	}
	if err := s.daemon.KickItem(s.ctx, req.ID); err != nil {
		return err
	}
	resp.Kicked = true
	s.log().Info("item kicked via IPC", logging.String(logging.FieldItemID, req.ID))
	return nil
}

func (s *service) RetryFailed(req RetryFailedRequest, resp *RetryFailedResponse) error {
	updated, err := s.daemon.RetryFailed(s.ctx, req.IDs)
	if err != nil {
		return err
	}
	resp.Updated = updated
	s.log().Info("failed items requeued via IPC", logging.Int("updated_count", updated))
	return nil
}

func (s *service) ReviewList(_ ReviewListRequest, resp *ReviewListResponse) error {
	reviews, err := s.daemon.OpenReviews(s.ctx)
	if err != nil {
		return err
	}
	resp.Reviews = make([]ReviewEntry, 0, len(reviews))
	for _, entry := range reviews {
		resp.Reviews = append(resp.Reviews, api.FromReviewEntry(entry))
	}
	return nil
}

func (s *service) ReviewResolve(req ReviewResolveRequest, resp *ReviewResolveResponse) error {
	if req.ReviewID <= 0 {
		return fmt.Errorf("invalid review id %d", req.ReviewID)
	}
	if err := s.daemon.ResolveReview(s.ctx, req.ReviewID, req.Action, req.Note, req.ResolvedBy); err != nil {
		return err
	}
	resp.Resolved = true
	s.log().Info("review resolved via IPC",
		logging.Int64("review_id", req.ReviewID),
		logging.String("action", req.Action))
	return nil
}
