package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"log/slog"

	"archivist/internal/api"
	"archivist/internal/catalog"
	"archivist/internal/config"
	"archivist/internal/logging"
)

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) (*apiServer, error) {
	if cfg == nil || d == nil {
		return nil, nil
	}
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil, nil
	}

	mux := http.NewServeMux()
	srv := &apiServer{
		bind:   bind,
		logger: logger,
		daemon: d,
	}

	mux.HandleFunc("/api/status", srv.handleStatus)
	mux.HandleFunc("/api/items", srv.handleItems)
	mux.HandleFunc("/api/items/", srv.handleItem)
	mux.HandleFunc("/api/reviews", srv.handleReviews)

	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.log().Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	status := s.daemon.Status(r.Context())
	s.writeJSON(w, http.StatusOK, api.DaemonStatus{
		Running:       status.Running,
		PID:           status.PID,
		CatalogDBPath: status.CatalogDBPath,
		StorageDir:    status.StorageDir,
		LockFilePath:  status.LockFilePath,
		Workers:       status.Workers,
		Health:        api.FromHealthSummary(status.Health),
	})
}

func (s *apiServer) handleItems(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var statuses []catalog.ItemStatus
	for _, value := range r.URL.Query()["status"] {
		parsed, err := catalog.ParseItemStatus(value)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		statuses = append(statuses, parsed)
	}

	items, err := s.daemon.ListItems(r.Context(), statuses)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	payload := api.ItemListResponse{Items: make([]api.Item, 0, len(items))}
	for _, item := range items {
		payload.Items = append(payload.Items, api.FromItem(item, nil, nil))
	}
	s.writeJSON(w, http.StatusOK, payload)
}

func (s *apiServer) handleItem(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/items/")
	if rest, ok := strings.CutSuffix(id, "/kick"); ok {
		s.handleKick(w, r, rest)
		return
	}
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if id == "" || strings.Contains(id, "/") {
		s.writeError(w, http.StatusNotFound, "item not found")
		return
	}
	detail, err := s.daemon.DescribeItem(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if detail == nil {
		s.writeError(w, http.StatusNotFound, "item not found")
		return
	}
	s.writeJSON(w, http.StatusOK, api.ItemDetailResponse{Detail: convertDetail(detail)})
}

func (s *apiServer) handleKick(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if id == "" || strings.Contains(id, "/") {
		s.writeError(w, http.StatusNotFound, "item not found")
		return
	}
	if err := s.daemon.KickItem(r.Context(), id); err != nil {
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"kicked": true})
}

func (s *apiServer) handleReviews(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	reviews, err := s.daemon.OpenReviews(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	payload := api.ReviewListResponse{Reviews: make([]api.ReviewEntry, 0, len(reviews))}
	for _, entry := range reviews {
		payload.Reviews = append(payload.Reviews, api.FromReviewEntry(entry))
	}
	s.writeJSON(w, http.StatusOK, payload)
}

func convertDetail(detail *ItemDetail) api.ItemDetail {
	out := api.ItemDetail{
		Item: api.FromItem(detail.Item, detail.State, detail.Categories),
	}
	for _, file := range detail.SourceFiles {
		out.SourceFiles = append(out.SourceFiles, api.FromSourceFile(file))
	}
	for _, derivative := range detail.Derivatives {
		out.Derivatives = append(out.Derivatives, api.FromDerivative(derivative))
	}
	for _, entry := range detail.Log {
		out.Log = append(out.Log, api.FromLogEntry(entry))
	}
	for _, entry := range detail.Reviews {
		out.Reviews = append(out.Reviews, api.FromReviewEntry(entry))
	}
	return out
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *apiServer) log() *slog.Logger {
	return logging.NewComponentLogger(s.logger, "api-server")
}
