// Package api exposes the upload pipeline over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/fruitsalade/uploader/internal/auth"
	"github.com/fruitsalade/uploader/internal/events"
	"github.com/fruitsalade/uploader/internal/logging"
	"github.com/fruitsalade/uploader/internal/media"
	"github.com/fruitsalade/uploader/internal/metrics"
	"github.com/fruitsalade/uploader/internal/quota"
	"github.com/fruitsalade/uploader/internal/upload"
)

// multipartOverhead is the allowance for boundaries and part headers on top
// of the file bytes when bounding a request body.
const multipartOverhead = 1 << 20

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

// Server handles upload requests.
type Server struct {
	service     *upload.Service
	receiver    *receiver
	auth        *auth.Auth
	limiter     *quota.RateLimiter
	broadcaster *events.Broadcaster
}

// NewServer creates a Server. authHandler, limiter and broadcaster are
// optional.
func NewServer(
	service *upload.Service,
	maxFiles int,
	authHandler *auth.Auth,
	limiter *quota.RateLimiter,
	broadcaster *events.Broadcaster,
) *Server {
	cfg := service.Config()
	return &Server{
		service: service,
		receiver: &receiver{
			dir:         cfg.UploadDir,
			maxFiles:    maxFiles,
			maxFileSize: cfg.MaxFileSize,
			now:         time.Now,
		},
		auth:        authHandler,
		limiter:     limiter,
		broadcaster: broadcaster,
	}
}

// Init prepares the staging directory.
func (s *Server) Init() error {
	if err := os.MkdirAll(s.receiver.dir, 0755); err != nil {
		return fmt.Errorf("create upload dir %s: %w", s.receiver.dir, err)
	}
	return nil
}

// Handler returns the HTTP handler with logging, metrics and auth middleware.
// All routes live on one mux so the middleware sees the matched pattern.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("POST /api/v1/files", s.protect(s.handleUpload))
	mux.Handle("GET /api/v1/events", s.protect(s.handleEvents))

	return logging.Middleware(metrics.Middleware(mux))
}

// protect requires a valid token when auth is enabled.
func (s *Server) protect(h http.HandlerFunc) http.Handler {
	if s.auth == nil {
		return h
	}
	return s.auth.Middleware(h)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	log := logging.WithContext(r.Context())

	if s.limiter != nil {
		client := clientKey(r)
		if !s.limiter.Allow(client) {
			metrics.RecordRateLimited()
			w.Header().Set("Retry-After", strconv.Itoa(s.limiter.RetryAfter(client)))
			s.sendError(w, http.StatusTooManyRequests, "upload rate limit exceeded")
			return
		}
	}

	limit := int64(s.receiver.maxFiles)*s.receiver.maxFileSize + multipartOverhead
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	files, err := s.receiver.receive(r)
	if err != nil {
		log.Warn("upload rejected", zap.Error(err))
		s.sendPipelineError(w, err)
		return
	}

	records, err := s.service.ProcessBatch(r.Context(), files)
	if err != nil {
		log.Error("upload failed", zap.Int("files", len(files)), zap.Error(err))
		s.sendPipelineError(w, err)
		return
	}

	log.Info("upload completed", zap.Int("files", len(records)))
	writeJSON(w, http.StatusCreated, records)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.broadcaster == nil {
		s.sendError(w, http.StatusNotFound, "events not enabled")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.sendError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := s.broadcaster.Subscribe()
	defer s.broadcaster.Unsubscribe(ch)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			data, err := events.MarshalEvent(event)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data)
			flusher.Flush()
		}
	}
}

// sendPipelineError maps receiver and pipeline errors to status codes.
func (s *Server) sendPipelineError(w http.ResponseWriter, err error) {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.Is(err, errTooManyFiles), errors.Is(err, errFileTooLarge), errors.As(err, &maxBytes):
		s.sendError(w, http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, errNotMultipart), errors.Is(err, media.ErrValidation):
		s.sendError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, media.ErrStorage):
		s.sendError(w, http.StatusBadGateway, "object store unavailable")
	default:
		s.sendError(w, http.StatusInternalServerError, "upload processing failed")
	}
}

func (s *Server) sendError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, ErrorResponse{Error: message, Code: code})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// clientKey identifies the caller for rate limiting: the token subject when
// authenticated, the remote IP otherwise.
func clientKey(r *http.Request) string {
	if c := auth.GetClaims(r.Context()); c != nil && c.Subject != "" {
		return "sub:" + c.Subject
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
