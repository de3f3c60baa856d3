package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"provenance/internal/api"
	"provenance/internal/config"
	"provenance/internal/logging"
	"provenance/internal/services"
)

const (
	requestIDHeader = "X-Request-ID"

	// bodyOverhead is allowed on top of blobstore.max_bytes for multipart framing.
	bodyOverhead      = 1 << 20
	multipartMemory   = 8 << 20
	defaultMaxBodyLen = 32<<20 + bodyOverhead
)

type apiServer struct {
	bind         string
	token        string
	defaultOwner string
	maxBody      int64
	logger       *slog.Logger
	daemon       *Daemon
	handler      http.Handler

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	srv := &apiServer{
		bind:         strings.TrimSpace(cfg.Paths.APIBind),
		token:        strings.TrimSpace(cfg.Paths.APIToken),
		defaultOwner: strings.TrimSpace(cfg.Paths.DefaultOwner),
		maxBody:      defaultMaxBodyLen,
		logger:       logger,
		daemon:       d,
	}
	if cfg.BlobStore.MaxBytes > 0 {
		srv.maxBody = cfg.BlobStore.MaxBytes + bodyOverhead
	}
	srv.handler = srv.routes()
	return srv
}

func (s *apiServer) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/register", authMiddleware(s.token, s.handleRegister))
	mux.HandleFunc("POST /analyze", authMiddleware(s.token, s.handleAnalyze))
	mux.HandleFunc("POST /api/verify", authMiddleware(s.token, s.handleVerify))
	mux.HandleFunc("GET /api/records/{fingerprint}", authMiddleware(s.token, s.handleRecord))
	mux.HandleFunc("GET /api/owners/{owner}/records", authMiddleware(s.token, s.handleOwnerRecords))
	mux.HandleFunc("GET /api/status", authMiddleware(s.token, s.handleStatus))
	mux.Handle("GET /metrics", s.daemon.metrics.Handler())
	return s.withRequestContext(mux)
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil || s.bind == "" {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	server := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       2 * time.Minute,
		WriteTimeout:      3 * time.Minute,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	s.mu.Lock()
	s.listener = listener
	s.server = server
	s.mu.Unlock()

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", logging.Error(err))
		}
	}()

	s.log().Info("api server listening",
		logging.String("address", listener.Addr().String()),
		logging.Bool("auth", s.token != ""))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	s.mu.Lock()
	server, listener := s.server, s.listener
	s.server, s.listener = nil, nil
	s.mu.Unlock()

	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}
	if listener != nil {
		_ = listener.Close()
	}
}

func (s *apiServer) address() string {
	if s == nil {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleRegister(w http.ResponseWriter, r *http.Request) {
	s.register(w, r, "")
}

// handleAnalyze serves uploads that carry only a file part. The configured
// default owner stands in when the request names none.
func (s *apiServer) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	s.register(w, r, s.defaultOwner)
}

func (s *apiServer) register(w http.ResponseWriter, r *http.Request, fallbackOwner string) {
	data, owner, err := s.readContent(w, r)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	if strings.TrimSpace(owner) == "" {
		owner = fallbackOwner
	}
	resp, err := s.daemon.records.Register(r.Context(), data, owner)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *apiServer) handleVerify(w http.ResponseWriter, r *http.Request) {
	if value := strings.TrimSpace(r.URL.Query().Get("fingerprint")); value != "" {
		resp, err := s.daemon.records.VerifyFingerprint(r.Context(), value)
		if err != nil {
			s.writeFailure(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, resp)
		return
	}
	data, _, err := s.readContent(w, r)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	resp, err := s.daemon.records.Verify(r.Context(), data)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *apiServer) handleRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := s.daemon.records.Lookup(r.Context(), r.PathValue("fingerprint"))
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.RecordResponse{Record: rec})
}

func (s *apiServer) handleOwnerRecords(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if value := strings.TrimSpace(r.URL.Query().Get("limit")); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil || parsed < 0 {
			s.writeFailure(w, r, services.Wrap(services.ErrValidation, "api", "parse limit", "limit must be a non-negative integer", err))
			return
		}
		limit = parsed
	}
	resp, err := s.daemon.records.ListByOwner(r.Context(), r.PathValue("owner"), limit)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.daemon.Status(r.Context()))
}

// readContent extracts the upload from a multipart "file" part or, for any
// other content type, the raw request body. The owner comes from the "owner"
// form field or query parameter.
func (s *apiServer) readContent(w http.ResponseWriter, r *http.Request) ([]byte, string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBody)
	owner := r.URL.Query().Get("owner")

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		data, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, "", bodyError(err)
		}
		return data, owner, nil
	}

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return nil, "", bodyError(err)
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}
	if value := r.FormValue("owner"); value != "" {
		owner = value
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		return nil, "", services.Wrap(services.ErrValidation, "api", "read upload", "multipart field \"file\" is required", err)
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		return nil, "", bodyError(err)
	}
	return data, owner, nil
}

// errBodyTooLarge marks uploads that exceed the request body cap.
var errBodyTooLarge = errors.New("request body too large")

func bodyError(err error) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return fmt.Errorf("%w: limit is %d bytes", errBodyTooLarge, maxErr.Limit)
	}
	return services.Wrap(services.ErrValidation, "api", "read request body", "", err)
}

func (s *apiServer) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, errBodyTooLarge) {
		s.writeJSON(w, http.StatusRequestEntityTooLarge, api.ErrorResponse{Error: err.Error(), Kind: "store_rejected"})
		return
	}
	status, payload := api.FromError(err)
	if status >= http.StatusInternalServerError {
		logging.WithContext(r.Context(), s.log()).Warn("api request failed",
			logging.String("path", r.URL.Path),
			logging.Int("status", status),
			logging.String(logging.FieldErrorKind, payload.Kind),
			logging.Error(err))
	}
	s.writeJSON(w, status, payload)
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

// withRequestContext assigns every request a correlation id, echoing a
// client-supplied X-Request-ID, and logs the completed request at debug.
func (s *apiServer) withRequestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)

		ctx := services.WithRequestID(r.Context(), id)
		ctx = services.WithTransport(ctx, "http")
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r.WithContext(ctx))

		logging.WithContext(ctx, s.log()).Debug("api request",
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
			logging.Int("status", rec.status),
			logging.Duration("elapsed", time.Since(start)))
	})
}

func (s *apiServer) log() *slog.Logger {
	if s.logger != nil {
		return s.logger.With(logging.String(logging.FieldComponent, "api-server"))
	}
	return logging.NewNop()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
