package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"appgen/app/usecase"
	"appgen/internal/domain/entity"
	"appgen/internal/infrastructure/metrics"
	"appgen/internal/infrastructure/ratelimit"
	"appgen/internal/infrastructure/stream"
)

const maxRequestBody = 1 << 20

var DefaultCapabilities = []string{
	"idea-analysis",
	"structure-reuse",
	"application-synthesis",
	"static-validation",
	"self-correction",
	"sse-progress",
	"websocket-progress",
}

type HandlerConfig struct {
	AllowedOrigins []string
	Capabilities   []string
	RecentHistory  int
}

type GenerateHandler struct {
	pipeline *usecase.Pipeline
	limiter  *ratelimit.Limiter
	cache    *usecase.ReuseCache
	files    usecase.FilesUseCase
	logger   *slog.Logger
	upgrader websocket.Upgrader
	cfg      HandlerConfig

	jobs sync.WaitGroup
}

func NewGenerateHandler(
	pipeline *usecase.Pipeline,
	limiter *ratelimit.Limiter,
	cache *usecase.ReuseCache,
	files usecase.FilesUseCase,
	logger *slog.Logger,
	cfg HandlerConfig,
) *GenerateHandler {
	if len(cfg.Capabilities) == 0 {
		cfg.Capabilities = DefaultCapabilities
	}
	if cfg.RecentHistory <= 0 {
		cfg.RecentHistory = 5
	}
	h := &GenerateHandler{
		pipeline: pipeline,
		limiter:  limiter,
		cache:    cache,
		files:    files,
		logger:   logger,
		cfg:      cfg,
	}
	h.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return h.originAllowed(r.Header.Get("Origin")) },
	}
	return h
}

func (h *GenerateHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/generate", withMetrics(h.handleGenerate)).Methods(http.MethodPost)
	r.HandleFunc("/generate", withMetrics(h.handleHealth)).Methods(http.MethodGet)
	r.HandleFunc("/generate", withMetrics(h.handlePreflight)).Methods(http.MethodOptions)
	r.HandleFunc("/generate/ws", withMetrics(h.handleWebsocket)).Methods(http.MethodGet)
	r.HandleFunc("/generate/jobs/{id}/files", withMetrics(h.handleGetFiles)).Methods(http.MethodGet)

	// Prometheus
	r.Handle("/metrics", promhttp.Handler())
}

// Wait blocks until every running job has finished or ctx is done.
func (h *GenerateHandler) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.jobs.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// admit applies the rate limit and writes the 429 response when denied.
func (h *GenerateHandler) admit(w http.ResponseWriter, r *http.Request) (ratelimit.Decision, bool) {
	key := ratelimit.ClientKey(r)
	d := h.limiter.Check(key)

	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(h.limiter.MaxRequests()))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	if d.Allowed {
		return d, true
	}

	retry := d.RetryAfterSeconds()
	h.logger.Info("rate limited", "client_key", key, "retry_after", retry)
	w.Header().Set("Retry-After", strconv.Itoa(retry))
	writeJSON(w, http.StatusTooManyRequests, map[string]any{
		"error":      (&entity.RateLimitedError{RetryAfter: d.RetryAfter}).Error(),
		"retryAfter": retry,
	})
	return d, false
}

func decodeRequest(body io.Reader) (entity.GenerationRequest, error) {
	var req entity.GenerationRequest
	dec := json.NewDecoder(body)
	if err := dec.Decode(&req); err != nil {
		return req, &entity.ValidationError{Reason: fmt.Sprintf("bad request body: %v", err)}
	}
	if err := req.Validate(); err != nil {
		return req, err
	}
	return req, nil
}

// POST /generate
func (h *GenerateHandler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.admit(w, r); !ok {
		return
	}

	req, err := decodeRequest(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	jobID := uuid.NewString()
	w.Header().Set("X-Job-ID", jobID)

	sse := stream.NewSSEWriter(w)
	w.WriteHeader(http.StatusOK)
	_ = http.NewResponseController(w).Flush()

	emitter := stream.NewEmitter(sse)
	metrics.IncOpenStreams("sse")
	defer metrics.DecOpenStreams("sse")
	defer func() { _ = emitter.Close() }()

	h.jobs.Add(1)
	defer h.jobs.Done()

	// the job outlives a disconnected client
	h.pipeline.Run(context.WithoutCancel(r.Context()), jobID, req, emitter)
}

// GET /generate/ws
func (h *GenerateHandler) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.admit(w, r); !ok {
		return
	}

	jobID := uuid.NewString()
	respHeader := http.Header{}
	respHeader.Set("X-Job-ID", jobID)
	respHeader.Set("X-RateLimit-Limit", w.Header().Get("X-RateLimit-Limit"))
	respHeader.Set("X-RateLimit-Remaining", w.Header().Get("X-RateLimit-Remaining"))
	w.Header().Del("X-RateLimit-Limit")
	w.Header().Del("X-RateLimit-Remaining")

	conn, err := h.upgrader.Upgrade(w, r, respHeader)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "err", err)
		return
	}
	writer := stream.NewWSWriter(conn)
	defer func() { _ = writer.Close() }()

	_ = conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		h.logger.Warn("websocket read request failed", "err", err)
		return
	}
	req, err := decodeRequest(bytes.NewReader(msg))
	if err != nil {
		closeMsg := websocket.FormatCloseMessage(websocket.CloseInvalidFramePayloadData, err.Error())
		_ = conn.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(time.Second))
		return
	}
	_ = conn.SetReadDeadline(time.Time{})

	// drain control frames so a client close is noticed
	go func() {
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	emitter := stream.NewEmitter(writer)
	metrics.IncOpenStreams("ws")
	defer metrics.DecOpenStreams("ws")

	h.jobs.Add(1)
	defer h.jobs.Done()

	h.pipeline.Run(context.WithoutCancel(r.Context()), jobID, req, emitter)
}

type historySummary struct {
	ID          string    `json:"id"`
	JobID       string    `json:"jobId"`
	UserInput   string    `json:"userInput"`
	AppName     string    `json:"appName,omitempty"`
	AppType     string    `json:"appType,omitempty"`
	GeneratedAt time.Time `json:"generatedAt"`
}

// GET /generate
func (h *GenerateHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	recent := []historySummary{}
	total := 0
	if h.cache != nil {
		total = h.cache.Len()
		for _, e := range h.cache.Recent(h.cfg.RecentHistory) {
			recent = append(recent, historySummary{
				ID:          e.ID,
				JobID:       e.JobID,
				UserInput:   e.UserInput,
				AppName:     e.Structure.AppName,
				AppType:     e.Structure.AppType,
				GeneratedAt: e.GeneratedAt,
			})
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"capabilities": h.cfg.Capabilities,
		"rateLimit": map[string]any{
			"window":      int(h.limiter.Window().Seconds()),
			"maxRequests": h.limiter.MaxRequests(),
		},
		"history": map[string]any{
			"totalGenerations":  total,
			"recentGenerations": recent,
		},
	})
}

// OPTIONS /generate
func (h *GenerateHandler) handlePreflight(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")
	allow := "*"
	if !h.anyOrigin() {
		if !h.originAllowed(origin) {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		allow = origin
		w.Header().Add("Vary", "Origin")
	}

	hdr := w.Header()
	hdr.Set("Access-Control-Allow-Origin", allow)
	hdr.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	hdr.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	hdr.Set("Access-Control-Max-Age", "86400")
	w.WriteHeader(http.StatusOK)
}

// GET /generate/jobs/{id}/files
func (h *GenerateHandler) handleGetFiles(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	files, err := h.files.GetFiles(r.Context(), id)
	if err != nil {
		var ve *entity.ValidationError
		switch {
		case errors.As(err, &ve):
			writeError(w, http.StatusBadRequest, err)
		case errors.Is(err, entity.ErrJobNotFound):
			writeError(w, http.StatusNotFound, entity.ErrJobNotFound)
		default:
			h.logger.Error("get files failed", "job_id", id, "err", err)
			writeError(w, http.StatusInternalServerError, errors.New("failed to read files"))
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobId": id, "files": files})
}

func (h *GenerateHandler) anyOrigin() bool {
	if len(h.cfg.AllowedOrigins) == 0 {
		return true
	}
	for _, o := range h.cfg.AllowedOrigins {
		if o == "*" {
			return true
		}
	}
	return false
}

func (h *GenerateHandler) originAllowed(origin string) bool {
	if origin == "" || h.anyOrigin() {
		return true
	}
	for _, o := range h.cfg.AllowedOrigins {
		if strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}
