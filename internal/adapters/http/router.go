package httpadapter

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/kirillkom/compliance-pipeline-client/internal/core/domain"
	"github.com/kirillkom/compliance-pipeline-client/internal/core/ports"
)

// TrafficMetrics wraps handlers with request accounting.
type TrafficMetrics interface {
	Middleware(service string, next http.Handler) http.Handler
}

type RouterOptions struct {
	Service        string
	MetricsHandler http.Handler
	Traffic        TrafficMetrics
	Logger         *slog.Logger
}

// Router is the worker's read-only HTTP surface.
type Router struct {
	sessions ports.SessionReader
	outcomes ports.OutcomeReader
	opts     RouterOptions
	logger   *slog.Logger
}

func NewRouter(sessions ports.SessionReader, outcomes ports.OutcomeReader, opts RouterOptions) *Router {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		sessions: sessions,
		outcomes: outcomes,
		opts:     opts,
		logger:   logger,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	if rt.opts.MetricsHandler != nil {
		mux.Handle("GET /metrics", rt.opts.MetricsHandler)
	}
	mux.HandleFunc("GET /v1/sessions", rt.listSessions)
	mux.HandleFunc("GET /v1/session", rt.activeSessions)
	mux.HandleFunc("GET /v1/session/{id}", rt.getSession)
	mux.HandleFunc("GET /v1/session/{id}/counts", rt.getCounts)
	mux.HandleFunc("GET /v1/session/{id}/outcomes", rt.listOutcomes)

	var handler http.Handler = mux
	if rt.opts.Traffic != nil {
		handler = rt.opts.Traffic.Middleware(rt.opts.Service, handler)
	}
	handler = recoverMiddleware(rt.logger, handler)
	handler = accessLogMiddleware(rt.logger, handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) listSessions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"sessions": rt.sessions.Sessions()})
}

// activeSessions returns the snapshot of every session this process drives.
func (rt *Router) activeSessions(w http.ResponseWriter, r *http.Request) {
	ids := rt.sessions.Sessions()
	out := make([]domain.SessionSnapshot, 0, len(ids))
	for _, id := range ids {
		snapshot, err := rt.sessions.Snapshot(r.Context(), id)
		if err != nil {
			rt.fail(w, r, err)
			return
		}
		out = append(out, snapshot)
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": out})
}

func (rt *Router) getSession(w http.ResponseWriter, r *http.Request) {
	snapshot, err := rt.sessions.Snapshot(r.Context(), r.PathValue("id"))
	if err != nil {
		rt.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func (rt *Router) getCounts(w http.ResponseWriter, r *http.Request) {
	analysisID, ok := rt.analysisID(w, r)
	if !ok {
		return
	}
	counts, available := rt.outcomes.Counts(r.Context(), analysisID)
	writeJSON(w, http.StatusOK, map[string]any{
		"analysis_id": analysisID,
		"available":   available,
		"counts":      counts,
		"total":       counts.Total(),
	})
}

func (rt *Router) listOutcomes(w http.ResponseWriter, r *http.Request) {
	analysisID, ok := rt.analysisID(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	page, err := queryInt(q.Get("page"), 0)
	if err != nil || page < 0 {
		writeError(w, http.StatusBadRequest, "page must be a non-negative integer")
		return
	}
	size, err := queryInt(q.Get("size"), 0)
	if err != nil || size < 0 {
		writeError(w, http.StatusBadRequest, "size must be a non-negative integer")
		return
	}
	status, err := domain.ParseComplianceStatus(q.Get("status"))
	if err != nil {
		rt.fail(w, r, err)
		return
	}

	result, err := rt.outcomes.Page(r.Context(), domain.PageQuery{
		AnalysisID:   analysisID,
		Page:         page,
		Size:         size,
		Status:       status,
		FindingLevel: q.Get("finding_level"),
	})
	if err != nil {
		rt.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) analysisID(w http.ResponseWriter, r *http.Request) (string, bool) {
	snapshot, err := rt.sessions.Snapshot(r.Context(), r.PathValue("id"))
	if err != nil {
		rt.fail(w, r, err)
		return "", false
	}
	if snapshot.AnalysisID == "" {
		writeError(w, http.StatusConflict, "session has no analysis yet")
		return "", false
	}
	return snapshot.AnalysisID, true
}

func (rt *Router) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		rt.logger.Error("http_handler_error",
			"request_id", requestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"error", err,
		)
	}
	writeError(w, status, err.Error())
}

func queryInt(raw string, fallback int) (int, error) {
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
