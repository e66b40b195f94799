package httpapi

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/atvirokodosprendimai/audittrail/internal/core/domain"
	"github.com/atvirokodosprendimai/audittrail/internal/core/usecase"
)

const timeFormat = "2006-01-02T15:04:05.999999999Z07:00"

// Handler serves the read-only audit log API.
type Handler struct {
	audit   *usecase.AuditService
	log     *logrus.Logger
	token   string
	metrics http.Handler
}

type HandlerOption func(*Handler)

// WithAPIToken protects the /v1 routes with a static bearer token.
func WithAPIToken(token string) HandlerOption {
	return func(h *Handler) { h.token = strings.TrimSpace(token) }
}

// WithMetricsHandler mounts h on /metrics.
func WithMetricsHandler(m http.Handler) HandlerOption {
	return func(h *Handler) { h.metrics = m }
}

func NewHandler(audit *usecase.AuditService, log *logrus.Logger, opts ...HandlerOption) *Handler {
	h := &Handler{audit: audit, log: log}
	for _, opt := range opts {
		opt(h)
	}
	if h.log == nil {
		h.log = logrus.StandardLogger()
	}
	return h
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.requestLog)

	r.Get("/healthz", h.healthz)
	r.Get("/openapi.json", h.openapi)
	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics)
	}

	r.Group(func(pr chi.Router) {
		pr.Use(h.requireToken)
		pr.Get("/v1/audit-logs", h.listLogs)
		pr.Get("/v1/audit-logs/{type}/records/{id}", h.recordLogs)
	})

	return r
}

type logDetailResponse struct {
	PropertyName  string `json:"property_name"`
	OriginalValue string `json:"original_value"`
	NewValue      string `json:"new_value"`
}

type auditLogResponse struct {
	ID           int64               `json:"id"`
	EventID      string              `json:"event_id"`
	TypeFullName string              `json:"type_full_name"`
	BaseTypeName string              `json:"base_type_name,omitempty"`
	RecordID     string              `json:"record_id"`
	EventType    string              `json:"event_type"`
	Actor        string              `json:"actor"`
	EventDate    string              `json:"event_date"`
	Metadata     domain.Metadata     `json:"metadata,omitempty"`
	Details      []logDetailResponse `json:"details"`
}

type listResponse struct {
	Items     []auditLogResponse `json:"items"`
	NextAfter int64              `json:"next_after,omitempty"`
}

func (h *Handler) listLogs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := domain.AuditLogFilter{
		TypeNames:    query["type"],
		BaseTypeName: strings.TrimSpace(query.Get("base")),
	}
	if raw := strings.TrimSpace(query.Get("record_id")); raw != "" {
		filter.RecordID = &raw
	}
	if !h.parsePaging(w, r, &filter) {
		return
	}
	h.respondList(w, r, filter)
}

func (h *Handler) recordLogs(w http.ResponseWriter, r *http.Request) {
	// Type names contain slashes, so clients escape them as %2F.
	typeName, err := url.PathUnescape(chi.URLParam(r, "type"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid type")
		return
	}
	recordID, err := url.PathUnescape(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid record id")
		return
	}
	filter := domain.AuditLogFilter{
		TypeNames: []string{typeName},
		RecordID:  &recordID,
	}
	if !h.parsePaging(w, r, &filter) {
		return
	}
	h.respondList(w, r, filter)
}

func (h *Handler) respondList(w http.ResponseWriter, r *http.Request, filter domain.AuditLogFilter) {
	logs, err := h.audit.List(r.Context(), filter)
	if err != nil {
		h.handleError(w, err)
		return
	}

	resp := listResponse{Items: make([]auditLogResponse, 0, len(logs))}
	for _, l := range logs {
		resp.Items = append(resp.Items, toAuditLogResponse(l))
	}
	if len(logs) > 0 && len(logs) == usecase.PageSize(filter.Limit) {
		resp.NextAfter = logs[len(logs)-1].ID
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) parsePaging(w http.ResponseWriter, r *http.Request, filter *domain.AuditLogFilter) bool {
	query := r.URL.Query()
	filter.Limit = usecase.DefaultListLimit
	if raw := query.Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "limit must be integer")
			return false
		}
		filter.Limit = parsed
	}
	if raw := query.Get("after"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "after must be integer")
			return false
		}
		filter.AfterID = parsed
	}
	return true
}

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) openapi(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, openapiSpec())
}

func (h *Handler) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.token == "" {
			next.ServeHTTP(w, r)
			return
		}
		token := strings.TrimSpace(r.Header.Get("X-API-Key"))
		if token == "" {
			auth := strings.TrimSpace(r.Header.Get("Authorization"))
			if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
				token = strings.TrimSpace(auth[7:])
			}
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(h.token)) != 1 {
			h.writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.log.WithFields(logrus.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"bytes":      ww.BytesWritten(),
			"elapsed":    time.Since(start).String(),
			"request_id": middleware.GetReqID(r.Context()),
		}).Debug("http request")
	})
}

func toAuditLogResponse(l domain.AuditLog) auditLogResponse {
	details := make([]logDetailResponse, 0, len(l.Details))
	for _, d := range l.Details {
		details = append(details, logDetailResponse(d))
	}
	return auditLogResponse{
		ID:           l.ID,
		EventID:      l.EventID,
		TypeFullName: l.TypeFullName,
		BaseTypeName: l.BaseTypeName,
		RecordID:     l.RecordID,
		EventType:    string(l.EventType),
		Actor:        l.Actor,
		EventDate:    l.EventDate.UTC().Format(timeFormat),
		Metadata:     l.Metadata,
		Details:      details,
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	data, err := json.Marshal(body)
	if err != nil {
		h.log.WithError(err).Error("encode json response")
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(append(data, '\n')); err != nil {
		h.log.WithError(err).Warn("write response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]any{"error": message})
}

func (h *Handler) handleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, usecase.ErrInvalidFilter):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		h.writeError(w, http.StatusNotFound, err.Error())
	default:
		h.log.WithError(err).Error("audit log query failed")
		h.writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func openapiSpec() map[string]any {
	paging := []map[string]any{
		{"name": "after", "in": "query", "schema": map[string]any{"type": "integer"}},
		{"name": "limit", "in": "query", "schema": map[string]any{"type": "integer", "maximum": usecase.MaxListLimit}},
	}
	return map[string]any{
		"openapi": "3.0.3",
		"info": map[string]any{
			"title":   "audittrail",
			"version": "1.0.0",
		},
		"paths": map[string]any{
			"/v1/audit-logs": map[string]any{
				"get": map[string]any{
					"summary": "List audit logs of one or more entity types",
					"parameters": append([]map[string]any{
						{"name": "type", "in": "query", "schema": map[string]any{"type": "string"}},
						{"name": "base", "in": "query", "description": "declaring base type, matches every sibling type", "schema": map[string]any{"type": "string"}},
						{"name": "record_id", "in": "query", "schema": map[string]any{"type": "string"}},
					}, paging...),
				},
			},
			"/v1/audit-logs/{type}/records/{id}": map[string]any{
				"get": map[string]any{"summary": "List the audit history of one record", "parameters": paging},
			},
		},
	}
}
