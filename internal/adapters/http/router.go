// Package httpadapter exposes the custody workflows over HTTP. It is a thin
// collaborator: authentication happened upstream and arrives as identity
// headers; this layer only parses requests and maps workflow outcomes to
// transport status codes.
package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/trustdoc/custody/internal/core/domain"
	"github.com/trustdoc/custody/internal/core/ports"
	"github.com/trustdoc/custody/internal/observability/metrics"
)

const (
	userIDHeader   = "X-User-Id"
	userRoleHeader = "X-User-Role"

	defaultMaxUploadBytes = 64 << 20
)

type Options struct {
	Service   string
	Ingestor  ports.DocumentIngestor
	Remover   ports.DocumentRemover
	Reader    ports.DocumentReader
	Lifecycle ports.DocumentLifecycle
	Hasher    ports.IntegrityHasher
	Metrics   *metrics.HTTPServerMetrics

	MaxUploadBytes int64
	RateLimitRPS   float64
	RateLimitBurst int
	MaxConcurrent  int
	OverloadWait   time.Duration
}

type Router struct {
	opts Options
}

func NewRouter(opts Options) *Router {
	if opts.Service == "" {
		opts.Service = "custody-api"
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = defaultMaxUploadBytes
	}
	if opts.OverloadWait <= 0 {
		opts.OverloadWait = 100 * time.Millisecond
	}
	return &Router{opts: opts}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	if rt.opts.Metrics != nil {
		mux.Handle("GET /metrics", rt.opts.Metrics.Handler())
	}
	mux.HandleFunc("POST /v1/documents", rt.ingestDocument)
	mux.HandleFunc("GET /v1/documents", rt.listDocuments)
	mux.HandleFunc("GET /v1/documents/{id}", rt.getDocument)
	mux.HandleFunc("DELETE /v1/documents/{id}", rt.deleteDocument)
	mux.HandleFunc("POST /v1/documents/{id}/sign", rt.signDocument)
	mux.HandleFunc("POST /v1/documents/{id}/revoke", rt.revokeDocument)
	mux.HandleFunc("POST /v1/documents/{id}/restore", rt.restoreDocument)

	var handler http.Handler = mux
	if rt.opts.Metrics != nil {
		handler = rt.opts.Metrics.Middleware(rt.opts.Service, handler)
	}
	handler = backpressureMiddleware(handler, rt.opts.MaxConcurrent, rt.opts.OverloadWait)
	handler = rateLimitMiddleware(handler, rt.opts.RateLimitRPS, rt.opts.RateLimitBurst)
	handler = accessLogMiddleware(handler)
	handler = requestIDMiddleware(handler)
	return handler
}

func (rt *Router) healthz(w http.ResponseWriter, r *http.Request) {
	health := map[string]string{"status": "ok"}
	if rt.opts.Hasher != nil {
		ctx, cancel := contextWithTimeout(r, 5*time.Second)
		defer cancel()
		if !rt.opts.Hasher.IsAvailable(ctx) {
			health["status"] = "degraded"
			health["hasher"] = "unavailable"
			writeJSON(w, http.StatusServiceUnavailable, health)
			return
		}
		health["hasher"] = "ok"
	}
	writeJSON(w, http.StatusOK, health)
}

func (rt *Router) ingestDocument(w http.ResponseWriter, r *http.Request) {
	requesterID, _, ok := rt.identity(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, rt.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(rt.opts.MaxUploadBytes); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "upload exceeds size limit"})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart form expected"})
		return
	}

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "reading upload failed"})
		return
	}

	title := strings.TrimSpace(r.FormValue("title"))
	if title == "" {
		title = fileHeader.Filename
	}

	start := time.Now()
	result, err := rt.opts.Ingestor.Ingest(r.Context(), ports.IngestInput{
		OwnerID:  requesterID,
		Title:    title,
		Filename: fileHeader.Filename,
		Content:  content,
	})
	rt.recordIngest(result, time.Since(start))

	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), ingestErrorBody(result, err))
		return
	}
	if result.Status == domain.IngestDegraded {
		writeJSON(w, http.StatusMultiStatus, ingestDegradedBody(result))
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (rt *Router) getDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := rt.opts.Reader.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (rt *Router) listDocuments(w http.ResponseWriter, r *http.Request) {
	if members := strings.TrimSpace(r.URL.Query().Get("member_ids")); members != "" {
		ids := splitNonEmpty(members)
		docs, err := rt.opts.Reader.ListByOrganizationMembers(r.Context(), ids)
		if err != nil {
			writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
		return
	}

	ownerID := strings.TrimSpace(r.URL.Query().Get("owner_id"))
	if ownerID == "" {
		ownerID = strings.TrimSpace(r.Header.Get(userIDHeader))
	}
	if ownerID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "owner_id or member_ids is required"})
		return
	}
	docs, err := rt.opts.Reader.ListByOwner(r.Context(), ownerID)
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

func (rt *Router) deleteDocument(w http.ResponseWriter, r *http.Request) {
	requesterID, role, ok := rt.identity(w, r)
	if !ok {
		return
	}

	report, err := rt.opts.Remover.Delete(r.Context(), ports.DeleteInput{
		DocumentID:    r.PathValue("id"),
		RequesterID:   requesterID,
		RequesterRole: role,
	})
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}
	rt.recordDeletion(report)

	switch report.Status {
	case domain.DeletionComplete:
		writeJSON(w, http.StatusOK, report)
	case domain.DeletionPartial:
		writeJSON(w, http.StatusMultiStatus, report)
	default:
		writeJSON(w, http.StatusBadGateway, report)
	}
}

func (rt *Router) signDocument(w http.ResponseWriter, r *http.Request) {
	rt.lifecycleAction(w, r, rt.opts.Lifecycle.Sign)
}

func (rt *Router) revokeDocument(w http.ResponseWriter, r *http.Request) {
	rt.lifecycleAction(w, r, rt.opts.Lifecycle.Revoke)
}

func (rt *Router) restoreDocument(w http.ResponseWriter, r *http.Request) {
	rt.lifecycleAction(w, r, rt.opts.Lifecycle.Restore)
}

func (rt *Router) lifecycleAction(w http.ResponseWriter, r *http.Request, action func(ctx context.Context, documentID, requesterID string) (*domain.Document, error)) {
	requesterID, _, ok := rt.identity(w, r)
	if !ok {
		return
	}
	doc, err := action(r.Context(), r.PathValue("id"), requesterID)
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (rt *Router) identity(w http.ResponseWriter, r *http.Request) (string, domain.Role, bool) {
	requesterID := strings.TrimSpace(r.Header.Get(userIDHeader))
	if requesterID == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing identity"})
		return "", "", false
	}
	role := domain.Role(strings.TrimSpace(r.Header.Get(userRoleHeader)))
	if role == "" {
		role = domain.RoleUser
	}
	return requesterID, role, true
}

func (rt *Router) recordIngest(result domain.IngestResult, duration time.Duration) {
	if rt.opts.Metrics == nil {
		return
	}
	rt.opts.Metrics.RecordIngest(rt.opts.Service, string(result.Status), duration)
	if result.Status == domain.IngestFailure {
		rt.opts.Metrics.RecordIngestStageFailure(rt.opts.Service, string(result.Stage))
	}
}

func (rt *Router) recordDeletion(report domain.DeletionReport) {
	if rt.opts.Metrics == nil {
		return
	}
	backends := make([]string, 0, len(report.Errors))
	for _, backendErr := range report.Errors {
		backends = append(backends, backendErr.Backend)
	}
	rt.opts.Metrics.RecordDeletion(rt.opts.Service, string(report.Status), backends)
}

func ingestErrorBody(result domain.IngestResult, err error) map[string]any {
	return map[string]any{
		"status": result.Status,
		"stage":  result.Stage,
		"error":  err.Error(),
	}
}

// ingestDegradedBody surfaces everything a caller needs to reconcile the
// missing metadata row later.
func ingestDegradedBody(result domain.IngestResult) map[string]any {
	body := map[string]any{
		"status":          result.Status,
		"stage":           result.Stage,
		"content_hash":    result.ContentHash,
		"content_address": result.ContentAddress,
		"ledger_id":       result.LedgerID,
	}
	if result.Err != nil {
		body["error"] = result.Err.Error()
	}
	return body
}

func splitNonEmpty(commaList string) []string {
	parts := strings.Split(commaList, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func contextWithTimeout(r *http.Request, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), d)
}
