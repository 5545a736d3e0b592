// Package api serves the registry over HTTP.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"transform-registry/internal/domain"
)

// maxBodyBytes bounds a define request body.
const maxBodyBytes = 1 << 20

// RegistryService is the part of transformation.Service the handlers use.
type RegistryService interface {
	DefineTransformation(ctx context.Context, req domain.DefineTransformationRequest) (string, error)
	DeleteTransformation(ctx context.Context, id string) (string, error)
	MarkProcessed(ctx context.Context, id string) error
	GetTransformation(ctx context.Context, id string) (*domain.Transformation, error)
	ListTransformations(ctx context.Context, filter domain.TransformationFilter) ([]domain.Transformation, int64, error)
	Types() []string
	ResolveUpdatePipeline(ctx context.Context, triggerTable string) (*domain.UpdatePipeline, error)
	JobOrder(ctx context.Context, jobID string) ([]string, error)
	WriteJobGraph(ctx context.Context, jobID string, w io.Writer) error
	ListAudit(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditEntry, int64, error)
}

// Handler holds the HTTP handlers of the /v1 API.
type Handler struct {
	svc    RegistryService
	logger *slog.Logger
}

// NewHandler creates a Handler.
func NewHandler(svc RegistryService, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// defineTransformation handles PUT /v1/transformations/{id}.
func (h *Handler) defineTransformation(w http.ResponseWriter, r *http.Request) {
	var body DefineTransformationBody
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		writeBadRequest(w, "", "invalid request body: "+err.Error())
		return
	}

	id, err := h.svc.DefineTransformation(r.Context(), body.toDomain(chi.URLParam(r, "id")))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, IDResponse{ID: id})
}

// getTransformation handles GET /v1/transformations/{id}.
func (h *Handler) getTransformation(w http.ResponseWriter, r *http.Request) {
	t, err := h.svc.GetTransformation(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, transformationToAPI(*t))
}

// listTransformations handles GET /v1/transformations.
func (h *Handler) listTransformations(w http.ResponseWriter, r *http.Request) {
	page, ok := pageFromQuery(w, r)
	if !ok {
		return
	}
	filter := domain.TransformationFilter{Page: page}
	if jobID := r.URL.Query().Get("job_id"); jobID != "" {
		filter.JobID = &jobID
	}

	items, total, err := h.svc.ListTransformations(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out := make([]Transformation, len(items))
	for i, t := range items {
		out[i] = transformationToAPI(t)
	}
	writeJSON(w, http.StatusOK, ListTransformationsResponse{
		Transformations: out,
		NextPageToken:   domain.NextPageToken(page.Offset(), page.Limit(), total),
	})
}

// deleteTransformation handles DELETE /v1/transformations/{id}.
func (h *Handler) deleteTransformation(w http.ResponseWriter, r *http.Request) {
	id, err := h.svc.DeleteTransformation(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, IDResponse{ID: id})
}

// markProcessed handles POST /v1/transformations/{id}/processed.
func (h *Handler) markProcessed(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.MarkProcessed(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// listTypes handles GET /v1/transformation-types.
func (h *Handler) listTypes(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, TypesResponse{Types: h.svc.Types()})
}

// resolveUpdatePipeline handles GET /v1/update-pipeline?table=T.
func (h *Handler) resolveUpdatePipeline(w http.ResponseWriter, r *http.Request) {
	table := r.URL.Query().Get("table")
	if table == "" {
		h.writeError(w, r, domain.ErrMissingField("table"))
		return
	}
	pipeline, err := h.svc.ResolveUpdatePipeline(r.Context(), table)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updatePipelineToAPI(table, pipeline))
}

// jobOrder handles GET /v1/jobs/{job_id}/order.
func (h *Handler) jobOrder(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	order, err := h.svc.JobOrder(r.Context(), jobID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if order == nil {
		order = []string{}
	}
	writeJSON(w, http.StatusOK, JobOrderResponse{JobID: jobID, Order: order})
}

// jobGraph handles GET /v1/jobs/{job_id}/graph.
func (h *Handler) jobGraph(w http.ResponseWriter, r *http.Request) {
	// Rendered into a buffer so a failure can still change the status.
	var buf bytes.Buffer
	if err := h.svc.WriteJobGraph(r.Context(), chi.URLParam(r, "job_id"), &buf); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/vnd.graphviz; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

// listAudit handles GET /v1/audit.
func (h *Handler) listAudit(w http.ResponseWriter, r *http.Request) {
	page, ok := pageFromQuery(w, r)
	if !ok {
		return
	}
	filter := domain.AuditFilter{Page: page}
	q := r.URL.Query()
	if v := q.Get("transformation_id"); v != "" {
		filter.TransformationID = &v
	}
	if v := q.Get("action"); v != "" {
		filter.Action = &v
	}

	entries, total, err := h.svc.ListAudit(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out := make([]AuditEntry, len(entries))
	for i, e := range entries {
		out[i] = auditEntryToAPI(e)
	}
	writeJSON(w, http.StatusOK, ListAuditResponse{
		Entries:       out,
		NextPageToken: domain.NextPageToken(page.Offset(), page.Limit(), total),
	})
}

// pageFromQuery reads max_results and page_token. It writes a 400 and
// returns false when max_results is not an integer.
func pageFromQuery(w http.ResponseWriter, r *http.Request) (domain.PageRequest, bool) {
	q := r.URL.Query()
	page := domain.PageRequest{PageToken: q.Get("page_token")}
	if v := q.Get("max_results"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeBadRequest(w, "max_results", "max_results must be an integer")
			return page, false
		}
		page.MaxResults = n
	}
	return page, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// isClientGone reports whether err only says the caller went away.
func isClientGone(err error) bool {
	return errors.Is(err, context.Canceled)
}
