package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"trafficwatch/internal/violation/models"
	"trafficwatch/internal/violation/registry"
	dErrors "trafficwatch/pkg/domain-errors"
	"trafficwatch/pkg/platform/httputil"
	"trafficwatch/pkg/requestcontext"
)

// Service is the write side of the violation API.
type Service interface {
	Ingest(ctx context.Context, draft models.Draft) (models.Violation, error)
	TransitionStatus(ctx context.Context, id int64, rawStatus string) (models.Violation, error)
}

// QueryService is the read side of the violation API.
type QueryService interface {
	GetViolation(ctx context.Context, id int64) (models.Violation, error)
	ListViolations(ctx context.Context, rawFilter map[string]string, page models.Page) (models.ListResult, error)
}

// RegistrySource yields the active violation registry.
type RegistrySource interface {
	Current() *registry.Registry
}

// Handler serves the violation endpoints.
type Handler struct {
	logger   *slog.Logger
	service  Service
	query    QueryService
	registry RegistrySource
}

// New creates a violation Handler.
func New(service Service, query QueryService, registry RegistrySource, logger *slog.Logger) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		query:    query,
		registry: registry,
	}
}

// Register registers the violation routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/api/violations", func(r chi.Router) {
		r.Post("/", h.handleCreate)
		r.Get("/", h.handleList)
		r.Get("/{id}", h.handleGet)
		r.Patch("/{id}/status", h.handleUpdateStatus)
	})
	r.Get("/api/violation-types", h.handleListTypes)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[CreateViolationRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	v, err := h.service.Ingest(ctx, req.Draft())
	if err != nil {
		h.logFailure(ctx, "failed to ingest violation", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, v)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	page, filter, err := parseListQuery(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	res, err := h.query.ListViolations(ctx, filter, page)
	if err != nil {
		h.logFailure(ctx, "failed to list violations", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toListResponse(res, page))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	v, err := h.query.GetViolation(ctx, id)
	if err != nil {
		h.logFailure(ctx, "failed to get violation", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, v)
}

func (h *Handler) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[UpdateStatusRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	v, err := h.service.TransitionStatus(ctx, id, req.Status)
	if err != nil {
		h.logFailure(ctx, "failed to update violation status", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, v)
}

func (h *Handler) handleListTypes(w http.ResponseWriter, r *http.Request) {
	reg := h.registry.Current()
	httputil.WriteJSON(w, http.StatusOK, RegistryResponse{
		Version:    reg.Version(),
		Violations: reg.Entries(),
	})
}

// logFailure logs server-side failures. Client errors are answered without a log line.
func (h *Handler) logFailure(ctx context.Context, msg string, err error) {
	de, ok := dErrors.As(err)
	if ok && de.Code != dErrors.CodeInternal && de.Code != dErrors.CodeUnavailable {
		return
	}
	h.logger.ErrorContext(ctx, msg,
		"request_id", requestcontext.RequestID(ctx),
		"error", err,
	)
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		return 0, dErrors.NewField("id", "id must be a positive integer")
	}
	return id, nil
}
