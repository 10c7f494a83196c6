package appointments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/agencyops/agencyops/internal/platform/httpx"
	"github.com/agencyops/agencyops/internal/shared"
)

// Handler exposes appointments over JSON.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds a Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	page, perPage := shared.PageFromRequest(r)
	req := ListRequest{Limit: perPage, Offset: shared.Offset(page, perPage)}
	q := r.URL.Query()
	if v, err := strconv.ParseInt(q.Get("freelancer_id"), 10, 64); err == nil {
		req.FreelancerID = &v
	}
	if v, err := strconv.ParseInt(q.Get("contact_id"), 10, 64); err == nil {
		req.ContactID = &v
	}
	if v := q.Get("status"); v != "" {
		status := Status(v)
		req.Status = &status
	}
	if v, err := time.Parse(time.RFC3339, q.Get("from")); err == nil {
		req.From = &v
	}
	if v, err := time.Parse(time.RFC3339, q.Get("to")); err == nil {
		req.To = &v
	}
	items, total, err := h.service.List(r.Context(), req)
	if err != nil {
		h.fail(w, "list appointments", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"data":       items,
		"pagination": shared.NewPagination(page, perPage, total),
	})
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	id, ok := appointmentID(w, r)
	if !ok {
		return
	}
	a, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get appointment", err)
		return
	}
	httpx.JSON(w, http.StatusOK, a)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	actorID, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req CreateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}
	a, err := h.service.Create(r.Context(), req, actorID)
	if err != nil {
		h.fail(w, "create appointment", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, a)
}

func (h *Handler) Reschedule(w http.ResponseWriter, r *http.Request) {
	actorID, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := appointmentID(w, r)
	if !ok {
		return
	}
	var req RescheduleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}
	a, err := h.service.Reschedule(r.Context(), id, req, actorID)
	if err != nil {
		h.fail(w, "reschedule appointment", err)
		return
	}
	httpx.JSON(w, http.StatusOK, a)
}

func (h *Handler) Accept(w http.ResponseWriter, r *http.Request) {
	actorID, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := appointmentID(w, r)
	if !ok {
		return
	}
	var req AcceptRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}
	a, err := h.service.Accept(r.Context(), id, req, actorID)
	if err != nil {
		h.fail(w, "accept appointment", err)
		return
	}
	httpx.JSON(w, http.StatusOK, a)
}

func (h *Handler) Complete(w http.ResponseWriter, r *http.Request) {
	h.close(w, r, h.service.Complete)
}

func (h *Handler) NoShow(w http.ResponseWriter, r *http.Request) {
	h.close(w, r, h.service.MarkNoShow)
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.close(w, r, h.service.Cancel)
}

type closeFunc = func(ctx context.Context, id, actorID int64) (*Appointment, error)

func (h *Handler) close(w http.ResponseWriter, r *http.Request, fn closeFunc) {
	actorID, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := appointmentID(w, r)
	if !ok {
		return
	}
	a, err := fn(r.Context(), id, actorID)
	if err != nil {
		h.fail(w, "update appointment status", err)
		return
	}
	httpx.JSON(w, http.StatusOK, a)
}

func requireActor(w http.ResponseWriter, r *http.Request) (int64, bool) {
	actorID, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, fmt.Errorf("%w: %s header required", httpx.ErrUnauthorized, shared.ActorHeader))
	}
	return actorID, ok
}

func appointmentID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid appointment id")
		return 0, false
	}
	return id, true
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	var conflict *ConflictError
	switch {
	case errors.As(err, &conflict):
		httpx.FieldProblem(w, http.StatusConflict, "Scheduling Conflict", "start", conflict.Error())
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrContactNotFound), errors.Is(err, ErrFreelancerNotFound):
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrNotFound, err))
	case errors.Is(err, ErrInvalidTransition):
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrConflict, err))
	case errors.Is(err, httpx.ErrValidation):
		httpx.RespondError(w, err)
	default:
		h.logger.Error(op+" failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
