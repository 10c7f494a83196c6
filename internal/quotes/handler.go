package quotes

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/agencyops/agencyops/internal/platform/httpx"
	"github.com/agencyops/agencyops/internal/shared"
)

// Handler exposes quotes over JSON.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds a Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

type validateResponse struct {
	ValidationResult
	Lines          []ItemBreakdown `json:"lines"`
	Total          float64         `json:"total"`
	TotalFormatted string          `json:"total_formatted"`
}

// Validate checks a form and previews its total. Nothing is stored.
func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	var form Form
	var verr *ValidationError
	if err := httpx.DecodeJSON(r, &form); err != nil && !errors.As(err, &verr) {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}
	result := h.service.Validate(form)
	if verr != nil && result.Field == verr.Field {
		// Report why the unreadable date was dropped.
		result = invalid(verr.Field, verr.Message)
	}
	lines, total := Breakdown(form.Items)
	httpx.JSON(w, http.StatusOK, validateResponse{
		ValidationResult: result,
		Lines:            lines,
		Total:            total,
		TotalFormatted:   FormatAmount(total),
	})
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}
	var form Form
	if err := httpx.DecodeJSON(r, &form); err != nil {
		h.decodeFailed(w, err)
		return
	}
	quote, err := h.service.Create(r.Context(), form, actorID, r.Header.Get(shared.IdempotencyHeader))
	if err != nil {
		h.fail(w, "create quote", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, quote)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	page, perPage := shared.PageFromRequest(r)
	req := ListRequest{Limit: perPage, Offset: shared.Offset(page, perPage)}
	q := r.URL.Query()
	if v := q.Get("status"); v != "" {
		status := Status(v)
		if !status.Valid() {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "unknown status")
			return
		}
		req.Status = &status
	}
	if v, err := strconv.ParseInt(q.Get("contact_id"), 10, 64); err == nil {
		req.ContactID = &v
	}
	if v, err := strconv.ParseInt(q.Get("freelancer_id"), 10, 64); err == nil {
		req.FreelancerID = &v
	}
	if err := httpx.Validate(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	quotes, total, err := h.service.List(r.Context(), req)
	if err != nil {
		h.fail(w, "list quotes", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"data":       quotes,
		"pagination": shared.NewPagination(page, perPage, total),
	})
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	id, ok := quoteID(w, r)
	if !ok {
		return
	}
	quote, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get quote", err)
		return
	}
	httpx.JSON(w, http.StatusOK, quote)
}

func (h *Handler) ReplaceItems(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := quoteID(w, r)
	if !ok {
		return
	}
	var body struct {
		Items []Item `json:"items"`
	}
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}
	quote, err := h.service.ReplaceItems(r.Context(), id, body.Items, actorID)
	if err != nil {
		h.fail(w, "replace quote items", err)
		return
	}
	httpx.JSON(w, http.StatusOK, quote)
}

// Transition returns a handler applying one lifecycle step.
func (h *Handler) Transition(to Status) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, ok := h.actor(w, r)
		if !ok {
			return
		}
		id, ok := quoteID(w, r)
		if !ok {
			return
		}
		var (
			quote *Quote
			err   error
		)
		switch to {
		case StatusSent:
			quote, err = h.service.Send(r.Context(), id, actorID)
		case StatusAccepted:
			quote, err = h.service.Accept(r.Context(), id, actorID)
		case StatusRejected:
			quote, err = h.service.Reject(r.Context(), id, actorID)
		case StatusCancelled:
			quote, err = h.service.Cancel(r.Context(), id, actorID)
		default:
			err = fmt.Errorf("%w: %s", ErrInvalidTransition, to)
		}
		if err != nil {
			h.fail(w, "quote transition", err)
			return
		}
		httpx.JSON(w, http.StatusOK, quote)
	}
}

func (h *Handler) actor(w http.ResponseWriter, r *http.Request) (int64, bool) {
	actorID, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, fmt.Errorf("%w: %s header required", httpx.ErrUnauthorized, shared.ActorHeader))
	}
	return actorID, ok
}

func quoteID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid quote id")
		return 0, false
	}
	return id, true
}

func (h *Handler) decodeFailed(w http.ResponseWriter, err error) {
	var verr *ValidationError
	if errors.As(err, &verr) {
		httpx.FieldProblem(w, http.StatusBadRequest, "Validation Failed", verr.Field, verr.Message)
		return
	}
	httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		httpx.FieldProblem(w, http.StatusBadRequest, "Validation Failed", verr.Field, verr.Message)
	case errors.Is(err, ErrNotFound):
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrNotFound, err))
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrItemsLocked),
		errors.Is(err, ErrExpired), errors.Is(err, ErrStaleStatus):
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrConflict, err))
	case errors.Is(err, shared.ErrIdempotencyConflict):
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrDuplicate, err))
	default:
		h.logger.Error(op+" failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
