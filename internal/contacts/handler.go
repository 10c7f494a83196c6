package contacts

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

// Handler exposes contacts over JSON.
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
	q := r.URL.Query()
	req := ListRequest{Search: q.Get("q"), Limit: perPage, Offset: shared.Offset(page, perPage)}
	if v := q.Get("status"); v != "" {
		status := Status(v)
		req.Status = &status
	}
	if v, err := strconv.ParseInt(q.Get("freelancer_id"), 10, 64); err == nil {
		req.FreelancerID = &v
	}
	items, total, err := h.service.List(r.Context(), req)
	if err != nil {
		h.fail(w, "list contacts", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"data":       items,
		"pagination": shared.NewPagination(page, perPage, total),
	})
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	id, ok := contactID(w, r)
	if !ok {
		return
	}
	c, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get contact", err)
		return
	}
	httpx.JSON(w, http.StatusOK, c)
}

// Duplicates answers the as-you-type duplicate check.
func (h *Handler) Duplicates(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	exclude, ok := excludeParam(w, q.Get("exclude"))
	if !ok {
		return
	}
	res, err := h.service.CheckDuplicates(r.Context(), q.Get("email"), q.Get("phone"), exclude)
	if err != nil {
		h.fail(w, "check duplicates", err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

type liveCheckResponse struct {
	Field  Field           `json:"field"`
	Value  string          `json:"value"`
	Seq    uint64          `json:"seq"`
	Stale  bool            `json:"stale"`
	Result DuplicateResult `json:"result"`
}

// LiveDuplicates answers the debounced per-field check of an open form.
// A response for input that was replaced before it settled carries stale=true.
func (h *Handler) LiveDuplicates(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	exclude, ok := excludeParam(w, q.Get("exclude"))
	if !ok {
		return
	}
	field := Field(q.Get("field"))
	res, err := h.service.LiveCheck(r.Context(), q.Get("session"), exclude, field, q.Get("value"))
	if errors.Is(err, ErrSuperseded) {
		httpx.JSON(w, http.StatusOK, liveCheckResponse{Field: field, Value: q.Get("value"), Seq: res.Seq, Stale: true})
		return
	}
	if err == nil {
		err = res.Err
	}
	if err != nil {
		h.fail(w, "live duplicate check", err)
		return
	}
	httpx.JSON(w, http.StatusOK, liveCheckResponse{Field: res.Field, Value: res.Value, Seq: res.Seq, Result: res.Result})
}

func excludeParam(w http.ResponseWriter, raw string) (int64, bool) {
	if raw == "" {
		return 0, true
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid exclude id")
		return 0, false
	}
	return v, true
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	actorID, ok := requireActor(w, r)
	if !ok {
		return
	}
	var in Input
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}
	c, err := h.service.Create(r.Context(), in, actorID)
	if err != nil {
		h.fail(w, "create contact", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, c)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	actorID, ok := requireActor(w, r)
	if !ok {
		return
	}
	id, ok := contactID(w, r)
	if !ok {
		return
	}
	var in Input
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}
	c, err := h.service.Update(r.Context(), id, in, actorID)
	if err != nil {
		h.fail(w, "update contact", err)
		return
	}
	httpx.JSON(w, http.StatusOK, c)
}

func requireActor(w http.ResponseWriter, r *http.Request) (int64, bool) {
	actorID, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, fmt.Errorf("%w: %s header required", httpx.ErrUnauthorized, shared.ActorHeader))
	}
	return actorID, ok
}

func contactID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid contact id")
		return 0, false
	}
	return id, true
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	var dup *DuplicateError
	switch {
	case errors.As(err, &dup):
		httpx.FieldProblem(w, http.StatusConflict, "Duplicate", string(dup.Field), dup.Error())
	case errors.Is(err, ErrDuplicate):
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrDuplicate, err))
	case errors.Is(err, ErrNotFound):
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrNotFound, err))
	case errors.Is(err, httpx.ErrValidation):
		httpx.RespondError(w, err)
	default:
		h.logger.Error(op+" failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
