package commissions

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

// Handler exposes commissions over JSON.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds a Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

type generateRequest struct {
	Period string `json:"period" validate:"required,len=7"`
}

type resolveRequest struct {
	ContractCount *int `json:"contract_count" validate:"required,gte=0"`
}

type resolveResponse struct {
	Tier          Tier    `json:"tier"`
	Amount        float64 `json:"amount"`
	ContractCount int     `json:"contract_count"`
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	page, perPage := shared.PageFromRequest(r)
	req := ListRequest{Limit: perPage, Offset: shared.Offset(page, perPage)}
	q := r.URL.Query()
	if label := q.Get("period"); label != "" {
		period, err := shared.ParseMonth(label)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
			return
		}
		req.PeriodStart = &period.Start
	}
	if v, err := strconv.ParseInt(q.Get("freelancer_id"), 10, 64); err == nil {
		req.FreelancerID = &v
	}
	if v := q.Get("status"); v != "" {
		status := Status(v)
		req.Status = &status
	}
	items, total, err := h.service.List(r.Context(), req)
	if err != nil {
		h.fail(w, "list commissions", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"data":       items,
		"pagination": shared.NewPagination(page, perPage, total),
	})
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	id, ok := commissionID(w, r)
	if !ok {
		return
	}
	c, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get commission", err)
		return
	}
	httpx.JSON(w, http.StatusOK, c)
}

func (h *Handler) Tiers(w http.ResponseWriter, r *http.Request) {
	tiers, err := h.service.Tiers(r.Context())
	if err != nil {
		h.fail(w, "load tiers", err)
		return
	}
	httpx.JSON(w, http.StatusOK, tiers)
}

func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}
	if err := httpx.Validate(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	rule, err := h.service.Resolve(r.Context(), *req.ContractCount)
	if err != nil {
		h.fail(w, "resolve tier", err)
		return
	}
	httpx.JSON(w, http.StatusOK, resolveResponse{Tier: rule.Tier, Amount: rule.UnitAmount, ContractCount: *req.ContractCount})
}

func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	actorID, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, fmt.Errorf("%w: %s header required", httpx.ErrUnauthorized, shared.ActorHeader))
		return
	}
	var req generateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}
	if err := httpx.Validate(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	period, err := shared.ParseMonth(req.Period)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}
	result, err := h.service.GenerateMonthly(r.Context(), period, actorID)
	if err != nil {
		h.fail(w, "generate commissions", err)
		return
	}
	h.logger.Info("commissions generated",
		slog.String("period", result.Period),
		slog.String("run_id", result.RunID.String()),
		slog.Int("created", result.Created),
		slog.Int("updated", result.Updated),
		slog.Int("skipped", result.Skipped))
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) Pay(w http.ResponseWriter, r *http.Request) {
	h.settle(w, r, StatusPaid)
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.settle(w, r, StatusCancelled)
}

func (h *Handler) settle(w http.ResponseWriter, r *http.Request, to Status) {
	actorID, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, fmt.Errorf("%w: %s header required", httpx.ErrUnauthorized, shared.ActorHeader))
		return
	}
	id, ok := commissionID(w, r)
	if !ok {
		return
	}
	var (
		c   *Commission
		err error
	)
	if to == StatusPaid {
		c, err = h.service.MarkPaid(r.Context(), id, actorID)
	} else {
		c, err = h.service.Cancel(r.Context(), id, actorID)
	}
	if err != nil {
		h.fail(w, "settle commission", err)
		return
	}
	httpx.JSON(w, http.StatusOK, c)
}

func commissionID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid commission id")
		return 0, false
	}
	return id, true
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrNotFound, err))
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrGenerationInProgress):
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrConflict, err))
	case errors.Is(err, ErrNoTier):
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
	default:
		h.logger.Error(op+" failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
