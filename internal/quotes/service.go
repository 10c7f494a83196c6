package quotes

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/agencyops/agencyops/internal/shared"
)

// Service coordinates quote validation, pricing and lifecycle.
type Service struct {
	repo     Repository
	audit    shared.AuditRecorder
	notifier shared.Notifier
	idem     shared.IdempotencyGuard
	now      func() time.Time
}

// NewService constructs a Service. Nil audit or notifier fall back to no-ops.
func NewService(repo Repository, audit shared.AuditRecorder, notifier shared.Notifier) *Service {
	if audit == nil {
		audit = shared.NopAuditRecorder{}
	}
	if notifier == nil {
		notifier = shared.NopNotifier{}
	}
	return &Service{repo: repo, audit: audit, notifier: notifier, now: time.Now}
}

// SetIdempotency enables duplicate submission protection on Create.
func (s *Service) SetIdempotency(guard shared.IdempotencyGuard) {
	s.idem = guard
}

// Validate runs the form checks without touching storage.
func (s *Service) Validate(form Form) ValidationResult {
	return ValidateForm(form)
}

// Create validates the form and stores a draft quote with its items. The
// total is always derived from the submitted items.
func (s *Service) Create(ctx context.Context, form Form, actorID int64, idemKey string) (*Quote, error) {
	if err := ValidateForm(form).Err(); err != nil {
		return nil, err
	}
	if s.idem != nil && idemKey != "" {
		if err := s.idem.CheckAndInsert(ctx, idemKey, "quotes.create"); err != nil {
			return nil, err
		}
	}

	quote := Quote{
		ContactID:    form.ContactID,
		FreelancerID: form.FreelancerID,
		ValidUntil:   *form.ValidUntil,
		Status:       StatusDraft,
		TotalAmount:  CalculateTotal(form.Items),
		Notes:        form.Notes,
		CreatedBy:    actorID,
	}

	var quoteID int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		id, err := repo.Create(ctx, quote)
		if err != nil {
			return fmt.Errorf("create quote: %w", err)
		}
		quoteID = id
		return insertItems(ctx, repo, id, form.Items)
	})
	if err != nil {
		if s.idem != nil && idemKey != "" {
			_ = s.idem.Delete(ctx, idemKey)
		}
		return nil, err
	}

	s.record(ctx, actorID, "quote.create", quoteID, map[string]any{"total_amount": quote.TotalAmount})
	s.notifier.Notify(ctx, shared.Notification{
		Kind:    shared.NotifySuccess,
		Subject: "quote",
		Message: "Quote created",
		Meta:    map[string]any{"quote_id": quoteID, "total": FormatAmount(quote.TotalAmount)},
	})
	return s.repo.Get(ctx, quoteID)
}

// ReplaceItems swaps the items of a draft quote. Items flagged ToDelete are
// dropped and the total is recomputed from what remains.
func (s *Service) ReplaceItems(ctx context.Context, id int64, items []Item, actorID int64) (*Quote, error) {
	if err := ValidateItems(items).Err(); err != nil {
		return nil, err
	}
	total := CalculateTotal(items)
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		current, err := repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !current.Status.ItemsEditable() {
			return fmt.Errorf("%w: quote is %s", ErrItemsLocked, current.Status)
		}
		if err := repo.DeleteItems(ctx, id); err != nil {
			return fmt.Errorf("delete items: %w", err)
		}
		if err := insertItems(ctx, repo, id, items); err != nil {
			return err
		}
		return repo.UpdateTotal(ctx, id, total)
	})
	if err != nil {
		return nil, err
	}
	s.record(ctx, actorID, "quote.items.replace", id, map[string]any{"total_amount": total})
	return s.repo.Get(ctx, id)
}

func insertItems(ctx context.Context, repo Repository, quoteID int64, items []Item) error {
	position := 0
	for _, item := range items {
		if item.ToDelete {
			continue
		}
		position++
		item.ID = 0
		item.QuoteID = quoteID
		item.Position = position
		if _, err := repo.InsertItem(ctx, item); err != nil {
			return fmt.Errorf("insert quote item: %w", err)
		}
	}
	return nil
}

// Send marks a draft quote as sent to the client.
func (s *Service) Send(ctx context.Context, id, actorID int64) (*Quote, error) {
	return s.transition(ctx, id, StatusSent, actorID)
}

// Accept records client acceptance of a sent quote.
func (s *Service) Accept(ctx context.Context, id, actorID int64) (*Quote, error) {
	return s.transition(ctx, id, StatusAccepted, actorID)
}

// Reject records client rejection of a sent quote.
func (s *Service) Reject(ctx context.Context, id, actorID int64) (*Quote, error) {
	return s.transition(ctx, id, StatusRejected, actorID)
}

// Cancel withdraws a quote that has not reached a closing state.
func (s *Service) Cancel(ctx context.Context, id, actorID int64) (*Quote, error) {
	return s.transition(ctx, id, StatusCancelled, actorID)
}

func (s *Service) transition(ctx context.Context, id int64, to Status, actorID int64) (*Quote, error) {
	var from Status
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		current, err := repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		from = current.Status
		if !CanTransition(from, to) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
		}
		if (to == StatusSent || to == StatusAccepted) && s.pastValidity(current.ValidUntil) {
			return ErrExpired
		}
		return repo.UpdateStatus(ctx, id, from, to)
	})
	if err != nil {
		s.notifier.Notify(ctx, shared.Notification{
			Kind:    shared.NotifyError,
			Subject: "quote",
			Message: "Quote status change failed",
			Meta:    map[string]any{"quote_id": id, "target": string(to), "error": err.Error()},
		})
		return nil, err
	}
	s.record(ctx, actorID, "quote.status."+string(to), id, map[string]any{"from": string(from)})
	return s.repo.Get(ctx, id)
}

// pastValidity reports whether the validity date lies before today.
func (s *Service) pastValidity(validUntil time.Time) bool {
	now := s.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	day := time.Date(validUntil.Year(), validUntil.Month(), validUntil.Day(), 0, 0, 0, 0, time.UTC)
	return day.Before(today)
}

// ExpireOverdue moves sent quotes past their validity date to expired and
// returns how many changed. Quotes updated concurrently are skipped.
func (s *Service) ExpireOverdue(ctx context.Context, asOf time.Time) (int, error) {
	ids, err := s.repo.ListExpirable(ctx, asOf)
	if err != nil {
		return 0, fmt.Errorf("list expirable quotes: %w", err)
	}
	expired := 0
	for _, id := range ids {
		err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
			return repo.UpdateStatus(ctx, id, StatusSent, StatusExpired)
		})
		if errors.Is(err, ErrStaleStatus) {
			continue
		}
		if err != nil {
			return expired, fmt.Errorf("expire quote %d: %w", id, err)
		}
		expired++
		s.record(ctx, 0, "quote.status.expired", id, map[string]any{"from": string(StatusSent), "as_of": asOf.Format(time.DateOnly)})
	}
	return expired, nil
}

// Get returns a quote with its items.
func (s *Service) Get(ctx context.Context, id int64) (*Quote, error) {
	return s.repo.Get(ctx, id)
}

// List returns quotes matching the filter and the total count.
func (s *Service) List(ctx context.Context, req ListRequest) ([]Quote, int, error) {
	if req.Limit == 0 {
		req.Limit = 50
	}
	return s.repo.List(ctx, req)
}

func (s *Service) record(ctx context.Context, actorID int64, action string, id int64, meta map[string]any) {
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "quote",
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
		At:       s.now(),
	})
}
