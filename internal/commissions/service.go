package commissions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/agencyops/agencyops/internal/platform/cache"
	"github.com/agencyops/agencyops/internal/shared"
)

// Locker guards a generation run. *cache.Locker satisfies it.
type Locker interface {
	Acquire(ctx context.Context, key, token string, ttl time.Duration) (func(context.Context) error, error)
}

// Config tunes generation.
type Config struct {
	LockTTL time.Duration
	// Tiers overrides the table stored in the database when set.
	Tiers []TierRule
}

// Service generates and settles monthly commissions.
type Service struct {
	repo     Repository
	locker   Locker
	audit    shared.AuditRecorder
	notifier shared.Notifier
	logger   *slog.Logger
	cfg      Config
	now      func() time.Time
}

// NewService constructs a Service. A configured tier table is validated up front.
func NewService(repo Repository, locker Locker, audit shared.AuditRecorder, notifier shared.Notifier, logger *slog.Logger, cfg Config) (*Service, error) {
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 10 * time.Minute
	}
	if len(cfg.Tiers) > 0 {
		if err := ValidateTierTable(cfg.Tiers); err != nil {
			return nil, err
		}
	}
	if audit == nil {
		audit = shared.NopAuditRecorder{}
	}
	if notifier == nil {
		notifier = shared.NopNotifier{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, locker: locker, audit: audit, notifier: notifier, logger: logger, cfg: cfg, now: time.Now}, nil
}

// Tiers returns the active tier table: the configured override, then the
// stored table, then DefaultTiers.
func (s *Service) Tiers(ctx context.Context) ([]TierRule, error) {
	if len(s.cfg.Tiers) > 0 {
		return s.cfg.Tiers, nil
	}
	stored, err := s.repo.ListTiers(ctx)
	if err != nil {
		return nil, fmt.Errorf("load tiers: %w", err)
	}
	if len(stored) == 0 {
		return DefaultTiers(), nil
	}
	if err := ValidateTierTable(stored); err != nil {
		return nil, err
	}
	return stored, nil
}

// Resolve maps a contract count to a tier using the active table.
func (s *Service) Resolve(ctx context.Context, count int) (TierRule, error) {
	tiers, err := s.Tiers(ctx)
	if err != nil {
		return TierRule{}, err
	}
	return ResolveTier(count, tiers)
}

// GenerateMonthly computes one commission per active freelancer for period.
// Running it again for the same period refreshes pending rows and leaves
// paid or cancelled rows untouched. Concurrent runs for one period are
// rejected with ErrGenerationInProgress.
func (s *Service) GenerateMonthly(ctx context.Context, period shared.MonthPeriod, actorID int64) (*GenerationResult, error) {
	runID := uuid.New()
	result := &GenerationResult{RunID: runID, Period: period.Label()}

	if s.locker != nil {
		release, err := s.locker.Acquire(ctx, shared.CommissionLockKey(result.Period), runID.String(), s.cfg.LockTTL)
		if errors.Is(err, cache.ErrLockHeld) {
			return nil, fmt.Errorf("%w: %s", ErrGenerationInProgress, result.Period)
		}
		if err != nil {
			return nil, err
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				s.logger.Warn("release commission lock", slog.String("period", result.Period), slog.Any("error", err))
			}
		}()
	}

	tiers, err := s.Tiers(ctx)
	if err != nil {
		return nil, err
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		result.Created, result.Updated, result.Skipped = 0, 0, 0
		result.Commissions = result.Commissions[:0]

		freelancers, err := repo.ListActiveFreelancers(ctx)
		if err != nil {
			return fmt.Errorf("list freelancers: %w", err)
		}
		for _, freelancerID := range freelancers {
			count, err := repo.CountContracts(ctx, freelancerID, period.Start, period.End)
			if err != nil {
				return fmt.Errorf("count contracts for freelancer %d: %w", freelancerID, err)
			}
			rule, err := ResolveTier(count, tiers)
			if err != nil {
				return err
			}
			c := Commission{
				FreelancerID:  freelancerID,
				Amount:        rule.UnitAmount,
				Tier:          rule.Tier,
				ContractCount: count,
				Status:        StatusPending,
				PeriodStart:   period.Start,
				PeriodEnd:     period.End,
				RunID:         runID,
			}
			id, outcome, err := repo.Upsert(ctx, c)
			if err != nil {
				return fmt.Errorf("upsert commission for freelancer %d: %w", freelancerID, err)
			}
			switch outcome {
			case OutcomeCreated:
				result.Created++
			case OutcomeUpdated:
				result.Updated++
			case OutcomeSkipped:
				result.Skipped++
				continue
			}
			c.ID = id
			result.Commissions = append(result.Commissions, c)
		}
		return nil
	})
	if err != nil {
		s.notifier.Notify(ctx, shared.Notification{
			Kind:    shared.NotifyError,
			Subject: "commissions",
			Message: "Commission generation failed",
			Meta:    map[string]any{"period": result.Period, "error": err.Error()},
		})
		return nil, err
	}

	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   "commission.generate",
		Entity:   "commission_run",
		EntityID: runID.String(),
		Meta: map[string]any{
			"period":  result.Period,
			"created": result.Created,
			"updated": result.Updated,
			"skipped": result.Skipped,
		},
		At: s.now(),
	})
	s.notifier.Notify(ctx, shared.Notification{
		Kind:    shared.NotifySuccess,
		Subject: "commissions",
		Message: fmt.Sprintf("Generated commissions for %s", result.Period),
		Meta:    map[string]any{"created": result.Created, "updated": result.Updated, "skipped": result.Skipped},
	})
	return result, nil
}

// MarkPaid settles a pending commission. Paid rows never change again.
func (s *Service) MarkPaid(ctx context.Context, id, actorID int64) (*Commission, error) {
	return s.transition(ctx, id, StatusPaid, actorID)
}

// Cancel voids a pending commission.
func (s *Service) Cancel(ctx context.Context, id, actorID int64) (*Commission, error) {
	return s.transition(ctx, id, StatusCancelled, actorID)
}

func (s *Service) transition(ctx context.Context, id int64, to Status, actorID int64) (*Commission, error) {
	err := s.repo.WithTx(ctx, func(ctx context.Context, repo Repository) error {
		current, err := repo.Get(ctx, id)
		if err != nil {
			return err
		}
		if current.Status != StatusPending {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, to)
		}
		return repo.UpdateStatus(ctx, id, StatusPending, to, s.now())
	})
	if err != nil {
		return nil, err
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   "commission.status." + string(to),
		Entity:   "commission",
		EntityID: strconv.FormatInt(id, 10),
		At:       s.now(),
	})
	return s.repo.Get(ctx, id)
}

// Get returns a single commission.
func (s *Service) Get(ctx context.Context, id int64) (*Commission, error) {
	return s.repo.Get(ctx, id)
}

// List returns commissions matching req.
func (s *Service) List(ctx context.Context, req ListRequest) ([]Commission, int, error) {
	if req.Limit <= 0 {
		req.Limit = 50
	}
	return s.repo.List(ctx, req)
}
