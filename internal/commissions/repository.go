package commissions

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agencyops/agencyops/internal/platform/db"
)

// Repository persists commissions and reads the inputs of generation.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	ListTiers(ctx context.Context) ([]TierRule, error)
	ListActiveFreelancers(ctx context.Context) ([]int64, error)
	CountContracts(ctx context.Context, freelancerID int64, start, end time.Time) (int, error)
	Upsert(ctx context.Context, c Commission) (int64, UpsertOutcome, error)
	Get(ctx context.Context, id int64) (*Commission, error)
	List(ctx context.Context, req ListRequest) ([]Commission, int, error)
	UpdateStatus(ctx context.Context, id int64, from, to Status, at time.Time) error
}

type dbtx interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
}

type repository struct {
	db   dbtx
	pool *pgxpool.Pool
}

// NewRepository returns a pgx backed Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool, pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return db.WithTxRetry(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &repository{db: tx, pool: r.pool})
	})
}

func (r *repository) ListTiers(ctx context.Context) ([]TierRule, error) {
	rows, err := r.db.Query(ctx, `SELECT tier, min_contracts, max_contracts, unit_amount::float8 FROM commission_tiers ORDER BY min_contracts`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return pgx.CollectRows(rows, pgx.RowToStructByPos[TierRule])
}

func (r *repository) ListActiveFreelancers(ctx context.Context) ([]int64, error) {
	rows, err := r.db.Query(ctx, `SELECT id FROM freelancers WHERE active ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

// CountContracts counts signed contracts in [start, end).
func (r *repository) CountContracts(ctx context.Context, freelancerID int64, start, end time.Time) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM contracts
		WHERE freelancer_id = $1 AND status <> 'cancelled'
		  AND signed_at >= $2 AND signed_at < $3`,
		freelancerID, start, end,
	).Scan(&count)
	return count, err
}

// Upsert inserts the commission or refreshes a pending row for the same
// freelancer and period. Paid and cancelled rows are left alone.
func (r *repository) Upsert(ctx context.Context, c Commission) (int64, UpsertOutcome, error) {
	var (
		id       int64
		inserted bool
	)
	err := r.db.QueryRow(ctx, `
		INSERT INTO commissions (freelancer_id, amount, tier, contract_count, status, period_start, period_end, run_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (freelancer_id, period_start) DO UPDATE
		SET amount = EXCLUDED.amount,
		    tier = EXCLUDED.tier,
		    contract_count = EXCLUDED.contract_count,
		    run_id = EXCLUDED.run_id,
		    updated_at = NOW()
		WHERE commissions.status = 'pending'
		RETURNING id, (xmax = 0)`,
		c.FreelancerID, c.Amount, c.Tier, c.ContractCount, StatusPending, c.PeriodStart, c.PeriodEnd, c.RunID,
	).Scan(&id, &inserted)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, OutcomeSkipped, nil
	}
	if err != nil {
		return 0, 0, err
	}
	if inserted {
		return id, OutcomeCreated, nil
	}
	return id, OutcomeUpdated, nil
}

const commissionColumns = `id, freelancer_id, amount::float8, tier, contract_count, status, period_start, period_end, run_id, paid_at, created_at, updated_at`

func scanCommission(row pgx.Row) (*Commission, error) {
	var c Commission
	err := row.Scan(&c.ID, &c.FreelancerID, &c.Amount, &c.Tier, &c.ContractCount, &c.Status,
		&c.PeriodStart, &c.PeriodEnd, &c.RunID, &c.PaidAt, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (r *repository) Get(ctx context.Context, id int64) (*Commission, error) {
	return scanCommission(r.db.QueryRow(ctx, `SELECT `+commissionColumns+` FROM commissions WHERE id = $1`, id))
}

func (r *repository) List(ctx context.Context, req ListRequest) ([]Commission, int, error) {
	var conditions []string
	var args []any
	argPos := 1

	if req.PeriodStart != nil {
		conditions = append(conditions, fmt.Sprintf("period_start = $%d", argPos))
		args = append(args, *req.PeriodStart)
		argPos++
	}
	if req.FreelancerID != nil {
		conditions = append(conditions, fmt.Sprintf("freelancer_id = $%d", argPos))
		args = append(args, *req.FreelancerID)
		argPos++
	}
	if req.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argPos))
		args = append(args, *req.Status)
		argPos++
	}
	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM commissions "+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM commissions %s ORDER BY period_start DESC, freelancer_id LIMIT $%d OFFSET $%d`,
		commissionColumns, where, argPos, argPos+1)
	args = append(args, req.Limit, req.Offset)
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Commission
	for rows.Next() {
		c, err := scanCommission(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *c)
	}
	return out, total, rows.Err()
}

// UpdateStatus moves a commission only while it is in the expected status.
func (r *repository) UpdateStatus(ctx context.Context, id int64, from, to Status, at time.Time) error {
	var paidAt *time.Time
	if to == StatusPaid {
		paidAt = &at
	}
	tag, err := r.db.Exec(ctx, `
		UPDATE commissions SET status = $3, paid_at = COALESCE($4, paid_at), updated_at = NOW()
		WHERE id = $1 AND status = $2`, id, from, to, paidAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}
