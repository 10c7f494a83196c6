package quotes

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

// Repository persists quotes and their items.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	Get(ctx context.Context, id int64) (*Quote, error)
	GetForUpdate(ctx context.Context, id int64) (*Quote, error)
	ListItems(ctx context.Context, quoteID int64) ([]Item, error)
	List(ctx context.Context, req ListRequest) ([]Quote, int, error)
	ListExpirable(ctx context.Context, asOf time.Time) ([]int64, error)
	Create(ctx context.Context, quote Quote) (int64, error)
	InsertItem(ctx context.Context, item Item) (int64, error)
	DeleteItems(ctx context.Context, quoteID int64) error
	UpdateTotal(ctx context.Context, id int64, total float64) error
	UpdateStatus(ctx context.Context, id int64, from, to Status) error
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

const quoteColumns = `id, contact_id, freelancer_id, valid_until, status, total_amount::float8, notes, created_by, created_at, updated_at`

func scanQuote(row pgx.Row) (*Quote, error) {
	var q Quote
	err := row.Scan(&q.ID, &q.ContactID, &q.FreelancerID, &q.ValidUntil, &q.Status,
		&q.TotalAmount, &q.Notes, &q.CreatedBy, &q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &q, nil
}

func (r *repository) Get(ctx context.Context, id int64) (*Quote, error) {
	q, err := scanQuote(r.db.QueryRow(ctx, `SELECT `+quoteColumns+` FROM quotes WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	q.Items, err = r.ListItems(ctx, id)
	if err != nil {
		return nil, err
	}
	return q, nil
}

func (r *repository) GetForUpdate(ctx context.Context, id int64) (*Quote, error) {
	return scanQuote(r.db.QueryRow(ctx, `SELECT `+quoteColumns+` FROM quotes WHERE id = $1 FOR UPDATE`, id))
}

func (r *repository) ListItems(ctx context.Context, quoteID int64) ([]Item, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, quote_id, description, quantity, unit_price::float8,
		       discount_percent::float8, tax_percent::float8, position
		FROM quote_items
		WHERE quote_id = $1
		ORDER BY position, id`, quoteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.QuoteID, &it.Description, &it.Quantity, &it.UnitPrice,
			&it.DiscountPercent, &it.TaxPercent, &it.Position); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (r *repository) List(ctx context.Context, req ListRequest) ([]Quote, int, error) {
	var conditions []string
	var args []any
	argPos := 1

	if req.ContactID != nil {
		conditions = append(conditions, fmt.Sprintf("contact_id = $%d", argPos))
		args = append(args, *req.ContactID)
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
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM quotes "+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM quotes %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		quoteColumns, where, argPos, argPos+1)
	args = append(args, req.Limit, req.Offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Quote
	for rows.Next() {
		q, err := scanQuote(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *q)
	}
	return out, total, rows.Err()
}

func (r *repository) ListExpirable(ctx context.Context, asOf time.Time) ([]int64, error) {
	rows, err := r.db.Query(ctx, `SELECT id FROM quotes WHERE status = $1 AND valid_until < $2::date ORDER BY id`,
		StatusSent, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

func (r *repository) Create(ctx context.Context, q Quote) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO quotes (contact_id, freelancer_id, valid_until, status, total_amount, notes, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		q.ContactID, q.FreelancerID, q.ValidUntil, q.Status, q.TotalAmount, q.Notes, q.CreatedBy,
	).Scan(&id)
	return id, err
}

func (r *repository) InsertItem(ctx context.Context, it Item) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO quote_items (quote_id, description, quantity, unit_price, discount_percent, tax_percent, position)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		it.QuoteID, it.Description, it.Quantity, it.UnitPrice, it.DiscountPercent, it.TaxPercent, it.Position,
	).Scan(&id)
	return id, err
}

func (r *repository) DeleteItems(ctx context.Context, quoteID int64) error {
	_, err := r.db.Exec(ctx, `DELETE FROM quote_items WHERE quote_id = $1`, quoteID)
	return err
}

func (r *repository) UpdateTotal(ctx context.Context, id int64, total float64) error {
	tag, err := r.db.Exec(ctx, `UPDATE quotes SET total_amount = $2, updated_at = NOW() WHERE id = $1`, id, total)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateStatus moves a quote only if it is still in the expected status.
func (r *repository) UpdateStatus(ctx context.Context, id int64, from, to Status) error {
	tag, err := r.db.Exec(ctx, `UPDATE quotes SET status = $3, updated_at = NOW() WHERE id = $1 AND status = $2`, id, from, to)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrStaleStatus
	}
	return nil
}
