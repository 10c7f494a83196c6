package appointments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agencyops/agencyops/internal/contacts"
	"github.com/agencyops/agencyops/internal/platform/db"
)

// Repository persists appointments and the contact side effect of accepting one.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	Get(ctx context.Context, id int64) (*Appointment, error)
	GetForUpdate(ctx context.Context, id int64) (*Appointment, error)
	List(ctx context.Context, req ListRequest) ([]Appointment, int, error)
	// ListActiveForFreelancer returns the freelancer's non-cancelled
	// appointments that start before to and end after from.
	ListActiveForFreelancer(ctx context.Context, freelancerID int64, from, to time.Time) ([]Appointment, error)
	// LockFreelancer serialises scheduling writes for one freelancer.
	LockFreelancer(ctx context.Context, freelancerID int64) error
	Create(ctx context.Context, a Appointment) (int64, error)
	Assign(ctx context.Context, id, freelancerID int64) error
	UpdateSchedule(ctx context.Context, id int64, start time.Time, minutes int) error
	UpdateStatus(ctx context.Context, id int64, from, to Status) error
	SetContactStatus(ctx context.Context, contactID int64, status contacts.Status, freelancerID int64) error
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

// WithTx runs at ReadCommitted. Every scheduling write first locks the
// freelancer row, and the overlap read after that lock must see whatever the
// previous lock holder committed. A RepeatableRead snapshot is taken before
// the lock wait and would miss it.
func (r *repository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return db.WithTxRetryIsolation(ctx, r.pool, pgx.ReadCommitted, func(tx pgx.Tx) error {
		return fn(ctx, &repository{db: tx, pool: r.pool})
	})
}

const appointmentColumns = `id, title, contact_id, freelancer_id, start_at, duration_minutes, status, notes, created_by, created_at, updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.Title, &a.ContactID, &a.FreelancerID, &a.Start, &a.DurationMinutes,
		&a.Status, &a.Notes, &a.CreatedBy, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

func collect(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()
	var out []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (*Appointment, error) {
	return scanAppointment(r.db.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id))
}

func (r *repository) GetForUpdate(ctx context.Context, id int64) (*Appointment, error) {
	return scanAppointment(r.db.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1 FOR UPDATE`, id))
}

func (r *repository) List(ctx context.Context, req ListRequest) ([]Appointment, int, error) {
	var conditions []string
	var args []any
	argPos := 1

	add := func(cond string, v any) {
		conditions = append(conditions, fmt.Sprintf(cond, argPos))
		args = append(args, v)
		argPos++
	}
	if req.FreelancerID != nil {
		add("freelancer_id = $%d", *req.FreelancerID)
	}
	if req.ContactID != nil {
		add("contact_id = $%d", *req.ContactID)
	}
	if req.Status != nil {
		add("status = $%d", *req.Status)
	}
	if req.From != nil {
		add("start_at >= $%d", *req.From)
	}
	if req.To != nil {
		add("start_at < $%d", *req.To)
	}
	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM appointments "+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM appointments %s ORDER BY start_at, id LIMIT $%d OFFSET $%d`,
		appointmentColumns, where, argPos, argPos+1)
	args = append(args, req.Limit, req.Offset)
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	out, err := collect(rows)
	return out, total, err
}

func (r *repository) ListActiveForFreelancer(ctx context.Context, freelancerID int64, from, to time.Time) ([]Appointment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE freelancer_id = $1
		  AND status <> 'cancelled'
		  AND start_at < $3
		  AND start_at + make_interval(mins => duration_minutes) > $2
		ORDER BY start_at`, freelancerID, from, to)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func (r *repository) LockFreelancer(ctx context.Context, freelancerID int64) error {
	var id int64
	err := r.db.QueryRow(ctx, `SELECT id FROM freelancers WHERE id = $1 FOR UPDATE`, freelancerID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %d", ErrFreelancerNotFound, freelancerID)
	}
	return err
}

func (r *repository) Create(ctx context.Context, a Appointment) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO appointments (title, contact_id, freelancer_id, start_at, duration_minutes, status, notes, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		a.Title, a.ContactID, a.FreelancerID, a.Start, a.DurationMinutes, a.Status, a.Notes, a.CreatedBy,
	).Scan(&id)
	return id, err
}

func (r *repository) Assign(ctx context.Context, id, freelancerID int64) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE appointments SET freelancer_id = $2, status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $4`, id, freelancerID, StatusScheduled, StatusPending)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: appointment %d is no longer pending", ErrInvalidTransition, id)
	}
	return nil
}

func (r *repository) UpdateSchedule(ctx context.Context, id int64, start time.Time, minutes int) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE appointments SET start_at = $2, duration_minutes = $3, updated_at = NOW()
		WHERE id = $1 AND status IN ('pending', 'scheduled')`, id, start, minutes)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: appointment %d is closed", ErrInvalidTransition, id)
	}
	return nil
}

func (r *repository) UpdateStatus(ctx context.Context, id int64, from, to Status) error {
	tag, err := r.db.Exec(ctx, `UPDATE appointments SET status = $3, updated_at = NOW() WHERE id = $1 AND status = $2`, id, from, to)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

func (r *repository) SetContactStatus(ctx context.Context, contactID int64, status contacts.Status, freelancerID int64) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE contacts SET status = $2, freelancer_id = $3, updated_at = NOW()
		WHERE id = $1`, contactID, status, freelancerID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %d", ErrContactNotFound, contactID)
	}
	return nil
}
