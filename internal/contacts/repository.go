package contacts

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists contacts. Email and phone are stored normalised.
type Repository interface {
	Finder
	Get(ctx context.Context, id int64) (*Contact, error)
	List(ctx context.Context, req ListRequest) ([]Contact, int, error)
	Create(ctx context.Context, c Contact) (int64, error)
	Update(ctx context.Context, c Contact) error
}

type dbtx interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
}

type repository struct {
	db dbtx
}

// NewRepository returns a pgx backed Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool}
}

const contactColumns = `id, first_name, last_name, email, phone, status, freelancer_id, created_at, updated_at`

func scanContact(row pgx.Row) (*Contact, error) {
	var c Contact
	err := row.Scan(&c.ID, &c.FirstName, &c.LastName, &c.Email, &c.Phone, &c.Status, &c.FreelancerID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (r *repository) Get(ctx context.Context, id int64) (*Contact, error) {
	return scanContact(r.db.QueryRow(ctx, `SELECT `+contactColumns+` FROM contacts WHERE id = $1`, id))
}

func (r *repository) findOne(ctx context.Context, column, value string, excludeID int64) (*Contact, error) {
	c, err := scanContact(r.db.QueryRow(ctx,
		`SELECT `+contactColumns+` FROM contacts WHERE `+column+` = $1 AND id <> $2 ORDER BY id LIMIT 1`,
		value, excludeID))
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return c, err
}

func (r *repository) FindByEmail(ctx context.Context, email string, excludeID int64) (*Contact, error) {
	return r.findOne(ctx, "email", email, excludeID)
}

func (r *repository) FindByPhone(ctx context.Context, phone string, excludeID int64) (*Contact, error) {
	return r.findOne(ctx, "phone", phone, excludeID)
}

func (r *repository) List(ctx context.Context, req ListRequest) ([]Contact, int, error) {
	var conditions []string
	var args []any
	argPos := 1

	if req.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(first_name ILIKE $%d OR last_name ILIKE $%d OR email ILIKE $%d)", argPos, argPos, argPos))
		args = append(args, "%"+req.Search+"%")
		argPos++
	}
	if req.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argPos))
		args = append(args, *req.Status)
		argPos++
	}
	if req.FreelancerID != nil {
		conditions = append(conditions, fmt.Sprintf("freelancer_id = $%d", argPos))
		args = append(args, *req.FreelancerID)
		argPos++
	}
	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM contacts "+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM contacts %s ORDER BY last_name, first_name, id LIMIT $%d OFFSET $%d`,
		contactColumns, where, argPos, argPos+1)
	args = append(args, req.Limit, req.Offset)
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *c)
	}
	return out, total, rows.Err()
}

func (r *repository) Create(ctx context.Context, c Contact) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO contacts (first_name, last_name, email, phone, status, freelancer_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		c.FirstName, c.LastName, c.Email, c.Phone, c.Status, c.FreelancerID,
	).Scan(&id)
	return id, err
}

func (r *repository) Update(ctx context.Context, c Contact) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE contacts
		SET first_name = $2, last_name = $3, email = $4, phone = $5, status = $6, freelancer_id = $7, updated_at = NOW()
		WHERE id = $1`,
		c.ID, c.FirstName, c.LastName, c.Email, c.Phone, c.Status, c.FreelancerID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
