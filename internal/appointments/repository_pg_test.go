package appointments

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agencyops/agencyops/internal/platform/db/dbtest"
)

func TestConcurrentCreateBooksSlotOnce(t *testing.T) {
	pool := dbtest.Open(t)
	ctx := context.Background()

	var freelancerID, contactID int64
	require.NoError(t, pool.QueryRow(ctx,
		`INSERT INTO freelancers (name, email) VALUES ('Rina', 'rina@example.com') RETURNING id`).Scan(&freelancerID))
	require.NoError(t, pool.QueryRow(ctx,
		`INSERT INTO contacts (first_name, last_name) VALUES ('Budi', 'Santoso') RETURNING id`).Scan(&contactID))

	svc := NewService(NewRepository(pool), nil, nil)
	base := time.Date(2026, 10, 20, 14, 0, 0, 0, time.UTC)
	requests := []CreateRequest{
		{Title: "Kickoff", ContactID: contactID, FreelancerID: &freelancerID, Start: base, DurationMinutes: 60},
		{Title: "Follow-up", ContactID: contactID, FreelancerID: &freelancerID, Start: base.Add(30 * time.Minute), DurationMinutes: 30},
	}

	for round := 0; round < 5; round++ {
		start := make(chan struct{})
		errs := make([]error, len(requests))
		var wg sync.WaitGroup
		for i, req := range requests {
			wg.Add(1)
			go func(i int, req CreateRequest) {
				defer wg.Done()
				<-start
				_, errs[i] = svc.Create(ctx, req, 1)
			}(i, req)
		}
		close(start)
		wg.Wait()

		var succeeded int
		for _, err := range errs {
			if err == nil {
				succeeded++
				continue
			}
			assert.ErrorIs(t, err, ErrSchedulingConflict)
		}
		assert.Equal(t, 1, succeeded, "round %d: %v", round, errs)

		var active int
		require.NoError(t, pool.QueryRow(ctx,
			`SELECT COUNT(*) FROM appointments WHERE freelancer_id = $1 AND status <> 'cancelled'`, freelancerID).Scan(&active))
		require.Equal(t, 1, active)
		_, err := pool.Exec(ctx, `UPDATE appointments SET status = 'cancelled' WHERE freelancer_id = $1`, freelancerID)
		require.NoError(t, err)
	}
}

func TestCreateUnknownContactIsValidationError(t *testing.T) {
	pool := dbtest.Open(t)
	svc := NewService(NewRepository(pool), nil, nil)

	_, err := svc.Create(context.Background(), CreateRequest{
		Title: "Intro", ContactID: 424242, Start: time.Date(2026, 10, 20, 9, 0, 0, 0, time.UTC), DurationMinutes: 30,
	}, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "contact_id 424242 does not exist")
}
