package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/agencyops/agencyops/internal/jobs"
)

const (
	// TaskQuoteExpire moves sent quotes past their validity date to expired.
	TaskQuoteExpire = "quotes:expire"
)

// QuoteExpirer is the slice of quotes.Service the sweep needs.
type QuoteExpirer interface {
	ExpireOverdue(ctx context.Context, asOf time.Time) (int, error)
}

// QuoteExpiryJob sweeps overdue quotes.
type QuoteExpiryJob struct {
	Service QuoteExpirer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewQuoteExpiryJob constructs the sweep handler.
func NewQuoteExpiryJob(service QuoteExpirer, logger *slog.Logger, metrics *jobmetrics.Metrics) *QuoteExpiryJob {
	return &QuoteExpiryJob{
		Service: service,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// NewQuoteExpireTask creates the sweep task. It carries no payload.
func NewQuoteExpireTask() *asynq.Task {
	return asynq.NewTask(TaskQuoteExpire, nil, asynq.Queue(QueueDefault), asynq.MaxRetry(3))
}

// Handle executes the sweep.
func (j *QuoteExpiryJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Service == nil {
		return errors.New("quote expiry: dependencies not configured")
	}
	tracker := j.Metrics.Track(TaskQuoteExpire)
	asOf := j.clock()
	n, err := j.Service.ExpireOverdue(ctx, asOf)
	if err != nil {
		j.logger().Error("quote expiry failed", slog.Any("error", err))
		return tracker.End(err)
	}
	j.Metrics.AddExpiredQuotes(n)
	if n > 0 {
		j.logger().Info("quotes expired", slog.Int("count", n), slog.Time("as_of", asOf))
	}
	return tracker.End(nil)
}

func (j *QuoteExpiryJob) logger() *slog.Logger {
	if j.Logger == nil {
		return slog.Default()
	}
	return j.Logger
}
