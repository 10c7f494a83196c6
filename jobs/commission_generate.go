package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/agencyops/agencyops/internal/commissions"
	jobmetrics "github.com/agencyops/agencyops/internal/jobs"
	"github.com/agencyops/agencyops/internal/shared"
)

const (
	// TaskCommissionGenerate builds the commission rows for one month.
	TaskCommissionGenerate = "commissions:generate"
)

// CommissionGeneratePayload selects the month to generate. An empty period
// means the month before the one the job runs in.
type CommissionGeneratePayload struct {
	Period  string `json:"period,omitempty"`
	ActorID int64  `json:"actor_id,omitempty"`
}

// CommissionGenerator is the slice of commissions.Service the job needs.
type CommissionGenerator interface {
	GenerateMonthly(ctx context.Context, period shared.MonthPeriod, actorID int64) (*commissions.GenerationResult, error)
}

// CommissionGenerateJob runs monthly commission generation from the queue.
type CommissionGenerateJob struct {
	Service CommissionGenerator
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewCommissionGenerateJob constructs the job handler.
func NewCommissionGenerateJob(service CommissionGenerator, logger *slog.Logger, metrics *jobmetrics.Metrics) *CommissionGenerateJob {
	return &CommissionGenerateJob{
		Service: service,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// NewCommissionGenerateTask creates an Asynq task for the given month label
// (YYYY-MM). The task id is derived from the label so a month is queued once.
func NewCommissionGenerateTask(period string, actorID int64) (*asynq.Task, error) {
	if period != "" {
		if _, err := shared.ParseMonth(period); err != nil {
			return nil, err
		}
	}
	body, err := json.Marshal(CommissionGeneratePayload{Period: period, ActorID: actorID})
	if err != nil {
		return nil, err
	}
	opts := []asynq.Option{asynq.Queue(QueueCritical), asynq.MaxRetry(3)}
	if period != "" {
		opts = append(opts, asynq.TaskID(TaskCommissionGenerate+":"+period), asynq.Retention(24*time.Hour))
	}
	return asynq.NewTask(TaskCommissionGenerate, body, opts...), nil
}

// Handle executes the commission generation job.
func (j *CommissionGenerateJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Service == nil {
		return errors.New("commission generate: dependencies not configured")
	}
	var payload CommissionGeneratePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("commission generate: decode payload: %v: %w", err, asynq.SkipRetry)
	}

	period, err := j.resolvePeriod(payload.Period)
	if err != nil {
		j.log().Error("resolve period", slog.String("period", payload.Period), slog.Any("error", err))
		return fmt.Errorf("commission generate: %v: %w", err, asynq.SkipRetry)
	}

	tracker := j.metrics().Track(TaskCommissionGenerate)
	result, err := j.Service.GenerateMonthly(ctx, period, payload.ActorID)
	if errors.Is(err, commissions.ErrGenerationInProgress) {
		// Another run owns the month; it will write the same rows.
		j.log().Info("commission generation already running", slog.String("period", period.Label()))
		return tracker.End(nil)
	}
	if err != nil {
		j.log().Error("commission generation failed", slog.String("period", period.Label()), slog.Any("error", err))
		return tracker.End(err)
	}

	j.metrics().AddCommissions("created", result.Created)
	j.metrics().AddCommissions("updated", result.Updated)
	j.metrics().AddCommissions("skipped", result.Skipped)
	j.log().Info("commissions generated",
		slog.String("period", result.Period),
		slog.String("run_id", result.RunID.String()),
		slog.Int("created", result.Created),
		slog.Int("updated", result.Updated),
		slog.Int("skipped", result.Skipped),
	)
	return tracker.End(nil)
}

func (j *CommissionGenerateJob) resolvePeriod(label string) (shared.MonthPeriod, error) {
	if label == "" {
		return shared.PreviousMonth(j.now()), nil
	}
	return shared.ParseMonth(label)
}

func (j *CommissionGenerateJob) now() time.Time {
	if j.clock == nil {
		return time.Now().UTC()
	}
	return j.clock()
}

func (j *CommissionGenerateJob) log() *slog.Logger {
	if j.Logger == nil {
		return slog.Default()
	}
	return j.Logger
}

func (j *CommissionGenerateJob) metrics() *jobmetrics.Metrics {
	return j.Metrics
}
