package app

import (
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/agencyops/agencyops/internal/appointments"
	"github.com/agencyops/agencyops/internal/commissions"
	"github.com/agencyops/agencyops/internal/contacts"
	"github.com/agencyops/agencyops/internal/platform/cache"
	"github.com/agencyops/agencyops/internal/quotes"
	"github.com/agencyops/agencyops/internal/shared"
)

// Services holds the domain services shared by the API and the worker.
type Services struct {
	Quotes       *quotes.Service
	Commissions  *commissions.Service
	Appointments *appointments.Service
	Contacts     *contacts.Service
}

// NewServices wires repositories, audit, idempotency and notifications into
// the domain services.
func NewServices(cfg *Config, pool *pgxpool.Pool, redisClient *redis.Client, logger *slog.Logger) (*Services, error) {
	auditLogger := shared.NewAuditLogger(pool)
	notifier := shared.LogNotifier{Logger: logger.With(slog.String("component", "notify"))}

	quoteService := quotes.NewService(quotes.NewRepository(pool), auditLogger, notifier)
	quoteService.SetIdempotency(shared.NewIdempotencyStore(pool))

	lockTTL := cfg.CommissionLockTTL
	commissionService, err := commissions.NewService(
		commissions.NewRepository(pool),
		cache.NewLocker(redisClient),
		auditLogger,
		notifier,
		logger,
		commissions.Config{LockTTL: lockTTL},
	)
	if err != nil {
		return nil, err
	}

	return &Services{
		Quotes:       quoteService,
		Commissions:  commissionService,
		Appointments: appointments.NewService(appointments.NewRepository(pool), auditLogger, notifier),
		Contacts:     contacts.NewService(contacts.NewRepository(pool), auditLogger, notifier),
	}, nil
}
