package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/agencyops/agencyops/cmd/agencyops/cli"
	"github.com/agencyops/agencyops/internal/app"
	"github.com/agencyops/agencyops/internal/appointments"
	"github.com/agencyops/agencyops/internal/commissions"
	"github.com/agencyops/agencyops/internal/contacts"
	"github.com/agencyops/agencyops/internal/observability"
	"github.com/agencyops/agencyops/internal/platform/cache"
	"github.com/agencyops/agencyops/internal/platform/db"
	"github.com/agencyops/agencyops/internal/quotes"
	"github.com/agencyops/agencyops/jobs"
)

const usage = `usage:
  agencyops [serve]
  agencyops jobs trigger -job commissions:generate|quotes:expire [-period YYYY-MM]
  agencyops jobs stats
  agencyops tiers [-count N]`

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cmd := "serve"
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}
	switch cmd {
	case "serve":
		return serve()
	case "jobs":
		return jobsCommand(args)
	case "tiers":
		fs := flag.NewFlagSet("tiers", flag.ContinueOnError)
		count := fs.Int("count", -1, "contract count to resolve")
		if err := fs.Parse(args); err != nil {
			return 2
		}
		return cli.TiersCommand(*count, os.Stdout, os.Stderr)
	default:
		fmt.Fprintln(os.Stderr, usage)
		return 2
	}
}

func jobsCommand(args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, usage)
		return 2
	}
	cfg, err := app.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		return 1
	}
	jobsCLI := cli.NewJobsCLI(cfg.RedisAddr)
	defer jobsCLI.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch args[0] {
	case "trigger":
		fs := flag.NewFlagSet("trigger", flag.ContinueOnError)
		job := fs.String("job", jobs.TaskCommissionGenerate, "task type to enqueue")
		period := fs.String("period", "", "month for commission generation (YYYY-MM)")
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}
		return jobsCLI.TriggerCommand(ctx, cli.TriggerOptions{Job: *job, Period: *period, Stdout: os.Stdout, Stderr: os.Stderr})
	case "stats":
		return jobsCLI.StatsCommand(os.Stdout, os.Stderr)
	default:
		fmt.Fprintln(os.Stderr, usage)
		return 2
	}
}

func serve() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		return 1
	}

	logger := app.NewLogger(cfg)
	slog.SetDefault(logger)

	dbpool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns, MaxConnIdleTime: cfg.PGMaxIdleTime})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		return 1
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		return 1
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	services, err := app.NewServices(cfg, dbpool, redisClient, logger)
	if err != nil {
		logger.Error("init services", slog.Any("error", err))
		return 1
	}
	defer services.Contacts.Close()

	metrics := observability.NewMetrics()

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	jobClient := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:              logger,
		Config:              cfg,
		QuotesHandler:       quotes.NewHandler(logger, services.Quotes),
		CommissionsHandler:  commissions.NewHandler(logger, services.Commissions),
		AppointmentsHandler: appointments.NewHandler(logger, services.Appointments),
		ContactsHandler:     contacts.NewHandler(logger, services.Contacts),
		JobHandler:          jobs.NewHandler(inspector, jobClient, logger),
		Metrics:             metrics,
		Checks: map[string]app.Pinger{
			"postgres": dbpool,
			"redis":    app.PingFunc(func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }),
		},
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
		return 1
	}
	return 0
}
