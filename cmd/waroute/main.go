// Command waroute runs the WhatsApp inbox: the operator/webhook HTTP API,
// the outbox delivery worker, and schema migrations.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"github.com/tbourn/go-wa-inbox/internal/config"
	httpapi "github.com/tbourn/go-wa-inbox/internal/http"
	"github.com/tbourn/go-wa-inbox/internal/observability"
	"github.com/tbourn/go-wa-inbox/internal/provider"
	"github.com/tbourn/go-wa-inbox/internal/queue"
	"github.com/tbourn/go-wa-inbox/internal/repo"
	"github.com/tbourn/go-wa-inbox/internal/services"
	"github.com/tbourn/go-wa-inbox/internal/sysutil"
	"github.com/tbourn/go-wa-inbox/internal/worker"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "waroute",
		Short:         "WhatsApp conversation routing and delivery engine",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	var fakeProvider, embedWorker bool

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API (and an in-process worker when no broker is configured)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), fakeProvider, embedWorker)
		},
	}
	serve.Flags().BoolVar(&fakeProvider, "fake-provider", false, "record sends in memory instead of calling the Cloud API")
	serve.Flags().BoolVar(&embedWorker, "worker", true, "run the outbox worker in-process when AMQP_URL is empty")

	work := &cobra.Command{
		Use:   "worker",
		Short: "Run the outbox drain and campaign resume loop",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWorker(cmd.Context(), fakeProvider)
		},
	}
	work.Flags().BoolVar(&fakeProvider, "fake-provider", false, "record sends in memory instead of calling the Cloud API")

	migrate := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()
			if err := repo.AutoMigrate(a.db); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			log.Info().Str("driver", a.cfg.DBDriver).Msg("schema migrated")
			return nil
		},
	}

	root.AddCommand(serve, work, migrate, &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "waroute", version)
		},
	})
	return root
}

// app holds the process-wide dependencies every subcommand needs.
type app struct {
	cfg      config.Config
	db       *gorm.DB
	shutdown func(context.Context) error
}

func bootstrap(ctx context.Context) (*app, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	sysutil.SetupLogger(cfg.LogLevel, cfg.LogPretty, cfg.OTEL.ServiceName)

	shutdown, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		return nil, fmt.Errorf("otel: %w", err)
	}

	db, err := repo.Open(cfg.DBDriver, cfg.DatabaseURL)
	if err != nil {
		_ = shutdown(ctx)
		return nil, fmt.Errorf("open %s: %w", cfg.DBDriver, err)
	}
	if cfg.OTEL.Enabled {
		if err := observability.InstrumentGORM(db); err != nil {
			_ = shutdown(ctx)
			return nil, fmt.Errorf("gorm tracing: %w", err)
		}
	}
	return &app{cfg: cfg, db: db, shutdown: shutdown}, nil
}

func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("otel shutdown")
	}
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

// bus is the notification queue used by both sides of the outbox.
type bus interface {
	services.Notifier
	worker.Consumer
	Close() error
}

func (a *app) openBus() (bus, error) {
	if a.cfg.AMQPURL == "" {
		return queue.NewMemory(a.cfg.DrainBatch * 4), nil
	}
	q, err := queue.DialAMQP(a.cfg.AMQPURL, a.cfg.OutboxQueue, a.cfg.DrainBatch)
	if err != nil {
		return nil, err
	}
	return q, nil
}

func (a *app) dispatcher(n services.Notifier, fake bool) *services.Dispatcher {
	var sender services.Sender
	if fake {
		sender = &provider.Fake{}
		log.Warn().Msg("using in-memory provider; nothing is delivered")
	} else {
		sender = provider.NewClient(provider.Options{
			BaseURL:    a.cfg.WAAPIBaseURL,
			APIVersion: a.cfg.WAAPIVersion,
			HTTPClient: &http.Client{Timeout: a.cfg.ProviderTimeout + 5*time.Second},
			UserAgent:  "waroute/" + version,
		})
	}
	d := services.NewDispatcher(a.db, sender, n, services.NewMaterializer(a.db))
	d.ProviderTimeout = a.cfg.ProviderTimeout
	d.BackoffBase = a.cfg.OutboxBackoffBase
	d.BackoffMax = a.cfg.OutboxBackoffMax
	if a.cfg.ProviderRPS > 0 {
		d.Limiter = rate.NewLimiter(rate.Limit(a.cfg.ProviderRPS), max(1, int(a.cfg.ProviderRPS)))
	}
	return d
}

func (a *app) worker(d *services.Dispatcher, c worker.Consumer) *worker.Worker {
	return &worker.Worker{
		Dispatcher:   d,
		Campaigns:    services.NewCampaigns(a.db, d, a.cfg.CampaignBatchSize),
		Queue:        c,
		Interval:     a.cfg.DrainInterval,
		Batch:        a.cfg.DrainBatch,
		ReclaimAfter: a.cfg.ReclaimAfter,
	}
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func runServe(parent context.Context, fake, embedWorker bool) error {
	ctx, stop := signalContext(parent)
	defer stop()

	a, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	if err := repo.AutoMigrate(a.db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	b, err := a.openBus()
	if err != nil {
		return fmt.Errorf("queue: %w", err)
	}
	defer b.Close()
	d := a.dispatcher(b, fake)

	// an in-memory bus is only visible inside this process
	workerDone := make(chan error, 1)
	if embedWorker && a.cfg.AMQPURL == "" {
		go func() { workerDone <- a.worker(d, b).Run(ctx) }()
	} else {
		close(workerDone)
	}

	gin.SetMode(a.cfg.GinMode)
	r := gin.New()
	if err := httpapi.RegisterRoutes(r, a.db, d, a.cfg); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              ":" + a.cfg.Port,
		Handler:           r,
		ReadTimeout:       a.cfg.ReadTimeout,
		ReadHeaderTimeout: a.cfg.ReadHeaderTimeout,
		WriteTimeout:      a.cfg.WriteTimeout,
		IdleTimeout:       a.cfg.IdleTimeout,
		MaxHeaderBytes:    a.cfg.MaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("base_path", a.cfg.APIBasePath).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	log.Info().Msg("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	stop()
	if err := <-workerDone; err != nil {
		return fmt.Errorf("worker: %w", err)
	}
	return nil
}

func runWorker(parent context.Context, fake bool) error {
	ctx, stop := signalContext(parent)
	defer stop()

	a, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	b, err := a.openBus()
	if err != nil {
		return fmt.Errorf("queue: %w", err)
	}
	defer b.Close()

	if a.cfg.AMQPURL == "" {
		log.Warn().Msg("AMQP_URL not set; worker relies on periodic sweeps only")
	}
	d := a.dispatcher(b, fake)
	return a.worker(d, b).Run(ctx)
}
