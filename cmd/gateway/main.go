// Command gateway serves the Zavolah marketplace API and chat relay.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"

	"github.com/zavolah/marketplace/infra/supabase"
	"github.com/zavolah/marketplace/internal/config"
	"github.com/zavolah/marketplace/internal/database"
	"github.com/zavolah/marketplace/internal/logging"
	"github.com/zavolah/marketplace/internal/metrics"
)

func main() {
	var (
		configFile = flag.String("config", "", "Path to a YAML config file")
		envFile    = flag.String("env", ".env", "Path to a .env file (ignored when missing)")
		migrateDB  = flag.Bool("migrate", false, "Apply database migrations on start")
	)
	flag.Parse()

	cfg, err := config.Load(config.Options{EnvFile: *envFile, ConfigFile: *configFile})
	if err != nil {
		logging.NewDefault(serviceName).WithError(err).Fatal("load config")
	}
	logger := logging.New(serviceName, cfg.Log.Level, cfg.Log.Format)

	if err := run(cfg, logger, *migrateDB || cfg.Database.MigrateOnStart); err != nil {
		logger.WithError(err).Fatal("gateway stopped")
	}
}

func run(cfg *config.Config, logger *logging.Logger, migrate bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New("zavolah")

	breaker := supabase.DefaultCircuitBreakerConfig()
	breaker.FailureThreshold = cfg.Supabase.BreakerThreshold
	breaker.Timeout = cfg.Supabase.BreakerCooldown
	breaker.OnStateChange = func(from, to supabase.CircuitState) {
		m.SetStoreCircuitState(int(to))
		logger.WithFields(map[string]interface{}{
			"from": from.String(),
			"to":   to.String(),
		}).Warn("store circuit breaker changed state")
	}

	client, err := supabase.New(supabase.Config{
		ProjectURL: cfg.Supabase.URL,
		APIKey:     cfg.Supabase.Key,
		ServiceKey: cfg.Supabase.ServiceRoleKey,
		Timeout:    cfg.Supabase.Timeout,
		Breaker:    breaker,
	})
	if err != nil {
		return err
	}

	store, closeDB, err := openStore(ctx, cfg.Database, logger, migrate)
	if err != nil {
		return err
	}
	defer closeDB()

	g := newGateway(cfg, logger, client, m, store)
	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      g.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	scheduler := cron.New()
	if _, err := g.limiter.ScheduleCleanup(scheduler, cfg.RateLimit.CleanupSchedule); err != nil {
		return err
	}
	scheduler.Start()
	defer scheduler.Stop()

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("addr", server.Addr).Info("gateway listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	g.registry.CloseAll()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("shutdown")
	}
	return nil
}

// openStore connects the direct Postgres path when DATABASE_URL is set. The
// gateway runs without it and falls back to compensated writes.
func openStore(ctx context.Context, cfg config.DatabaseConfig, logger *logging.Logger, migrate bool) (*database.Store, func(), error) {
	if cfg.URL == "" {
		logger.Info("DATABASE_URL not set; transactional writes use compensation")
		return nil, func() {}, nil
	}

	if migrate {
		version, err := database.Migrate(cfg.URL)
		if err != nil {
			return nil, nil, err
		}
		logger.WithField("version", version).Info("schema migrated")
	}

	db, err := database.Open(ctx, database.Config{DSN: cfg.URL, MaxOpenConns: cfg.MaxOpenConns})
	if err != nil {
		return nil, nil, err
	}
	return database.New(db, logger), func() {
		if err := db.Close(); err != nil {
			logger.WithError(err).Warn("close database")
		}
	}, nil
}
