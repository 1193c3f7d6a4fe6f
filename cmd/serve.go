package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/agentmatch/internal/adapters/generator/gemini"
	"github.com/okian/agentmatch/internal/adapters/generator/simulated"
	"github.com/okian/agentmatch/internal/adapters/http/api"
	"github.com/okian/agentmatch/internal/adapters/http/swagger"
	"github.com/okian/agentmatch/internal/adapters/repository"
	"github.com/okian/agentmatch/internal/adapters/repository/postgres"
	service "github.com/okian/agentmatch/internal/app"
	"github.com/okian/agentmatch/internal/config"
	"github.com/okian/agentmatch/internal/domain/dispatch"
	"github.com/okian/agentmatch/pkg/logger"
)

// HTTP server timeout constants.
const (
	readTimeout       = 10 * time.Second
	writeTimeout      = 10 * time.Second
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	Long:  "Loads configuration (defaults, optional YAML file from AGENTMATCH_CONFIG, AGENTMATCH_* env), starts the dispatch workers and serves the JSON API until SIGINT or SIGTERM.",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}

	if err := logger.Init(logger.WithFormat(cfg.LogFormat), logger.WithLevel(cfg.LogLevel)); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()
	log := logger.Get()

	opts, cleanup, err := serviceOptions(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	svc := service.New(opts...)
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("failed to start service: %w", err)
	}

	go startSystemMetricsUpdater(ctx)
	go startServiceMetricsUpdater(ctx, svc)

	mux := http.NewServeMux()
	swagger.Register(ctx, mux)
	api.NewServer(svc, svc).Register(mux)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr), logger.String("generator", cfg.Generator))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		log.Info(ctx, "shutting down server...")
	case err := <-serveErr:
		if err != nil {
			log.Error(ctx, "HTTP server failed", logger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(shutdownCtx, "server shutdown failed", logger.Error(err))
	}
	if err := svc.Stop(shutdownCtx); err != nil {
		log.Error(shutdownCtx, "service shutdown failed", logger.Error(err))
	}

	log.Info(shutdownCtx, "server stopped")
	return nil
}

// serviceOptions translates cfg into service options. cleanup releases
// whatever was opened, even when an error is returned.
func serviceOptions(ctx context.Context, cfg *config.Config, log logger.Logger) ([]service.Option, func(), error) {
	cleanup := func() {}
	opts := []service.Option{
		service.WithLogger(log.Named("service")),
		service.WithWorkerCount(cfg.WorkerCount),
		service.WithQueueSize(cfg.QueueSize),
		service.WithDefaultDailyLimit(cfg.DefaultDailyLimit),
		service.WithMaxMatchLimit(cfg.MaxMatchLimit),
		service.WithGeneratorTimeout(cfg.GeneratorTimeout()),
		service.WithGeneratorRetries(cfg.GeneratorRetries),
		service.WithLocation(cfg.Location()),
		service.WithAutoDispatchInterval(cfg.AutoDispatchInterval()),
		service.WithJobRetention(cfg.JobRetention()),
	}

	if cfg.ProfilesFile != "" {
		fixture, err := repository.LoadFixture(cfg.ProfilesFile)
		if err != nil {
			return nil, cleanup, fmt.Errorf("failed to load profiles: %w", err)
		}
		log.Info(ctx, "profiles loaded",
			logger.String("file", cfg.ProfilesFile),
			logger.Int("profiles", len(fixture.Profiles)),
			logger.Int("settings", len(fixture.Settings)))
		opts = append(opts, service.WithFixture(fixture))
	}

	gen, err := newGenerator(ctx, cfg, log)
	if err != nil {
		return nil, cleanup, err
	}
	opts = append(opts, service.WithGenerator(gen))

	if cfg.DatabaseURL != "" {
		db, err := postgres.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, cleanup, err
		}
		cleanup = db.Close
		if err := db.Migrate(ctx); err != nil {
			return nil, cleanup, err
		}
		log.Info(ctx, "using PostgreSQL for quota and history")
		opts = append(opts,
			service.WithQuotaStore(postgres.NewQuotaStore(db)),
			service.WithHistoryStore(postgres.NewHistoryStore(db)),
		)
	}
	return opts, cleanup, nil
}

func newGenerator(ctx context.Context, cfg *config.Config, log logger.Logger) (dispatch.Generator, error) {
	switch cfg.Generator {
	case config.GeneratorGemini:
		gen, err := gemini.New(ctx, cfg.GeminiAPIKey,
			gemini.WithModel(cfg.GeminiModel),
			gemini.WithRounds(cfg.ConversationRounds),
			gemini.WithLogger(log.Named("gemini")),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create gemini generator: %w", err)
		}
		log.Info(ctx, "using gemini generator", logger.String("model", gen.Model()))
		return gen, nil
	default:
		return simulated.New(
			simulated.WithLatency(
				time.Duration(cfg.SimulatedLatencyMinMS)*time.Millisecond,
				time.Duration(cfg.SimulatedLatencyMaxMS)*time.Millisecond,
			),
			simulated.WithRounds(cfg.ConversationRounds),
			simulated.WithLogger(log.Named("simulated")),
		), nil
	}
}
