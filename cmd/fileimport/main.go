package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/JonMunkholm/fileimport/internal/config"
	"github.com/JonMunkholm/fileimport/internal/importer"
	"github.com/JonMunkholm/fileimport/internal/jobdef"
	"github.com/JonMunkholm/fileimport/internal/linesource"
	"github.com/JonMunkholm/fileimport/internal/logging"
	"github.com/JonMunkholm/fileimport/internal/web"
)

func main() {
	jobName := flag.String("job", "", "run this job once and exit instead of serving")
	dir := flag.String("dir", "", "directory override for -job")
	flag.Parse()

	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"db_max_conns", cfg.Database.MaxConns,
		"jobs_dir", cfg.Import.JobsDir,
		"max_concurrent_runs", cfg.Import.MaxConcurrentRuns,
	)

	registry, err := jobdef.LoadDir(cfg.Import.JobsDir, jobdef.Defaults{
		BatchSize:  cfg.Import.BatchSize,
		CommitMode: cfg.Import.CommitMode,
		Charset:    cfg.Import.Charset,
	})
	if err != nil {
		slog.Error("failed to load jobs", "error", err)
		os.Exit(1)
	}
	slog.Info("jobs loaded", "count", registry.Len())
	for _, job := range registry.All() {
		slog.Debug("job", "name", job.Name, "dir", job.Directory, "commit_mode", job.CommitMode)
	}

	ctx := context.Background()
	pool, err := connect(ctx, cfg.Database)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	runner := &jobdef.Runner{
		Registry: registry,
		Provider: jobdef.PgxProviders(pool),
		Limiter:  importer.NewRunLimiter(cfg.Import.MaxConcurrentRuns, cfg.Import.MaxWaitTime),
		Options: importer.Options{
			Source:               linesource.Options{MaxLineSize: cfg.Import.MaxLineSize},
			ContextCheckInterval: cfg.Import.ContextCheckInterval,
		},
		Timeout: cfg.Import.RunTimeout,
	}

	if *jobName != "" {
		code := runOnce(runner, *jobName, *dir)
		pool.Close()
		os.Exit(code)
	}
	serve(runner, cfg)
}

// connect opens the pool and verifies it with a ping.
func connect(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, err
	}
	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MinConns = int32(cfg.MinConns)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	if u, err := url.Parse(cfg.URL); err == nil {
		slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	} else {
		slog.Info("connected to database")
	}
	return pool, nil
}

// runOnce runs a single job and returns the process exit code.
func runOnce(runner *jobdef.Runner, name, dir string) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	result, err := runner.Run(ctx, name, dir)
	if err != nil {
		slog.Error("run failed", "job", name, "error", err)
		return 1
	}
	for _, f := range result.Failed() {
		slog.Error("file failed", "path", f.Path, "error", f.Err)
	}
	if !result.Successful {
		return 1
	}
	return 0
}

func serve(runner *jobdef.Runner, cfg *config.Config) {
	server := web.NewServer(runner, cfg.Server)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if status := runner.Status(); status.Active > 0 {
			slog.Info("waiting for runs to complete", "active", status.Active)
			if err := runner.Limiter.WaitForDrain(shutdownCtx); err != nil {
				slog.Warn("runs did not complete in time", "error", err)
			} else {
				slog.Info("all runs completed")
			}
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}
