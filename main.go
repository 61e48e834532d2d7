// Package main, parley gerçek zamanlı mesajlaşma sunucusunun giriş noktasıdır.
//
// `parley serve` dependency injection wire-up'ını yapar:
//  1. Config ve logger
//  2. Tracing
//  3. Database (migration'lar dahil)
//  4. Repository'ler
//  5. Metrics
//  6. Service'ler ve rate limiter'lar
//  7. Hub + handler'lar
//  8. Route'lar + CORS
//  9. HTTP Server
//  10. Graceful shutdown
//
// Diğer komutlar (migrate, token, conversation, history) operatör araçlarıdır.
// Global değişken YOK: her komut kendi bağımlılıklarını kurar.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/akinalp/parley/config"
	"github.com/akinalp/parley/database"
	"github.com/akinalp/parley/pkg/metrics"
	"github.com/akinalp/parley/pkg/tracing"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// buildRootCmd, test edilebilmesi için main'den ayrıdır.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "parley",
		Short: "Real-time messaging core",
		Long: `parley keeps WebSocket connections for authenticated users, persists
messages to a durable log and fans them out to online conversation members.

Configuration is read from environment variables (and a .env file if present).`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		buildServeCmd(),
		buildMigrateCmd(),
		buildTokenCmd(),
		buildConversationCmd(),
		buildHistoryCmd(),
	)
	return rootCmd
}

func buildServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the WebSocket server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg, logger)
		},
	}
}

// loadConfig, config'i ve config'teki seviyeye göre logger'ı oluşturur.
func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, logs.GetLoggerFromString(cfg.Log.Level), nil
}

// runServe, ctx iptal edilene kadar sunucuyu çalıştırır.
func runServe(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	log := logger.With("component", "main")
	log.Info("parley server starting", "addr", cfg.Server.Addr())

	// ─── 2. Tracing ───
	shutdownTracing, err := tracing.Setup(ctx, tracing.Config{
		ServiceName:  "parley",
		Endpoint:     cfg.Tracing.Endpoint,
		Insecure:     cfg.Tracing.Insecure,
		SamplingRate: cfg.Tracing.SamplingRate,
	})
	if err != nil {
		return fmt.Errorf("failed to set up tracing: %w", err)
	}

	// ─── 3. Database ───
	db, err := database.New(ctx, cfg.Database.Path, database.Migrations(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	// ─── 4-7. Repository → Service → Handler ───
	repos := initRepositories(db.Conn)
	m := metrics.New(prometheus.DefaultRegisterer)

	svcs := initServices(db.Conn, repos, cfg, m, logger)
	defer svcs.Close()

	limiters := initRateLimiters(cfg)
	defer limiters.Close()

	h := initHandlers(svcs, limiters, cfg, m, logger)

	// ─── 8-9. Routes + HTTP Server ───
	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           initRoutes(h, prometheus.DefaultGatherer, cfg.Server.AllowedOrigins),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}

	// ─── 10. Graceful Shutdown ───
	//
	// Önce WebSocket bağlantıları 1000 ile kapatılır; client'lar sunucunun
	// kapandığını bilir. Sonra HTTP server yeni istek almayı bırakır.
	log.Info("shutting down")
	h.Hub.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("forced shutdown", "error", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Warn("failed to flush traces", "error", err)
	}

	log.Info("server stopped gracefully")
	return nil
}
