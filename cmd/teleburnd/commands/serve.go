package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ordbridge/teleburnd/internal/api"
	"github.com/ordbridge/teleburnd/internal/config"
	"github.com/ordbridge/teleburnd/internal/guard"
	"github.com/ordbridge/teleburnd/internal/logging"
	"github.com/ordbridge/teleburnd/internal/metrics"
	"github.com/ordbridge/teleburnd/internal/rpc"
	"github.com/ordbridge/teleburnd/internal/simulate"
	"github.com/ordbridge/teleburnd/internal/token"
	"github.com/ordbridge/teleburnd/internal/txbuild"
	"github.com/ordbridge/teleburnd/internal/util"
	"github.com/ordbridge/teleburnd/internal/verify"
)

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	var listenAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the teleburn HTTP API service",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if listenAddr != "" {
				cfg.Server.ListenAddr = listenAddr
			}
			setupLogging(cfg)
			return runServe(cfg)
		},
	}

	cmd.Flags().StringVar(&listenAddr, "listen", "", "Listen address (overrides config)")
	return cmd
}

func runServe(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := rpc.NewPool(cfg.RPC.Endpoints)
	if err != nil {
		return fmt.Errorf("rpc pool: %w", err)
	}
	pool.SetProbeInterval(time.Duration(cfg.RPC.ProbeIntervalSecs) * time.Second)

	collector := metrics.NewCollector()
	pool.SetObserver(collector)

	detector := token.NewDetector(pool)
	builder := txbuild.NewBuilder(detector, &txbuild.PoolChain{Pool: pool})
	runner := simulate.NewRunner(builder, &simulate.PoolSimulator{Pool: pool})
	verifier := verify.NewService(&verify.PoolScanner{Pool: pool})

	limiter := guard.NewRateLimiter(
		cfg.Server.RateLimitRequests,
		time.Duration(cfg.Server.RateLimitWindowSecs)*time.Second,
		cfg.Server.GlobalRatePerSec,
	)
	kill := guard.NewKillSwitch(cfg.KillSwitch.EnvVar, cfg.KillSwitch.StateFile)

	server := api.NewServer(&api.ServerConfig{
		ListenAddr:     cfg.Server.ListenAddr,
		AllowedOrigins: cfg.Server.CORSOrigins,
		TrustProxy:     cfg.Server.TrustProxy,
		ReadTimeout:    time.Duration(cfg.Server.ReadTimeoutSecs) * time.Second,
		WriteTimeout:   time.Duration(cfg.Server.WriteTimeoutSecs) * time.Second,
		IdleTimeout:    time.Duration(cfg.Server.IdleTimeoutSecs) * time.Second,
	})
	server.SetBuilder(builder)
	server.SetRunner(runner)
	server.SetVerifier(verifier)
	server.SetPool(pool)
	server.SetRateLimiter(limiter)
	server.SetKillSwitch(kill)
	server.SetMetrics(collector)

	pool.Start(ctx)
	limiter.Start(ctx)
	if cfg.KillSwitch.StateFile != "" {
		util.SafeGo("kill-switch-watch", func() {
			if werr := kill.Watch(ctx); werr != nil {
				logging.Warn("kill switch watcher exited",
					logging.Err(werr),
					logging.Component("serve"))
			}
		})
	}

	if err := server.Start(ctx); err != nil {
		return err
	}

	logging.Info("teleburnd started",
		"addr", cfg.Server.ListenAddr,
		"endpoints", len(cfg.RPC.Endpoints),
		logging.Component("serve"))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logging.Info("Shutting down...", logging.Component("serve"))
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Stop(shutdownCtx); err != nil {
		logging.Error("Error during shutdown",
			logging.Err(err),
			logging.Component("serve"))
	}
	pool.Stop()
	limiter.Stop()
	return nil
}

func loadConfig() (*config.Config, error) {
	path := ConfigPath
	if path == "" {
		path = config.DefaultConfigPath()
	}
	return config.Load(path)
}

func setupLogging(cfg *config.Config) {
	level := slog.LevelInfo
	switch cfg.Logging.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Logging.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	logging.SetLogger(slog.New(handler))
}
