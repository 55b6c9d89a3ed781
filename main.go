// Command collab-server is the real-time collaboration relay for the design
// editor: clients join a project room over a WebSocket and exchange canvas
// edits, cursors, comments and chat.
//
//	collab-server serve --config collab.yaml
//	collab-server version
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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/smartdesignpro/collab/internal/canvas"
	"github.com/smartdesignpro/collab/internal/config"
	"github.com/smartdesignpro/collab/internal/handlers"
	"github.com/smartdesignpro/collab/internal/jobs"
	"github.com/smartdesignpro/collab/internal/logging"
	"github.com/smartdesignpro/collab/internal/metrics"
	"github.com/smartdesignpro/collab/internal/middleware"
	"github.com/smartdesignpro/collab/internal/room"
	"github.com/smartdesignpro/collab/internal/transport"
)

// Build information, set with -ldflags "-X main.version=..."
var (
	version = "dev"
	commit  = "none"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "collab-server",
		Short:        "Real-time collaboration relay for project rooms",
		SilenceUsage: true,
	}
	root.AddCommand(newServeCmd(), newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "collab-server %s (%s)\n", version, commit)
		},
	}
}

func newServeCmd() *cobra.Command {
	var (
		configPath string
		addr       string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the WebSocket server",
		Example: `  collab-server serve
  collab-server serve --config /etc/collab/collab.yaml
  PORT=8080 collab-server serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				configPath = os.Getenv("COLLAB_CONFIG")
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file (default $COLLAB_CONFIG)")
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address, overrides server.addr")
	return cmd
}

func runServe(ctx context.Context, cfg *config.Config) error {
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	defer logger.Sync()

	store, err := canvas.Open(cfg.Canvas.Store, cfg.Canvas.DSN)
	if err != nil {
		return fmt.Errorf("open canvas store: %w", err)
	}
	if store != nil {
		defer store.Close()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	rooms := room.NewManager()
	cache := canvas.NewCache(store, logger.Named("canvas"))
	limits := middleware.NewRateLimit(
		cfg.Limits.MaxMessageBytes,
		cfg.Limits.MaxObjectDepth,
		cfg.Limits.MaxObjectKeys,
		cfg.Limits.MessagesPerSecond,
		cfg.Limits.Burst,
	)
	ipLimiter := middleware.NewIPRateLimit(cfg.Limits.HandshakeInterval, cfg.Limits.HandshakeBurst)

	router := handlers.NewMessageRouter(rooms, cache, limits, m, logger.Named("router"))
	hub := transport.NewHub(router, m, logger.Named("hub"))
	hubCtx, stopHub := context.WithCancel(context.Background())
	go hub.Run(hubCtx)

	auth := transport.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	wsServer := transport.NewServer(hub, auth, limits, cfg.Server, cfg.WebSocket, m, logger.Named("ws"))

	runner := &jobs.Runner{
		Rooms:     rooms,
		Cache:     cache,
		IPLimiter: ipLimiter,
		Metrics:   m,
		Logger:    logger.Named("jobs"),
		RoomTTL:   cfg.Rooms.EmptyTTL,
		IPIdle:    10 * time.Minute,
	}
	flushSpec := cfg.Canvas.FlushSchedule
	if store == nil {
		flushSpec = ""
	}
	scheduler, err := runner.Schedule(cfg.Rooms.CleanupSchedule, flushSpec)
	if err != nil {
		stopHub()
		return err
	}
	scheduler.Start()

	srv := &http.Server{
		Addr: cfg.Server.Addr,
		Handler: transport.NewRouter(transport.RouterDeps{
			Server:    wsServer,
			IPLimiter: ipLimiter,
			Rooms:     rooms,
			Cache:     cache,
			Gatherer:  reg,
			Logger:    logger.Named("http"),
		}),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("collaboration server listening",
			zap.String("addr", cfg.Server.Addr),
			zap.String("canvas_store", cfg.Canvas.Store),
			zap.Bool("auth", auth.Enabled()),
			zap.String("version", version),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case serveErr = <-errCh:
		logger.Error("server failed", zap.Error(serveErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	<-scheduler.Stop().Done()
	stopHub()
	<-hub.Done()

	if store != nil {
		if err := runner.FlushCanvas(shutdownCtx); err != nil {
			logger.Error("final canvas flush failed", zap.Error(err))
		} else {
			logger.Info("canvas flushed", zap.Int("dirty", cache.Dirty()))
		}
	}
	return serveErr
}
