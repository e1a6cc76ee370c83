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

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"xeterbot/internal/bus"
	"xeterbot/internal/channel"
	"xeterbot/internal/config"
	"xeterbot/internal/domain"
	"xeterbot/internal/metrics"
	"xeterbot/internal/pipeline"
)

const shutdownTimeout = 10 * time.Second

func gatewayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gateway",
		Short: "Start the bot on all enabled chat platforms",
		Long:  "Connects every enabled channel (Discord, Telegram) and serves obfuscation requests. Press Ctrl+C to stop.",
		RunE:  runGateway,
	}
}

func chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Try the bot in the terminal",
		Long:  "Runs the same pipeline against a console channel. Paste a ```lua block after !weak, !medium or !strong.",
		RunE:  runChat,
	}
}

func runGateway(cmd *cobra.Command, args []string) error {
	cfg, closeLog, err := loadConfig()
	if err != nil {
		return err
	}
	defer closeLog()

	var channels []domain.Channel
	if dc := cfg.Channels.Discord; dc.Enabled {
		channels = append(channels, channel.NewDiscord(channel.DiscordConfig{
			Token:  dc.Token,
			Guilds: dc.Guilds,
			Logger: logger,
		}))
	}
	if tc := cfg.Channels.Telegram; tc.Enabled {
		channels = append(channels, channel.NewTelegram(channel.TelegramConfig{
			Token:     tc.Token,
			AllowFrom: tc.AllowFrom,
			Logger:    logger,
		}))
	}
	if len(channels) == 0 {
		return errors.New("no chat channel enabled; enable channels.discord or channels.telegram, or use 'xeterbot chat'")
	}

	return serve(cfg, channels)
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, closeLog, err := loadConfig()
	if err != nil {
		return err
	}
	defer closeLog()

	cwd, _ := os.Getwd()
	return serve(cfg, []domain.Channel{channel.NewCLI(channel.CLIConfig{Logger: logger, OutDir: cwd})})
}

// serve runs channels, the dispatcher and the optional metrics endpoint in
// one errgroup. The first to fail, or a signal, stops all of them.
func serve(cfg *config.Config, channels []domain.Channel) error {
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	messageBus := bus.New(100, logger)
	dispatcher := pipeline.NewDispatcher(pipeline.DispatcherConfig{
		Pipeline:    a.pipeline,
		Bus:         messageBus,
		Logger:      logger,
		Concurrency: cfg.General.MaxConcurrentJobs,
		JobTimeout:  cfg.JobTimeout(),
	})

	g, gctx := errgroup.WithContext(ctx)

	dispatchCtx, stopDispatch := context.WithCancel(context.Background())
	defer stopDispatch()
	dispatched := make(chan struct{})
	go func() {
		defer close(dispatched)
		dispatcher.Run(dispatchCtx)
	}()

	for _, ch := range channels {
		g.Go(func() error {
			logger.Info("channel starting", "channel", ch.Name())
			if err := ch.Start(gctx, messageBus); err != nil {
				return fmt.Errorf("%s channel: %w", ch.Name(), err)
			}
			logger.Info("channel stopped", "channel", ch.Name())
			// The console channel ends on EOF or /quit, which ends the session.
			if ch.Name() == "cli" {
				stop()
			}
			return nil
		})
	}

	if cfg.Metrics.Enabled {
		srv := metricsServer(cfg.Metrics)
		g.Go(func() error {
			logger.Info("metrics listening", "addr", srv.Addr, "endpoint", cfg.Metrics.Endpoint)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	logger.Info("gateway started. Press Ctrl+C to stop.", "channels", len(channels))
	runErr := g.Wait()

	// Channels are down; close the bus so the dispatcher drains what was
	// queued, then give in-flight jobs a bounded grace period.
	logger.Info("shutting down")
	for _, ch := range channels {
		ch.Stop()
	}
	messageBus.Close()

	select {
	case <-dispatched:
		logger.Info("shutdown complete")
	case <-time.After(shutdownTimeout):
		logger.Warn("shutdown timed out, cancelling in-flight jobs")
		stopDispatch()
		<-dispatched
	}
	return runErr
}

func metricsServer(mc config.MetricsConfig) *http.Server {
	endpoint := mc.Endpoint
	if endpoint == "" {
		endpoint = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(endpoint, metrics.Collector.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok\n"))
	})
	return &http.Server{
		Addr:              mc.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
