package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"xeterbot/internal/bus"
	"xeterbot/internal/config"
	"xeterbot/internal/engine"
	"xeterbot/internal/history"
	"xeterbot/internal/metrics"
	"xeterbot/internal/pipeline"
)

// app is the wired pipeline shared by gateway, chat and obfuscate.
type app struct {
	cfg      *config.Config
	events   *bus.EventBus
	pipeline *pipeline.Pipeline
	history  *history.SQLiteStore // nil when disabled
}

func newApp(cfg *config.Config) (*app, error) {
	tmp := cfg.TempDir()
	if tmp != "" {
		if err := os.MkdirAll(tmp, 0o700); err != nil {
			return nil, fmt.Errorf("create temp dir: %w", err)
		}
	}
	tempDir, err := pipeline.NewTempDir(tmp)
	if err != nil {
		return nil, err
	}

	eng, err := engine.NewExec(engine.Config{
		Command:        cfg.Engine.Command,
		WorkDir:        cfg.Engine.WorkDir,
		Env:            envList(cfg.Engine.Env),
		MaxOutputBytes: cfg.Engine.MaxOutputBytes,
		Logger:         logger,
	})
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	events := bus.NewEventBus(logger)
	metrics.ObserveJobs(events)

	a := &app{cfg: cfg, events: events}
	if cfg.History.Enabled {
		store, err := history.NewSQLiteStore(cfg.History.DBPath, logger)
		if err != nil {
			return nil, fmt.Errorf("history store: %w", err)
		}
		a.history = store
		history.Observe(events, store, logger)
		a.pruneHistory()
	}

	a.pipeline, err = pipeline.New(pipeline.Config{
		Engine:         eng,
		TempDir:        tempDir,
		HTTPClient:     pipeline.SharedHTTPClient(cfg.DownloadTimeout()),
		Events:         events,
		Throttle:       pipeline.NewJobThrottle(cfg.Limits.JobBurst, cfg.Limits.JobsPerMinute),
		Logger:         logger,
		MaxSourceBytes: cfg.Limits.MaxSourceBytes,
		SourceSuffix:   cfg.Output.SourceSuffix,
		TypingInterval: cfg.TypingInterval(),
		EngineTimeout:  cfg.EngineTimeout(),
		Packager: pipeline.PackagerConfig{
			Banner:         cfg.Output.Banner,
			FilenamePrefix: cfg.Output.FilenamePrefix,
			FilenameExt:    cfg.Output.FilenameExt,
		},
		Messages: pipeline.Messages{
			SizeExceeded: cfg.Messages.SizeExceeded,
			Apology:      cfg.Messages.Apology,
		},
		Help: pipeline.DefaultHelp(cfg.Limits.MaxSourceBytes, cfg.Output.HelpFooter),
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	logger.Info("pipeline ready", "engine", eng.Name(), "temp_dir", tempDir.Dir(), "max_source_bytes", cfg.Limits.MaxSourceBytes)
	return a, nil
}

func (a *app) pruneHistory() {
	days := a.cfg.History.RetentionDays
	if days <= 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	n, err := a.history.Prune(ctx, time.Now().AddDate(0, 0, -days))
	if err != nil {
		logger.Warn("history prune failed", "err", err)
		return
	}
	if n > 0 {
		logger.Info("history pruned", "removed", n, "retention_days", days)
	}
}

func (a *app) Close() {
	if a.history != nil {
		a.history.Close()
	}
}

func envList(m map[string]string) []string {
	if len(m) == 0 {
		return nil
	}
	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, k+"="+v)
	}
	return out
}
