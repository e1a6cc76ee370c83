package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"xeterbot/internal/domain"
	"xeterbot/internal/metrics"
)

const DefaultEngineTimeout = 60 * time.Second

// Invoker runs the external engine on an acquired input.
type Invoker struct {
	engine  domain.Engine
	timeout time.Duration
	suffix  string
	logger  *slog.Logger
}

func NewInvoker(engine domain.Engine, timeout time.Duration, suffix string, logger *slog.Logger) *Invoker {
	if timeout <= 0 {
		timeout = DefaultEngineTimeout
	}
	if suffix == "" {
		suffix = DefaultSourceSuffix
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Invoker{engine: engine, timeout: timeout, suffix: suffix, logger: logger}
}

// Invoke transforms in under preset and returns the engine's output handle,
// owned by scope. The input handle stays alive until scope is closed.
func (i *Invoker) Invoke(ctx context.Context, in *JobInput, preset Preset, scope *Scope) (*Handle, error) {
	out, err := scope.Acquire(i.suffix)
	if err != nil {
		return nil, unexpected(err)
	}

	engineCtx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	start := time.Now()
	err = i.engine.Transform(engineCtx, domain.TransformRequest{
		InputPath:  in.Handle.Path(),
		OutputPath: out.Path(),
		Preset:     string(preset),
	})
	elapsed := time.Since(start)
	metrics.EngineLatency.Observe(elapsed.Seconds())

	if err != nil {
		if ctx.Err() != nil {
			return nil, unexpected(fmt.Errorf("job cancelled during engine run: %w", ctx.Err()))
		}
		if errors.Is(engineCtx.Err(), context.DeadlineExceeded) {
			return nil, &JobError{
				Kind:   KindEngine,
				Detail: fmt.Sprintf("engine timed out after %s", i.timeout),
				Err:    err,
			}
		}
		i.logger.Info("engine rejected input", "engine", i.engine.Name(), "preset", preset, "err", err)
		return nil, &JobError{Kind: KindEngine, Detail: diagnosticOf(err), Err: err}
	}

	i.logger.Debug("engine finished", "engine", i.engine.Name(), "preset", preset, "elapsed", elapsed)
	return out, nil
}

func diagnosticOf(err error) string {
	var d domain.Diagnosable
	if errors.As(err, &d) {
		if text := strings.TrimSpace(d.DiagnosticText()); text != "" {
			return text
		}
	}
	return err.Error()
}
