package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"xeterbot/internal/bus"
	"xeterbot/internal/domain"
)

const (
	ErrorLabel = "Error:"

	DefaultSizeExceededMessage = "Bot is in testing, please use files under {limit}!"
	DefaultApologyMessage      = "Đã xảy ra lỗi. Vui lòng thử lại sau."
)

// Messages are the user-facing reply texts. {limit} in SizeExceeded is
// replaced with the human-readable size cap.
type Messages struct {
	SizeExceeded string
	Apology      string
}

// Config holds all dependencies of a Pipeline.
type Config struct {
	Engine         domain.Engine
	TempDir        *TempDir
	HTTPClient     *http.Client
	Events         *bus.EventBus
	Throttle       *JobThrottle
	Logger         *slog.Logger
	MaxSourceBytes int64
	SourceSuffix   string
	TypingInterval time.Duration
	EngineTimeout  time.Duration
	Packager       PackagerConfig
	Messages       Messages
	Help           *domain.HelpDocument
}

// Pipeline answers one inbound event: help, a full job, or nothing.
type Pipeline struct {
	acquirer       *Acquirer
	invoker        *Invoker
	packager       *Packager
	temp           *TempDir
	events         *bus.EventBus
	throttle       *JobThrottle
	typingInterval time.Duration
	messages       Messages
	help           *domain.HelpDocument
	logger         *slog.Logger
}

func New(cfg Config) (*Pipeline, error) {
	if cfg.Engine == nil {
		return nil, fmt.Errorf("pipeline: engine is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.TempDir == nil {
		td, err := NewTempDir("")
		if err != nil {
			return nil, err
		}
		cfg.TempDir = td
	}
	if cfg.MaxSourceBytes <= 0 {
		cfg.MaxSourceBytes = DefaultMaxSourceBytes
	}
	if cfg.SourceSuffix == "" {
		cfg.SourceSuffix = DefaultSourceSuffix
	}
	if cfg.Packager.Suffix == "" {
		cfg.Packager.Suffix = cfg.SourceSuffix
	}
	if cfg.TypingInterval <= 0 {
		cfg.TypingInterval = DefaultTypingInterval
	}
	if cfg.Messages.SizeExceeded == "" {
		cfg.Messages.SizeExceeded = DefaultSizeExceededMessage
	}
	if cfg.Messages.Apology == "" {
		cfg.Messages.Apology = DefaultApologyMessage
	}
	cfg.Messages.SizeExceeded = strings.ReplaceAll(cfg.Messages.SizeExceeded, "{limit}", humanize.Bytes(uint64(cfg.MaxSourceBytes)))
	if cfg.Help == nil {
		cfg.Help = DefaultHelp(cfg.MaxSourceBytes, "")
	}

	return &Pipeline{
		acquirer: NewAcquirer(AcquirerConfig{
			Client:   cfg.HTTPClient,
			MaxBytes: cfg.MaxSourceBytes,
			Suffix:   cfg.SourceSuffix,
			Logger:   cfg.Logger,
		}),
		invoker:        NewInvoker(cfg.Engine, cfg.EngineTimeout, cfg.SourceSuffix, cfg.Logger),
		packager:       NewPackager(cfg.Packager),
		temp:           cfg.TempDir,
		events:         cfg.Events,
		throttle:       cfg.Throttle,
		typingInterval: cfg.TypingInterval,
		messages:       cfg.Messages,
		help:           cfg.Help,
		logger:         cfg.Logger,
	}, nil
}

// Handle classifies ev and carries out the decision, replying through r.
// It never returns an error: every failure is either answered in chat or,
// for NoPayloadFound and ignored events, deliberately left unanswered.
func (p *Pipeline) Handle(ctx context.Context, ev domain.InboundEvent, r domain.Responder) {
	d := Classify(ev)
	p.events.Emit(bus.JobEvent{Type: bus.EventClassified, Channel: ev.Channel, Action: d.Action.String()})

	switch d.Action {
	case ActionIgnore:
		return
	case ActionHelp:
		if err := r.Reply(ctx, ev, domain.Reply{Help: p.help}); err != nil {
			p.logger.Warn("help reply failed", "channel", ev.Channel, "chat_id", ev.ChatID, "err", err)
		}
		return
	}

	p.runJob(ctx, ev, d.Preset, r)
}

// runJob owns the signaler and the scope; both are released by defers so
// every exit path, panics included, cleans up. A panic anywhere in the job,
// reply stage included, is answered with the apology and still finishes
// the record.
func (p *Pipeline) runJob(ctx context.Context, ev domain.InboundEvent, preset Preset, r domain.Responder) {
	start := time.Now()
	rec := domain.JobRecord{
		ID:         uuid.NewString(),
		Channel:    ev.Channel,
		ChatID:     ev.ChatID,
		AuthorID:   ev.AuthorID,
		AuthorName: ev.AuthorName,
		Preset:     string(preset),
		CreatedAt:  start,
	}
	log := p.logger.With("job_id", rec.ID, "channel", ev.Channel, "preset", preset)

	var err error
	defer func() {
		if v := recover(); v != nil {
			log.Error("job panicked", "panic", v)
			err = unexpected(fmt.Errorf("panic: %v", v))
			p.safeReplyText(ctx, ev, r, p.messages.Apology, log)
		}
		p.finish(ev, &rec, err, start, log)
	}()

	p.events.Emit(bus.JobEvent{Type: bus.EventJobStarted, Channel: ev.Channel, Job: rec})

	sig := StartSignaler(ctx, r, ev.ChatID, p.typingInterval, log)
	defer sig.Stop()
	scope := p.temp.NewScope(log)
	defer scope.Close()

	out, execErr := p.execute(ctx, ev, preset, scope, &rec)
	sig.Stop()

	if execErr != nil {
		err = execErr
		p.replyError(ctx, ev, r, asJobError(execErr), log)
		return
	}
	if sendErr := p.replyFile(ctx, ev, r, out); sendErr != nil {
		err = transportFailure(fmt.Errorf("send result: %w", sendErr))
		p.replyText(ctx, ev, r, p.messages.Apology, log)
	}
}

// finish stamps the outcome on rec and emits job.finished. It runs exactly
// once per job.
func (p *Pipeline) finish(ev domain.InboundEvent, rec *domain.JobRecord, err error, start time.Time, log *slog.Logger) {
	rec.DurationMs = time.Since(start).Milliseconds()
	rec.Status = domain.JobReplied
	if err != nil {
		je := asJobError(err)
		rec.Status = je.Kind.Status()
		rec.Detail = je.Error()
		log.Info("job failed", "kind", je.Kind, "err", err, "duration", time.Since(start))
	} else {
		source := "Code block"
		if ev.HasAttachment() {
			// Telegram download URLs embed the bot token.
			source = ev.Attachment.Filename
			if source == "" {
				source = redactURL(ev.Attachment.URL)
			}
		}
		log.Info("job replied",
			"author", authorLabel(ev),
			"source", source,
			"origin", rec.Origin,
			"bytes", rec.InputBytes,
			"file", rec.OutputName,
			"duration", time.Since(start),
		)
	}

	p.events.Emit(bus.JobEvent{Type: bus.EventJobFinished, Channel: ev.Channel, Job: *rec})
}

// execute runs Acquire → Transform → Package strictly in order.
func (p *Pipeline) execute(ctx context.Context, ev domain.InboundEvent, preset Preset, scope *Scope, rec *domain.JobRecord) (out *JobOutput, err error) {
	defer func() {
		if v := recover(); v != nil {
			out, err = nil, unexpected(fmt.Errorf("panic: %v", v))
		}
	}()

	if err := p.throttle.Wait(ctx); err != nil {
		return nil, unexpected(err)
	}

	in, err := p.acquirer.Acquire(ctx, ev, scope)
	if err != nil {
		return nil, err
	}
	rec.Origin, rec.InputBytes = in.Origin, in.Bytes

	engineOut, err := p.invoker.Invoke(ctx, in, preset, scope)
	if err != nil {
		return nil, err
	}

	out, err = p.packager.Package(engineOut, scope)
	if err != nil {
		return nil, unexpected(err)
	}
	rec.OutputName = out.Filename
	return out, nil
}

func (p *Pipeline) replyFile(ctx context.Context, ev domain.InboundEvent, r domain.Responder, out *JobOutput) error {
	return r.Reply(ctx, ev, domain.Reply{File: &domain.ReplyFile{
		Name:        out.Filename,
		Path:        out.Path,
		ContentType: "text/plain; charset=utf-8",
	}})
}

func (p *Pipeline) replyError(ctx context.Context, ev domain.InboundEvent, r domain.Responder, je *JobError, log *slog.Logger) {
	switch je.Kind {
	case KindNoPayload:
		// Silent: a preset keyword in ordinary chatter is not a request.
		return
	case KindSizeExceeded:
		p.replyText(ctx, ev, r, p.messages.SizeExceeded, log)
	case KindEngine:
		p.replyText(ctx, ev, r, ErrorLabel+"\n"+je.Detail, log)
	default:
		p.replyText(ctx, ev, r, p.messages.Apology, log)
	}
}

func (p *Pipeline) replyText(ctx context.Context, ev domain.InboundEvent, r domain.Responder, text string, log *slog.Logger) {
	if err := r.Reply(ctx, ev, domain.Reply{Text: text}); err != nil {
		log.Warn("reply failed", "chat_id", ev.ChatID, "err", err)
	}
}

// safeReplyText is replyText for the panic path, where the responder itself
// may be what panicked.
func (p *Pipeline) safeReplyText(ctx context.Context, ev domain.InboundEvent, r domain.Responder, text string, log *slog.Logger) {
	defer func() {
		if v := recover(); v != nil {
			log.Error("apology reply panicked", "panic", v)
		}
	}()
	p.replyText(ctx, ev, r, text, log)
}

func authorLabel(ev domain.InboundEvent) string {
	if ev.AuthorName != "" {
		return ev.AuthorName
	}
	if ev.AuthorID != "" {
		return ev.AuthorID
	}
	return "Unknown User"
}
