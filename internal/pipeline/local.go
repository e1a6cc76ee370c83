package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"xeterbot/internal/bus"
	"xeterbot/internal/domain"
)

// LocalChannel names jobs started from the command line in events and history.
const LocalChannel = "local"

// ObfuscateFile runs a local source file through the engine and packager and
// writes the packaged result to outPath. An empty outPath or a directory gets
// the generated Xeter_<n>.txt name. It returns the path written.
func (p *Pipeline) ObfuscateFile(ctx context.Context, srcPath string, preset Preset, outPath string) (string, error) {
	start := time.Now()
	rec := domain.JobRecord{
		ID:        uuid.NewString(),
		Channel:   LocalChannel,
		AuthorID:  "local",
		Preset:    string(preset),
		CreatedAt: start,
	}
	log := p.logger.With("job_id", rec.ID, "channel", LocalChannel, "preset", preset)
	p.events.Emit(bus.JobEvent{Type: bus.EventJobStarted, Channel: LocalChannel, Job: rec})

	written, err := p.obfuscateFile(ctx, srcPath, preset, outPath, &rec)

	rec.DurationMs = time.Since(start).Milliseconds()
	rec.Status = domain.JobReplied
	if err != nil {
		je := asJobError(err)
		rec.Status, rec.Detail = je.Kind.Status(), je.Error()
		log.Info("job failed", "kind", je.Kind, "err", err)
	} else {
		log.Info("job finished", "source", srcPath, "file", written, "duration", time.Since(start))
	}
	p.events.Emit(bus.JobEvent{Type: bus.EventJobFinished, Channel: LocalChannel, Job: rec})
	return written, err
}

func (p *Pipeline) obfuscateFile(ctx context.Context, srcPath string, preset Preset, outPath string, rec *domain.JobRecord) (string, error) {
	scope := p.temp.NewScope(p.logger)
	defer scope.Close()

	in, err := p.acquirer.FromFile(srcPath, scope)
	if err != nil {
		return "", err
	}
	rec.Origin, rec.InputBytes = in.Origin, in.Bytes

	engineOut, err := p.invoker.Invoke(ctx, in, preset, scope)
	if err != nil {
		return "", err
	}
	out, err := p.packager.Package(engineOut, scope)
	if err != nil {
		return "", unexpected(err)
	}
	rec.OutputName = out.Filename

	dst := outPath
	if dst == "" {
		dst = out.Filename
	} else if info, err := os.Stat(dst); err == nil && info.IsDir() {
		dst = filepath.Join(dst, out.Filename)
	}
	if err := copyOut(out.Path, dst); err != nil {
		return "", unexpected(fmt.Errorf("write %s: %w", dst, err))
	}
	return dst, nil
}

func copyOut(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
