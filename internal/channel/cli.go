package channel

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"xeterbot/internal/domain"
)

const cliChatID = "console"

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// CLI implements domain.Channel for a local terminal session. Lines are
// buffered while a ``` fence is open so multi-line code blocks arrive as one
// message. Result files are written to OutDir.
type CLI struct {
	logger *slog.Logger
	in     io.Reader
	out    io.Writer
	outDir string

	mu    sync.Mutex // guards out and frame
	frame int
	seq   int
}

type CLIConfig struct {
	Logger *slog.Logger
	In     io.Reader
	Out    io.Writer
	OutDir string // default: current directory
}

func NewCLI(cfg CLIConfig) *CLI {
	if cfg.In == nil {
		cfg.In = os.Stdin
	}
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.OutDir == "" {
		cfg.OutDir = "."
	}
	return &CLI{
		logger: cfg.Logger,
		in:     cfg.In,
		out:    cfg.Out,
		outDir: cfg.OutDir,
	}
}

func (c *CLI) Name() string { return "cli" }

// Start reads messages until EOF, /quit or ctx cancellation.
func (c *CLI) Start(ctx context.Context, bus domain.MessageBus) error {
	bus.Attach(c.Name(), c)

	c.printf("xeterbot console. Type !help for usage, /quit to exit.\nYou> ")

	done := make(chan struct{})
	defer close(done)
	lines, readErr := c.readLines(done)

	var pending []string
	for {
		var line string
		select {
		case <-ctx.Done():
			return nil
		case l, ok := <-lines:
			if !ok {
				return <-readErr
			}
			line = l
		}

		if len(pending) == 0 {
			switch strings.TrimSpace(line) {
			case "":
				c.printf("You> ")
				continue
			case "/quit", "/exit", "/q":
				c.logger.Info("user requested quit")
				return nil
			}
		}

		pending = append(pending, line)
		text := strings.Join(pending, "\n")
		if strings.Count(text, "```")%2 == 1 {
			continue // fence still open
		}
		pending = pending[:0]

		c.seq++
		id := strconv.Itoa(c.seq)
		bus.Publish(domain.InboundEvent{
			ID:         id,
			Channel:    c.Name(),
			ChatID:     cliChatID,
			MessageID:  id,
			AuthorID:   "local",
			AuthorName: "you",
			Text:       text,
			Timestamp:  time.Now(),
		})
	}
}

// readLines scans input on its own goroutine so Start can return on
// cancellation while a read is pending. The goroutine ends at EOF or, after
// done is closed, with the next line read.
func (c *CLI) readLines(done <-chan struct{}) (<-chan string, <-chan error) {
	lines := make(chan string)
	errc := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(c.in)
		scanner.Buffer(make([]byte, 64*1024), 1<<20)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-done:
				return
			}
		}
		errc <- scanner.Err()
	}()
	return lines, errc
}

// Stop is a no-op; Start returns at EOF.
func (c *CLI) Stop() error { return nil }

func (c *CLI) SendTyping(ctx context.Context, chatID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := fmt.Fprintf(c.out, "\r%s Working...", spinnerFrames[c.frame%len(spinnerFrames)])
	c.frame++
	return err
}

func (c *CLI) Reply(ctx context.Context, ev domain.InboundEvent, r domain.Reply) error {
	var body string
	switch {
	case r.File != nil:
		dst := filepath.Join(c.outDir, filepath.Base(r.File.Name))
		if err := copyFile(r.File.Path, dst); err != nil {
			return fmt.Errorf("save result: %w", err)
		}
		body = "Saved " + dst
	case r.Help != nil:
		body = HelpText(r.Help)
	default:
		body = r.Text
	}

	c.printf("\r\033[K--- xeterbot ---\n%s\n----------------\nYou> ", body)
	return nil
}

func (c *CLI) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = fmt.Fprintf(c.out, format, args...)
}

func copyFile(src, dst string) error {
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

var _ domain.Channel = (*CLI)(nil)
