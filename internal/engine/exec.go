// Package engine runs the external obfuscator as a child process.
package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"xeterbot/internal/domain"
)

const (
	defaultMaxOutputBytes = 16 * 1024
	waitDelay             = 2 * time.Second

	PlaceholderInput  = "{input}"
	PlaceholderOutput = "{output}"
	PlaceholderPreset = "{preset}"
)

// DefaultCommand runs a Prometheus-style Lua obfuscator CLI.
var DefaultCommand = []string{"lua", "./cli.lua", "--preset", PlaceholderPreset, "--out", PlaceholderOutput, PlaceholderInput}

var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*[A-Za-z]`)

// Failure is a non-successful engine run. Diagnostic is what the engine
// printed, cleaned of terminal colour codes.
type Failure struct {
	Diagnostic string
	ExitCode   int
	Err        error
}

func (f *Failure) Error() string {
	if f.Diagnostic != "" {
		return fmt.Sprintf("engine failed (exit %d): %s", f.ExitCode, f.Diagnostic)
	}
	return fmt.Sprintf("engine failed (exit %d): %v", f.ExitCode, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// DiagnosticText implements domain.Diagnosable.
func (f *Failure) DiagnosticText() string { return f.Diagnostic }

// Config configures an Exec engine.
type Config struct {
	Command        []string // argv template with {input}, {output}, {preset}
	WorkDir        string
	Env            []string // extra KEY=VALUE pairs
	MaxOutputBytes int
	Logger         *slog.Logger
}

// Exec implements domain.Engine by running a command per job.
type Exec struct {
	command        []string
	workDir        string
	env            []string
	maxOutputBytes int
	logger         *slog.Logger
}

func NewExec(cfg Config) (*Exec, error) {
	if len(cfg.Command) == 0 {
		cfg.Command = DefaultCommand
	}
	if !containsPlaceholder(cfg.Command, PlaceholderInput) {
		return nil, fmt.Errorf("engine command must reference %s", PlaceholderInput)
	}
	if cfg.MaxOutputBytes <= 0 {
		cfg.MaxOutputBytes = defaultMaxOutputBytes
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	workDir := cfg.WorkDir
	if workDir != "" {
		if abs, err := filepath.Abs(workDir); err == nil {
			workDir = abs
		}
	}
	return &Exec{
		command:        cfg.Command,
		workDir:        workDir,
		env:            cfg.Env,
		maxOutputBytes: cfg.MaxOutputBytes,
		logger:         cfg.Logger,
	}, nil
}

func (e *Exec) Name() string { return filepath.Base(e.command[0]) }

// Argv returns the expanded command line for req.
func (e *Exec) Argv(req domain.TransformRequest) []string {
	r := strings.NewReplacer(
		PlaceholderInput, req.InputPath,
		PlaceholderOutput, req.OutputPath,
		PlaceholderPreset, req.Preset,
	)
	argv := make([]string, len(e.command))
	for i, a := range e.command {
		argv[i] = r.Replace(a)
	}
	return argv
}

// Transform runs the command. A non-zero exit, a missing or empty output
// file, or a cancelled context all yield a *Failure.
func (e *Exec) Transform(ctx context.Context, req domain.TransformRequest) error {
	argv := e.Argv(req)
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = e.workDir
	// Grandchildren holding the output pipe must not outlive a cancelled run.
	cmd.WaitDelay = waitDelay
	if len(e.env) > 0 {
		cmd.Env = append(os.Environ(), e.env...)
	}
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	e.logger.Debug("engine exec", "argv", argv, "dir", e.workDir)
	err := cmd.Run()
	if err != nil {
		code := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
		if ctx.Err() != nil {
			return &Failure{ExitCode: code, Err: ctx.Err()}
		}
		return &Failure{Diagnostic: e.clean(output.String()), ExitCode: code, Err: err}
	}

	info, statErr := os.Stat(req.OutputPath)
	if statErr != nil || info.Size() == 0 {
		diag := e.clean(output.String())
		if diag == "" {
			diag = "engine produced no output"
		}
		return &Failure{Diagnostic: diag, Err: errors.New("empty output file")}
	}
	return nil
}

// clean strips colour codes and caps the text so it fits a chat reply.
func (e *Exec) clean(s string) string {
	s = strings.TrimSpace(ansiPattern.ReplaceAllString(s, ""))
	if len(s) > e.maxOutputBytes {
		cut := e.maxOutputBytes
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = s[:cut] + "\n... (output truncated)"
	}
	return s
}

func containsPlaceholder(argv []string, p string) bool {
	for _, a := range argv {
		if strings.Contains(a, p) {
			return true
		}
	}
	return false
}

var (
	_ domain.Engine      = (*Exec)(nil)
	_ domain.Diagnosable = (*Failure)(nil)
)
