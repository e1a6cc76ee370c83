package engine

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/require"

	"xeterbot/internal/domain"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

// shellEngine runs script with $1=input, $2=output, $3=preset.
func shellEngine(t *testing.T, script string) *Exec {
	t.Helper()
	e, err := NewExec(Config{
		Command: []string{"sh", "-c", script, "engine", PlaceholderInput, PlaceholderOutput, PlaceholderPreset},
		Logger:  quietLogger(),
	})
	require.NoError(t, err)
	return e
}

func request(t *testing.T, source string) domain.TransformRequest {
	t.Helper()
	dir := t.TempDir()
	in := filepath.Join(dir, "in.lua")
	require.NoError(t, os.WriteFile(in, []byte(source), 0o600))
	return domain.TransformRequest{InputPath: in, OutputPath: filepath.Join(dir, "out.lua"), Preset: "Weak"}
}

func TestExec_Success(t *testing.T) {
	e := shellEngine(t, `printf '%s --obf %s' "$(cat "$1")" "$3" > "$2"`)
	req := request(t, "return 1")

	require.NoError(t, e.Transform(context.Background(), req))

	out, err := os.ReadFile(req.OutputPath)
	require.NoError(t, err)
	require.Equal(t, "return 1 --obf Weak", string(out))
}

func TestExec_FailureCarriesDiagnostic(t *testing.T) {
	e := shellEngine(t, `echo "syntax error line 3" >&2; exit 3`)

	err := e.Transform(context.Background(), request(t, "x ="))

	var f *Failure
	require.True(t, errors.As(err, &f))
	require.Equal(t, "syntax error line 3", f.DiagnosticText())
	require.Equal(t, 3, f.ExitCode)
}

func TestExec_StripsColourCodes(t *testing.T) {
	e := shellEngine(t, `printf '\033[31mPROMETHEUS: Parsing Error\033[0m\n'; exit 1`)

	err := e.Transform(context.Background(), request(t, "x"))

	var f *Failure
	require.True(t, errors.As(err, &f))
	require.Equal(t, "PROMETHEUS: Parsing Error", f.Diagnostic)
}

func TestExec_EmptyOutputIsFailure(t *testing.T) {
	e := shellEngine(t, `exit 0`)

	err := e.Transform(context.Background(), request(t, "return 1"))

	var f *Failure
	require.True(t, errors.As(err, &f))
	require.Equal(t, "engine produced no output", f.Diagnostic)
}

func TestExec_DiagnosticTruncated(t *testing.T) {
	e, err := NewExec(Config{
		Command:        []string{"sh", "-c", `printf 'aaaaaaaaaaaaaaaaaaaa'; exit 1`, "engine", PlaceholderInput},
		MaxOutputBytes: 5,
		Logger:         quietLogger(),
	})
	require.NoError(t, err)

	err = e.Transform(context.Background(), request(t, "x"))

	var f *Failure
	require.True(t, errors.As(err, &f))
	require.Equal(t, "aaaaa\n... (output truncated)", f.Diagnostic)
}

func TestExec_TruncationKeepsRunesWhole(t *testing.T) {
	e, err := NewExec(Config{Command: []string{"x", PlaceholderInput}, MaxOutputBytes: 4})
	require.NoError(t, err)

	// ỗ is three bytes wide.
	got := e.clean("aaỗi lỗi")
	require.True(t, utf8.ValidString(got), "invalid UTF-8: %q", got)
	require.Equal(t, "aa\n... (output truncated)", got)

	got = e.clean("lỗi cú pháp")
	require.True(t, utf8.ValidString(got))
	require.Equal(t, "lỗ\n... (output truncated)", got)
}

func TestExec_ContextDeadline(t *testing.T) {
	e := shellEngine(t, `sleep 5`)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := e.Transform(ctx, request(t, "x"))

	require.Error(t, err)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Less(t, time.Since(start), 4*time.Second)
}

func TestNewExec_RequiresInputPlaceholder(t *testing.T) {
	_, err := NewExec(Config{Command: []string{"lua", "cli.lua"}})
	require.Error(t, err)
}

func TestExec_ArgvAndName(t *testing.T) {
	e, err := NewExec(Config{})
	require.NoError(t, err)

	argv := e.Argv(domain.TransformRequest{InputPath: "/tmp/a.lua", OutputPath: "/tmp/b.lua", Preset: "Strong"})
	require.Equal(t, []string{"lua", "./cli.lua", "--preset", "Strong", "--out", "/tmp/b.lua", "/tmp/a.lua"}, argv)
	require.Equal(t, "lua", e.Name())
}
