package pipeline

import (
	"fmt"
	"math/rand/v2"
	"os"
)

const (
	DefaultBanner         = "--// Obfuscated By Xeter Hub [ https://discord.com/invite/hcJ8PHtkfy ]"
	DefaultFilenamePrefix = "Xeter_"
	DefaultFilenameExt    = ".txt"

	filenameIDSpace int64 = 10_000_000_000_000_000 // 1e16
)

// JobOutput is the packaged artifact, ready to be attached to a reply.
type JobOutput struct {
	Path     string
	Filename string
	Bytes    int64
}

// PackagerConfig configures result packaging. Empty fields use defaults.
type PackagerConfig struct {
	Banner         string
	FilenamePrefix string
	FilenameExt    string
	Suffix         string
}

// Packager stamps the provenance banner on engine output and names it.
type Packager struct {
	banner string
	prefix string
	ext    string
	suffix string
	randID func() int64
}

func NewPackager(cfg PackagerConfig) *Packager {
	if cfg.Banner == "" {
		cfg.Banner = DefaultBanner
	}
	if cfg.FilenamePrefix == "" {
		cfg.FilenamePrefix = DefaultFilenamePrefix
	}
	if cfg.FilenameExt == "" {
		cfg.FilenameExt = DefaultFilenameExt
	}
	if cfg.Suffix == "" {
		cfg.Suffix = DefaultSourceSuffix
	}
	return &Packager{
		banner: cfg.Banner,
		prefix: cfg.FilenamePrefix,
		ext:    cfg.FilenameExt,
		suffix: cfg.Suffix,
		randID: func() int64 { return rand.Int64N(filenameIDSpace) },
	}
}

// Package writes banner, blank line, then the engine output verbatim into a
// new handle from scope.
func (p *Packager) Package(engineOut *Handle, scope *Scope) (*JobOutput, error) {
	body, err := os.ReadFile(engineOut.Path())
	if err != nil {
		return nil, fmt.Errorf("read engine output: %w", err)
	}

	h, err := scope.Acquire(p.suffix)
	if err != nil {
		return nil, err
	}
	content := make([]byte, 0, len(p.banner)+2+len(body))
	content = append(content, p.banner...)
	content = append(content, "\n\n"...)
	content = append(content, body...)
	if err := os.WriteFile(h.Path(), content, 0o600); err != nil {
		return nil, fmt.Errorf("write packaged output: %w", err)
	}

	return &JobOutput{
		Path:     h.Path(),
		Filename: p.Filename(),
		Bytes:    int64(len(content)),
	}, nil
}

// Filename returns a fresh display name such as Xeter_4821093310928377.txt.
func (p *Packager) Filename() string {
	return fmt.Sprintf("%s%d%s", p.prefix, p.randID(), p.ext)
}
