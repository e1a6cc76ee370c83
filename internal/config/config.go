package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for xeterbot.
type Config struct {
	General  GeneralConfig  `json:"general"`
	Channels ChannelsConfig `json:"channels"`
	Engine   EngineConfig   `json:"engine"`
	Limits   LimitsConfig   `json:"limits"`
	Output   OutputConfig   `json:"output"`
	Messages MessagesConfig `json:"messages"`
	History  HistoryConfig  `json:"history"`
	Metrics  MetricsConfig  `json:"metrics"`
}

type GeneralConfig struct {
	LogLevel          string `json:"logLevel"`
	LogFormat         string `json:"logFormat,omitempty"` // "text" | "json"
	LogFile           string `json:"logFile,omitempty"`
	MaxConcurrentJobs int    `json:"maxConcurrentJobs"`
	JobTimeoutSeconds int    `json:"jobTimeoutSeconds"`
	WorkDir           string `json:"workDir"` // temp files live under workDir/tmp
}

type ChannelsConfig struct {
	Discord  DiscordConfig  `json:"discord"`
	Telegram TelegramConfig `json:"telegram"`
	CLI      CLIConfig      `json:"cli"`
}

type DiscordConfig struct {
	Enabled bool           `json:"enabled"`
	Token   string         `json:"token"`
	Guilds  FlexStringList `json:"guilds,omitempty"` // empty = every guild and DM
}

type TelegramConfig struct {
	Enabled   bool           `json:"enabled"`
	Token     string         `json:"token"`
	AllowFrom FlexStringList `json:"allowFrom"`
}

// FlexStringList is a []string that can unmarshal from JSON arrays containing
// both strings and numbers (e.g. ["123", 456] both become "123", "456").
type FlexStringList []string

func (f *FlexStringList) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	// Numbers stay json.Number so 64-bit IDs (Discord snowflakes) survive.
	dec.UseNumber()
	var items []any
	if err := dec.Decode(&items); err != nil {
		return err
	}
	out := make(FlexStringList, 0, len(items))
	for i, item := range items {
		switch v := item.(type) {
		case string:
			out = append(out, v)
		case json.Number:
			if n, err := v.Int64(); err == nil {
				out = append(out, strconv.FormatInt(n, 10))
			} else if fl, err := v.Float64(); err == nil && fl == math.Trunc(fl) {
				out = append(out, strconv.FormatFloat(fl, 'f', 0, 64))
			} else {
				out = append(out, v.String())
			}
		default:
			return fmt.Errorf("list item %d: want string or number, got %T", i, item)
		}
	}
	*f = out
	return nil
}

type CLIConfig struct {
	Enabled bool `json:"enabled"`
}

// EngineConfig describes the external obfuscator command. {input}, {output}
// and {preset} in Command are substituted per job.
type EngineConfig struct {
	Command        []string          `json:"command"`
	WorkDir        string            `json:"workDir,omitempty"`
	Env            map[string]string `json:"env,omitempty"`
	TimeoutSeconds int               `json:"timeoutSeconds"`
	MaxOutputBytes int               `json:"maxOutputBytes"`
}

type LimitsConfig struct {
	MaxSourceBytes        int64   `json:"maxSourceBytes"`
	TypingIntervalSeconds int     `json:"typingIntervalSeconds"`
	JobBurst              int     `json:"jobBurst"`
	JobsPerMinute         float64 `json:"jobsPerMinute"`
	DownloadTimeoutSecs   int     `json:"downloadTimeoutSeconds"`
}

type OutputConfig struct {
	Banner         string `json:"banner"`
	FilenamePrefix string `json:"filenamePrefix"`
	FilenameExt    string `json:"filenameExt"`
	SourceSuffix   string `json:"sourceSuffix"`
	HelpFooter     string `json:"helpFooter"`
}

// MessagesConfig holds user-facing reply texts. {limit} is replaced with the
// human-readable size cap.
type MessagesConfig struct {
	SizeExceeded string `json:"sizeExceeded"`
	Apology      string `json:"apology"`
}

type HistoryConfig struct {
	Enabled       bool   `json:"enabled"`
	DBPath        string `json:"dbPath"`
	RetentionDays int    `json:"retentionDays"` // 0 = keep forever
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled  bool   `json:"enabled"`
	Listen   string `json:"listen"`
	Endpoint string `json:"endpoint"`
}

// DefaultConfigDir returns the default config directory (~/.xeterbot).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".xeterbot"
	}
	return filepath.Join(home, ".xeterbot")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	if isYAML(path) {
		if data, err = yamlToJSON(data); err != nil {
			return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
		}
	}

	cfg := Defaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	cfg.General.WorkDir = ExpandPath(cfg.General.WorkDir)
	cfg.General.LogFile = ExpandPath(cfg.General.LogFile)
	cfg.History.DBPath = ExpandPath(cfg.History.DBPath)
	cfg.Engine.WorkDir = ExpandPath(cfg.Engine.WorkDir)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// yamlToJSON decodes a YAML document and re-encodes it as JSON so both
// formats share the json struct tags.
func yamlToJSON(data []byte) ([]byte, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(doc)
}

// envVarPattern matches ${VAR} and ${VAR:-default}.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// ExpandEnvVars substitutes ${VAR} and ${VAR:-default} references.
// The default applies when VAR is unset or empty. A reference to an unset
// variable without a default is left as written, and bare $VAR is never
// touched.
func ExpandEnvVars(input string) string {
	matches := envVarPattern.FindAllStringSubmatchIndex(input, -1)
	if matches == nil {
		return input
	}
	var sb strings.Builder
	last := 0
	for _, m := range matches {
		sb.WriteString(input[last:m[0]])
		last = m[1]

		name := input[m[2]:m[3]]
		if val := os.Getenv(name); val != "" {
			sb.WriteString(val)
		} else if m[4] >= 0 {
			sb.WriteString(input[m[6]:m[7]])
		} else {
			sb.WriteString(input[m[0]:m[1]])
		}
	}
	sb.WriteString(input[last:])
	return sb.String()
}

// Save writes cfg as JSON, or YAML when path ends in .yaml/.yml.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}
	if isYAML(path) {
		var doc map[string]any
		if err := json.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("cannot marshal config: %w", err)
		}
		if data, err = yaml.Marshal(doc); err != nil {
			return fmt.Errorf("cannot marshal config: %w", err)
		}
	}

	// Tokens may be inlined, keep it private.
	return os.WriteFile(path, data, 0o600)
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	switch strings.ToLower(cfg.General.LogLevel) {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}
	switch cfg.General.LogFormat {
	case "", "text", "json":
	default:
		errs = append(errs, "general.logFormat must be one of: text, json")
	}
	if cfg.General.MaxConcurrentJobs < 1 || cfg.General.MaxConcurrentJobs > 100 {
		errs = append(errs, "general.maxConcurrentJobs must be between 1 and 100")
	}
	if cfg.General.JobTimeoutSeconds < 0 {
		errs = append(errs, "general.jobTimeoutSeconds must be >= 0")
	}

	if cfg.Channels.Discord.Enabled && cfg.Channels.Discord.Token == "" {
		errs = append(errs, "channels.discord.token is required when discord is enabled")
	}
	if cfg.Channels.Telegram.Enabled && cfg.Channels.Telegram.Token == "" {
		errs = append(errs, "channels.telegram.token is required when telegram is enabled")
	}

	if len(cfg.Engine.Command) == 0 {
		errs = append(errs, "engine.command must not be empty")
	} else if !containsPlaceholder(cfg.Engine.Command, "{input}") {
		errs = append(errs, "engine.command must reference {input}")
	}
	if cfg.Engine.TimeoutSeconds < 1 {
		errs = append(errs, "engine.timeoutSeconds must be >= 1")
	}
	if cfg.Engine.MaxOutputBytes < 0 {
		errs = append(errs, "engine.maxOutputBytes must be >= 0")
	}

	if cfg.Limits.MaxSourceBytes < 1 {
		errs = append(errs, "limits.maxSourceBytes must be >= 1")
	}
	if cfg.Limits.TypingIntervalSeconds < 1 {
		errs = append(errs, "limits.typingIntervalSeconds must be >= 1")
	}
	if cfg.Limits.JobBurst < 1 {
		errs = append(errs, "limits.jobBurst must be >= 1")
	}
	if cfg.Limits.JobsPerMinute <= 0 {
		errs = append(errs, "limits.jobsPerMinute must be > 0")
	}

	if cfg.Output.FilenameExt != "" && !strings.HasPrefix(cfg.Output.FilenameExt, ".") {
		errs = append(errs, "output.filenameExt must start with a dot")
	}
	if strings.ContainsAny(cfg.Output.FilenamePrefix, `/\`) {
		errs = append(errs, "output.filenamePrefix must not contain path separators")
	}

	if cfg.History.Enabled && cfg.History.DBPath == "" {
		errs = append(errs, "history.dbPath is required when history is enabled")
	}
	if cfg.History.RetentionDays < 0 {
		errs = append(errs, "history.retentionDays must be >= 0")
	}
	if cfg.Metrics.Enabled && cfg.Metrics.Listen == "" {
		errs = append(errs, "metrics.listen is required when metrics are enabled")
	}
	if cfg.Metrics.Endpoint != "" && !strings.HasPrefix(cfg.Metrics.Endpoint, "/") {
		errs = append(errs, "metrics.endpoint must start with /")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func containsPlaceholder(argv []string, placeholder string) bool {
	for _, a := range argv {
		if strings.Contains(a, placeholder) {
			return true
		}
	}
	return false
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

// JobTimeout bounds one whole job; zero disables the deadline.
func (c *Config) JobTimeout() time.Duration     { return seconds(c.General.JobTimeoutSeconds) }
func (c *Config) EngineTimeout() time.Duration  { return seconds(c.Engine.TimeoutSeconds) }
func (c *Config) TypingInterval() time.Duration { return seconds(c.Limits.TypingIntervalSeconds) }
func (c *Config) DownloadTimeout() time.Duration {
	return seconds(c.Limits.DownloadTimeoutSecs)
}

// TempDir is where per-job source and output files are created.
func (c *Config) TempDir() string {
	if c.General.WorkDir == "" {
		return ""
	}
	return filepath.Join(c.General.WorkDir, "tmp")
}
