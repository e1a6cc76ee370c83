package config

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Settings are addressed by the dot-joined JSON keys of the config file
// ("limits.maxSourceBytes", "engine.command.0"). Both accessors work on the
// generic JSON tree so the paths always match what users see in the file.

type tree = map[string]any

func toTree(cfg *Config) (tree, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var t tree
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, err
	}
	return t, nil
}

func splitPath(path string) ([]string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("empty path")
	}
	parts := strings.Split(path, ".")
	for _, p := range parts {
		if p == "" {
			return nil, fmt.Errorf("malformed path %q", path)
		}
	}
	return parts, nil
}

// step descends one key into a map or one index into a list.
func step(node any, key string) (any, bool) {
	switch v := node.(type) {
	case map[string]any:
		child, ok := v[key]
		return child, ok
	case []any:
		i, err := strconv.Atoi(key)
		if err != nil || i < 0 || i >= len(v) {
			return nil, false
		}
		return v[i], true
	}
	return nil, false
}

// GetByPath returns the value at path, e.g. "output.filenamePrefix".
func GetByPath(cfg *Config, path string) (any, error) {
	parts, err := splitPath(path)
	if err != nil {
		return nil, err
	}
	t, err := toTree(cfg)
	if err != nil {
		return nil, err
	}
	var node any = t
	for _, key := range parts {
		next, ok := step(node, key)
		if !ok {
			return nil, fmt.Errorf("unknown setting %q", path)
		}
		node = next
	}
	return node, nil
}

// SetByPath assigns value at path. Strings that look like booleans, numbers
// or JSON arrays are converted first, so `config set engine.command
// '["lua","cli.lua","{input}"]'` works from a shell. cfg is left untouched
// when the value has the wrong type or the path names no setting.
func SetByPath(cfg *Config, path string, value any) error {
	parts, err := splitPath(path)
	if err != nil {
		return err
	}
	t, err := toTree(cfg)
	if err != nil {
		return err
	}

	parent := t
	for _, key := range parts[:len(parts)-1] {
		child, ok := parent[key]
		if !ok || child == nil {
			m := tree{}
			parent[key] = m
			parent = m
			continue
		}
		m, ok := child.(map[string]any)
		if !ok {
			return fmt.Errorf("%s is a %T, not a section", key, child)
		}
		parent = m
	}
	parent[parts[len(parts)-1]] = parseValue(value)

	data, err := json.Marshal(t)
	if err != nil {
		return err
	}
	var next Config
	if err := json.Unmarshal(data, &next); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	// Unknown keys are silently dropped by the decoder; reading the value
	// back catches them.
	if _, err := GetByPath(&next, path); err != nil {
		return err
	}
	*cfg = next
	return nil
}

func parseValue(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	switch {
	case strings.HasPrefix(s, "["):
		var list []any
		if json.Unmarshal([]byte(s), &list) == nil {
			return list
		}
	case s == "true", s == "false":
		return s == "true"
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

// Sanitize returns a deep copy of cfg with chat tokens and engine
// environment values masked, suitable for printing.
func Sanitize(cfg *Config) *Config {
	data, err := json.Marshal(cfg)
	if err != nil {
		return cfg
	}
	var out Config
	if err := json.Unmarshal(data, &out); err != nil {
		return cfg
	}
	for _, tok := range []*string{&out.Channels.Discord.Token, &out.Channels.Telegram.Token} {
		if *tok != "" {
			*tok = maskString(*tok)
		}
	}
	for k := range out.Engine.Env {
		out.Engine.Env[k] = "***"
	}
	return &out
}

func maskString(s string) string {
	if len(s) <= 8 {
		return "***"
	}
	return s[:4] + "****" + s[len(s)-4:]
}

// ListPaths flattens cfg into path → value. Lists are leaves.
// Pass Sanitize(cfg) to keep secrets out of the output.
func ListPaths(cfg *Config) map[string]any {
	t, err := toTree(cfg)
	if err != nil {
		return nil
	}
	out := make(map[string]any)
	var walk func(prefix string, m tree)
	walk = func(prefix string, m tree) {
		for k, v := range m {
			if prefix != "" {
				k = prefix + "." + k
			}
			if sub, ok := v.(map[string]any); ok {
				walk(k, sub)
				continue
			}
			out[k] = v
		}
	}
	walk("", t)
	return out
}
