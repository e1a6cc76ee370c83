package pipeline

import (
	"fmt"
	"strings"

	"xeterbot/internal/domain"
)

// Action is what the router decided to do with an event.
type Action int

const (
	ActionIgnore Action = iota
	ActionHelp
	ActionJob
)

func (a Action) String() string {
	switch a {
	case ActionHelp:
		return "help"
	case ActionJob:
		return "job"
	default:
		return "ignore"
	}
}

// Preset is the engine configuration level. The value is passed to the
// engine as-is.
type Preset string

const (
	PresetWeak   Preset = "Weak"
	PresetMedium Preset = "Medium"
	PresetStrong Preset = "Strong"
)

const HelpKeyword = "!help"

// presetRules is checked in order; the first keyword found wins.
var presetRules = []struct {
	keyword string
	preset  Preset
}{
	{"!weak", PresetWeak},
	{"!medium", PresetMedium},
	{"!strong", PresetStrong},
}

// Decision is the router's verdict for one event.
type Decision struct {
	Action Action
	Preset Preset
}

// Classify decides what to do with an inbound event. Keywords match
// case-insensitively anywhere in the text.
func Classify(ev domain.InboundEvent) Decision {
	if ev.AuthorIsBot {
		return Decision{Action: ActionIgnore}
	}
	text := strings.ToLower(ev.Text)
	if strings.Contains(text, HelpKeyword) {
		return Decision{Action: ActionHelp}
	}
	for _, rule := range presetRules {
		if strings.Contains(text, rule.keyword) {
			return Decision{Action: ActionJob, Preset: rule.preset}
		}
	}
	return Decision{Action: ActionIgnore}
}

// Presets lists the presets in priority order.
func Presets() []Preset {
	out := make([]Preset, len(presetRules))
	for i, r := range presetRules {
		out[i] = r.preset
	}
	return out
}

// ParsePreset accepts a preset name in any case, with or without the "!".
func ParsePreset(s string) (Preset, error) {
	name := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "!")
	for _, r := range presetRules {
		if strings.EqualFold(name, string(r.preset)) {
			return r.preset, nil
		}
	}
	return "", fmt.Errorf("unknown preset %q (want one of: weak, medium, strong)", s)
}
