package pipeline

import (
	"strings"
	"testing"

	"xeterbot/internal/domain"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		ev     domain.InboundEvent
		action Action
		preset Preset
	}{
		{"bot author ignored", domain.InboundEvent{AuthorIsBot: true, Text: "!weak ```x```"}, ActionIgnore, ""},
		{"bot help ignored", domain.InboundEvent{AuthorIsBot: true, Text: "!help"}, ActionIgnore, ""},
		{"help", domain.InboundEvent{Text: "!help"}, ActionHelp, ""},
		{"help anywhere any case", domain.InboundEvent{Text: "hey bot, !HeLp please"}, ActionHelp, ""},
		{"help beats preset", domain.InboundEvent{Text: "!strong !help"}, ActionHelp, ""},
		{"weak", domain.InboundEvent{Text: "!weak"}, ActionJob, PresetWeak},
		{"medium upper", domain.InboundEvent{Text: "!MEDIUM ```lua\nx```"}, ActionJob, PresetMedium},
		{"strong", domain.InboundEvent{Text: "please !strong"}, ActionJob, PresetStrong},
		{"weak wins over strong", domain.InboundEvent{Text: "!strong !weak"}, ActionJob, PresetWeak},
		{"medium wins over strong", domain.InboundEvent{Text: "!strong then !medium"}, ActionJob, PresetMedium},
		{"ordinary chatter", domain.InboundEvent{Text: "is anyone around?"}, ActionIgnore, ""},
		{"keyword without bang", domain.InboundEvent{Text: "weak medium strong help"}, ActionIgnore, ""},
		{"empty", domain.InboundEvent{}, ActionIgnore, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for i := 0; i < 3; i++ { // deterministic every time
				d := Classify(tt.ev)
				if d.Action != tt.action || d.Preset != tt.preset {
					t.Fatalf("Classify(%q) = {%s %q}, want {%s %q}", tt.ev.Text, d.Action, d.Preset, tt.action, tt.preset)
				}
			}
		})
	}
}

func TestParsePreset(t *testing.T) {
	tests := []struct {
		in      string
		want    Preset
		wantErr bool
	}{
		{"weak", PresetWeak, false},
		{"Medium", PresetMedium, false},
		{"!STRONG", PresetStrong, false},
		{" strong ", PresetStrong, false},
		{"extreme", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ParsePreset(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParsePreset(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParsePreset(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPresetsOrder(t *testing.T) {
	got := Presets()
	want := []Preset{PresetWeak, PresetMedium, PresetStrong}
	if len(got) != len(want) {
		t.Fatalf("expected %d presets, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("preset %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestDefaultHelpMentionsLimitAndPresets(t *testing.T) {
	doc := DefaultHelp(DefaultMaxSourceBytes, "")
	if doc.Title == "" || doc.Footer == "" {
		t.Fatal("help document needs a title and footer")
	}
	var all string
	for _, s := range doc.Sections {
		all += s.Body + "\n"
	}
	for _, want := range []string{"!weak", "!medium", "!strong", "!help", "100 kB"} {
		if !strings.Contains(all, want) {
			t.Errorf("help text missing %q", want)
		}
	}
}
