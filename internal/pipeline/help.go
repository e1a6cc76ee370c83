package pipeline

import (
	"fmt"

	"github.com/dustin/go-humanize"

	"xeterbot/internal/domain"
)

const (
	helpColor  = 0x0099ff
	helpFooter = "Xeter Hub - https://discord.com/invite/hcJ8PHtkfy"
)

// DefaultHelp builds the static help document. maxBytes is the attachment
// ceiling shown under Limitations.
func DefaultHelp(maxBytes int64, footer string) *domain.HelpDocument {
	if footer == "" {
		footer = helpFooter
	}
	return &domain.HelpDocument{
		Title:       "Xeter Hub - Help Guide",
		Description: "This bot obfuscates Lua code to protect your scripts.",
		Sections: []domain.HelpSection{
			{
				Name: "📌 How to Use",
				Body: "There are 2 ways to submit code for obfuscation:\n" +
					"1. Upload a .lua file as an attachment\n" +
					"2. Send code in a code block ```lua ... ```",
			},
			{
				Name: "🔰 Available Commands",
				Body: "**!weak** - Light obfuscation, more readable but less secure\n" +
					"**!medium** - Balanced obfuscation, good mix of security and performance\n" +
					"**!strong** - Heavy obfuscation, difficult to read but affects performance\n" +
					"**!help** - Display this help guide",
			},
			{
				Name: "⚠️ Limitations",
				Body: fmt.Sprintf("Currently the bot only processes files under %s in size", humanize.Bytes(uint64(maxBytes))),
			},
		},
		Footer: footer,
		Color:  helpColor,
	}
}
