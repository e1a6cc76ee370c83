package domain

import (
	"context"
	"time"
)

// AttachmentRef points at a file the platform is holding for us.
type AttachmentRef struct {
	URL      string
	Filename string
	Size     int64 // declared by the platform, 0 when unknown

	// Resolve looks up the download URL when the platform does not hand it
	// out with the message (Telegram). Only called when URL is empty.
	Resolve func(ctx context.Context) (string, error)
}

// InboundEvent is one chat message as delivered by a channel adapter.
type InboundEvent struct {
	ID          string
	Channel     string
	ChatID      string
	MessageID   string
	AuthorID    string
	AuthorName  string
	AuthorIsBot bool
	Text        string
	Attachment  *AttachmentRef
	Timestamp   time.Time
}

// HasAttachment reports whether the event carries an uploaded file.
func (e InboundEvent) HasAttachment() bool {
	return e.Attachment != nil && (e.Attachment.URL != "" || e.Attachment.Resolve != nil)
}

// Reply is a message sent back in answer to an InboundEvent.
// Exactly one of Text, Help or File is expected to be set, though
// adapters tolerate Text alongside File as a caption.
type Reply struct {
	Text string
	Help *HelpDocument
	File *ReplyFile
}

// ReplyFile is a local file uploaded under a display name.
type ReplyFile struct {
	Name        string
	Path        string
	ContentType string
}

// HelpDocument is rendered by each adapter in its native format
// (an embed on Discord, plain text elsewhere).
type HelpDocument struct {
	Title       string
	Description string
	Sections    []HelpSection
	Footer      string
	Color       int
}

type HelpSection struct {
	Name string
	Body string
}
