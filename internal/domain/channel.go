package domain

import "context"

// Typer emits a short-lived "working" indicator to a chat.
type Typer interface {
	SendTyping(ctx context.Context, chatID string) error
}

// Responder is the outbound half of a chat platform.
type Responder interface {
	Typer
	Reply(ctx context.Context, ev InboundEvent, reply Reply) error
}

// Channel is a chat platform adapter (Discord, Telegram, console).
type Channel interface {
	Responder
	Name() string
	Start(ctx context.Context, bus MessageBus) error
	Stop() error
}
