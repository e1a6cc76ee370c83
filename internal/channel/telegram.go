package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"xeterbot/internal/domain"
)

const (
	telegramMaxMsgLen      = 4000
	telegramMaxSendRetries = 3
)

// Telegram implements domain.Channel for a Telegram bot. Uploaded documents
// become attachments; the caption carries the command.
type Telegram struct {
	token     string
	allowFrom []int64 // empty = allow all

	bot    *tgbotapi.BotAPI
	logger *slog.Logger
}

type TelegramConfig struct {
	Token     string
	AllowFrom []string // user IDs as strings
	Logger    *slog.Logger
}

func NewTelegram(cfg TelegramConfig) *Telegram {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	var allowed []int64
	for _, s := range cfg.AllowFrom {
		if id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
			allowed = append(allowed, id)
		} else {
			cfg.Logger.Warn("ignoring non-numeric telegram allowFrom entry", "entry", s)
		}
	}
	return &Telegram{
		token:     cfg.Token,
		allowFrom: allowed,
		logger:    cfg.Logger,
	}
}

func (t *Telegram) Name() string { return "telegram" }

// Start connects to Telegram and long-polls for updates until ctx ends.
func (t *Telegram) Start(ctx context.Context, bus domain.MessageBus) error {
	bot, err := tgbotapi.NewBotAPI(t.token)
	if err != nil {
		return fmt.Errorf("telegram bot init: %w", t.scrub(err))
	}
	t.bot = bot
	bus.Attach(t.Name(), t)
	t.logger.Info("telegram bot connected", "username", bot.Self.UserName, "id", bot.Self.ID)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := bot.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("telegram channel stopping")
			bot.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil {
				continue
			}
			ev, ok := t.telegramEvent(update.Message, bot.GetFileDirectURL)
			if ok {
				bus.Publish(ev)
			}
		}
	}
}

// Stop is a no-op: StopReceivingUpdates panics when called twice and Start
// already calls it on cancellation.
func (t *Telegram) Stop() error { return nil }

func (t *Telegram) isAllowed(userID int64) bool {
	return len(t.allowFrom) == 0 || slices.Contains(t.allowFrom, userID)
}

// telegramEvent converts a message. fileURL resolves a document's file ID to
// a download URL and is called lazily from the attachment's Resolve. The bool
// is false when the message must be dropped.
func (t *Telegram) telegramEvent(msg *tgbotapi.Message, fileURL func(string) (string, error)) (domain.InboundEvent, bool) {
	if msg.From == nil || msg.Chat == nil {
		return domain.InboundEvent{}, false
	}
	if !t.isAllowed(msg.From.ID) {
		t.logger.Warn("unauthorized telegram user", "user_id", msg.From.ID, "username", msg.From.UserName)
		return domain.InboundEvent{}, false
	}

	ev := domain.InboundEvent{
		ID:          strconv.Itoa(msg.MessageID),
		Channel:     "telegram",
		ChatID:      strconv.FormatInt(msg.Chat.ID, 10),
		MessageID:   strconv.Itoa(msg.MessageID),
		AuthorID:    strconv.FormatInt(msg.From.ID, 10),
		AuthorName:  msg.From.UserName,
		AuthorIsBot: msg.From.IsBot,
		Text:        commandText(messageText(msg)),
		Timestamp:   time.Unix(int64(msg.Date), 0),
	}

	if doc := msg.Document; doc != nil {
		// getFile costs an API round trip; only jobs that get as far as
		// downloading pay for it, after the declared size passed.
		fileID := doc.FileID
		ev.Attachment = &domain.AttachmentRef{
			Filename: doc.FileName,
			Size:     int64(doc.FileSize),
			Resolve: func(context.Context) (string, error) {
				link, err := fileURL(fileID)
				if err != nil {
					return "", fmt.Errorf("telegram getFile: %w", t.scrub(err))
				}
				return link, nil
			},
		}
	}
	return ev, true
}

// commandText maps bot commands onto the chat keywords: /weak becomes !weak,
// /start and /help become !help. Captions are handled too, which Telegram
// does not mark as commands. Anything else is passed through.
func commandText(text string) string {
	if !strings.HasPrefix(text, "/") {
		return text
	}
	head, rest := text, ""
	if i := strings.IndexFunc(text, unicode.IsSpace); i >= 0 {
		head, rest = text[:i], text[i:]
	}
	cmd, _, _ := strings.Cut(strings.ToLower(head[1:]), "@")
	if cmd == "start" {
		cmd = "help"
	}
	switch cmd {
	case "help", "weak", "medium", "strong":
		return strings.TrimSpace("!" + cmd + " " + rest)
	}
	return text
}

func messageText(msg *tgbotapi.Message) string {
	if msg.Text != "" {
		return msg.Text
	}
	return msg.Caption
}

func parseChatID(id string) (int64, error) {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid telegram chat ID %q: %w", id, err)
	}
	return n, nil
}

func (t *Telegram) SendTyping(ctx context.Context, chatID string) error {
	id, err := parseChatID(chatID)
	if err != nil {
		return err
	}
	_, err = t.bot.Request(tgbotapi.NewChatAction(id, tgbotapi.ChatTyping))
	return t.scrub(err)
}

// Reply answers ev, quoting the triggering message.
func (t *Telegram) Reply(ctx context.Context, ev domain.InboundEvent, r domain.Reply) error {
	chatID, err := parseChatID(ev.ChatID)
	if err != nil {
		return err
	}
	replyTo, _ := strconv.Atoi(ev.MessageID)

	if r.File != nil {
		f, err := os.Open(r.File.Path)
		if err != nil {
			return fmt.Errorf("open reply file: %w", err)
		}
		defer f.Close()
		doc := tgbotapi.NewDocument(chatID, tgbotapi.FileReader{Name: r.File.Name, Reader: f})
		doc.ReplyToMessageID = replyTo
		doc.Caption = r.Text
		_, err = t.bot.Send(doc)
		return t.scrub(err)
	}

	text := r.Text
	if r.Help != nil {
		text = HelpText(r.Help)
	}
	for i, chunk := range splitMessage(text, telegramMaxMsgLen) {
		msg := tgbotapi.NewMessage(chatID, chunk)
		if i == 0 {
			msg.ReplyToMessageID = replyTo
		}
		if err := t.sendWithRetry(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}

// sendWithRetry backs off on rate limits and transient errors.
func (t *Telegram) sendWithRetry(ctx context.Context, msg tgbotapi.MessageConfig) error {
	var err error
	for attempt := 0; attempt <= telegramMaxSendRetries; attempt++ {
		if _, err = t.bot.Send(msg); err == nil {
			return nil
		}
		err = t.scrub(err)
		if attempt == telegramMaxSendRetries {
			break
		}

		backoff := time.Duration(attempt+1) * time.Second
		if strings.Contains(err.Error(), "Too Many Requests") {
			backoff *= 3
		}
		t.logger.Warn("telegram send error, retrying", "err", err, "backoff", backoff, "attempt", attempt+1)

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return fmt.Errorf("telegram send failed after %d attempts: %w", telegramMaxSendRetries+1, err)
}

// scrub removes the bot token from API URLs quoted in transport errors.
func (t *Telegram) scrub(err error) error {
	var ue *url.Error
	if t.token != "" && errors.As(err, &ue) {
		ue.URL = strings.ReplaceAll(ue.URL, t.token, "<token>")
	}
	return err
}

var _ domain.Channel = (*Telegram)(nil)
