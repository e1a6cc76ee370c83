package channel

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"slices"

	"github.com/bwmarrin/discordgo"

	"xeterbot/internal/domain"
)

const discordMaxMsgLen = 2000

// Discord implements domain.Channel for Discord.
type Discord struct {
	token   string
	guilds  []string
	session *discordgo.Session
	logger  *slog.Logger
}

// DiscordConfig configures the Discord channel.
type DiscordConfig struct {
	Token  string
	Guilds []string // empty = all guilds and DMs
	Logger *slog.Logger
}

func NewDiscord(cfg DiscordConfig) *Discord {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Discord{
		token:  cfg.Token,
		guilds: cfg.Guilds,
		logger: cfg.Logger,
	}
}

func (d *Discord) Name() string { return "discord" }

// Start connects to the gateway and publishes every message it sees until
// ctx is cancelled.
func (d *Discord) Start(ctx context.Context, bus domain.MessageBus) error {
	session, err := discordgo.New("Bot " + d.token)
	if err != nil {
		return fmt.Errorf("discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentsMessageContent
	d.session = session

	bus.Attach(d.Name(), d)

	session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		if m.Author == nil || (s.State.User != nil && m.Author.ID == s.State.User.ID) {
			return
		}
		if !d.allowedGuild(m.GuildID) {
			return
		}

		ev := discordEvent(m.Message)
		d.logger.Debug("discord message received",
			"author", m.Author.Username,
			"channel_id", m.ChannelID,
			"content_len", len(m.Content),
			"attachment", ev.HasAttachment(),
		)
		bus.Publish(ev)
	})

	if err := session.Open(); err != nil {
		return fmt.Errorf("discord connect: %w", err)
	}
	d.logger.Info("discord bot connected", "user", session.State.User.Username)

	<-ctx.Done()
	d.logger.Info("discord bot disconnecting")
	return session.Close()
}

// Stop is a no-op; the session closes when Start's context ends.
func (d *Discord) Stop() error { return nil }

func (d *Discord) allowedGuild(guildID string) bool {
	// DMs have no guild and always pass.
	return len(d.guilds) == 0 || guildID == "" || slices.Contains(d.guilds, guildID)
}

// discordEvent converts a gateway message. Only the first attachment is used.
func discordEvent(m *discordgo.Message) domain.InboundEvent {
	ev := domain.InboundEvent{
		ID:        m.ID,
		Channel:   "discord",
		ChatID:    m.ChannelID,
		MessageID: m.ID,
		Text:      m.Content,
		Timestamp: m.Timestamp,
	}
	if m.Author != nil {
		ev.AuthorID = m.Author.ID
		ev.AuthorName = m.Author.Username
		ev.AuthorIsBot = m.Author.Bot
	}
	if len(m.Attachments) > 0 {
		a := m.Attachments[0]
		ev.Attachment = &domain.AttachmentRef{URL: a.URL, Filename: a.Filename, Size: int64(a.Size)}
	}
	return ev
}

func (d *Discord) SendTyping(ctx context.Context, chatID string) error {
	return d.session.ChannelTyping(chatID, discordgo.WithContext(ctx))
}

// Reply answers ev in its channel, referencing the triggering message.
func (d *Discord) Reply(ctx context.Context, ev domain.InboundEvent, r domain.Reply) error {
	ref := &discordgo.MessageReference{MessageID: ev.MessageID, ChannelID: ev.ChatID}

	switch {
	case r.File != nil:
		f, err := os.Open(r.File.Path)
		if err != nil {
			return fmt.Errorf("open reply file: %w", err)
		}
		defer f.Close()
		_, err = d.session.ChannelMessageSendComplex(ev.ChatID, &discordgo.MessageSend{
			Content:   r.Text,
			Reference: ref,
			Files:     []*discordgo.File{{Name: r.File.Name, ContentType: r.File.ContentType, Reader: f}},
		}, discordgo.WithContext(ctx))
		return err

	case r.Help != nil:
		_, err := d.session.ChannelMessageSendComplex(ev.ChatID, &discordgo.MessageSend{
			Reference: ref,
			Embeds:    []*discordgo.MessageEmbed{helpEmbed(r.Help)},
		}, discordgo.WithContext(ctx))
		return err
	}

	for i, chunk := range splitMessage(r.Text, discordMaxMsgLen) {
		msg := &discordgo.MessageSend{Content: chunk}
		if i == 0 {
			msg.Reference = ref
		}
		if _, err := d.session.ChannelMessageSendComplex(ev.ChatID, msg, discordgo.WithContext(ctx)); err != nil {
			return err
		}
	}
	return nil
}

func helpEmbed(doc *domain.HelpDocument) *discordgo.MessageEmbed {
	e := &discordgo.MessageEmbed{
		Title:       doc.Title,
		Description: doc.Description,
		Color:       doc.Color,
	}
	for _, s := range doc.Sections {
		e.Fields = append(e.Fields, &discordgo.MessageEmbedField{Name: s.Name, Value: s.Body})
	}
	if doc.Footer != "" {
		e.Footer = &discordgo.MessageEmbedFooter{Text: doc.Footer}
	}
	return e
}

var _ domain.Channel = (*Discord)(nil)
