// Package discord implements the telegraph Gateway for Discord using the
// Gateway WebSocket. Cards render as an embed plus button rows; the ask
// button opens a modal whose submission carries the question.
package discord

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/zulandar/signoff/internal/telegraph"
	"go.uber.org/zap"
)

const (
	// maxRetries is the max number of retries for rate-limited API calls.
	maxRetries = 3
	// baseBackoff is the initial backoff duration for rate-limit retries.
	baseBackoff = 2 * time.Second
	// maxBackoff caps the exponential backoff.
	maxBackoff = 2 * time.Minute

	// Discord component limits.
	maxButtonsPerRow = 5
	maxRows          = 5
	maxCustomIDLen   = 100
	maxEmbedFields   = 25
	maxModalTitleLen = 45

	// askModalPrefix prefixes the custom id of the ask modal; the rest is
	// the document id.
	askModalPrefix = "ask:"
	// questionInputID is the custom id of the modal's text input.
	questionInputID = "question"
)

// session abstracts the discordgo.Session methods we use, enabling test mocks.
type session interface {
	Open() error
	Close() error
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageEditComplex(m *discordgo.MessageEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageDelete(channelID, messageID string, options ...discordgo.RequestOption) error
	ChannelTyping(channelID string, options ...discordgo.RequestOption) error
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	AddHandler(handler interface{}) func()
}

// Gateway implements telegraph.Gateway for Discord.
type Gateway struct {
	sess           session
	log            *zap.Logger
	botToken       string
	botUserID      string
	mu             sync.Mutex
	sendMu         sync.Mutex // serializes emit against closing inbound
	connected      bool
	closed         bool
	inbound        chan telegraph.InboundEvent
	listenCtx      context.Context
	cancelFunc     context.CancelFunc
	removeHandlers []func()
	baseBackoff    time.Duration
	maxBackoff     time.Duration
}

// GatewayOpts holds parameters for creating a Discord Gateway.
type GatewayOpts struct {
	BotToken string // Discord bot token
	Logger   *zap.Logger
	// For testing: inject a mock session instead of real Discord API.
	Session session
}

// New creates a Discord Gateway.
func New(opts GatewayOpts) (*Gateway, error) {
	if opts.Session == nil && opts.BotToken == "" {
		return nil, fmt.Errorf("discord: bot token is required")
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Gateway{
		sess:        opts.Session,
		log:         log,
		botToken:    opts.BotToken,
		inbound:     make(chan telegraph.InboundEvent, 100),
		baseBackoff: baseBackoff,
		maxBackoff:  maxBackoff,
	}, nil
}

// Connect opens the Discord Gateway WebSocket connection.
func (g *Gateway) Connect(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return fmt.Errorf("discord: gateway already closed")
	}
	if g.connected {
		return nil
	}

	// Create real session if not injected (production path).
	if g.sess == nil {
		dg, err := discordgo.New("Bot " + g.botToken)
		if err != nil {
			return fmt.Errorf("discord: create session: %w", err)
		}
		dg.Identify.Intents = discordgo.IntentsGuildMessages |
			discordgo.IntentsDirectMessages |
			discordgo.IntentsMessageContent
		g.sess = dg
	}

	// Capture the bot user ID on connect and reconnect.
	g.sess.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
		g.mu.Lock()
		g.botUserID = r.User.ID
		g.mu.Unlock()
		g.log.Info("discord: connected", zap.String("user", r.User.Username), zap.String("id", r.User.ID))
	})
	// discordgo reconnects on its own; these are for observability.
	g.sess.AddHandler(func(_ *discordgo.Session, _ *discordgo.Disconnect) {
		g.log.Warn("discord: gateway disconnected, discordgo will auto-reconnect")
	})
	g.sess.AddHandler(func(_ *discordgo.Session, _ *discordgo.Resumed) {
		g.log.Info("discord: gateway session resumed")
	})

	if err := g.sess.Open(); err != nil {
		return fmt.Errorf("discord: open gateway: %w", err)
	}

	g.connected = true
	return nil
}

// Listen registers message and interaction handlers and returns the
// inbound event channel. Must be called after Connect.
func (g *Gateway) Listen(ctx context.Context) (<-chan telegraph.InboundEvent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.connected {
		return nil, fmt.Errorf("discord: not connected")
	}

	g.listenCtx, g.cancelFunc = context.WithCancel(ctx)
	g.removeHandlers = append(g.removeHandlers,
		g.sess.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
			g.handleMessage(m)
		}),
		g.sess.AddHandler(func(_ *discordgo.Session, i *discordgo.InteractionCreate) {
			g.handleInteraction(i)
		}),
	)
	return g.inbound, nil
}

// Send posts msg to the channel and returns the new message ID.
func (g *Gateway) Send(ctx context.Context, conversationID string, msg telegraph.OutboundMessage) (string, error) {
	if err := g.ready(conversationID); err != nil {
		return "", err
	}
	data := buildMessageSend(msg)

	var sent *discordgo.Message
	err := g.retryOnRateLimit(ctx, func() error {
		var sendErr error
		sent, sendErr = g.sess.ChannelMessageSendComplex(conversationID, data)
		return sendErr
	})
	if err != nil {
		return "", fmt.Errorf("discord: send message: %w", err)
	}
	return sent.ID, nil
}

// Update edits the message in place, replacing content, embeds and buttons.
func (g *Gateway) Update(ctx context.Context, conversationID, messageID string, msg telegraph.OutboundMessage) error {
	if err := g.ready(conversationID); err != nil {
		return err
	}
	edit := buildMessageEdit(conversationID, messageID, msg)
	err := g.retryOnRateLimit(ctx, func() error {
		_, editErr := g.sess.ChannelMessageEditComplex(edit)
		return editErr
	})
	if err != nil {
		return fmt.Errorf("discord: edit message: %w", err)
	}
	return nil
}

// Delete removes the message.
func (g *Gateway) Delete(ctx context.Context, conversationID, messageID string) error {
	if err := g.ready(conversationID); err != nil {
		return err
	}
	err := g.retryOnRateLimit(ctx, func() error {
		return g.sess.ChannelMessageDelete(conversationID, messageID)
	})
	if err != nil {
		return fmt.Errorf("discord: delete message: %w", err)
	}
	return nil
}

// Typing shows the typing indicator in the channel (implements telegraph.Typer).
func (g *Gateway) Typing(ctx context.Context, conversationID string) error {
	if err := g.ready(conversationID); err != nil {
		return err
	}
	if err := g.sess.ChannelTyping(conversationID); err != nil {
		return fmt.Errorf("discord: typing: %w", err)
	}
	return nil
}

// Close gracefully shuts down the gateway connection.
func (g *Gateway) Close() error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return nil
	}
	g.closed = true
	g.connected = false
	cancel := g.cancelFunc
	removers := g.removeHandlers
	g.removeHandlers = nil
	g.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	for _, remove := range removers {
		remove()
	}
	g.sendMu.Lock()
	close(g.inbound)
	g.sendMu.Unlock()
	if g.sess != nil {
		return g.sess.Close()
	}
	return nil
}

// BotUserID returns the bot's Discord user ID (available after Ready).
func (g *Gateway) BotUserID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.botUserID
}

// SetBotUserID sets the bot user ID (used for self-message filtering).
func (g *Gateway) SetBotUserID(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.botUserID = id
}

func (g *Gateway) ready(conversationID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.connected {
		return fmt.Errorf("discord: not connected")
	}
	if conversationID == "" {
		return fmt.Errorf("discord: no channel specified")
	}
	return nil
}

// handleMessage converts a Discord message event to an InboundEvent.
func (g *Gateway) handleMessage(m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot || m.Author.ID == g.BotUserID() {
		return
	}

	ts, _ := discordgo.SnowflakeTimestamp(m.ID)
	ev := telegraph.InboundEvent{
		Platform:        "discord",
		ConversationID:  m.ChannelID,
		ChannelEndpoint: m.ChannelID,
		SenderIdentity:  m.Author.ID,
		SenderName:      displayName(m.Author),
		Text:            m.Content,
		Timestamp:       ts,
	}
	for _, a := range m.Attachments {
		if a == nil {
			continue
		}
		ev.Attachments = append(ev.Attachments, telegraph.Attachment{
			Name:        a.Filename,
			URL:         a.URL,
			ContentType: a.ContentType,
		})
	}
	g.emit(ev)
}

// handleInteraction acknowledges a button click or modal submission and
// forwards it as an InboundEvent. The ask button is answered with a modal
// and forwarded only once the question is submitted.
func (g *Gateway) handleInteraction(ic *discordgo.InteractionCreate) {
	i := ic.Interaction
	if i == nil {
		return
	}

	var action *telegraph.Action
	switch i.Type {
	case discordgo.InteractionMessageComponent:
		verb, value := decodeCustomID(i.MessageComponentData().CustomID)
		if verb == "" {
			return
		}
		if verb == telegraph.ActionAsk {
			g.respond(i, askModal(value))
			return
		}
		action = telegraph.NewAction(verb, value)

	case discordgo.InteractionModalSubmit:
		data := i.ModalSubmitData()
		docID, ok := strings.CutPrefix(data.CustomID, askModalPrefix)
		if !ok {
			return
		}
		action = &telegraph.Action{
			Verb:     telegraph.ActionAsk,
			DocID:    docID,
			Question: strings.TrimSpace(modalValue(data.Components, questionInputID)),
		}

	default:
		return
	}

	g.respond(i, &discordgo.InteractionResponse{Type: discordgo.InteractionResponseDeferredMessageUpdate})

	user := i.User
	if i.Member != nil && i.Member.User != nil {
		user = i.Member.User
	}
	ev := telegraph.InboundEvent{
		Platform:        "discord",
		ConversationID:  i.ChannelID,
		ChannelEndpoint: i.ChannelID,
		Action:          action,
		Timestamp:       time.Now(),
	}
	if user != nil {
		ev.SenderIdentity = user.ID
		ev.SenderName = displayName(user)
	}
	if i.Message != nil {
		ev.ReplyToMessageID = i.Message.ID
	}
	g.emit(ev)
}

func (g *Gateway) respond(i *discordgo.Interaction, resp *discordgo.InteractionResponse) {
	if err := g.sess.InteractionRespond(i, resp); err != nil {
		g.log.Warn("discord: interaction respond", zap.String("interaction", i.ID), zap.Error(err))
	}
}

// emit delivers ev unless the gateway is shutting down.
func (g *Gateway) emit(ev telegraph.InboundEvent) {
	g.sendMu.Lock()
	defer g.sendMu.Unlock()
	g.mu.Lock()
	closed, ctx := g.closed, g.listenCtx
	g.mu.Unlock()
	if closed || ctx == nil {
		return
	}
	select {
	case g.inbound <- ev:
	case <-ctx.Done():
	}
}

func displayName(u *discordgo.User) string {
	if u.GlobalName != "" {
		return u.GlobalName
	}
	return u.Username
}

// encodeCustomID packs a button's verb and value as "verb:value", clipped
// to Discord's custom id limit.
func encodeCustomID(verb, value string) string {
	id := verb
	if value != "" {
		id += ":" + value
	}
	if len(id) > maxCustomIDLen {
		id = id[:maxCustomIDLen]
	}
	return id
}

func decodeCustomID(id string) (verb, value string) {
	verb, value, _ = strings.Cut(id, ":")
	return verb, value
}

// askModal is the question dialog opened by the ask button.
func askModal(docID string) *discordgo.InteractionResponse {
	title := "Ask about " + docID
	if len(title) > maxModalTitleLen {
		title = title[:maxModalTitleLen]
	}
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: &discordgo.InteractionResponseData{
			CustomID: askModalPrefix + docID,
			Title:    title,
			Components: []discordgo.MessageComponent{
				discordgo.ActionsRow{Components: []discordgo.MessageComponent{
					discordgo.TextInput{
						CustomID:    questionInputID,
						Label:       "Question",
						Style:       discordgo.TextInputParagraph,
						Placeholder: "e.g. Which load cases were checked?",
						Required:    true,
						MaxLength:   1000,
					},
				}},
			},
		},
	}
}

// modalValue finds the value of the text input with customID.
func modalValue(components []discordgo.MessageComponent, customID string) string {
	for _, c := range components {
		var inner []discordgo.MessageComponent
		switch row := c.(type) {
		case *discordgo.ActionsRow:
			inner = row.Components
		case discordgo.ActionsRow:
			inner = row.Components
		}
		for _, ic := range inner {
			switch ti := ic.(type) {
			case *discordgo.TextInput:
				if ti.CustomID == customID {
					return ti.Value
				}
			case discordgo.TextInput:
				if ti.CustomID == customID {
					return ti.Value
				}
			}
		}
	}
	return ""
}

// buildMessageSend translates an OutboundMessage into a Discord MessageSend.
func buildMessageSend(msg telegraph.OutboundMessage) *discordgo.MessageSend {
	data := &discordgo.MessageSend{Content: msg.Text}
	if msg.Card != nil {
		data.Content = ""
		data.Embeds = []*discordgo.MessageEmbed{cardToEmbed(*msg.Card)}
		data.Components = cardComponents(*msg.Card)
	}
	return data
}

// buildMessageEdit replaces every part of the message, so a text-only
// update clears an earlier card.
func buildMessageEdit(channelID, messageID string, msg telegraph.OutboundMessage) *discordgo.MessageEdit {
	content := msg.Text
	embeds := []*discordgo.MessageEmbed{}
	components := []discordgo.MessageComponent{}
	if msg.Card != nil {
		content = ""
		embeds = append(embeds, cardToEmbed(*msg.Card))
		components = cardComponents(*msg.Card)
		if components == nil {
			components = []discordgo.MessageComponent{}
		}
	}
	return &discordgo.MessageEdit{
		ID:         messageID,
		Channel:    channelID,
		Content:    &content,
		Embeds:     &embeds,
		Components: &components,
	}
}

// cardToEmbed converts a Card to a Discord Embed.
func cardToEmbed(card telegraph.Card) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title:       card.Title,
		Description: card.Body,
	}
	if card.Color != "" {
		embed.Color = parseHexColor(card.Color)
	}
	for i, f := range card.Fields {
		if i == maxEmbedFields {
			break
		}
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   f.Name,
			Value:  f.Value,
			Inline: f.Short,
		})
	}
	return embed
}

// cardComponents lays out a card's buttons in rows of five.
func cardComponents(card telegraph.Card) []discordgo.MessageComponent {
	var rows []discordgo.MessageComponent
	var row []discordgo.MessageComponent
	for _, b := range card.Actions {
		if len(rows) == maxRows {
			break
		}
		row = append(row, discordgo.Button{
			Label:    b.Label,
			Style:    buttonStyle(b.Style),
			CustomID: encodeCustomID(b.Verb, b.Value),
		})
		if len(row) == maxButtonsPerRow {
			rows = append(rows, discordgo.ActionsRow{Components: row})
			row = nil
		}
	}
	if len(row) > 0 && len(rows) < maxRows {
		rows = append(rows, discordgo.ActionsRow{Components: row})
	}
	return rows
}

func buttonStyle(style string) discordgo.ButtonStyle {
	switch style {
	case telegraph.StylePrimary:
		return discordgo.PrimaryButton
	case telegraph.StyleDanger:
		return discordgo.DangerButton
	default:
		return discordgo.SecondaryButton
	}
}

// parseHexColor converts a hex color string (e.g. "#36a64f") to an int.
func parseHexColor(hex string) int {
	if len(hex) > 0 && hex[0] == '#' {
		hex = hex[1:]
	}
	var color int
	for _, c := range hex {
		color <<= 4
		switch {
		case c >= '0' && c <= '9':
			color |= int(c - '0')
		case c >= 'a' && c <= 'f':
			color |= int(c-'a') + 10
		case c >= 'A' && c <= 'F':
			color |= int(c-'A') + 10
		}
	}
	return color
}

// retryOnRateLimit calls fn and retries with exponential backoff on Discord
// rate limit errors. It respects context cancellation.
func (g *Gateway) retryOnRateLimit(ctx context.Context, fn func() error) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		restErr, ok := err.(*discordgo.RESTError)
		if !ok || restErr.Response == nil || restErr.Response.StatusCode != 429 {
			return err
		}
		if attempt == maxRetries {
			return err
		}

		wait := time.Duration(math.Pow(2, float64(attempt))) * g.baseBackoff
		if wait > g.maxBackoff {
			wait = g.maxBackoff
		}
		g.log.Warn("discord: rate limited, retrying",
			zap.Int("attempt", attempt+1),
			zap.Int("max", maxRetries),
			zap.Duration("wait", wait))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil // unreachable
}
