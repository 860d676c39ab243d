// Package slack implements the telegraph Gateway for Slack using Socket Mode.
// Cards render as Block Kit inside a colored attachment. Button clicks and
// the ask input arrive as block_actions interactions.
package slack

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	slackapi "github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"
	"github.com/zulandar/signoff/internal/identity"
	"github.com/zulandar/signoff/internal/telegraph"
	"go.uber.org/zap"
)

const (
	// maxRetries is the max number of retries for rate-limited API calls.
	maxRetries = 3
	// baseBackoff is the initial backoff duration for reconnection.
	baseBackoff = 2 * time.Second
	// maxBackoff caps the exponential backoff for reconnection.
	maxBackoff = 2 * time.Minute
	// maxReconnectAttempts limits reconnection retries before giving up.
	maxReconnectAttempts = 10

	// Block Kit limits.
	maxHeaderLen  = 150
	maxSectionLen = 3000
	maxFields     = 10
	maxButtons    = 25

	// askBlockPrefix prefixes the block id of the ask input; the rest is
	// the document id.
	askBlockPrefix = "ask:"
)

// slackClient abstracts the Slack API methods we use, enabling test mocks.
type slackClient interface {
	AuthTest() (*slackapi.AuthTestResponse, error)
	PostMessage(channelID string, options ...slackapi.MsgOption) (string, string, error)
	UpdateMessage(channelID, timestamp string, options ...slackapi.MsgOption) (string, string, string, error)
	DeleteMessage(channelID, timestamp string) (string, string, error)
	GetUserInfo(userID string) (*slackapi.User, error)
}

// socketClient abstracts the Socket Mode client methods we use.
type socketClient interface {
	Run() error
	EventsChan() chan socketmode.Event
	Ack(req socketmode.Request, payload ...interface{})
}

// realSocketClient wraps *socketmode.Client to implement socketClient.
type realSocketClient struct {
	client *socketmode.Client
}

func (r *realSocketClient) Run() error                        { return r.client.Run() }
func (r *realSocketClient) EventsChan() chan socketmode.Event { return r.client.Events }
func (r *realSocketClient) Ack(req socketmode.Request, payload ...interface{}) {
	r.client.Ack(req, payload...)
}

// profile is the cached subset of a Slack user.
type profile struct {
	name  string
	email string
}

// Gateway implements telegraph.Gateway for Slack Socket Mode.
type Gateway struct {
	client       slackClient
	socket       socketClient
	log          *zap.Logger
	botUserID    string
	appToken     string
	botToken     string
	mu           sync.Mutex
	sendMu       sync.Mutex // serializes emit against closing inbound
	connected    bool
	closed       bool
	inbound      chan telegraph.InboundEvent
	cancelFunc   context.CancelFunc
	profiles     map[string]profile
	baseBackoff  time.Duration // reconnection base backoff (default: baseBackoff const)
	maxBackoff   time.Duration // reconnection max backoff (default: maxBackoff const)
	maxReconnect int           // max reconnection attempts (default: maxReconnectAttempts)
}

// GatewayOpts holds parameters for creating a Slack Gateway.
type GatewayOpts struct {
	AppToken string // xapp-... Slack app-level token for Socket Mode
	BotToken string // xoxb-... Slack bot token
	Logger   *zap.Logger
	// For testing: inject mock clients instead of real Slack API.
	Client slackClient
	Socket socketClient
}

// New creates a Slack Gateway.
func New(opts GatewayOpts) (*Gateway, error) {
	if opts.Client == nil && opts.BotToken == "" {
		return nil, fmt.Errorf("slack: bot token is required")
	}
	if opts.Socket == nil && opts.AppToken == "" {
		return nil, fmt.Errorf("slack: app token is required for socket mode")
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	g := &Gateway{
		appToken:     opts.AppToken,
		botToken:     opts.BotToken,
		log:          log,
		inbound:      make(chan telegraph.InboundEvent, 100),
		profiles:     make(map[string]profile),
		baseBackoff:  baseBackoff,
		maxBackoff:   maxBackoff,
		maxReconnect: maxReconnectAttempts,
	}
	if opts.Client != nil {
		g.client = opts.Client
	}
	if opts.Socket != nil {
		g.socket = opts.Socket
	}
	return g, nil
}

// Connect authenticates the bot token and prepares the Socket Mode client.
func (g *Gateway) Connect(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return fmt.Errorf("slack: gateway already closed")
	}
	if g.connected {
		return nil
	}

	// Create real clients if not injected (production path).
	if g.client == nil {
		api := slackapi.New(g.botToken, slackapi.OptionAppLevelToken(g.appToken))
		g.client = api
		g.socket = &realSocketClient{client: socketmode.New(api)}
	}

	auth, err := g.client.AuthTest()
	if err != nil {
		return fmt.Errorf("slack: auth test: %w", err)
	}
	g.botUserID = auth.UserID

	g.connected = true
	return nil
}

// Listen returns a channel of inbound events. Starts the Socket Mode
// event pump in a background goroutine. Must be called after Connect.
func (g *Gateway) Listen(ctx context.Context) (<-chan telegraph.InboundEvent, error) {
	g.mu.Lock()
	if !g.connected {
		g.mu.Unlock()
		return nil, fmt.Errorf("slack: not connected")
	}
	listenCtx, cancel := context.WithCancel(ctx)
	g.cancelFunc = cancel
	g.mu.Unlock()

	go g.runWithReconnect(listenCtx)
	go g.pumpEvents(listenCtx)

	return g.inbound, nil
}

// Send posts msg to the channel and returns its timestamp, which Slack
// uses as the message id.
func (g *Gateway) Send(ctx context.Context, conversationID string, msg telegraph.OutboundMessage) (string, error) {
	if err := g.ready(conversationID); err != nil {
		return "", err
	}
	var ts string
	err := retryOnRateLimit(ctx, func() error {
		var postErr error
		_, ts, postErr = g.client.PostMessage(conversationID, buildMessageOptions(msg)...)
		return postErr
	})
	if err != nil {
		return "", fmt.Errorf("slack: post message: %w", err)
	}
	return ts, nil
}

// Update replaces the message at ts with msg.
func (g *Gateway) Update(ctx context.Context, conversationID, messageID string, msg telegraph.OutboundMessage) error {
	if err := g.ready(conversationID); err != nil {
		return err
	}
	err := retryOnRateLimit(ctx, func() error {
		_, _, _, updErr := g.client.UpdateMessage(conversationID, messageID, buildMessageOptions(msg)...)
		return updErr
	})
	if err != nil {
		return fmt.Errorf("slack: update message: %w", err)
	}
	return nil
}

// Delete removes the message at ts.
func (g *Gateway) Delete(ctx context.Context, conversationID, messageID string) error {
	if err := g.ready(conversationID); err != nil {
		return err
	}
	err := retryOnRateLimit(ctx, func() error {
		_, _, delErr := g.client.DeleteMessage(conversationID, messageID)
		return delErr
	})
	if err != nil {
		return fmt.Errorf("slack: delete message: %w", err)
	}
	return nil
}

// ResolveEmail returns the profile email of a Slack user. It implements
// identity.Resolver.
func (g *Gateway) ResolveEmail(ctx context.Context, userID string) (string, error) {
	g.mu.Lock()
	connected := g.connected
	g.mu.Unlock()
	if !connected {
		return "", fmt.Errorf("slack: not connected")
	}
	p, err := g.lookupUser(userID)
	if err != nil {
		return "", fmt.Errorf("slack: resolve email: %w", err)
	}
	if p.email == "" {
		return "", identity.ErrNotFound
	}
	return p.email, nil
}

// Close shuts down the gateway and closes the inbound channel.
func (g *Gateway) Close() error {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return nil
	}
	g.closed = true
	g.connected = false
	cancel := g.cancelFunc
	g.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	g.sendMu.Lock()
	close(g.inbound)
	g.sendMu.Unlock()
	return nil
}

// BotUserID returns the bot's Slack user ID (available after Connect).
func (g *Gateway) BotUserID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.botUserID
}

func (g *Gateway) ready(conversationID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.connected {
		return fmt.Errorf("slack: not connected")
	}
	if conversationID == "" {
		return fmt.Errorf("slack: no channel specified")
	}
	return nil
}

// runWithReconnect runs the Socket Mode client and retries with exponential
// backoff when Run() returns an error (e.g., reconnection failure).
func (g *Gateway) runWithReconnect(ctx context.Context) {
	for attempt := 0; attempt < g.maxReconnect; attempt++ {
		err := g.socket.Run()
		if err == nil {
			return // clean shutdown
		}

		select {
		case <-ctx.Done():
			return
		default:
		}

		wait := time.Duration(math.Pow(2, float64(attempt))) * g.baseBackoff
		if wait > g.maxBackoff {
			wait = g.maxBackoff
		}

		g.log.Warn("slack: socket mode disconnected, reconnecting",
			zap.Int("attempt", attempt+1),
			zap.Int("max", g.maxReconnect),
			zap.Duration("wait", wait),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
	g.log.Error("slack: socket mode exhausted reconnection attempts", zap.Int("attempts", g.maxReconnect))
}

// pumpEvents reads Socket Mode events and converts them to InboundEvents.
func (g *Gateway) pumpEvents(ctx context.Context) {
	events := g.socket.EventsChan()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			g.handleSocketEvent(ctx, evt)
		}
	}
}

// handleSocketEvent processes a single Socket Mode event.
func (g *Gateway) handleSocketEvent(ctx context.Context, evt socketmode.Event) {
	switch evt.Type {
	case socketmode.EventTypeEventsAPI:
		eventsAPIEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
		if !ok {
			return
		}
		if evt.Request != nil {
			g.socket.Ack(*evt.Request)
		}
		g.handleEventsAPI(ctx, eventsAPIEvent)

	case socketmode.EventTypeInteractive:
		callback, ok := evt.Data.(slackapi.InteractionCallback)
		if !ok {
			return
		}
		if evt.Request != nil {
			g.socket.Ack(*evt.Request)
		}
		g.handleInteraction(ctx, callback)

	case socketmode.EventTypeConnecting:
		g.log.Info("slack: connecting to Socket Mode")

	case socketmode.EventTypeConnected:
		g.log.Info("slack: connected to Socket Mode")

	case socketmode.EventTypeConnectionError:
		g.log.Warn("slack: connection error", zap.Any("data", evt.Data))

	case socketmode.EventTypeDisconnect:
		g.log.Info("slack: server requested disconnect, will reconnect")
	}
}

// handleEventsAPI processes Events API callbacks.
func (g *Gateway) handleEventsAPI(ctx context.Context, event slackevents.EventsAPIEvent) {
	if event.Type != slackevents.CallbackEvent {
		return
	}
	switch ev := event.InnerEvent.Data.(type) {
	case *slackevents.MessageEvent:
		g.handleMessage(ctx, ev)
	case *slackevents.AppMentionEvent:
		g.handleAppMention(ctx, ev)
	}
}

// handleMessage converts a Slack message event to an InboundEvent.
func (g *Gateway) handleMessage(ctx context.Context, ev *slackevents.MessageEvent) {
	if ev.User == "" || ev.User == g.BotUserID() {
		return
	}
	// Edits, deletes and bot posts are ignored. File uploads are kept.
	if ev.BotID != "" || (ev.SubType != "" && ev.SubType != "file_share") {
		return
	}

	in := g.newEvent(ev.Channel, ev.User, ev.Text, ev.TimeStamp)
	if ev.Message != nil {
		in.Attachments = convertFiles(ev.Message.Files)
	}
	g.emit(ctx, in)
}

// handleAppMention converts a Slack @mention event to an InboundEvent.
func (g *Gateway) handleAppMention(ctx context.Context, ev *slackevents.AppMentionEvent) {
	if ev.User == g.BotUserID() {
		return
	}
	g.emit(ctx, g.newEvent(ev.Channel, ev.User, ev.Text, ev.TimeStamp))
}

// handleInteraction converts a block_actions callback into an InboundEvent
// carrying the clicked button or submitted question.
func (g *Gateway) handleInteraction(ctx context.Context, cb slackapi.InteractionCallback) {
	if cb.Type != slackapi.InteractionTypeBlockActions || len(cb.ActionCallback.BlockActions) == 0 {
		return
	}
	action := decodeBlockAction(cb.ActionCallback.BlockActions[0])
	if action == nil {
		return
	}

	channel := cb.Channel.ID
	if channel == "" {
		channel = cb.Container.ChannelID
	}
	in := g.newEvent(channel, cb.User.ID, "", cb.ActionTs)
	if in.SenderName == cb.User.ID && cb.User.Name != "" {
		in.SenderName = cb.User.Name
	}
	in.Action = action
	in.ReplyToMessageID = cb.Container.MessageTs
	if in.ReplyToMessageID == "" {
		in.ReplyToMessageID = cb.Message.Timestamp
	}
	g.emit(ctx, in)
}

func (g *Gateway) newEvent(channel, userID, text, ts string) telegraph.InboundEvent {
	in := telegraph.InboundEvent{
		Platform:        "slack",
		ConversationID:  channel,
		ChannelEndpoint: channel,
		SenderIdentity:  userID,
		SenderName:      userID,
		Text:            text,
		Timestamp:       parseSlackTimestamp(ts),
	}
	if p, err := g.lookupUser(userID); err == nil {
		if p.name != "" {
			in.SenderName = p.name
		}
		in.SenderEmail = p.email
	}
	return in
}

// emit delivers in unless the gateway is shutting down.
func (g *Gateway) emit(ctx context.Context, in telegraph.InboundEvent) {
	g.sendMu.Lock()
	defer g.sendMu.Unlock()
	g.mu.Lock()
	closed := g.closed
	g.mu.Unlock()
	if closed {
		return
	}
	select {
	case g.inbound <- in:
	case <-ctx.Done():
	}
}

// lookupUser fetches and caches a user's display name and email.
func (g *Gateway) lookupUser(userID string) (profile, error) {
	if userID == "" {
		return profile{}, fmt.Errorf("empty user id")
	}
	g.mu.Lock()
	p, ok := g.profiles[userID]
	g.mu.Unlock()
	if ok {
		return p, nil
	}

	user, err := g.client.GetUserInfo(userID)
	if err != nil {
		return profile{}, err
	}
	p = profile{name: user.Profile.DisplayName, email: user.Profile.Email}
	if p.name == "" {
		p.name = user.RealName
	}

	g.mu.Lock()
	g.profiles[userID] = p
	g.mu.Unlock()
	return p, nil
}

// decodeBlockAction maps a clicked element back to a telegraph.Action.
// Button action ids are "verb/index" so they stay unique within a block.
func decodeBlockAction(ba *slackapi.BlockAction) *telegraph.Action {
	if ba == nil {
		return nil
	}
	if strings.HasPrefix(ba.BlockID, askBlockPrefix) {
		return &telegraph.Action{
			Verb:     telegraph.ActionAsk,
			DocID:    strings.TrimPrefix(ba.BlockID, askBlockPrefix),
			Question: strings.TrimSpace(ba.Value),
		}
	}
	verb, _, _ := strings.Cut(ba.ActionID, "/")
	if verb == "" {
		return nil
	}
	return telegraph.NewAction(verb, ba.Value)
}

func convertFiles(files []slackapi.File) []telegraph.Attachment {
	var out []telegraph.Attachment
	for _, f := range files {
		out = append(out, telegraph.Attachment{Name: f.Name, URL: f.URLPrivate, ContentType: f.Mimetype})
	}
	return out
}

// buildMessageOptions translates an OutboundMessage into Slack MsgOptions.
// A text-only message clears any attachments so updates replace cards.
func buildMessageOptions(msg telegraph.OutboundMessage) []slackapi.MsgOption {
	text := msg.Text
	if text == "" && msg.Card != nil {
		text = msg.Card.Title
	}
	options := []slackapi.MsgOption{slackapi.MsgOptionText(text, false)}
	if msg.Card == nil {
		return append(options, slackapi.MsgOptionAttachments([]slackapi.Attachment{}...))
	}
	return append(options, slackapi.MsgOptionAttachments(cardToAttachment(*msg.Card)))
}

// cardToAttachment renders a card as Block Kit inside a colored attachment.
func cardToAttachment(card telegraph.Card) slackapi.Attachment {
	return slackapi.Attachment{
		Color:    card.Color,
		Fallback: card.Title,
		Blocks:   slackapi.Blocks{BlockSet: cardBlocks(card)},
	}
}

func cardBlocks(card telegraph.Card) []slackapi.Block {
	var blocks []slackapi.Block
	if card.Title != "" {
		blocks = append(blocks, slackapi.NewHeaderBlock(
			slackapi.NewTextBlockObject(slackapi.PlainTextType, clip(card.Title, maxHeaderLen), false, false)))
	}

	var body *slackapi.TextBlockObject
	if card.Body != "" {
		body = slackapi.NewTextBlockObject(slackapi.MarkdownType, clip(card.Body, maxSectionLen), false, false)
	}
	var fields []*slackapi.TextBlockObject
	for i, f := range card.Fields {
		if i == maxFields {
			break
		}
		fields = append(fields, slackapi.NewTextBlockObject(slackapi.MarkdownType,
			fmt.Sprintf("*%s*\n%s", f.Name, f.Value), false, false))
	}
	if body != nil || len(fields) > 0 {
		blocks = append(blocks, slackapi.NewSectionBlock(body, fields, nil))
	}

	if card.Input != nil {
		input := slackapi.NewInputBlock(
			askBlockPrefix+card.Input.DocID,
			slackapi.NewTextBlockObject(slackapi.PlainTextType, card.Input.Label, false, false),
			nil,
			slackapi.NewPlainTextInputBlockElement(
				slackapi.NewTextBlockObject(slackapi.PlainTextType, card.Input.Placeholder, false, false),
				card.Input.Verb+"/input"),
		)
		input.DispatchAction = true
		input.Optional = true
		blocks = append(blocks, input)
	}

	var buttons []slackapi.BlockElement
	for i, b := range card.Actions {
		if i == maxButtons {
			break
		}
		btn := slackapi.NewButtonBlockElement(
			fmt.Sprintf("%s/%d", b.Verb, i),
			b.Value,
			slackapi.NewTextBlockObject(slackapi.PlainTextType, b.Label, false, false))
		switch b.Style {
		case telegraph.StylePrimary:
			btn = btn.WithStyle(slackapi.StylePrimary)
		case telegraph.StyleDanger:
			btn = btn.WithStyle(slackapi.StyleDanger)
		}
		buttons = append(buttons, btn)
	}
	if len(buttons) > 0 {
		blocks = append(blocks, slackapi.NewActionBlock("actions", buttons...))
	}
	return blocks
}

// clip shortens s to max runes for Block Kit length limits.
func clip(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}

// retryOnRateLimit calls fn and retries with backoff on Slack rate limit errors.
// It respects context cancellation and the RetryAfter duration from Slack.
func retryOnRateLimit(ctx context.Context, fn func() error) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		var rle *slackapi.RateLimitedError
		if !errors.As(err, &rle) {
			return err
		}
		if attempt == maxRetries {
			return err
		}

		wait := rle.RetryAfter
		if wait <= 0 {
			wait = time.Duration(math.Pow(2, float64(attempt))) * time.Second
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil // unreachable
}

// parseSlackTimestamp converts a Slack timestamp (e.g., "1234567890.123456")
// to a time.Time.
func parseSlackTimestamp(ts string) time.Time {
	parts := strings.SplitN(ts, ".", 2)
	if len(parts) == 0 {
		return time.Time{}
	}
	sec, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(sec, 0)
}
