package channel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/joebot/voxbrief/internal/audio"
	"github.com/joebot/voxbrief/internal/bus"
	"github.com/joebot/voxbrief/internal/config"
	"github.com/joebot/voxbrief/internal/format"
)

// maxDownload caps attachment downloads. The ingestor enforces the real limit.
const maxDownload = 100 << 20

var audioExts = map[string]bool{".ogg": true, ".oga": true, ".opus": true, ".mp3": true, ".wav": true}

// discordAPI is the part of *discordgo.Session the adapter sends through.
type discordAPI interface {
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelTyping(channelID string, options ...discordgo.RequestOption) error
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	InteractionResponseEdit(interaction *discordgo.Interaction, newresp *discordgo.WebhookEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
	FollowupMessageCreate(interaction *discordgo.Interaction, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

var _ Channel = (*Discord)(nil)

// Discord connects the bot to the Discord gateway through discordgo.
type Discord struct {
	config     config.DiscordConfig
	allow      AllowList
	bus        *bus.MessageBus
	session    *discordgo.Session
	api        discordAPI
	httpClient *http.Client
	ready      atomic.Bool

	mu           sync.Mutex
	interactions map[string]*discordgo.Interaction

	typingMu     sync.Mutex
	typingCancel map[string]context.CancelFunc
}

// NewDiscord creates a new Discord channel.
func NewDiscord(cfg config.DiscordConfig, b *bus.MessageBus) (*Discord, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("discord bot token not configured")
	}
	s, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	s.Identify.Intents = discordgo.Intent(cfg.Intents)
	d := newDiscord(cfg, b, s)
	d.session = s
	return d, nil
}

func newDiscord(cfg config.DiscordConfig, b *bus.MessageBus, api discordAPI) *Discord {
	return &Discord{
		config:       cfg,
		allow:        NewAllowList(cfg.AllowFrom),
		bus:          b,
		api:          api,
		httpClient:   &http.Client{Timeout: 60 * time.Second},
		interactions: make(map[string]*discordgo.Interaction),
		typingCancel: make(map[string]context.CancelFunc),
	}
}

func (d *Discord) Name() string { return "discord" }

// Start opens the gateway connection and blocks until ctx is cancelled.
// discordgo reconnects on its own.
func (d *Discord) Start(ctx context.Context) error {
	d.session.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		slog.Info("Discord gateway READY", "user", r.User.Username, "guilds", len(r.Guilds))
		d.ready.Store(true)
	})
	d.session.AddHandler(func(s *discordgo.Session, _ *discordgo.Disconnect) {
		slog.Warn("Discord gateway disconnected")
		d.ready.Store(false)
	})
	d.session.AddHandler(func(s *discordgo.Session, _ *discordgo.Resumed) {
		d.ready.Store(true)
	})
	d.session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		d.handleMessage(ctx, s.State.User.ID, m.Message)
	})
	d.session.AddHandler(func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		d.handleInteraction(i.Interaction)
	})

	slog.Info("Connecting to Discord gateway...")
	if err := d.session.Open(); err != nil {
		return fmt.Errorf("open discord gateway: %w", err)
	}
	<-ctx.Done()
	return ctx.Err()
}

// Check reports whether the gateway session is up.
func (d *Discord) Check(context.Context) error {
	if !d.ready.Load() {
		return errors.New("discord gateway not connected")
	}
	return nil
}

// Stop disconnects from Discord.
func (d *Discord) Stop() error {
	d.typingMu.Lock()
	for _, cancel := range d.typingCancel {
		cancel()
	}
	d.typingCancel = make(map[string]context.CancelFunc)
	d.typingMu.Unlock()
	if d.session != nil {
		return d.session.Close()
	}
	return nil
}

// Send delivers a reply. Interim replies become a typing indicator (audio)
// or an ephemeral note (button press); final replies are posted in chunks
// with the menu under the last one.
func (d *Discord) Send(ctx context.Context, r *bus.Reply) error {
	if interim, _ := r.Metadata["interim"].(bool); interim {
		return d.sendInterim(ctx, r)
	}
	defer d.stopTyping(r.ChatID)

	if r.EditRef != "" {
		if ix := d.takeInteraction(r.EditRef); ix != nil {
			// Retire the pressed menu so it cannot be pressed twice.
			empty := []discordgo.MessageComponent{}
			if _, err := d.api.InteractionResponseEdit(ix, &discordgo.WebhookEdit{Components: &empty}, discordgo.WithContext(ctx)); err != nil {
				slog.Warn("Discord menu retire failed", "err", err)
			}
		}
	}

	for i, chunk := range r.Chunks {
		msg := &discordgo.MessageSend{Content: chunk}
		if i == 0 && r.ReplyTo != "" {
			msg.Reference = &discordgo.MessageReference{MessageID: r.ReplyTo, ChannelID: r.ChatID}
			msg.AllowedMentions = &discordgo.MessageAllowedMentions{RepliedUser: false}
		}
		if i == len(r.Chunks)-1 && r.Menu != nil {
			msg.Components = menuComponents(r.Menu)
		}
		if _, err := d.api.ChannelMessageSendComplex(r.ChatID, msg, discordgo.WithContext(ctx)); err != nil {
			return fmt.Errorf("send discord message %d/%d: %w", i+1, len(r.Chunks), &bus.PartialSendError{Sent: i, Err: err})
		}
	}
	return nil
}

func (d *Discord) sendInterim(ctx context.Context, r *bus.Reply) error {
	if r.EditRef == "" {
		d.startTyping(ctx, r.ChatID)
		return nil
	}
	d.mu.Lock()
	ix := d.interactions[r.EditRef]
	d.mu.Unlock()
	if ix == nil {
		return nil
	}
	_, err := d.api.FollowupMessageCreate(ix, false, &discordgo.WebhookParams{
		Content: r.Text(),
		Flags:   discordgo.MessageFlagsEphemeral,
	}, discordgo.WithContext(ctx))
	return err
}

func (d *Discord) handleMessage(ctx context.Context, selfID string, m *discordgo.Message) {
	if m.Author == nil || m.Author.Bot || m.Author.ID == selfID {
		return
	}
	if !d.allow.Permits(m.Author.ID) {
		return
	}
	ev := d.eventFromMessage(m)
	if ev == nil {
		return
	}
	if ev.Kind == bus.KindAudio {
		d.startTyping(ctx, m.ChannelID)
	}
	d.bus.PublishInbound(ev)
}

// eventFromMessage turns a chat message into an audio or text event.
func (d *Discord) eventFromMessage(m *discordgo.Message) *bus.Event {
	ev := &bus.Event{
		Channel:    d.Name(),
		ChatID:     m.ChannelID,
		UserID:     m.Author.ID,
		MessageID:  m.ID,
		ReceivedAt: m.Timestamp,
		Metadata:   map[string]any{"guild_id": m.GuildID},
	}
	if ev.ReceivedAt.IsZero() {
		ev.ReceivedAt = time.Now()
	}
	a := audioAttachment(m.Attachments)
	if a == nil && len(m.Attachments) > 0 {
		// Not audio: the ingestor explains the rejection.
		a = m.Attachments[0]
	}
	if a != nil {
		ev.Kind = bus.KindAudio
		ev.Audio = &audio.Inbound{
			Filename:     a.Filename,
			MIME:         a.ContentType,
			DeclaredSize: int64(a.Size),
			Fetch:        d.fetcher(a.URL),
		}
		return ev
	}
	if strings.TrimSpace(m.Content) == "" {
		return nil
	}
	ev.Kind = bus.KindText
	ev.Text = m.Content
	return ev
}

func (d *Discord) handleInteraction(i *discordgo.Interaction) {
	ev := d.eventFromInteraction(i)
	if ev == nil {
		return
	}
	if !d.allow.Permits(ev.UserID) {
		return
	}
	// Acknowledge within Discord's 3 second window; the result follows later.
	if err := d.api.InteractionRespond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredMessageUpdate,
	}); err != nil {
		slog.Warn("Discord interaction ack failed", "err", err)
		return
	}
	d.mu.Lock()
	d.interactions[i.ID] = i
	d.mu.Unlock()
	d.bus.PublishInbound(ev)
}

func (d *Discord) eventFromInteraction(i *discordgo.Interaction) *bus.Event {
	if i.Type != discordgo.InteractionMessageComponent {
		return nil
	}
	data := i.MessageComponentData()
	if !strings.HasPrefix(data.CustomID, format.TokenPrefix+":") {
		return nil
	}
	userID := ""
	switch {
	case i.Member != nil && i.Member.User != nil:
		userID = i.Member.User.ID
	case i.User != nil:
		userID = i.User.ID
	}
	if userID == "" {
		return nil
	}
	ev := &bus.Event{
		Channel:    d.Name(),
		ChatID:     i.ChannelID,
		UserID:     userID,
		Kind:       bus.KindButton,
		Token:      data.CustomID,
		ReceivedAt: time.Now(),
		Metadata:   map[string]any{bus.MetaInteraction: i.ID},
	}
	if i.Message != nil {
		ev.MessageID = i.Message.ID
	}
	return ev
}

func (d *Discord) takeInteraction(id string) *discordgo.Interaction {
	d.mu.Lock()
	defer d.mu.Unlock()
	ix := d.interactions[id]
	delete(d.interactions, id)
	return ix
}

func (d *Discord) fetcher(url string) audio.Fetcher {
	return func(ctx context.Context) ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		resp, err := d.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("download attachment: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("download attachment: HTTP %d", resp.StatusCode)
		}
		return io.ReadAll(io.LimitReader(resp.Body, maxDownload))
	}
}

// audioAttachment returns the first attachment that looks like audio.
func audioAttachment(atts []*discordgo.MessageAttachment) *discordgo.MessageAttachment {
	for _, a := range atts {
		if strings.HasPrefix(a.ContentType, "audio/") || audioExts[strings.ToLower(filepath.Ext(a.Filename))] {
			return a
		}
	}
	return nil
}

// menuComponents renders the menu as button rows (5 buttons per row).
func menuComponents(m *format.Menu) []discordgo.MessageComponent {
	var rows []discordgo.MessageComponent
	var row []discordgo.MessageComponent
	for _, b := range m.Buttons {
		row = append(row, discordgo.Button{
			Label:    b.Label,
			Style:    discordgo.SecondaryButton,
			CustomID: b.Token,
		})
		if len(row) == 5 {
			rows = append(rows, discordgo.ActionsRow{Components: row})
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, discordgo.ActionsRow{Components: row})
	}
	return rows
}

func (d *Discord) startTyping(ctx context.Context, channelID string) {
	d.stopTyping(channelID)

	typingCtx, cancel := context.WithCancel(ctx)
	d.typingMu.Lock()
	d.typingCancel[channelID] = cancel
	d.typingMu.Unlock()

	go func() {
		for {
			d.api.ChannelTyping(channelID, discordgo.WithContext(typingCtx))
			select {
			case <-typingCtx.Done():
				return
			case <-time.After(8 * time.Second):
			}
		}
	}()
}

func (d *Discord) stopTyping(channelID string) {
	d.typingMu.Lock()
	defer d.typingMu.Unlock()
	if cancel, ok := d.typingCancel[channelID]; ok {
		cancel()
		delete(d.typingCancel, channelID)
	}
}
