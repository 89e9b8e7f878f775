// Package discord adapts discordgo sessions to huddle's voice transport,
// messaging, naming, and command surfaces.
package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/rbright/huddle/internal/recorder"
	"github.com/rbright/huddle/internal/session"
	"github.com/rbright/huddle/internal/voice"
)

// ErrNoTokens means no bot token was configured.
var ErrNoTokens = errors.New("no discord bot token configured")

// Identity is one logged-in bot account.
type Identity struct {
	id      string
	session *discordgo.Session
	dialer  *Dialer
	logger  *slog.Logger
}

// NewIdentity prepares a bot session without connecting it.
func NewIdentity(id string, token string, logger *slog.Logger) (*Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrNoTokens
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session %s: %w", id, err)
	}
	s.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildVoiceStates
	s.StateEnabled = true

	logger = logger.With("identity", id)
	return &Identity{
		id:      id,
		session: s,
		dialer:  NewDialer(s, logger.With("component", "voice")),
		logger:  logger,
	}, nil
}

// NewIdentities names tokens "primary", "worker-1", "worker-2", ... in order.
func NewIdentities(tokens []string, logger *slog.Logger) ([]*Identity, error) {
	if len(tokens) == 0 {
		return nil, ErrNoTokens
	}
	identities := make([]*Identity, 0, len(tokens))
	for i, token := range tokens {
		id := "primary"
		if i > 0 {
			id = fmt.Sprintf("worker-%d", i)
		}
		identity, err := NewIdentity(id, token, logger)
		if err != nil {
			return nil, err
		}
		identities = append(identities, identity)
	}
	return identities, nil
}

func (i *Identity) ID() string { return i.id }

func (i *Identity) Dialer() voice.Dialer { return i.dialer }

func (i *Identity) Notifier(channel voice.ChannelRef) session.Notifier {
	return NewNotifier(i.session, channel.ChannelID)
}

// Session exposes the underlying discordgo session.
func (i *Identity) Session() *discordgo.Session { return i.session }

// Recorder is the command surface the bot drives.
type Recorder interface {
	Record(ctx context.Context, req recorder.Request) recorder.Reply
	Stop(ctx context.Context, channelID string) recorder.Reply
	Active(channelID string) bool
	MembershipChanged(ctx context.Context, channelID string, humans int) bool
	SetReady(id string, ready bool)
}

// Bot wires identities to a Recorder. Only the primary identity handles
// slash commands; every identity watches voice-state changes.
type Bot struct {
	identities []*Identity
	recorder   Recorder
	logger     *slog.Logger

	mu      sync.Mutex
	ctx     context.Context
	removes []func()
}

// NewBot builds a Bot. identities[0] is the primary.
func NewBot(identities []*Identity, rec Recorder, logger *slog.Logger) *Bot {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Bot{
		identities: identities,
		recorder:   rec,
		logger:     logger.With("component", "discord"),
		ctx:        context.Background(),
	}
}

// Open connects every identity to the gateway. A primary failure is fatal;
// worker failures only shrink the pool.
func (b *Bot) Open(ctx context.Context) error {
	if len(b.identities) == 0 {
		return ErrNoTokens
	}
	b.mu.Lock()
	b.ctx = ctx
	b.mu.Unlock()

	for idx, identity := range b.identities {
		b.attach(identity, idx == 0)
		if err := identity.session.Open(); err != nil {
			if idx == 0 {
				return fmt.Errorf("open primary discord session: %w", err)
			}
			b.logger.Error("failed to open worker session", "identity", identity.id, "error", err.Error())
			continue
		}
		b.logger.Info("discord session opened", "identity", identity.id)
	}
	return nil
}

// Close detaches handlers and closes every gateway session.
func (b *Bot) Close() error {
	b.mu.Lock()
	removes := b.removes
	b.removes = nil
	b.mu.Unlock()
	for _, remove := range removes {
		remove()
	}

	var errs []error
	for _, identity := range b.identities {
		b.recorder.SetReady(identity.id, false)
		if err := identity.session.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", identity.id, err))
		}
	}
	return errors.Join(errs...)
}

func (b *Bot) attach(identity *Identity, primary bool) {
	s := identity.session
	id := identity.id
	removes := []func(){
		s.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
			b.logger.Info("identity ready", "identity", id, "user", r.User.Username)
			b.recorder.SetReady(id, true)
		}),
		s.AddHandler(func(_ *discordgo.Session, _ *discordgo.Resumed) {
			b.recorder.SetReady(id, true)
		}),
		s.AddHandler(func(_ *discordgo.Session, _ *discordgo.Disconnect) {
			b.logger.Warn("identity disconnected", "identity", id)
			b.recorder.SetReady(id, false)
		}),
		s.AddHandler(func(s *discordgo.Session, update *discordgo.VoiceStateUpdate) {
			b.voiceStateChanged(s.State, update)
		}),
	}
	if primary {
		removes = append(removes, s.AddHandler(func(s *discordgo.Session, i *discordgo.InteractionCreate) {
			b.interactionCreated(s, i)
		}))
	}

	b.mu.Lock()
	b.removes = append(b.removes, removes...)
	b.mu.Unlock()
}

func (b *Bot) baseContext() context.Context {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ctx
}

// voiceStateChanged re-counts humans in both the channel left and the
// channel joined.
func (b *Bot) voiceStateChanged(state *discordgo.State, update *discordgo.VoiceStateUpdate) {
	if update == nil || update.VoiceState == nil {
		return
	}
	channels := []string{update.ChannelID}
	if update.BeforeUpdate != nil && update.BeforeUpdate.ChannelID != update.ChannelID {
		channels = append(channels, update.BeforeUpdate.ChannelID)
	}

	ctx := b.baseContext()
	for _, channelID := range channels {
		if channelID == "" || !b.recorder.Active(channelID) {
			continue
		}
		humans := countHumans(state, update.GuildID, channelID)
		b.logger.Debug("voice membership changed", "channel_id", channelID, "humans", humans)
		b.recorder.MembershipChanged(ctx, channelID, humans)
	}
}

func (b *Bot) interactionCreated(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand || i.GuildID == "" || i.Member == nil || i.Member.User == nil {
		return
	}
	caller := callerChannel(s.State, i.GuildID, i.Member.User.ID)
	replier := &interactionReplier{session: s, interaction: i.Interaction}
	handleCommand(b.baseContext(), b.recorder, i.ApplicationCommandData().Name, caller, replier, b.logger)
}

// callerChannel finds the voice channel userID is currently in.
func callerChannel(state *discordgo.State, guildID string, userID string) voice.ChannelRef {
	ref := voice.ChannelRef{GroupID: guildID}
	if state == nil {
		return ref
	}
	vs, err := state.VoiceState(guildID, userID)
	if err != nil || vs == nil || vs.ChannelID == "" {
		return ref
	}
	ref.ChannelID = vs.ChannelID
	if ch, err := state.Channel(vs.ChannelID); err == nil && ch != nil {
		ref.Name = ch.Name
	}
	return ref
}
