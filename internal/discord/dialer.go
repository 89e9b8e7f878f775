package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"

	"github.com/rbright/huddle/internal/voice"
)

// voiceJoiner is the slice of *discordgo.Session the dialer needs.
type voiceJoiner interface {
	ChannelVoiceJoin(guildID, channelID string, mute, deaf bool) (*discordgo.VoiceConnection, error)
}

// Dialer joins voice channels as one bot identity.
type Dialer struct {
	joiner voiceJoiner
	logger *slog.Logger
}

// NewDialer builds a Dialer for session.
func NewDialer(session *discordgo.Session, logger *slog.Logger) *Dialer {
	return newDialer(session, logger)
}

func newDialer(joiner voiceJoiner, logger *slog.Logger) *Dialer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Dialer{joiner: joiner, logger: logger}
}

type joinResult struct {
	vc  *discordgo.VoiceConnection
	err error
}

// Dial joins channel self-muted but not deafened, so audio is received.
// If ctx ends first the late connection is disconnected once it arrives.
func (d *Dialer) Dial(ctx context.Context, channel voice.ChannelRef) (voice.Connection, error) {
	if channel.GroupID == "" || channel.ChannelID == "" {
		return nil, errors.New("voice channel reference is incomplete")
	}

	result := make(chan joinResult, 1)
	go func() {
		vc, err := d.joiner.ChannelVoiceJoin(channel.GroupID, channel.ChannelID, true, false)
		result <- joinResult{vc: vc, err: err}
	}()

	select {
	case <-ctx.Done():
		go func() {
			late := <-result
			if late.vc != nil {
				_ = late.vc.Disconnect()
			}
		}()
		return nil, ctx.Err()
	case joined := <-result:
		if joined.err != nil {
			if joined.vc != nil {
				_ = joined.vc.Disconnect()
			}
			return nil, fmt.Errorf("join voice channel %s: %w", channel.ChannelID, joined.err)
		}
		if joined.vc == nil {
			return nil, errors.New("join voice channel returned no connection")
		}
		return wrapVoiceConnection(joined.vc, d.logger.With("channel_id", channel.ChannelID)), nil
	}
}

func wrapVoiceConnection(vc *discordgo.VoiceConnection, logger *slog.Logger) *conn {
	// discordgo only allocates OpusRecv when the key exchange completes
	vc.Lock()
	if vc.OpusRecv == nil {
		vc.OpusRecv = make(chan *discordgo.Packet, 16)
	}
	packets := vc.OpusRecv
	vc.Unlock()

	c := newConn(packets, vc.Disconnect, logger)
	vc.AddHandler(func(_ *discordgo.VoiceConnection, update *discordgo.VoiceSpeakingUpdate) {
		c.speakingUpdate(update.UserID, update.SSRC, update.Speaking)
	})
	return c
}
