// Package voice defines the transport contract used by recording sessions.
package voice

import "context"

// ChannelRef identifies one voice channel inside a group (guild).
type ChannelRef struct {
	GroupID   string
	ChannelID string
	Name      string
}

// String renders the channel for logs and user-facing replies.
func (c ChannelRef) String() string {
	if c.Name != "" {
		return c.Name
	}
	return c.ChannelID
}

// Dialer establishes a transport connection for one identity.
type Dialer interface {
	Dial(ctx context.Context, channel ChannelRef) (Connection, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(context.Context, ChannelRef) (Connection, error)

func (f DialerFunc) Dial(ctx context.Context, channel ChannelRef) (Connection, error) {
	return f(ctx, channel)
}

// Connection is one live transport connection delivering per-speaker audio.
type Connection interface {
	// SpeakingStarts yields a speaker id every time a speaker becomes active.
	// The channel is closed when the connection closes.
	SpeakingStarts() <-chan string
	// Subscribe returns the encoded frame stream for speakerID.
	Subscribe(speakerID string) FrameStream
	Close() error
}

// FrameStream yields encoded audio frames for one speaker.
type FrameStream interface {
	// Frames is closed when the stream ends.
	Frames() <-chan []byte
	// Err reports why the stream ended; nil for a normal end.
	Err() error
}
