package session

import (
	"context"
	"time"

	"github.com/rbright/huddle/internal/fsm"
)

// Summary describes a session that reached a terminal state.
type Summary struct {
	ID             string
	GroupID        string
	ChannelID      string
	ChannelName    string
	Identity       string
	State          fsm.State
	StartedAt      time.Time
	EndedAt        time.Time
	Speakers       int
	TranscriptPath string
	Err            error
}

// Observer is told about every session once it is finished.
type Observer interface {
	SessionEnded(ctx context.Context, summary Summary)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(context.Context, Summary)

func (f ObserverFunc) SessionEnded(ctx context.Context, summary Summary) {
	f(ctx, summary)
}

// observe fills the identifying fields and reports partial to the observer.
func (s *Session) observe(partial Summary) {
	if s.opts.Observer == nil {
		return
	}

	s.mu.Lock()
	partial.ID = s.id
	partial.State = s.state
	partial.StartedAt = s.startedAt
	partial.Speakers = len(s.records)
	s.mu.Unlock()

	partial.GroupID = s.opts.Channel.GroupID
	partial.ChannelID = s.opts.Channel.ChannelID
	partial.ChannelName = s.opts.Channel.Name
	partial.Identity = s.opts.Identity
	partial.EndedAt = s.opts.Now()

	s.opts.Observer.SessionEnded(context.Background(), partial)
}
