// Package recorder routes record/stop commands onto pooled identities and
// owns the registry of live sessions.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/rbright/huddle/internal/pool"
	"github.com/rbright/huddle/internal/session"
	"github.com/rbright/huddle/internal/tasks"
	"github.com/rbright/huddle/internal/voice"
)

// ErrShuttingDown is returned for commands received during Shutdown.
var ErrShuttingDown = errors.New("recorder is shutting down")

// Identity is one pooled connection credential.
type Identity interface {
	ID() string
	// Dialer joins voice channels as this identity.
	Dialer() voice.Dialer
	// Notifier posts to channel's text chat as this identity.
	Notifier(channel voice.ChannelRef) session.Notifier
}

// Request asks for a recording in the caller's current voice channel.
type Request struct {
	Channel voice.ChannelRef
	// Progress, when set, receives an interim reply once an identity is chosen.
	Progress func(text string)
}

// Reply is the synchronous acknowledgement for a command.
type Reply struct {
	OK        bool
	Text      string
	SessionID string
	Err       error
}

// Service owns the worker pool and session registry.
type Service struct {
	template   session.Options
	tasks      *tasks.Pool
	logger     *slog.Logger
	workers    *pool.WorkerPool
	registry   *pool.Registry[*session.Session]
	identities map[string]Identity

	mu      sync.Mutex
	closed  bool
	onReady func(ready int)
}

// New builds a Service. template carries the options shared by every session;
// Channel, Identity, Dialer, and Notifier are filled per request. Identities
// are tried in the order given.
func New(template session.Options, identities ...Identity) *Service {
	logger := template.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if template.Tasks == nil {
		template.Tasks = tasks.New(logger, 2)
	}

	ids := make([]string, 0, len(identities))
	byID := make(map[string]Identity, len(identities))
	for _, identity := range identities {
		ids = append(ids, identity.ID())
		byID[identity.ID()] = identity
	}

	return &Service{
		template:   template,
		tasks:      template.Tasks,
		logger:     logger.With("component", "recorder"),
		workers:    pool.NewWorkerPool(ids...),
		registry:   pool.NewRegistry[*session.Session](),
		identities: byID,
	}
}

// SetReady marks an identity as able (or unable) to take new sessions.
func (s *Service) SetReady(id string, ready bool) {
	s.workers.SetReady(id, ready)
	s.logger.Info("identity readiness changed", "identity", id, "ready", ready)

	s.mu.Lock()
	hook := s.onReady
	s.mu.Unlock()
	if hook != nil {
		hook(s.workers.Ready())
	}
}

// OnReadyChange registers fn to receive the ready identity count after every
// readiness change.
func (s *Service) OnReadyChange(fn func(ready int)) {
	s.mu.Lock()
	s.onReady = fn
	s.mu.Unlock()
}

// ReadyIdentities counts identities that can take work.
func (s *Service) ReadyIdentities() int {
	return s.workers.Ready()
}

// Workers snapshots the identity pool.
func (s *Service) Workers() []pool.Worker {
	return s.workers.Snapshot()
}

// Record starts a session in req.Channel. It blocks through the connect
// retries and returns the reply for the command.
func (s *Service) Record(ctx context.Context, req Request) Reply {
	channel := req.Channel
	if channel.ChannelID == "" {
		return Reply{Text: "join a voice channel first"}
	}
	if s.isClosed() {
		return Reply{Text: "huddle is shutting down", Err: ErrShuttingDown}
	}
	if _, exists := s.registry.Lookup(channel.ChannelID); exists {
		return Reply{Text: alreadyRecording(channel), Err: pool.ErrRegistryConflict}
	}

	identityID, err := s.workers.Acquire(channel.GroupID, channel.ChannelID)
	if err != nil {
		s.logger.Warn("no identity available", "guild_id", channel.GroupID, "channel_id", channel.ChannelID)
		return Reply{Text: "all recording bots are busy", Err: err}
	}
	identity := s.identities[identityID]

	opts := s.template
	opts.Channel = channel
	opts.Identity = identityID
	opts.Dialer = identity.Dialer()
	opts.Notifier = identity.Notifier(channel)
	sess := session.New(opts)

	err = s.registry.Register(pool.Entry[*session.Session]{
		ChannelID: channel.ChannelID,
		GroupID:   channel.GroupID,
		Identity:  identityID,
		Session:   sess,
	})
	if err != nil {
		s.workers.Release(identityID, channel.GroupID)
		return Reply{Text: alreadyRecording(channel), Err: err}
	}

	if req.Progress != nil {
		req.Progress(fmt.Sprintf("connecting %s to %s", identityID, channel.String()))
	}

	if err := sess.Start(ctx); err != nil {
		s.unregister(channel.ChannelID, sess)
		s.workers.Release(identityID, channel.GroupID)
		s.logger.Error("failed to start recording", "channel_id", channel.ChannelID, "identity", identityID, "error", err.Error())
		return Reply{Text: session.JoinFailedNotice(err), Err: err}
	}

	s.logger.Info("recording started", "channel_id", channel.ChannelID, "identity", identityID, "session_id", sess.ID())
	return Reply{OK: true, Text: fmt.Sprintf("recording %s", channel.String()), SessionID: sess.ID()}
}

// Stop ends the session in channelID. The registry entry goes immediately;
// the identity is released once the transport is torn down.
func (s *Service) Stop(ctx context.Context, channelID string) Reply {
	entry, ok := s.registry.Unregister(channelID)
	if !ok {
		return Reply{Text: "no active recording in your channel"}
	}
	return s.stopEntry(ctx, entry)
}

// StopAll stops every registered session.
func (s *Service) StopAll(ctx context.Context) []Reply {
	entries := s.registry.Entries()
	replies := make([]Reply, 0, len(entries))
	for _, entry := range entries {
		if _, ok := s.registry.Unregister(entry.ChannelID); !ok {
			continue
		}
		replies = append(replies, s.stopEntry(ctx, entry))
	}
	return replies
}

// MembershipChanged reacts to a voice-state update in channelID. When no
// humans remain, the channel's session is stopped and unregistered. It
// reports whether a stop happened.
func (s *Service) MembershipChanged(ctx context.Context, channelID string, humans int) bool {
	if humans > 0 || channelID == "" {
		return false
	}
	entry, ok := s.registry.Unregister(channelID)
	if !ok {
		return false
	}
	s.logger.Info("channel empty, stopping recording", "channel_id", channelID, "identity", entry.Identity)
	s.stopEntry(ctx, entry)
	return true
}

// Sessions snapshots live sessions ordered by channel id.
func (s *Service) Sessions() []session.Info {
	entries := s.registry.Entries()
	infos := make([]session.Info, 0, len(entries))
	for _, entry := range entries {
		infos = append(infos, entry.Session.Info())
	}
	return infos
}

// Active reports whether channelID has a registered session.
func (s *Service) Active(channelID string) bool {
	_, ok := s.registry.Lookup(channelID)
	return ok
}

// Shutdown rejects new recordings, stops every session, then waits for
// post-processing until ctx ends.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	stopped := s.StopAll(ctx)
	s.logger.Info("stopped sessions for shutdown", "count", len(stopped))

	if err := s.tasks.Shutdown(ctx); err != nil {
		return fmt.Errorf("wait for post-processing: %w", err)
	}
	return nil
}

func (s *Service) stopEntry(ctx context.Context, entry pool.Entry[*session.Session]) Reply {
	sess := entry.Session

	// An aborted connect is released by the Record call that owns it.
	result, err := sess.Stop(ctx)
	if !result.ConnectAborted {
		s.workers.Release(entry.Identity, entry.GroupID)
	}
	if err != nil {
		s.logger.Error("stop recording failed", "channel_id", entry.ChannelID, "error", err.Error())
		return Reply{Text: "could not stop recording", Err: err, SessionID: sess.ID()}
	}

	switch {
	case result.ConnectAborted:
		return Reply{OK: true, Text: "stopping recording", SessionID: sess.ID()}
	case result.Handle != nil:
		return Reply{OK: true, Text: "recording stopped, preparing transcript", SessionID: sess.ID()}
	default:
		return Reply{OK: true, Text: "recording stopped", SessionID: sess.ID()}
	}
}

// unregister removes channelID only if it still maps to sess.
func (s *Service) unregister(channelID string, sess *session.Session) {
	entry, ok := s.registry.Lookup(channelID)
	if ok && entry.Session == sess {
		s.registry.Unregister(channelID)
	}
}

func (s *Service) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func alreadyRecording(channel voice.ChannelRef) string {
	return channel.String() + " is already being recorded"
}
