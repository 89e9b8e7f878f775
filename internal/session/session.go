// Package session drives one recording from voice connect through post-processing.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rbright/huddle/internal/capture"
	"github.com/rbright/huddle/internal/fsm"
	"github.com/rbright/huddle/internal/names"
	"github.com/rbright/huddle/internal/pipeline"
	"github.com/rbright/huddle/internal/tasks"
	"github.com/rbright/huddle/internal/voice"
)

// Notifier posts status messages to the channel that started the session.
type Notifier = pipeline.Notifier

// Processor runs post-processing for a stopped session.
type Processor interface {
	Process(ctx context.Context, job pipeline.Job) (pipeline.Output, error)
}

// ConnectPolicy bounds voice connection attempts.
type ConnectPolicy struct {
	Attempts      int
	Timeout       time.Duration
	BackoffBase   time.Duration
	BackoffJitter time.Duration
}

// DefaultConnectPolicy is three 15s attempts with 1-3s between them.
func DefaultConnectPolicy() ConnectPolicy {
	return ConnectPolicy{
		Attempts:      3,
		Timeout:       15 * time.Second,
		BackoffBase:   time.Second,
		BackoffJitter: 2 * time.Second,
	}
}

// Options wires one Session.
type Options struct {
	Channel  voice.ChannelRef
	Identity string
	Dialer   voice.Dialer
	Notifier Notifier

	Processor Processor
	Tasks     *tasks.Pool

	RecordingsDir string
	Location      *time.Location
	Connect       ConnectPolicy

	CaptureFormat capture.Format
	NewDecoder    capture.DecoderFactory
	Names         []names.Source
	// NameCache keeps names resolved during capture for later sessions and
	// post-processing.
	NameCache *names.Cache

	Observer Observer
	Logger   *slog.Logger

	Now    func() time.Time
	Sleep  func(context.Context, time.Duration) error
	Jitter func() float64
}

// Session is the state machine for one recording in one channel.
type Session struct {
	opts   Options
	logger *slog.Logger

	mu            sync.Mutex
	state         fsm.State
	id            string
	dir           string
	startedAt     time.Time
	conn          voice.Connection
	manager       *capture.Manager
	cancelConnect context.CancelFunc
	stopRequested bool
	handle        *tasks.Handle
	records       []capture.Record
}

// New builds an idle session. Nothing is touched until Start.
func New(opts Options) *Session {
	defaults := DefaultConnectPolicy()
	if opts.Connect.Attempts <= 0 {
		opts.Connect.Attempts = defaults.Attempts
	}
	if opts.Connect.Timeout <= 0 {
		opts.Connect.Timeout = defaults.Timeout
	}
	if opts.Connect.BackoffBase < 0 {
		opts.Connect.BackoffBase = 0
	}
	if opts.Connect.BackoffJitter < 0 {
		opts.Connect.BackoffJitter = 0
	}
	if opts.Notifier == nil {
		opts.Notifier = pipeline.NopNotifier{}
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.RecordingsDir == "" {
		opts.RecordingsDir = "recordings"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Sleep == nil {
		opts.Sleep = sleep
	}
	if opts.Jitter == nil {
		opts.Jitter = rand.Float64
	}
	if opts.Tasks == nil {
		opts.Tasks = tasks.New(opts.Logger, 1)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	logger = logger.With(
		"component", "session",
		"guild_id", opts.Channel.GroupID,
		"channel_id", opts.Channel.ChannelID,
		"identity", opts.Identity,
	)

	return &Session{opts: opts, logger: logger, state: fsm.StateIdle}
}

// State returns the current lifecycle state.
func (s *Session) State() fsm.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ID returns the session id; empty before Start.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// Dir returns the session working directory; empty before Start.
func (s *Session) Dir() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dir
}

func (s *Session) Channel() voice.ChannelRef { return s.opts.Channel }

func (s *Session) Identity() string { return s.opts.Identity }

// Info is a point-in-time view for status output.
type Info struct {
	ID        string
	Channel   voice.ChannelRef
	Identity  string
	State     fsm.State
	StartedAt time.Time
	Speakers  int
}

// Info snapshots the session.
func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	speakers := len(s.records)
	if s.manager != nil && s.state == fsm.StateActive {
		speakers = len(s.manager.Records()) + s.manager.Active()
	}
	return Info{
		ID:        s.id,
		Channel:   s.opts.Channel,
		Identity:  s.opts.Identity,
		State:     s.state,
		StartedAt: s.startedAt,
		Speakers:  speakers,
	}
}

// Start connects with retries and begins capturing. On failure the session
// ends in aborted_connect and the error is a ConnectExhaustedError, or wraps
// ErrConnectAborted when Stop interrupted the connect.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if err := s.transition(fsm.EventStart); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: %w", ErrAlreadyStarted, err)
	}
	connectCtx, cancel := context.WithCancel(ctx)
	s.cancelConnect = cancel
	s.mu.Unlock()
	defer cancel()

	if err := s.prepare(); err != nil {
		s.abort(err)
		return err
	}
	s.logger.Info("session starting", "session_id", s.ID(), "dir", s.Dir())

	conn, err := s.connect(connectCtx)
	if err != nil {
		s.abort(err)
		return err
	}

	s.mu.Lock()
	if s.stopRequested {
		s.mu.Unlock()
		_ = conn.Close()
		err := fmt.Errorf("%w: stop requested", ErrConnectAborted)
		s.abort(err)
		return err
	}
	if err := s.transition(fsm.EventConnected); err != nil {
		s.mu.Unlock()
		_ = conn.Close()
		s.abort(err)
		return err
	}
	s.conn = conn
	s.manager = capture.NewManager(conn, capture.Options{
		Dir:        s.dir,
		StartedAt:  s.startedAt,
		Format:     s.opts.CaptureFormat,
		NewDecoder: s.opts.NewDecoder,
		Names:      s.opts.Names,
		Cache:      s.opts.NameCache,
		Logger:     s.logger.With("session_id", s.id),
		Now:        s.opts.Now,
	})
	s.manager.Start()
	s.cancelConnect = nil
	startedAt := s.startedAt
	s.mu.Unlock()

	s.logger.Info("recording started", "session_id", s.ID(), "channel", s.opts.Channel.String())
	s.notify(ctx, StartedNotice(startedAt, s.opts.Location))
	return nil
}

// prepare assigns the session id and creates its exclusive directory.
func (s *Session) prepare() error {
	startedAt := s.opts.Now().In(s.opts.Location)
	id := startedAt.Format(pipeline.SessionIDLayout)

	if err := os.MkdirAll(s.opts.RecordingsDir, 0o755); err != nil {
		return fmt.Errorf("create recordings dir: %w", err)
	}
	dir := filepath.Join(s.opts.RecordingsDir, id)
	if err := os.Mkdir(dir, 0o755); err != nil {
		if !errors.Is(err, os.ErrExist) {
			return fmt.Errorf("create session dir: %w", err)
		}
		id = id + "_" + uuid.NewString()[:8]
		dir = filepath.Join(s.opts.RecordingsDir, id)
		if err := os.Mkdir(dir, 0o755); err != nil {
			return fmt.Errorf("create session dir: %w", err)
		}
	}

	s.mu.Lock()
	s.id = id
	s.dir = dir
	s.startedAt = startedAt
	s.mu.Unlock()
	return nil
}

func (s *Session) connect(ctx context.Context) (voice.Connection, error) {
	policy := s.opts.Connect
	var lastErr error

	for attempt := 1; attempt <= policy.Attempts; attempt++ {
		s.logger.Info("connecting to voice channel", "attempt", attempt, "max_attempts", policy.Attempts)

		attemptCtx, cancel := context.WithTimeout(ctx, policy.Timeout)
		conn, err := s.opts.Dialer.Dial(attemptCtx, s.opts.Channel)
		cancel()
		if err == nil && conn != nil {
			return conn, nil
		}
		if err == nil {
			err = errors.New("dialer returned no connection")
		}
		if conn != nil {
			_ = conn.Close()
		}

		lastErr = &TransientConnectError{Attempt: attempt, Err: err}
		s.logger.Warn("voice connect attempt failed", "attempt", attempt, "error", err.Error())

		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", ErrConnectAborted, ctx.Err())
		}
		if attempt == policy.Attempts {
			break
		}

		delay := policy.BackoffBase + time.Duration(s.opts.Jitter()*float64(policy.BackoffJitter))
		s.logger.Info("retrying voice connect", "delay_ms", delay.Milliseconds())
		if err := s.opts.Sleep(ctx, delay); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrConnectAborted, err)
		}
	}

	s.logger.Error("voice connect failed after all retries", "error", lastErr.Error())
	return nil, &ConnectExhaustedError{Attempts: policy.Attempts, Err: lastErr}
}

// abort moves a connecting session to aborted_connect and removes its empty dir.
func (s *Session) abort(cause error) {
	s.mu.Lock()
	_ = s.transition(fsm.EventAbort)
	s.cancelConnect = nil
	dir := s.dir
	s.mu.Unlock()

	if dir != "" {
		_ = os.Remove(dir)
	}
	s.observe(Summary{Err: cause})
}

// StopResult reports what Stop did.
type StopResult struct {
	// Handle tracks post-processing; nil when nothing was recorded.
	Handle *tasks.Handle
	// ConnectAborted is set when Stop found the session still connecting.
	// The pending Start then fails and owns the teardown.
	ConnectAborted bool
}

// Stop ends the session. While connecting it cancels the pending connect.
// While active it finalizes captures, closes the transport, and launches
// post-processing, returning its handle without waiting. Repeated calls
// return the same handle; a session with no audio returns nil.
func (s *Session) Stop(ctx context.Context) (StopResult, error) {
	s.mu.Lock()
	switch s.state {
	case fsm.StateConnecting:
		s.stopRequested = true
		if s.cancelConnect != nil {
			s.cancelConnect()
		}
		s.mu.Unlock()
		s.logger.Info("stop requested while connecting")
		return StopResult{ConnectAborted: true}, nil
	case fsm.StateActive:
	default:
		handle := s.handle
		s.mu.Unlock()
		return StopResult{Handle: handle}, nil
	}

	if err := s.transition(fsm.EventStop); err != nil {
		s.mu.Unlock()
		return StopResult{}, err
	}
	manager := s.manager
	conn := s.conn
	s.mu.Unlock()

	s.logger.Info("stopping recording", "session_id", s.ID())
	records := manager.Stop()
	if err := conn.Close(); err != nil {
		s.logger.Warn("voice disconnect failed", "error", err.Error())
	}
	s.logger.Info("left voice channel", "files", len(records))

	s.mu.Lock()
	s.records = records
	s.conn = nil
	if err := s.transition(fsm.EventReleased); err != nil {
		s.mu.Unlock()
		return StopResult{}, err
	}

	if len(records) == 0 {
		_ = s.transition(fsm.EventFinish)
		s.mu.Unlock()
		s.logger.Warn("no audio recorded, skipping transcription")
		s.notify(ctx, pipeline.NoticeNoAudio)
		s.observe(Summary{})
		return StopResult{}, nil
	}

	job := pipeline.Job{
		SessionID: s.id,
		Dir:       s.dir,
		StartedAt: s.startedAt,
		Zone:      s.opts.Location.String(),
		Records:   records,
		Notifier:  s.opts.Notifier,
	}
	s.handle = s.opts.Tasks.Go("post-process "+s.id, func(taskCtx context.Context) error {
		return s.postProcess(taskCtx, job)
	})
	handle := s.handle
	s.mu.Unlock()

	return StopResult{Handle: handle}, nil
}

func (s *Session) postProcess(ctx context.Context, job pipeline.Job) error {
	var (
		output pipeline.Output
		err    error
	)
	if s.opts.Processor == nil {
		err = errors.New("no post-processor configured")
		s.notify(ctx, pipeline.NoticeTranscriptFailed)
	} else {
		output, err = s.opts.Processor.Process(ctx, job)
	}

	s.mu.Lock()
	_ = s.transition(fsm.EventFinish)
	s.mu.Unlock()

	s.observe(Summary{TranscriptPath: output.TranscriptPath, Err: err})
	return err
}

// transition applies one FSM event; callers hold s.mu.
func (s *Session) transition(event fsm.Event) error {
	next, err := fsm.Transition(s.state, event)
	if err != nil {
		return err
	}
	s.logger.Debug("session transition", "from", s.state, "event", event, "to", next)
	s.state = next
	return nil
}

func (s *Session) notify(ctx context.Context, text string) {
	if err := s.opts.Notifier.Send(ctx, text); err != nil {
		s.logger.Error("failed to send message", "error", err.Error())
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
