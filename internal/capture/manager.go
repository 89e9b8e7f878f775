package capture

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/rbright/huddle/internal/names"
	"github.com/rbright/huddle/internal/voice"
)

// Options configures a Manager.
type Options struct {
	Dir        string
	StartedAt  time.Time
	Format     Format
	SampleRate int
	Channels   int
	NewDecoder DecoderFactory
	// Names are consulted once per speaker when their capture opens.
	Names []names.Source
	// Cache remembers names resolved here for later lookups.
	Cache *names.Cache
	// NameTimeout bounds one speaker's name lookup.
	NameTimeout time.Duration
	Logger      *slog.Logger
	Now         func() time.Time
}

const defaultNameTimeout = 5 * time.Second

// Manager owns every SpeakerCapture of one session.
type Manager struct {
	conn   voice.Connection
	opts   Options
	logger *slog.Logger

	mu      sync.Mutex
	active  map[string]*SpeakerCapture
	seen    map[string]struct{}
	records []Record
	stopped bool

	// ctx ends name lookups on Stop.
	ctx    context.Context
	cancel context.CancelFunc

	stopCh    chan struct{}
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
}

// NewManager binds a manager to a live connection. Call Start to begin listening.
func NewManager(conn voice.Connection, opts Options) *Manager {
	if opts.Format == "" {
		opts.Format = FormatPCM
	}
	if opts.SampleRate <= 0 {
		opts.SampleRate = 48000
	}
	if opts.Channels <= 0 {
		opts.Channels = 2
	}
	if opts.NewDecoder == nil {
		opts.NewDecoder = OpusFactory(opts.SampleRate, opts.Channels)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.StartedAt.IsZero() {
		opts.StartedAt = opts.Now()
	}
	if opts.NameTimeout <= 0 {
		opts.NameTimeout = defaultNameTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		conn:   conn,
		opts:   opts,
		logger: opts.Logger,
		active: make(map[string]*SpeakerCapture),
		seen:   make(map[string]struct{}),
		ctx:    ctx,
		cancel: cancel,
		stopCh: make(chan struct{}),
	}
}

// Start listens for speaker activity until Stop or connection close.
func (m *Manager) Start() {
	m.startOnce.Do(func() {
		m.wg.Add(1)
		go m.listen()
	})
}

func (m *Manager) listen() {
	defer m.wg.Done()
	speaking := m.conn.SpeakingStarts()
	for {
		select {
		case <-m.stopCh:
			return
		case speakerID, ok := <-speaking:
			if !ok {
				return
			}
			m.begin(speakerID)
		}
	}
}

// begin opens a capture on first activity. Speakers are captured at most once
// per session; activity after finalization is ignored. The display name is
// looked up in the background so a slow source never delays other speakers.
func (m *Manager) begin(speakerID string) {
	if speakerID == "" {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return
	}
	if _, ok := m.seen[speakerID]; ok {
		return
	}

	capture, err := m.open(speakerID)
	if err != nil {
		m.logError("start speaker capture", "speaker_id", speakerID, "error", err.Error())
		return
	}
	m.seen[speakerID] = struct{}{}
	m.active[speakerID] = capture

	m.wg.Add(2)
	go func() {
		defer m.wg.Done()
		capture.setDisplayName(m.lookup(speakerID))
	}()
	go func() {
		defer m.wg.Done()
		record, kept := capture.run()
		m.complete(speakerID, record, kept)
	}()
}

// lookup resolves speakerID within NameTimeout. Stop cuts it short and the
// placeholder is used; a source that ignores its context is abandoned.
func (m *Manager) lookup(speakerID string) string {
	if len(m.opts.Names) == 0 {
		return names.Fallback(speakerID)
	}
	ctx, cancel := context.WithTimeout(m.ctx, m.opts.NameTimeout)
	defer cancel()

	result := make(chan string, 1)
	go func() { result <- names.Resolve(ctx, speakerID, m.opts.Names...) }()

	select {
	case name := <-result:
		if m.opts.Cache != nil && !names.IsFallback(name, speakerID) {
			m.opts.Cache.Remember(speakerID, name)
		}
		m.logDebug("speaker named", "speaker_id", speakerID, "display_name", name)
		return name
	case <-ctx.Done():
		m.logWarn("speaker name lookup abandoned", "speaker_id", speakerID, "error", ctx.Err().Error())
		return names.Fallback(speakerID)
	}
}

func (m *Manager) open(speakerID string) (*SpeakerCapture, error) {
	now := m.opts.Now()

	offset := now.Sub(m.opts.StartedAt).Truncate(time.Millisecond)
	if offset < 0 {
		offset = 0
	}

	path := filepath.Join(m.opts.Dir, fmt.Sprintf("%s_%d%s", speakerID, now.UnixMilli(), m.opts.Format.Extension()))

	decoder, err := m.opts.NewDecoder()
	if err != nil {
		return nil, err
	}
	sink, err := OpenSink(path, m.opts.Format, m.opts.SampleRate, m.opts.Channels)
	if err != nil {
		return nil, err
	}

	var logger *slog.Logger
	if m.logger != nil {
		logger = m.logger.With("speaker_id", speakerID, "file", filepath.Base(path))
		logger.Info("recording speaker")
	}

	return &SpeakerCapture{
		speakerID: speakerID,
		path:      path,
		offset:    offset,
		startedAt: now,
		stream:    m.conn.Subscribe(speakerID),
		decoder:   decoder,
		sink:      sink,
		logger:    logger,
		now:       m.opts.Now,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
		named:     make(chan struct{}),
	}, nil
}

func (m *Manager) complete(speakerID string, record Record, kept bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.active, speakerID)
	if kept {
		m.records = append(m.records, record)
	}
}

// Stop finalizes every open capture and returns the manifest. Later calls
// return the same manifest.
func (m *Manager) Stop() []Record {
	m.stopOnce.Do(func() {
		m.mu.Lock()
		m.stopped = true
		m.cancel()
		close(m.stopCh)
		for _, capture := range m.active {
			close(capture.stop)
		}
		m.mu.Unlock()

		m.wg.Wait()
		m.logInfo("audio capture stopped", "files", len(m.Records()))
	})
	return m.Records()
}

// Records returns a copy of the manifest accumulated so far.
func (m *Manager) Records() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Record, len(m.records))
	copy(out, m.records)
	return out
}

// Active returns the number of captures still open.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

func (m *Manager) logInfo(msg string, args ...any) {
	if m.logger != nil {
		m.logger.Info(msg, args...)
	}
}

func (m *Manager) logDebug(msg string, args ...any) {
	if m.logger != nil {
		m.logger.Debug(msg, args...)
	}
}

func (m *Manager) logWarn(msg string, args ...any) {
	if m.logger != nil {
		m.logger.Warn(msg, args...)
	}
}

func (m *Manager) logError(msg string, args ...any) {
	if m.logger != nil {
		m.logger.Error(msg, args...)
	}
}
