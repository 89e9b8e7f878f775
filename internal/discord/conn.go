package discord

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/bwmarrin/discordgo"

	"github.com/rbright/huddle/internal/voice"
)

const (
	speakingBuffer = 64
	streamBuffer   = 256
)

// conn demultiplexes one voice connection's packets into per-user streams.
// Users are keyed through the SSRC announced in speaking updates.
type conn struct {
	logger     *slog.Logger
	disconnect func() error

	mu        sync.Mutex
	ssrcUsers map[uint32]string
	streams   map[string]*stream
	announced map[string]bool
	speaking  chan string
	closed    bool

	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
	closeErr  error

	unknown atomic.Int64
}

func newConn(packets <-chan *discordgo.Packet, disconnect func() error, logger *slog.Logger) *conn {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	c := &conn{
		logger:     logger,
		disconnect: disconnect,
		ssrcUsers:  make(map[uint32]string),
		streams:    make(map[string]*stream),
		announced:  make(map[string]bool),
		speaking:   make(chan string, speakingBuffer),
		done:       make(chan struct{}),
	}
	c.wg.Add(1)
	go c.run(packets)
	return c
}

func (c *conn) SpeakingStarts() <-chan string {
	return c.speaking
}

func (c *conn) Subscribe(speakerID string) voice.FrameStream {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.streamLocked(speakerID)
}

// Close disconnects from voice, ends every stream, and closes SpeakingStarts.
func (c *conn) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.disconnect != nil {
			c.closeErr = c.disconnect()
		}
		c.wg.Wait()

		c.mu.Lock()
		c.closed = true
		for _, s := range c.streams {
			s.end()
		}
		close(c.speaking)
		c.mu.Unlock()

		if n := c.unknown.Load(); n > 0 {
			c.logger.Debug("dropped packets from unmapped ssrc", "count", n)
		}
	})
	return c.closeErr
}

// speakingUpdate maps ssrc to userID and announces speech starts.
func (c *conn) speakingUpdate(userID string, ssrc int, speaking bool) {
	if userID == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if ssrc != 0 {
		c.ssrcUsers[uint32(ssrc)] = userID
	}
	if speaking {
		c.announceLocked(userID)
	}
}

func (c *conn) run(packets <-chan *discordgo.Packet) {
	defer c.wg.Done()
	for {
		select {
		case <-c.done:
			return
		case pkt, ok := <-packets:
			if !ok {
				return
			}
			c.route(pkt)
		}
	}
}

func (c *conn) route(pkt *discordgo.Packet) {
	if pkt == nil || len(pkt.Opus) == 0 {
		return
	}

	c.mu.Lock()
	userID, ok := c.ssrcUsers[pkt.SSRC]
	if !ok || c.closed {
		c.mu.Unlock()
		c.unknown.Add(1)
		return
	}
	if !c.announced[userID] {
		c.announceLocked(userID)
	}
	s := c.streamLocked(userID)
	c.mu.Unlock()

	s.send(append([]byte(nil), pkt.Opus...))
}

// announceLocked queues userID on SpeakingStarts without blocking.
func (c *conn) announceLocked(userID string) {
	c.announced[userID] = true
	select {
	case c.speaking <- userID:
	default:
		c.logger.Warn("speaking queue full, dropping start", "user_id", userID)
	}
}

func (c *conn) streamLocked(userID string) *stream {
	s, ok := c.streams[userID]
	if !ok {
		s = &stream{frames: make(chan []byte, streamBuffer)}
		c.streams[userID] = s
		if c.closed {
			s.end()
		}
	}
	return s
}

type stream struct {
	mu      sync.Mutex
	frames  chan []byte
	ended   bool
	dropped int64
}

func (s *stream) Frames() <-chan []byte {
	return s.frames
}

// Err is always nil; the gateway does not report per-user stream failures.
func (s *stream) Err() error {
	return nil
}

func (s *stream) send(frame []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	select {
	case s.frames <- frame:
	default:
		s.dropped++
	}
}

func (s *stream) end() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.ended = true
	close(s.frames)
}
