// Package voicetest provides an in-memory voice transport for tests.
package voicetest

import (
	"context"
	"errors"
	"sync"

	"github.com/rbright/huddle/internal/voice"
)

// ErrClosed is returned when interacting with a closed connection.
var ErrClosed = errors.New("voicetest: connection closed")

// Conn is an in-memory voice.Connection driven by the test.
type Conn struct {
	mu       sync.Mutex
	speaking chan string
	streams  map[string]*Stream
	closed   bool
	closes   int
}

// NewConn builds an open in-memory connection.
func NewConn() *Conn {
	return &Conn{
		speaking: make(chan string, 64),
		streams:  make(map[string]*Stream),
	}
}

func (c *Conn) SpeakingStarts() <-chan string {
	return c.speaking
}

func (c *Conn) Subscribe(speakerID string) voice.FrameStream {
	return c.stream(speakerID)
}

// Close ends every stream and the speaking channel. It is safe to call twice.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closes++
	if c.closed {
		return nil
	}
	c.closed = true
	close(c.speaking)
	for _, s := range c.streams {
		s.end(nil)
	}
	return nil
}

// Closed reports whether Close has been called.
func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Speak announces speaker activity.
func (c *Conn) Speak(speakerID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.speaking <- speakerID
	return nil
}

// Send delivers one encoded frame to speakerID's stream.
func (c *Conn) Send(speakerID string, frame []byte) error {
	s := c.stream(speakerID)
	return s.send(frame)
}

// End finishes speakerID's stream with err (nil for a normal end).
func (c *Conn) End(speakerID string, err error) {
	c.stream(speakerID).end(err)
}

func (c *Conn) stream(speakerID string) *Stream {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.streams[speakerID]
	if !ok {
		s = &Stream{frames: make(chan []byte, 256)}
		c.streams[speakerID] = s
		if c.closed {
			s.end(nil)
		}
	}
	return s
}

// Stream is one in-memory voice.FrameStream.
type Stream struct {
	mu     sync.Mutex
	frames chan []byte
	ended  bool
	err    error
}

func (s *Stream) Frames() <-chan []byte {
	return s.frames
}

func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Stream) send(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return ErrClosed
	}
	s.frames <- frame
	return nil
}

func (s *Stream) end(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.ended = true
	s.err = err
	close(s.frames)
}

// Dialer hands out scripted connections or errors, one per Dial call.
type Dialer struct {
	mu      sync.Mutex
	results []DialResult
	calls   int
	block   bool
}

// DialResult is one scripted Dial outcome.
type DialResult struct {
	Conn *Conn
	Err  error
}

// NewDialer builds a Dialer that replays results in order. Once exhausted the
// last result repeats.
func NewDialer(results ...DialResult) *Dialer {
	return &Dialer{results: results}
}

// Blocking makes Dial wait for context cancellation.
func (d *Dialer) Blocking() *Dialer {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.block = true
	return d
}

func (d *Dialer) Dial(ctx context.Context, _ voice.ChannelRef) (voice.Connection, error) {
	d.mu.Lock()
	d.calls++
	block := d.block
	var result DialResult
	if len(d.results) > 0 {
		idx := d.calls - 1
		if idx >= len(d.results) {
			idx = len(d.results) - 1
		}
		result = d.results[idx]
	}
	d.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if result.Err != nil {
		return nil, result.Err
	}
	if result.Conn == nil {
		return NewConn(), nil
	}
	return result.Conn, nil
}

// Calls returns how many times Dial was invoked.
func (d *Dialer) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}
