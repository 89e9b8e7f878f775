// Package capture records per-speaker audio for one session.
package capture

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/rbright/huddle/internal/voice"
)

var (
	// ErrCaptureIO marks a sink failure that ended one speaker's capture early.
	ErrCaptureIO = errors.New("capture io")
	// ErrCaptureDecode marks a frame that could not be decoded and was skipped.
	ErrCaptureDecode = errors.New("capture decode")
)

// Record is one finalized, non-empty speaker capture.
type Record struct {
	SpeakerID    string
	DisplayName  string
	Path         string
	StartOffset  time.Duration
	Duration     time.Duration
	Bytes        int64
	DecodeErrors int
}

// SpeakerCapture consumes one speaker's frame stream into a sink.
type SpeakerCapture struct {
	speakerID   string
	displayName string
	path        string
	offset      time.Duration
	startedAt   time.Time

	stream  voice.FrameStream
	decoder Decoder
	sink    Sink
	logger  *slog.Logger
	now     func() time.Time

	stop chan struct{}
	done chan struct{}
	// named is closed once displayName is final.
	named chan struct{}

	frames       int
	decodeErrors int
	ioErr        error
}

// run drains frames until the stream ends, the capture is stopped, or the
// sink fails. Frames already buffered when stop arrives are still written.
// It always finalizes before returning.
func (c *SpeakerCapture) run() (Record, bool) {
	defer close(c.done)

	frames := c.stream.Frames()
loop:
	for {
		select {
		case <-c.stop:
			c.drain(frames)
			break loop
		case frame, ok := <-frames:
			if !ok {
				if err := c.stream.Err(); err != nil {
					c.logWarn("speaker stream ended with error", "error", err.Error())
				}
				break loop
			}
			if !c.consume(frame) {
				break loop
			}
		}
	}

	return c.finalize()
}

func (c *SpeakerCapture) drain(frames <-chan []byte) {
	for {
		select {
		case frame, ok := <-frames:
			if !ok || !c.consume(frame) {
				return
			}
		default:
			return
		}
	}
}

// consume decodes and writes one frame. It returns false once the sink failed.
func (c *SpeakerCapture) consume(frame []byte) bool {
	c.frames++
	samples, err := c.decoder.Decode(frame)
	if err != nil {
		c.decodeErrors++
		c.logDebug("skip frame", "error", fmt.Errorf("%w: %w", ErrCaptureDecode, err).Error())
		return true
	}
	if len(samples) == 0 {
		return true
	}
	if err := c.sink.Write(samples); err != nil {
		c.ioErr = fmt.Errorf("write %s: %w: %w", c.path, ErrCaptureIO, err)
		c.logError("speaker capture failed", "error", c.ioErr.Error())
		return false
	}
	return true
}

// finalize closes the decoder and sink and drops empty captures.
func (c *SpeakerCapture) finalize() (Record, bool) {
	if closer, ok := c.decoder.(interface{ Close() error }); ok {
		_ = closer.Close()
	}
	if err := c.sink.Close(); err != nil {
		c.logError("close capture file", "error", fmt.Errorf("%w: %w", ErrCaptureIO, err).Error())
	}

	<-c.named
	written := c.sink.Bytes()
	if written == 0 {
		if err := os.Remove(c.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			c.logWarn("remove empty capture", "error", err.Error())
		}
		c.logDebug("discarded empty capture", "frames", c.frames)
		return Record{}, false
	}

	record := Record{
		SpeakerID:    c.speakerID,
		DisplayName:  c.displayName,
		Path:         c.path,
		StartOffset:  c.offset,
		Duration:     c.now().Sub(c.startedAt),
		Bytes:        written,
		DecodeErrors: c.decodeErrors,
	}
	c.logInfo("saved speaker capture",
		"bytes", written,
		"frames", c.frames,
		"decode_errors", c.decodeErrors,
		"offset_ms", c.offset.Milliseconds(),
	)
	return record, true
}

func (c *SpeakerCapture) setDisplayName(name string) {
	c.displayName = name
	close(c.named)
}

func (c *SpeakerCapture) logDebug(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Debug(msg, args...)
	}
}

func (c *SpeakerCapture) logInfo(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Info(msg, args...)
	}
}

func (c *SpeakerCapture) logWarn(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Warn(msg, args...)
	}
}

func (c *SpeakerCapture) logError(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Error(msg, args...)
	}
}
