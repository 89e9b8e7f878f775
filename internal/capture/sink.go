package capture

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Format selects the on-disk container for per-speaker captures.
type Format string

const (
	FormatPCM Format = "pcm"
	FormatWAV Format = "wav"
)

// Extension returns the file extension (with dot) for the format.
func (f Format) Extension() string {
	if f == FormatWAV {
		return ".wav"
	}
	return ".pcm"
}

// Sink receives decoded samples for one speaker.
type Sink interface {
	Write(samples []int16) error
	// Bytes reports how many sample bytes were written, excluding headers.
	Bytes() int64
	Close() error
}

// OpenSink creates path and returns a sink writing format.
func OpenSink(path string, format Format, sampleRate int, channels int) (Sink, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open capture file %q: %w", path, err)
	}
	switch format {
	case FormatWAV:
		return &wavSink{
			file: file,
			enc:  wav.NewEncoder(file, sampleRate, 16, channels, 1),
			format: &audio.Format{
				NumChannels: channels,
				SampleRate:  sampleRate,
			},
		}, nil
	default:
		return &pcmSink{file: file, w: bufio.NewWriterSize(file, 64*1024)}, nil
	}
}

// pcmSink writes raw s16le samples.
type pcmSink struct {
	file    *os.File
	w       *bufio.Writer
	written int64
	scratch []byte
}

func (s *pcmSink) Write(samples []int16) error {
	need := len(samples) * 2
	if cap(s.scratch) < need {
		s.scratch = make([]byte, need)
	}
	buf := s.scratch[:need]
	for i, sample := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(sample))
	}
	n, err := s.w.Write(buf)
	s.written += int64(n)
	return err
}

func (s *pcmSink) Bytes() int64 {
	return s.written
}

func (s *pcmSink) Close() error {
	flushErr := s.w.Flush()
	closeErr := s.file.Close()
	if flushErr != nil {
		return fmt.Errorf("flush capture file: %w", flushErr)
	}
	return closeErr
}

// wavSink writes 16-bit PCM WAV through go-audio.
type wavSink struct {
	file    *os.File
	enc     *wav.Encoder
	format  *audio.Format
	written int64
	buf     audio.IntBuffer
}

func (s *wavSink) Write(samples []int16) error {
	if len(samples) == 0 {
		return nil
	}
	if cap(s.buf.Data) < len(samples) {
		s.buf.Data = make([]int, len(samples))
	}
	s.buf.Data = s.buf.Data[:len(samples)]
	for i, sample := range samples {
		s.buf.Data[i] = int(sample)
	}
	s.buf.Format = s.format
	s.buf.SourceBitDepth = 16
	if err := s.enc.Write(&s.buf); err != nil {
		return err
	}
	s.written += int64(len(samples) * 2)
	return nil
}

func (s *wavSink) Bytes() int64 {
	return s.written
}

func (s *wavSink) Close() error {
	encErr := s.enc.Close()
	closeErr := s.file.Close()
	if encErr != nil {
		return fmt.Errorf("finalize wav header: %w", encErr)
	}
	return closeErr
}
