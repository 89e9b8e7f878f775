package capture

import (
	"fmt"

	"github.com/hraban/opus"
)

// Decoder turns one encoded frame into interleaved PCM samples.
type Decoder interface {
	Decode(frame []byte) ([]int16, error)
}

// DecoderFactory builds one decoder per speaker stream.
type DecoderFactory func() (Decoder, error)

// maxFrameSamples is 120ms at 48kHz, the largest Opus frame.
const maxFrameSamples = 5760

type opusDecoder struct {
	dec      *opus.Decoder
	channels int
	pcm      []int16
}

// NewOpusDecoder builds an Opus decoder for sampleRate and channels.
func NewOpusDecoder(sampleRate int, channels int) (Decoder, error) {
	dec, err := opus.NewDecoder(sampleRate, channels)
	if err != nil {
		return nil, fmt.Errorf("create opus decoder: %w", err)
	}
	return &opusDecoder{
		dec:      dec,
		channels: channels,
		pcm:      make([]int16, maxFrameSamples*channels),
	}, nil
}

// OpusFactory returns a DecoderFactory for NewOpusDecoder.
func OpusFactory(sampleRate int, channels int) DecoderFactory {
	return func() (Decoder, error) {
		return NewOpusDecoder(sampleRate, channels)
	}
}

// Decode returns samples that stay valid until the next call.
func (d *opusDecoder) Decode(frame []byte) ([]int16, error) {
	if len(frame) == 0 {
		return nil, nil
	}
	n, err := d.dec.Decode(frame, d.pcm)
	if err != nil {
		return nil, fmt.Errorf("decode opus frame: %w", err)
	}
	return d.pcm[:n*d.channels], nil
}
