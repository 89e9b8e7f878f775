// Package media converts and mixes per-speaker captures with ffmpeg.
package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rbright/huddle/internal/command"
)

// Input is one capture to mix, delayed by its offset from session start.
type Input struct {
	Path   string
	Offset time.Duration
}

// FFmpeg builds and runs ffmpeg invocations for raw s16le or container inputs.
type FFmpeg struct {
	Binary     string
	Bitrate    string
	SampleRate int
	Channels   int
	Run        command.Runner
}

// New returns an FFmpeg with defaults applied for empty fields.
func New(binary string, bitrate string) FFmpeg {
	f := FFmpeg{Binary: binary, Bitrate: bitrate}
	return f.withDefaults()
}

func (f FFmpeg) withDefaults() FFmpeg {
	if strings.TrimSpace(f.Binary) == "" {
		f.Binary = "ffmpeg"
	}
	if strings.TrimSpace(f.Bitrate) == "" {
		f.Bitrate = "64k"
	}
	if f.SampleRate <= 0 {
		f.SampleRate = 48000
	}
	if f.Channels <= 0 {
		f.Channels = 2
	}
	if f.Run == nil {
		f.Run = command.Run
	}
	return f
}

// ConvertedPath is the mp3 path Convert writes for input.
func ConvertedPath(input string) string {
	ext := filepath.Ext(input)
	return strings.TrimSuffix(input, ext) + ".mp3"
}

// ConvertArgs returns the ffmpeg arguments for a mono speech mp3.
func (f FFmpeg) ConvertArgs(input string, output string) []string {
	f = f.withDefaults()
	args := []string{"-y"}
	args = append(args, f.inputArgs(input)...)
	args = append(args, "-ac", "1", "-ab", f.Bitrate, "-f", "mp3", output)
	return args
}

// Convert transcodes input to a mono mp3 next to it and returns the new path.
func (f FFmpeg) Convert(ctx context.Context, input string) (string, error) {
	f = f.withDefaults()
	output := ConvertedPath(input)
	if output == input {
		return input, nil
	}
	argv := append([]string{f.Binary}, f.ConvertArgs(input, output)...)
	if _, err := f.Run(ctx, argv, ""); err != nil {
		return "", fmt.Errorf("convert %s: %w", filepath.Base(input), err)
	}
	return output, nil
}

// MixArgs returns the ffmpeg arguments that delay each input by its offset
// and sum them without gain normalization.
func (f FFmpeg) MixArgs(inputs []Input, output string) []string {
	f = f.withDefaults()
	args := []string{"-y"}
	filters := make([]string, 0, len(inputs)+1)
	labels := make([]string, 0, len(inputs))

	for i, input := range inputs {
		args = append(args, f.inputArgs(input.Path)...)

		delay := input.Offset.Milliseconds()
		if delay < 0 {
			delay = 0
		}
		in := fmt.Sprintf("[%d:a]", i)
		if delay > 0 {
			delayed := fmt.Sprintf("[d%d]", i)
			filters = append(filters, fmt.Sprintf("%sadelay=%d|%d%s", in, delay, delay, delayed))
			labels = append(labels, delayed)
			continue
		}
		labels = append(labels, in)
	}

	filters = append(filters, strings.Join(labels, "")+"amix=inputs="+strconv.Itoa(len(inputs))+":dropout_transition=0:normalize=0[out]")
	args = append(args,
		"-filter_complex", strings.Join(filters, ";"),
		"-map", "[out]",
		"-ac", "1",
		"-ab", f.Bitrate,
		"-f", "mp3",
		output,
	)
	return args
}

// Mix merges inputs into output. No inputs is a no-op returning "". A single
// input with no offset is converted and moved to output; with an offset it
// goes through the mix filter so the leading delay is kept.
func (f FFmpeg) Mix(ctx context.Context, inputs []Input, output string) (string, error) {
	f = f.withDefaults()
	switch {
	case len(inputs) == 0:
		return "", nil
	case len(inputs) == 1 && inputs[0].Offset.Milliseconds() <= 0:
		converted, err := f.Convert(ctx, inputs[0].Path)
		if err != nil {
			return "", err
		}
		if err := os.Rename(converted, output); err != nil {
			return "", fmt.Errorf("move mixed audio: %w", err)
		}
		return output, nil
	}

	argv := append([]string{f.Binary}, f.MixArgs(inputs, output)...)
	if _, err := f.Run(ctx, argv, ""); err != nil {
		return "", fmt.Errorf("mix %d inputs: %w", len(inputs), err)
	}
	return output, nil
}

// inputArgs declares the raw sample layout for .pcm captures.
func (f FFmpeg) inputArgs(path string) []string {
	if strings.EqualFold(filepath.Ext(path), ".pcm") {
		return []string{"-f", "s16le", "-ar", strconv.Itoa(f.SampleRate), "-ac", strconv.Itoa(f.Channels), "-i", path}
	}
	return []string{"-i", path}
}
