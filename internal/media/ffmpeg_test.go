package media

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rbright/huddle/internal/command"
	"github.com/stretchr/testify/require"
)

func TestConvertArgsForRawPCM(t *testing.T) {
	f := New("", "")
	require.Equal(t, []string{
		"-y", "-f", "s16le", "-ar", "48000", "-ac", "2", "-i", "/r/1_2.pcm",
		"-ac", "1", "-ab", "64k", "-f", "mp3", "/r/1_2.mp3",
	}, f.ConvertArgs("/r/1_2.pcm", "/r/1_2.mp3"))
}

func TestConvertArgsForContainerInput(t *testing.T) {
	f := New("ffmpeg", "96k")
	args := f.ConvertArgs("/r/a.wav", "/r/a.mp3")
	require.Equal(t, []string{"-y", "-i", "/r/a.wav", "-ac", "1", "-ab", "96k", "-f", "mp3", "/r/a.mp3"}, args)
}

func TestMixArgsDelaysByOffset(t *testing.T) {
	f := New("", "")
	args := f.MixArgs([]Input{
		{Path: "a.pcm", Offset: 0},
		{Path: "b.pcm", Offset: 5250 * time.Millisecond},
		{Path: "c.wav", Offset: -time.Second},
	}, "merged.mp3")

	joined := strings.Join(args, " ")
	require.Contains(t, joined, "-f s16le -ar 48000 -ac 2 -i a.pcm")
	require.Contains(t, joined, "-i c.wav")
	require.Contains(t, args, "[1:a]adelay=5250|5250[d1];[0:a][d1][2:a]amix=inputs=3:dropout_transition=0:normalize=0[out]")
	require.Equal(t, []string{"-map", "[out]", "-ac", "1", "-ab", "64k", "-f", "mp3", "merged.mp3"}, args[len(args)-9:])
}

func TestMixNoInputsIsNoop(t *testing.T) {
	calls := 0
	f := FFmpeg{Run: func(context.Context, []string, string) (command.Result, error) {
		calls++
		return command.Result{}, nil
	}}
	out, err := f.Mix(context.Background(), nil, "x.mp3")
	require.NoError(t, err)
	require.Empty(t, out)
	require.Zero(t, calls)
}

func TestMixSingleInputConvertsAndMoves(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "1_100.pcm")
	require.NoError(t, os.WriteFile(input, []byte{1, 2}, 0o600))

	var got []string
	f := FFmpeg{Run: func(_ context.Context, argv []string, _ string) (command.Result, error) {
		got = argv
		return command.Result{}, os.WriteFile(argv[len(argv)-1], []byte("mp3"), 0o600)
	}}

	output := filepath.Join(dir, "recording_merged.mp3")
	out, err := f.Mix(context.Background(), []Input{{Path: input}}, output)
	require.NoError(t, err)
	require.Equal(t, output, out)
	require.Equal(t, "ffmpeg", got[0])
	require.NotContains(t, strings.Join(got, " "), "amix")

	_, err = os.Stat(ConvertedPath(input))
	require.True(t, os.IsNotExist(err))
	data, err := os.ReadFile(output)
	require.NoError(t, err)
	require.Equal(t, "mp3", string(data))
}

func TestMixSingleInputKeepsOffset(t *testing.T) {
	var got []string
	f := FFmpeg{Run: func(_ context.Context, argv []string, _ string) (command.Result, error) {
		got = argv
		return command.Result{}, nil
	}}

	out, err := f.Mix(context.Background(), []Input{{Path: "1_100.pcm", Offset: 1500 * time.Millisecond}}, "merged.mp3")
	require.NoError(t, err)
	require.Equal(t, "merged.mp3", out)
	require.Contains(t, got, "[0:a]adelay=1500|1500[d0];[d0]amix=inputs=1:dropout_transition=0:normalize=0[out]")
	require.Equal(t, "merged.mp3", got[len(got)-1])
}

func TestMixPropagatesExitFailure(t *testing.T) {
	f := FFmpeg{Run: func(context.Context, []string, string) (command.Result, error) {
		return command.Result{ExitCode: 1}, &command.ExitError{Name: "ffmpeg", Code: 1}
	}}
	_, err := f.Mix(context.Background(), []Input{{Path: "a.pcm"}, {Path: "b.pcm"}}, "out.mp3")
	require.Error(t, err)

	var exitErr *command.ExitError
	require.True(t, errors.As(err, &exitErr))
	require.Contains(t, err.Error(), "mix 2 inputs")
}

func TestConvertWithFakeBinaryOnPath(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "ffmpeg")
	body := "#!/usr/bin/env bash\nset -euo pipefail\nfor last; do :; done\necho converted > \"$last\"\n"
	require.NoError(t, os.WriteFile(script, []byte(body), 0o755))
	t.Setenv("PATH", dir+":"+os.Getenv("PATH"))

	input := filepath.Join(t.TempDir(), "7_1.pcm")
	require.NoError(t, os.WriteFile(input, []byte{0, 0}, 0o600))

	out, err := New("", "").Convert(context.Background(), input)
	require.NoError(t, err)
	require.Equal(t, ConvertedPath(input), out)
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	require.Equal(t, "converted\n", string(data))
}

func TestConvertedPath(t *testing.T) {
	require.Equal(t, "/a/b_1.mp3", ConvertedPath("/a/b_1.pcm"))
	require.Equal(t, "/a/b.mp3", ConvertedPath("/a/b.wav"))
}
