package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rbright/huddle/internal/capture"
	"github.com/rbright/huddle/internal/media"
	"github.com/rbright/huddle/internal/names"
	"github.com/rbright/huddle/internal/timeline"
	"github.com/rbright/huddle/internal/transcribe"
	"github.com/stretchr/testify/require"
)

type fakeMedia struct {
	mixErr  error
	mixed   []media.Input
	convert map[string]error
}

func (m *fakeMedia) Convert(_ context.Context, input string) (string, error) {
	if err := m.convert[input]; err != nil {
		return "", err
	}
	out := media.ConvertedPath(input)
	return out, os.WriteFile(out, []byte("mp3"), 0o600)
}

func (m *fakeMedia) Mix(_ context.Context, inputs []media.Input, output string) (string, error) {
	m.mixed = inputs
	if m.mixErr != nil {
		return "", m.mixErr
	}
	return output, os.WriteFile(output, []byte("mix"), 0o600)
}

type fakeTranscriber struct {
	results map[string]transcribe.Result
	errs    map[string]error
}

func (f *fakeTranscriber) Name() string { return "fake" }

func (f *fakeTranscriber) Transcribe(_ context.Context, path string) (transcribe.Result, error) {
	base := filepath.Base(path)
	if err := f.errs[base]; err != nil {
		return transcribe.Result{}, err
	}
	return f.results[base], nil
}

type sent struct {
	text string
	path string
}

type recordingNotifier struct {
	mu      sync.Mutex
	notices []sent
	fileErr error
}

func (n *recordingNotifier) Send(_ context.Context, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, sent{text: text})
	return nil
}

func (n *recordingNotifier) SendFile(_ context.Context, text string, path string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, sent{text: text, path: path})
	return n.fileErr
}

func writeCapture(t *testing.T, dir string, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte{1, 2, 3, 4}, 0o600))
	return path
}

func TestProcessMergesSpeakersOnSessionTimeline(t *testing.T) {
	sessionDir := t.TempDir()
	transcripts := t.TempDir()
	alice := writeCapture(t, sessionDir, "111_1000.pcm")
	bob := writeCapture(t, sessionDir, "222_6000.pcm")

	fm := &fakeMedia{}
	processor := &Processor{
		Media: fm,
		Transcriber: &fakeTranscriber{results: map[string]transcribe.Result{
			"111_1000.mp3": {Segments: []transcribe.Segment{{Start: 0, End: 2, Text: "hello"}}},
			"222_6000.mp3": {Segments: []transcribe.Segment{{Start: 0, End: 1, Text: "hi", Speaker: "SPEAKER_00"}}},
		}},
		TranscriptsDir: transcripts,
		Cleanup:        true,
	}

	notifier := &recordingNotifier{}
	startedAt := time.Date(2026, 3, 4, 10, 30, 0, 0, time.UTC)
	output, err := processor.Process(context.Background(), Job{
		SessionID: "2026-03-04_103000",
		Dir:       sessionDir,
		StartedAt: startedAt,
		Zone:      "UTC",
		Records: []capture.Record{
			{SpeakerID: "111", DisplayName: "Alice", Path: alice, StartOffset: 0},
			{SpeakerID: "222", DisplayName: "Bob", Path: bob, StartOffset: 5 * time.Second},
		},
		Notifier: notifier,
	})
	require.NoError(t, err)
	require.Equal(t, 2, output.Transcribed)
	require.Equal(t, 2, output.Segments)
	require.Equal(t, filepath.Join(sessionDir, MergedAudioName), output.MergedPath)
	require.Equal(t, []media.Input{{Path: alice}, {Path: bob, Offset: 5 * time.Second}}, fm.mixed)

	data, err := os.ReadFile(output.TranscriptPath)
	require.NoError(t, err)
	body := string(data)
	require.Equal(t, filepath.Join(transcripts, "meeting_2026-03-04_103000.txt"), output.TranscriptPath)
	require.Contains(t, body, "Segments: 2")
	aliceAt := strings.Index(body, "[00:00:00] <Alice>: hello")
	bobAt := strings.Index(body, "[00:00:05] <Bob>: hi")
	require.GreaterOrEqual(t, aliceAt, 0)
	require.Greater(t, bobAt, aliceAt)

	require.Equal(t, []sent{
		{text: NoticeProcessing},
		{text: "✅ Transcript ready — meeting_2026-03-04_103000.txt", path: output.TranscriptPath},
	}, notifier.notices)

	for _, path := range []string{alice, bob, media.ConvertedPath(alice), media.ConvertedPath(bob)} {
		_, err := os.Stat(path)
		require.True(t, os.IsNotExist(err), path)
	}
	require.FileExists(t, output.MergedPath)
}

func TestProcessSkipsFailedSpeakersAndMixFailure(t *testing.T) {
	sessionDir := t.TempDir()
	alice := writeCapture(t, sessionDir, "111_1.pcm")
	bob := writeCapture(t, sessionDir, "222_2.pcm")

	processor := &Processor{
		Media: &fakeMedia{mixErr: errors.New("amix exploded")},
		Transcriber: &fakeTranscriber{
			results: map[string]transcribe.Result{"111_1.mp3": {Segments: []transcribe.Segment{{Start: 1, End: 2, Text: "still here"}}}},
			errs:    map[string]error{"222_2.mp3": errors.New("gpu gone")},
		},
		TranscriptsDir: t.TempDir(),
	}

	notifier := &recordingNotifier{}
	output, err := processor.Process(context.Background(), Job{
		SessionID: "s",
		Dir:       sessionDir,
		Records: []capture.Record{
			{SpeakerID: "111", DisplayName: "Alice", Path: alice},
			{SpeakerID: "222", DisplayName: "Bob", Path: bob},
		},
		Notifier: notifier,
	})
	require.NoError(t, err)
	require.Equal(t, 1, output.Transcribed)
	require.Equal(t, 1, output.Failed)
	require.Empty(t, output.MergedPath)
	require.Len(t, notifier.notices, 2)

	require.FileExists(t, alice)
}

func TestProcessAllSpeakersFailingSendsOneFailureNotice(t *testing.T) {
	sessionDir := t.TempDir()
	alice := writeCapture(t, sessionDir, "111_1.pcm")

	processor := &Processor{
		Media:          &fakeMedia{convert: map[string]error{alice: errors.New("ffmpeg exited 1")}},
		Transcriber:    &fakeTranscriber{},
		TranscriptsDir: t.TempDir(),
	}

	notifier := &recordingNotifier{}
	_, err := processor.Process(context.Background(), Job{
		SessionID: "s",
		Dir:       sessionDir,
		Records:   []capture.Record{{SpeakerID: "111", Path: alice}},
		Notifier:  notifier,
	})
	require.ErrorIs(t, err, ErrNoTranscriptions)

	var stageErr *StageError
	require.True(t, errors.As(err, &stageErr))
	require.Equal(t, "transcribe", stageErr.Stage)
	require.Equal(t, []sent{{text: NoticeProcessing}, {text: NoticeTranscriptFailed}}, notifier.notices)
}

func TestProcessUploadFailureIsNotFatal(t *testing.T) {
	sessionDir := t.TempDir()
	alice := writeCapture(t, sessionDir, "111_1.pcm")

	processor := &Processor{
		Media:          &fakeMedia{},
		Transcriber:    &fakeTranscriber{results: map[string]transcribe.Result{"111_1.mp3": {Segments: []transcribe.Segment{{Text: "x"}}}}},
		TranscriptsDir: t.TempDir(),
	}
	notifier := &recordingNotifier{fileErr: errors.New("missing permissions")}

	_, err := processor.Process(context.Background(), Job{
		SessionID: "s",
		Dir:       sessionDir,
		Records:   []capture.Record{{SpeakerID: "111", DisplayName: "Alice", Path: alice}},
		Notifier:  notifier,
	})
	require.NoError(t, err)
	require.Len(t, notifier.notices, 2)
	require.NotEqual(t, NoticeTranscriptFailed, notifier.notices[1].text)
}

func TestProcessResolvesPlaceholderNames(t *testing.T) {
	sessionDir := t.TempDir()
	known := writeCapture(t, sessionDir, "111_1.pcm")
	unknown := writeCapture(t, sessionDir, "222_1.pcm")
	lost := writeCapture(t, sessionDir, "333_1.pcm")

	cache := names.NewCache()
	cache.Remember("222", "Late Bob")
	cache.Remember("111", "Should Not Override")

	one := transcribe.Result{Segments: []transcribe.Segment{{Text: "line", Speaker: "SPEAKER_07"}}}
	processor := &Processor{
		Transcriber: &fakeTranscriber{results: map[string]transcribe.Result{
			"111_1.pcm": one, "222_1.pcm": one, "333_1.pcm": one,
		}},
		TranscriptsDir: t.TempDir(),
		Names:          []names.Source{cache},
	}

	output, err := processor.Process(context.Background(), Job{
		SessionID: "s",
		Records: []capture.Record{
			{SpeakerID: "111", DisplayName: "Alice", Path: known},
			{SpeakerID: "222", DisplayName: names.Fallback("222"), Path: unknown},
			{SpeakerID: "333", Path: lost},
		},
	})
	require.NoError(t, err)

	data, err := os.ReadFile(output.TranscriptPath)
	require.NoError(t, err)
	segments, err := timeline.Parse(string(data))
	require.NoError(t, err)

	speakers := make([]string, 0, len(segments))
	for _, segment := range segments {
		speakers = append(speakers, segment.Speaker)
	}
	require.Equal(t, []string{"Alice", "Late Bob", "USER_333"}, speakers)
}

func TestSpeakerLabelFallbacks(t *testing.T) {
	require.Equal(t, "Alice", speakerLabel(capture.Record{SpeakerID: "1", DisplayName: "Alice"}, "SPEAKER_00"))
	require.Equal(t, "SPEAKER_00", speakerLabel(capture.Record{SpeakerID: "1"}, "SPEAKER_00"))
	require.Equal(t, "USER_1", speakerLabel(capture.Record{SpeakerID: "1"}, ""))
}

func TestLoadSessionDir(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "2026-03-04_103000")
	require.NoError(t, os.Mkdir(dir, 0o755))
	writeCapture(t, dir, "222_1700000005000.pcm")
	writeCapture(t, dir, "111_1700000000000.pcm")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "333_1700000001000.pcm"), nil, 0o600))
	writeCapture(t, dir, MergedAudioName)
	writeCapture(t, dir, "notes.txt")

	loc, err := time.LoadLocation("Europe/Istanbul")
	require.NoError(t, err)

	job, err := LoadSessionDir(dir, loc)
	require.NoError(t, err)
	require.Equal(t, "2026-03-04_103000", job.SessionID)
	require.True(t, time.Date(2026, 3, 4, 10, 30, 0, 0, loc).Equal(job.StartedAt))
	require.Equal(t, "Europe/Istanbul", job.Zone)
	require.Len(t, job.Records, 2)
	require.Equal(t, "111", job.Records[0].SpeakerID)
	require.Zero(t, job.Records[0].StartOffset)
	require.Equal(t, "222", job.Records[1].SpeakerID)
	require.Equal(t, 5*time.Second, job.Records[1].StartOffset)
	require.Equal(t, "USER_222", job.Records[1].DisplayName)
}

func TestLoadSessionDirWithoutCaptures(t *testing.T) {
	_, err := LoadSessionDir(t.TempDir(), time.UTC)
	require.ErrorIs(t, err, ErrNoCaptures)
}

func TestLoadSessionDirFallsBackToCaptureTime(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "misc")
	require.NoError(t, os.Mkdir(dir, 0o755))
	writeCapture(t, dir, "9_1700000000000.wav")

	job, err := LoadSessionDir(dir, time.UTC)
	require.NoError(t, err)
	require.Equal(t, time.UnixMilli(1700000000000).UTC().Format(SessionIDLayout), job.SessionID)
}

func TestRescueWritesTranscriptBesideFile(t *testing.T) {
	dir := t.TempDir()
	mix := writeCapture(t, dir, MergedAudioName)

	processor := &Processor{
		Media: &fakeMedia{},
		Transcriber: &fakeTranscriber{results: map[string]transcribe.Result{
			MergedAudioName: {Segments: []transcribe.Segment{
				{Start: 3, End: 4, Text: "second", Speaker: "SPEAKER_01"},
				{Start: 1, End: 2, Text: "first", Speaker: "SPEAKER_00"},
			}},
		}},
	}

	path, rendered, err := processor.Rescue(context.Background(), mix, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, RescuedTranscriptName), path)
	require.FileExists(t, path)
	require.Less(t, strings.Index(rendered, "<SPEAKER_00>: first"), strings.Index(rendered, "<SPEAKER_01>: second"))
}

func TestRescueMissingFile(t *testing.T) {
	processor := &Processor{Transcriber: &fakeTranscriber{}}
	_, _, err := processor.Rescue(context.Background(), filepath.Join(t.TempDir(), "nope.mp3"), time.Now())
	require.Error(t, err)
	require.Contains(t, err.Error(), "open audio")
}
