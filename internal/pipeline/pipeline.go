// Package pipeline turns a finished session's captures into a delivered transcript.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/rbright/huddle/internal/capture"
	"github.com/rbright/huddle/internal/media"
	"github.com/rbright/huddle/internal/names"
	"github.com/rbright/huddle/internal/timeline"
	"github.com/rbright/huddle/internal/transcribe"
)

// MergedAudioName is the archival mix written into each session directory.
const MergedAudioName = "recording_merged.mp3"

// ErrNoTranscriptions means every speaker's transcription failed.
var ErrNoTranscriptions = errors.New("no speaker could be transcribed")

// StageError reports a failure in one post-processing stage.
type StageError struct {
	Stage   string
	Speaker string
	Err     error
}

func (e *StageError) Error() string {
	if e.Speaker != "" {
		return fmt.Sprintf("post-process %s (%s): %v", e.Stage, e.Speaker, e.Err)
	}
	return fmt.Sprintf("post-process %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Media is the subset of ffmpeg behavior post-processing needs.
type Media interface {
	Convert(ctx context.Context, input string) (string, error)
	Mix(ctx context.Context, inputs []media.Input, output string) (string, error)
}

// Job is one session handed to post-processing.
type Job struct {
	SessionID string
	Dir       string
	StartedAt time.Time
	Zone      string
	Records   []capture.Record
	Notifier  Notifier
}

// Output describes what a successful run produced.
type Output struct {
	TranscriptPath string
	MergedPath     string
	Segments       int
	Transcribed    int
	Failed         int
}

// Processor runs mix, naming, transcription, merge, delivery, and cleanup.
type Processor struct {
	Media          Media
	Transcriber    transcribe.Transcriber
	TranscriptsDir string
	Cleanup        bool
	// Names re-resolve speakers whose capture only got a placeholder name.
	Names  []names.Source
	Logger *slog.Logger
}

// TranscriptName is the delivered file name for sessionID.
func TranscriptName(sessionID string) string {
	return "meeting_" + sessionID + ".txt"
}

// Process runs the pipeline. Any error is reported once to the job notifier
// and returned.
func (p *Processor) Process(ctx context.Context, job Job) (Output, error) {
	notifier := job.Notifier
	if notifier == nil {
		notifier = NopNotifier{}
	}
	logger := p.logger().With("session_id", job.SessionID)

	p.notify(ctx, logger, notifier, NoticeProcessing)

	output, err := p.run(ctx, logger, job, notifier)
	if err != nil {
		logger.Error("post-processing failed", "error", err.Error())
		p.notify(ctx, logger, notifier, NoticeTranscriptFailed)
		return output, err
	}
	return output, nil
}

func (p *Processor) run(ctx context.Context, logger *slog.Logger, job Job, notifier Notifier) (Output, error) {
	if p.Transcriber == nil {
		return Output{}, &StageError{Stage: "transcribe", Err: errors.New("no transcriber configured")}
	}
	var output Output

	if p.Media != nil && job.Dir != "" {
		merged, err := p.mix(ctx, job)
		if err != nil {
			logger.Error("audio mix failed", "error", (&StageError{Stage: "mix", Err: err}).Error())
		} else if merged != "" {
			output.MergedPath = merged
			logger.Info("merged audio saved", "path", merged)
		}
	}

	records := p.resolveNames(ctx, job.Records)

	tracks := make([][]timeline.Segment, 0, len(records))
	for _, record := range records {
		track, err := p.transcribe(ctx, record)
		if err != nil {
			output.Failed++
			logger.Error("speaker transcription failed",
				"speaker_id", record.SpeakerID,
				"error", (&StageError{Stage: "transcribe", Speaker: record.SpeakerID, Err: err}).Error(),
			)
			continue
		}
		output.Transcribed++
		tracks = append(tracks, track)
	}
	if output.Transcribed == 0 {
		return output, &StageError{Stage: "transcribe", Err: ErrNoTranscriptions}
	}

	segments := timeline.Merge(tracks...)
	output.Segments = len(segments)

	path, err := p.write(job, segments)
	if err != nil {
		return output, &StageError{Stage: "write", Err: err}
	}
	output.TranscriptPath = path
	logger.Info("transcript saved", "path", path, "segments", len(segments), "speakers", output.Transcribed)

	name := filepath.Base(path)
	if err := notifier.SendFile(ctx, TranscriptReadyNotice(name), path); err != nil {
		logger.Error("transcript upload failed", "error", err.Error())
	}

	if p.Cleanup {
		p.cleanup(logger, job.Records)
	}
	return output, nil
}

func (p *Processor) mix(ctx context.Context, job Job) (string, error) {
	inputs := make([]media.Input, 0, len(job.Records))
	for _, record := range job.Records {
		inputs = append(inputs, media.Input{Path: record.Path, Offset: record.StartOffset})
	}
	return p.Media.Mix(ctx, inputs, filepath.Join(job.Dir, MergedAudioName))
}

// resolveNames retries live lookups only for speakers left with a placeholder.
func (p *Processor) resolveNames(ctx context.Context, records []capture.Record) []capture.Record {
	resolved := make([]capture.Record, len(records))
	copy(resolved, records)
	for i, record := range resolved {
		if !names.IsFallback(record.DisplayName, record.SpeakerID) {
			continue
		}
		resolved[i].DisplayName = names.Resolve(ctx, record.SpeakerID, p.Names...)
	}
	return resolved
}

// transcribe converts one capture and shifts its segments onto the session timeline.
func (p *Processor) transcribe(ctx context.Context, record capture.Record) ([]timeline.Segment, error) {
	audioPath := record.Path
	if p.Media != nil {
		converted, err := p.Media.Convert(ctx, record.Path)
		if err != nil {
			return nil, err
		}
		audioPath = converted
	}

	result, err := p.Transcriber.Transcribe(ctx, audioPath)
	if err != nil {
		return nil, err
	}

	offset := record.StartOffset.Seconds()
	track := make([]timeline.Segment, 0, len(result.Segments))
	for _, segment := range result.Segments {
		track = append(track, timeline.Segment{
			Start:   segment.Start + offset,
			End:     segment.End + offset,
			Text:    segment.Text,
			Speaker: speakerLabel(record, segment.Speaker),
		})
	}
	return track, nil
}

func speakerLabel(record capture.Record, backendLabel string) string {
	if record.DisplayName != "" {
		return record.DisplayName
	}
	if backendLabel != "" {
		return backendLabel
	}
	return names.Fallback(record.SpeakerID)
}

func (p *Processor) write(job Job, segments []timeline.Segment) (string, error) {
	dir := p.TranscriptsDir
	if dir == "" {
		dir = "transcripts"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create transcripts dir: %w", err)
	}

	rendered := timeline.Render(segments, timeline.Header{StartedAt: job.StartedAt, Zone: job.Zone})
	path := filepath.Join(dir, TranscriptName(job.SessionID))
	if err := os.WriteFile(path, []byte(rendered), 0o644); err != nil {
		return "", fmt.Errorf("write transcript: %w", err)
	}
	return path, nil
}

// cleanup removes raw captures and their converted mp3s. The merged mix stays.
func (p *Processor) cleanup(logger *slog.Logger, records []capture.Record) {
	removed := 0
	for _, record := range records {
		for _, path := range []string{record.Path, media.ConvertedPath(record.Path)} {
			err := os.Remove(path)
			switch {
			case err == nil:
				removed++
			case errors.Is(err, os.ErrNotExist):
			default:
				logger.Warn("cleanup failed", "path", path, "error", err.Error())
			}
		}
	}
	logger.Info("cleaned up temporary audio files", "removed", removed)
}

func (p *Processor) notify(ctx context.Context, logger *slog.Logger, notifier Notifier, text string) {
	if err := notifier.Send(ctx, text); err != nil {
		logger.Error("notice failed", "notice", text, "error", err.Error())
	}
}

func (p *Processor) logger() *slog.Logger {
	if p.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return p.Logger
}
