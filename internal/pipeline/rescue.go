package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rbright/huddle/internal/timeline"
)

// RescuedTranscriptName is written next to a rescued audio file.
const RescuedTranscriptName = "RESCUED_TRANSCRIPT.txt"

// Rescue transcribes a single archived file (usually the merged mix) with the
// backend's own speaker labels and writes the transcript beside it.
func (p *Processor) Rescue(ctx context.Context, audioPath string, now time.Time) (string, string, error) {
	if p.Transcriber == nil {
		return "", "", &StageError{Stage: "transcribe", Err: fmt.Errorf("no transcriber configured")}
	}
	if _, err := os.Stat(audioPath); err != nil {
		return "", "", fmt.Errorf("open audio: %w", err)
	}

	input := audioPath
	if p.Media != nil {
		converted, err := p.Media.Convert(ctx, audioPath)
		if err != nil {
			return "", "", &StageError{Stage: "convert", Err: err}
		}
		input = converted
	}

	result, err := p.Transcriber.Transcribe(ctx, input)
	if err != nil {
		return "", "", &StageError{Stage: "transcribe", Err: err}
	}

	track := make([]timeline.Segment, 0, len(result.Segments))
	for _, segment := range result.Segments {
		track = append(track, timeline.Segment{
			Start:   segment.Start,
			End:     segment.End,
			Text:    segment.Text,
			Speaker: segment.Speaker,
		})
	}

	rendered := timeline.Render(timeline.Merge(track), timeline.Header{StartedAt: now})
	path := filepath.Join(filepath.Dir(audioPath), RescuedTranscriptName)
	if err := os.WriteFile(path, []byte(rendered), 0o644); err != nil {
		return "", "", &StageError{Stage: "write", Err: err}
	}
	p.logger().Info("rescued transcript saved", "path", path, "segments", len(track), "backend", p.Transcriber.Name())
	return path, rendered, nil
}
