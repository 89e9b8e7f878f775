package pipeline

import "context"

// Chat notices sent to the channel a session was started from.
const (
	NoticeProcessing       = "🔄 Processing audio & transcribing..."
	NoticeTranscriptFailed = "⚠️ Recording failed — Could not generate transcript"
	NoticeNoAudio          = "⚠️ Recording stopped — No audio was captured"
)

// TranscriptReadyNotice accompanies the uploaded transcript file.
func TranscriptReadyNotice(fileName string) string {
	return "✅ Transcript ready — " + fileName
}

// Notifier posts status messages to a session's origin channel. Callers log
// failures and carry on.
type Notifier interface {
	Send(ctx context.Context, text string) error
	SendFile(ctx context.Context, text string, path string) error
}

// NopNotifier discards every notice.
type NopNotifier struct{}

func (NopNotifier) Send(context.Context, string) error             { return nil }
func (NopNotifier) SendFile(context.Context, string, string) error { return nil }
