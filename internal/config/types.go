// Package config resolves, parses, validates, and defaults huddle configuration.
package config

// Config is the fully materialized runtime configuration used by huddle.
type Config struct {
	Timezone       string
	RecordingsDir  string
	TranscriptsDir string
	Connect        ConnectConfig
	Capture        CaptureConfig
	FFmpeg         FFmpegConfig
	STT            STTConfig
	Post           PostConfig
	Health         HealthConfig
	History        HistoryConfig
	Log            LogConfig
	EnvFile        string
	Secrets        Secrets
}

// ConnectConfig bounds voice connection attempts.
type ConnectConfig struct {
	Attempts        int
	TimeoutMS       int
	BackoffBaseMS   int
	BackoffJitterMS int
}

// CaptureConfig selects the per-speaker capture container.
type CaptureConfig struct {
	Format string
}

// FFmpegConfig controls transcoding and mixing.
type FFmpegConfig struct {
	Binary  string
	Bitrate string
}

// STTConfig selects and configures the transcription backend.
type STTConfig struct {
	Mode     string
	WhisperX WhisperXConfig
	Deepgram DeepgramConfig
}

// WhisperXConfig configures the local whisperx CLI.
type WhisperXConfig struct {
	Binary      string
	Model       string
	ComputeType string
	ExtraArgs   CommandConfig
}

// DeepgramConfig configures the Deepgram prerecorded API.
type DeepgramConfig struct {
	Endpoint  string
	Model     string
	TimeoutMS int
}

// PostConfig controls background post-processing.
type PostConfig struct {
	CleanupTempFiles  bool
	Workers           int
	ShutdownTimeoutMS int
}

// HealthConfig controls the gRPC health endpoint.
type HealthConfig struct {
	Enable  bool
	Address string
}

// HistoryConfig controls the sqlite session history.
type HistoryConfig struct {
	Enable bool
	Path   string
}

// LogConfig controls runtime logging.
type LogConfig struct {
	Level string
}

// Secrets come only from the environment (or the env file), never the config file.
type Secrets struct {
	// Tokens holds the primary bot token first, then worker tokens.
	Tokens         []string
	HFToken        string
	DeepgramAPIKey string
}

// CommandConfig stores a raw argument string and its parsed argv form.
type CommandConfig struct {
	Raw  string
	Argv []string
}

// Warning is a non-fatal parse/validation message.
type Warning struct {
	Line    int
	Message string
}
