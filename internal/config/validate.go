package config

import (
	"fmt"
	"strings"
	"time"
)

// Validate enforces config invariants and returns non-fatal warnings.
func Validate(cfg Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	if strings.TrimSpace(cfg.Timezone) == "" {
		return nil, fmt.Errorf("timezone must not be empty")
	}
	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		return nil, fmt.Errorf("timezone %q is not a known zone: %w", cfg.Timezone, err)
	}
	if strings.TrimSpace(cfg.RecordingsDir) == "" {
		return nil, fmt.Errorf("recordings_dir must not be empty")
	}
	if strings.TrimSpace(cfg.TranscriptsDir) == "" {
		return nil, fmt.Errorf("transcripts_dir must not be empty")
	}

	if cfg.Connect.Attempts <= 0 {
		return nil, fmt.Errorf("connect.attempts must be > 0")
	}
	if cfg.Connect.TimeoutMS <= 0 {
		return nil, fmt.Errorf("connect.timeout_ms must be > 0")
	}
	if cfg.Connect.BackoffBaseMS < 0 {
		return nil, fmt.Errorf("connect.backoff_base_ms must be >= 0")
	}
	if cfg.Connect.BackoffJitterMS < 0 {
		return nil, fmt.Errorf("connect.backoff_jitter_ms must be >= 0")
	}

	switch cfg.Capture.Format {
	case "pcm", "wav":
	default:
		return nil, fmt.Errorf("capture.format must be one of: pcm, wav")
	}

	if strings.TrimSpace(cfg.FFmpeg.Binary) == "" {
		return nil, fmt.Errorf("ffmpeg.binary must not be empty")
	}
	if strings.TrimSpace(cfg.FFmpeg.Bitrate) == "" {
		return nil, fmt.Errorf("ffmpeg.bitrate must not be empty")
	}

	switch cfg.STT.Mode {
	case "local":
		if strings.TrimSpace(cfg.STT.WhisperX.Binary) == "" {
			return nil, fmt.Errorf("stt.whisperx.binary must not be empty when stt.mode=local")
		}
		if strings.TrimSpace(cfg.STT.WhisperX.Model) == "" {
			return nil, fmt.Errorf("stt.whisperx.model must not be empty when stt.mode=local")
		}
		if cfg.Secrets.HFToken == "" {
			warnings = append(warnings, Warning{Message: "HF_TOKEN is not set; local transcription will fail"})
		}
	case "cloud":
		if !strings.HasPrefix(cfg.STT.Deepgram.Endpoint, "http://") && !strings.HasPrefix(cfg.STT.Deepgram.Endpoint, "https://") {
			return nil, fmt.Errorf("stt.deepgram.endpoint must be an http(s) URL")
		}
		if cfg.STT.Deepgram.TimeoutMS <= 0 {
			return nil, fmt.Errorf("stt.deepgram.timeout_ms must be > 0")
		}
		if cfg.Secrets.DeepgramAPIKey == "" {
			warnings = append(warnings, Warning{Message: "DEEPGRAM_API_KEY is not set; cloud transcription will fail"})
		}
	default:
		return nil, fmt.Errorf("stt.mode must be one of: local, cloud")
	}

	if cfg.Post.Workers <= 0 {
		return nil, fmt.Errorf("post.workers must be > 0")
	}
	if cfg.Post.ShutdownTimeoutMS < 0 {
		return nil, fmt.Errorf("post.shutdown_timeout_ms must be >= 0")
	}

	if cfg.Health.Enable && strings.TrimSpace(cfg.Health.Address) == "" {
		return nil, fmt.Errorf("health.address must not be empty when health.enable=true")
	}

	switch cfg.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return nil, fmt.Errorf("log.level must be one of: debug, info, warn, error")
	}

	return warnings, nil
}

// Timeout returns the per-attempt voice connect timeout.
func (c ConnectConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

// BackoffBase returns the fixed part of the retry delay.
func (c ConnectConfig) BackoffBase() time.Duration {
	return time.Duration(c.BackoffBaseMS) * time.Millisecond
}

// BackoffJitter returns the random part of the retry delay.
func (c ConnectConfig) BackoffJitter() time.Duration {
	return time.Duration(c.BackoffJitterMS) * time.Millisecond
}

func (c DeepgramConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

// ShutdownTimeout bounds how long shutdown waits for post-processing.
func (c PostConfig) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutMS) * time.Millisecond
}
