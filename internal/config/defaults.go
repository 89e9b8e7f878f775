package config

// Default returns the canonical runtime configuration used when no file is present.
func Default() Config {
	return Config{
		Timezone:       "Europe/Istanbul",
		RecordingsDir:  "recordings",
		TranscriptsDir: "transcripts",
		Connect: ConnectConfig{
			Attempts:        3,
			TimeoutMS:       15000,
			BackoffBaseMS:   1000,
			BackoffJitterMS: 2000,
		},
		Capture: CaptureConfig{Format: "pcm"},
		FFmpeg:  FFmpegConfig{Binary: "ffmpeg", Bitrate: "64k"},
		STT: STTConfig{
			Mode: "local",
			WhisperX: WhisperXConfig{
				Binary:      "whisperx",
				Model:       "large-v2",
				ComputeType: "float16",
			},
			Deepgram: DeepgramConfig{
				Endpoint:  "https://api.deepgram.com/v1/listen",
				Model:     "nova-2",
				TimeoutMS: 300000,
			},
		},
		Post: PostConfig{
			CleanupTempFiles:  true,
			Workers:           2,
			ShutdownTimeoutMS: 120000,
		},
		Health:  HealthConfig{Enable: true, Address: "127.0.0.1:7410"},
		History: HistoryConfig{Enable: true},
		Log:     LogConfig{Level: "info"},
		EnvFile: ".env",
	}
}
