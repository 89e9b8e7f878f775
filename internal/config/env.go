package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Lookup reads one environment variable.
type Lookup func(key string) (string, bool)

// LoadEnvFile loads KEY=VALUE pairs from path into the process environment
// without overriding variables that are already set. A missing file is not
// an error; the returned bool reports whether it was read.
func LoadEnvFile(path string) (bool, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return false, nil
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("stat env file %q: %w", path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return false, fmt.Errorf("load env file %q: %w", path, err)
	}
	return true, nil
}

// ApplyEnv overlays environment values onto cfg. Secrets only ever come from
// here.
func ApplyEnv(cfg *Config, lookup Lookup) []Warning {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	get := func(key string) (string, bool) {
		value, ok := lookup(key)
		value = strings.TrimSpace(value)
		return value, ok && value != ""
	}

	warnings := make([]Warning, 0)

	cfg.Secrets.Tokens = nil
	if token, ok := get("DISCORD_TOKEN"); ok {
		cfg.Secrets.Tokens = append(cfg.Secrets.Tokens, token)
	}
	if workers, ok := get("WORKER_TOKENS"); ok {
		if len(cfg.Secrets.Tokens) == 0 {
			warnings = append(warnings, Warning{Message: "WORKER_TOKENS is set but DISCORD_TOKEN is not; worker tokens ignored"})
		} else {
			for _, token := range strings.Split(workers, ",") {
				if token = strings.TrimSpace(token); token != "" {
					cfg.Secrets.Tokens = append(cfg.Secrets.Tokens, token)
				}
			}
		}
	}

	if value, ok := get("HF_TOKEN"); ok {
		cfg.Secrets.HFToken = value
	}
	if value, ok := get("DEEPGRAM_API_KEY"); ok {
		cfg.Secrets.DeepgramAPIKey = value
	}
	if value, ok := get("STT_MODE"); ok {
		cfg.STT.Mode = strings.ToLower(value)
	}
	if value, ok := get("WHISPER_MODEL"); ok {
		cfg.STT.WhisperX.Model = value
	}
	if value, ok := get("COMPUTE_TYPE"); ok {
		cfg.STT.WhisperX.ComputeType = value
	}
	if value, ok := get("CLEANUP_TEMP_FILES"); ok {
		cfg.Post.CleanupTempFiles = !strings.EqualFold(value, "false")
	}

	return warnings
}
