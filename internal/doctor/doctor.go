// Package doctor runs runtime readiness diagnostics for config, tools, credentials, and the daemon.
package doctor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/rbright/huddle/internal/config"
	"github.com/rbright/huddle/internal/health"
	"github.com/rbright/huddle/internal/ipc"
	"github.com/rbright/huddle/internal/transcribe"
)

const probeTimeout = 2 * time.Second

// Check is one doctor assertion result.
type Check struct {
	Name    string
	Pass    bool
	Message string
}

// Report is the full doctor output contract.
type Report struct {
	Checks []Check
}

// OK returns true when all checks pass.
func (r Report) OK() bool {
	for _, check := range r.Checks {
		if !check.Pass {
			return false
		}
	}
	return true
}

// String renders the report as user-facing text output.
func (r Report) String() string {
	var b strings.Builder
	for _, check := range r.Checks {
		status := "OK"
		if !check.Pass {
			status = "FAIL"
		}
		b.WriteString(fmt.Sprintf("[%s] %s: %s\n", status, check.Name, check.Message))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Run executes environment/config/runtime checks for a loaded config.
func Run(ctx context.Context, loaded config.Loaded) Report {
	cfg := loaded.Config
	checks := []Check{}

	configMsg := fmt.Sprintf("loaded %q", loaded.Path)
	if !loaded.Exists {
		configMsg = fmt.Sprintf("%q not found, using defaults", loaded.Path)
	}
	checks = append(checks, Check{Name: "config", Pass: true, Message: configMsg})

	checks = append(checks, checkBinary(cfg.FFmpeg.Binary, "audio conversion and mixing"))
	checks = append(checks, checkTokens(cfg.Secrets.Tokens))

	switch cfg.STT.Mode {
	case transcribe.ModeLocal:
		checks = append(checks, checkBinary(cfg.STT.WhisperX.Binary, "local transcription"))
		checks = append(checks, checkSecret("HF_TOKEN", cfg.Secrets.HFToken, "whisperx diarization needs a Hugging Face token"))
	case transcribe.ModeCloud:
		checks = append(checks, checkSecret("DEEPGRAM_API_KEY", cfg.Secrets.DeepgramAPIKey, "cloud transcription needs a Deepgram key"))
	}

	checks = append(checks, checkWritableDir("recordings_dir", cfg.RecordingsDir))
	checks = append(checks, checkWritableDir("transcripts_dir", cfg.TranscriptsDir))
	checks = append(checks, checkHealth(ctx, cfg.Health, daemonRunning(ctx)))

	return Report{Checks: checks}
}

// checkBinary validates that a binary exists in PATH.
func checkBinary(bin string, okMsg string) Check {
	if strings.TrimSpace(bin) == "" {
		return Check{Name: "binary", Pass: false, Message: "command is empty"}
	}
	path, err := exec.LookPath(bin)
	if err != nil {
		return Check{Name: bin, Pass: false, Message: fmt.Sprintf("binary not found in PATH: %s", bin)}
	}
	return Check{Name: bin, Pass: true, Message: fmt.Sprintf("found at %s (%s)", path, okMsg)}
}

func checkTokens(tokens []string) Check {
	switch len(tokens) {
	case 0:
		return Check{Name: "DISCORD_TOKEN", Pass: false, Message: "no bot token set"}
	case 1:
		return Check{Name: "DISCORD_TOKEN", Pass: true, Message: "primary identity configured"}
	default:
		return Check{Name: "DISCORD_TOKEN", Pass: true, Message: fmt.Sprintf("primary identity and %d worker(s) configured", len(tokens)-1)}
	}
}

func checkSecret(name string, value string, failMsg string) Check {
	if strings.TrimSpace(value) == "" {
		return Check{Name: name, Pass: false, Message: failMsg}
	}
	return Check{Name: name, Pass: true, Message: "set"}
}

// checkWritableDir creates dir when missing and writes a probe file into it.
func checkWritableDir(name string, dir string) Check {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Check{Name: name, Pass: false, Message: fmt.Sprintf("create %s: %v", dir, err)}
	}
	f, err := os.CreateTemp(dir, ".huddle-doctor-*")
	if err != nil {
		return Check{Name: name, Pass: false, Message: fmt.Sprintf("%s is not writable: %v", dir, err)}
	}
	_ = f.Close()
	_ = os.Remove(f.Name())
	return Check{Name: name, Pass: true, Message: fmt.Sprintf("%s is writable", dir)}
}

// daemonRunning reports whether a daemon answers on the control socket.
func daemonRunning(ctx context.Context) bool {
	path, err := ipc.RuntimeSocketPath()
	if err != nil {
		return false
	}
	alive, _ := ipc.Probe(ctx, path, 250*time.Millisecond)
	return alive
}

// checkHealth probes the daemon's gRPC health endpoint when one is running.
func checkHealth(ctx context.Context, cfg config.HealthConfig, running bool) Check {
	if !cfg.Enable {
		return Check{Name: "health", Pass: true, Message: "health endpoint disabled"}
	}
	if !running {
		return Check{Name: "health", Pass: true, Message: "daemon not running, probe skipped"}
	}
	status, err := health.Probe(ctx, cfg.Address, probeTimeout)
	if err != nil {
		return Check{Name: "health", Pass: false, Message: fmt.Sprintf("probe %s: %v", cfg.Address, err)}
	}
	if status != healthpb.HealthCheckResponse_SERVING.String() {
		return Check{Name: "health", Pass: false, Message: fmt.Sprintf("%s reports %s (no identity ready)", cfg.Address, status)}
	}
	return Check{Name: "health", Pass: true, Message: fmt.Sprintf("serving at %s", cfg.Address)}
}
