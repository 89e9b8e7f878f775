package transcribe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rbright/huddle/internal/command"
)

// ErrWhisperXMissing means the whisperx binary is not on PATH.
var ErrWhisperXMissing = errors.New("whisperx is not installed (pip install whisperx)")

// WhisperXConfig configures the local batch backend.
type WhisperXConfig struct {
	Binary      string
	Model       string
	ComputeType string
	HFToken     string
	ExtraArgs   []string
	Run         command.Runner
}

// WhisperX runs the whisperx CLI and reads its JSON output file.
type WhisperX struct {
	cfg WhisperXConfig
}

// NewWhisperX validates cfg and fills defaults.
func NewWhisperX(cfg WhisperXConfig) (*WhisperX, error) {
	if strings.TrimSpace(cfg.HFToken) == "" {
		return nil, fmt.Errorf("%w: HF_TOKEN is required for whisperx diarization models", ErrMissingCredential)
	}
	if strings.TrimSpace(cfg.Binary) == "" {
		cfg.Binary = "whisperx"
	}
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = "large-v2"
	}
	if strings.TrimSpace(cfg.ComputeType) == "" {
		cfg.ComputeType = "float16"
	}
	if cfg.Run == nil {
		cfg.Run = command.Run
	}
	return &WhisperX{cfg: cfg}, nil
}

func (w *WhisperX) Name() string { return "whisperx" }

// Args returns the whisperx arguments for audioPath, writing JSON beside it.
func (w *WhisperX) Args(audioPath string) []string {
	args := []string{
		audioPath,
		"--model", w.cfg.Model,
		"--compute_type", w.cfg.ComputeType,
		"--output_format", "json",
		"--output_dir", filepath.Dir(audioPath),
		"--hf_token", w.cfg.HFToken,
		"--no_align",
	}
	return append(args, w.cfg.ExtraArgs...)
}

// Transcribe runs whisperx and decodes `<dir>/<base>.json`.
func (w *WhisperX) Transcribe(ctx context.Context, audioPath string) (Result, error) {
	argv := append([]string{w.cfg.Binary}, w.Args(audioPath)...)
	if _, err := w.cfg.Run(ctx, argv, ""); err != nil {
		if command.IsNotFound(err) {
			return Result{}, ErrWhisperXMissing
		}
		return Result{}, fmt.Errorf("run whisperx: %w", err)
	}

	jsonPath := outputPath(audioPath)
	data, err := os.ReadFile(jsonPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Result{}, fmt.Errorf("whisperx output not found: %s", jsonPath)
		}
		return Result{}, fmt.Errorf("read whisperx output: %w", err)
	}
	_ = os.Remove(jsonPath)

	var result Result
	if err := json.Unmarshal(data, &result); err != nil {
		return Result{}, fmt.Errorf("parse whisperx output: %w", err)
	}
	for i := range result.Segments {
		result.Segments[i].Text = strings.TrimSpace(result.Segments[i].Text)
	}
	return result, nil
}

func outputPath(audioPath string) string {
	base := filepath.Base(audioPath)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(filepath.Dir(audioPath), base+".json")
}
