package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

type jsoncConfig struct {
	Timezone       *string `json:"timezone"`
	RecordingsDir  *string `json:"recordings_dir"`
	TranscriptsDir *string `json:"transcripts_dir"`
	EnvFile        *string `json:"env_file"`

	Connect *jsoncConnect `json:"connect"`
	Capture *jsoncCapture `json:"capture"`
	FFmpeg  *jsoncFFmpeg  `json:"ffmpeg"`
	STT     *jsoncSTT     `json:"stt"`
	Post    *jsoncPost    `json:"post"`
	Health  *jsoncHealth  `json:"health"`
	History *jsoncHistory `json:"history"`
	Log     *jsoncLog     `json:"log"`
}

type jsoncConnect struct {
	Attempts        *int `json:"attempts"`
	TimeoutMS       *int `json:"timeout_ms"`
	BackoffBaseMS   *int `json:"backoff_base_ms"`
	BackoffJitterMS *int `json:"backoff_jitter_ms"`
}

type jsoncCapture struct {
	Format *string `json:"format"`
}

type jsoncFFmpeg struct {
	Binary  *string `json:"binary"`
	Bitrate *string `json:"bitrate"`
}

type jsoncSTT struct {
	Mode     *string        `json:"mode"`
	WhisperX *jsoncWhisperX `json:"whisperx"`
	Deepgram *jsoncDeepgram `json:"deepgram"`
}

type jsoncWhisperX struct {
	Binary      *string `json:"binary"`
	Model       *string `json:"model"`
	ComputeType *string `json:"compute_type"`
	ExtraArgs   *string `json:"extra_args"`
}

type jsoncDeepgram struct {
	Endpoint  *string `json:"endpoint"`
	Model     *string `json:"model"`
	TimeoutMS *int    `json:"timeout_ms"`
}

type jsoncPost struct {
	CleanupTempFiles  *bool `json:"cleanup_temp_files"`
	Workers           *int  `json:"workers"`
	ShutdownTimeoutMS *int  `json:"shutdown_timeout_ms"`
}

type jsoncHealth struct {
	Enable  *bool   `json:"enable"`
	Address *string `json:"address"`
}

type jsoncHistory struct {
	Enable *bool   `json:"enable"`
	Path   *string `json:"path"`
}

type jsoncLog struct {
	Level *string `json:"level"`
}

func parseJSONC(content string, base Config) (Config, []Warning, error) {
	normalized, err := normalizeJSONC(content)
	if err != nil {
		return Config{}, nil, err
	}

	decoder := json.NewDecoder(strings.NewReader(normalized))
	decoder.DisallowUnknownFields()

	var payload jsoncConfig
	if err := decoder.Decode(&payload); err != nil {
		return Config{}, nil, wrapJSONDecodeError(normalized, err)
	}
	if err := ensureSingleJSONValue(decoder); err != nil {
		return Config{}, nil, wrapJSONDecodeError(normalized, err)
	}

	cfg := base
	warnings, err := payload.applyTo(&cfg)
	if err != nil {
		return Config{}, nil, err
	}
	return cfg, warnings, nil
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = strings.TrimSpace(*src)
	}
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

func setBool(dst *bool, src *bool) {
	if src != nil {
		*dst = *src
	}
}

func (payload jsoncConfig) applyTo(cfg *Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	setString(&cfg.Timezone, payload.Timezone)
	setString(&cfg.RecordingsDir, payload.RecordingsDir)
	setString(&cfg.TranscriptsDir, payload.TranscriptsDir)
	setString(&cfg.EnvFile, payload.EnvFile)

	if c := payload.Connect; c != nil {
		setInt(&cfg.Connect.Attempts, c.Attempts)
		setInt(&cfg.Connect.TimeoutMS, c.TimeoutMS)
		setInt(&cfg.Connect.BackoffBaseMS, c.BackoffBaseMS)
		setInt(&cfg.Connect.BackoffJitterMS, c.BackoffJitterMS)
		if c.TimeoutMS != nil && *c.TimeoutMS > 60000 {
			warnings = append(warnings, Warning{Message: fmt.Sprintf("connect.timeout_ms=%d keeps a stuck join alive for over a minute", *c.TimeoutMS)})
		}
	}

	if payload.Capture != nil {
		setString(&cfg.Capture.Format, payload.Capture.Format)
		cfg.Capture.Format = strings.ToLower(cfg.Capture.Format)
	}

	if payload.FFmpeg != nil {
		setString(&cfg.FFmpeg.Binary, payload.FFmpeg.Binary)
		setString(&cfg.FFmpeg.Bitrate, payload.FFmpeg.Bitrate)
	}

	if stt := payload.STT; stt != nil {
		if stt.Mode != nil {
			cfg.STT.Mode = strings.ToLower(strings.TrimSpace(*stt.Mode))
		}
		if w := stt.WhisperX; w != nil {
			setString(&cfg.STT.WhisperX.Binary, w.Binary)
			setString(&cfg.STT.WhisperX.Model, w.Model)
			setString(&cfg.STT.WhisperX.ComputeType, w.ComputeType)
			if w.ExtraArgs != nil {
				argv, err := parseArgv(*w.ExtraArgs)
				if err != nil {
					return nil, fmt.Errorf("invalid stt.whisperx.extra_args: %w", err)
				}
				cfg.STT.WhisperX.ExtraArgs = CommandConfig{Raw: *w.ExtraArgs, Argv: argv}
			}
		}
		if d := stt.Deepgram; d != nil {
			setString(&cfg.STT.Deepgram.Endpoint, d.Endpoint)
			setString(&cfg.STT.Deepgram.Model, d.Model)
			setInt(&cfg.STT.Deepgram.TimeoutMS, d.TimeoutMS)
		}
	}

	if p := payload.Post; p != nil {
		setBool(&cfg.Post.CleanupTempFiles, p.CleanupTempFiles)
		setInt(&cfg.Post.Workers, p.Workers)
		setInt(&cfg.Post.ShutdownTimeoutMS, p.ShutdownTimeoutMS)
	}

	if h := payload.Health; h != nil {
		setBool(&cfg.Health.Enable, h.Enable)
		setString(&cfg.Health.Address, h.Address)
	}

	if h := payload.History; h != nil {
		setBool(&cfg.History.Enable, h.Enable)
		setString(&cfg.History.Path, h.Path)
	}

	if payload.Log != nil && payload.Log.Level != nil {
		cfg.Log.Level = strings.ToLower(strings.TrimSpace(*payload.Log.Level))
	}

	return warnings, nil
}

func normalizeJSONC(content string) (string, error) {
	withoutComments, err := stripJSONCComments(content)
	if err != nil {
		return "", err
	}
	return stripJSONCTrailingCommas(withoutComments), nil
}

func stripJSONCComments(content string) (string, error) {
	var out strings.Builder
	out.Grow(len(content))

	inString := false
	escape := false
	lineComment := false
	blockComment := false

	for i := 0; i < len(content); i++ {
		ch := content[i]

		if lineComment {
			if ch == '\n' {
				lineComment = false
				out.WriteByte(ch)
				continue
			}
			if ch == '\r' {
				lineComment = false
				out.WriteByte(ch)
				continue
			}
			out.WriteByte(' ')
			continue
		}

		if blockComment {
			if ch == '*' && i+1 < len(content) && content[i+1] == '/' {
				blockComment = false
				out.WriteString("  ")
				i++
				continue
			}
			if ch == '\n' || ch == '\r' || ch == '\t' {
				out.WriteByte(ch)
			} else {
				out.WriteByte(' ')
			}
			continue
		}

		if inString {
			out.WriteByte(ch)
			if escape {
				escape = false
				continue
			}
			if ch == '\\' {
				escape = true
				continue
			}
			if ch == '"' {
				inString = false
			}
			continue
		}

		if ch == '"' {
			inString = true
			out.WriteByte(ch)
			continue
		}

		if ch == '/' && i+1 < len(content) {
			next := content[i+1]
			if next == '/' {
				lineComment = true
				out.WriteString("  ")
				i++
				continue
			}
			if next == '*' {
				blockComment = true
				out.WriteString("  ")
				i++
				continue
			}
		}

		out.WriteByte(ch)
	}

	if blockComment {
		return "", fmt.Errorf("unterminated block comment in JSONC")
	}

	return out.String(), nil
}

func stripJSONCTrailingCommas(content string) string {
	var out strings.Builder
	out.Grow(len(content))

	inString := false
	escape := false

	for i := 0; i < len(content); i++ {
		ch := content[i]

		if inString {
			out.WriteByte(ch)
			if escape {
				escape = false
				continue
			}
			if ch == '\\' {
				escape = true
				continue
			}
			if ch == '"' {
				inString = false
			}
			continue
		}

		if ch == '"' {
			inString = true
			out.WriteByte(ch)
			continue
		}

		if ch == ',' {
			j := i + 1
			for j < len(content) && isJSONWhitespace(content[j]) {
				j++
			}
			if j < len(content) && (content[j] == '}' || content[j] == ']') {
				continue
			}
		}

		out.WriteByte(ch)
	}

	return out.String()
}

func isJSONWhitespace(ch byte) bool {
	switch ch {
	case ' ', '\n', '\r', '\t':
		return true
	default:
		return false
	}
}

func ensureSingleJSONValue(decoder *json.Decoder) error {
	var extra struct{}
	err := decoder.Decode(&extra)
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err == nil {
		return fmt.Errorf("multiple JSON values are not allowed")
	}
	return err
}

func wrapJSONDecodeError(content string, err error) error {
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		line, col := offsetToLineCol(content, syntaxErr.Offset)
		return fmt.Errorf("line %d column %d: %w", line, col, err)
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		line, col := offsetToLineCol(content, typeErr.Offset)
		return fmt.Errorf("line %d column %d: %w", line, col, err)
	}

	return err
}

func offsetToLineCol(content string, offset int64) (int, int) {
	if offset <= 0 {
		return 1, 1
	}

	limit := int(offset)
	if limit > len(content) {
		limit = len(content)
	}

	line := 1
	col := 1
	for i := 0; i < limit-1; i++ {
		if content[i] == '\n' {
			line++
			col = 1
			continue
		}
		col++
	}
	return line, col
}
