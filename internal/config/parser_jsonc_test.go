package config

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeJSONCRemovesCommentsAndTrailingCommas(t *testing.T) {
	input := `
{
  // line comment
  "items": [
    "one", /* block comment */
    "two",
  ],
  "nested": {
    "enabled": true,
  },
}
`

	normalized, err := normalizeJSONC(input)
	require.NoError(t, err)
	require.NotContains(t, normalized, "//")
	require.NotContains(t, normalized, "/*")
	require.NotContains(t, normalized, ",]")
	require.NotContains(t, normalized, ",}")
}

func TestNormalizeJSONCRetainsCommentLikeTextInsideStrings(t *testing.T) {
	input := `{"value":"contains // and /* comment-like */ text",}`
	normalized, err := normalizeJSONC(input)
	require.NoError(t, err)
	require.Contains(t, normalized, "// and /* comment-like */")
}

func TestNormalizeJSONCUnterminatedBlockCommentFails(t *testing.T) {
	_, err := normalizeJSONC("{ /* unterminated ")
	require.Error(t, err)
	require.Contains(t, err.Error(), "unterminated block comment")
}

func TestEnsureSingleJSONValueRejectsExtraPayload(t *testing.T) {
	decoder := json.NewDecoder(strings.NewReader(`{"one":1}{"two":2}`))
	var payload map[string]any
	require.NoError(t, decoder.Decode(&payload))

	err := ensureSingleJSONValue(decoder)
	require.Error(t, err)
	require.Contains(t, err.Error(), "multiple JSON values")
}

func TestOffsetToLineCol(t *testing.T) {
	content := "line1\nline2\nline3"
	line, col := offsetToLineCol(content, 1)
	require.Equal(t, 1, line)
	require.Equal(t, 1, col)

	line, col = offsetToLineCol(content, 8) // line2, col2
	require.Equal(t, 2, line)
	require.Equal(t, 2, col)

	line, col = offsetToLineCol(content, 999)
	require.Equal(t, 3, line)
	require.Equal(t, 5, col)
}

func TestParseJSONCRejectsInvalidExtraArgs(t *testing.T) {
	_, _, err := parseJSONC(`{"stt":{"whisperx":{"extra_args":"--language 'en"}}}`, Default())
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid stt.whisperx.extra_args")
}

func TestParseJSONCParsesExtraArgs(t *testing.T) {
	cfg, _, err := parseJSONC(`{"stt":{"whisperx":{"extra_args":"--batch_size 8 --initial_prompt 'standup notes'"}}}`, Default())
	require.NoError(t, err)
	require.Equal(t, []string{"--batch_size", "8", "--initial_prompt", "standup notes"}, cfg.STT.WhisperX.ExtraArgs.Argv)
}

func TestParseJSONCTrimsAndLowercasesEnums(t *testing.T) {
	cfg, _, err := parseJSONC(`{
  "recordings_dir": "  /srv/rec  ",
  "capture": {"format": " WAV "},
  "stt": {"mode": " Cloud "},
  "log": {"level": "DEBUG"},
}`, Default())
	require.NoError(t, err)
	require.Equal(t, "/srv/rec", cfg.RecordingsDir)
	require.Equal(t, "wav", cfg.Capture.Format)
	require.Equal(t, "cloud", cfg.STT.Mode)
	require.Equal(t, "debug", cfg.Log.Level)
}

func TestParseJSONCWarnsOnLongConnectTimeout(t *testing.T) {
	cfg, warnings, err := parseJSONC(`{"connect":{"timeout_ms":90000}}`, Default())
	require.NoError(t, err)
	require.Equal(t, 90000, cfg.Connect.TimeoutMS)
	require.Len(t, warnings, 1)
	require.Contains(t, warnings[0].Message, "connect.timeout_ms")
}

func TestParseJSONCRejectsUnknownField(t *testing.T) {
	_, _, err := parseJSONC(`{"connect":{"retries":5}}`, Default())
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown field")
}

func TestParseJSONCRejectsMultipleTopLevelValues(t *testing.T) {
	_, _, err := parseJSONC(`{"post":{"workers":1}}{"post":{"workers":2}}`, Default())
	require.Error(t, err)
	require.True(
		t,
		strings.Contains(err.Error(), "multiple JSON values") || strings.Contains(err.Error(), "unknown field"),
		"unexpected error: %v",
		err,
	)
}

func TestParseJSONCTypeErrorIncludesLocation(t *testing.T) {
	_, _, err := parseJSONC(`{
  "connect": {"attempts": "three"}
}`, Default())
	require.Error(t, err)
	require.Contains(t, err.Error(), "line")
	require.Contains(t, err.Error(), "column")
}
