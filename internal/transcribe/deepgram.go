package transcribe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"
)

const (
	defaultDeepgramEndpoint = "https://api.deepgram.com/v1/listen"
	defaultDeepgramModel    = "nova-2"
	defaultDeepgramTimeout  = 5 * time.Minute
)

// DeepgramConfig configures the cloud prerecorded backend.
type DeepgramConfig struct {
	APIKey   string
	Endpoint string
	Model    string
	Timeout  time.Duration
	Client   *http.Client
}

// Deepgram posts whole files to the prerecorded listen API with diarization.
type Deepgram struct {
	cfg DeepgramConfig
}

// NewDeepgram validates cfg and fills defaults.
func NewDeepgram(cfg DeepgramConfig) (*Deepgram, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("%w: DEEPGRAM_API_KEY is required for cloud mode", ErrMissingCredential)
	}
	if strings.TrimSpace(cfg.Endpoint) == "" {
		cfg.Endpoint = defaultDeepgramEndpoint
	}
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = defaultDeepgramModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultDeepgramTimeout
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: cfg.Timeout}
	}
	return &Deepgram{cfg: cfg}, nil
}

func (d *Deepgram) Name() string { return "deepgram" }

// RequestURL is the listen endpoint with model and feature flags applied.
func (d *Deepgram) RequestURL() (string, error) {
	u, err := url.Parse(d.cfg.Endpoint)
	if err != nil {
		return "", fmt.Errorf("parse deepgram endpoint: %w", err)
	}
	query := u.Query()
	query.Set("model", d.cfg.Model)
	query.Set("smart_format", "true")
	query.Set("diarize", "true")
	query.Set("detect_language", "true")
	u.RawQuery = query.Encode()
	return u.String(), nil
}

// Transcribe uploads audioPath (mp3) and groups the returned words into segments.
func (d *Deepgram) Transcribe(ctx context.Context, audioPath string) (Result, error) {
	target, err := d.RequestURL()
	if err != nil {
		return Result{}, err
	}

	file, err := os.Open(audioPath)
	if err != nil {
		return Result{}, fmt.Errorf("open audio: %w", err)
	}
	defer file.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, file)
	if err != nil {
		return Result{}, fmt.Errorf("build deepgram request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+d.cfg.APIKey)
	req.Header.Set("Content-Type", "audio/mpeg")

	resp, err := d.cfg.Client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("deepgram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Result{}, fmt.Errorf("deepgram api error: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var payload deepgramResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Result{}, fmt.Errorf("decode deepgram response: %w", err)
	}

	result := Result{Segments: groupWords(payload.words())}
	if len(payload.Results.Channels) > 0 {
		result.Language = payload.Results.Channels[0].DetectedLanguage
	}
	return result, nil
}

type deepgramWord struct {
	Start          float64 `json:"start"`
	End            float64 `json:"end"`
	Word           string  `json:"word"`
	PunctuatedWord string  `json:"punctuated_word"`
	Speaker        *int    `json:"speaker"`
}

type deepgramResponse struct {
	Results struct {
		Channels []struct {
			DetectedLanguage string `json:"detected_language"`
			Alternatives     []struct {
				Words []deepgramWord `json:"words"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

func (r deepgramResponse) words() []deepgramWord {
	if len(r.Results.Channels) == 0 || len(r.Results.Channels[0].Alternatives) == 0 {
		return nil
	}
	return r.Results.Channels[0].Alternatives[0].Words
}

var sentenceEnd = regexp.MustCompile(`[.!?]$`)

// groupWords starts a new segment on every speaker change and closes one
// after sentence-ending punctuation.
func groupWords(words []deepgramWord) []Segment {
	segments := make([]Segment, 0)

	var (
		text    strings.Builder
		start   float64
		end     float64
		speaker int
		open    bool
	)
	flush := func() {
		if t := strings.TrimSpace(text.String()); t != "" {
			segments = append(segments, Segment{
				Start:   start,
				End:     end,
				Text:    t,
				Speaker: fmt.Sprintf("SPEAKER_%02d", speaker),
			})
		}
		text.Reset()
		open = false
	}

	for _, word := range words {
		token := word.PunctuatedWord
		if token == "" {
			token = word.Word
		}
		wordSpeaker := 0
		if word.Speaker != nil {
			wordSpeaker = *word.Speaker
		}

		if open && wordSpeaker != speaker {
			flush()
		}
		if !open {
			start = word.Start
			speaker = wordSpeaker
			open = true
		}
		text.WriteString(token)
		text.WriteByte(' ')
		end = word.End

		if sentenceEnd.MatchString(token) {
			flush()
		}
	}
	flush()
	return segments
}
