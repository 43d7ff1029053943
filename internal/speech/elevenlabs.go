package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ashureev/agentdesk/internal/shared"
)

const (
	defaultElevenLabsBaseURL = "https://api.elevenlabs.io"
	// defaultElevenLabsVoiceID is the premade "Rachel" voice.
	defaultElevenLabsVoiceID = "21m00Tcm4TlvDq8ikWAM"
	streamChunkSize          = 4096
)

// ElevenLabsConfig configures the ElevenLabs synthesizer.
type ElevenLabsConfig struct {
	APIKey       string
	VoiceID      string
	ModelID      string
	OutputFormat string
	BaseURL      string
	Timeout      time.Duration
}

// ElevenLabs synthesizes speech with the ElevenLabs REST API.
type ElevenLabs struct {
	cfg    ElevenLabsConfig
	client *http.Client
}

// NewElevenLabs validates cfg and returns a synthesizer.
func NewElevenLabs(cfg ElevenLabsConfig) (*ElevenLabs, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("%w: elevenlabs api key missing", ErrNotConfigured)
	}
	cfg.VoiceID = strings.TrimSpace(cfg.VoiceID)
	if cfg.VoiceID == "" {
		cfg.VoiceID = defaultElevenLabsVoiceID
	}
	if cfg.ModelID == "" {
		cfg.ModelID = "eleven_multilingual_v2"
	}
	if cfg.OutputFormat == "" {
		cfg.OutputFormat = "mp3_44100_128"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultElevenLabsBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &ElevenLabs{cfg: cfg, client: &http.Client{}}, nil
}

// ContentType derives the MIME type from the configured output format.
func (e *ElevenLabs) ContentType() string {
	switch {
	case strings.HasPrefix(e.cfg.OutputFormat, "mp3"):
		return "audio/mpeg"
	case strings.HasPrefix(e.cfg.OutputFormat, "pcm"):
		return "audio/L16"
	case strings.HasPrefix(e.cfg.OutputFormat, "ulaw"):
		return "audio/basic"
	case strings.HasPrefix(e.cfg.OutputFormat, "opus"):
		return "audio/ogg"
	default:
		return "application/octet-stream"
	}
}

// DefaultVoice returns the configured voice id.
func (e *ElevenLabs) DefaultVoice() string { return e.cfg.VoiceID }

func (e *ElevenLabs) do(ctx context.Context, text, voice string, stream bool) (*http.Response, error) {
	if voice == "" {
		return nil, errors.New("elevenlabs: voice id missing")
	}

	path := "/v1/text-to-speech/" + url.PathEscape(voice)
	if stream {
		path += "/stream"
	}
	u, err := url.Parse(e.cfg.BaseURL + path)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: parse url: %w", err)
	}
	q := u.Query()
	q.Set("output_format", e.cfg.OutputFormat)
	u.RawQuery = q.Encode()

	body, err := json.Marshal(map[string]any{
		"text":     text,
		"model_id": e.cfg.ModelID,
	})
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: build request: %w", err)
	}
	req.Header.Set("xi-api-key", e.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", e.ContentType())

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: %w", shared.MarkUnreachable(err))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		_ = resp.Body.Close()
		return nil, fmt.Errorf("elevenlabs: status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	return resp, nil
}

// Synthesize returns the complete audio for text.
func (e *ElevenLabs) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	resp, err := e.do(ctx, text, voice, false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: read audio: %w", err)
	}
	return audio, nil
}

// SynthesizeStream yields audio chunks from the streaming endpoint.
func (e *ElevenLabs) SynthesizeStream(ctx context.Context, text, voice string) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()

		resp, err := e.do(ctx, text, voice, true)
		if err != nil {
			yield(nil, err)
			return
		}
		defer resp.Body.Close()

		buf := make([]byte, streamChunkSize)
		for {
			n, rerr := resp.Body.Read(buf)
			if n > 0 {
				out := make([]byte, n)
				copy(out, buf[:n])
				if !yield(out, nil) {
					return
				}
			}
			if rerr != nil {
				if rerr != io.EOF {
					yield(nil, fmt.Errorf("elevenlabs: read stream: %w", rerr))
				}
				return
			}
		}
	}
}
