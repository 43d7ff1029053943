package speech

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"iter"
	"mime"
	"path/filepath"
	"strings"

	"github.com/ashureev/agentdesk/internal/shared"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIConfig configures the OpenAI audio endpoints.
type OpenAIConfig struct {
	APIKey     string
	BaseURL    string
	STTModel   string
	Language   string
	TTSModel   string
	Voice      string
	MaxRetries int
}

// OpenAI implements Transcriber with Whisper and Synthesizer with the
// speech endpoint.
type OpenAI struct {
	client openai.Client
	cfg    OpenAIConfig
}

// NewOpenAI returns an OpenAI audio client.
func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("%w: openai api key missing", ErrNotConfigured)
	}
	if cfg.STTModel == "" {
		cfg.STTModel = string(openai.AudioModelWhisper1)
	}
	if cfg.TTSModel == "" {
		cfg.TTSModel = string(openai.SpeechModelTTS1)
	}
	if cfg.Voice == "" {
		cfg.Voice = "alloy"
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &OpenAI{client: openai.NewClient(opts...), cfg: cfg}, nil
}

// Transcribe sends audio to the transcription endpoint.
func (o *OpenAI) Transcribe(ctx context.Context, audio []byte, filename string) (string, error) {
	if filename == "" {
		filename = "audio.webm"
	}
	contentType := mime.TypeByExtension(filepath.Ext(filename))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	params := openai.AudioTranscriptionNewParams{
		File:  openai.File(bytes.NewReader(audio), filename, contentType),
		Model: openai.AudioModel(o.cfg.STTModel),
	}
	if o.cfg.Language != "" {
		params.Language = openai.String(o.cfg.Language)
	}

	tr, err := o.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("transcribe: %w", shared.MarkUnreachable(err))
	}
	return tr.Text, nil
}

// ContentType is the MIME type of the mp3 output.
func (o *OpenAI) ContentType() string { return "audio/mpeg" }

// DefaultVoice returns the configured voice.
func (o *OpenAI) DefaultVoice() string { return o.cfg.Voice }

// Synthesize returns mp3 audio for text.
func (o *OpenAI) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	resp, err := o.client.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
		Input:          text,
		Model:          openai.SpeechModel(o.cfg.TTSModel),
		Voice:          openai.AudioSpeechNewParamsVoice(voice),
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormatMP3,
	})
	if err != nil {
		return nil, fmt.Errorf("synthesize: %w", shared.MarkUnreachable(err))
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("synthesize: read audio: %w", err)
	}
	return audio, nil
}

// SynthesizeStream synthesizes text and yields the audio in fixed-size chunks.
func (o *OpenAI) SynthesizeStream(ctx context.Context, text, voice string) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		audio, err := o.Synthesize(ctx, text, voice)
		if err != nil {
			yield(nil, err)
			return
		}
		for chunk, err := range chunked(audio, streamChunkSize) {
			if !yield(chunk, err) {
				return
			}
		}
	}
}
