// Package speech provides speech-to-text and text-to-speech backends.
package speech

import (
	"context"
	"errors"
	"iter"
)

// ErrNotConfigured is returned when a backend has no credentials.
var ErrNotConfigured = errors.New("speech provider not configured")

// Transcriber turns recorded audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, filename string) (string, error)
}

// Synthesizer turns text into encoded audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voice string) ([]byte, error)
	SynthesizeStream(ctx context.Context, text, voice string) iter.Seq2[[]byte, error]
	// ContentType is the MIME type of the produced audio.
	ContentType() string
	// DefaultVoice is used when the caller has no voice preference.
	DefaultVoice() string
}

// Provider is the capability the turn orchestrator depends on.
type Provider interface {
	SpeechToText(ctx context.Context, audio []byte, filename string) (string, error)
	TextToSpeech(ctx context.Context, text, voice string) ([]byte, error)
	TextToSpeechStream(ctx context.Context, text, voice string) iter.Seq2[[]byte, error]
	ContentType() string
	DefaultVoice() string
}

// Service joins a Transcriber and a Synthesizer into a Provider.
type Service struct {
	stt Transcriber
	tts Synthesizer
}

// NewService returns a Provider backed by stt and tts.
func NewService(stt Transcriber, tts Synthesizer) *Service {
	return &Service{stt: stt, tts: tts}
}

// SpeechToText transcribes audio.
func (s *Service) SpeechToText(ctx context.Context, audio []byte, filename string) (string, error) {
	if s.stt == nil {
		return "", ErrNotConfigured
	}
	return s.stt.Transcribe(ctx, audio, filename)
}

// TextToSpeech synthesizes text in one shot. An empty voice selects the
// synthesizer's default.
func (s *Service) TextToSpeech(ctx context.Context, text, voice string) ([]byte, error) {
	if s.tts == nil {
		return nil, ErrNotConfigured
	}
	return s.tts.Synthesize(ctx, text, s.voice(voice))
}

// TextToSpeechStream synthesizes text and yields audio chunks as they arrive.
func (s *Service) TextToSpeechStream(ctx context.Context, text, voice string) iter.Seq2[[]byte, error] {
	if s.tts == nil {
		return func(yield func([]byte, error) bool) { yield(nil, ErrNotConfigured) }
	}
	return s.tts.SynthesizeStream(ctx, text, s.voice(voice))
}

// ContentType reports the synthesizer's audio MIME type.
func (s *Service) ContentType() string {
	if s.tts == nil {
		return "application/octet-stream"
	}
	return s.tts.ContentType()
}

// DefaultVoice reports the synthesizer's default voice.
func (s *Service) DefaultVoice() string {
	if s.tts == nil {
		return ""
	}
	return s.tts.DefaultVoice()
}

func (s *Service) voice(v string) string {
	if v == "" {
		return s.tts.DefaultVoice()
	}
	return v
}

// chunked yields data in pieces of at most size bytes.
func chunked(data []byte, size int) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		for len(data) > 0 {
			n := min(size, len(data))
			if !yield(data[:n], nil) {
				return
			}
			data = data[n:]
		}
	}
}
