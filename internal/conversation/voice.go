package conversation

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"strings"
	"time"

	"github.com/ashureev/agentdesk/internal/domain"
)

// VoiceEventType discriminates streaming voice events.
type VoiceEventType string

const (
	EventUserText      VoiceEventType = "user_text"
	EventAssistantText VoiceEventType = "assistant_text"
	EventAudio         VoiceEventType = "audio"
	EventError         VoiceEventType = "error"
	EventDone          VoiceEventType = "done"
)

// VoiceEvent is one step of a streaming voice turn. Text is set for
// user_text and assistant_text, Audio for audio and Err for error.
type VoiceEvent struct {
	Type  VoiceEventType
	Text  string
	Audio []byte
	Err   error
}

// VoiceStreamRequest is the input of the generation phase of a streaming
// voice turn.
type VoiceStreamRequest struct {
	SessionID  int64
	Transcript string
	Style      string
}

// Transcribe converts uploaded audio to text. It fails when the transcript
// is blank.
func (s *Service) Transcribe(ctx context.Context, audio []byte, filename string) (string, error) {
	ctx, span := s.startSpan(ctx, TurnTranscribe, 0)
	defer span.End()

	text, err := s.transcribe(ctx, TurnTranscribe, audio, filename)
	if err != nil {
		s.fail(ctx, span, TurnTranscribe, err)
		return "", err
	}
	return text, nil
}

func (s *Service) transcribe(ctx context.Context, op string, audio []byte, filename string) (string, error) {
	if len(audio) == 0 {
		return "", newError(KindInvalidInput, op, "audio is required", nil)
	}
	if s.speech == nil {
		return "", newError(KindUnavailable, op, msgSpeechMissing, nil)
	}
	text, err := s.speech.SpeechToText(ctx, audio, filename)
	if err != nil {
		return "", transcriptionError(op, err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", newError(KindSpeech, op, msgNoTranscript, nil)
	}
	return text, nil
}

func (s *Service) voiceFor(agent *domain.Agent) string {
	if agent.VoiceID != "" {
		return agent.VoiceID
	}
	return s.speech.DefaultVoice()
}

// SendVoice runs a synchronous voice turn: transcribe, reply, synthesize.
// A synthesis failure is returned after both messages have been saved.
func (s *Service) SendVoice(ctx context.Context, req VoiceRequest) (*VoiceReply, error) {
	ctx, span := s.startSpan(ctx, TurnVoice, req.SessionID)
	defer span.End()
	defer s.metrics.RecordTurn(ctx, TurnVoice, time.Now())

	transcript, err := s.transcribe(ctx, TurnVoice, req.Audio, req.Filename)
	if err != nil {
		s.fail(ctx, span, TurnVoice, err)
		return nil, err
	}

	t, prompt, err := s.prepare(ctx, TurnVoice, req.SessionID, transcript, req.Style)
	if err != nil {
		s.fail(ctx, span, TurnVoice, err)
		return nil, err
	}
	reply, err := s.complete(ctx, t, prompt)
	if err != nil {
		s.fail(ctx, span, TurnVoice, err)
		return nil, err
	}

	audio, err := s.speech.TextToSpeech(ctx, reply.Content, s.voiceFor(t.agent))
	if err == nil && len(audio) == 0 {
		err = errors.New("no audio returned")
	}
	if err != nil {
		synthErr := newError(KindSynthesis, TurnVoice, msgTTSFailed, err)
		s.fail(ctx, span, TurnVoice, synthErr)
		return nil, synthErr
	}

	slog.Info("voice turn completed", "turn_id", t.id, "session_id", t.session.ID, "audio_bytes", len(audio))
	return &VoiceReply{
		Transcript:  transcript,
		Reply:       reply,
		Audio:       audio,
		ContentType: s.speech.ContentType(),
	}, nil
}

// StreamVoice runs the generation phase of a streaming voice turn. It emits
// user_text first, then assistant_text for every delta and audio for each
// sentence as soon as the sentence is complete, and ends with done or error.
// The assistant message is saved only when the whole turn succeeds.
func (s *Service) StreamVoice(ctx context.Context, req VoiceStreamRequest) iter.Seq[VoiceEvent] {
	return func(yield func(VoiceEvent) bool) {
		const op = TurnVoiceStream
		ctx, span := s.startSpan(ctx, op, req.SessionID)
		defer span.End()
		defer s.metrics.RecordTurn(ctx, op, time.Now())

		failed := func(err error) {
			s.fail(ctx, span, op, err)
			yield(VoiceEvent{Type: EventError, Err: err})
		}

		if s.speech == nil {
			failed(newError(KindUnavailable, op, msgSpeechMissing, nil))
			return
		}
		t, prompt, err := s.prepare(ctx, op, req.SessionID, req.Transcript, req.Style)
		if err != nil {
			failed(err)
			return
		}
		if !yield(VoiceEvent{Type: EventUserText, Text: req.Transcript}) {
			return
		}

		voice := s.voiceFor(t.agent)
		var reply strings.Builder
		var sentences sentenceBuffer
		deltas := 0

		for delta, err := range s.gen.Stream(ctx, prompt) {
			if err != nil {
				failed(generationError(op, err))
				return
			}
			if delta == "" {
				continue
			}
			reply.WriteString(delta)
			deltas++
			if !yield(VoiceEvent{Type: EventAssistantText, Text: delta}) {
				return
			}
			for _, sentence := range sentences.Push(delta) {
				if !s.speak(ctx, op, sentence, voice, yield, failed) {
					return
				}
			}
		}
		s.metrics.AddDeltas(ctx, deltas)

		if strings.TrimSpace(reply.String()) == "" {
			failed(newError(KindEmptyResult, op, msgGenerateFailed, errors.New("empty reply")))
			return
		}
		if rest := sentences.Flush(); rest != "" {
			if !s.speak(ctx, op, rest, voice, yield, failed) {
				return
			}
		}

		if _, err := s.appendReply(ctx, t, reply.String()); err != nil {
			failed(err)
			return
		}
		slog.Info("voice stream turn completed", "turn_id", t.id, "session_id", t.session.ID, "reply_length", reply.Len())
		yield(VoiceEvent{Type: EventDone})
	}
}

// speak synthesizes one sentence and yields its audio. It reports false
// when the turn must stop.
func (s *Service) speak(ctx context.Context, op, text, voice string,
	yield func(VoiceEvent) bool, failed func(error)) bool {
	s.metrics.AddSegment(ctx)
	for chunk, err := range s.speech.TextToSpeechStream(ctx, text, voice) {
		if err != nil {
			failed(newError(KindSynthesis, op, msgTTSFailed, err))
			return false
		}
		if len(chunk) == 0 {
			continue
		}
		if !yield(VoiceEvent{Type: EventAudio, Audio: chunk}) {
			return false
		}
	}
	return true
}
