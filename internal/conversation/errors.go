package conversation

import (
	"context"
	"errors"

	"github.com/ashureev/agentdesk/internal/shared"
)

// Kind classifies turn failures so the delivery layer can pick a status
// without inspecting messages.
type Kind string

const (
	KindInternal     Kind = "internal"
	KindNotFound     Kind = "not_found"
	KindInvalidInput Kind = "invalid_input"
	KindUnavailable  Kind = "unavailable"
	KindUnreachable  Kind = "provider_unreachable"
	KindGeneration   Kind = "generation"
	KindEmptyResult  Kind = "empty_result"
	KindSpeech       Kind = "speech"
	KindSynthesis    Kind = "synthesis"
	KindPersistence  Kind = "persistence"
	KindCanceled     Kind = "canceled"
)

// Error is returned by every Service operation.
type Error struct {
	Kind Kind
	Op   string
	// Msg is safe to show to callers.
	Msg string
	Err error
}

func (e *Error) Error() string {
	s := e.Op + ": " + e.Msg
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind of err, or KindInternal when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// PublicMessage returns the caller-facing text for err.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Msg != "" {
		return e.Msg
	}
	return "Internal server error"
}

const (
	msgSessionNotFound = "Session not found"
	msgAgentNotFound   = "Agent not found"
	msgLLMUnavailable  = "LLM provider not available"
	msgLLMUnreachable  = "Connection to LLM failed. Check the API key and network."
	msgGenerateFailed  = "Failed to generate assistant response"
	msgNoTranscript    = "Speech-to-text produced no text"
	msgSTTFailed       = "Speech-to-text failed"
	msgSTTUnreachable  = "Connection to speech provider failed. Check the API key and network."
	msgSpeechMissing   = "Speech provider not available"
	msgTTSFailed       = "Text-to-speech failed"
	msgPersistFailed   = "Failed to save message"
	msgLoadFailed      = "Failed to load conversation"
)

func newError(kind Kind, op, msg string, err error) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg, Err: err}
}

func generationError(op string, err error) *Error {
	switch {
	case errors.Is(err, context.Canceled):
		return newError(KindCanceled, op, "Request canceled", err)
	case errors.Is(err, shared.ErrProviderUnreachable), shared.IsConnectionError(err):
		return newError(KindUnreachable, op, msgLLMUnreachable, err)
	default:
		return newError(KindGeneration, op, msgGenerateFailed, err)
	}
}

func transcriptionError(op string, err error) *Error {
	if errors.Is(err, shared.ErrProviderUnreachable) || shared.IsConnectionError(err) {
		return newError(KindUnreachable, op, msgSTTUnreachable, err)
	}
	return newError(KindSpeech, op, msgSTTFailed, err)
}
