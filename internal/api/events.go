package api

import (
	"encoding/base64"

	"github.com/ashureev/agentdesk/internal/conversation"
)

// textPayload is the wire form of a streaming text event.
type textPayload struct {
	Content string `json:"content,omitempty"`
	Done    bool   `json:"done,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
}

func textEventPayload(ev conversation.TextEvent) textPayload {
	switch {
	case ev.Err != nil:
		return textPayload{Error: conversation.PublicMessage(ev.Err), Code: string(conversation.KindOf(ev.Err))}
	case ev.Done:
		return textPayload{Done: true}
	default:
		return textPayload{Content: ev.Delta}
	}
}

// voicePayload is the wire form of a streaming voice event, shared by the
// SSE and WebSocket transports.
type voicePayload struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
	Chunk   string `json:"chunk,omitempty"`
	Code    string `json:"code,omitempty"`
}

func voiceEventPayload(ev conversation.VoiceEvent) voicePayload {
	p := voicePayload{Type: string(ev.Type)}
	switch ev.Type {
	case conversation.EventAudio:
		p.Chunk = base64.StdEncoding.EncodeToString(ev.Audio)
	case conversation.EventError:
		p.Content = conversation.PublicMessage(ev.Err)
		p.Code = string(conversation.KindOf(ev.Err))
	case conversation.EventDone:
	default:
		p.Content = ev.Text
	}
	return p
}

func voiceErrorPayload(err error) voicePayload {
	return voiceEventPayload(conversation.VoiceEvent{Type: conversation.EventError, Err: err})
}
