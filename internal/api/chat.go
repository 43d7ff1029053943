package api

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/ashureev/agentdesk/internal/conversation"
	"github.com/ashureev/agentdesk/internal/domain"
	"github.com/go-chi/chi/v5"
)

// multipartMemory is how much of a voice upload is held in memory before
// spilling to temp files.
const multipartMemory = 8 << 20

// ChatHandler serves message history and the turn endpoints.
type ChatHandler struct {
	conv          *conversation.Service
	maxBodyBytes  int64
	maxAudioBytes int64
}

// NewChatHandler creates a new ChatHandler.
func NewChatHandler(conv *conversation.Service, maxBodyBytes, maxAudioBytes int64) *ChatHandler {
	return &ChatHandler{conv: conv, maxBodyBytes: maxBodyBytes, maxAudioBytes: maxAudioBytes}
}

// RegisterRoutes registers session message and turn routes.
func (h *ChatHandler) RegisterRoutes(r chi.Router) {
	r.Get("/sessions/session-messages", h.ListMessages)
	r.Get("/sessions/styles", h.ListStyles)
	r.Post("/sessions/send-message", h.SendMessage)
	r.Post("/sessions/stream-message", h.StreamMessage)
	r.Post("/sessions/send-voice-message", h.StreamVoiceMessage)
	r.Post("/sessions/send-voice-message/sync", h.SendVoiceMessage)
}

type sendMessageRequest struct {
	SessionID int64  `json:"session_id"`
	Content   string `json:"content"`
	Style     string `json:"style,omitempty"`
}

type styleResponse struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ListMessages handles GET /sessions/session-messages?session_id=.
func (h *ChatHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r.URL.Query().Get("session_id"))
	if !ok {
		Error(w, http.StatusUnprocessableEntity, "session_id is required")
		return
	}
	msgs, err := h.conv.Messages(r.Context(), id)
	if err != nil {
		TurnError(w, err)
		return
	}
	if msgs == nil {
		msgs = []*domain.Message{}
	}
	JSON(w, http.StatusOK, msgs)
}

// ListStyles handles GET /sessions/styles.
func (h *ChatHandler) ListStyles(w http.ResponseWriter, _ *http.Request) {
	styles := h.conv.Styles()
	out := make([]styleResponse, 0, len(styles))
	for _, s := range styles {
		out = append(out, styleResponse{Name: s.Name, Description: s.Description})
	}
	JSON(w, http.StatusOK, out)
}

// SendMessage handles POST /sessions/send-message and returns the stored
// assistant reply.
func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeText(w, r)
	if !ok {
		return
	}
	reply, err := h.conv.SendText(r.Context(), req)
	if err != nil {
		TurnError(w, err)
		return
	}
	JSON(w, http.StatusOK, reply)
}

// StreamMessage handles POST /sessions/stream-message. Request validation
// errors are answered with a status code; everything after that arrives as
// stream events.
func (h *ChatHandler) StreamMessage(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeText(w, r)
	if !ok {
		return
	}
	sse, ok := newSSEWriter(w)
	if !ok {
		Error(w, http.StatusInternalServerError, "Streaming not supported")
		return
	}

	for ev := range h.conv.StreamText(r.Context(), req) {
		if err := sse.Send(textEventPayload(ev)); err != nil {
			slog.Debug("Stream client went away", "session_id", req.SessionID, "error", err)
			return
		}
	}
}

// SendVoiceMessage handles POST /sessions/send-voice-message/sync. The
// response body is the synthesized reply audio.
func (h *ChatHandler) SendVoiceMessage(w http.ResponseWriter, r *http.Request) {
	upload, err := h.readVoiceUpload(w, r)
	if err != nil {
		Error(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	reply, err := h.conv.SendVoice(r.Context(), conversation.VoiceRequest{
		SessionID: upload.sessionID,
		Audio:     upload.audio,
		Filename:  upload.filename,
		Style:     upload.style,
	})
	if err != nil {
		TurnError(w, err)
		return
	}

	w.Header().Set("Content-Type", reply.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(reply.Audio)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(reply.Audio); err != nil {
		slog.Debug("Failed to write voice reply", "session_id", upload.sessionID, "error", err)
	}
}

// StreamVoiceMessage handles POST /sessions/send-voice-message. The upload
// is transcribed before the stream opens so speech failures get a real
// status code.
func (h *ChatHandler) StreamVoiceMessage(w http.ResponseWriter, r *http.Request) {
	upload, err := h.readVoiceUpload(w, r)
	if err != nil {
		Error(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	transcript, err := h.conv.Transcribe(r.Context(), upload.audio, upload.filename)
	if err != nil {
		TurnError(w, err)
		return
	}

	sse, ok := newSSEWriter(w)
	if !ok {
		Error(w, http.StatusInternalServerError, "Streaming not supported")
		return
	}
	events := h.conv.StreamVoice(r.Context(), conversation.VoiceStreamRequest{
		SessionID:  upload.sessionID,
		Transcript: transcript,
		Style:      upload.style,
	})
	for ev := range events {
		if err := sse.Send(voiceEventPayload(ev)); err != nil {
			slog.Debug("Voice stream client went away", "session_id", upload.sessionID, "error", err)
			return
		}
	}
}

func (h *ChatHandler) decodeText(w http.ResponseWriter, r *http.Request) (conversation.TextRequest, bool) {
	var req sendMessageRequest
	if err := decodeJSON(w, r, h.maxBodyBytes, &req); err != nil {
		Error(w, http.StatusUnprocessableEntity, err.Error())
		return conversation.TextRequest{}, false
	}
	if req.SessionID <= 0 {
		Error(w, http.StatusUnprocessableEntity, "session_id is required")
		return conversation.TextRequest{}, false
	}
	if strings.TrimSpace(req.Content) == "" {
		Error(w, http.StatusUnprocessableEntity, "content is required")
		return conversation.TextRequest{}, false
	}
	return conversation.TextRequest{SessionID: req.SessionID, Content: req.Content, Style: req.Style}, true
}

type voiceUpload struct {
	sessionID int64
	audio     []byte
	filename  string
	style     string
}

// readVoiceUpload parses the multipart fields session_id, audio and style.
func (h *ChatHandler) readVoiceUpload(w http.ResponseWriter, r *http.Request) (*voiceUpload, error) {
	if h.maxAudioBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxAudioBytes)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, fmt.Errorf("audio upload exceeds %d bytes", h.maxAudioBytes)
		}
		return nil, errors.New("invalid multipart form")
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	id, ok := parseID(r.FormValue("session_id"))
	if !ok {
		return nil, errors.New("session_id is required")
	}
	file, header, err := r.FormFile("audio")
	if err != nil {
		return nil, errors.New("audio file is required")
	}
	defer file.Close()

	audio, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}
	return &voiceUpload{
		sessionID: id,
		audio:     audio,
		filename:  header.Filename,
		style:     r.FormValue("style"),
	}, nil
}
