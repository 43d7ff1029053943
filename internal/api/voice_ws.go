package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/ashureev/agentdesk/internal/conversation"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

const voiceSocketReadTimeout = 30 * time.Second

// VoiceSocketHandler runs streaming voice turns over a WebSocket.
//
// The client sends a JSON start frame, then one binary frame holding the
// recorded audio. The server answers with voice events, one JSON text frame
// each, and closes normally after the last one.
type VoiceSocketHandler struct {
	conv           *conversation.Service
	allowedOrigins []string
	isDev          bool
	maxAudioBytes  int64
}

// NewVoiceSocketHandler creates a new VoiceSocketHandler.
func NewVoiceSocketHandler(conv *conversation.Service, allowedOrigins []string, isDev bool, maxAudioBytes int64) *VoiceSocketHandler {
	return &VoiceSocketHandler{
		conv:           conv,
		allowedOrigins: allowedOrigins,
		isDev:          isDev,
		maxAudioBytes:  maxAudioBytes,
	}
}

type voiceStartFrame struct {
	SessionID int64  `json:"session_id"`
	Filename  string `json:"filename"`
	Style     string `json:"style"`
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *VoiceSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err)
		return
	}
	defer ws.CloseNow()
	if h.maxAudioBytes > 0 {
		ws.SetReadLimit(h.maxAudioBytes)
	}

	ctx := r.Context()
	start, audio, ok := h.readRequest(ctx, ws)
	if !ok {
		return
	}
	slog.Info("Voice socket turn", "session_id", start.SessionID, "audio_bytes", len(audio))

	// No further client frames are expected. ctx is canceled once the client
	// closes the socket.
	ctx = ws.CloseRead(ctx)

	transcript, err := h.conv.Transcribe(ctx, audio, start.Filename)
	if err != nil {
		h.sendError(ctx, ws, err)
		_ = ws.Close(websocket.StatusNormalClosure, "turn failed")
		return
	}

	events := h.conv.StreamVoice(ctx, conversation.VoiceStreamRequest{
		SessionID:  start.SessionID,
		Transcript: transcript,
		Style:      start.Style,
	})
	for ev := range events {
		if err := wsjson.Write(ctx, ws, voiceEventPayload(ev)); err != nil {
			slog.Debug("Voice socket write failed", "session_id", start.SessionID, "error", err)
			return
		}
	}
	if err := ws.Close(websocket.StatusNormalClosure, "turn complete"); err != nil {
		slog.Debug("Failed to close voice socket", "error", err)
	}
}

// readRequest reads the start frame and the audio frame. On a protocol
// error it reports the problem to the client and closes the socket.
func (h *VoiceSocketHandler) readRequest(ctx context.Context, ws *websocket.Conn) (voiceStartFrame, []byte, bool) {
	var start voiceStartFrame

	readCtx, cancel := context.WithTimeout(ctx, voiceSocketReadTimeout)
	defer cancel()

	typ, data, err := ws.Read(readCtx)
	if err != nil {
		slog.Debug("Voice socket closed before start frame", "error", err)
		return start, nil, false
	}
	if typ != websocket.MessageText || json.Unmarshal(data, &start) != nil || start.SessionID <= 0 {
		_ = ws.Close(websocket.StatusUnsupportedData, "expected start frame with session_id")
		return start, nil, false
	}

	typ, audio, err := ws.Read(readCtx)
	if err != nil {
		if websocket.CloseStatus(err) == websocket.StatusMessageTooBig {
			slog.Warn("Voice socket audio too large", "session_id", start.SessionID)
		}
		slog.Debug("Voice socket closed before audio frame", "error", err)
		return start, nil, false
	}
	if typ != websocket.MessageBinary {
		_ = ws.Close(websocket.StatusUnsupportedData, "expected binary audio frame")
		return start, nil, false
	}
	return start, audio, true
}

func (h *VoiceSocketHandler) sendError(ctx context.Context, ws *websocket.Conn, err error) {
	if werr := wsjson.Write(ctx, ws, voiceErrorPayload(err)); werr != nil {
		slog.Debug("Failed to send voice socket error", "error", werr)
	}
}

func (h *VoiceSocketHandler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || slices.Contains(h.allowedOrigins, "*") {
		return true
	}
	if slices.Contains(h.allowedOrigins, origin) {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigins)
	return false
}
