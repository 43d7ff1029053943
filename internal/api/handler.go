//nolint:revive // "api" package name is intentionally concise for this layer.

// Package api provides HTTP handlers for the agentdesk API.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/ashureev/agentdesk/internal/conversation"
	"github.com/go-chi/chi/v5"
)

const defaultMaxBodyBytes = 1 << 20

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// TurnError writes err using the status that matches its kind.
func TurnError(w http.ResponseWriter, err error) {
	kind := conversation.KindOf(err)
	JSON(w, statusForKind(kind), map[string]string{
		"error": conversation.PublicMessage(err),
		"code":  string(kind),
	})
}

func statusForKind(kind conversation.Kind) int {
	switch kind {
	case conversation.KindNotFound:
		return http.StatusNotFound
	case conversation.KindInvalidInput:
		return http.StatusUnprocessableEntity
	case conversation.KindSpeech:
		return http.StatusBadRequest
	case conversation.KindUnavailable, conversation.KindUnreachable:
		return http.StatusServiceUnavailable
	case conversation.KindGeneration, conversation.KindEmptyResult, conversation.KindSynthesis:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON reads a size-limited JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, limit int64, v any) error {
	if limit <= 0 {
		limit = defaultMaxBodyBytes
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fmt.Errorf("request body exceeds %d bytes", limit)
		}
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return errors.New("invalid request body")
	}
	return nil
}

// pathID parses a positive integer URL parameter.
func pathID(r *http.Request, name string) (int64, bool) {
	return parseID(chi.URLParam(r, name))
}

func parseID(raw string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
