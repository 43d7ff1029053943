//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ashureev/agentdesk/internal/conversation"
)

func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()
	data := map[string]string{"foo": "bar"}

	JSON(w, http.StatusOK, data)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	var got map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if got["foo"] != "bar" {
		t.Errorf("Expected foo=bar, got %v", got["foo"])
	}
}

func TestError(t *testing.T) {
	w := httptest.NewRecorder()

	Error(w, http.StatusNotFound, "Agent not found")

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
	var got map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if got["error"] != "Agent not found" {
		t.Errorf("Expected error message, got %q", got["error"])
	}
}

func TestTurnErrorStatus(t *testing.T) {
	tests := []struct {
		kind conversation.Kind
		want int
	}{
		{conversation.KindNotFound, http.StatusNotFound},
		{conversation.KindInvalidInput, http.StatusUnprocessableEntity},
		{conversation.KindSpeech, http.StatusBadRequest},
		{conversation.KindUnavailable, http.StatusServiceUnavailable},
		{conversation.KindUnreachable, http.StatusServiceUnavailable},
		{conversation.KindGeneration, http.StatusBadGateway},
		{conversation.KindEmptyResult, http.StatusBadGateway},
		{conversation.KindSynthesis, http.StatusBadGateway},
		{conversation.KindPersistence, http.StatusInternalServerError},
		{conversation.KindInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			w := httptest.NewRecorder()
			TurnError(w, &conversation.Error{Kind: tt.kind, Op: "test", Msg: "boom"})
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
			var got map[string]string
			if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if got["code"] != string(tt.kind) {
				t.Errorf("code = %q, want %q", got["code"], tt.kind)
			}
		})
	}
}

func TestTurnErrorHidesUntypedErrors(t *testing.T) {
	w := httptest.NewRecorder()
	TurnError(w, fmt.Errorf("wrapped: %w", errors.New("secret dsn")))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
	var got map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["error"] == "" || got["error"] == "wrapped: secret dsn" {
		t.Errorf("unexpected public message %q", got["error"])
	}
}

func TestParseID(t *testing.T) {
	tests := []struct {
		in   string
		want int64
		ok   bool
	}{
		{"7", 7, true},
		{" 12 ", 12, true},
		{"0", 0, false},
		{"-3", 0, false},
		{"abc", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		got, ok := parseID(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("parseID(%q) = %d, %v; want %d, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}
