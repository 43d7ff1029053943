package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"
)

func TestHealth(t *testing.T) {
	env := newTestEnv(t, &fakeLLM{}, nil)

	w := env.do(http.MethodGet, "/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "healthy" || body.Checks["database"] != "ok" {
		t.Errorf("unexpected body %+v", body)
	}
	if body.Checks["llm"] != "configured" || body.Checks["speech"] != "not_configured" {
		t.Errorf("unexpected provider checks %+v", body.Checks)
	}
}

func TestHealthDegraded(t *testing.T) {
	env := newTestEnv(t, &fakeLLM{}, &fakeSpeech{})
	env.repo.pingErr = errors.New("disk gone")

	w := env.do(http.MethodGet, "/health", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}
