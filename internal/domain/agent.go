// Package domain holds the records shared by the store, the turn
// orchestrator and the HTTP layer.
package domain

import "time"

// Agent is a configured assistant persona.
type Agent struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Prompt string `json:"prompt"`
	// VoiceID is empty when the agent uses the configured default voice.
	VoiceID   string    `json:"voice_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AgentPatch carries a partial agent update. Nil fields are left unchanged.
type AgentPatch struct {
	Name    *string `json:"name,omitempty"`
	Prompt  *string `json:"prompt,omitempty"`
	VoiceID *string `json:"voice_id,omitempty"`
}

// Apply copies the non-nil fields of p onto a.
func (p AgentPatch) Apply(a *Agent) {
	if p.Name != nil {
		a.Name = *p.Name
	}
	if p.Prompt != nil {
		a.Prompt = *p.Prompt
	}
	if p.VoiceID != nil {
		a.VoiceID = *p.VoiceID
	}
}
