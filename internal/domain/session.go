package domain

import "time"

// Session is one conversation thread between a user and an agent.
type Session struct {
	ID        int64     `json:"id"`
	AgentID   int64     `json:"agent_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Touch moves the session's last-activity time forward.
func (s *Session) Touch(now time.Time) {
	if now.After(s.UpdatedAt) {
		s.UpdatedAt = now
	}
}
