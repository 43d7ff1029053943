// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"

	"github.com/ashureev/agentdesk/internal/domain"
)

// Repository persists agents, sessions and messages.
//
// Lookups return (nil, nil) when the record does not exist.
type Repository interface {
	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error

	// CreateAgent inserts a new agent and fills in its ID and timestamps.
	CreateAgent(ctx context.Context, agent *domain.Agent) error

	// GetAgent retrieves an agent by ID.
	GetAgent(ctx context.Context, id int64) (*domain.Agent, error)

	// ListAgents returns all agents ordered by creation time.
	ListAgents(ctx context.Context) ([]*domain.Agent, error)

	// UpdateAgent writes name, prompt and voice id and bumps updated_at.
	UpdateAgent(ctx context.Context, agent *domain.Agent) error

	// DeleteAgent removes an agent with its sessions and messages.
	// It reports false when no such agent exists.
	DeleteAgent(ctx context.Context, id int64) (bool, error)

	// CreateSession inserts a new session for an existing agent.
	CreateSession(ctx context.Context, session *domain.Session) error

	// GetSession retrieves a session by ID.
	GetSession(ctx context.Context, id int64) (*domain.Session, error)

	// ListSessions returns an agent's sessions, most recently active first.
	ListSessions(ctx context.Context, agentID int64) ([]*domain.Session, error)

	// UpdateSession persists the session's updated_at.
	UpdateSession(ctx context.Context, session *domain.Session) error

	// DeleteSession removes a session and its messages.
	DeleteSession(ctx context.Context, id int64) (bool, error)

	// CreateMessage appends a message. created_at is forced to be strictly
	// greater than every earlier message of the same session.
	CreateMessage(ctx context.Context, msg *domain.Message) error

	// ListMessages returns a session's messages in creation order.
	ListMessages(ctx context.Context, sessionID int64) ([]*domain.Message, error)
}
