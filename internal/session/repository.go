// Package session stores short-lived per-user conversation state, such as
// the substitute options waiting for the user's choice.
package session

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Session is one stored context blob for a user.
type Session struct {
	ID          int64
	UserID      string
	SessionType string
	ContextData string
	ExpiresAt   time.Time
	CreatedAt   time.Time
}

// Repository provides access to session persistence operations
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new Repository instance
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Upsert stores the context for (userID, sessionType), replacing any previous one.
func (r *Repository) Upsert(ctx context.Context, userID, sessionType, contextData string, ttl time.Duration) error {
	now := time.Now()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sessions (user_id, session_type, context_data, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id, session_type) DO UPDATE SET
			context_data = excluded.context_data,
			expires_at = excluded.expires_at,
			created_at = excluded.created_at`,
		userID, sessionType, contextData, now.Add(ttl).Unix(), now.Unix())
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// GetActive retrieves the user's non-expired session of the given type
func (r *Repository) GetActive(ctx context.Context, userID, sessionType string, now time.Time) (*Session, error) {
	var s Session
	var expiresAt, createdAt int64
	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, session_type, context_data, expires_at, created_at
		FROM sessions
		WHERE user_id = ? AND session_type = ? AND expires_at > ?`,
		userID, sessionType, now.Unix()).Scan(&s.ID, &s.UserID, &s.SessionType, &s.ContextData, &expiresAt, &createdAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	s.ExpiresAt = time.Unix(expiresAt, 0)
	s.CreatedAt = time.Unix(createdAt, 0)
	return &s, nil
}

// Delete removes the user's session of the given type
func (r *Repository) Delete(ctx context.Context, userID, sessionType string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = ? AND session_type = ?`, userID, sessionType); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// CleanupExpired removes all expired sessions
func (r *Repository) CleanupExpired(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, time.Now().Unix()); err != nil {
		return fmt.Errorf("failed to clean up sessions: %w", err)
	}
	return nil
}
