package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jmhodges/clock"

	"github.com/RoyPeng126/ai-companion-sub000/internal/db"
	"github.com/RoyPeng126/ai-companion-sub000/internal/wizard"
)

// SessionStore keeps wizard sessions in wizard_sessions so every API replica
// sees the same dialogue. Expired rows read as absent and may be overwritten
// by a new session.
type SessionStore struct {
	db  db.Querier
	clk clock.Clock
	ttl time.Duration
}

var _ wizard.Store = (*SessionStore)(nil)

func NewSessionStore(q db.Querier, clk clock.Clock, ttl time.Duration) *SessionStore {
	if clk == nil {
		clk = clock.New()
	}
	if ttl <= 0 {
		ttl = wizard.DefaultSessionTTL
	}
	return &SessionStore{db: q, clk: clk, ttl: ttl}
}

func (s *SessionStore) Get(ctx context.Context, userID string) (wizard.Session, bool, error) {
	var (
		session wizard.Session
		stage   string
		raw     []byte
	)
	err := s.db.QueryRow(
		ctx,
		`SELECT user_id, stage, details, version, updated_at
		 FROM wizard_sessions
		 WHERE user_id = $1 AND expires_at > $2`,
		userID,
		s.clk.Now(),
	).Scan(&session.UserID, &stage, &raw, &session.Version, &session.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return wizard.Session{}, false, nil
	}
	if err != nil {
		return wizard.Session{}, false, err
	}
	if err := json.Unmarshal(raw, &session.Details); err != nil {
		return wizard.Session{}, false, fmt.Errorf("decode wizard details: %w", err)
	}
	session.Stage = wizard.Stage(stage)
	return session, true, nil
}

func (s *SessionStore) Put(ctx context.Context, session wizard.Session) (wizard.Session, error) {
	raw, err := json.Marshal(session.Details)
	if err != nil {
		return wizard.Session{}, fmt.Errorf("encode wizard details: %w", err)
	}
	now := s.clk.Now()
	expiresAt := now.Add(s.ttl)
	next := session.Version + 1

	var query string
	if session.Version == 0 {
		query = `INSERT INTO wizard_sessions (user_id, stage, details, version, updated_at, expires_at)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (user_id) DO UPDATE
			 SET stage = EXCLUDED.stage, details = EXCLUDED.details, version = EXCLUDED.version,
			     updated_at = EXCLUDED.updated_at, expires_at = EXCLUDED.expires_at
			 WHERE wizard_sessions.expires_at <= EXCLUDED.updated_at`
	} else {
		query = `UPDATE wizard_sessions
			 SET stage = $2, details = $3, version = $4, updated_at = $5, expires_at = $6
			 WHERE user_id = $1 AND version = $7 AND expires_at > $5`
	}
	args := []any{session.UserID, string(session.Stage), string(raw), next, now, expiresAt}
	if session.Version != 0 {
		args = append(args, session.Version)
	}

	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return wizard.Session{}, fmt.Errorf("save wizard session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return wizard.Session{}, wizard.ErrConflict
	}
	session.Version = next
	session.UpdatedAt = now
	return session, nil
}

func (s *SessionStore) Delete(ctx context.Context, userID string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM wizard_sessions WHERE user_id = $1`, userID)
	return err
}

// PurgeExpired removes rows past their expiry and reports how many.
func (s *SessionStore) PurgeExpired(ctx context.Context) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM wizard_sessions WHERE expires_at <= $1`, s.clk.Now())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
