package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/RoyPeng126/ai-companion-sub000/internal/assistant"
	"github.com/RoyPeng126/ai-companion-sub000/internal/db"
)

const friendPairClause = `LEAST(requester_id, addressee_id) = LEAST($1::uuid, $2::uuid)
	AND GREATEST(requester_id, addressee_id) = GREATEST($1::uuid, $2::uuid)`

// RequestFriend creates a pending link. A previously declined link is
// reopened with the new requester.
func (s *Store) RequestFriend(ctx context.Context, fromUserID, toUserID string) error {
	return db.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		var (
			linkID string
			status string
		)
		err := tx.QueryRow(
			ctx,
			`SELECT id::text, status FROM friend_links WHERE `+friendPairClause+` FOR UPDATE`,
			fromUserID,
			toUserID,
		).Scan(&linkID, &status)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			_, err = tx.Exec(
				ctx,
				`INSERT INTO friend_links (id, requester_id, addressee_id, status, created_at)
				 VALUES ($1, $2, $3, 'pending', $4)`,
				uuid.NewString(),
				fromUserID,
				toUserID,
				s.clk.Now(),
			)
			return err
		case err != nil:
			return err
		case status != "declined":
			return assistant.ErrAlreadyLinked
		}
		_, err = tx.Exec(
			ctx,
			`UPDATE friend_links
			 SET requester_id = $2, addressee_id = $3, status = 'pending', created_at = $4, responded_at = NULL
			 WHERE id = $1`,
			linkID,
			fromUserID,
			toUserID,
			s.clk.Now(),
		)
		return err
	})
}

func (s *Store) PendingFriendInvites(ctx context.Context, userID string) ([]assistant.FriendInvite, error) {
	rows, err := s.db.Query(
		ctx,
		`SELECT fl.id::text, u.id::text, u.name, u.phone, u.email, fl.created_at
		 FROM friend_links fl
		 JOIN users u ON u.id = fl.requester_id
		 WHERE fl.addressee_id::text = $1 AND fl.status = 'pending'
		 ORDER BY fl.created_at ASC, fl.id ASC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	invites := make([]assistant.FriendInvite, 0)
	for rows.Next() {
		var (
			invite assistant.FriendInvite
			phone  *string
			email  *string
		)
		if err := rows.Scan(&invite.ID, &invite.From.ID, &invite.From.Name, &phone, &email, &invite.CreatedAt); err != nil {
			return nil, err
		}
		invite.From.Phone = deref(phone)
		invite.From.Email = deref(email)
		invites = append(invites, invite)
	}
	return invites, rows.Err()
}

// RespondFriendInvite locks the link row so two replies cannot both land.
func (s *Store) RespondFriendInvite(ctx context.Context, userID, inviteID string, accept bool) error {
	next := "declined"
	if accept {
		next = "accepted"
	}
	return db.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		var status string
		err := tx.QueryRow(
			ctx,
			`SELECT status FROM friend_links
			 WHERE id::text = $1 AND addressee_id::text = $2
			 FOR UPDATE`,
			inviteID,
			userID,
		).Scan(&status)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if status != "pending" {
			return ErrNotFound
		}
		if _, err := tx.Exec(
			ctx,
			`UPDATE friend_links SET status = $2, responded_at = $3 WHERE id::text = $1`,
			inviteID,
			next,
			s.clk.Now(),
		); err != nil {
			return fmt.Errorf("update friend link: %w", err)
		}
		return nil
	})
}

// AcceptedFriendIDs lists the users linked to userID in either direction.
func (s *Store) AcceptedFriendIDs(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.Query(
		ctx,
		`SELECT CASE WHEN requester_id::text = $1 THEN addressee_id::text ELSE requester_id::text END
		 FROM friend_links
		 WHERE status = 'accepted' AND (requester_id::text = $1 OR addressee_id::text = $1)
		 ORDER BY created_at ASC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
