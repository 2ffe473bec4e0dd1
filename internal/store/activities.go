package store

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/RoyPeng126/ai-companion-sub000/internal/assistant"
	"github.com/RoyPeng126/ai-companion-sub000/internal/db"
	"github.com/RoyPeng126/ai-companion-sub000/internal/wizard"
)

var errMissingStart = errors.New("activity start time is required")

func (s *Store) CreateActivity(ctx context.Context, userID string, details wizard.Details) (string, error) {
	if details.StartAt.IsZero() {
		return "", errMissingStart
	}
	activityID := uuid.NewString()
	now := s.clk.Now()
	err := db.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(
			ctx,
			`INSERT INTO activities (id, creator_id, title, description, location, start_at, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			activityID,
			userID,
			details.Title,
			details.Description,
			details.Location,
			details.StartAt,
			now,
		); err != nil {
			return fmt.Errorf("insert activity: %w", err)
		}
		if _, err := tx.Exec(
			ctx,
			`INSERT INTO activity_participants (activity_id, user_id, status, created_at, responded_at)
			 VALUES ($1, $2, 'going', $3, $3)`,
			activityID,
			userID,
			now,
		); err != nil {
			return fmt.Errorf("insert creator participant: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return activityID, nil
}

// InviteFriends inserts one invited row per accepted friend. Each insert is
// independent; failures are counted and logged, not returned.
func (s *Store) InviteFriends(ctx context.Context, userID, eventID string) (wizard.FanoutResult, error) {
	friends, err := s.AcceptedFriendIDs(ctx, userID)
	if err != nil {
		return wizard.FanoutResult{}, fmt.Errorf("list friends: %w", err)
	}
	var result wizard.FanoutResult
	now := s.clk.Now()
	for _, friendID := range friends {
		tag, err := s.db.Exec(
			ctx,
			`INSERT INTO activity_participants (activity_id, user_id, status, created_at)
			 VALUES ($1, $2, 'invited', $3)
			 ON CONFLICT (activity_id, user_id) DO NOTHING`,
			eventID,
			friendID,
			now,
		)
		if err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			log.Printf("activity invite failed event_id=%s friend_id=%s err=%v", eventID, friendID, err)
			result.Failed++
			continue
		}
		if tag.RowsAffected() > 0 {
			result.Invited++
		}
	}
	return result, nil
}

func (s *Store) CreateActivityReminder(ctx context.Context, userID string, details wizard.Details) error {
	if details.StartAt.IsZero() {
		return errMissingStart
	}
	_, err := s.CreateReminder(ctx, assistant.Reminder{
		UserID:      userID,
		EventID:     details.EventID,
		Title:       details.Title,
		Category:    assistant.CategoryOther,
		Description: details.Description,
		StartAt:     details.StartAt,
		RemindAt:    details.StartAt.Add(-activityReminderLead),
		Location:    details.Location,
	})
	return err
}

// PendingActivityInvites lists invitations to activities that have not
// started yet.
func (s *Store) PendingActivityInvites(ctx context.Context, userID string) ([]assistant.ActivityInvite, error) {
	rows, err := s.db.Query(
		ctx,
		`SELECT a.id::text, a.title, a.start_at, a.location, u.id::text, u.name, u.phone, u.email
		 FROM activity_participants p
		 JOIN activities a ON a.id = p.activity_id
		 JOIN users u ON u.id = a.creator_id
		 WHERE p.user_id::text = $1 AND p.status = 'invited' AND a.start_at >= $2
		 ORDER BY p.created_at ASC, a.start_at ASC`,
		userID,
		s.clk.Now(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	invites := make([]assistant.ActivityInvite, 0)
	for rows.Next() {
		var (
			invite assistant.ActivityInvite
			phone  *string
			email  *string
		)
		if err := rows.Scan(
			&invite.EventID,
			&invite.Title,
			&invite.StartAt,
			&invite.Location,
			&invite.Host.ID,
			&invite.Host.Name,
			&phone,
			&email,
		); err != nil {
			return nil, err
		}
		invite.StartAt = invite.StartAt.In(s.loc)
		invite.Host.Phone = deref(phone)
		invite.Host.Email = deref(email)
		invites = append(invites, invite)
	}
	return invites, rows.Err()
}

// RespondActivityInvite records the answer; accepting also gives the invitee
// a reminder before the activity starts.
func (s *Store) RespondActivityInvite(ctx context.Context, userID, eventID string, accept bool) error {
	next := "declined"
	if accept {
		next = "going"
	}
	now := s.clk.Now()
	return db.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(
			ctx,
			`UPDATE activity_participants
			 SET status = $3, responded_at = $4
			 WHERE activity_id::text = $1 AND user_id::text = $2 AND status = 'invited'`,
			eventID,
			userID,
			next,
			now,
		)
		if err != nil {
			return fmt.Errorf("update participant: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		if !accept {
			return nil
		}
		if _, err := tx.Exec(
			ctx,
			`INSERT INTO reminders (id, user_id, activity_id, title, category, description, start_at, remind_at, location, created_at)
			 SELECT $1, $2, a.id, a.title, 'other', a.description, a.start_at, a.start_at - $4::interval, a.location, $5
			 FROM activities a
			 WHERE a.id::text = $3`,
			uuid.NewString(),
			userID,
			eventID,
			fmt.Sprintf("%d minutes", int(activityReminderLead.Minutes())),
			now,
		); err != nil {
			return fmt.Errorf("insert invitee reminder: %w", err)
		}
		return nil
	})
}
