package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/RoyPeng126/ai-companion-sub000/internal/assistant"
)

const reminderColumns = `id::text, user_id::text, COALESCE(activity_id::text, ''), title,
	COALESCE(category, ''), description, start_at, end_at, remind_at, location,
	completed, completed_at, created_at`

func (s *Store) CreateReminder(ctx context.Context, reminder assistant.Reminder) (assistant.Reminder, error) {
	if strings.TrimSpace(reminder.UserID) == "" {
		return assistant.Reminder{}, fmt.Errorf("reminder user id is required")
	}
	if reminder.StartAt.IsZero() {
		return assistant.Reminder{}, errMissingStart
	}
	if reminder.ID == "" {
		reminder.ID = uuid.NewString()
	}
	if reminder.RemindAt.IsZero() {
		reminder.RemindAt = reminder.StartAt
	}
	var category *string
	if reminder.Category != "" {
		if !reminder.Category.Valid() {
			return assistant.Reminder{}, fmt.Errorf("invalid reminder category %q", reminder.Category)
		}
		value := string(reminder.Category)
		category = &value
	}
	var activityID *string
	if reminder.EventID != "" {
		activityID = &reminder.EventID
	}

	row := s.db.QueryRow(
		ctx,
		`INSERT INTO reminders (id, user_id, activity_id, title, category, description, start_at, end_at, remind_at, location, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING `+reminderColumns,
		reminder.ID,
		reminder.UserID,
		activityID,
		reminder.Title,
		category,
		reminder.Description,
		reminder.StartAt,
		reminder.EndAt,
		reminder.RemindAt,
		reminder.Location,
		s.clk.Now(),
	)
	saved, err := s.scanReminder(row)
	if err != nil {
		return assistant.Reminder{}, fmt.Errorf("insert reminder: %w", err)
	}
	return saved, nil
}

// RemindersBetween returns reminders starting in [from, to), earliest first.
func (s *Store) RemindersBetween(ctx context.Context, userID string, from, to time.Time) ([]assistant.Reminder, error) {
	rows, err := s.db.Query(
		ctx,
		`SELECT `+reminderColumns+`
		 FROM reminders
		 WHERE user_id::text = $1 AND start_at >= $2 AND start_at < $3
		 ORDER BY start_at ASC, created_at ASC`,
		userID,
		from,
		to,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	reminders := make([]assistant.Reminder, 0)
	for rows.Next() {
		reminder, err := s.scanReminder(rows)
		if err != nil {
			return nil, err
		}
		reminders = append(reminders, reminder)
	}
	return reminders, rows.Err()
}

func (s *Store) CompleteReminder(ctx context.Context, userID, reminderID string, at time.Time) error {
	tag, err := s.db.Exec(
		ctx,
		`UPDATE reminders SET completed = TRUE, completed_at = $3
		 WHERE id::text = $1 AND user_id::text = $2`,
		reminderID,
		userID,
		at,
	)
	if err != nil {
		return fmt.Errorf("complete reminder: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) scanReminder(row pgx.Row) (assistant.Reminder, error) {
	var (
		reminder assistant.Reminder
		category string
	)
	if err := row.Scan(
		&reminder.ID,
		&reminder.UserID,
		&reminder.EventID,
		&reminder.Title,
		&category,
		&reminder.Description,
		&reminder.StartAt,
		&reminder.EndAt,
		&reminder.RemindAt,
		&reminder.Location,
		&reminder.Completed,
		&reminder.CompletedAt,
		&reminder.CreatedAt,
	); err != nil {
		return assistant.Reminder{}, err
	}
	reminder.Category = assistant.Category(category)
	reminder.StartAt = reminder.StartAt.In(s.loc)
	reminder.RemindAt = reminder.RemindAt.In(s.loc)
	return reminder, nil
}
