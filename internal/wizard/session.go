// Package wizard runs the multi-turn "create activity" dialogue. Each elder has
// at most one Session, kept in a Store between turns.
package wizard

import (
	"context"
	"errors"
	"time"
)

type Stage string

const (
	StageAwaitDetails        Stage = "await_details"
	StageAwaitConfirm        Stage = "await_confirm"
	StageAwaitReminderChoice Stage = "await_reminder_choice"
	// StageDone is reported when a turn removes the session.
	StageDone Stage = "done"
)

var (
	// ErrConflict is returned by Store.Put when the stored session changed
	// since it was read.
	ErrConflict = errors.New("wizard session version conflict")
)

// Details is the partially filled activity. Date is YYYY-MM-DD and Time is
// HH:MM in the resolver's zone.
type Details struct {
	Title       string    `json:"title,omitempty"`
	Date        string    `json:"date,omitempty"`
	Time        string    `json:"time,omitempty"`
	Location    string    `json:"location,omitempty"`
	Description string    `json:"description,omitempty"`
	StartAt     time.Time `json:"startAt,omitzero"`
	EventID     string    `json:"eventId,omitempty"`
}

func (d Details) missing() []string {
	var fields []string
	if d.Title == "" {
		fields = append(fields, "活動名稱")
	}
	if d.Date == "" {
		fields = append(fields, "日期")
	}
	if d.Time == "" {
		fields = append(fields, "時間")
	}
	return fields
}

type Session struct {
	UserID    string    `json:"userId"`
	Stage     Stage     `json:"stage"`
	Details   Details   `json:"details"`
	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Store keeps one session per user. Put succeeds only when session.Version
// equals the stored version (zero for a new session) and returns the saved
// session with its version advanced.
type Store interface {
	Get(ctx context.Context, userID string) (Session, bool, error)
	Put(ctx context.Context, session Session) (Session, error)
	Delete(ctx context.Context, userID string) error
}
