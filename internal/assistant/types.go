// Package assistant executes classified voice commands. Classification lives
// in package intent; everything here may read or write through Repository.
package assistant

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNoSuchItem means the referenced user, invite or reminder does not
	// exist for the caller.
	ErrNoSuchItem = errors.New("no such item")
	// ErrAlreadyLinked means a friend link between the two users exists.
	ErrAlreadyLinked = errors.New("friend link already exists")
)

type Category string

const (
	CategoryMedicine    Category = "medicine"
	CategoryExercise    Category = "exercise"
	CategoryAppointment Category = "appointment"
	CategoryChat        Category = "chat"
	CategoryOther       Category = "other"
)

func (c Category) Valid() bool {
	switch c {
	case CategoryMedicine, CategoryExercise, CategoryAppointment, CategoryChat, CategoryOther:
		return true
	}
	return false
}

type Caller struct {
	UserID string
	Role   string
	Name   string
}

type Person struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`
}

// Reminder is a personal reminder or the creator's copy of an activity.
// Category is empty when unknown.
type Reminder struct {
	ID          string     `json:"id"`
	UserID      string     `json:"userId"`
	EventID     string     `json:"eventId,omitempty"`
	Title       string     `json:"title"`
	Category    Category   `json:"category,omitempty"`
	Description string     `json:"description,omitempty"`
	StartAt     time.Time  `json:"startAt"`
	EndAt       *time.Time `json:"endAt,omitempty"`
	RemindAt    time.Time  `json:"remindAt"`
	Location    string     `json:"location,omitempty"`
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

type FriendInvite struct {
	ID        string    `json:"id"`
	From      Person    `json:"from"`
	CreatedAt time.Time `json:"createdAt"`
}

type ActivityInvite struct {
	EventID  string    `json:"eventId"`
	Title    string    `json:"title"`
	Host     Person    `json:"host"`
	StartAt  time.Time `json:"startAt"`
	Location string    `json:"location,omitempty"`
}

// Repository is the storage the command handlers need. Listings come back
// in the order they are read aloud, oldest first.
type Repository interface {
	// FindUser matches query against name, phone or email.
	FindUser(ctx context.Context, query string) (Person, error)
	RequestFriend(ctx context.Context, fromUserID, toUserID string) error
	PendingFriendInvites(ctx context.Context, userID string) ([]FriendInvite, error)
	RespondFriendInvite(ctx context.Context, userID, inviteID string, accept bool) error
	PendingActivityInvites(ctx context.Context, userID string) ([]ActivityInvite, error)
	RespondActivityInvite(ctx context.Context, userID, eventID string, accept bool) error
	CreateReminder(ctx context.Context, reminder Reminder) (Reminder, error)
	RemindersBetween(ctx context.Context, userID string, from, to time.Time) ([]Reminder, error)
	CompleteReminder(ctx context.Context, userID, reminderID string, at time.Time) error
}

// ReminderFields is what an external extractor reads out of a reminder
// request. Date is YYYY-MM-DD and Time is HH:MM; any field may be empty.
type ReminderFields struct {
	Title    string `json:"title"`
	Category string `json:"category"`
	Date     string `json:"date"`
	Time     string `json:"time"`
}

type ReminderClassifier interface {
	ClassifyReminder(ctx context.Context, text string) (ReminderFields, error)
}
