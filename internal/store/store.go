// Package store is the Postgres implementation of the assistant, wizard and
// composer repositories.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jmhodges/clock"

	"github.com/RoyPeng126/ai-companion-sub000/internal/assistant"
	"github.com/RoyPeng126/ai-companion-sub000/internal/compose"
	"github.com/RoyPeng126/ai-companion-sub000/internal/db"
	"github.com/RoyPeng126/ai-companion-sub000/internal/wizard"
)

// ErrNotFound also matches assistant.ErrNoSuchItem.
var ErrNotFound = fmt.Errorf("store: %w", assistant.ErrNoSuchItem)

// activityReminderLead is how long before an activity its reminder fires.
const activityReminderLead = 30 * time.Minute

type Store struct {
	db  db.TxBeginner
	clk clock.Clock
	loc *time.Location
}

var (
	_ assistant.Repository = (*Store)(nil)
	_ wizard.Repository    = (*Store)(nil)
	_ compose.NoticeSource = (*Store)(nil)
)

func New(pool db.TxBeginner, clk clock.Clock, loc *time.Location) *Store {
	if clk == nil {
		clk = clock.New()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Store{db: pool, clk: clk, loc: loc}
}

type User struct {
	ID    string
	Name  string
	Role  string
	Phone *string
	Email *string
}

func (s *Store) GetUser(ctx context.Context, userID string) (User, error) {
	var user User
	err := s.db.QueryRow(
		ctx,
		`SELECT id::text, name, role, phone, email FROM users WHERE id::text = $1`,
		userID,
	).Scan(&user.ID, &user.Name, &user.Role, &user.Phone, &user.Email)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, err
	}
	return user, nil
}

// CreateUser inserts a user and returns its id; an empty ID is generated.
func (s *Store) CreateUser(ctx context.Context, user User) (string, error) {
	id := strings.TrimSpace(user.ID)
	if id == "" {
		id = uuid.NewString()
	}
	role := strings.TrimSpace(user.Role)
	if role == "" {
		role = "elder"
	}
	_, err := s.db.Exec(
		ctx,
		`INSERT INTO users (id, name, role, phone, email, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		id,
		strings.TrimSpace(user.Name),
		role,
		user.Phone,
		user.Email,
		s.clk.Now(),
	)
	if err != nil {
		return "", fmt.Errorf("insert user: %w", err)
	}
	return id, nil
}

func (s *Store) FindUser(ctx context.Context, query string) (assistant.Person, error) {
	needle := strings.TrimSpace(query)
	if needle == "" {
		return assistant.Person{}, ErrNotFound
	}
	var (
		person assistant.Person
		phone  *string
		email  *string
	)
	err := s.db.QueryRow(
		ctx,
		`SELECT id::text, name, phone, email
		 FROM users
		 WHERE name = $1 OR phone = $1 OR lower(email) = lower($1)
		 ORDER BY (name = $1) DESC, created_at ASC
		 LIMIT 1`,
		needle,
	).Scan(&person.ID, &person.Name, &phone, &email)
	if errors.Is(err, pgx.ErrNoRows) {
		return assistant.Person{}, ErrNotFound
	}
	if err != nil {
		return assistant.Person{}, err
	}
	person.Phone = deref(phone)
	person.Email = deref(email)
	return person, nil
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
