// Package store persists applications, events, and durable channel
// subscriptions in sqlite, implementing the collaborator interfaces the
// broker consumes.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/markb/pushlite/internal/broker"
	"github.com/markb/pushlite/internal/db"
)

// Store wraps the database with the broker's persistence operations.
type Store struct {
	db *db.DB
}

// New creates a store over an open database.
func New(database *db.DB) *Store {
	return &Store{db: database}
}

// AppByID implements broker.AppStore.
func (s *Store) AppByID(id string) (broker.App, error) {
	return s.scanApp(s.db.QueryRow(
		"SELECT id, key, secret, name FROM apps WHERE id = ?", id))
}

// AppByKey implements broker.AppStore.
func (s *Store) AppByKey(key string) (broker.App, error) {
	return s.scanApp(s.db.QueryRow(
		"SELECT id, key, secret, name FROM apps WHERE key = ?", key))
}

func (s *Store) scanApp(row *sql.Row) (broker.App, error) {
	var app broker.App
	var secret string
	err := row.Scan(&app.ID, &app.Key, &secret, &app.Name)
	if err == sql.ErrNoRows {
		return broker.App{}, broker.ErrAppNotFound
	}
	if err != nil {
		return broker.App{}, fmt.Errorf("load app: %w", err)
	}
	app.Secret = []byte(secret)
	return app, nil
}

// CreateApp inserts an application row. Used by `pushlite init` to seed a
// runnable instance; provisioning proper is out of scope.
func (s *Store) CreateApp(app broker.App) error {
	_, err := s.db.Exec(
		"INSERT INTO apps (id, key, secret, name) VALUES (?, ?, ?, ?)",
		app.ID, app.Key, string(app.Secret), app.Name)
	if err != nil {
		return fmt.Errorf("create app: %w", err)
	}
	return nil
}

// SaveEvent implements broker.EventStore.
func (s *Store) SaveEvent(ev *broker.Event) error {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return fmt.Errorf("encode event payload: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO events (id, app_id, channel, name, owner_socket, payload, created_at, date)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.AppID, ev.Channel, ev.Name, ev.OwnerID,
		string(payload), ev.CreatedAt.Format(time.RFC3339Nano), ev.Date)
	if err != nil {
		return fmt.Errorf("save event: %w", err)
	}
	return nil
}

// SaveAssociation implements broker.EventStore. Duplicate pairs are ignored
// so replaying a fan-out cannot fail on the primary key.
func (s *Store) SaveAssociation(eventID, userID string) error {
	_, err := s.db.Exec(
		"INSERT OR IGNORE INTO event_users (event_id, user_id) VALUES (?, ?)",
		eventID, userID)
	if err != nil {
		return fmt.Errorf("save association: %w", err)
	}
	return nil
}

// FindSubscriptions implements broker.SubscriptionStore: the user ids
// durably subscribed to a channel.
func (s *Store) FindSubscriptions(appID, channel string) ([]string, error) {
	rows, err := s.db.Query(
		"SELECT user_id FROM subscriptions WHERE app_id = ? AND channel = ?",
		appID, channel)
	if err != nil {
		return nil, fmt.Errorf("find subscriptions: %w", err)
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, fmt.Errorf("find subscriptions: %w", err)
		}
		users = append(users, userID)
	}
	return users, rows.Err()
}

// AddSubscription records a durable per-user channel subscription.
func (s *Store) AddSubscription(appID, userID, channel string) error {
	_, err := s.db.Exec(
		"INSERT OR IGNORE INTO subscriptions (app_id, user_id, channel) VALUES (?, ?, ?)",
		appID, userID, channel)
	if err != nil {
		return fmt.Errorf("add subscription: %w", err)
	}
	return nil
}

// RemoveSubscription drops a durable subscription.
func (s *Store) RemoveSubscription(appID, userID, channel string) error {
	_, err := s.db.Exec(
		"DELETE FROM subscriptions WHERE app_id = ? AND user_id = ? AND channel = ?",
		appID, userID, channel)
	if err != nil {
		return fmt.Errorf("remove subscription: %w", err)
	}
	return nil
}

// AliasesFor implements broker.AliasSource: every durable subscription row
// becomes one alias of the user's personal channel, so subscribing to
// personal-<userID> resolves to the user's subscribed channels.
func (s *Store) AliasesFor(appID string) (map[string][]string, error) {
	rows, err := s.db.Query(
		"SELECT user_id, channel FROM subscriptions WHERE app_id = ? ORDER BY created_at",
		appID)
	if err != nil {
		return nil, fmt.Errorf("load aliases: %w", err)
	}
	defer rows.Close()

	aliases := make(map[string][]string)
	for rows.Next() {
		var userID, channel string
		if err := rows.Scan(&userID, &channel); err != nil {
			return nil, fmt.Errorf("load aliases: %w", err)
		}
		personal := broker.PrefixPersonal + userID
		aliases[personal] = append(aliases[personal], channel)
	}
	return aliases, rows.Err()
}

// EventsFor returns the persisted events associated with a user, oldest
// first, up to limit. This backs personal-channel history replay.
func (s *Store) EventsFor(appID, userID string, limit int) ([]*broker.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(
		`SELECT e.id, e.app_id, e.channel, e.name, e.owner_socket, e.payload, e.created_at, e.date
		 FROM events e
		 JOIN event_users eu ON eu.event_id = e.id
		 WHERE e.app_id = ? AND eu.user_id = ?
		 ORDER BY e.created_at LIMIT ?`,
		appID, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}
	defer rows.Close()

	var events []*broker.Event
	for rows.Next() {
		ev := &broker.Event{}
		var payload, createdAt string
		if err := rows.Scan(&ev.ID, &ev.AppID, &ev.Channel, &ev.Name, &ev.OwnerID,
			&payload, &createdAt, &ev.Date); err != nil {
			return nil, fmt.Errorf("load events: %w", err)
		}
		if err := json.Unmarshal([]byte(payload), &ev.Payload); err != nil {
			return nil, fmt.Errorf("decode event payload: %w", err)
		}
		if ts, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			ev.CreatedAt = ts
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
