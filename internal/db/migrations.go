// internal/db/migrations.go
package db

import "fmt"

const appSchema = `
CREATE TABLE IF NOT EXISTS apps (
    id          TEXT PRIMARY KEY DEFAULT (lower(hex(randomblob(16)))),
    key         TEXT UNIQUE NOT NULL,
    secret      TEXT NOT NULL,
    name        TEXT DEFAULT '',
    created_at  TEXT DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_apps_key ON apps(key);
`

const eventSchema = `
CREATE TABLE IF NOT EXISTS events (
    id            TEXT PRIMARY KEY,
    app_id        TEXT NOT NULL REFERENCES apps(id) ON DELETE CASCADE,
    channel       TEXT NOT NULL,
    name          TEXT NOT NULL,
    owner_socket  TEXT DEFAULT '',
    payload       TEXT DEFAULT '{}' CHECK (json_valid(payload)),
    created_at    TEXT NOT NULL,
    date          TEXT DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_events_app_channel ON events(app_id, channel);

CREATE TABLE IF NOT EXISTS event_users (
    event_id  TEXT NOT NULL REFERENCES events(id) ON DELETE CASCADE,
    user_id   TEXT NOT NULL,
    PRIMARY KEY (event_id, user_id)
);

CREATE INDEX IF NOT EXISTS idx_event_users_user ON event_users(user_id);
`

const subscriptionSchema = `
CREATE TABLE IF NOT EXISTS subscriptions (
    app_id      TEXT NOT NULL REFERENCES apps(id) ON DELETE CASCADE,
    user_id     TEXT NOT NULL,
    channel     TEXT NOT NULL,
    created_at  TEXT DEFAULT (datetime('now')),
    PRIMARY KEY (app_id, user_id, channel)
);

CREATE INDEX IF NOT EXISTS idx_subscriptions_app_channel ON subscriptions(app_id, channel);
CREATE INDEX IF NOT EXISTS idx_subscriptions_app_user ON subscriptions(app_id, user_id);
`

// RunMigrations applies the schema. Every statement is idempotent so this
// runs safely at each startup.
func (db *DB) RunMigrations() error {
	for _, schema := range []string{appSchema, eventSchema, subscriptionSchema} {
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("failed to run migration: %w", err)
		}
	}
	return nil
}
