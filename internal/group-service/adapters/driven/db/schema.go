package db

import (
	"context"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS group_members (
		group_id   TEXT        NOT NULL,
		user_id    TEXT        NOT NULL,
		status     TEXT        NOT NULL CHECK (status IN ('pending', 'approved', 'rejected')),
		is_host    BOOLEAN     NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (group_id, user_id)
	)`,
	// one host per group ride
	`CREATE UNIQUE INDEX IF NOT EXISTS group_members_one_host ON group_members (group_id) WHERE is_host`,
	`CREATE TABLE IF NOT EXISTS group_chat_messages (
		id                 BIGSERIAL   PRIMARY KEY,
		group_id           TEXT        NOT NULL,
		user_id            TEXT        NOT NULL,
		user_name          TEXT        NOT NULL,
		user_profile_image TEXT        NOT NULL DEFAULT '',
		message            TEXT        NOT NULL,
		message_type       TEXT        NOT NULL,
		created_at         TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS group_chat_messages_group_id ON group_chat_messages (group_id, id)`,
	`CREATE TABLE IF NOT EXISTS rider_profiles (
		user_id   TEXT PRIMARY KEY,
		name      TEXT NOT NULL,
		image_url TEXT NOT NULL DEFAULT ''
	)`,
}

// Migrate creates the tables the group-service owns.
func (d *DB) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := d.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
