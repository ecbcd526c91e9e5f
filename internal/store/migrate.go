package store

import (
	"context"
	"fmt"
)

// schema follows the teacher's postgres/migrations.go convention of a
// single idempotent CREATE TABLE IF NOT EXISTS block run at startup, rather
// than a migration-framework dependency the pack never uses.
const schema = `
CREATE TABLE IF NOT EXISTS users (
	id                  BIGSERIAL PRIMARY KEY,
	external_id         TEXT NOT NULL,
	display_name        TEXT NOT NULL DEFAULT '',
	client_ref          TEXT NOT NULL DEFAULT '',
	descriptor          JSONB NOT NULL,
	confidence          REAL NOT NULL DEFAULT 0,
	active              BOOLEAN NOT NULL DEFAULT TRUE,
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	last_recognition_at TIMESTAMPTZ,
	recognition_count   BIGINT NOT NULL DEFAULT 0
);

CREATE UNIQUE INDEX IF NOT EXISTS users_external_id_active_idx
	ON users (external_id) WHERE active;

CREATE TABLE IF NOT EXISTS recognition_logs (
	id          BIGSERIAL PRIMARY KEY,
	user_id     BIGINT,
	event       TEXT NOT NULL,
	outcome     TEXT NOT NULL,
	distance    REAL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Migrate creates the descriptor store's schema if it doesn't already exist.
func (p *Pool) Migrate(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("store: running migrations: %w", err)
	}
	return nil
}
