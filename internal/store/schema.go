package store

import "context"

const schema = `
CREATE TABLE IF NOT EXISTS profiles (
	user_id TEXT PRIMARY KEY,
	xp INTEGER NOT NULL DEFAULT 0 CHECK (xp >= 0),
	energy INTEGER NOT NULL DEFAULT 0 CHECK (energy >= 0),
	tier TEXT NOT NULL DEFAULT 'basic',
	last_interaction_date DATE NOT NULL DEFAULT CURRENT_DATE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS transaction_logs (
	id BIGSERIAL PRIMARY KEY,
	user_id TEXT NOT NULL,
	xp_delta INTEGER NOT NULL DEFAULT 0,
	energy_delta INTEGER NOT NULL DEFAULT 0,
	reason TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS transaction_logs_user_idx ON transaction_logs (user_id, id DESC);

CREATE TABLE IF NOT EXISTS personas (
	user_id TEXT NOT NULL,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	member_nickname TEXT,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (user_id, role)
);

CREATE TABLE IF NOT EXISTS memories (
	id BIGSERIAL PRIMARY KEY,
	user_id TEXT NOT NULL,
	role TEXT NOT NULL,
	question_label TEXT NOT NULL,
	answer_text TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS memories_owner_idx ON memories (user_id, role, id);

CREATE TABLE IF NOT EXISTS share_tokens (
	token TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	role TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS training_steps (
	user_id TEXT NOT NULL,
	role TEXT NOT NULL,
	step INTEGER NOT NULL,
	completed_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (user_id, role, step)
);

CREATE TABLE IF NOT EXISTS voice_identities (
	voice_id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	source TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS device_push_tokens (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	user_id TEXT NOT NULL,
	token TEXT NOT NULL,
	platform TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (user_id, token)
);

CREATE TABLE IF NOT EXISTS persona_events (
	id BIGSERIAL PRIMARY KEY,
	user_id TEXT NOT NULL,
	role TEXT,
	event_type TEXT NOT NULL,
	event_data JSONB NOT NULL DEFAULT '{}',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS persona_events_user_idx ON persona_events (user_id, created_at);
`

// Migrate creates any missing tables. It is safe to run repeatedly.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return writeErr("migrate", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}
