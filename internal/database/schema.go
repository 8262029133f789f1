package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema is applied at startup. ledger_entries has no UPDATE/DELETE path in
// the codebase; balance is always derived from the tail entry per user.
const schema = `
CREATE TABLE IF NOT EXISTS users (
    id                UUID PRIMARY KEY,
    email             TEXT NOT NULL UNIQUE,
    display_name      TEXT NOT NULL DEFAULT '',
    subscription_tier TEXT NOT NULL DEFAULT 'free',
    created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS api_keys (
    id         UUID PRIMARY KEY,
    user_id    UUID NOT NULL REFERENCES users(id),
    key_hash   TEXT NOT NULL UNIQUE,
    key_prefix TEXT NOT NULL,
    is_active  BOOLEAN NOT NULL DEFAULT true
);

CREATE TABLE IF NOT EXISTS ai_models (
    id               UUID PRIMARY KEY,
    name             TEXT NOT NULL,
    provider         TEXT NOT NULL,
    endpoint_url     TEXT NOT NULL,
    is_active        BOOLEAN NOT NULL DEFAULT true,
    cost_per_request NUMERIC(10,2) NOT NULL,
    created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS generation_requests (
    id                    UUID PRIMARY KEY,
    user_id               UUID NOT NULL REFERENCES users(id),
    model_id              UUID NOT NULL REFERENCES ai_models(id),
    prompt                TEXT NOT NULL,
    negative_prompt       TEXT NOT NULL DEFAULT '',
    aspect_ratio          TEXT NOT NULL DEFAULT '1:1',
    num_outputs           INT NOT NULL DEFAULT 1,
    style_preset          TEXT NOT NULL DEFAULT '',
    seed                  BIGINT,
    quality               TEXT NOT NULL DEFAULT '',
    api_parameters        JSONB,
    status                TEXT NOT NULL DEFAULT 'pending',
    credits_charged       INT NOT NULL CHECK (credits_charged >= 0),
    error_message         TEXT,
    requested_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
    processing_started_at TIMESTAMPTZ,
    completed_at          TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_generation_requests_user
    ON generation_requests (user_id, requested_at DESC);

CREATE TABLE IF NOT EXISTS ledger_entries (
    id               UUID PRIMARY KEY,
    user_id          UUID NOT NULL REFERENCES users(id),
    request_id       UUID REFERENCES generation_requests(id),
    transaction_type TEXT NOT NULL,
    amount           INT NOT NULL,
    balance_after    INT NOT NULL,
    created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_ledger_entries_user_tail
    ON ledger_entries (user_id, created_at DESC, id DESC);

CREATE TABLE IF NOT EXISTS images (
    id         UUID PRIMARY KEY,
    request_id UUID NOT NULL REFERENCES generation_requests(id),
    user_id    UUID NOT NULL REFERENCES users(id),
    url        TEXT NOT NULL,
    width      INT NOT NULL DEFAULT 0,
    height     INT NOT NULL DEFAULT 0,
    seed       BIGINT,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_images_request ON images (request_id);
`

// ApplySchema creates tables and indexes if they do not exist.
func ApplySchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
