package db

const Schema = `
CREATE TABLE IF NOT EXISTS members (
    id UUID PRIMARY KEY,
    discord_id TEXT NOT NULL,
    discord_name TEXT NOT NULL,
    discord_avatar TEXT,
    display_name TEXT,
    avatar_key TEXT,
    gender TEXT,
    show_on_leaderboard BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CONSTRAINT members_discord_id_key UNIQUE (discord_id)
);

-- access_token and refresh_token hold secretbox ciphertext, never plaintext
CREATE TABLE IF NOT EXISTS external_credentials (
    member_id UUID NOT NULL REFERENCES members(id) ON DELETE CASCADE,
    provider TEXT NOT NULL,
    external_user_id TEXT NOT NULL,
    access_token TEXT NOT NULL,
    refresh_token TEXT NOT NULL,
    expires_at BIGINT NOT NULL,
    scope TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CONSTRAINT external_credentials_member_provider_key UNIQUE (member_id, provider)
);

CREATE INDEX IF NOT EXISTS idx_members_show_on_leaderboard
    ON members (show_on_leaderboard) WHERE show_on_leaderboard;
`
