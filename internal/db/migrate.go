package db

import (
	"context"

	"github.com/rs/zerolog/log"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
          id                     TEXT PRIMARY KEY,
          name                   TEXT NOT NULL DEFAULT '',
          email                  TEXT NOT NULL DEFAULT '',
          event_notifications    JSONB NOT NULL DEFAULT '{}'::jsonb,
          playlist_notifications JSONB NOT NULL DEFAULT '{}'::jsonb,
          created_at             TIMESTAMPTZ NOT NULL DEFAULT now(),
          updated_at             TIMESTAMPTZ NOT NULL DEFAULT now()
      )`,
	`CREATE TABLE IF NOT EXISTS events (
          id               uuid PRIMARY KEY,
          title            TEXT NOT NULL,
          description      TEXT NOT NULL DEFAULT '',
          location         TEXT NOT NULL DEFAULT '',
          image_url        TEXT NOT NULL DEFAULT '',
          organizer_id     TEXT NOT NULL,
          attendees        JSONB NOT NULL DEFAULT '[]'::jsonb,
          managers         JSONB NOT NULL DEFAULT '[]'::jsonb,
          songs            JSONB NOT NULL DEFAULT '[]'::jsonb,
          track_votes      JSONB NOT NULL DEFAULT '{}'::jsonb,
          user_roles       JSONB NOT NULL DEFAULT '{}'::jsonb,
          pending_invites  JSONB NOT NULL DEFAULT '[]'::jsonb,
          is_public        BOOLEAN NOT NULL DEFAULT TRUE,
          event_start_time TIMESTAMPTZ NOT NULL DEFAULT now(),
          event_end_time   TIMESTAMPTZ,
          created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
          updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
      )`,
	`CREATE INDEX IF NOT EXISTS idx_events_organizer ON events(organizer_id)`,
	`CREATE INDEX IF NOT EXISTS idx_events_public ON events(is_public)`,
	`CREATE TABLE IF NOT EXISTS playlists (
          id              uuid PRIMARY KEY,
          name            TEXT NOT NULL,
          description     TEXT NOT NULL DEFAULT '',
          owner_id        TEXT NOT NULL,
          tracks          JSONB NOT NULL DEFAULT '[]'::jsonb,
          collaborators   JSONB NOT NULL DEFAULT '[]'::jsonb,
          followers       JSONB NOT NULL DEFAULT '[]'::jsonb,
          could_edit      JSONB NOT NULL DEFAULT '[]'::jsonb,
          pending_invites JSONB NOT NULL DEFAULT '[]'::jsonb,
          is_public       BOOLEAN NOT NULL DEFAULT TRUE,
          created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
          updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
      )`,
	`CREATE INDEX IF NOT EXISTS idx_playlists_owner ON playlists(owner_id)`,
	`CREATE INDEX IF NOT EXISTS idx_playlists_public ON playlists(is_public)`,
}

// AutoMigrate creates the schema if it is missing.
func AutoMigrate(ctx context.Context, q Querier) error {
	for _, stmt := range migrations {
		if _, err := q.Exec(ctx, stmt); err != nil {
			log.Error().Err(err).Msg("migrate collab-service")
			return err
		}
	}
	return nil
}
