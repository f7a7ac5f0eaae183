package store

import (
	"context"
	"fmt"
)

// Migrate creates the videos table if it does not exist. Schema changes are
// applied by hand in production; this exists so local and test environments
// come up without tooling.
func (s *VideoStore) Migrate(ctx context.Context) error {
	_, err := s.DB.ExecContext(ctx, `
		create table if not exists videos (
			id                  text primary key,
			owner_id            text not null,
			raw_source_key      text not null,
			processing_status   text not null default 'uploading',
			processing_error    text,
			processing_metadata jsonb,
			manifest_url        text,
			available_qualities text[] not null default '{}',
			workflow_handle     text,
			created_at          timestamptz not null default now(),
			updated_at          timestamptz not null default now()
		)`)
	if err != nil {
		return fmt.Errorf("failed to migrate videos table: %w", err)
	}
	_, err = s.DB.ExecContext(ctx,
		`create index if not exists videos_owner_id_idx on videos (owner_id)`)
	if err != nil {
		return fmt.Errorf("failed to create videos indexes: %w", err)
	}
	return nil
}
