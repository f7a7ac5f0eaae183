// Package store persists video rows and their processing state in Postgres.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"
	"github.com/streamforge/vodflow/errors"
	"github.com/streamforge/vodflow/video"
)

// Video is one row of the videos table.
type Video struct {
	ID                 string
	OwnerID            string
	RawSourceKey       string
	ProcessingStatus   Status
	ProcessingError    string
	ProcessingMetadata *video.SourceMetadata
	ManifestURL        string
	AvailableQualities []string
	WorkflowHandle     string
	CreatedAt          sql.NullTime
	UpdatedAt          sql.NullTime
}

type VideoStore struct {
	DB *sql.DB
}

func NewVideoStore(db *sql.DB) *VideoStore {
	return &VideoStore{DB: db}
}

const videoColumns = `id, owner_id, raw_source_key, processing_status, coalesce(processing_error, ''),
		processing_metadata, coalesce(manifest_url, ''), available_qualities,
		coalesce(workflow_handle, ''), created_at, updated_at`

// GetVideo loads one row. A missing row is a Validation error so callers
// treat it as fatal rather than retrying.
func (s *VideoStore) GetVideo(ctx context.Context, videoID string) (Video, error) {
	row := s.DB.QueryRowContext(ctx, `select `+videoColumns+` from videos where id = $1`, videoID)

	var v Video
	var metadata []byte
	err := row.Scan(
		&v.ID, &v.OwnerID, &v.RawSourceKey, &v.ProcessingStatus, &v.ProcessingError,
		&metadata, &v.ManifestURL, pq.Array(&v.AvailableQualities),
		&v.WorkflowHandle, &v.CreatedAt, &v.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return Video{}, errors.Validation("video %q not found", videoID)
	}
	if err != nil {
		return Video{}, fmt.Errorf("failed to load video %q: %w", videoID, err)
	}
	if len(metadata) > 0 {
		v.ProcessingMetadata = &video.SourceMetadata{}
		if err := json.Unmarshal(metadata, v.ProcessingMetadata); err != nil {
			return Video{}, fmt.Errorf("failed to parse metadata for video %q: %w", videoID, err)
		}
	}
	return v, nil
}

// Claim atomically moves a queued video to preparing. A video in any other
// state cannot be claimed; that is a fatal precondition failure, not a
// retryable one.
func (s *VideoStore) Claim(ctx context.Context, videoID string) error {
	res, err := s.DB.ExecContext(ctx,
		`update videos set processing_status = $2, updated_at = now()
		 where id = $1 and processing_status = $3`,
		videoID, StatusPreparing, StatusQueued,
	)
	if err != nil {
		return fmt.Errorf("failed to claim video %q: %w", videoID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to claim video %q: %w", videoID, err)
	}
	if n == 0 {
		return errors.Validation("video %q is missing or not in queued state", videoID)
	}
	return nil
}

// UpdateStatus advances the row one step along the chain. The transition is
// validated before the write; an illegal transition is fatal.
func (s *VideoStore) UpdateStatus(ctx context.Context, videoID string, from, to Status) error {
	if !from.CanTransitionTo(to) {
		return errors.Validation("illegal status transition %s -> %s for video %q", from, to, videoID)
	}
	res, err := s.DB.ExecContext(ctx,
		`update videos set processing_status = $2, updated_at = now()
		 where id = $1 and processing_status = $3`,
		videoID, to, from,
	)
	if err != nil {
		return fmt.Errorf("failed to update status of video %q to %s: %w", videoID, to, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update status of video %q to %s: %w", videoID, to, err)
	}
	if n == 0 {
		return errors.Validation("video %q is missing or no longer in %s state", videoID, from)
	}
	return nil
}

// MarkFailed records a terminal failure: status failed, the error message
// persisted, and the workflow handle cleared. Already-terminal rows are left
// alone.
func (s *VideoStore) MarkFailed(ctx context.Context, videoID, errMsg string) error {
	_, err := s.DB.ExecContext(ctx,
		`update videos set processing_status = $2, processing_error = $3,
		     workflow_handle = null, updated_at = now()
		 where id = $1 and processing_status not in ($4, $5)`,
		videoID, StatusFailed, errMsg, StatusCompleted, StatusFailed,
	)
	if err != nil {
		return fmt.Errorf("failed to mark video %q failed: %w", videoID, err)
	}
	return nil
}

// SaveMetadata persists the probed source description.
func (s *VideoStore) SaveMetadata(ctx context.Context, videoID string, md video.SourceMetadata) error {
	blob, err := json.Marshal(md)
	if err != nil {
		return fmt.Errorf("failed to serialize metadata for video %q: %w", videoID, err)
	}
	_, err = s.DB.ExecContext(ctx,
		`update videos set processing_metadata = $2, updated_at = now() where id = $1`,
		videoID, blob,
	)
	if err != nil {
		return fmt.Errorf("failed to save metadata for video %q: %w", videoID, err)
	}
	return nil
}

// SetWorkflowHandle correlates the row to the broker-side workflow.
func (s *VideoStore) SetWorkflowHandle(ctx context.Context, videoID, handle string) error {
	_, err := s.DB.ExecContext(ctx,
		`update videos set workflow_handle = $2, updated_at = now() where id = $1`,
		videoID, handle,
	)
	if err != nil {
		return fmt.Errorf("failed to set workflow handle for video %q: %w", videoID, err)
	}
	return nil
}

// Finalize completes the row in one commit: manifest URL and qualities set,
// error and workflow handle cleared.
func (s *VideoStore) Finalize(ctx context.Context, videoID, manifestURL string, qualities []string) error {
	res, err := s.DB.ExecContext(ctx,
		`update videos set processing_status = $2, manifest_url = $3,
		     available_qualities = $4, processing_error = null,
		     workflow_handle = null, updated_at = now()
		 where id = $1 and processing_status = $5`,
		videoID, StatusCompleted, manifestURL, pq.Array(qualities), StatusFinalizing,
	)
	if err != nil {
		return fmt.Errorf("failed to finalize video %q: %w", videoID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to finalize video %q: %w", videoID, err)
	}
	if n == 0 {
		return errors.Validation("video %q is missing or not in finalizing state", videoID)
	}
	return nil
}
