package postgres

import (
	"context"
	"fmt"

	"github.com/0xsequence/token-directory/internal/domain"
	"github.com/0xsequence/token-directory/internal/storage"
)

// SnapshotStore implements storage.SnapshotStore using PostgreSQL.
type SnapshotStore struct {
	pool *Pool
}

// NewSnapshotStore creates a new SnapshotStore.
func NewSnapshotStore(pool *Pool) *SnapshotStore {
	return &SnapshotStore{pool: pool}
}

// Compile-time interface check.
var _ storage.SnapshotStore = (*SnapshotStore)(nil)

// Insert adds a snapshot. Returns ErrDuplicateKey if snapshot_id exists.
func (s *SnapshotStore) Insert(ctx context.Context, snap *domain.ListSnapshot) error {
	if snap == nil || snap.SnapshotID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO list_snapshots (
			snapshot_id, run_id, folder, file,
			version_major, version_minor, version_patch,
			content_hash, token_count, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := s.pool.Exec(ctx, query,
		snap.SnapshotID,
		snap.RunID,
		snap.Folder,
		snap.File,
		snap.Version.Major,
		snap.Version.Minor,
		snap.Version.Patch,
		snap.ContentHash,
		snap.TokenCount,
		snap.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

// GetByFile returns snapshots of folder/file, newest first.
func (s *SnapshotStore) GetByFile(ctx context.Context, folder, file string) ([]*domain.ListSnapshot, error) {
	query := `
		SELECT snapshot_id, run_id, folder, file,
		       version_major, version_minor, version_patch,
		       content_hash, token_count, created_at
		FROM list_snapshots
		WHERE folder = $1 AND file = $2
		ORDER BY created_at DESC, snapshot_id ASC
	`

	rows, err := s.pool.Query(ctx, query, folder, file)
	if err != nil {
		return nil, fmt.Errorf("get snapshots by file: %w", err)
	}
	defer rows.Close()

	var snaps []*domain.ListSnapshot
	for rows.Next() {
		var snap domain.ListSnapshot
		err := rows.Scan(
			&snap.SnapshotID,
			&snap.RunID,
			&snap.Folder,
			&snap.File,
			&snap.Version.Major,
			&snap.Version.Minor,
			&snap.Version.Patch,
			&snap.ContentHash,
			&snap.TokenCount,
			&snap.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot row: %w", err)
		}
		snaps = append(snaps, &snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshot rows: %w", err)
	}
	return snaps, nil
}
