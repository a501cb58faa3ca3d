package storage

import (
	"context"
	"time"

	"github.com/0xsequence/token-directory/internal/domain"
)

// LoadedList is a list together with the hash of the bytes it was read from.
type LoadedList struct {
	List *domain.TokenList
	Hash string // hex sha256 of the file as read
}

// ListStore provides access to per-chain list files.
type ListStore interface {
	// Load reads folder/file. Returns ErrNotFound if the file does not exist.
	Load(ctx context.Context, folder, file string) (*LoadedList, error)

	// Save overwrites folder/file with list. expectedHash is the hash returned
	// by Load, or "" when the file is being created. Returns ErrConflict if the
	// file on disk no longer matches expectedHash. The new content hash is returned.
	Save(ctx context.Context, folder, file string, list *domain.TokenList, expectedHash string) (string, error)
}

// RunStore provides access to sync_runs storage.
type RunStore interface {
	// Insert adds a run record. Returns ErrDuplicateKey if run_id exists.
	Insert(ctx context.Context, r *domain.RunRecord) error

	// GetByID retrieves a run by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, runID string) (*domain.RunRecord, error)

	// ListByKind returns the most recent runs of a kind, newest first.
	ListByKind(ctx context.Context, kind domain.RunKind, limit int) ([]*domain.RunRecord, error)
}

// SnapshotStore provides access to list_snapshots storage.
type SnapshotStore interface {
	// Insert adds a snapshot. Returns ErrDuplicateKey if snapshot_id exists.
	Insert(ctx context.Context, s *domain.ListSnapshot) error

	// GetByFile returns snapshots of folder/file, newest first.
	GetByFile(ctx context.Context, folder, file string) ([]*domain.ListSnapshot, error)
}

// VolumeStore provides access to volume_observations storage.
type VolumeStore interface {
	// InsertBulk adds observations. Empty input is a no-op.
	InsertBulk(ctx context.Context, obs []*domain.VolumeObservation) error

	// GetByRun returns observations of a run ordered by chain, rank, address.
	GetByRun(ctx context.Context, runID string) ([]*domain.VolumeObservation, error)
}

// PlatformCache caches address->coin id maps per price-API platform.
type PlatformCache interface {
	// Get returns the cached map and whether it was present.
	Get(ctx context.Context, key string) (map[string]string, bool, error)

	// Set stores m for ttl. A zero ttl keeps the entry without expiry.
	Set(ctx context.Context, key string, m map[string]string, ttl time.Duration) error
}
