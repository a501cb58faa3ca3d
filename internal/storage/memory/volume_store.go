package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/0xsequence/token-directory/internal/domain"
	"github.com/0xsequence/token-directory/internal/storage"
)

// VolumeStore is an in-memory implementation of storage.VolumeStore.
type VolumeStore struct {
	mu   sync.RWMutex
	data []*domain.VolumeObservation
}

// NewVolumeStore creates a new in-memory volume store.
func NewVolumeStore() *VolumeStore {
	return &VolumeStore{}
}

// Compile-time interface check.
var _ storage.VolumeStore = (*VolumeStore)(nil)

// InsertBulk adds observations.
func (s *VolumeStore) InsertBulk(_ context.Context, obs []*domain.VolumeObservation) error {
	for _, o := range obs {
		if o == nil || o.RunID == "" {
			return storage.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, o := range obs {
		obsCopy := *o
		s.data = append(s.data, &obsCopy)
	}
	return nil
}

// GetByRun returns observations of a run ordered by chain, rank, address.
func (s *VolumeStore) GetByRun(_ context.Context, runID string) ([]*domain.VolumeObservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.VolumeObservation
	for _, o := range s.data {
		if o.RunID == runID {
			obsCopy := *o
			result = append(result, &obsCopy)
		}
	}

	sort.SliceStable(result, func(i, j int) bool {
		if result[i].Chain != result[j].Chain {
			return result[i].Chain < result[j].Chain
		}
		if result[i].Rank != result[j].Rank {
			return result[i].Rank < result[j].Rank
		}
		return result[i].Address < result[j].Address
	})
	return result, nil
}
