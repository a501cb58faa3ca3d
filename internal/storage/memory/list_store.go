package memory

import (
	"context"
	"sync"

	"github.com/0xsequence/token-directory/internal/domain"
	"github.com/0xsequence/token-directory/internal/idhash"
	"github.com/0xsequence/token-directory/internal/storage"
)

// ListStore is an in-memory implementation of storage.ListStore.
// Lists are kept as encoded bytes so hashes match what a file store would write.
type ListStore struct {
	mu   sync.RWMutex
	data map[string][]byte // keyed by folder/file
}

// NewListStore creates a new in-memory list store.
func NewListStore() *ListStore {
	return &ListStore{
		data: make(map[string][]byte),
	}
}

// Compile-time interface check.
var _ storage.ListStore = (*ListStore)(nil)

func listKey(folder, file string) string {
	return folder + "/" + file
}

// Load reads folder/file. Returns ErrNotFound if not exists.
func (s *ListStore) Load(_ context.Context, folder, file string) (*storage.LoadedList, error) {
	s.mu.RLock()
	data, ok := s.data[listKey(folder, file)]
	s.mu.RUnlock()
	if !ok {
		return nil, storage.ErrNotFound
	}
	return storage.LoadedFromBytes(listKey(folder, file), data)
}

// Save overwrites folder/file. Returns ErrConflict when expectedHash is stale.
func (s *ListStore) Save(_ context.Context, folder, file string, list *domain.TokenList, expectedHash string) (string, error) {
	if list == nil {
		return "", storage.ErrInvalidInput
	}
	data, err := storage.EncodeJSON(list)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := listKey(folder, file)
	current, exists := s.data[key]
	switch {
	case exists && idhash.ContentHash(current) != expectedHash:
		return "", storage.ErrConflict
	case !exists && expectedHash != "":
		return "", storage.ErrConflict
	}

	s.data[key] = data
	return idhash.ContentHash(data), nil
}

// Put stores raw bytes without any check. Used to seed fixtures.
func (s *ListStore) Put(folder, file string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[listKey(folder, file)] = append([]byte(nil), data...)
}

// Bytes returns the stored bytes of folder/file.
func (s *ListStore) Bytes(folder, file string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.data[listKey(folder, file)]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), data...), true
}
