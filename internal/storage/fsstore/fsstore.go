// Package fsstore persists registry files as JSON documents on an afero
// filesystem rooted at the index directory.
package fsstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/spf13/afero"

	"github.com/0xsequence/token-directory/internal/domain"
	"github.com/0xsequence/token-directory/internal/idhash"
	"github.com/0xsequence/token-directory/internal/storage"
)

// Store reads and writes files below root.
type Store struct {
	fs   afero.Fs
	root string
	mu   sync.Mutex // serializes compare-and-swap saves within the process
}

// New creates a store over fsys rooted at root.
func New(fsys afero.Fs, root string) *Store {
	return &Store{fs: fsys, root: root}
}

// NewOS creates a store on the local filesystem.
func NewOS(root string) *Store {
	return New(afero.NewOsFs(), root)
}

// Compile-time interface check.
var _ storage.ListStore = (*Store)(nil)

// Root returns the index root.
func (s *Store) Root() string { return s.root }

// Fs returns the underlying filesystem.
func (s *Store) Fs() afero.Fs { return s.fs }

func (s *Store) path(elem ...string) string {
	return filepath.Join(append([]string{s.root}, elem...)...)
}

// Load reads folder/file. Returns ErrNotFound if the file does not exist.
func (s *Store) Load(_ context.Context, folder, file string) (*storage.LoadedList, error) {
	p := s.path(folder, file)
	data, err := afero.ReadFile(s.fs, p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("read %s: %w", p, err)
	}
	return storage.LoadedFromBytes(p, data)
}

// Save writes list to folder/file through a temp file and rename. The file
// on disk must still hash to expectedHash ("" meaning absent).
func (s *Store) Save(_ context.Context, folder, file string, list *domain.TokenList, expectedHash string) (string, error) {
	if list == nil {
		return "", storage.ErrInvalidInput
	}
	data, err := storage.EncodeJSON(list)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.path(folder, file)
	current, err := afero.ReadFile(s.fs, p)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if expectedHash != "" {
			return "", storage.ErrConflict
		}
	case err != nil:
		return "", fmt.Errorf("read %s: %w", p, err)
	case idhash.ContentHash(current) != expectedHash:
		return "", storage.ErrConflict
	}

	if err := s.fs.MkdirAll(s.path(folder), 0o755); err != nil {
		return "", fmt.Errorf("create folder %s: %w", folder, err)
	}
	if err := s.writeAtomic(p, data); err != nil {
		return "", err
	}
	return idhash.ContentHash(data), nil
}

func (s *Store) writeAtomic(p string, data []byte) error {
	tmp, err := afero.TempFile(s.fs, filepath.Dir(p), "."+filepath.Base(p)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		_ = s.fs.Remove(name)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = s.fs.Remove(name)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := s.fs.Rename(name, p); err != nil {
		_ = s.fs.Remove(name)
		return fmt.Errorf("rename %s: %w", p, err)
	}
	return nil
}

// Folders returns the directory names under root, sorted.
func (s *Store) Folders(_ context.Context) ([]string, error) {
	infos, err := afero.ReadDir(s.fs, s.root)
	if err != nil {
		return nil, fmt.Errorf("read root %s: %w", s.root, err)
	}
	var out []string
	for _, fi := range infos {
		if fi.IsDir() && !strings.HasPrefix(fi.Name(), ".") {
			out = append(out, fi.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}

// Files returns the .json file names in folder, sorted.
func (s *Store) Files(_ context.Context, folder string) ([]string, error) {
	infos, err := afero.ReadDir(s.fs, s.path(folder))
	if err != nil {
		return nil, fmt.Errorf("read folder %s: %w", folder, err)
	}
	var out []string
	for _, fi := range infos {
		name := fi.Name()
		if fi.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ".json") {
			continue
		}
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

// ReadFile returns the bytes of folder/file.
func (s *Store) ReadFile(_ context.Context, folder, file string) ([]byte, error) {
	data, err := afero.ReadFile(s.fs, s.path(folder, file))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("read %s/%s: %w", folder, file, err)
	}
	return data, nil
}

// ReadIndex reads index.json from root.
func (s *Store) ReadIndex(_ context.Context) (*domain.IndexDocument, []byte, error) {
	data, err := afero.ReadFile(s.fs, s.path(domain.IndexFileName))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, storage.ErrNotFound
		}
		return nil, nil, fmt.Errorf("read index: %w", err)
	}
	var doc domain.IndexDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, nil, domain.NewStructuralError(s.path(domain.IndexFileName), "invalid index json", err)
	}
	return &doc, data, nil
}

// WriteIndex persists doc as index.json.
func (s *Store) WriteIndex(_ context.Context, doc *domain.IndexDocument) ([]byte, error) {
	data, err := storage.EncodeJSON(doc)
	if err != nil {
		return nil, err
	}
	if err := s.fs.MkdirAll(s.root, 0o755); err != nil {
		return nil, fmt.Errorf("create root: %w", err)
	}
	if err := s.writeAtomic(s.path(domain.IndexFileName), data); err != nil {
		return nil, err
	}
	return data, nil
}

// ReadDeprecated reads deprecated.json. A missing file yields an empty config.
func (s *Store) ReadDeprecated(_ context.Context) (*domain.DeprecatedConfig, error) {
	var cfg domain.DeprecatedConfig
	data, err := afero.ReadFile(s.fs, s.path(domain.DeprecatedFileName))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &cfg, nil
		}
		return nil, fmt.Errorf("read deprecated: %w", err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse deprecated: %w", err)
	}
	return &cfg, nil
}

// ReadExternal returns the raw bytes of external.json.
func (s *Store) ReadExternal(_ context.Context) ([]byte, error) {
	data, err := afero.ReadFile(s.fs, s.path(domain.ExternalFileName))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("read external config: %w", err)
	}
	return data, nil
}

// WriteExternal stores a fetched external list as _external/<name>.json.
// v is re-encoded with the registry's formatting.
func (s *Store) WriteExternal(_ context.Context, name string, v any) error {
	if name == "" || strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return fmt.Errorf("%w: external list name %q", storage.ErrInvalidInput, name)
	}
	data, err := storage.EncodeJSON(v)
	if err != nil {
		return err
	}
	dir := s.path(domain.ExternalFolder)
	if err := s.fs.MkdirAll(dir, os.FileMode(0o755)); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	return s.writeAtomic(filepath.Join(dir, name+".json"), data)
}
