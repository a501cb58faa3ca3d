package indexer

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/0xsequence/token-directory/internal/domain"
	"github.com/0xsequence/token-directory/internal/storage"
)

// Drift lists the differences between the persisted index and the files on disk.
// Entries are "folder/file" or, for folder-level changes, "folder".
type Drift struct {
	Changed []string // hash differs
	Missing []string // on disk but absent from index.json
	Extra   []string // in index.json but gone from disk
	Folders []string // chainId or deprecated flag differs
	NoIndex bool     // index.json does not exist
}

// Clean reports whether the persisted index is current.
func (d *Drift) Clean() bool {
	return !d.NoIndex && len(d.Changed)+len(d.Missing)+len(d.Extra)+len(d.Folders) == 0
}

// Verify rebuilds the index in memory and compares it to index.json.
// Validation errors from the rebuild are returned as-is.
func (b *Builder) Verify(ctx context.Context) (*Drift, error) {
	fresh, err := b.Build(ctx)
	if err != nil {
		return nil, err
	}

	persisted, _, err := b.store.ReadIndex(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return &Drift{NoIndex: true}, nil
	}
	if err != nil {
		return nil, err
	}
	return compare(persisted, fresh), nil
}

func compare(persisted, fresh *domain.IndexDocument) *Drift {
	d := &Drift{}
	for folder, want := range fresh.Index {
		have, ok := persisted.Index[folder]
		if !ok {
			for file := range want.TokenLists {
				d.Missing = append(d.Missing, folder+"/"+file)
			}
			continue
		}
		if have.ChainID != want.ChainID || have.Deprecated != want.Deprecated {
			d.Folders = append(d.Folders, folder)
		}
		for file, hash := range want.TokenLists {
			old, ok := have.TokenLists[file]
			switch {
			case !ok:
				d.Missing = append(d.Missing, folder+"/"+file)
			case old != hash:
				d.Changed = append(d.Changed, folder+"/"+file)
			}
		}
		for file := range have.TokenLists {
			if _, ok := want.TokenLists[file]; !ok {
				d.Extra = append(d.Extra, folder+"/"+file)
			}
		}
	}
	for folder, have := range persisted.Index {
		if _, ok := fresh.Index[folder]; ok {
			continue
		}
		for file := range have.TokenLists {
			d.Extra = append(d.Extra, folder+"/"+file)
		}
	}
	sort.Strings(d.Changed)
	sort.Strings(d.Missing)
	sort.Strings(d.Extra)
	sort.Strings(d.Folders)
	return d
}

// String summarizes the drift on one line.
func (d *Drift) String() string {
	if d.NoIndex {
		return "index.json missing"
	}
	return fmt.Sprintf("%d changed, %d missing, %d extra, %d folder changes",
		len(d.Changed), len(d.Missing), len(d.Extra), len(d.Folders))
}
