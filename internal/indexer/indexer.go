// Package indexer builds the content-addressed catalog of every list file.
package indexer

import (
	"context"
	"fmt"
	"math"
	"path"

	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/0xsequence/token-directory/internal/domain"
	"github.com/0xsequence/token-directory/internal/idhash"
	"github.com/0xsequence/token-directory/internal/observability"
	"github.com/0xsequence/token-directory/internal/storage/fsstore"
)

// Note is the provenance string written at the top of index.json.
const Note = "This file is automatically generated by the `tokendir reindex` command."

var reserved = map[string]bool{
	domain.IndexFileName:      true,
	domain.DeprecatedFileName: true,
	domain.ExternalFileName:   true,
}

// Builder walks the index root and produces the IndexDocument.
type Builder struct {
	store *fsstore.Store
	log   logrus.FieldLogger
}

// NewBuilder creates a Builder over store.
func NewBuilder(store *fsstore.Store, log logrus.FieldLogger) *Builder {
	return &Builder{store: store, log: log}
}

// Build hashes every list file and validates chain consistency per folder.
// Folders and files are visited in sorted order; the first error aborts.
func (b *Builder) Build(ctx context.Context) (*domain.IndexDocument, error) {
	deprecated := b.deprecatedSet(ctx)

	folders, err := b.store.Folders(ctx)
	if err != nil {
		return nil, err
	}

	doc := &domain.IndexDocument{
		Note:  Note,
		Index: make(map[string]domain.ChainFolder),
	}
	hashed := 0
	for _, folder := range folders {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cf, ok, err := b.buildFolder(ctx, folder)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		cf.Deprecated = deprecated[folder]
		doc.Index[folder] = cf
		hashed += len(cf.TokenLists)
	}

	observability.RecordFilesHashed(hashed)
	b.log.WithFields(logrus.Fields{
		"folders": len(doc.Index),
		"files":   hashed,
	}).Info("index built")
	return doc, nil
}

// Write builds the index and persists it. Nothing is written on error.
func (b *Builder) Write(ctx context.Context) (*domain.IndexDocument, error) {
	doc, err := b.Build(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := b.store.WriteIndex(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (b *Builder) buildFolder(ctx context.Context, folder string) (domain.ChainFolder, bool, error) {
	files, err := b.store.Files(ctx, folder)
	if err != nil {
		return domain.ChainFolder{}, false, err
	}

	external := folder == domain.ExternalFolder
	cf := domain.ChainFolder{TokenLists: make(map[string]string)}
	expected := uint64(0)
	haveExpected := false

	for _, file := range files {
		if reserved[file] {
			continue
		}
		data, err := b.store.ReadFile(ctx, folder, file)
		if err != nil {
			return cf, false, err
		}
		p := path.Join(folder, file)

		chainID := domain.ExternalChainID
		if external {
			if !gjson.ValidBytes(data) {
				return cf, false, domain.NewStructuralError(p, "invalid json", nil)
			}
		} else {
			chainID, err = ProbeChainID(p, data)
			if err != nil {
				return cf, false, err
			}
		}

		if !haveExpected {
			expected, haveExpected = chainID, true
		} else if chainID != expected {
			return cf, false, domain.NewStructuralError(p,
				fmt.Sprintf("inconsistent chainId: expected %d, got %d", expected, chainID), nil)
		}
		cf.TokenLists[file] = idhash.ContentHash(data)
	}

	if len(cf.TokenLists) == 0 {
		return cf, false, nil
	}
	cf.ChainID = expected
	return cf, true, nil
}

// ProbeChainID extracts and validates the top-level chainId of a list file.
func ProbeChainID(p string, data []byte) (uint64, error) {
	if !gjson.ValidBytes(data) {
		return 0, domain.NewStructuralError(p, "invalid json", nil)
	}
	res := gjson.GetBytes(data, "chainId")
	switch {
	case !res.Exists():
		return 0, domain.NewStructuralError(p, "missing chainId", nil)
	case res.Type != gjson.Number:
		return 0, domain.NewStructuralError(p, "chainId must be a number", nil)
	case res.Num == 0:
		return 0, domain.NewStructuralError(p, "chainId cannot be 0", nil)
	case res.Num < 0 || res.Num != math.Trunc(res.Num):
		return 0, domain.NewStructuralError(p, fmt.Sprintf("chainId %s is not a positive integer", res.Raw), nil)
	}
	return res.Uint(), nil
}

func (b *Builder) deprecatedSet(ctx context.Context) map[string]bool {
	out := make(map[string]bool)
	cfg, err := b.store.ReadDeprecated(ctx)
	if err != nil {
		b.log.WithError(err).Warn("ignoring unreadable deprecated.json")
		return out
	}
	for _, name := range cfg.Deprecated {
		out[name] = true
	}
	return out
}
