package pipeline

import (
	"context"
	"strings"

	"github.com/0xsequence/token-directory/internal/chains"
	"github.com/0xsequence/token-directory/internal/normalize"
)

// Target describes the list a source is fetching for.
type Target struct {
	Chain    *chains.Chain
	Standard string
	Known    map[string]struct{} // lowercase addresses already listed
}

// Has reports whether address is already in the list.
func (t Target) Has(address string) bool {
	_, ok := t.Known[strings.ToLower(address)]
	return ok
}

// Source produces candidate tokens for one chain.
// Sources may skip addresses already present in Target.Known to save requests.
type Source interface {
	Name() string
	Fetch(ctx context.Context, target Target) ([]normalize.RawToken, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc struct {
	SourceName string
	Fn         func(ctx context.Context, target Target) ([]normalize.RawToken, error)
}

func (s SourceFunc) Name() string { return s.SourceName }

func (s SourceFunc) Fetch(ctx context.Context, target Target) ([]normalize.RawToken, error) {
	return s.Fn(ctx, target)
}
