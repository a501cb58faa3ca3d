// Package merge appends newly discovered entries to an existing list
// without duplicating addresses.
package merge

import (
	"strings"

	"github.com/0xsequence/token-directory/internal/domain"
)

// Keys returns the set of lowercase addresses in entries.
func Keys(entries []domain.TokenListEntry) map[string]struct{} {
	keys := make(map[string]struct{}, len(entries))
	for i := range entries {
		keys[entries[i].Key()] = struct{}{}
	}
	return keys
}

// Additions returns the candidates whose address is not yet in existing,
// in candidate order. Repeated candidate addresses keep the first.
func Additions(existing, candidates []domain.TokenListEntry) []domain.TokenListEntry {
	seen := Keys(existing)
	var out []domain.TokenListEntry
	for i := range candidates {
		key := strings.ToLower(candidates[i].Address)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, candidates[i].Clone())
	}
	return out
}

// Apply returns a copy of list with additions appended. list is not modified.
func Apply(list *domain.TokenList, additions []domain.TokenListEntry) *domain.TokenList {
	out := list.Clone()
	for i := range additions {
		out.Tokens = append(out.Tokens, additions[i].Clone())
	}
	return out
}
