// Package versioning decides whether a list changed and how its version moves.
package versioning

import (
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/0xsequence/token-directory/internal/domain"
)

// TimestampLayout is the ISO-8601 form written to list files.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// baseVersion stands in for lists written before versions were recorded.
var baseVersion = domain.Version{Major: 1}

// Next returns the version following prev. Growth bumps minor and resets
// patch; any other change bumps patch. Major is never bumped here.
func Next(prev domain.Version, prevCount, newCount int) domain.Version {
	if newCount > prevCount {
		return domain.Version{Major: prev.Major, Minor: prev.Minor + 1}
	}
	return domain.Version{Major: prev.Major, Minor: prev.Minor, Patch: prev.Patch + 1}
}

// tokenCmp compares entry content. Extension key order is layout, not content.
var tokenCmp = []cmp.Option{cmpopts.EquateEmpty(), cmpopts.IgnoreUnexported(domain.Extensions{})}

// TokensEqual reports whether a and b hold identical entries in the same order.
func TokensEqual(a, b []domain.TokenListEntry) bool {
	return cmp.Equal(a, b, tokenCmp...)
}

// Diff returns a human-readable difference between two token arrays.
func Diff(a, b []domain.TokenListEntry) string {
	return cmp.Diff(a, b, tokenCmp...)
}

// Commit returns the list that should be persisted for updated tokens.
// When tokens are unchanged it returns old and false.
func Commit(old *domain.TokenList, tokens []domain.TokenListEntry, now time.Time) (*domain.TokenList, bool) {
	if TokensEqual(old.Tokens, tokens) {
		return old, false
	}

	prev := baseVersion
	if old.Version != nil {
		prev = *old.Version
	}
	next := old.Clone()
	next.Tokens = make([]domain.TokenListEntry, len(tokens))
	for i := range tokens {
		next.Tokens[i] = tokens[i].Clone()
	}
	v := Next(prev, len(old.Tokens), len(tokens))
	next.Version = &v
	ts := now.UTC().Format(TimestampLayout)
	next.Timestamp = &ts
	return next, true
}
