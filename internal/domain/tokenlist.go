package domain

import (
	"fmt"
	"strings"
)

// Token standards stored in chain folders.
const (
	StandardERC20   = "erc20"
	StandardERC721  = "erc721"
	StandardERC1155 = "erc1155"
)

// ExternalFolder is the reserved folder holding externally sourced raw lists.
// Files under it carry no chain id of their own.
const ExternalFolder = "_external"

// ExternalChainID is the sentinel chain id assigned to ExternalFolder.
const ExternalChainID uint64 = 0

// Version is a token list semantic version.
type Version struct {
	Major int `json:"major"`
	Minor int `json:"minor"`
	Patch int `json:"patch"`
}

// String returns major.minor.patch.
func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Less reports whether v orders strictly before o.
func (v Version) Less(o Version) bool {
	if v.Major != o.Major {
		return v.Major < o.Major
	}
	if v.Minor != o.Minor {
		return v.Minor < o.Minor
	}
	return v.Patch < o.Patch
}

// TokenListEntry is one fungible or non-fungible token record.
// Address comparisons are case-insensitive; see Key.
type TokenListEntry struct {
	ChainID    uint64      `json:"chainId"`
	Address    string      `json:"address"`
	Name       string      `json:"name"`
	Standard   string      `json:"standard,omitempty"` // collectible lists only
	Symbol     *string     `json:"symbol"`
	Decimals   *int        `json:"decimals,omitempty"`
	LogoURI    *string     `json:"logoURI"`
	Tags       []string    `json:"tags,omitempty"`
	Extensions *Extensions `json:"extensions,omitempty"`
}

// Key returns the canonical comparison key (lowercase address).
func (e *TokenListEntry) Key() string {
	return strings.ToLower(e.Address)
}

// SymbolString returns the symbol or "" when unset.
func (e *TokenListEntry) SymbolString() string {
	if e.Symbol == nil {
		return ""
	}
	return *e.Symbol
}

// FeatureIndex returns the entry's featured rank, if any.
func (e *TokenListEntry) FeatureIndex() (int, bool) {
	if e.Extensions == nil || e.Extensions.FeatureIndex == nil {
		return 0, false
	}
	return *e.Extensions.FeatureIndex, true
}

// IsDerivative reports whether the entry wraps another asset (e.g. an Aave aToken).
func (e *TokenListEntry) IsDerivative() bool {
	return e.Extensions != nil && e.Extensions.AaveAToken != nil && *e.Extensions.AaveAToken
}

// Clone returns a deep copy of the entry.
func (e TokenListEntry) Clone() TokenListEntry {
	out := e
	out.Symbol = clonePtr(e.Symbol)
	out.Decimals = clonePtr(e.Decimals)
	out.LogoURI = clonePtr(e.LogoURI)
	if e.Tags != nil {
		out.Tags = append([]string(nil), e.Tags...)
	}
	if e.Extensions != nil {
		out.Extensions = e.Extensions.Clone()
	}
	return out
}

// TokenList is a named, versioned collection of entries for one chain and standard.
type TokenList struct {
	Name          string           `json:"name"`
	ChainID       uint64           `json:"chainId"`
	TokenStandard string           `json:"tokenStandard,omitempty"`
	LogoURI       string           `json:"logoURI"`
	Keywords      []string         `json:"keywords"`
	Tokens        []TokenListEntry `json:"tokens"`
	Timestamp     *string          `json:"timestamp,omitempty"`
	Version       *Version         `json:"version,omitempty"`
}

// MarshalJSON writes nil keywords and tokens as empty arrays.
func (l TokenList) MarshalJSON() ([]byte, error) {
	type plain TokenList
	out := plain(l)
	if out.Keywords == nil {
		out.Keywords = []string{}
	}
	if out.Tokens == nil {
		out.Tokens = []TokenListEntry{}
	}
	return marshalValue(out)
}

// Clone returns a deep copy of the list.
func (l *TokenList) Clone() *TokenList {
	out := *l
	if l.Keywords != nil {
		out.Keywords = append([]string(nil), l.Keywords...)
	}
	out.Tokens = make([]TokenListEntry, len(l.Tokens))
	for i := range l.Tokens {
		out.Tokens[i] = l.Tokens[i].Clone()
	}
	out.Timestamp = clonePtr(l.Timestamp)
	out.Version = clonePtr(l.Version)
	return &out
}

// NewBaseList returns the empty list created when a chain has no file yet.
func NewBaseList(folder string, chainID uint64, standard string) *TokenList {
	return &TokenList{
		Name:          fmt.Sprintf("sequence-%s-%s", standard, folder),
		ChainID:       chainID,
		TokenStandard: standard,
		LogoURI:       "",
		Keywords:      []string{standard, folder},
		Tokens:        []TokenListEntry{},
		Version:       &Version{Major: 1},
	}
}

// FileName returns the canonical file name for a token standard.
func FileName(standard string) string {
	return standard + ".json"
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
