// Package normalize turns adapter records into canonical list entries.
package normalize

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/0xsequence/token-directory/internal/domain"
)

// RawToken is a source record before normalization.
type RawToken struct {
	Address     string
	Name        string
	Symbol      string
	Decimals    *int
	LogoURI     string
	Description string
	Link        string
	Standard    string         // erc20 when empty
	Extensions  map[string]any // provenance keys; nil and "" values are dropped
}

// Policy bounds free-text fields.
type Policy struct {
	MaxSymbolLength      int
	MaxNameLength        int
	MaxDescriptionLength int
}

// DefaultPolicy matches the limits of published lists.
var DefaultPolicy = Policy{
	MaxSymbolLength:      20,
	MaxNameLength:        64,
	MaxDescriptionLength: 1000,
}

const ellipsis = "..."

// SymbolResolver reads a token symbol from chain when the source has none.
type SymbolResolver interface {
	Symbol(ctx context.Context, chainID uint64, address string) (string, error)
}

// Normalizer applies Policy and field cleanup to raw tokens.
type Normalizer struct {
	Policy   Policy
	Resolver SymbolResolver // optional
	Checksum bool           // rewrite hex addresses in EIP-55 form
	Log      logrus.FieldLogger
}

// New returns a Normalizer with DefaultPolicy and checksumming enabled.
func New(log logrus.FieldLogger) *Normalizer {
	return &Normalizer{Policy: DefaultPolicy, Checksum: true, Log: log}
}

// Normalize builds an entry for chainID. Records without a usable address,
// or fungible records without decimals, yield a DataQualityError.
func (n *Normalizer) Normalize(ctx context.Context, raw RawToken, chainID uint64) (*domain.TokenListEntry, error) {
	addr := strings.TrimSpace(raw.Address)
	if addr == "" {
		return nil, &domain.DataQualityError{Address: raw.Name, Reason: "missing address"}
	}
	if n.Checksum {
		if !common.IsHexAddress(addr) {
			return nil, &domain.DataQualityError{Address: addr, Reason: "invalid address"}
		}
		addr = common.HexToAddress(addr).Hex()
	}

	standard := strings.ToLower(raw.Standard)
	collectible := standard == domain.StandardERC721 || standard == domain.StandardERC1155

	entry := &domain.TokenListEntry{
		ChainID: chainID,
		Address: addr,
		Name:    truncate(strings.TrimSpace(raw.Name), n.Policy.MaxNameLength),
		LogoURI: optional(raw.LogoURI),
	}

	symbol := strings.TrimSpace(raw.Symbol)
	if symbol == "" && n.Resolver != nil {
		symbol = n.resolveSymbol(ctx, chainID, addr)
	}
	symbol = truncate(symbol, n.Policy.MaxSymbolLength)

	if collectible {
		entry.Standard = standard
		entry.Symbol = optional(symbol)
	} else {
		if raw.Decimals == nil || *raw.Decimals < 0 {
			return nil, &domain.DataQualityError{Address: addr, Reason: "missing decimals"}
		}
		entry.Symbol = domain.Ptr(symbol)
		entry.Decimals = domain.Ptr(*raw.Decimals)
	}

	ext, err := n.extensions(raw)
	if err != nil {
		return nil, &domain.DataQualityError{Address: addr, Reason: err.Error()}
	}
	if !ext.IsEmpty() {
		entry.Extensions = ext
	}
	return entry, nil
}

func (n *Normalizer) resolveSymbol(ctx context.Context, chainID uint64, addr string) string {
	symbol, err := n.Resolver.Symbol(ctx, chainID, addr)
	if err != nil {
		if n.Log != nil {
			n.Log.WithFields(logrus.Fields{"chainId": chainID, "address": addr}).
				Debugf("symbol fallback failed: %v", err)
		}
		return ""
	}
	return strings.TrimSpace(symbol)
}

func (n *Normalizer) extensions(raw RawToken) (*domain.Extensions, error) {
	clean := make(map[string]any, len(raw.Extensions)+2)
	for k, v := range raw.Extensions {
		if isBlank(v) {
			continue
		}
		clean[k] = v
	}
	if d := strings.TrimSpace(raw.Description); d != "" {
		clean[domain.ExtDescription] = truncateDescription(d, n.Policy.MaxDescriptionLength)
	}
	if l := strings.TrimSpace(raw.Link); l != "" {
		clean[domain.ExtLink] = l
	}

	ext := &domain.Extensions{}
	if len(clean) == 0 {
		return ext, nil
	}
	data, err := json.Marshal(clean)
	if err != nil {
		return nil, fmt.Errorf("encode extensions: %w", err)
	}
	if err := json.Unmarshal(data, ext); err != nil {
		return nil, fmt.Errorf("decode extensions: %w", err)
	}
	return ext, nil
}

func isBlank(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case *string:
		return t == nil || strings.TrimSpace(*t) == ""
	}
	return false
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// truncate cuts s to at most max runes. A non-positive max disables it.
func truncate(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}

// truncateDescription keeps descriptions within max runes, ending in "..."
// when cut.
func truncateDescription(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	keep := max - len(ellipsis)
	if keep < 0 {
		keep = 0
	}
	return string([]rune(s)[:keep]) + ellipsis
}
