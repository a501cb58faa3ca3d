package featured

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/0xsequence/token-directory/internal/domain"
)

// RankedToken is one address that receives a featureIndex.
type RankedToken struct {
	Rank    int
	Address string
	Symbol  string
	CoinID  string
	Volume  decimal.Decimal
	OldRank *int
}

// RemovedToken is a resolved address that loses its featureIndex.
type RemovedToken struct {
	Address string
	Symbol  string
	OldRank int
}

// Result is the computed ordering for one chain.
type Result struct {
	Chain           string
	Ranked          []RankedToken
	Removed         []RemovedToken
	Native          []string
	Markets         []Market // eligible markets, volume desc, before pinning
	Eligible        int
	Resolved        int
	FallbackUsed    bool
	FallbackSkipped bool
	NothingResolved bool

	resolved map[string]bool
	ranks    map[string]int
}

func newResult(chain string) *Result {
	return &Result{
		Chain:    chain,
		resolved: make(map[string]bool),
		ranks:    make(map[string]int),
	}
}

// Rank returns the featureIndex computed for address.
func (r *Result) Rank(address string) (int, bool) {
	n, ok := r.ranks[strings.ToLower(address)]
	return n, ok
}

// IsResolved reports whether address was mapped to a coin id.
func (r *Result) IsResolved(address string) bool {
	return r.resolved[strings.ToLower(address)]
}

// Apply returns a copy of list with featureIndex values set from res.
// Native entries get NativeRank. Resolved entries without a rank lose it.
// Unresolved entries are left untouched. Empty extensions are dropped.
func Apply(list *domain.TokenList, res *Result) *domain.TokenList {
	out := list.Clone()
	native := make(map[string]bool, len(res.Native))
	for _, a := range res.Native {
		native[strings.ToLower(a)] = true
	}
	for i := range out.Tokens {
		t := &out.Tokens[i]
		key := t.Key()
		switch {
		case native[key]:
			setRank(t, NativeRank)
		case res.resolved[key]:
			if n, ok := res.ranks[key]; ok {
				setRank(t, n)
			} else if t.Extensions != nil {
				t.Extensions.FeatureIndex = nil
				if t.Extensions.IsEmpty() {
					t.Extensions = nil
				}
			}
		}
	}
	return out
}

func setRank(t *domain.TokenListEntry, n int) {
	if t.Extensions == nil {
		t.Extensions = &domain.Extensions{}
	}
	t.Extensions.FeatureIndex = domain.Ptr(n)
}

// Observations converts res into volume rows for runID.
func (r *Result) Observations(runID string, observedAt int64) []domain.VolumeObservation {
	var out []domain.VolumeObservation
	for _, t := range r.Ranked {
		out = append(out, domain.VolumeObservation{
			RunID:      runID,
			Chain:      r.Chain,
			CoinID:     t.CoinID,
			Address:    strings.ToLower(t.Address),
			Symbol:     t.Symbol,
			VolumeUSD:  t.Volume,
			Rank:       t.Rank,
			ObservedAt: observedAt,
		})
	}
	return out
}

// Changed reports whether applying res would alter list.
func (r *Result) Changed(list *domain.TokenList) bool {
	for i := range list.Tokens {
		t := &list.Tokens[i]
		old, had := t.FeatureIndex()
		key := t.Key()
		var want int
		var has bool
		switch {
		case containsFold(r.Native, key):
			want, has = NativeRank, true
		case r.resolved[key]:
			want, has = r.ranks[key]
		default:
			continue
		}
		if had != has || old != want {
			return true
		}
	}
	return false
}

func containsFold(list []string, key string) bool {
	for _, s := range list {
		if strings.ToLower(s) == key {
			return true
		}
	}
	return false
}
