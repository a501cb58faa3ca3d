// Package featured computes the per-chain featured ordering of fungible
// tokens from market volume, with pinned symbols moved to the front.
package featured

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/0xsequence/token-directory/internal/chains"
	"github.com/0xsequence/token-directory/internal/domain"
	"github.com/0xsequence/token-directory/internal/httpx"
)

// NativeRank is the featureIndex shared by native-asset sentinels.
const NativeRank = 1

// Defaults for Options.
const (
	DefaultCount            = 50
	DefaultFallbackCeiling  = 50
	DefaultBatchSize        = 250
	DefaultBatchDelay       = 500 * time.Millisecond
	DefaultContractInterval = 200 * time.Millisecond
)

// ErrNotFound is returned by MarketData.ContractCoin for unknown contracts.
var ErrNotFound = errors.New("coin not found")

// Market is one market-data row.
type Market struct {
	ID     string
	Symbol string
	Name   string
	Volume *decimal.Decimal // nil when the API reports no volume
}

// ContractCoin is the result of a per-contract lookup.
type ContractCoin struct {
	ID     string
	Volume *decimal.Decimal
}

// MarketData is the price API used for ranking.
type MarketData interface {
	// PlatformAddresses returns lowercase address -> coin id for a platform.
	PlatformAddresses(ctx context.Context, platform string) (map[string]string, error)
	// ContractCoin resolves one contract. Returns ErrNotFound when unknown.
	ContractCoin(ctx context.Context, platform, address string) (*ContractCoin, error)
	// Markets returns market rows for at most one batch of ids.
	Markets(ctx context.Context, ids []string) ([]Market, error)
}

// Options tunes the ranker.
type Options struct {
	Count            int // ranked markets kept
	FallbackCeiling  int // max unresolved entries looked up one by one
	BatchSize        int
	BatchDelay       time.Duration
	ContractInterval time.Duration
}

func (o Options) withDefaults() Options {
	if o.Count <= 0 {
		o.Count = DefaultCount
	}
	if o.FallbackCeiling <= 0 {
		o.FallbackCeiling = DefaultFallbackCeiling
	}
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	return o
}

// Ranker computes featured orderings.
type Ranker struct {
	market   MarketData
	registry *chains.Registry
	opts     Options
	log      logrus.FieldLogger
	sleep    func(context.Context, time.Duration) error
}

// NewRanker creates a Ranker.
func NewRanker(market MarketData, registry *chains.Registry, opts Options, log logrus.FieldLogger) *Ranker {
	return &Ranker{
		market:   market,
		registry: registry,
		opts:     opts.withDefaults(),
		log:      log,
		sleep:    httpx.Sleep,
	}
}

// SetSleep replaces the delay function. Tests pass a no-op.
func (r *Ranker) SetSleep(fn func(context.Context, time.Duration) error) {
	r.sleep = fn
}

// Compute ranks list for chain. list is not modified.
func (r *Ranker) Compute(ctx context.Context, chain *chains.Chain, list *domain.TokenList) (*Result, error) {
	log := r.log.WithField("chain", chain.Name)
	res := newResult(chain.Name)

	addressMap, err := r.market.PlatformAddresses(ctx, chain.CoingeckoPlatform)
	if err != nil {
		return nil, err
	}

	// Partition and bulk-resolve. coinAddrs keeps list order per coin id;
	// order records first-resolution order of ids.
	coinAddrs := make(map[string][]string)
	var order []string
	var unresolved []domain.TokenListEntry
	for i := range list.Tokens {
		t := &list.Tokens[i]
		switch {
		case r.registry.IsNative(t.Address):
			res.Native = append(res.Native, t.Address)
			continue
		case t.IsDerivative():
			continue
		}
		res.Eligible++
		id, ok := addressMap[t.Key()]
		if !ok {
			unresolved = append(unresolved, *t)
			continue
		}
		if len(coinAddrs[id]) == 0 {
			order = append(order, id)
		}
		coinAddrs[id] = append(coinAddrs[id], t.Address)
	}
	bulkResolved := len(order)

	// Per-contract fallback, only under the ceiling.
	fallback := make(map[string]Market)
	switch {
	case len(unresolved) == 0:
	case len(unresolved) > r.opts.FallbackCeiling:
		res.FallbackSkipped = true
		log.Infof("skipping contract fallback for %d unresolved tokens", len(unresolved))
	default:
		res.FallbackUsed = true
		if err := r.fallback(ctx, chain, unresolved, coinAddrs, &order, fallback); err != nil {
			return nil, err
		}
	}
	log.WithFields(logrus.Fields{
		"bulk":     bulkResolved,
		"fallback": len(order) - bulkResolved,
		"eligible": res.Eligible,
	}).Info("resolved coin ids")

	for _, id := range order {
		for _, addr := range coinAddrs[id] {
			res.resolved[strings.ToLower(addr)] = true
		}
	}
	res.Resolved = len(res.resolved)
	if len(order) == 0 {
		res.NothingResolved = true
		return res, nil
	}

	markets, err := r.fetchMarkets(ctx, order)
	if err != nil {
		return nil, err
	}
	for id, m := range fallback {
		if _, ok := markets[id]; !ok {
			markets[id] = m
		}
	}

	rank := make(map[string]int, len(order))
	for i, id := range order {
		rank[id] = i
	}
	var candidates []Market
	for _, id := range order {
		m, ok := markets[id]
		if !ok || m.Volume == nil || !m.Volume.IsPositive() {
			continue
		}
		candidates = append(candidates, m)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if c := candidates[i].Volume.Cmp(*candidates[j].Volume); c != 0 {
			return c > 0
		}
		return rank[candidates[i].ID] < rank[candidates[j].ID]
	})

	ranked := pinFirst(candidates, r.registry.PinsFor(chain.Name))
	if len(ranked) > r.opts.Count {
		ranked = ranked[:r.opts.Count]
	}
	res.Markets = candidates

	symbols := make(map[string]string, len(list.Tokens))
	old := make(map[string]int)
	for i := range list.Tokens {
		t := &list.Tokens[i]
		symbols[t.Key()] = t.SymbolString()
		if fi, ok := t.FeatureIndex(); ok {
			old[t.Key()] = fi
		}
	}

	next := NativeRank + 1
	for _, m := range ranked {
		for _, addr := range coinAddrs[m.ID] {
			key := strings.ToLower(addr)
			rt := RankedToken{
				Rank:    next,
				Address: addr,
				Symbol:  symbols[key],
				CoinID:  m.ID,
				Volume:  *m.Volume,
			}
			if o, ok := old[key]; ok {
				rt.OldRank = domain.Ptr(o)
			}
			res.Ranked = append(res.Ranked, rt)
			res.ranks[key] = next
			next++
		}
	}

	for i := range list.Tokens {
		t := &list.Tokens[i]
		key := t.Key()
		o, had := old[key]
		if !had || !res.resolved[key] || r.registry.IsNative(t.Address) {
			continue
		}
		if _, still := res.ranks[key]; !still {
			res.Removed = append(res.Removed, RemovedToken{Address: t.Address, Symbol: t.SymbolString(), OldRank: o})
		}
	}
	return res, nil
}

func (r *Ranker) fallback(ctx context.Context, chain *chains.Chain, unresolved []domain.TokenListEntry,
	coinAddrs map[string][]string, order *[]string, out map[string]Market) error {
	var limiter *rate.Limiter
	if r.opts.ContractInterval > 0 {
		limiter = rate.NewLimiter(rate.Every(r.opts.ContractInterval), 1)
	}
	for i := range unresolved {
		t := &unresolved[i]
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return err
			}
		}
		coin, err := r.market.ContractCoin(ctx, chain.CoingeckoPlatform, t.Address)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if !errors.Is(err, ErrNotFound) {
				r.log.WithFields(logrus.Fields{"chain": chain.Name, "address": t.Address}).
					Warnf("contract lookup failed: %v", err)
			}
			continue
		}
		if len(coinAddrs[coin.ID]) == 0 {
			*order = append(*order, coin.ID)
			out[coin.ID] = Market{ID: coin.ID, Symbol: t.SymbolString(), Name: t.Name, Volume: coin.Volume}
		}
		coinAddrs[coin.ID] = append(coinAddrs[coin.ID], t.Address)
	}
	return nil
}

// fetchMarkets requests ids in batches. A failed batch is logged and skipped.
func (r *Ranker) fetchMarkets(ctx context.Context, ids []string) (map[string]Market, error) {
	out := make(map[string]Market, len(ids))
	for start := 0; start < len(ids); start += r.opts.BatchSize {
		end := start + r.opts.BatchSize
		if end > len(ids) {
			end = len(ids)
		}
		batch, err := r.market.Markets(ctx, ids[start:end])
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			r.log.Warnf("market batch %d-%d failed: %v", start, end, err)
		}
		for _, m := range batch {
			if _, dup := out[m.ID]; !dup {
				out[m.ID] = m
			}
		}
		if end < len(ids) {
			if err := r.sleep(ctx, r.opts.BatchDelay); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

// pinFirst moves the first market matching each pin symbol to the front,
// in pin order. Matching is case-insensitive on the market symbol.
func pinFirst(markets []Market, pins []string) []Market {
	rest := append([]Market(nil), markets...)
	var pinned []Market
	for _, pin := range pins {
		for i := range rest {
			if strings.ToLower(rest[i].Symbol) == pin {
				pinned = append(pinned, rest[i])
				rest = append(rest[:i], rest[i+1:]...)
				break
			}
		}
	}
	return append(pinned, rest...)
}
