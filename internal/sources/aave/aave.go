// Package aave lists Aave aTokens from the v3 API and the v2 subgraphs.
package aave

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/0xsequence/token-directory/internal/chains"
	"github.com/0xsequence/token-directory/internal/domain"
	"github.com/0xsequence/token-directory/internal/httpx"
	"github.com/0xsequence/token-directory/internal/normalize"
	"github.com/0xsequence/token-directory/internal/pipeline"
)

const (
	DefaultV3URL      = "https://api.v3.aave.com/graphql"
	DefaultGatewayURL = "https://gateway.thegraph.com/api"
)

const marketsQuery = `query Markets($request: MarketsRequest!) {
  markets(request: $request) {
    chain { name chainId }
    name
    reserves {
      aToken { imageUrl decimals chainId address name symbol }
      underlyingToken { address name symbol imageUrl decimals }
    }
  }
}`

const v2ReservesQuery = `{
  reserves(first: 100) {
    id
    name
    symbol
    decimals
    aToken { id }
    underlyingAsset
  }
}`

// Source returns aTokens per chain folder.
type Source struct {
	http        *httpx.Client
	registry    *chains.Registry
	v3URL       string
	gatewayURL  string
	graphAPIKey string
	log         logrus.FieldLogger

	once    sync.Once
	buckets map[string][]normalize.RawToken
	v3Err   error
}

// Option configures Source.
type Option func(*Source)

// WithV3URL overrides the v3 GraphQL endpoint.
func WithV3URL(u string) Option { return func(s *Source) { s.v3URL = u } }

// WithGatewayURL overrides The Graph gateway base URL.
func WithGatewayURL(u string) Option {
	return func(s *Source) { s.gatewayURL = strings.TrimRight(u, "/") }
}

// WithGraphAPIKey enables v2 subgraph reserves.
func WithGraphAPIKey(key string) Option { return func(s *Source) { s.graphAPIKey = key } }

// WithHTTP replaces the transport.
func WithHTTP(h *httpx.Client) Option { return func(s *Source) { s.http = h } }

// New creates a Source over the chains of registry.
func New(registry *chains.Registry, log logrus.FieldLogger, opts ...Option) *Source {
	s := &Source{
		registry:   registry,
		v3URL:      DefaultV3URL,
		gatewayURL: DefaultGatewayURL,
		log:        log,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.http == nil {
		s.http = httpx.NewClient(httpx.WithLogger(log))
	}
	return s
}

var _ pipeline.Source = (*Source)(nil)

func (s *Source) Name() string { return "aave" }

// Chains returns the folders that have v3 markets or a v2 subgraph, sorted.
// v3 markets on chains missing from the registry are logged and ignored.
func (s *Source) Chains(ctx context.Context) ([]string, error) {
	if err := s.loadV3(ctx); err != nil {
		return nil, err
	}
	set := make(map[string]struct{})
	for name := range s.buckets {
		set[name] = struct{}{}
	}
	if s.graphAPIKey != "" {
		for _, name := range s.registry.Names() {
			if c, _ := s.registry.Get(name); c.AaveV2Subgraph != "" {
				set[name] = struct{}{}
			}
		}
	} else {
		s.log.Info("THEGRAPH_API_KEY not set, skipping Aave v2 reserves")
	}
	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

// Fetch returns v3 aTokens followed by v2 aTokens for the target chain.
func (s *Source) Fetch(ctx context.Context, target pipeline.Target) ([]normalize.RawToken, error) {
	if err := s.loadV3(ctx); err != nil {
		return nil, err
	}
	out := append([]normalize.RawToken(nil), s.buckets[target.Chain.Name]...)
	return append(out, s.fetchV2(ctx, target.Chain)...), nil
}

type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type v3Token struct {
	Address  string  `json:"address"`
	ChainID  uint64  `json:"chainId"`
	Decimals *int    `json:"decimals"`
	ImageURL *string `json:"imageUrl"`
	Name     string  `json:"name"`
	Symbol   string  `json:"symbol"`
}

type v3Market struct {
	Chain *struct {
		Name    string `json:"name"`
		ChainID uint64 `json:"chainId"`
	} `json:"chain"`
	Name     string `json:"name"`
	Reserves []struct {
		AToken          *v3Token `json:"aToken"`
		UnderlyingToken *v3Token `json:"underlyingToken"`
	} `json:"reserves"`
}

// post sends a GraphQL request and returns the data member. GraphQL errors
// are joined into one error.
func (s *Source) post(ctx context.Context, url string, req graphqlRequest) (json.RawMessage, error) {
	var body json.RawMessage
	if err := s.http.PostJSON(ctx, url, req, &body); err != nil {
		return nil, err
	}
	if errs := gjson.GetBytes(body, "errors"); errs.IsArray() && len(errs.Array()) > 0 {
		var msgs []string
		for _, e := range errs.Array() {
			m := e.Get("message").String()
			if m == "" {
				m = "unknown error"
			}
			msgs = append(msgs, m)
		}
		return nil, fmt.Errorf("graphql errors: %s", strings.Join(msgs, "; "))
	}
	data := gjson.GetBytes(body, "data")
	if !data.Exists() || data.Type == gjson.Null {
		return nil, errors.New("graphql response missing data")
	}
	return json.RawMessage(data.Raw), nil
}

func (s *Source) loadV3(ctx context.Context) error {
	s.once.Do(func() {
		s.buckets, s.v3Err = s.fetchV3(ctx)
	})
	return s.v3Err
}

func (s *Source) fetchV3(ctx context.Context) (map[string][]normalize.RawToken, error) {
	ids := make([]uint64, 0, len(s.registry.Chains))
	for _, name := range s.registry.Names() {
		c, _ := s.registry.Get(name)
		ids = append(ids, c.ChainID)
	}
	s.log.Infof("fetching Aave v3 markets for %d chains", len(ids))

	data, err := s.post(ctx, s.v3URL, graphqlRequest{
		Query:     marketsQuery,
		Variables: map[string]any{"request": map[string]any{"chainIds": ids}},
	})
	if err != nil {
		return nil, fmt.Errorf("aave v3 markets: %w", err)
	}
	var payload struct {
		Markets []v3Market `json:"markets"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("decode aave v3 markets: %w", err)
	}

	buckets := make(map[string][]normalize.RawToken)
	for _, m := range payload.Markets {
		var folder string
		if m.Chain != nil {
			folder = chains.FolderForProtocolName(m.Chain.Name)
		}
		if _, ok := s.registry.Get(folder); !ok {
			s.log.WithField("market", m.Name).Warnf("no chain folder for %q, skipping", folder)
			continue
		}
		for _, r := range m.Reserves {
			if r.AToken == nil || r.AToken.Address == "" {
				continue
			}
			buckets[folder] = append(buckets[folder], v3Raw(r.AToken, r.UnderlyingToken))
		}
	}
	return buckets, nil
}

func v3Raw(a, u *v3Token) normalize.RawToken {
	name := a.Name
	if name == "" {
		name = a.Symbol
	}
	raw := normalize.RawToken{
		Address:    a.Address,
		Name:       name,
		Symbol:     a.Symbol,
		Decimals:   a.Decimals,
		Extensions: derivativeExtensions(),
	}
	if a.ImageURL != nil {
		raw.LogoURI = *a.ImageURL
	}
	if u != nil {
		raw.Extensions[domain.ExtUnderlyingTokenAddress] = u.Address
		raw.Extensions[domain.ExtUnderlyingTokenName] = u.Name
		raw.Extensions[domain.ExtUnderlyingTokenSymbol] = u.Symbol
		if u.Decimals != nil {
			raw.Extensions[domain.ExtUnderlyingTokenDecimals] = *u.Decimals
		}
	}
	return raw
}

func derivativeExtensions() map[string]any {
	return map[string]any{
		domain.ExtAaveAToken:   true,
		domain.ExtIndexingInfo: domain.IndexingInfo{UseOnChainBalance: true},
	}
}

type v2Reserve struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals *int   `json:"decimals"`
	AToken   *struct {
		ID string `json:"id"`
	} `json:"aToken"`
	UnderlyingAsset string `json:"underlyingAsset"`
}

// fetchV2 returns v2 aTokens for chain. Failures are logged and yield none.
func (s *Source) fetchV2(ctx context.Context, chain *chains.Chain) []normalize.RawToken {
	if s.graphAPIKey == "" || chain.AaveV2Subgraph == "" {
		return nil
	}
	log := s.log.WithField("chain", chain.Name)
	url := fmt.Sprintf("%s/%s/subgraphs/id/%s", s.gatewayURL, s.graphAPIKey, chain.AaveV2Subgraph)

	data, err := s.post(ctx, url, graphqlRequest{Query: v2ReservesQuery})
	if err != nil {
		log.Warnf("aave v2 reserves: %v", err)
		return nil
	}
	var payload struct {
		Reserves []v2Reserve `json:"reserves"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		log.Warnf("decode aave v2 reserves: %v", err)
		return nil
	}

	prefix := chain.AaveV2Prefix
	if prefix == "" {
		prefix = "a"
	}
	var out []normalize.RawToken
	for _, r := range payload.Reserves {
		if r.AToken == nil || r.AToken.ID == "" {
			continue
		}
		name := r.Name
		if name == "" {
			name = r.Symbol
		}
		raw := normalize.RawToken{
			Address:    r.AToken.ID,
			Name:       "Aave V2 " + name,
			Symbol:     prefix + r.Symbol,
			Decimals:   r.Decimals,
			Extensions: derivativeExtensions(),
		}
		raw.Extensions[domain.ExtUnderlyingTokenAddress] = r.UnderlyingAsset
		raw.Extensions[domain.ExtUnderlyingTokenName] = r.Name
		raw.Extensions[domain.ExtUnderlyingTokenSymbol] = r.Symbol
		if r.Decimals != nil {
			raw.Extensions[domain.ExtUnderlyingTokenDecimals] = *r.Decimals
		}
		out = append(out, raw)
	}
	log.Infof("%d aave v2 reserves", len(out))
	return out
}
