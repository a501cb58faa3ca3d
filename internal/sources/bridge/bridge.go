// Package bridge mirrors origin-chain tokens onto a child chain using a
// bridge's root/child token mappings.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/0xsequence/token-directory/internal/chains"
	"github.com/0xsequence/token-directory/internal/domain"
	"github.com/0xsequence/token-directory/internal/httpx"
	"github.com/0xsequence/token-directory/internal/normalize"
	"github.com/0xsequence/token-directory/internal/pipeline"
	"github.com/0xsequence/token-directory/internal/storage"
)

const mappingsQuery = `{ tokenMappings(first: 1000) { rootToken childToken } }`

// Mapping pairs an origin-chain token with its child-chain counterpart.
type Mapping struct {
	RootToken  string `json:"rootToken"`
	ChildToken string `json:"childToken"`
}

// Source returns child tokens for mapped origin tokens.
type Source struct {
	http        *httpx.Client
	subgraphURL string
	lists       storage.ListStore
	origin      *chains.Chain
	log         logrus.FieldLogger

	once     sync.Once
	mappings []Mapping
	err      error
}

// New creates a Source reading origin lists from lists and mappings from
// subgraphURL.
func New(h *httpx.Client, subgraphURL string, lists storage.ListStore, origin *chains.Chain, log logrus.FieldLogger) *Source {
	if h == nil {
		h = httpx.NewClient(httpx.WithLogger(log))
	}
	return &Source{http: h, subgraphURL: subgraphURL, lists: lists, origin: origin, log: log}
}

var _ pipeline.Source = (*Source)(nil)

func (s *Source) Name() string { return "bridge" }

// Mappings returns the bridge's token mappings. They are fetched once.
func (s *Source) Mappings(ctx context.Context) ([]Mapping, error) {
	s.once.Do(func() {
		s.mappings, s.err = s.fetchMappings(ctx)
	})
	return s.mappings, s.err
}

func (s *Source) fetchMappings(ctx context.Context) ([]Mapping, error) {
	var body json.RawMessage
	req := map[string]any{"query": mappingsQuery, "variables": nil}
	if err := s.http.PostJSON(ctx, s.subgraphURL, req, &body); err != nil {
		return nil, fmt.Errorf("token mappings: %w", err)
	}
	if msg := gjson.GetBytes(body, "errors.0.message"); msg.Exists() {
		return nil, fmt.Errorf("token mappings: %s", msg.String())
	}
	raw := gjson.GetBytes(body, "data.tokenMappings")
	if !raw.IsArray() {
		return nil, errors.New("token mappings: response missing data.tokenMappings")
	}
	var out []Mapping
	if err := json.Unmarshal([]byte(raw.Raw), &out); err != nil {
		return nil, fmt.Errorf("decode token mappings: %w", err)
	}
	return out, nil
}

// Fetch returns one child token per mapping whose root is listed on the
// origin chain for the same standard and whose child is not yet listed.
func (s *Source) Fetch(ctx context.Context, target pipeline.Target) ([]normalize.RawToken, error) {
	log := s.log.WithFields(logrus.Fields{"origin": s.origin.Name, "chain": target.Chain.Name})

	mappings, err := s.Mappings(ctx)
	if err != nil {
		return nil, err
	}
	file := domain.FileName(target.Standard)
	loaded, err := s.lists.Load(ctx, s.origin.Name, file)
	if errors.Is(err, storage.ErrNotFound) {
		log.Warnf("origin %s not found", file)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	byAddr := make(map[string]*domain.TokenListEntry, len(loaded.List.Tokens))
	for i := range loaded.List.Tokens {
		t := &loaded.List.Tokens[i]
		byAddr[t.Key()] = t
	}

	var out []normalize.RawToken
	seen := make(map[string]struct{})
	missing := 0
	for _, m := range mappings {
		origin, ok := byAddr[strings.ToLower(m.RootToken)]
		if !ok {
			missing++
			continue
		}
		child := strings.ToLower(m.ChildToken)
		if _, dup := seen[child]; dup || target.Has(child) {
			continue
		}
		seen[child] = struct{}{}

		raw, err := childToken(origin, m.ChildToken, s.origin.ChainID)
		if err != nil {
			log.WithField("address", m.ChildToken).Warnf("skipping: %v", err)
			continue
		}
		out = append(out, raw)
	}
	if missing > 0 {
		log.Debugf("%d mapped roots not listed on origin", missing)
	}
	return out, nil
}

// childToken copies origin under the child address and records provenance.
func childToken(origin *domain.TokenListEntry, child string, originChainID uint64) (normalize.RawToken, error) {
	ext := map[string]any{}
	if origin.Extensions != nil {
		data, err := json.Marshal(origin.Extensions)
		if err != nil {
			return normalize.RawToken{}, err
		}
		if err := json.Unmarshal(data, &ext); err != nil {
			return normalize.RawToken{}, err
		}
	}
	delete(ext, domain.ExtFeatureIndex) // ranks are per chain
	ext[domain.ExtOriginChainID] = originChainID
	ext[domain.ExtOriginAddress] = origin.Address

	raw := normalize.RawToken{
		Address:    child,
		Name:       origin.Name,
		Symbol:     origin.SymbolString(),
		Decimals:   origin.Decimals,
		Standard:   origin.Standard,
		Extensions: ext,
	}
	if origin.LogoURI != nil {
		raw.LogoURI = *origin.LogoURI
	}
	return raw, nil
}
