// Package opensea builds collectible entries from OpenSea contract and
// collection metadata.
package opensea

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"github.com/0xsequence/token-directory/internal/domain"
	"github.com/0xsequence/token-directory/internal/httpx"
	"github.com/0xsequence/token-directory/internal/normalize"
	"github.com/0xsequence/token-directory/internal/pipeline"
)

const (
	DefaultBaseURL = "https://api.opensea.io/api/v2"
	APIKeyHeader   = "X-API-KEY"
)

// chainSlugs maps chain folders to OpenSea chain identifiers.
var chainSlugs = map[string]string{
	"mainnet":       "ethereum",
	"polygon":       "matic",
	"arbitrum":      "arbitrum",
	"arbitrum-nova": "arbitrum_nova",
	"optimism":      "optimism",
	"base":          "base",
	"avalanche":     "avalanche",
	"bnb":           "bsc",
}

// ChainSlug returns the OpenSea identifier for a chain folder.
func ChainSlug(folder string) (string, bool) {
	s, ok := chainSlugs[folder]
	return s, ok
}

type contractResponse struct {
	Address          string `json:"address"`
	Name             string `json:"name"`
	Collection       string `json:"collection"`
	ContractStandard string `json:"contract_standard"`
}

type collectionResponse struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	ImageURL    string `json:"image_url"`
	ProjectURL  string `json:"project_url"`
}

// Source looks up a fixed set of contracts.
type Source struct {
	http      *httpx.Client
	baseURL   string
	contracts []string
	interval  time.Duration
	log       logrus.FieldLogger
}

// New creates a Source for contracts. apiKey may be empty.
func New(apiKey string, contracts []string, interval time.Duration, log logrus.FieldLogger, opts ...httpx.ClientOption) *Source {
	if apiKey != "" {
		opts = append(opts, httpx.WithHeader(APIKeyHeader, apiKey))
	}
	opts = append(opts, httpx.WithLogger(log))
	return &Source{
		http:      httpx.NewClient(opts...),
		baseURL:   DefaultBaseURL,
		contracts: contracts,
		interval:  interval,
		log:       log,
	}
}

// WithBaseURL overrides the API base URL.
func (s *Source) WithBaseURL(u string) *Source {
	s.baseURL = strings.TrimRight(u, "/")
	return s
}

var _ pipeline.Source = (*Source)(nil)

func (s *Source) Name() string { return "opensea" }

// Fetch returns one entry per unlisted contract whose standard matches the
// target. Contracts that fail to resolve are logged and skipped.
func (s *Source) Fetch(ctx context.Context, target pipeline.Target) ([]normalize.RawToken, error) {
	slug, ok := ChainSlug(target.Chain.Name)
	if !ok {
		return nil, fmt.Errorf("opensea does not index chain %q", target.Chain.Name)
	}
	log := s.log.WithField("chain", target.Chain.Name)

	var limiter *rate.Limiter
	if s.interval > 0 {
		limiter = rate.NewLimiter(rate.Every(s.interval), 1)
	}

	var out []normalize.RawToken
	failed := 0
	for _, addr := range s.contracts {
		if target.Has(addr) {
			continue
		}
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}
		raw, err := s.lookup(ctx, slug, addr)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			failed++
			log.WithField("address", addr).Warnf("contract ignored: %v", err)
			continue
		}
		if raw.Standard != target.Standard {
			log.WithField("address", addr).Debugf("standard %s, want %s", raw.Standard, target.Standard)
			continue
		}
		out = append(out, raw)
	}
	if failed > 0 {
		log.Warnf("%d contracts ignored", failed)
	}
	return out, nil
}

func (s *Source) lookup(ctx context.Context, chainSlug, addr string) (normalize.RawToken, error) {
	var c contractResponse
	u := fmt.Sprintf("%s/chain/%s/contract/%s", s.baseURL, chainSlug, url.PathEscape(addr))
	if err := s.http.GetJSON(ctx, u, &c); err != nil {
		return normalize.RawToken{}, err
	}
	raw := normalize.RawToken{
		Address:  addr,
		Name:     c.Name,
		Standard: strings.ToLower(c.ContractStandard),
	}
	if c.Collection == "" {
		return raw, nil
	}

	var col collectionResponse
	u = fmt.Sprintf("%s/collections/%s", s.baseURL, url.PathEscape(c.Collection))
	if err := s.http.GetJSON(ctx, u, &col); err != nil {
		return normalize.RawToken{}, fmt.Errorf("collection %s: %w", c.Collection, err)
	}
	if raw.Name == "" {
		raw.Name = col.Name
	}
	raw.Description = col.Description
	raw.LogoURI = col.ImageURL
	raw.Link = col.ProjectURL
	return raw, nil
}

// LoadContracts reads a JSON array of addresses. Elements may be strings or
// objects carrying "contract_address" or "address". Duplicates are dropped.
func LoadContracts(fs afero.Fs, path string) ([]string, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("read contracts: %w", err)
	}
	if !gjson.ValidBytes(data) {
		return nil, domain.NewStructuralError(path, "invalid json", nil)
	}
	root := gjson.ParseBytes(data)
	if !root.IsArray() {
		return nil, domain.NewStructuralError(path, "expected an array", nil)
	}

	var out []string
	seen := make(map[string]struct{})
	for _, el := range root.Array() {
		var addr string
		switch {
		case el.Type == gjson.String:
			addr = el.String()
		case el.Get("contract_address").Exists():
			addr = el.Get("contract_address").String()
		default:
			addr = el.Get("address").String()
		}
		addr = strings.TrimSpace(addr)
		if addr == "" {
			continue
		}
		key := strings.ToLower(addr)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, addr)
	}
	return out, nil
}
