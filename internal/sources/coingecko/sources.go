package coingecko

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/0xsequence/token-directory/internal/domain"
	"github.com/0xsequence/token-directory/internal/featured"
	"github.com/0xsequence/token-directory/internal/normalize"
	"github.com/0xsequence/token-directory/internal/pipeline"
)

// DefaultContractInterval paces per-contract lookups.
const DefaultContractInterval = 200 * time.Millisecond

// CategorySource adds the top-volume coins of a chain's category.
type CategorySource struct {
	client   *Client
	count    int
	interval time.Duration
	log      logrus.FieldLogger
}

// NewCategorySource creates a source returning up to count coins per chain.
func NewCategorySource(client *Client, count int, interval time.Duration, log logrus.FieldLogger) *CategorySource {
	return &CategorySource{client: client, count: count, interval: interval, log: log}
}

var _ pipeline.Source = (*CategorySource)(nil)

func (s *CategorySource) Name() string { return "coingecko" }

// Fetch returns unlisted category coins that have an address on the chain.
// Decimals come from the contract endpoint; a coin whose decimals cannot be
// resolved is returned without them and dropped by normalization.
func (s *CategorySource) Fetch(ctx context.Context, target pipeline.Target) ([]normalize.RawToken, error) {
	chain := target.Chain
	if chain.CoingeckoCategory == "" || chain.CoingeckoPlatform == "" {
		return nil, nil
	}
	log := s.log.WithField("chain", chain.Name)

	platforms, err := s.client.CoinPlatforms(ctx)
	if err != nil {
		return nil, err
	}
	markets, err := s.client.CategoryMarkets(ctx, chain.CoingeckoCategory, s.count)
	if err != nil {
		return nil, err
	}
	log.Infof("got %d coins from category %s", len(markets), chain.CoingeckoCategory)

	limiter := newLimiter(s.interval)
	var out []normalize.RawToken
	for _, m := range markets {
		addr := platforms[m.ID][chain.CoingeckoPlatform]
		if addr == "" || target.Has(addr) {
			continue
		}
		if err := wait(ctx, limiter); err != nil {
			return nil, err
		}
		raw := normalize.RawToken{
			Address:    addr,
			Name:       m.Name,
			Symbol:     strings.ToUpper(m.Symbol),
			LogoURI:    m.Image,
			Extensions: map[string]any{domain.ExtCoingeckoID: m.ID},
		}
		info, err := s.client.Contract(ctx, chain.CoingeckoPlatform, addr)
		switch {
		case err == nil:
			raw.Decimals = info.Decimals(chain.CoingeckoPlatform)
		case errors.Is(err, featured.ErrNotFound):
		case ctx.Err() != nil:
			return nil, ctx.Err()
		default:
			log.WithField("address", addr).Warnf("contract lookup failed: %v", err)
		}
		out = append(out, raw)
	}
	return out, nil
}

// ListSource reads a published token list and enriches each unlisted entry
// with the description and homepage link from the contract endpoint.
type ListSource struct {
	client   *Client
	url      string
	interval time.Duration
	log      logrus.FieldLogger
}

// NewListSource creates a source reading the list at listURL.
func NewListSource(client *Client, listURL string, interval time.Duration, log logrus.FieldLogger) *ListSource {
	return &ListSource{client: client, url: listURL, interval: interval, log: log}
}

var _ pipeline.Source = (*ListSource)(nil)

func (s *ListSource) Name() string { return "tokenlist" }

type publishedList struct {
	Tokens []struct {
		ChainID  uint64 `json:"chainId"`
		Address  string `json:"address"`
		Name     string `json:"name"`
		Symbol   string `json:"symbol"`
		Decimals *int   `json:"decimals"`
		LogoURI  string `json:"logoURI"`
	} `json:"tokens"`
}

// Fetch returns entries of the published list on the target chain that are
// not listed yet. Entries whose contract lookup fails keep the list's fields.
func (s *ListSource) Fetch(ctx context.Context, target pipeline.Target) ([]normalize.RawToken, error) {
	chain := target.Chain
	log := s.log.WithField("chain", chain.Name)

	var list publishedList
	if err := s.client.http.GetJSON(ctx, s.url, &list); err != nil {
		return nil, fmt.Errorf("token list %s: %w", s.url, err)
	}

	limiter := newLimiter(s.interval)
	var out []normalize.RawToken
	for _, t := range list.Tokens {
		if t.ChainID != chain.ChainID || target.Has(t.Address) {
			continue
		}
		raw := normalize.RawToken{
			Address:  t.Address,
			Name:     t.Name,
			Symbol:   t.Symbol,
			Decimals: t.Decimals,
			LogoURI:  t.LogoURI,
		}
		if chain.CoingeckoPlatform != "" {
			if err := wait(ctx, limiter); err != nil {
				return nil, err
			}
			info, err := s.client.Contract(ctx, chain.CoingeckoPlatform, t.Address)
			switch {
			case err == nil:
				if raw.Symbol == "" {
					raw.Symbol = info.Symbol
				}
				raw.Description = info.Description.En
				raw.Link = info.Homepage()
			case errors.Is(err, featured.ErrNotFound):
			case ctx.Err() != nil:
				return nil, ctx.Err()
			default:
				log.WithField("address", t.Address).Warnf("contract lookup failed: %v", err)
			}
		}
		out = append(out, raw)
	}
	log.Infof("%d unlisted tokens in %s", len(out), s.url)
	return out, nil
}

func newLimiter(interval time.Duration) *rate.Limiter {
	if interval <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Every(interval), 1)
}

func wait(ctx context.Context, l *rate.Limiter) error {
	if l == nil {
		return nil
	}
	return l.Wait(ctx)
}
