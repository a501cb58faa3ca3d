// Package coingecko reads coin, contract and market data from the CoinGecko API.
package coingecko

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/0xsequence/token-directory/internal/config"
	"github.com/0xsequence/token-directory/internal/domain"
	"github.com/0xsequence/token-directory/internal/featured"
	"github.com/0xsequence/token-directory/internal/httpx"
	"github.com/0xsequence/token-directory/internal/storage"
)

// APIKeyHeader carries the pro API key.
const APIKeyHeader = "x-cg-pro-api-key"

// MaxPerPage is the largest page the markets endpoint serves.
const MaxPerPage = 250

// Client talks to the CoinGecko API.
type Client struct {
	http     *httpx.Client
	baseURL  string
	cache    storage.PlatformCache
	cacheTTL time.Duration
	log      logrus.FieldLogger

	mu    sync.Mutex
	coins []CoinListEntry // fetched once per client
}

// Option configures Client.
type Option func(*Client)

// WithBaseURL overrides the API base URL.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithHTTP replaces the transport. The API key header must already be set.
func WithHTTP(h *httpx.Client) Option {
	return func(c *Client) {
		c.http = h
	}
}

// WithCache caches per-platform address maps in cache for ttl.
func WithCache(cache storage.PlatformCache, ttl time.Duration) Option {
	return func(c *Client) {
		c.cache = cache
		c.cacheTTL = ttl
	}
}

// WithLogger sets the logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(c *Client) {
		c.log = log
	}
}

// New creates a Client authenticated with apiKey.
func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: config.DefaultCoingeckoBaseURL,
		log:     logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = httpx.NewClient(httpx.WithHeader(APIKeyHeader, apiKey), httpx.WithLogger(c.log))
	}
	return c
}

// Compile-time interface check.
var _ featured.MarketData = (*Client)(nil)

// CoinListEntry is one row of /coins/list.
type CoinListEntry struct {
	ID        string            `json:"id"`
	Symbol    string            `json:"symbol"`
	Name      string            `json:"name"`
	Platforms map[string]string `json:"platforms"`
}

// MarketEntry is one row of /coins/markets.
type MarketEntry struct {
	ID          string           `json:"id"`
	Symbol      string           `json:"symbol"`
	Name        string           `json:"name"`
	Image       string           `json:"image"`
	TotalVolume *decimal.Decimal `json:"total_volume"`
}

// ContractInfo is the subset of /coins/{platform}/contract/{address} we use.
type ContractInfo struct {
	ID          string `json:"id"`
	Symbol      string `json:"symbol"`
	Name        string `json:"name"`
	Description struct {
		En string `json:"en"`
	} `json:"description"`
	Links struct {
		Homepage []string `json:"homepage"`
	} `json:"links"`
	Image struct {
		Large string `json:"large"`
	} `json:"image"`
	DetailPlatforms map[string]struct {
		DecimalPlace    *int   `json:"decimal_place"`
		ContractAddress string `json:"contract_address"`
	} `json:"detail_platforms"`
	MarketData *struct {
		TotalVolume map[string]*decimal.Decimal `json:"total_volume"`
	} `json:"market_data"`
}

// Decimals returns the decimal places recorded for platform, if any.
func (i *ContractInfo) Decimals(platform string) *int {
	if p, ok := i.DetailPlatforms[platform]; ok {
		return p.DecimalPlace
	}
	return nil
}

// Homepage returns the first non-empty homepage link.
func (i *ContractInfo) Homepage() string {
	for _, h := range i.Links.Homepage {
		if strings.TrimSpace(h) != "" {
			return h
		}
	}
	return ""
}

// VolumeUSD returns the 24h USD volume, or nil.
func (i *ContractInfo) VolumeUSD() *decimal.Decimal {
	if i.MarketData == nil {
		return nil
	}
	return i.MarketData.TotalVolume["usd"]
}

// CoinList returns /coins/list with platforms. The list is fetched once.
func (c *Client) CoinList(ctx context.Context) ([]CoinListEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.coins != nil {
		return c.coins, nil
	}

	c.log.Info("fetching coin list with platforms")
	var coins []CoinListEntry
	if err := c.http.GetJSON(ctx, c.baseURL+"/coins/list?include_platform=true", &coins); err != nil {
		return nil, fmt.Errorf("coin list: %w", err)
	}
	if coins == nil {
		coins = []CoinListEntry{}
	}
	c.coins = coins
	return coins, nil
}

// CoinPlatforms maps coin id to platform to lowercase address.
func (c *Client) CoinPlatforms(ctx context.Context) (map[string]map[string]string, error) {
	coins, err := c.CoinList(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]map[string]string, len(coins))
	for _, coin := range coins {
		platforms := make(map[string]string, len(coin.Platforms))
		for p, addr := range coin.Platforms {
			if addr == "" {
				continue
			}
			platforms[p] = strings.ToLower(addr)
		}
		if len(platforms) > 0 {
			out[coin.ID] = platforms
		}
	}
	return out, nil
}

// PlatformAddresses maps lowercase address to coin id on platform.
// When several coins list an address, the last one in the coin list wins.
func (c *Client) PlatformAddresses(ctx context.Context, platform string) (map[string]string, error) {
	if c.cache != nil {
		m, ok, err := c.cache.Get(ctx, platform)
		if err != nil {
			c.log.Warnf("platform cache get: %v", err)
		} else if ok {
			return m, nil
		}
	}

	coins, err := c.CoinList(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string)
	for _, coin := range coins {
		addr := strings.ToLower(coin.Platforms[platform])
		if addr == "" {
			continue
		}
		out[addr] = coin.ID
	}

	if c.cache != nil {
		if err := c.cache.Set(ctx, platform, out, c.cacheTTL); err != nil {
			c.log.Warnf("platform cache set: %v", err)
		}
	}
	return out, nil
}

// Contract fetches contract details. The address is sent lowercase. Any
// non-success status is reported as featured.ErrNotFound.
func (c *Client) Contract(ctx context.Context, platform, address string) (*ContractInfo, error) {
	u := fmt.Sprintf("%s/coins/%s/contract/%s", c.baseURL, url.PathEscape(platform), url.PathEscape(strings.ToLower(address)))
	var info ContractInfo
	if err := c.http.GetJSON(ctx, u, &info); err != nil {
		var te *domain.TransportError
		if errors.As(err, &te) && te.StatusCode != 0 {
			return nil, featured.ErrNotFound
		}
		return nil, err
	}
	return &info, nil
}

// ContractCoin resolves a contract to its coin id and volume.
func (c *Client) ContractCoin(ctx context.Context, platform, address string) (*featured.ContractCoin, error) {
	info, err := c.Contract(ctx, platform, address)
	if err != nil {
		return nil, err
	}
	if info.ID == "" {
		return nil, featured.ErrNotFound
	}
	return &featured.ContractCoin{ID: info.ID, Volume: info.VolumeUSD()}, nil
}

// Markets returns market rows for ids, at most MaxPerPage.
func (c *Client) Markets(ctx context.Context, ids []string) ([]featured.Market, error) {
	if len(ids) > MaxPerPage {
		return nil, fmt.Errorf("markets: %d ids exceeds page size %d", len(ids), MaxPerPage)
	}
	q := url.Values{}
	q.Set("vs_currency", "usd")
	q.Set("ids", strings.Join(ids, ","))
	q.Set("order", "volume_desc")
	q.Set("per_page", strconv.Itoa(MaxPerPage))
	q.Set("page", "1")

	var rows []MarketEntry
	if err := c.http.GetJSON(ctx, c.baseURL+"/coins/markets?"+q.Encode(), &rows); err != nil {
		return nil, fmt.Errorf("markets: %w", err)
	}
	out := make([]featured.Market, 0, len(rows))
	for _, r := range rows {
		out = append(out, featured.Market{ID: r.ID, Symbol: r.Symbol, Name: r.Name, Volume: r.TotalVolume})
	}
	return out, nil
}

// CategoryMarkets returns the top count coins of category by volume.
func (c *Client) CategoryMarkets(ctx context.Context, category string, count int) ([]MarketEntry, error) {
	q := url.Values{}
	q.Set("vs_currency", "usd")
	q.Set("category", category)
	q.Set("order", "volume_desc")
	q.Set("per_page", strconv.Itoa(count))
	q.Set("page", "1")

	var rows []MarketEntry
	if err := c.http.GetJSON(ctx, c.baseURL+"/coins/markets?"+q.Encode(), &rows); err != nil {
		return nil, fmt.Errorf("category %s markets: %w", category, err)
	}
	return rows, nil
}
