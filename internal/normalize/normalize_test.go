package normalize

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xsequence/token-directory/internal/domain"
	"github.com/0xsequence/token-directory/internal/logging"
)

type stubResolver struct {
	symbol string
	err    error
	calls  int
}

func (s *stubResolver) Symbol(context.Context, uint64, string) (string, error) {
	s.calls++
	return s.symbol, s.err
}

func newNormalizer() *Normalizer {
	return New(logging.Discard())
}

func TestNormalize_Fungible(t *testing.T) {
	n := newNormalizer()
	entry, err := n.Normalize(context.Background(), RawToken{
		Address:  "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48",
		Name:     " USD Coin ",
		Symbol:   "USDC",
		Decimals: domain.Ptr(6),
		LogoURI:  "https://example.com/usdc.png",
		Extensions: map[string]any{
			"coingeckoId": "usd-coin",
			"bridgeInfo":  "",
			"empty":       nil,
		},
	}, 1)
	require.NoError(t, err)

	assert.Equal(t, "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", entry.Address)
	assert.Equal(t, uint64(1), entry.ChainID)
	assert.Equal(t, "USD Coin", entry.Name)
	assert.Equal(t, "USDC", entry.SymbolString())
	assert.Equal(t, 6, *entry.Decimals)
	assert.Equal(t, "https://example.com/usdc.png", *entry.LogoURI)
	require.NotNil(t, entry.Extensions)
	assert.Equal(t, "usd-coin", *entry.Extensions.CoingeckoID)
	assert.Empty(t, entry.Extensions.Other)
}

func TestNormalize_Truncation(t *testing.T) {
	n := newNormalizer()
	longDesc := strings.Repeat("d", 1200)
	entry, err := n.Normalize(context.Background(), RawToken{
		Address:     "0x1111111111111111111111111111111111111111",
		Name:        strings.Repeat("n", 80),
		Symbol:      strings.Repeat("S", 25),
		Decimals:    domain.Ptr(18),
		Description: longDesc,
	}, 1)
	require.NoError(t, err)

	assert.Len(t, entry.Name, 64)
	assert.Len(t, entry.SymbolString(), 20)
	desc := *entry.Extensions.Description
	assert.Len(t, desc, 1000)
	assert.True(t, strings.HasSuffix(desc, "..."))
	assert.Equal(t, strings.Repeat("d", 997), strings.TrimSuffix(desc, "..."))
}

func TestNormalize_TruncationCountsRunes(t *testing.T) {
	n := newNormalizer()
	entry, err := n.Normalize(context.Background(), RawToken{
		Address:  "0x1111111111111111111111111111111111111111",
		Symbol:   strings.Repeat("€", 21),
		Decimals: domain.Ptr(18),
	}, 1)
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("€", 20), entry.SymbolString())
}

func TestNormalize_EmptyOptionalFields(t *testing.T) {
	n := newNormalizer()
	entry, err := n.Normalize(context.Background(), RawToken{
		Address:  "0x1111111111111111111111111111111111111111",
		Name:     "Token",
		Symbol:   "TKN",
		Decimals: domain.Ptr(18),
		LogoURI:  "  ",
	}, 1)
	require.NoError(t, err)
	assert.Nil(t, entry.LogoURI)
	assert.Nil(t, entry.Extensions)
}

func TestNormalize_Collectible(t *testing.T) {
	n := newNormalizer()
	entry, err := n.Normalize(context.Background(), RawToken{
		Address:  "0x2222222222222222222222222222222222222222",
		Name:     "Punks",
		Standard: "ERC721",
	}, 137)
	require.NoError(t, err)
	assert.Equal(t, domain.StandardERC721, entry.Standard)
	assert.Nil(t, entry.Symbol)
	assert.Nil(t, entry.Decimals)
}

func TestNormalize_SymbolFallback(t *testing.T) {
	n := newNormalizer()
	n.Resolver = &stubResolver{symbol: "WETH"}
	entry, err := n.Normalize(context.Background(), RawToken{
		Address:  "0x3333333333333333333333333333333333333333",
		Decimals: domain.Ptr(18),
	}, 1)
	require.NoError(t, err)
	assert.Equal(t, "WETH", entry.SymbolString())
}

func TestNormalize_SymbolFallbackFailure(t *testing.T) {
	n := newNormalizer()
	res := &stubResolver{err: errors.New("execution reverted")}
	n.Resolver = res

	entry, err := n.Normalize(context.Background(), RawToken{
		Address:  "0x3333333333333333333333333333333333333333",
		Decimals: domain.Ptr(18),
	}, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, res.calls)
	require.NotNil(t, entry.Symbol)
	assert.Equal(t, "", *entry.Symbol)

	collectible, err := n.Normalize(context.Background(), RawToken{
		Address:  "0x4444444444444444444444444444444444444444",
		Standard: domain.StandardERC1155,
	}, 1)
	require.NoError(t, err)
	assert.Nil(t, collectible.Symbol)
}

func TestNormalize_Rejects(t *testing.T) {
	n := newNormalizer()
	ctx := context.Background()

	_, err := n.Normalize(ctx, RawToken{Name: "no address", Decimals: domain.Ptr(18)}, 1)
	assert.True(t, domain.IsDataQuality(err))

	_, err = n.Normalize(ctx, RawToken{Address: "not-hex", Decimals: domain.Ptr(18)}, 1)
	assert.True(t, domain.IsDataQuality(err))

	_, err = n.Normalize(ctx, RawToken{Address: "0x1111111111111111111111111111111111111111"}, 1)
	assert.True(t, domain.IsDataQuality(err))
}

func TestNormalize_ChecksumDisabled(t *testing.T) {
	n := newNormalizer()
	n.Checksum = false
	entry, err := n.Normalize(context.Background(), RawToken{
		Address:  "0xabc",
		Decimals: domain.Ptr(0),
	}, 1)
	require.NoError(t, err)
	assert.Equal(t, "0xabc", entry.Address)
}
