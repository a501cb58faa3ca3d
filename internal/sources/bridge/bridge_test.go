package bridge

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xsequence/token-directory/internal/chains"
	"github.com/0xsequence/token-directory/internal/domain"
	"github.com/0xsequence/token-directory/internal/pipeline"
	"github.com/0xsequence/token-directory/internal/storage"
	"github.com/0xsequence/token-directory/internal/storage/memory"
)

const (
	rootDAI   = "0x6b175474e89094c44da98b954eedeac495271d0f"
	childDAI  = "0x8f3cf7ad23cd3cadbd9735aff958023239c6a063"
	rootNFT   = "0x06012c8cf97bead5deae237070f9587f8e7a266d"
	childNFT  = "0x1111111111111111111111111111111111111111"
	rootOther = "0x2222222222222222222222222222222222222222"
)

func quiet() logrus.FieldLogger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func mappingServer(t *testing.T, body string) string {
	t.Helper()
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, 1, calls, "mappings fetched once")
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv.URL
}

const mappings = `{"data":{"tokenMappings":[
  {"rootToken":"` + rootDAI + `","childToken":"` + childDAI + `"},
  {"rootToken":"` + rootNFT + `","childToken":"` + childNFT + `"},
  {"rootToken":"` + rootOther + `","childToken":"0x3333333333333333333333333333333333333333"}
]}}`

func seedLists(t *testing.T) *memory.ListStore {
	t.Helper()
	lists := memory.NewListStore()
	put := func(folder, standard string, list *domain.TokenList) {
		data, err := storage.EncodeJSON(list)
		require.NoError(t, err)
		lists.Put(folder, domain.FileName(standard), data)
	}
	put("mainnet", domain.StandardERC20, &domain.TokenList{ChainID: 1, Tokens: []domain.TokenListEntry{{
		ChainID:  1,
		Address:  "0x6B175474E89094C44Da98b954EedeAC495271d0F",
		Name:     "Dai Stablecoin",
		Symbol:   domain.Ptr("DAI"),
		Decimals: domain.Ptr(18),
		LogoURI:  domain.Ptr("https://img/dai.png"),
		Extensions: &domain.Extensions{
			Link:         domain.Ptr("https://makerdao.com"),
			FeatureIndex: domain.Ptr(4),
		},
	}}})
	put("mainnet", domain.StandardERC721, &domain.TokenList{ChainID: 1, Tokens: []domain.TokenListEntry{{
		ChainID:  1,
		Address:  rootNFT,
		Name:     "CryptoKitties",
		Standard: domain.StandardERC721,
		Symbol:   domain.Ptr("CK"),
	}}})
	return lists
}

func polygonTarget(standard string, known ...string) pipeline.Target {
	c, _ := chains.Default().Get("polygon")
	k := map[string]struct{}{}
	for _, a := range known {
		k[a] = struct{}{}
	}
	return pipeline.Target{Chain: c, Standard: standard, Known: k}
}

func newSource(t *testing.T, body string) *Source {
	origin, _ := chains.Default().Get("mainnet")
	return New(nil, mappingServer(t, body), seedLists(t), origin, quiet())
}

func TestFetch_ERC20(t *testing.T) {
	s := newSource(t, mappings)
	raws, err := s.Fetch(context.Background(), polygonTarget(domain.StandardERC20))
	require.NoError(t, err)
	require.Len(t, raws, 1)

	r := raws[0]
	assert.Equal(t, childDAI, r.Address)
	assert.Equal(t, "DAI", r.Symbol)
	assert.Equal(t, 18, *r.Decimals)
	assert.Equal(t, "https://img/dai.png", r.LogoURI)
	assert.Equal(t, uint64(1), r.Extensions[domain.ExtOriginChainID])
	assert.Equal(t, "0x6B175474E89094C44Da98b954EedeAC495271d0F", r.Extensions[domain.ExtOriginAddress])
	assert.Equal(t, "https://makerdao.com", r.Extensions[domain.ExtLink])
	assert.NotContains(t, r.Extensions, domain.ExtFeatureIndex)

	// mappings are reused across standards
	nfts, err := s.Fetch(context.Background(), polygonTarget(domain.StandardERC721))
	require.NoError(t, err)
	require.Len(t, nfts, 1)
	assert.Equal(t, childNFT, nfts[0].Address)
	assert.Equal(t, domain.StandardERC721, nfts[0].Standard)
}

func TestFetch_SkipsKnownChildren(t *testing.T) {
	s := newSource(t, mappings)
	raws, err := s.Fetch(context.Background(), polygonTarget(domain.StandardERC20, childDAI))
	require.NoError(t, err)
	assert.Empty(t, raws)
}

func TestFetch_MissingOriginList(t *testing.T) {
	s := newSource(t, mappings)
	raws, err := s.Fetch(context.Background(), polygonTarget(domain.StandardERC1155))
	require.NoError(t, err)
	assert.Empty(t, raws)
}

func TestFetch_SubgraphError(t *testing.T) {
	s := newSource(t, `{"errors":[{"message":"subgraph not found"}]}`)
	_, err := s.Fetch(context.Background(), polygonTarget(domain.StandardERC20))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "subgraph not found")
}
