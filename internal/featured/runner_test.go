package featured

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xsequence/token-directory/internal/domain"
	"github.com/0xsequence/token-directory/internal/storage"
	"github.com/0xsequence/token-directory/internal/storage/memory"
)

func newTestRunner(t *testing.T, write bool) (*Runner, *memory.ListStore, *memory.VolumeStore, *memory.RunStore) {
	t.Helper()
	m, list := scenario()
	lists := memory.NewListStore()
	data, err := storage.EncodeJSON(list)
	require.NoError(t, err)
	lists.Put("testnet", ListFile, data)

	volumes := memory.NewVolumeStore()
	runs := memory.NewRunStore()
	r := NewRunner(RunnerOptions{
		Ranker:   newTestRanker(m, Options{}),
		Registry: testRegistry(),
		Lists:    lists,
		Volumes:  volumes,
		Runs:     runs,
		Write:    write,
		Log:      testLogger(),
	})
	r.sleep = func(context.Context, time.Duration) error { return nil }
	return r, lists, volumes, runs
}

func TestRunner_WriteMode(t *testing.T) {
	ctx := context.Background()
	r, lists, volumes, runs := newTestRunner(t, true)

	sum, err := r.Run(ctx, []string{"testnet"})
	require.NoError(t, err)
	require.Len(t, sum.Outcomes, 1)
	assert.True(t, sum.Outcomes[0].Written)

	loaded, err := lists.Load(ctx, "testnet", ListFile)
	require.NoError(t, err)
	fi, ok := loaded.List.Tokens[0].FeatureIndex()
	require.True(t, ok)
	assert.Equal(t, NativeRank, fi)

	obs, err := volumes.GetByRun(ctx, sum.RunID)
	require.NoError(t, err)
	assert.Len(t, obs, 4)

	rec, err := runs.GetByID(ctx, sum.RunID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunKindFeatured, rec.Kind)
	assert.Equal(t, domain.RunStatusOK, rec.Status)
	assert.Equal(t, 4, rec.Additions)
	assert.True(t, rec.Committed)

	// a second run finds nothing to change
	sum, err = r.Run(ctx, []string{"testnet"})
	require.NoError(t, err)
	assert.False(t, sum.Outcomes[0].Written)
}

func TestRunner_DryRunLeavesFile(t *testing.T) {
	ctx := context.Background()
	r, lists, _, _ := newTestRunner(t, false)
	before, _ := lists.Bytes("testnet", ListFile)

	sum, err := r.Run(ctx, []string{"testnet"})
	require.NoError(t, err)
	assert.False(t, sum.Outcomes[0].Written)
	require.NotNil(t, sum.Outcomes[0].Result)
	assert.Len(t, sum.Outcomes[0].Result.Ranked, 4)

	after, _ := lists.Bytes("testnet", ListFile)
	assert.Equal(t, before, after)
}

func TestRunner_ContinuesPastChainErrors(t *testing.T) {
	ctx := context.Background()
	r, _, _, runs := newTestRunner(t, false)
	r.opts.Registry.Chains["empty"] = r.opts.Registry.Chains["testnet"]

	sum, err := r.Run(ctx, []string{"nope", "empty", "testnet"})
	require.NoError(t, err)
	require.Len(t, sum.Outcomes, 3)

	assert.Error(t, sum.Outcomes[0].Err)
	assert.Equal(t, "list not found", sum.Outcomes[1].Skipped)
	assert.NotNil(t, sum.Outcomes[2].Result)
	assert.Equal(t, 1, sum.Failed())

	rec, err := runs.GetByID(ctx, sum.RunID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusPartial, rec.Status)
}

func TestRunner_StructuralErrorStops(t *testing.T) {
	ctx := context.Background()
	r, lists, _, _ := newTestRunner(t, false)
	lists.Put("testnet", ListFile, []byte("{not json"))

	sum, err := r.Run(ctx, []string{"testnet", "testnet"})
	require.Error(t, err)
	assert.True(t, domain.IsStructural(err))
	assert.Len(t, sum.Outcomes, 1)
}

const jsStyleList = `{
  "name": "sequence-erc20-testnet",
  "chainId": 7,
  "tokenStandard": "erc20",
  "logoURI": "",
  "keywords": [],
  "tokens": [
    {
      "chainId": 7,
      "address": "0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE",
      "name": "Ether",
      "symbol": "ETH",
      "decimals": 18,
      "logoURI": ""
    },
    {
      "chainId": 7,
      "address": "0xB000000000000000000000000000000000000002",
      "name": "USD Coin",
      "symbol": "USDC",
      "decimals": 6,
      "logoURI": "https://x.io/usdc.png"
    },
    {
      "chainId": 7,
      "address": "0xF000000000000000000000000000000000000006",
      "name": "Unknown & Co",
      "symbol": "UNK",
      "decimals": 18,
      "logoURI": "",
      "extensions": {
        "link": null,
        "description": "d"
      }
    }
  ]
}
`

func TestRunner_WritePreservesUnresolvedEntry(t *testing.T) {
	ctx := context.Background()
	m := &fakeMarket{
		platform: map[string]string{"0xb000000000000000000000000000000000000002": "usd-coin"},
		markets:  map[string]Market{"usd-coin": {ID: "usd-coin", Symbol: "usdc", Volume: vol(10)}},
	}
	lists := memory.NewListStore()
	lists.Put("testnet", ListFile, []byte(jsStyleList))

	r := NewRunner(RunnerOptions{
		Ranker:   newTestRanker(m, Options{}),
		Registry: testRegistry(),
		Lists:    lists,
		Write:    true,
		Log:      testLogger(),
	})
	r.sleep = func(context.Context, time.Duration) error { return nil }

	sum, err := r.Run(ctx, []string{"testnet"})
	require.NoError(t, err)
	require.Len(t, sum.Outcomes, 1)
	require.True(t, sum.Outcomes[0].Written)
	assert.Equal(t, []string{addrF}, m.contractCalls)

	after, ok := lists.Bytes("testnet", ListFile)
	require.True(t, ok)
	assert.NotEqual(t, jsStyleList, string(after))

	unresolved := jsStyleList[strings.Index(jsStyleList, `    {
      "chainId": 7,
      "address": "0xF0`):]
	assert.True(t, strings.HasSuffix(string(after), unresolved), "unresolved entry must be written back byte for byte:\n%s", after)
	assert.Contains(t, string(after), `"keywords": [],`)
	assert.Contains(t, string(after), `"featureIndex": 1`)
}
