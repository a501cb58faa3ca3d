package indexer

import (
	"context"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xsequence/token-directory/internal/domain"
	"github.com/0xsequence/token-directory/internal/idhash"
	"github.com/0xsequence/token-directory/internal/logging"
	"github.com/0xsequence/token-directory/internal/storage/fsstore"
)

func setup(t *testing.T, files map[string]string) (*Builder, afero.Fs) {
	t.Helper()
	fsys := afero.NewMemMapFs()
	require.NoError(t, fsys.MkdirAll("index", 0o755))
	for name, content := range files {
		require.NoError(t, afero.WriteFile(fsys, "index/"+name, []byte(content), 0o644))
	}
	return NewBuilder(fsstore.New(fsys, "index"), logging.Discard()), fsys
}

func TestBuilder_Write(t *testing.T) {
	mainnet := `{"name":"sequence-erc20-mainnet","chainId":1,"tokens":[]}`
	mainnetNFT := `{"name":"sequence-erc721-mainnet","chainId":1,"tokens":[]}`
	polygon := `{"chainId":137,"tokens":[]}`
	external := `[{"anything":"goes"}]`

	b, fsys := setup(t, map[string]string{
		"mainnet/erc20.json":     mainnet,
		"mainnet/erc721.json":    mainnetNFT,
		"polygon/erc20.json":     polygon,
		"polygon/notes.txt":      "ignored",
		"_external/uniswap.json": external,
		"goerli/erc20.json":      `{"chainId":5,"tokens":[]}`,
		"deprecated.json":        `{"deprecated":["goerli"]}`,
		"external.json":          `{"externalTokenLists":[]}`,
	})
	require.NoError(t, fsys.MkdirAll("index/empty", 0o755))

	doc, err := b.Write(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Note, doc.Note)
	require.Len(t, doc.Index, 4)
	assert.NotContains(t, doc.Index, "empty")

	assert.Equal(t, uint64(1), doc.Index["mainnet"].ChainID)
	assert.Equal(t, map[string]string{
		"erc20.json":  idhash.ContentHash([]byte(mainnet)),
		"erc721.json": idhash.ContentHash([]byte(mainnetNFT)),
	}, doc.Index["mainnet"].TokenLists)
	assert.Equal(t, idhash.ContentHash([]byte(polygon)), doc.Index["polygon"].TokenLists["erc20.json"])

	assert.Equal(t, domain.ExternalChainID, doc.Index["_external"].ChainID)
	assert.True(t, doc.Index["goerli"].Deprecated)
	assert.False(t, doc.Index["mainnet"].Deprecated)

	raw, err := afero.ReadFile(fsys, "index/index.json")
	require.NoError(t, err)
	assert.Contains(t, string(raw), "\"goerli\": {\n      \"deprecated\": true,\n      \"chainId\": 5,")
	assert.Equal(t, byte('\n'), raw[len(raw)-1])
}

func TestBuilder_Deterministic(t *testing.T) {
	files := map[string]string{
		"mainnet/erc20.json": `{"chainId":1,"tokens":[]}`,
		"base/erc20.json":    `{"chainId":8453,"tokens":[]}`,
	}
	b1, fs1 := setup(t, files)
	b2, fs2 := setup(t, files)

	_, err := b1.Write(context.Background())
	require.NoError(t, err)
	_, err = b2.Write(context.Background())
	require.NoError(t, err)

	raw1, _ := afero.ReadFile(fs1, "index/index.json")
	raw2, _ := afero.ReadFile(fs2, "index/index.json")
	assert.Equal(t, raw1, raw2)
}

func TestBuilder_InconsistentChainAborts(t *testing.T) {
	b, fsys := setup(t, map[string]string{
		"polygon/erc20.json":  `{"chainId":137,"tokens":[]}`,
		"polygon/erc721.json": `{"chainId":1,"tokens":[]}`,
		"index.json":          `{"previous":true}`,
	})

	_, err := b.Write(context.Background())
	require.Error(t, err)
	assert.True(t, domain.IsStructural(err))
	assert.Contains(t, err.Error(), "expected 137, got 1")

	raw, err := afero.ReadFile(fsys, "index/index.json")
	require.NoError(t, err)
	assert.Equal(t, `{"previous":true}`, string(raw), "index must not be rewritten")
}

func TestProbeChainID(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		want    uint64
		wantErr string
	}{
		{"valid", `{"chainId":42161}`, 42161, ""},
		{"missing", `{"name":"x"}`, 0, "missing chainId"},
		{"string", `{"chainId":"1"}`, 0, "must be a number"},
		{"zero", `{"chainId":0}`, 0, "cannot be 0"},
		{"negative", `{"chainId":-5}`, 0, "not a positive integer"},
		{"fraction", `{"chainId":1.5}`, 0, "not a positive integer"},
		{"invalid json", `{"chainId":1`, 0, "invalid json"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ProbeChainID("f.json", []byte(tt.data))
			if tt.wantErr == "" {
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
				return
			}
			require.Error(t, err)
			assert.True(t, domain.IsStructural(err))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestBuilder_UnreadableDeprecatedIgnored(t *testing.T) {
	b, _ := setup(t, map[string]string{
		"mainnet/erc20.json": `{"chainId":1,"tokens":[]}`,
		"deprecated.json":    `{not json`,
	})

	doc, err := b.Build(context.Background())
	require.NoError(t, err)
	assert.False(t, doc.Index["mainnet"].Deprecated)
}

func TestBuilder_Verify(t *testing.T) {
	b, fsys := setup(t, map[string]string{
		"mainnet/erc20.json": `{"chainId":1,"tokens":[]}`,
		"polygon/erc20.json": `{"chainId":137,"tokens":[]}`,
	})
	ctx := context.Background()

	drift, err := b.Verify(ctx)
	require.NoError(t, err)
	assert.True(t, drift.NoIndex)
	assert.False(t, drift.Clean())

	_, err = b.Write(ctx)
	require.NoError(t, err)

	drift, err = b.Verify(ctx)
	require.NoError(t, err)
	assert.True(t, drift.Clean(), drift.String())

	require.NoError(t, afero.WriteFile(fsys, "index/mainnet/erc20.json", []byte(`{"chainId":1,"tokens":[{}]}`), 0o644))
	require.NoError(t, afero.WriteFile(fsys, "index/base/erc20.json", []byte(`{"chainId":8453}`), 0o644))
	require.NoError(t, fsys.Remove("index/polygon/erc20.json"))

	drift, err = b.Verify(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"mainnet/erc20.json"}, drift.Changed)
	assert.Equal(t, []string{"base/erc20.json"}, drift.Missing)
	assert.Equal(t, []string{"polygon/erc20.json"}, drift.Extra)
}
