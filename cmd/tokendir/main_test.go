package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xsequence/token-directory/internal/config"
	"github.com/0xsequence/token-directory/internal/domain"
)

// execute runs the root command with args against a fresh flag state.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	reindexCheck = false
	featuredCount = 50
	featuredFormat = "markdown"
	featuredChain = ""
	syncChain = ""
	syncWrite = false
	coingeckoCount = 50

	t.Setenv("COINGECKO_API_KEY", "")
	t.Setenv("PUSHGATEWAY_URL", "")
	t.Setenv("POSTGRES_DSN", "")
	t.Setenv("CLICKHOUSE_DSN", "")
	t.Setenv("REDIS_URL", "")
	t.Setenv("ETH_RPC_URL", "")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--env-file", "", "--log-level", "error"}, args...))
	err := rootCmd.ExecuteContext(context.Background())
	if current != nil {
		current.close()
		current = nil
	}
	return out.String(), err
}

func writeList(t *testing.T, root, folder string, chainID int) {
	t.Helper()
	dir := filepath.Join(root, folder)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	body := []byte(`{"name":"sequence-erc20-` + folder + `","chainId":` + strconv.Itoa(chainID) + `,"tokens":[]}`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "erc20.json"), body, 0o644))
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, exitCode(nil))
	assert.Equal(t, 1, exitCode(errors.New("boom")))
	assert.Equal(t, 1, exitCode(failf("unknown chain %q", "x")))
	assert.Equal(t, 3, exitCode(&exitError{code: 3, err: errors.New("x")}))

	err := fail(domain.NewStructuralError("mainnet/erc20.json", "invalid token list json", nil))
	assert.True(t, domain.IsStructural(err))
}

func TestValidCount(t *testing.T) {
	assert.NoError(t, validCount(1))
	assert.NoError(t, validCount(250))
	assert.Error(t, validCount(0))
	assert.Error(t, validCount(-5))
	assert.Error(t, validCount(251))
}

func TestReindex(t *testing.T) {
	root := t.TempDir()
	writeList(t, root, "mainnet", 1)
	writeList(t, root, "polygon", 137)

	out, err := execute(t, "--root", root, "reindex")
	require.NoError(t, err)
	assert.Contains(t, out, "Indexed 2 folders, 2 files.")

	data, err := os.ReadFile(filepath.Join(root, domain.IndexFileName))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"polygon"`)

	out, err = execute(t, "--root", root, "reindex", "--check")
	require.NoError(t, err)
	assert.Contains(t, out, "Index is up to date.")

	writeList(t, root, "base", 8453)
	out, err = execute(t, "--root", root, "reindex", "--check")
	require.Error(t, err)
	assert.Equal(t, 1, exitCode(err))
	assert.Contains(t, out, "missing base/erc20.json")
}

func TestReindex_InconsistentChainID(t *testing.T) {
	root := t.TempDir()
	writeList(t, root, "mainnet", 1)
	require.NoError(t, os.WriteFile(filepath.Join(root, "mainnet", "erc721.json"),
		[]byte(`{"name":"x","chainId":137,"tokens":[]}`), 0o644))

	_, err := execute(t, "--root", root, "reindex")
	require.Error(t, err)
	assert.Equal(t, 1, exitCode(err))
	assert.True(t, domain.IsStructural(err))

	_, statErr := os.Stat(filepath.Join(root, domain.IndexFileName))
	assert.True(t, os.IsNotExist(statErr))
}

func TestFeatured_Validation(t *testing.T) {
	root := t.TempDir()

	_, err := execute(t, "--root", root, "featured", "--count", "0")
	require.Error(t, err)
	assert.Equal(t, 1, exitCode(err))

	_, err = execute(t, "--root", root, "featured", "--chain", "nowhere")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown chain "nowhere"`)

	_, err = execute(t, "--root", root, "featured", "--chain", "mainnet")
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrMissingCredential)
	assert.Equal(t, 1, exitCode(err))
}

func TestSync_Validation(t *testing.T) {
	root := t.TempDir()

	_, err := execute(t, "--root", root, "sync", "coingecko", "--count=-1")
	require.Error(t, err)

	_, err = execute(t, "--root", root, "sync", "tokenlist", "--chain", "mainnet")
	assert.ErrorIs(t, err, config.ErrMissingCredential)

	_, err = execute(t, "--root", root, "sync", "opensea", "--standard", "erc20", "--contracts", "x.json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--standard")

	_, err = execute(t, "--root", root, "sync", "bridge", "--origin", "nowhere")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown chain "nowhere"`)
}

func TestSync_StructuralErrorStillReports(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "mainnet"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "mainnet", "erc721.json"), []byte("{not json"), 0o644))
	contracts := filepath.Join(t.TempDir(), "contracts.json")
	require.NoError(t, os.WriteFile(contracts, []byte(`["0x1000000000000000000000000000000000000001"]`), 0o644))

	out, err := execute(t, "--root", root, "sync", "opensea", "--chain", "mainnet",
		"--standard", "erc721", "--contracts", contracts)
	require.Error(t, err)
	assert.True(t, domain.IsStructural(err))
	assert.Equal(t, 1, exitCode(err))

	assert.Contains(t, out, "# Sync: opensea")
	assert.Contains(t, out, "Chains: 1 | Added: 0 | Failed: 1")
	assert.Contains(t, out, "## mainnet/erc721.json")
	assert.Contains(t, out, "**Error:**")
}
