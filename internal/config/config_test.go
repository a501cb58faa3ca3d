package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(Options{})
	require.NoError(t, err)

	assert.Equal(t, "./index", cfg.Root)
	assert.Equal(t, DefaultCoingeckoBaseURL, cfg.CoingeckoBaseURL)
	assert.Equal(t, 30*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, 500*time.Millisecond, cfg.ChainDelay)
	assert.Equal(t, 200*time.Millisecond, cfg.ContractDelay)
}

func TestLoad_EnvironmentWins(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("THEGRAPH_API_KEY=from-dotenv\nOPENSEA_API_KEY=os-key\n"), 0o600))

	t.Setenv("THEGRAPH_API_KEY", "from-env")
	t.Setenv("TOKENDIR_ROOT", "/data/index")
	t.Setenv("CHAIN_DELAY", "2s")

	cfg, err := Load(Options{EnvFile: envFile})
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.TheGraphAPIKey)
	assert.Equal(t, "os-key", cfg.OpenSeaAPIKey)
	assert.Equal(t, "/data/index", cfg.Root)
	assert.Equal(t, 2*time.Second, cfg.ChainDelay)
}

func TestLoad_MissingEnvFileIsFine(t *testing.T) {
	_, err := Load(Options{EnvFile: filepath.Join(t.TempDir(), "absent.env")})
	assert.NoError(t, err)
}

func TestLoad_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokendir.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_level: debug\nbatch_delay: 1s\n"), 0o600))

	cfg, err := Load(Options{ConfigFile: path})
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, time.Second, cfg.BatchDelay)
}

func TestRequireCoingecko(t *testing.T) {
	cfg := &Config{}
	err := cfg.RequireCoingecko()
	assert.True(t, errors.Is(err, ErrMissingCredential))

	cfg.CoingeckoAPIKey = "k"
	assert.NoError(t, cfg.RequireCoingecko())
}

func TestChains_Override(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chains.yaml")
	require.NoError(t, os.WriteFile(path, []byte("chains:\n  linea:\n    chainId: 59144\n"), 0o600))

	reg, err := (&Config{ChainsFile: path}).Chains()
	require.NoError(t, err)
	_, ok := reg.Get("linea")
	assert.True(t, ok)
}
