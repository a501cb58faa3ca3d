// Package config builds the single process configuration value.
// Nothing below cmd/ reads the environment directly; components receive
// the fields they need from Config.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/0xsequence/token-directory/internal/chains"
)

// ErrMissingCredential is returned when a credential required by the
// whole run is absent.
var ErrMissingCredential = errors.New("missing required credential")

// Config holds credentials, store locations and pacing settings.
type Config struct {
	Root       string // index root holding chain folders
	ChainsFile string // optional chains.yaml override

	CoingeckoAPIKey  string
	CoingeckoBaseURL string
	TheGraphAPIKey   string
	OpenSeaAPIKey    string
	EthRPCURL        string

	PostgresDSN    string
	ClickhouseDSN  string
	RedisURL       string
	PushgatewayURL string

	LogLevel  string
	LogFormat string
	LogFile   string

	HTTPTimeout   time.Duration
	ChainDelay    time.Duration // pause between chains
	BatchDelay    time.Duration // pause between paginated batches
	ContractDelay time.Duration // pacing of per-contract lookups
	CacheTTL      time.Duration // coin-platform cache lifetime
}

// Options controls where configuration is read from.
type Options struct {
	EnvFile    string // dotenv file; missing file is not an error
	ConfigFile string // optional yaml/json/toml file read by viper
}

const (
	keyRoot             = "tokendir_root"
	keyChainsFile       = "chains_file"
	keyCoingeckoAPIKey  = "coingecko_api_key"
	keyCoingeckoBaseURL = "coingecko_base_url"
	keyTheGraphAPIKey   = "thegraph_api_key"
	keyOpenSeaAPIKey    = "opensea_api_key"
	keyEthRPCURL        = "eth_rpc_url"
	keyPostgresDSN      = "postgres_dsn"
	keyClickhouseDSN    = "clickhouse_dsn"
	keyRedisURL         = "redis_url"
	keyPushgatewayURL   = "pushgateway_url"
	keyLogLevel         = "log_level"
	keyLogFormat        = "log_format"
	keyLogFile          = "log_file"
	keyHTTPTimeout      = "http_timeout"
	keyChainDelay       = "chain_delay"
	keyBatchDelay       = "batch_delay"
	keyContractDelay    = "contract_delay"
	keyCacheTTL         = "cache_ttl"
)

// DefaultCoingeckoBaseURL is the pro API root.
const DefaultCoingeckoBaseURL = "https://pro-api.coingecko.com/api/v3"

// Load reads the dotenv file, the environment and an optional config file.
// Real environment variables win over dotenv values.
func Load(opts Options) (*Config, error) {
	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load env file %s: %w", opts.EnvFile, err)
		}
	}

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault(keyRoot, "./index")
	v.SetDefault(keyCoingeckoBaseURL, DefaultCoingeckoBaseURL)
	v.SetDefault(keyLogLevel, "info")
	v.SetDefault(keyLogFormat, "text")
	v.SetDefault(keyHTTPTimeout, 30*time.Second)
	v.SetDefault(keyChainDelay, 500*time.Millisecond)
	v.SetDefault(keyBatchDelay, 500*time.Millisecond)
	v.SetDefault(keyContractDelay, 200*time.Millisecond)
	v.SetDefault(keyCacheTTL, 6*time.Hour)

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", opts.ConfigFile, err)
		}
	}

	cfg := &Config{
		Root:             v.GetString(keyRoot),
		ChainsFile:       v.GetString(keyChainsFile),
		CoingeckoAPIKey:  v.GetString(keyCoingeckoAPIKey),
		CoingeckoBaseURL: v.GetString(keyCoingeckoBaseURL),
		TheGraphAPIKey:   v.GetString(keyTheGraphAPIKey),
		OpenSeaAPIKey:    v.GetString(keyOpenSeaAPIKey),
		EthRPCURL:        v.GetString(keyEthRPCURL),
		PostgresDSN:      v.GetString(keyPostgresDSN),
		ClickhouseDSN:    v.GetString(keyClickhouseDSN),
		RedisURL:         v.GetString(keyRedisURL),
		PushgatewayURL:   v.GetString(keyPushgatewayURL),
		LogLevel:         v.GetString(keyLogLevel),
		LogFormat:        v.GetString(keyLogFormat),
		LogFile:          v.GetString(keyLogFile),
		HTTPTimeout:      v.GetDuration(keyHTTPTimeout),
		ChainDelay:       v.GetDuration(keyChainDelay),
		BatchDelay:       v.GetDuration(keyBatchDelay),
		ContractDelay:    v.GetDuration(keyContractDelay),
		CacheTTL:         v.GetDuration(keyCacheTTL),
	}
	return cfg, nil
}

// RequireCoingecko fails when the price API key is absent.
func (c *Config) RequireCoingecko() error {
	if c.CoingeckoAPIKey == "" {
		return fmt.Errorf("%w: COINGECKO_API_KEY", ErrMissingCredential)
	}
	return nil
}

// Chains loads the chain registry, applying ChainsFile when set.
func (c *Config) Chains() (*chains.Registry, error) {
	if c.ChainsFile == "" {
		return chains.Load(nil)
	}
	f, err := os.Open(c.ChainsFile)
	if err != nil {
		return nil, fmt.Errorf("open chains file: %w", err)
	}
	defer f.Close()
	return chains.Load(f)
}
