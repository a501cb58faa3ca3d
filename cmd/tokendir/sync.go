package main

import (
	"fmt"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/0xsequence/token-directory/internal/domain"
	"github.com/0xsequence/token-directory/internal/featured"
	"github.com/0xsequence/token-directory/internal/httpx"
	"github.com/0xsequence/token-directory/internal/pipeline"
	"github.com/0xsequence/token-directory/internal/reporting"
	"github.com/0xsequence/token-directory/internal/sources/aave"
	"github.com/0xsequence/token-directory/internal/sources/bridge"
	"github.com/0xsequence/token-directory/internal/sources/coingecko"
	"github.com/0xsequence/token-directory/internal/sources/opensea"
)

// Default source locations.
const (
	DefaultBridgeSubgraph = "https://api.thegraph.com/subgraphs/name/maticnetwork/mainnet-root-subgraphs"
	DefaultTokenListURL   = "https://tokens.coingecko.com/uniswap/all.json"
)

var (
	syncWrite bool
	syncChain string

	coingeckoCount int

	bridgeOrigin   string
	bridgeTarget   string
	bridgeSubgraph string

	openseaContracts string
	openseaStandard  string

	tokenlistURL string
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Append new tokens from an external source",
	Long: `Each sync subcommand fetches candidate tokens from one source, normalizes
them, appends those not yet listed and bumps the list version. Lists are
only written with --write.`,
}

var syncCoingeckoCmd = &cobra.Command{
	Use:   "coingecko",
	Short: "Add the top coins of each chain's price-API category",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a := current
		ctx := cmd.Context()
		if err := validCount(coingeckoCount); err != nil {
			return err
		}
		names, err := a.selectChains(syncChain, a.registry.WithPriceData())
		if err != nil {
			return err
		}
		client, err := a.coingecko(ctx)
		if err != nil {
			return err
		}
		src := coingecko.NewCategorySource(client, coingeckoCount, a.cfg.ContractDelay, a.log)
		return runSync(cmd, src, names, domain.StandardERC20, false)
	},
}

var syncAaveCmd = &cobra.Command{
	Use:   "aave",
	Short: "Add lending-protocol aTokens",
	Long: `Adds aTokens from the v3 markets API and, when THEGRAPH_API_KEY is set,
from the v2 subgraphs. Missing erc20 lists are created.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a := current
		ctx := cmd.Context()
		opts := []aave.Option{
			aave.WithHTTP(a.httpClient()),
			aave.WithGraphAPIKey(a.cfg.TheGraphAPIKey),
		}
		if a.cfg.TheGraphAPIKey == "" {
			a.log.Warn("THEGRAPH_API_KEY not set, skipping v2 subgraphs")
		}
		src := aave.New(a.registry, a.log, opts...)

		all, err := src.Chains(ctx)
		if err != nil {
			return err
		}
		names, err := a.selectChains(syncChain, all)
		if err != nil {
			return err
		}
		return runSync(cmd, src, names, domain.StandardERC20, true)
	},
}

var syncBridgeCmd = &cobra.Command{
	Use:   "bridge",
	Short: "Mirror bridged tokens from the origin chain's lists",
	Long: `Reads root/child token mappings from the bridge subgraph and adds each
child token whose root is listed on the origin chain, for every standard.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a := current
		origin, ok := a.registry.Get(bridgeOrigin)
		if !ok {
			return failf("unknown chain %q", bridgeOrigin)
		}
		if _, ok := a.registry.Get(bridgeTarget); !ok {
			return failf("unknown chain %q", bridgeTarget)
		}

		src := bridge.New(a.httpClient(), bridgeSubgraph, a.files, origin, a.log)
		for _, standard := range []string{domain.StandardERC20, domain.StandardERC721, domain.StandardERC1155} {
			if err := runSync(cmd, src, []string{bridgeTarget}, standard, true); err != nil {
				return err
			}
		}
		return nil
	},
}

var syncOpenseaCmd = &cobra.Command{
	Use:   "opensea",
	Short: "Add NFT contracts listed in a contracts file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a := current
		standard := strings.ToLower(openseaStandard)
		if standard != domain.StandardERC721 && standard != domain.StandardERC1155 {
			return failf("--standard must be erc721 or erc1155, got %q", openseaStandard)
		}
		if openseaContracts == "" {
			return failf("--contracts is required")
		}
		chain := syncChain
		if chain == "" {
			chain = "mainnet"
		}
		names, err := a.selectChains(chain, nil)
		if err != nil {
			return err
		}
		contracts, err := opensea.LoadContracts(afero.NewOsFs(), openseaContracts)
		if err != nil {
			return fail(err)
		}

		src := opensea.New(a.cfg.OpenSeaAPIKey, contracts, a.cfg.ContractDelay, a.log,
			httpx.WithTimeout(a.cfg.HTTPTimeout))
		return runSync(cmd, src, names, standard, true)
	},
}

var syncTokenlistCmd = &cobra.Command{
	Use:   "tokenlist",
	Short: "Add tokens from a published token list, enriched by the price API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a := current
		ctx := cmd.Context()
		chain := syncChain
		if chain == "" {
			chain = "mainnet"
		}
		names, err := a.selectChains(chain, nil)
		if err != nil {
			return err
		}
		client, err := a.coingecko(ctx)
		if err != nil {
			return err
		}
		src := coingecko.NewListSource(client, tokenlistURL, a.cfg.ContractDelay, a.log)
		return runSync(cmd, src, names, domain.StandardERC20, false)
	},
}

func init() {
	pf := syncCmd.PersistentFlags()
	pf.BoolVar(&syncWrite, "write", false, "write updated lists")
	pf.StringVar(&syncChain, "chain", "", "sync a single chain")

	syncCoingeckoCmd.Flags().IntVar(&coingeckoCount, "count", featured.DefaultCount, "coins fetched per category")

	bf := syncBridgeCmd.Flags()
	bf.StringVar(&bridgeOrigin, "origin", "mainnet", "chain holding the root tokens")
	bf.StringVar(&bridgeTarget, "target", "polygon", "chain receiving the child tokens")
	bf.StringVar(&bridgeSubgraph, "subgraph", DefaultBridgeSubgraph, "bridge mapping subgraph URL")

	of := syncOpenseaCmd.Flags()
	of.StringVar(&openseaContracts, "contracts", "", "JSON file with an array of contract addresses")
	of.StringVar(&openseaStandard, "standard", domain.StandardERC721, "erc721 or erc1155")

	syncTokenlistCmd.Flags().StringVar(&tokenlistURL, "url", DefaultTokenListURL, "published token list URL")

	syncCmd.AddCommand(syncCoingeckoCmd, syncAaveCmd, syncBridgeCmd, syncOpenseaCmd, syncTokenlistCmd)
}

// runSync runs src over names and prints the report.
func runSync(cmd *cobra.Command, src pipeline.Source, names []string, standard string, createMissing bool) error {
	a := current
	ctx := cmd.Context()
	if err := a.openStores(ctx); err != nil {
		return err
	}

	runner := pipeline.New(pipeline.Options{
		Registry:      a.registry,
		Lists:         a.files,
		Normalizer:    a.normalizer(ctx),
		Runs:          a.runs,
		Snapshots:     a.snapshots,
		Standard:      standard,
		Write:         syncWrite,
		CreateMissing: createMissing,
		ChainDelay:    a.cfg.ChainDelay,
		Log:           a.log,
	})
	res, err := runner.Run(ctx, names, src)
	if res != nil {
		fmt.Fprint(cmd.OutOrStdout(), reporting.RenderSync(res))
	}
	if err != nil {
		return fail(err)
	}
	return nil
}
