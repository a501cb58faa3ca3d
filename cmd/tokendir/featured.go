package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/0xsequence/token-directory/internal/featured"
	"github.com/0xsequence/token-directory/internal/reporting"
)

var (
	featuredWrite  bool
	featuredChain  string
	featuredCount  int
	featuredFormat string
)

var featuredCmd = &cobra.Command{
	Use:   "featured",
	Short: "Rank erc20 tokens by 24h trading volume",
	Long: `Assigns extensions.featureIndex on each chain's erc20 list: native tokens
get 1, pinned tokens come next, then the highest-volume markets. Tokens that
drop out of the ranking lose their index. Requires COINGECKO_API_KEY.`,
	Args: cobra.NoArgs,
	RunE: runFeatured,
}

func init() {
	f := featuredCmd.Flags()
	f.BoolVar(&featuredWrite, "write", false, "write updated lists")
	f.StringVar(&featuredChain, "chain", "", "rank a single chain")
	f.IntVar(&featuredCount, "count", featured.DefaultCount, "markets kept per chain")
	f.StringVar(&featuredFormat, "format", "markdown", "report format: markdown or csv")
}

func runFeatured(cmd *cobra.Command, _ []string) error {
	a := current
	ctx := cmd.Context()

	if err := validCount(featuredCount); err != nil {
		return err
	}
	if featuredFormat != "markdown" && featuredFormat != "csv" {
		return failf("unknown --format %q", featuredFormat)
	}
	names, err := a.selectChains(featuredChain, a.registry.WithPriceData())
	if err != nil {
		return err
	}
	client, err := a.coingecko(ctx)
	if err != nil {
		return err
	}

	ranker := featured.NewRanker(client, a.registry, featured.Options{
		Count:            featuredCount,
		BatchDelay:       a.cfg.BatchDelay,
		ContractInterval: a.cfg.ContractDelay,
	}, a.log)
	runner := featured.NewRunner(featured.RunnerOptions{
		Ranker:     ranker,
		Registry:   a.registry,
		Lists:      a.files,
		Volumes:    a.volumes,
		Runs:       a.runs,
		Write:      featuredWrite,
		ChainDelay: a.cfg.ChainDelay,
		Log:        a.log,
	})

	summary, runErr := runner.Run(ctx, names)
	if summary != nil {
		if err := renderFeatured(cmd, summary); err != nil {
			return err
		}
	}
	if runErr != nil {
		return fail(runErr)
	}
	return nil
}

// renderFeatured prints the summary in the selected --format.
func renderFeatured(cmd *cobra.Command, summary *featured.Summary) error {
	out := cmd.OutOrStdout()
	if featuredFormat == "csv" {
		csv, err := reporting.RenderFeaturedCSV(summary)
		if err != nil {
			return err
		}
		fmt.Fprint(out, csv)
		return nil
	}
	fmt.Fprint(out, reporting.RenderFeatured(summary))
	return nil
}
