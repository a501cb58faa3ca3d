package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/0xsequence/token-directory/internal/domain"
	"github.com/0xsequence/token-directory/internal/indexer"
	"github.com/0xsequence/token-directory/internal/reporting"
)

var reindexCheck bool

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild index.json from the list files",
	Long: `Walks every chain folder, validates that each list's chainId matches its
folder, hashes the files and writes index.json. With --check nothing is
written and the command fails when index.json is stale.`,
	Args: cobra.NoArgs,
	RunE: runReindex,
}

func init() {
	reindexCmd.Flags().BoolVar(&reindexCheck, "check", false, "verify index.json without writing")
}

func runReindex(cmd *cobra.Command, _ []string) error {
	a := current
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	started := time.Now()
	b := indexer.NewBuilder(a.files, a.log)

	if reindexCheck {
		drift, err := b.Verify(ctx)
		if err != nil {
			return fail(err)
		}
		fmt.Fprint(out, reporting.RenderDrift(drift))
		if !drift.Clean() {
			return failf("index.json is stale: %s", drift)
		}
		return nil
	}

	doc, err := b.Write(ctx)
	if err != nil {
		a.recordRun(ctx, &domain.RunRecord{
			Kind:      domain.RunKindReindex,
			StartedAt: started.UnixMilli(),
			Failures:  1,
			Status:    domain.RunStatusFailed,
		})
		return fail(err)
	}
	fmt.Fprint(out, reporting.RenderIndex(doc))
	a.recordRun(ctx, &domain.RunRecord{
		Kind:      domain.RunKindReindex,
		StartedAt: started.UnixMilli(),
		Chains:    len(doc.Index),
		Committed: true,
		Status:    domain.RunStatusOK,
	})
	return nil
}
