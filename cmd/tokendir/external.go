package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/0xsequence/token-directory/internal/domain"
	"github.com/0xsequence/token-directory/internal/external"
	"github.com/0xsequence/token-directory/internal/reporting"
)

var externalSave bool

var externalCmd = &cobra.Command{
	Use:   "external",
	Short: "Externally maintained token lists",
}

var externalCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Download and validate every list in external.json",
	Long: `Fetches each list named in <root>/external.json concurrently, verifies it
is valid JSON and reports its size and SHA-256. With --save each valid list
is written to <root>/_external/<name>.json. Fails if any list fails.`,
	Args: cobra.NoArgs,
	RunE: runExternalCheck,
}

func init() {
	externalCheckCmd.Flags().BoolVar(&externalSave, "save", false, "save valid lists under _external/")
	externalCmd.AddCommand(externalCheckCmd)
}

func runExternalCheck(cmd *cobra.Command, _ []string) error {
	a := current
	ctx := cmd.Context()
	started := time.Now()

	checker := external.NewChecker(a.files, a.httpClient(), externalSave, a.log)
	report, err := checker.Run(ctx)
	if err != nil {
		return fail(err)
	}
	fmt.Fprint(cmd.OutOrStdout(), reporting.RenderExternal(report))

	status := domain.RunStatusOK
	if report.Failed() > 0 {
		status = domain.RunStatusPartial
	}
	a.recordRun(ctx, &domain.RunRecord{
		Kind:      domain.RunKindExternal,
		StartedAt: started.UnixMilli(),
		Additions: len(report.Results) - report.Failed(),
		Failures:  report.Failed(),
		Committed: externalSave,
		Status:    status,
	})

	if n := report.Failed(); n > 0 {
		return failf("%d of %d external lists failed", n, len(report.Results))
	}
	return nil
}
