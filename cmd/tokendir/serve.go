package main

import (
	"github.com/spf13/cobra"

	"github.com/0xsequence/token-directory/internal/observability"
	"github.com/0xsequence/token-directory/internal/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the registry files, run history and metrics over HTTP",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a := current
		ctx := cmd.Context()
		if err := a.openStores(ctx); err != nil {
			return err
		}
		srv := server.New(server.Options{
			Files:     a.files,
			Runs:      a.runs,
			Snapshots: a.snapshots,
			Metrics:   observability.Handler(),
			Log:       a.log,
		})
		return srv.ListenAndServe(ctx, serveAddr)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "listen address")
}
