// Command tokendir maintains the token-list registry: it syncs lists from
// external sources, ranks featured tokens, rebuilds the index and serves
// the files over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	rootDir    string
	configFile string
	envFile    string
	logLevel   string
	logFormat  string

	// Set by PersistentPreRunE for the running command.
	current *app
)

var rootCmd = &cobra.Command{
	Use:   "tokendir",
	Short: "Token-list registry maintenance",
	Long: `tokendir maintains a directory of per-chain token lists.

Lists live under <root>/<chain>/<standard>.json and are catalogued in
<root>/index.json. Commands run in dry-run mode unless --write is given.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(cmd.Context(), appOptions{
			Root:       rootDir,
			ConfigFile: configFile,
			EnvFile:    envFile,
			LogLevel:   logLevel,
			LogFormat:  logFormat,
		})
		if err != nil {
			return err
		}
		current = a
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
		if current == nil {
			return nil
		}
		defer func() {
			current.close()
			current = nil
		}()
		return current.pushMetrics(cmd.Context(), "tokendir_"+cmd.Name())
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&rootDir, "root", "", "registry root directory (default $TOKENDIR_ROOT or ./index)")
	pf.StringVar(&configFile, "config", "", "optional config file (yaml, json or toml)")
	pf.StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the environment")
	pf.StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVar(&logFormat, "log-format", "", "log format: text or json")

	rootCmd.AddCommand(reindexCmd, featuredCmd, syncCmd, externalCmd, serveCmd)
}

// exitError carries a process exit code.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func fail(err error) error {
	return &exitError{code: 1, err: err}
}

func failf(format string, args ...any) error {
	return &exitError{code: 1, err: fmt.Errorf(format, args...)}
}

// exitCode maps a command error to the process exit status.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return 1
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if current != nil {
		current.close()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
	}
	os.Exit(exitCode(err))
}
