// Command schemaport migrates content schemas between projects: export a
// selection of item types and plugins to a portable document, inspect its
// dependency graph, detect conflicts against a target project, and import.
package main

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/schemaport/schemaport/internal/cma"
	"github.com/schemaport/schemaport/internal/schemaport/logger"
	"github.com/schemaport/schemaport/internal/schemaport/progress"
	"github.com/schemaport/schemaport/internal/schemaport/source"
)

var (
	flagAPIURL   string
	flagAPIToken string
	flagVerbose  bool
)

var rootCmd = &cobra.Command{
	Use:           "schemaport",
	Short:         "Migrate content schemas between projects",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		godotenv.Load()
		if flagAPIURL == "" {
			flagAPIURL = os.Getenv("SCHEMAPORT_API_URL")
		}
		if flagAPIToken == "" {
			flagAPIToken = os.Getenv("SCHEMAPORT_API_TOKEN")
		}
		if flagVerbose {
			logger.SetLogger(&logger.StderrLogger{})
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagAPIURL, "api-url", "", "schema-management API base URL (or SCHEMAPORT_API_URL)")
	rootCmd.PersistentFlags().StringVar(&flagAPIToken, "api-token", "", "API token (or SCHEMAPORT_API_TOKEN)")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "log engine diagnostics to stderr")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// openSource connects to the project named by the persistent flags.
func openSource() (*source.RemoteSource, *cma.Client, error) {
	if flagAPIURL == "" || flagAPIToken == "" {
		return nil, nil, fmt.Errorf("--api-url and --api-token are required")
	}
	client := cma.NewClient(flagAPIURL, flagAPIToken)
	src, err := source.NewRemoteSource(client)
	if err != nil {
		return nil, nil, err
	}
	return src, client, nil
}

// printProgress renders progress events as single stderr lines.
func printProgress(ev progress.Event) {
	fmt.Fprintf(os.Stderr, "[%d/%d] %s\n", ev.Done, ev.Total, ev.Label)
}

// interruptCanceller turns the first SIGINT into a cooperative cancellation
// request. The returned stop func releases the signal handler.
func interruptCanceller() (*progress.Canceller, func()) {
	cancel := progress.NewCanceller()
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	go func() {
		if _, ok := <-sig; ok {
			fmt.Fprintln(os.Stderr, "Cancelling after the current operation...")
			cancel.RequestCancel()
		}
	}()
	return cancel, func() {
		signal.Stop(sig)
		close(sig)
	}
}

// writeOutput writes data to path, or stdout when path is "-".
func writeOutput(path string, data []byte) error {
	if path == "-" {
		_, err := os.Stdout.Write(append(data, '\n'))
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
