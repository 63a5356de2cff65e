// Package cli implements the traceview command line front end: open
// the configured trace streams, load and merge them, and answer dump,
// search and event-listing queries over the merged array.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "traceview",
	Short: "Inspect merged kernel trace logs",
	Long: `traceview ingests large, time-ordered kernel trace logs from one or
more streams and merges them into a single filterable record set.

Streams, filters and clock offsets come from a traceview.yaml config
file; the sub-commands query the merged result.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./traceview.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))

	rootCmd.AddCommand(dumpCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(versionCmd)
}

func initConfig() {
	viper.SetEnvPrefix("TRACEVIEW")
	viper.AutomaticEnv()
}

// newLogger builds the CLI logger; the core packages log through it.
func newLogger() (*zap.Logger, error) {
	if verbose || viper.GetBool("verbose") {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
