// reportctl runs analyses and maintains the registries from the command line.
//
// Usage:
//
//	reportctl analyze [--file report.txt] [--title T] [text...]
//	reportctl seed [--file seed.yaml]
//	reportctl ping
//	reportctl runs [--limit N]
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"reportanalyzer/internal/common"
	"reportanalyzer/internal/config"
)

// version is set at build time via -ldflags.
var version = "dev"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "reportctl",
		Short: "Analyze incident reports and manage the incident registry",
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
		SilenceUsage: true,
	}
	root.AddCommand(newAnalyzeCmd())
	root.AddCommand(newSeedCmd())
	root.AddCommand(newPingCmd())
	root.AddCommand(newRunsCmd())
	root.Version = version
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup loads the configuration and installs the logger. The returned func
// flushes the logger.
func setup() (*config.Config, *zap.Logger, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, err
	}
	log, restore, err := common.InstallLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, log, restore, nil
}
