// Command postsrsd runs the Sender Rewriting Scheme daemon.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/postsrsd/postsrsd-go/internal/config"
	"github.com/postsrsd/postsrsd-go/internal/lifecycle"
)

// version is set by the release build's -ldflags; "dev" otherwise.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configPath  string
		testConfig  bool
		showVersion bool
	)

	rootCmd := &cobra.Command{
		Use:           "postsrsd",
		Short:         "Sender Rewriting Scheme daemon for Postfix",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if showVersion {
				fmt.Fprintln(cmd.OutOrStdout(), version)
				return nil
			}
			if configPath == "" {
				return fmt.Errorf("--config is required")
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if testConfig {
				fmt.Fprintln(cmd.OutOrStdout(), "configuration OK")
				return nil
			}

			daemon, err := lifecycle.New(cfg)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()
			return daemon.Run(ctx)
		},
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to postsrsd.toml")
	rootCmd.PersistentFlags().BoolVar(&testConfig, "test-config", false, "load and validate the configuration, then exit")
	rootCmd.PersistentFlags().BoolVar(&showVersion, "version", false, "print the version and exit")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "postsrsd:", err)
		return 1
	}
	return 0
}
