// Package cmd implements the swarmchat command line.
package cmd

import "github.com/spf13/cobra"

// Execute runs the root command.
func Execute() error {
	return newRootCmd().Execute()
}

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:           "swarmchat",
		Short:         "Multi-agent chat orchestrator",
		Long:          "swarmchat routes chat requests through a swarm of role agents (project manager, software engineer, QA tester, deployment engineer, data engineer), one swarm per conversation.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to a YAML or TOML config file")

	rootCmd.AddCommand(
		newVersionCmd(),
		newServeCmd(opts),
		newAskCmd(opts),
	)

	return rootCmd
}
