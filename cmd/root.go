package cmd

import (
	"github.com/spf13/cobra"
	"lecture-narrator/config"
)

func Root(config *config.Config) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "lecture-narrator",
		Short: "turn slide decks into narrated lectures",
	}
	rootCmd.AddCommand(server(config))
	rootCmd.AddCommand(worker(config))
	rootCmd.AddCommand(migrate(config))
	return rootCmd
}
