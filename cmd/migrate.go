package cmd

import (
	"github.com/spf13/cobra"
	"lecture-narrator/config"
	server2 "lecture-narrator/server"
)

func migrate(config *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "create or update database tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			return server2.RunMigrate(config)
		},
	}
}
