package cmd

import (
	"github.com/spf13/cobra"
	"lecture-narrator/config"
	server2 "lecture-narrator/server"
)

func worker(config *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "start pipeline worker",
		Run: func(cmd *cobra.Command, args []string) {
			server2.RunWorker(config)
		},
	}
}
