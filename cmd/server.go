package cmd

import (
	"github.com/spf13/cobra"
	"lecture-narrator/config"
	server2 "lecture-narrator/server"
)

func server(config *config.Config) *cobra.Command {
	var embedWorker bool
	cmd := &cobra.Command{
		Use:   "server",
		Short: "start http server",
		Run: func(cmd *cobra.Command, args []string) {
			server2.RunHttp(config, embedWorker)
		},
	}
	cmd.Flags().BoolVar(&embedWorker, "with-worker", false, "also consume pipeline messages in this process")
	return cmd
}
