package main

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/mcdev12/showdown/go/clients/showdown_client"
)

type rootOptions struct {
	server  string
	verbose bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:           "observer",
		Short:         "Play and watch poker sessions from the terminal",
		Long:          "observer creates a table on a poker server, follows the opponents' reasoning as it streams and reads your moves from stdin.",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			if opts.verbose {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			}
		},
	}
	rootCmd.PersistentFlags().StringVar(&opts.server, "server", "http://localhost:8000", "poker server base URL")
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log every event")

	rootCmd.AddCommand(
		newPlayCmd(opts),
		newModelsCmd(opts),
	)
	return rootCmd
}

func (o *rootOptions) client() *showdown_client.ShowdownClient {
	return showdown_client.NewShowdownClient(o.server)
}
