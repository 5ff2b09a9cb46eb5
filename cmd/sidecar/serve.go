package main

import "github.com/spf13/cobra"

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the extension bridge on 127.0.0.1",
		Long: `Serve the extension bridge until SIGINT or SIGTERM.

Only messages whose Origin names the configured extension id are trusted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			application, err := opts.newApplication()
			if err != nil {
				return err
			}
			return application.Run(cmd.Context())
		},
	}
}
