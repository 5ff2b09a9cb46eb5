package main

import (
	"github.com/aussiebroadwan/sidecar/internal/sidecar/app"
	"github.com/aussiebroadwan/sidecar/internal/sidecar/domain"
	"github.com/spf13/cobra"
)

// Exit codes for CLI commands.
const (
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (command failed, invalid arguments).
	ExitCodeError = 1
	// ExitCodeAuthRequired indicates there is no usable session.
	ExitCodeAuthRequired = 2
	// ExitCodeAuthFailed indicates the provider rejected the login or refresh.
	ExitCodeAuthFailed = 3
)

type rootOptions struct {
	configPath string
	appOptions []app.Option
}

func newRootCmd(appOptions ...app.Option) *cobra.Command {
	opts := &rootOptions{appOptions: appOptions}

	cmd := &cobra.Command{
		Use:   "sidecar",
		Short: "Session manager for the browser extension",
		Long: `sidecar owns the Keycloak session for the browser extension.

It keeps the access token in memory, refreshes it on demand, attaches it to
backend calls and answers the extension's messages on a loopback bridge.
Configuration comes from an optional YAML file overlaid by environment
variables.`,
		Version:      app.BuildVersion,
		SilenceUsage: true,
	}
	cmd.SetVersionTemplate(`{{printf "sidecar version %s\n" .Version}}`)
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "",
		"YAML config file (default is $"+app.ConfigPathEnv+")")

	cmd.AddCommand(
		newServeCmd(opts),
		newLoginCmd(opts),
		newLogoutCmd(opts),
		newStatusCmd(opts),
	)

	return cmd
}

// exitCode maps an error to a semantic exit code for scripting.
func exitCode(err error) int {
	if err == nil {
		return ExitCodeSuccess
	}

	if e, ok := domain.AsError(err); ok {
		switch e.Code {
		case domain.CodeAuthRequired:
			return ExitCodeAuthRequired
		case domain.CodeAuthFailed:
			return ExitCodeAuthFailed
		}
	}

	return ExitCodeError
}

func (o *rootOptions) newApplication() (*app.Application, error) {
	cfg, err := app.LoadConfig(o.configPath)
	if err != nil {
		return nil, err
	}
	return app.New(cfg, o.appOptions...)
}
