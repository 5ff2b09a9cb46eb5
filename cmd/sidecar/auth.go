package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/aussiebroadwan/sidecar/internal/sidecar/app"
	"github.com/aussiebroadwan/sidecar/internal/sidecar/domain"
	"github.com/spf13/cobra"
)

func newLoginCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Log in through the browser and print the session",
		Long: `Run the interactive PKCE login and print the resulting session.

In ephemeral storage mode the session ends with this process; use the
persistent mode to keep the refresh token for later commands.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApplication(opts, func(application *app.Application) error {
				view, err := application.Session.Login(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), view)
			})
		},
	}
}

func newLogoutCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApplication(opts, func(application *app.Application) error {
				application.Session.Logout(cmd.Context())
				fmt.Fprintln(cmd.ErrOrStderr(), "Logged out.")
				return nil
			})
		},
	}
}

func newStatusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the current session",
		Long: `Print the current session, refreshing it silently when a refresh
token is stored. Exits with code 2 when there is no session.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApplication(opts, func(application *app.Application) error {
				view := application.Session.SessionView(cmd.Context())
				if err := printJSON(cmd.OutOrStdout(), view); err != nil {
					return err
				}
				if !view.IsAuthenticated {
					return domain.NewError(domain.CodeAuthRequired, domain.MsgLoginRequired)
				}
				return nil
			})
		},
	}
}

func withApplication(opts *rootOptions, fn func(*app.Application) error) error {
	application, err := opts.newApplication()
	if err != nil {
		return err
	}
	defer application.Close()

	return fn(application)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
