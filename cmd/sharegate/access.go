package main

import (
	"github.com/sharegate/sharegate/internal/share"
	"github.com/spf13/cobra"
)

func newAccessCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "access",
		Short: "Open a share code as a caller would",
	}

	cmd.AddCommand(
		accessCommand("interstitial", "Evaluate a view and show the interstitial", func(cmd *cobra.Command, a *app, req share.AccessRequest) (interface{}, error) {
			return a.access.GetInterstitial(cmd.Context(), req)
		}),
		accessCommand("verify", "Check a password without counting a view", func(cmd *cobra.Command, a *app, req share.AccessRequest) (interface{}, error) {
			if err := a.access.VerifyPassword(cmd.Context(), req); err != nil {
				return nil, err
			}
			return map[string]bool{"valid": true}, nil
		}),
		accessCommand("download", "Issue a presigned download link", func(cmd *cobra.Command, a *app, req share.AccessRequest) (interface{}, error) {
			return a.access.CreateDownloadLink(cmd.Context(), req)
		}),
	)
	return cmd
}

func accessCommand(use, short string, run func(cmd *cobra.Command, a *app, req share.AccessRequest) (interface{}, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use + " <code>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := cmd.Flags()
			token, _ := f.GetString("token")
			password, _ := f.GetString("password")
			ip, _ := f.GetString("ip")
			userAgent, _ := f.GetString("user-agent")

			return withApp(cmd, func(a *app) error {
				principal, err := a.principal(token)
				if err != nil {
					return err
				}
				out, err := run(cmd, a, share.AccessRequest{
					Code:      args[0],
					Principal: principal,
					Password:  password,
					RemoteIP:  ip,
					UserAgent: userAgent,
				})
				if err != nil {
					return err
				}
				return printJSON(cmd, out)
			})
		},
	}

	f := cmd.Flags()
	f.String("token", "", "Bearer token identifying the caller (anonymous when empty)")
	f.String("password", "", "Share password")
	f.String("ip", "", "Client address")
	f.String("user-agent", "sharegate-cli", "Client user agent")
	return cmd
}
