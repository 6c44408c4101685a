package main

import (
	"github.com/sharegate/sharegate/internal/auth"
	"github.com/spf13/cobra"
)

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint caller tokens for user and group links",
	}

	issue := &cobra.Command{
		Use:   "issue <subject>",
		Short: "Sign a bearer token for a subject",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			groups, _ := cmd.Flags().GetStringSlice("group")
			return withApp(cmd, func(a *app) error {
				if a.tokens == nil {
					return auth.ErrSecretRequired
				}
				token, err := a.tokens.Issue(args[0], groups, a.cfg.Auth.TokenTTL)
				if err != nil {
					return err
				}
				return printJSON(cmd, map[string]interface{}{
					"token":      token,
					"subject":    args[0],
					"groups":     groups,
					"expires_in": a.cfg.Auth.TokenTTL.String(),
				})
			})
		},
	}
	issue.Flags().StringSlice("group", nil, "Group membership (repeatable)")

	cmd.AddCommand(issue)
	return cmd
}
