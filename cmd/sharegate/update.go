package main

import (
	"fmt"

	"github.com/sharegate/sharegate/internal/share"
	"github.com/spf13/cobra"
)

func newShareUpdateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Change attributes of a share link",
	}
	cmd.AddCommand(
		newUpdateValidityCmd(),
		newUpdateQuotasCmd(),
		newUpdatePermissionsCmd(),
		newUpdatePasswordCmd(),
		newUpdateFileCmd(),
		newUpdateWatermarkCmd(),
		newUpdateIPsCmd(),
	)
	return cmd
}

// updateCommand builds a "<name> <id>" command whose run mutates one share
func updateCommand(use, short string, run func(cmd *cobra.Command, a *app, id string) (*share.ShareLinkView, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app) error {
				view, err := run(cmd, a, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd, view)
			})
		},
	}
}

func newUpdateValidityCmd() *cobra.Command {
	cmd := updateCommand("validity", "Change the validity window", func(cmd *cobra.Command, a *app, id string) (*share.ShareLinkView, error) {
		from, err := timeFlag(cmd, "from")
		if err != nil {
			return nil, err
		}
		to, err := timeFlag(cmd, "to")
		if err != nil {
			return nil, err
		}
		clearTo, _ := cmd.Flags().GetBool("clear-to")
		return a.manager.UpdateValidity(cmd.Context(), id, share.ValidityUpdate{
			ValidFrom:    from,
			ValidTo:      to,
			ClearValidTo: clearTo,
		})
	})
	cmd.Flags().String("from", "", "New start of the window (RFC 3339)")
	cmd.Flags().String("to", "", "New end of the window (RFC 3339)")
	cmd.Flags().Bool("clear-to", false, "Make the window open ended")
	return cmd
}

func newUpdateQuotasCmd() *cobra.Command {
	cmd := updateCommand("quotas", "Change view and download quotas", func(cmd *cobra.Command, a *app, id string) (*share.ShareLinkView, error) {
		maxViews, err := int64Flag(cmd, "max-views")
		if err != nil {
			return nil, err
		}
		maxDownloads, err := int64Flag(cmd, "max-downloads")
		if err != nil {
			return nil, err
		}
		clearViews, _ := cmd.Flags().GetBool("clear-max-views")
		clearDownloads, _ := cmd.Flags().GetBool("clear-max-downloads")
		return a.manager.UpdateQuotas(cmd.Context(), id, share.QuotaUpdate{
			MaxViews:          maxViews,
			ClearMaxViews:     clearViews,
			MaxDownloads:      maxDownloads,
			ClearMaxDownloads: clearDownloads,
		})
	})
	cmd.Flags().Int64("max-views", 0, "Maximum successful views")
	cmd.Flags().Int64("max-downloads", 0, "Maximum successful downloads")
	cmd.Flags().Bool("clear-max-views", false, "Allow unlimited views")
	cmd.Flags().Bool("clear-max-downloads", false, "Allow unlimited downloads")
	return cmd
}

func newUpdatePermissionsCmd() *cobra.Command {
	cmd := updateCommand("permissions", "Replace the permissions", func(cmd *cobra.Command, a *app, id string) (*share.ShareLinkView, error) {
		raw, _ := cmd.Flags().GetString("permissions")
		perms, err := parsePermissions(raw)
		if err != nil {
			return nil, err
		}
		return a.manager.UpdatePermissions(cmd.Context(), id, perms)
	})
	cmd.Flags().String("permissions", "view,download", "Comma separated permissions (view, download, none)")
	return cmd
}

func newUpdatePasswordCmd() *cobra.Command {
	cmd := updateCommand("password", "Set or remove the password", func(cmd *cobra.Command, a *app, id string) (*share.ShareLinkView, error) {
		remove, _ := cmd.Flags().GetBool("remove")
		password, _ := cmd.Flags().GetString("password")
		if remove {
			if password != "" {
				return nil, fmt.Errorf("--password and --remove are mutually exclusive")
			}
			return a.manager.RemovePassword(cmd.Context(), id)
		}
		return a.manager.SetPassword(cmd.Context(), id, password)
	})
	cmd.Flags().String("password", "", "New password")
	cmd.Flags().Bool("remove", false, "Remove password protection")
	return cmd
}

func newUpdateFileCmd() *cobra.Command {
	cmd := updateCommand("file", "Change the file snapshot", func(cmd *cobra.Command, a *app, id string) (*share.ShareLinkView, error) {
		var req share.FileMetadataUpdate
		var err error
		if req.Name, err = stringFlag(cmd, "name"); err != nil {
			return nil, err
		}
		if req.Extension, err = stringFlag(cmd, "ext"); err != nil {
			return nil, err
		}
		if req.ContentType, err = stringFlag(cmd, "content-type"); err != nil {
			return nil, err
		}
		if req.SizeBytes, err = int64Flag(cmd, "size"); err != nil {
			return nil, err
		}
		if req.CreatedAt, err = timeFlag(cmd, "created-at"); err != nil {
			return nil, err
		}
		return a.manager.UpdateFileMetadata(cmd.Context(), id, req)
	})
	cmd.Flags().String("name", "", "File name")
	cmd.Flags().String("ext", "", "File extension")
	cmd.Flags().String("content-type", "", "Content type")
	cmd.Flags().Int64("size", 0, "Size in bytes")
	cmd.Flags().String("created-at", "", "File creation time (RFC 3339)")
	return cmd
}

func newUpdateWatermarkCmd() *cobra.Command {
	cmd := updateCommand("watermark", "Replace the watermark payload", func(cmd *cobra.Command, a *app, id string) (*share.ShareLinkView, error) {
		watermark, _ := cmd.Flags().GetString("watermark")
		return a.manager.UpdateWatermark(cmd.Context(), id, watermark)
	})
	cmd.Flags().String("watermark", "", "Watermark payload (empty removes it)")
	return cmd
}

func newUpdateIPsCmd() *cobra.Command {
	cmd := updateCommand("ips", "Replace the allowed client addresses", func(cmd *cobra.Command, a *app, id string) (*share.ShareLinkView, error) {
		ips, _ := cmd.Flags().GetStringSlice("allow-ip")
		return a.manager.UpdateAllowedIPs(cmd.Context(), id, ips)
	})
	cmd.Flags().StringSlice("allow-ip", nil, "Allowed client address or CIDR (repeatable, none removes the restriction)")
	return cmd
}
