package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/sharegate/sharegate/internal/audit"
	"github.com/sharegate/sharegate/internal/share"
	"github.com/skip2/go-qrcode"
	"github.com/spf13/cobra"
)

// withApp runs fn against a freshly wired app and closes it afterwards
func withApp(cmd *cobra.Command, fn func(a *app) error) error {
	a, err := newApp(cmd, false)
	if err != nil {
		return err
	}
	defer a.close()
	return fn(a)
}

func newShareCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "share",
		Short: "Manage share links",
	}
	cmd.AddCommand(
		newShareCreateCmd(),
		newShareGetCmd(),
		newShareListCmd(),
		newShareRevokeCmd(),
		newShareStatsCmd(),
		newShareEventsCmd(),
		newShareQRCmd(),
		newShareUpdateCmd(),
	)
	return cmd
}

func newShareCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a share link",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := cmd.Flags()
			owner, _ := f.GetString("owner")
			documentID, _ := f.GetString("document")
			versionID, _ := f.GetString("version")
			subjectType, _ := f.GetString("subject-type")
			subjectID, _ := f.GetString("subject-id")
			perms, _ := f.GetString("permissions")
			password, _ := f.GetString("password")
			allowedIPs, _ := f.GetStringSlice("allow-ip")
			watermark, _ := f.GetString("watermark")
			fileName, _ := f.GetString("file-name")
			fileExt, _ := f.GetString("file-ext")
			contentType, _ := f.GetString("content-type")
			size, _ := f.GetInt64("size")

			permissions, err := parsePermissions(perms)
			if err != nil {
				return err
			}
			validFrom, err := timeFlag(cmd, "valid-from")
			if err != nil {
				return err
			}
			validTo, err := timeFlag(cmd, "valid-to")
			if err != nil {
				return err
			}
			maxViews, err := int64Flag(cmd, "max-views")
			if err != nil {
				return err
			}
			maxDownloads, err := int64Flag(cmd, "max-downloads")
			if err != nil {
				return err
			}

			return withApp(cmd, func(a *app) error {
				file := share.FileSnapshot{
					Name:        fileName,
					Extension:   fileExt,
					ContentType: contentType,
					SizeBytes:   size,
				}
				// Fill the snapshot from the catalog when the version is known
				if versionID != "" {
					v, err := a.catalog.GetByID(cmd.Context(), versionID)
					if err != nil {
						return err
					}
					if v != nil {
						if file.Name == "" {
							file.Name = v.FileName
						}
						if file.ContentType == "" {
							file.ContentType = v.ContentType
						}
						if file.SizeBytes == 0 {
							file.SizeBytes = v.SizeBytes
						}
						if documentID == "" {
							documentID = v.DocumentID
						}
						createdAt := v.CreatedAt
						file.CreatedAt = &createdAt
					}
				}
				if file.Extension == "" {
					file.Extension = extension(file.Name)
				}

				view, err := a.manager.Create(cmd.Context(), share.CreateRequest{
					OwnerUserID:  owner,
					DocumentID:   documentID,
					VersionID:    versionID,
					SubjectType:  share.SubjectType(subjectType),
					SubjectID:    subjectID,
					Permissions:  permissions,
					ValidFrom:    validFrom,
					ValidTo:      validTo,
					MaxViews:     maxViews,
					MaxDownloads: maxDownloads,
					Password:     password,
					AllowedIPs:   allowedIPs,
					File:         file,
					Watermark:    watermark,
				})
				if err != nil {
					return err
				}
				return printJSON(cmd, view)
			})
		},
	}

	f := cmd.Flags()
	f.String("owner", "", "Owner user id")
	f.String("document", "", "Document id")
	f.String("version", "", "Document version id (required for downloads)")
	f.String("subject-type", string(share.SubjectPublic), "Subject type (public, user, group)")
	f.String("subject-id", "", "User or group id for user and group links")
	f.String("permissions", "view,download", "Comma separated permissions (view, download)")
	f.String("valid-from", "", "Start of the validity window (RFC 3339, default now)")
	f.String("valid-to", "", "End of the validity window (RFC 3339, default open ended)")
	f.Int64("max-views", 0, "Maximum successful views")
	f.Int64("max-downloads", 0, "Maximum successful downloads")
	f.String("password", "", "Protect the link with a password")
	f.StringSlice("allow-ip", nil, "Allowed client address or CIDR (repeatable)")
	f.String("watermark", "", "Watermark payload")
	f.String("file-name", "", "File name shown on the interstitial")
	f.String("file-ext", "", "File extension")
	f.String("content-type", "", "File content type")
	f.Int64("size", 0, "File size in bytes")
	return cmd
}

func extension(name string) string {
	i := strings.LastIndex(name, ".")
	if i < 0 || i == len(name)-1 {
		return ""
	}
	return strings.ToLower(name[i+1:])
}

func newShareGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Show a share link by id, or by code with --code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			byCode, _ := cmd.Flags().GetBool("code")
			return withApp(cmd, func(a *app) error {
				var (
					view *share.ShareLinkView
					err  error
				)
				if byCode {
					view, err = a.manager.GetByCode(cmd.Context(), args[0])
				} else {
					view, err = a.manager.GetByID(cmd.Context(), args[0])
				}
				if err != nil {
					return err
				}
				return printJSON(cmd, view)
			})
		},
	}
	cmd.Flags().Bool("code", false, "Treat the argument as a share code")
	return cmd
}

func newShareListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List an owner's share links, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, _ := cmd.Flags().GetString("owner")
			if owner == "" {
				return fmt.Errorf("--owner is required")
			}
			return withApp(cmd, func(a *app) error {
				views, err := a.manager.ListByOwner(cmd.Context(), owner)
				if err != nil {
					return err
				}
				return printJSON(cmd, views)
			})
		},
	}
	cmd.Flags().String("owner", "", "Owner user id")
	return cmd
}

func newShareRevokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <id>",
		Short: "Revoke a share link permanently",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app) error {
				view, err := a.manager.Revoke(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd, view)
			})
		},
	}
}

func newShareStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats <id>",
		Short: "Show access statistics for a share link",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app) error {
				// The cache is locked while serve runs; fall back to live counts
				if err := a.openStatsCache(); err != nil {
					a.logger.WithError(err).Debug("Statistics cache unavailable, computing live")
				}
				stats, err := a.manager.GetStatistics(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd, stats)
			})
		},
	}
}

func newShareEventsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events <id>",
		Short: "List access events for a share link, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			action, _ := cmd.Flags().GetString("action")
			page, _ := cmd.Flags().GetInt("page")
			pageSize, _ := cmd.Flags().GetInt("page-size")
			return withApp(cmd, func(a *app) error {
				view, err := a.manager.GetByID(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				events, total, err := a.accessLog.ListEvents(cmd.Context(), &audit.EventFilters{
					ShareID:  view.ID,
					Action:   audit.Action(action),
					Page:     page,
					PageSize: pageSize,
				})
				if err != nil {
					return err
				}
				return printJSON(cmd, map[string]interface{}{
					"events": events,
					"total":  total,
				})
			})
		},
	}
	cmd.Flags().String("action", "", "Only events with this action (view, download, password_failed)")
	cmd.Flags().Int("page", 1, "Page number")
	cmd.Flags().Int("page-size", 50, "Events per page (max 100)")
	return cmd
}

func newShareQRCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "qr <code>",
		Short: "Render the public share URL as a PNG QR code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output, _ := cmd.Flags().GetString("output")
			size, _ := cmd.Flags().GetInt("size")
			return withApp(cmd, func(a *app) error {
				view, err := a.manager.GetByCode(cmd.Context(), args[0])
				if err != nil {
					return err
				}

				url := a.cfg.Share.PublicBaseURL + view.Code
				png, err := qrcode.Encode(url, qrcode.Medium, size)
				if err != nil {
					return fmt.Errorf("failed to render QR code: %w", err)
				}

				if output == "" {
					output = view.Code + ".png"
				}
				if err := os.WriteFile(output, png, 0644); err != nil {
					return fmt.Errorf("failed to write QR code: %w", err)
				}
				return printJSON(cmd, map[string]string{"url": url, "file": output})
			})
		},
	}
	cmd.Flags().StringP("output", "o", "", "Output file (default <code>.png)")
	cmd.Flags().Int("size", 256, "Image size in pixels")
	return cmd
}
