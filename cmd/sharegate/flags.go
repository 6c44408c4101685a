package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/sharegate/sharegate/internal/share"
	"github.com/spf13/cobra"
)

// parsePermissions parses a comma separated list of view and download
func parsePermissions(s string) (share.Permission, error) {
	var p share.Permission
	for _, part := range strings.Split(s, ",") {
		switch strings.ToLower(strings.TrimSpace(part)) {
		case "":
		case "view":
			p |= share.PermissionView
		case "download":
			p |= share.PermissionDownload
		case "none":
		default:
			return 0, fmt.Errorf("unknown permission %q (want view, download or none)", part)
		}
	}
	return p, nil
}

// timeFlag returns the RFC 3339 value of a flag, or nil when it was not set
func timeFlag(cmd *cobra.Command, name string) (*time.Time, error) {
	if !cmd.Flags().Changed(name) {
		return nil, nil
	}
	raw, err := cmd.Flags().GetString(name)
	if err != nil {
		return nil, err
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, fmt.Errorf("invalid --%s: %w", name, err)
	}
	t = t.UTC()
	return &t, nil
}

// int64Flag returns the value of a flag, or nil when it was not set
func int64Flag(cmd *cobra.Command, name string) (*int64, error) {
	if !cmd.Flags().Changed(name) {
		return nil, nil
	}
	n, err := cmd.Flags().GetInt64(name)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// stringFlag returns the value of a flag, or nil when it was not set
func stringFlag(cmd *cobra.Command, name string) (*string, error) {
	if !cmd.Flags().Changed(name) {
		return nil, nil
	}
	s, err := cmd.Flags().GetString(name)
	if err != nil {
		return nil, err
	}
	return &s, nil
}
