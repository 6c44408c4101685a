package main

import (
	"fmt"

	"github.com/sharegate/sharegate/internal/catalog"
	"github.com/spf13/cobra"
)

func newCatalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Maintain the document version read model",
	}

	put := &cobra.Command{
		Use:   "put <version-id>",
		Short: "Register or update a document version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := cmd.Flags()
			documentID, _ := f.GetString("document")
			key, _ := f.GetString("key")
			name, _ := f.GetString("name")
			contentType, _ := f.GetString("content-type")
			size, _ := f.GetInt64("size")

			return withApp(cmd, func(a *app) error {
				v := &catalog.DocumentVersion{
					ID:          args[0],
					DocumentID:  documentID,
					StorageKey:  key,
					FileName:    name,
					ContentType: contentType,
					SizeBytes:   size,
					CreatedAt:   a.clock.Now(),
				}
				if err := a.catalog.Put(cmd.Context(), v); err != nil {
					return err
				}
				stored, err := a.catalog.GetByID(cmd.Context(), v.ID)
				if err != nil {
					return err
				}
				return printJSON(cmd, stored)
			})
		},
	}
	put.Flags().String("document", "", "Document id")
	put.Flags().String("key", "", "Object storage key")
	put.Flags().String("name", "", "Original file name")
	put.Flags().String("content-type", "application/octet-stream", "Content type")
	put.Flags().Int64("size", 0, "Size in bytes")

	get := &cobra.Command{
		Use:   "get <version-id>",
		Short: "Show a document version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app) error {
				v, err := a.catalog.GetByID(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if v == nil {
					return fmt.Errorf("document version %s not found", args[0])
				}
				return printJSON(cmd, v)
			})
		},
	}

	cmd.AddCommand(put, get)
	return cmd
}
