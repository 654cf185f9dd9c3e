package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func (app *application) newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Open the library and report its schema version and contents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
				handle, err := rt.manager.Open(ctx)
				if err != nil {
					return err
				}
				catalog, err := rt.library.Catalog(ctx)
				if err != nil {
					return err
				}
				filed := 0
				for _, shelf := range catalog.Folders {
					filed += len(shelf.Documents)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "path: %s\n", handle.Path())
				fmt.Fprintf(out, "schema version: %d\n", handle.Version())
				fmt.Fprintf(out, "folders: %d\n", len(catalog.Folders))
				fmt.Fprintf(out, "documents: %d filed, %d unfiled\n", filed, len(catalog.Unfiled))
				if catalog.Dangling > 0 {
					fmt.Fprintf(out, "dangling folder references: %d\n", catalog.Dangling)
				}
				return nil
			})
		},
	}
}
