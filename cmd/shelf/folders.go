package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/MarcoPoloResearchLab/shelf/internal/library"
	"github.com/spf13/cobra"
)

func (app *application) newFoldersCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "folders",
		Short: "Manage folders",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List folders",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return app.withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
					folders, err := rt.library.ListFolders(ctx)
					if err != nil {
						return err
					}
					return writeFolders(cmd.OutOrStdout(), folders)
				})
			},
		},
		&cobra.Command{
			Use:   "create <name>",
			Short: "Create a folder and print its id",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return app.withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
					folder, err := rt.library.CreateFolder(ctx, args[0])
					if err != nil {
						return err
					}
					_, err = fmt.Fprintln(cmd.OutOrStdout(), folder.ID)
					return err
				})
			},
		},
		&cobra.Command{
			Use:   "rename <id> <name>",
			Short: "Rename a folder",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return app.withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
					return rt.library.RenameFolder(ctx, args[0], args[1])
				})
			},
		},
		&cobra.Command{
			Use:   "delete <id>",
			Short: "Delete a folder and move its documents to the root",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return app.withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
					return rt.library.DeleteFolder(ctx, args[0])
				})
			},
		},
	)
	return cmd
}

func writeFolders(out io.Writer, folders []library.Folder) error {
	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "ID\tNAME\tCREATED")
	for _, folder := range folders {
		fmt.Fprintf(writer, "%s\t%s\t%s\n", folder.ID, folder.Name, folder.CreatedAt.Format(time.RFC3339))
	}
	return writer.Flush()
}
