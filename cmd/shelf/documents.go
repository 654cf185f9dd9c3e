package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/MarcoPoloResearchLab/shelf/internal/library"
	"github.com/natefinch/atomic"
	"github.com/spf13/cobra"
)

func (app *application) newDocumentsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "documents",
		Aliases: []string{"docs"},
		Short:   "Manage stored documents",
	}
	cmd.AddCommand(
		app.newDocumentsListCommand(),
		app.newDocumentsImportCommand(),
		app.newDocumentsDeleteCommand(),
		app.newDocumentsMoveCommand(),
		app.newDocumentsRenameCommand(),
		app.newDocumentsExportCommand(),
	)
	return cmd
}

func (app *application) newDocumentsListCommand() *cobra.Command {
	var folderID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
				var (
					documents []library.Document
					err       error
				)
				if folderID != "" {
					documents, err = rt.library.ListFolderDocuments(ctx, folderID)
				} else {
					documents, err = rt.library.ListDocuments(ctx)
				}
				if err != nil {
					return err
				}
				folders, err := rt.library.ListFolders(ctx)
				if err != nil {
					return err
				}
				return writeDocuments(cmd.OutOrStdout(), documents, folders)
			})
		},
	}
	cmd.Flags().StringVar(&folderID, "folder", "", "Only list documents filed in this folder")
	return cmd
}

func (app *application) newDocumentsImportCommand() *cobra.Command {
	var (
		title      string
		folderID   string
		documentID string
	)
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import a file into the library",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			if strings.TrimSpace(title) == "" {
				title = strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
			}
			request := library.ImportRequest{ID: documentID, Title: title, Data: data}
			if folderID != "" {
				request.FolderID = &folderID
			}
			return app.withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
				document, err := rt.library.ImportDocument(ctx, request)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), document.ID)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "Document title (defaults to the file name)")
	cmd.Flags().StringVar(&folderID, "folder", "", "Folder to file the document in")
	cmd.Flags().StringVar(&documentID, "id", "", "Document id to reuse when retrying an import")
	return cmd
}

func (app *application) newDocumentsDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a document and its content",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
				return rt.library.DeleteDocument(ctx, args[0])
			})
		},
	}
}

func (app *application) newDocumentsMoveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "move <id> [folder-id]",
		Short: "Move a document into a folder, or to the root without a folder",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var folderID *string
			if len(args) == 2 {
				folderID = &args[1]
			}
			return app.withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
				return rt.library.ReassignFolder(ctx, args[0], folderID)
			})
		},
	}
}

func (app *application) newDocumentsRenameCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rename <id> <title>",
		Short: "Rename a document",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
				return rt.library.RenameDocument(ctx, args[0], args[1])
			})
		},
	}
}

func (app *application) newDocumentsExportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "export <id> <path>",
		Short: "Write the stored content of a document to a file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
				binary, err := rt.library.GetDocumentBinary(ctx, args[0])
				if err != nil {
					return err
				}
				if binary == nil {
					return fmt.Errorf("%w: %s", library.ErrContentUnavailable, args[0])
				}
				return atomic.WriteFile(args[1], bytes.NewReader(binary.Data))
			})
		},
	}
}

func writeDocuments(out io.Writer, documents []library.Document, folders []library.Folder) error {
	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "ID\tTITLE\tSIZE\tPAGES\tFOLDER\tUPLOADED")
	for _, document := range documents {
		folderName := "-"
		if folder := library.ResolveFolder(document, folders); folder != nil {
			folderName = folder.Name
		}
		fmt.Fprintf(writer, "%s\t%s\t%s\t%d\t%s\t%s\n",
			document.ID,
			document.Title,
			document.SizeLabel,
			document.PageCount,
			folderName,
			document.UploadedAt.Format(time.RFC3339))
	}
	return writer.Flush()
}

func (app *application) withRuntime(cmd *cobra.Command, fn func(context.Context, *runtime) error) error {
	rt, err := app.openRuntime()
	if err != nil {
		return err
	}
	defer rt.Close() //nolint:errcheck
	return fn(cmd.Context(), rt)
}
