package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newDocumentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "documents",
		Aliases: []string{"docs"},
		Short:   "Manage indexed documents",
	}

	cmd.AddCommand(newDocumentsListCmd())
	cmd.AddCommand(newDocumentsRemoveCmd())
	return cmd
}

func newDocumentsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List indexed documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDocumentsList(cmd.Context())
		},
	}
}

func newDocumentsRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <document-id>",
		Short: "Remove a document and its chunks from the index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDocumentsRemove(cmd.Context(), args[0])
		},
	}
}

// documentPayload is one document in JSON output.
type documentPayload struct {
	ID         string    `json:"id"`
	SourcePath string    `json:"source_path"`
	DocType    string    `json:"doc_type"`
	NumPages   int       `json:"num_pages"`
	FileSize   int64     `json:"file_size"`
	IngestedAt time.Time `json:"ingested_at"`
}

func runDocumentsList(ctx context.Context) error {
	eng, out, cleanup, err := openEngine(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	docs, err := eng.ListDocuments(ctx)
	if err != nil {
		return err
	}

	if len(docs) == 0 {
		out.Print("no documents indexed")
		return out.JSON([]documentPayload{})
	}

	rows := make([][]string, 0, len(docs))
	payload := make([]documentPayload, 0, len(docs))
	for _, doc := range docs {
		rows = append(rows, []string{
			doc.ID,
			doc.SourcePath,
			doc.DocType,
			fmt.Sprintf("%d", doc.NumPages),
			doc.IngestedAt.Format(time.RFC3339),
		})
		payload = append(payload, documentPayload{
			ID:         doc.ID,
			SourcePath: doc.SourcePath,
			DocType:    doc.DocType,
			NumPages:   doc.NumPages,
			FileSize:   doc.FileSize,
			IngestedAt: doc.IngestedAt,
		})
	}
	out.Table([]string{"ID", "SOURCE", "TYPE", "PAGES", "INGESTED"}, rows)
	return out.JSON(payload)
}

func runDocumentsRemove(ctx context.Context, id string) error {
	eng, out, cleanup, err := openEngine(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := eng.RemoveDocument(ctx, id); err != nil {
		return err
	}
	out.Successf("removed document %s", id)
	return out.JSON(map[string]string{"removed": id})
}
