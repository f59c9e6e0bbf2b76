package main

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/xhad/newsbot/pkg/index"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Copy the index file into the Postgres mirror",
	Long: `Replace the contents of the pgvector table with the current index file, so
that "newsbot ask --from-db" answers from the same articles.`,
	Args: cobra.NoArgs,
	RunE: runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	ix, err := index.NewFileStore(cfg.Index.Path).Load(ctx)
	if err != nil {
		return err
	}

	mirror, err := openMirror(ctx)
	if err != nil {
		return err
	}
	defer mirror.Close()

	spinner := getSpinner("💾 Storing in vector database...")
	err = mirror.Replace(ctx, ix)
	spinner.Finish()
	if err != nil {
		return err
	}

	color.Green("\n✓ Exported %d chunks from %d source(s) to %s", ix.Len(), len(ix.Sources()), cfg.Database.TableName)
	return nil
}
