package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/xhad/newsbot/pkg/pipeline"
)

var processCmd = &cobra.Command{
	Use:   "process URL [URL] [URL]",
	Short: "Fetch up to three article URLs and rebuild the index",
	Long: `Fetch the given article URLs, split them into chunks, embed the chunks and
replace the local index with the result. A URL without a scheme gets https://.

Examples:
  newsbot process https://example.com/news/rates
  newsbot process example.com/a example.com/b example.com/c`,
	RunE: runProcess,
}

func init() {
	rootCmd.AddCommand(processCmd)
}

func runProcess(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	urls := pipeline.CleanURLs(args)
	progress := newStageProgress(len(urls))

	c, err := buildComponents(ctx, progress.Fetched, false)
	if err != nil {
		return err
	}
	defer c.Close()

	color.Blue("\nStarting news pipeline for %d URL(s)\n", len(urls))
	report, err := c.pipeline.Process(ctx, args, progress.Stage)
	progress.Done()
	if err != nil {
		return err
	}

	color.Green("✓ %s", pipeline.StagePersisted.Status())
	fmt.Printf("  %d chunks from %d document(s) written to %s\n", report.Chunks, report.Documents, report.Path)
	for _, src := range report.Sources {
		fmt.Printf("  - %s\n", src)
	}
	return nil
}
