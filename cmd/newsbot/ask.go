package main

import (
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/xhad/newsbot/pkg/llm"
)

var askFromDB bool

var askCmd = &cobra.Command{
	Use:   "ask QUESTION",
	Short: "Answer a question from the processed articles",
	Long: `Retrieve the chunks closest to the question, ask the LLM and print the
answer together with the article URLs it cited.

Examples:
  newsbot ask "What did the central bank decide?"
  newsbot ask --from-db "Who is affected by the new rules?"`,
	RunE: runAsk,
}

func init() {
	rootCmd.AddCommand(askCmd)
	askCmd.Flags().BoolVar(&askFromDB, "from-db", false, "retrieve from the Postgres mirror instead of the index file")
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	c, err := buildComponents(ctx, nil, askFromDB)
	if err != nil {
		return err
	}
	defer c.Close()

	progress := newStageProgress(0)
	result, err := c.pipeline.Query(ctx, strings.Join(args, " "), progress.Stage)
	progress.Done()
	if err != nil {
		return err
	}

	assistant := color.New(color.FgCyan).PrintfFunc()
	assistant("\nAnswer: %s\n", strings.TrimSpace(result.Answer))
	if sources := llm.FormatSources(result.Sources); sources != "" {
		color.Green("\n%s", sources)
	}
	return nil
}
