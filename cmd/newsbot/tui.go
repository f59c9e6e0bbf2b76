package main

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"github.com/xhad/newsbot/internal/tui"
	"github.com/xhad/newsbot/pkg/pipeline"
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Open the terminal form",
	Args:  cobra.NoArgs,
	RunE:  runTUI,
}

func init() {
	rootCmd.AddCommand(tuiCmd)
}

func runTUI(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	c, err := buildComponents(ctx, nil, false)
	if err != nil {
		return err
	}
	defer c.Close()

	var program *tea.Program
	app := pipeline.NewApp(c.pipeline, func(s pipeline.State) {
		program.Send(tui.StatusMsg(s))
	})
	program = tea.NewProgram(tui.New(ctx, app), tea.WithAltScreen())

	_, err = program.Run()
	return err
}
