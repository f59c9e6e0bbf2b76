package main

import (
	"github.com/spf13/cobra"
	"github.com/xhad/newsbot/pkg/pipeline"
	"github.com/xhad/newsbot/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the web form",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config, :8080)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	c, err := buildComponents(ctx, nil, false)
	if err != nil {
		return err
	}
	defer c.Close()

	addr := cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}

	hub := server.NewHub()
	app := pipeline.NewApp(c.pipeline, hub.Publish)
	return server.NewWSServer(server.Config{Addr: addr}, app, hub).ListenAndServe(ctx)
}

