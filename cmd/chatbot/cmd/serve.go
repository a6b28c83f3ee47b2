package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/NguyenDuy1910/chatbot/internal/logging"
	"github.com/NguyenDuy1910/chatbot/internal/mcp"
	"github.com/NguyenDuy1910/chatbot/pkg/retrieval"
)

func newServeCmd(g *globalOptions) *cobra.Command {
	var transport string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the document tools over MCP",
		Long: `Start an MCP server exposing add_document, update_document,
delete_document, search, structured_query, reset_index and index_status.

stdout carries JSON-RPC only. Logs go to the log file in the data
directory.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			if transport == "" {
				transport = cfg.Server.Transport
			}

			level := cfg.Server.LogLevel
			if g.debug {
				level = "debug"
			}
			cleanup, err := logging.SetupServerMode(cfg.DataDir, level)
			if err != nil {
				return err
			}
			defer cleanup()

			svc, err := retrieval.Open(ctx, cfg)
			if err != nil {
				slog.Error("service_open_failed", slog.String("error", err.Error()))
				return err
			}
			defer func() { _ = svc.Close() }()

			srv, err := mcp.NewServer(svc, cfg)
			if err != nil {
				return err
			}
			return srv.Serve(ctx, transport)
		},
	}

	cmd.Flags().StringVar(&transport, "transport", "", "Transport: stdio (default from config)")
	return cmd
}
