package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nvandessel/viralsim/internal/instrument"
	"github.com/nvandessel/viralsim/internal/mcp"
	"github.com/nvandessel/viralsim/internal/pathutil"
)

func newMCPServerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp-server",
		Short: "Run viralsim as an MCP server over stdio",
		Long: `Start an MCP (Model Context Protocol) server exposing the simulation
tools viralsim_simulate, viralsim_project_growth, viralsim_social_proof
and viralsim_config.

Add to an MCP client configuration:
  {
    "mcpServers": {
      "viralsim": {
        "command": "viralsim",
        "args": ["mcp-server"]
      }
    }
  }

Tool calls are audited to ~/.viralsim/audit.jsonl unless --no-audit is set.
Graph exports requested by clients are written under ~/.viralsim/exports.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			noAudit, _ := cmd.Flags().GetBool("no-audit")
			noExport, _ := cmd.Flags().GetBool("no-export")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			svc, closeTrace, err := newService(cmd, cfg, instrument.NewRecorder())
			if err != nil {
				return err
			}
			defer closeTrace()

			mcpCfg := &mcp.Config{Name: "viralsim", Version: version}
			if !noExport {
				if mcpCfg.ExportDir, err = pathutil.ExportDir(); err != nil {
					return err
				}
			}
			if !noAudit {
				mcpCfg.AuditDir = cfg.DecisionDir()
			}
			server, err := mcp.NewServer(mcpCfg, svc)
			if err != nil {
				return fmt.Errorf("failed to create MCP server: %w", err)
			}
			defer server.Close()

			fmt.Fprintf(cmd.ErrOrStderr(), "viralsim MCP server %s ready on stdio\n", version)
			return server.Run(cmd.Context())
		},
	}
	cmd.Flags().Bool("no-audit", false, "Don't write the tool call audit log")
	cmd.Flags().Bool("no-export", false, "Reject graph export requests from clients")
	return cmd
}
