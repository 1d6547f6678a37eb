// Package mcp provides an MCP (Model Context Protocol) server for viralsim.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nvandessel/viralsim/internal/ratelimit"
	"github.com/nvandessel/viralsim/internal/service"
)

// ConfigResourceURI is the resource exposing the live network config.
const ConfigResourceURI = "viralsim://config"

// Server wraps the MCP SDK server and exposes the simulation service as
// tools.
type Server struct {
	server       *sdk.Server
	svc          *service.Service
	audit        *AuditLogger
	toolLimiters ratelimit.ToolLimiters
	exportDir    string
}

// Config holds server configuration.
type Config struct {
	Name    string // Server name (e.g., "viralsim")
	Version string // Server version

	// AuditDir receives audit.jsonl. Empty disables auditing.
	AuditDir string

	// ExportDir confines graph exports requested by clients. Empty
	// disables exports.
	ExportDir string
}

// NewServer creates a new MCP server backed by svc.
func NewServer(cfg *Config, svc *service.Service) (*Server, error) {
	if svc == nil {
		return nil, fmt.Errorf("mcp server requires a simulation service")
	}

	mcpServer := sdk.NewServer(&sdk.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, &sdk.ServerOptions{})

	s := &Server{
		server:       mcpServer,
		svc:          svc,
		toolLimiters: ratelimit.NewToolLimiters(),
		exportDir:    cfg.ExportDir,
	}
	if cfg.AuditDir != "" {
		s.audit = NewAuditLogger(cfg.AuditDir)
	}

	if err := s.registerTools(); err != nil {
		s.audit.Close()
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}
	s.registerResources()

	return s, nil
}

// registerTools registers the simulation tools.
func (s *Server) registerTools() error {
	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "viralsim_simulate",
		Description: "Simulate referral growth from persona profiles and telemetry events. Returns run statistics, k-factor, chain depth and optionally the referral graph.",
	}, s.handleSimulate)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "viralsim_project_growth",
		Description: "Project user growth over a number of days from a starting population and k-factor",
	}, s.handleProjectGrowth)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "viralsim_social_proof",
		Description: "Evaluate social proof conversion, network value and churn reduction at a given network size",
	}, s.handleSocialProof)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "viralsim_config",
		Description: "Read the network configuration, or update it with a partial patch",
	}, s.handleConfig)

	return nil
}

// registerResources registers the live config as a readable resource.
func (s *Server) registerResources() {
	s.server.AddResource(&sdk.Resource{
		URI:         ConfigResourceURI,
		Name:        "viralsim-config",
		Description: "Network configuration used by new simulation runs.",
		MIMEType:    "application/json",
	}, s.handleConfigResource)
}

// handleConfigResource returns the live network config as JSON.
func (s *Server) handleConfigResource(ctx context.Context, req *sdk.ReadResourceRequest) (*sdk.ReadResourceResult, error) {
	data, err := json.MarshalIndent(s.svc.Config(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	return &sdk.ReadResourceResult{
		Contents: []*sdk.ResourceContents{
			{
				URI:      ConfigResourceURI,
				MIMEType: "application/json",
				Text:     string(data),
			},
		},
	}, nil
}

// Run starts the MCP server over stdio transport.
// This blocks until the client disconnects or the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case <-sigChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	err := s.server.Run(ctx, &sdk.StdioTransport{})

	s.audit.Close()
	return err
}

// Close releases the audit log.
func (s *Server) Close() error {
	return s.audit.Close()
}
