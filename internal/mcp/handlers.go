package mcp

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strconv"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nvandessel/viralsim/internal/export"
	"github.com/nvandessel/viralsim/internal/pathutil"
	"github.com/nvandessel/viralsim/internal/ratelimit"
	"github.com/nvandessel/viralsim/internal/service"
	"github.com/nvandessel/viralsim/internal/visualization"
)

// maxChains bounds the referral chains returned by viralsim_simulate.
const maxChains = 10

// handleSimulate implements the viralsim_simulate tool.
func (s *Server) handleSimulate(ctx context.Context, req *sdk.CallToolRequest, args SimulateInput) (_ *sdk.CallToolResult, _ SimulateOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("viralsim_simulate", start, retErr, map[string]string{
			"personas":   strconv.Itoa(len(args.Personas)),
			"events":     strconv.Itoa(len(args.Events)),
			"iterations": strconv.Itoa(args.Iterations),
			"batches":    strconv.Itoa(args.Batches),
			"format":     args.Format,
			"export":     args.Export,
		})
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "viralsim_simulate"); err != nil {
		return nil, SimulateOutput{}, err
	}

	switch args.Format {
	case "", "none", "dot", "json":
	default:
		return nil, SimulateOutput{}, fmt.Errorf("invalid format %q (valid: none, dot, json)", args.Format)
	}
	if len(args.Personas) == 0 {
		return nil, SimulateOutput{}, fmt.Errorf("'personas' parameter is required")
	}
	var kind export.Kind
	if args.Export != "" {
		k, err := export.ParseKind(args.Export)
		if err != nil {
			return nil, SimulateOutput{}, err
		}
		if s.exportDir == "" {
			return nil, SimulateOutput{}, fmt.Errorf("exports are disabled on this server")
		}
		kind = k
	} else if args.ExportPath != "" {
		return nil, SimulateOutput{}, fmt.Errorf("'export_path' requires 'export'")
	}

	resp, err := s.svc.Simulate(ctx, service.SimulateRequest{
		Personas:       args.Personas,
		Events:         args.Events,
		Iterations:     args.Iterations,
		Seed:           args.Seed,
		Batches:        args.Batches,
		PersonaPolicy:  args.PersonaPolicy,
		ProjectionDays: args.ProjectionDays,
		IncludeGraph:   true,
	})
	if err != nil {
		return nil, SimulateOutput{}, fmt.Errorf("simulation failed: %w", err)
	}

	out := SimulateOutput{
		Run:         resp.Run,
		Metrics:     resp.Metrics,
		Projection:  resp.Projection,
		Influencers: resp.Influencers,
		Chains:      longestChains(resp.Graph.ReferralChains(), maxChains),
		Message: fmt.Sprintf("%d users (%d organic, %d referred) over %d rounds, k-factor %.3f, depth %d",
			resp.Metrics.TotalUsers, resp.Metrics.OrganicUsers, resp.Metrics.ReferredUsers,
			resp.Run.Rounds, resp.Metrics.KFactor, resp.Metrics.Depth),
	}
	switch args.Format {
	case "dot":
		out.Graph = visualization.RenderDOT(resp.Graph)
	case "json":
		out.Graph = visualization.RenderJSON(resp.Graph)
	}

	if kind != "" {
		path, err := s.writeExport(ctx, kind, args.ExportPath, resp)
		if err != nil {
			return nil, SimulateOutput{}, err
		}
		out.Exported = path
	}
	return nil, out, nil
}

// writeExport writes the run's graph below the export directory. Names
// that escape it are rejected.
func (s *Server) writeExport(ctx context.Context, kind export.Kind, name string, resp *service.SimulateResponse) (string, error) {
	if name == "" {
		name = resp.Run.RunID + kind.Extension()
	}
	path, err := pathutil.ResolveExportPath(name, s.exportDir)
	if err != nil {
		return "", fmt.Errorf("invalid export path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return "", fmt.Errorf("failed to create export directory %s: %w", pathutil.RedactPath(filepath.Dir(path)), err)
	}
	info := export.Info{RunID: resp.Run.RunID, CreatedAt: resp.Run.StartedAt, Metrics: &resp.Metrics}
	if err := export.Write(ctx, kind, path, resp.Graph, info); err != nil {
		return "", fmt.Errorf("export to %s failed: %w", pathutil.RedactPath(path), err)
	}
	return path, nil
}

// longestChains returns up to n chains, longest first. Equal lengths keep
// their original order.
func longestChains(chains [][]string, n int) [][]string {
	sorted := make([][]string, 0, len(chains))
	for _, c := range chains {
		if len(c) > 1 {
			sorted = append(sorted, c)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i]) > len(sorted[j])
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

// handleProjectGrowth implements the viralsim_project_growth tool.
func (s *Server) handleProjectGrowth(ctx context.Context, req *sdk.CallToolRequest, args ProjectGrowthInput) (_ *sdk.CallToolResult, _ ProjectGrowthOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("viralsim_project_growth", start, retErr, map[string]string{
			"starting_users": strconv.FormatFloat(args.StartingUsers, 'f', -1, 64),
			"k_factor":       strconv.FormatFloat(args.KFactor, 'f', -1, 64),
			"days":           strconv.Itoa(args.Days),
		})
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "viralsim_project_growth"); err != nil {
		return nil, ProjectGrowthOutput{}, err
	}

	resp, err := s.svc.Project(service.ProjectRequest{
		StartingUsers: args.StartingUsers,
		KFactor:       args.KFactor,
		Days:          args.Days,
		ReferralRate:  args.ReferralRate,
		ChurnRate:     args.ChurnRate,
	})
	if err != nil {
		return nil, ProjectGrowthOutput{}, fmt.Errorf("projection failed: %w", err)
	}

	return nil, ProjectGrowthOutput{
		GrowthType:             resp.Projection.GrowthType,
		FinalUsers:             resp.FinalUsers,
		PeakUsers:              resp.PeakUsers,
		AverageDailyGrowthRate: resp.AverageDailyGrowthRate,
		DataPoints:             resp.Projection.DataPoints,
	}, nil
}

// handleSocialProof implements the viralsim_social_proof tool.
func (s *Server) handleSocialProof(ctx context.Context, req *sdk.CallToolRequest, args SocialProofInput) (_ *sdk.CallToolResult, _ SocialProofOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("viralsim_social_proof", start, retErr, map[string]string{
			"network_size": strconv.Itoa(args.NetworkSize),
		})
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "viralsim_social_proof"); err != nil {
		return nil, SocialProofOutput{}, err
	}

	resp, err := s.svc.SocialProof(service.SocialProofRequest{
		NetworkSize: args.NetworkSize,
		Connections: args.Connections,
		CohortSize:  args.CohortSize,
		TargetRate:  args.TargetRate,
	})
	if err != nil {
		return nil, SocialProofOutput{}, err
	}
	return nil, SocialProofOutput{
		SocialProofResult:    resp.SocialProofResult,
		CredibilityBoost:     resp.CredibilityBoost,
		NetworkValue:         resp.NetworkValue,
		MarginalValue:        resp.MarginalValue,
		AdjustedChurnRate:    resp.AdjustedChurnRate,
		EstimatedConversions: resp.EstimatedConversions,
		Target:               resp.Target,
	}, nil
}

// handleConfig implements the viralsim_config tool.
func (s *Server) handleConfig(ctx context.Context, req *sdk.CallToolRequest, args ConfigInput) (_ *sdk.CallToolResult, _ ConfigOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("viralsim_config", start, retErr, nil)
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "viralsim_config"); err != nil {
		return nil, ConfigOutput{}, err
	}

	before := s.svc.Config()
	if reflect.DeepEqual(args.Patch, ConfigInput{}.Patch) {
		return nil, ConfigOutput{Config: before}, nil
	}

	after, err := s.svc.UpdateConfig(args.Patch)
	if err != nil {
		return nil, ConfigOutput{}, err
	}
	return nil, ConfigOutput{
		Config:  after,
		Updated: !reflect.DeepEqual(before, after),
	}, nil
}
