package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/nvandessel/viralsim/internal/dataset"
	"github.com/nvandessel/viralsim/internal/export"
	"github.com/nvandessel/viralsim/internal/graph"
	"github.com/nvandessel/viralsim/internal/growth"
	"github.com/nvandessel/viralsim/internal/instrument"
	"github.com/nvandessel/viralsim/internal/ranking"
	"github.com/nvandessel/viralsim/internal/service"
	"github.com/nvandessel/viralsim/internal/simulation"
	"github.com/nvandessel/viralsim/internal/visualization"
)

// simulateResult is the --json output of simulate.
type simulateResult struct {
	Run         simulation.RunStats  `json:"run"`
	Metrics     simulation.Metrics   `json:"metrics"`
	Projection  *growth.Projection   `json:"projection,omitempty"`
	Influencers []ranking.Influencer `json:"influencers,omitempty"`
	Exported    string               `json:"exported,omitempty"`
	LoadErrors  []dataset.LoadError  `json:"load_errors,omitempty"`
}

// textInfluencers is how many top referrers the text output lists.
const textInfluencers = 5

func newSimulateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run a referral simulation over a persona dataset",
		Long: `Seed every persona as an organic user, run referral rounds and report
the resulting network.

Personas and events are read from JSON, JSONL or YAML files.

Examples:
  viralsim simulate --personas personas.json --events events.jsonl
  viralsim simulate --personas personas.yaml --iterations 5 --seed 7 --json
  viralsim simulate --personas p.json --events e.jsonl --export sqlite --out run.db
  viralsim simulate --personas p.json --events e.jsonl --dot - | dot -Tsvg > graph.svg
  viralsim simulate --personas p.json --events e.jsonl --view`,
		RunE: func(cmd *cobra.Command, args []string) error {
			personasPath, _ := cmd.Flags().GetString("personas")
			eventsPath, _ := cmd.Flags().GetString("events")
			iterations, _ := cmd.Flags().GetInt("iterations")
			batches, _ := cmd.Flags().GetInt("batches")
			policy, _ := cmd.Flags().GetString("policy")
			projectionDays, _ := cmd.Flags().GetInt("projection-days")
			dotPath, _ := cmd.Flags().GetString("dot")
			exportKind, _ := cmd.Flags().GetString("export")
			out, _ := cmd.Flags().GetString("out")
			htmlPath, _ := cmd.Flags().GetString("html")
			metricsFile, _ := cmd.Flags().GetString("metrics-file")
			view, _ := cmd.Flags().GetBool("view")
			noOpen, _ := cmd.Flags().GetBool("no-open")
			jsonOut, _ := cmd.Flags().GetBool("json")

			var kind export.Kind
			if exportKind != "" {
				var err error
				if kind, err = export.ParseKind(exportKind); err != nil {
					return err
				}
			}

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			recorder := instrument.NewRecorder()
			svc, closeTrace, err := newService(cmd, cfg, recorder)
			if err != nil {
				return err
			}
			defer closeTrace()

			ds, err := dataset.Load(personasPath, eventsPath)
			if err != nil {
				return fmt.Errorf("failed to load dataset: %w", err)
			}
			for _, le := range ds.LoadErrors {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s:%d: %s\n", le.File, le.Line, le.Error)
			}

			req := service.SimulateRequest{
				Personas:       ds.Personas,
				Events:         ds.Events,
				Iterations:     iterations,
				Batches:        batches,
				PersonaPolicy:  policy,
				ProjectionDays: projectionDays,
				IncludeGraph:   true,
			}
			if cmd.Flags().Changed("seed") {
				seed, _ := cmd.Flags().GetInt64("seed")
				req.Seed = &seed
			}

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			resp, err := svc.Simulate(ctx, req)
			if err != nil {
				return fmt.Errorf("simulation failed: %w", err)
			}

			result := simulateResult{
				Run:         resp.Run,
				Metrics:     resp.Metrics,
				Projection:  resp.Projection,
				Influencers: resp.Influencers,
				LoadErrors:  ds.LoadErrors,
			}

			if kind != "" {
				if out == "" {
					out = "viralsim-" + shortRunID(resp.Run.RunID) + kind.Extension()
				}
				info := export.Info{RunID: resp.Run.RunID, CreatedAt: resp.Run.StartedAt, Metrics: &resp.Metrics}
				if err := export.Write(ctx, kind, out, resp.Graph, info); err != nil {
					return fmt.Errorf("export %s: %w", kind, err)
				}
				result.Exported = out
			}

			if metricsFile != "" {
				if err := recorder.WriteTextfile(metricsFile); err != nil {
					return fmt.Errorf("write metrics file: %w", err)
				}
			}

			if dotPath != "" {
				if err := writeDOT(cmd.OutOrStdout(), dotPath, resp.Graph); err != nil {
					return err
				}
			}

			// DOT on stdout replaces the summary so it can be piped.
			if dotPath != "-" {
				if jsonOut {
					if err := writeJSON(cmd.OutOrStdout(), result); err != nil {
						return err
					}
				} else {
					printSimulateResult(cmd.OutOrStdout(), result)
				}
			}

			title := "Referral network " + shortRunID(resp.Run.RunID)
			if htmlPath != "" {
				if err := writeStaticHTML(cmd, resp.Graph, title, htmlPath, noOpen); err != nil {
					return err
				}
			}
			if view {
				return runGraphServer(ctx, cmd, resp.Graph, title, noOpen)
			}
			return nil
		},
	}

	cmd.Flags().String("personas", "", "Persona profiles file (.json, .jsonl, .yaml)")
	cmd.Flags().String("events", "", "Telemetry events file (.json, .jsonl, .yaml)")
	cmd.Flags().Int("iterations", 0, "Referral rounds (default from config)")
	cmd.Flags().Int64("seed", 0, "Random seed for a reproducible run")
	cmd.Flags().Int("batches", 1, "Split personas into batches run concurrently")
	cmd.Flags().String("policy", "", "Synthetic persona policy: inherit or neutral")
	cmd.Flags().Int("projection-days", 0, "Also project growth for this many days")
	cmd.Flags().String("dot", "", "Write the graph as Graphviz DOT to this file ('-' for stdout)")
	cmd.Flags().String("export", "", "Export the graph: snapshot, sqlite or arrow")
	cmd.Flags().StringP("out", "o", "", "Export file path (default viralsim-<run>.<ext>)")
	cmd.Flags().String("html", "", "Write an HTML view of the graph to this file")
	cmd.Flags().String("metrics-file", "", "Write Prometheus metrics to this textfile")
	cmd.Flags().Bool("view", false, "Serve an interactive view of the graph until Ctrl-C")
	cmd.Flags().Bool("no-open", false, "Don't open a browser for --html or --view")
	cmd.MarkFlagRequired("personas")

	return cmd
}

func printSimulateResult(w io.Writer, r simulateResult) {
	m := r.Metrics
	fmt.Fprintf(w, "Simulation %s\n", r.Run.RunID)
	fmt.Fprintf(w, "  Rounds:          %d\n", r.Run.Rounds)
	fmt.Fprintf(w, "  Users:           %d (%d organic, %d referred)\n", m.TotalUsers, m.OrganicUsers, m.ReferredUsers)
	fmt.Fprintf(w, "  Referrals:       %d\n", m.TotalReferrals)
	fmt.Fprintf(w, "  K-factor:        %.3f\n", m.KFactor)
	fmt.Fprintf(w, "  Depth:           %d\n", m.Depth)
	fmt.Fprintf(w, "  Invitations:     %d sent, %d accepted (%.1f%%)\n",
		r.Run.InvitationsSent, r.Run.InvitationsAccepted, r.Run.ConversionRate()*100)
	fmt.Fprintf(w, "  Adjusted churn:  %.4f/day\n", m.AdjustedChurnRate)

	if len(r.Influencers) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Top referrers:")
		for i, inf := range r.Influencers {
			if i == textInfluencers {
				break
			}
			fmt.Fprintf(w, "  %-20s %d direct, %d total (score %.2f)\n", inf.ID, inf.Referrals, inf.Descendants, inf.Score)
		}
	}

	if p := r.Projection; p != nil {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Projection (%d days): %s, %.0f final users, %.0f peak\n",
			p.Days, p.GrowthType, p.FinalUsers(), p.PeakUserCount())
	}
	if r.Exported != "" {
		fmt.Fprintf(w, "\nExported to %s\n", r.Exported)
	}
}

func writeDOT(stdout io.Writer, path string, g *graph.Graph) error {
	dot := visualization.RenderDOT(g)
	if path == "-" {
		_, err := io.WriteString(stdout, dot)
		return err
	}
	if err := os.WriteFile(path, []byte(dot), 0644); err != nil {
		return fmt.Errorf("write DOT file: %w", err)
	}
	return nil
}

// writeStaticHTML renders the graph to a self-contained HTML file.
func writeStaticHTML(cmd *cobra.Command, g *graph.Graph, title, output string, noOpen bool) error {
	htmlBytes, err := visualization.RenderHTML(g, title)
	if err != nil {
		return fmt.Errorf("render HTML: %w", err)
	}
	if err := os.WriteFile(output, htmlBytes, 0644); err != nil {
		return fmt.Errorf("write HTML file: %w", err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Graph written to %s\n", output)

	if !noOpen {
		abs, _ := filepath.Abs(output)
		if err := visualization.OpenBrowser(abs); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Could not open browser: %v\nOpen %s manually.\n", err, output)
		}
	}
	return nil
}

// runGraphServer serves the graph view and blocks until ctx is cancelled.
func runGraphServer(ctx context.Context, cmd *cobra.Command, g *graph.Graph, title string, noOpen bool) error {
	srv := visualization.NewServer(g, title)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe(ctx) }()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) && srv.Addr() == "" {
		time.Sleep(10 * time.Millisecond)
	}
	addr := srv.Addr()
	if addr == "" {
		return fmt.Errorf("graph server failed to start")
	}

	url := "http://" + addr
	fmt.Fprintf(cmd.ErrOrStderr(), "Graph server running at %s\nPress Ctrl-C to stop.\n", url)
	if !noOpen {
		if err := visualization.OpenBrowser(url); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Could not open browser: %v\nOpen %s manually.\n", err, url)
		}
	}

	if err := <-errCh; err != nil {
		return fmt.Errorf("graph server error: %w", err)
	}
	return nil
}

func shortRunID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
