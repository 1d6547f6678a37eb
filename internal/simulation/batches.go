package simulation

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/nvandessel/viralsim/internal/graph"
	"github.com/nvandessel/viralsim/internal/models"
	"github.com/nvandessel/viralsim/internal/network"
)

// Batch is an independent set of personas and their telemetry. Persona ids
// must not repeat across batches.
type Batch struct {
	Personas []models.PersonaProfile `json:"personas" yaml:"personas"`
	Events   []models.TelemetryEvent `json:"events" yaml:"events"`
}

// RunBatches simulates each batch on its own graph, concurrently, then
// merges the graphs in batch order. Batch i runs on a private simulator
// with the current config, seed+i when the simulator is seeded, and ids
// prefixed "b<i>-". LastRun afterwards holds the summed statistics.
func (s *Simulator) RunBatches(ctx context.Context, batches []Batch, iterations int) (*graph.Graph, error) {
	cfg := s.Config()
	personaIDs := make(map[string]struct{})
	for _, batch := range batches {
		for _, p := range batch.Personas {
			personaIDs[p.ID] = struct{}{}
		}
	}
	graphs := make([]*graph.Graph, len(batches))
	stats := make([]RunStats, len(batches))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, batch := range batches {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			sim, err := s.batchSimulator(cfg, i, personaIDs)
			if err != nil {
				return err
			}
			out, err := sim.RunSimulation(batch.Personas, batch.Events, iterations)
			if err != nil {
				return fmt.Errorf("batch %d: %w", i, err)
			}
			graphs[i] = out
			stats[i] = sim.LastRun()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := graph.Empty()
	total := RunStats{}
	for i, bg := range graphs {
		var err error
		if merged, err = graph.Merge(merged, bg); err != nil {
			return nil, fmt.Errorf("batch %d: %w", i, err)
		}
		total.add(stats[i])
	}
	if len(stats) > 0 {
		total.RunID = stats[0].RunID
		total.StartedAt = stats[0].StartedAt
	}
	s.setLastRun(total)

	s.logger.Info("batches merged",
		"batches", len(batches),
		"total_users", merged.TotalUsers(),
		"total_referrals", merged.TotalReferrals())
	return merged, nil
}

func (s *Simulator) batchSimulator(cfg network.Config, i int, reserved map[string]struct{}) (*Simulator, error) {
	var src network.RandomSource
	if s.seeded {
		src = network.NewSeededSource(s.seed + int64(i))
	} else {
		src = network.EntropySource()
	}
	prefix := s.ids.Prefix()
	return New(cfg,
		WithRandomSource(src),
		WithIDPrefix(fmt.Sprintf("%sb%d-", prefix, i)),
		WithClock(s.now),
		WithLogger(s.logger.With("batch", i)),
		WithDecisionLogger(s.decisions),
		WithRecorder(s.recorder),
		WithPersonaPolicy(s.policy),
		WithTimeSlice(s.slice),
		withReservedIDs(reserved),
	)
}
