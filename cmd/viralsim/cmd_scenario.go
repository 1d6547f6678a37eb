package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nvandessel/viralsim/internal/logging"
	"github.com/nvandessel/viralsim/internal/simulation"
)

func newScenarioCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scenario <file.yaml>...",
		Short: "Run scenario files and check their metric expectations",
		Long: `Run each YAML scenario with its own seed, config and personas, then
evaluate its invariants (e.g. "k_factor >= 0.2") against the result.

The command fails when any invariant does not hold.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			level, _ := cmd.Flags().GetString("log-level")
			logger := logging.NewLogger(level, cmd.ErrOrStderr())

			var results []*simulation.ScenarioResult
			failed := 0
			for _, path := range args {
				sc, err := simulation.LoadScenario(path)
				if err != nil {
					return err
				}
				res, err := simulation.RunScenario(cmd.Context(), sc, simulation.WithLogger(logger))
				if err != nil {
					return err
				}
				results = append(results, res)
				if !res.Passed() {
					failed++
				}

				if jsonOut {
					continue
				}
				status := "PASS"
				if !res.Passed() {
					status = "FAIL"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %s (%d users, k-factor %.3f)\n",
					status, res.Name, res.Metrics.TotalUsers, res.Metrics.KFactor)
				for _, ir := range res.Invariants {
					mark := "ok"
					if !ir.Passed {
						mark = "FAILED"
					}
					fmt.Fprintf(cmd.OutOrStdout(), "      %-32s actual %-10.4g %s\n", ir.Invariant, ir.Actual, mark)
				}
			}

			if jsonOut {
				if err := writeJSON(cmd.OutOrStdout(), results); err != nil {
					return err
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d scenarios failed", failed, len(results))
			}
			return nil
		},
	}
	return cmd
}
