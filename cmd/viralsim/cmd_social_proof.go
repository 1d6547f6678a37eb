package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nvandessel/viralsim/internal/service"
)

func newSocialProofCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "social-proof",
		Short: "Show acceptance rate, network value and churn at a network size",
		RunE: func(cmd *cobra.Command, args []string) error {
			size, _ := cmd.Flags().GetInt("network-size")
			connections, _ := cmd.Flags().GetFloat64("connections")
			cohort, _ := cmd.Flags().GetInt("cohort-size")
			target, _ := cmd.Flags().GetFloat64("target-rate")
			jsonOut, _ := cmd.Flags().GetBool("json")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			svc, closeTrace, err := newService(cmd, cfg, nil)
			if err != nil {
				return err
			}
			defer closeTrace()

			resp, err := svc.SocialProof(service.SocialProofRequest{
				NetworkSize: size,
				Connections: connections,
				CohortSize:  cohort,
				TargetRate:  target,
			})
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), resp)
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Network of %d users\n", resp.NetworkSize)
			fmt.Fprintf(w, "  Acceptance rate:  %.4f (base %.4f, x%.3f)\n", resp.AdjustedRate, resp.BaseRate, resp.Multiplier)
			fmt.Fprintf(w, "  Credibility:      x%.3f\n", resp.CredibilityBoost)
			fmt.Fprintf(w, "  Metcalfe value:   %.2f (next user adds %.2f)\n", resp.NetworkValue.MetcalfeValue, resp.MarginalValue)
			fmt.Fprintf(w, "  Odlyzko value:    %.2f\n", resp.NetworkValue.OdlyzkoValue)
			fmt.Fprintf(w, "  Churn rate:       %.4f/day\n", resp.AdjustedChurnRate)
			if resp.CohortSize > 0 {
				fmt.Fprintf(w, "  Conversions:      %d of %d invited\n", resp.EstimatedConversions, resp.CohortSize)
			}
			if t := resp.Target; t != nil {
				if t.Reachable {
					fmt.Fprintf(w, "  Target %.4f:    reached at %.0f users\n", t.Rate, *t.RequiredNetworkSize)
				} else {
					fmt.Fprintf(w, "  Target %.4f:    unreachable with current config\n", t.Rate)
				}
			}
			return nil
		},
	}

	cmd.Flags().Int("network-size", 0, "Current number of users")
	cmd.Flags().Float64("connections", 0, "Average referral connections per user")
	cmd.Flags().Int("cohort-size", 0, "Estimate conversions for this many invitations")
	cmd.Flags().Float64("target-rate", 0, "Network size needed to reach this acceptance rate")
	cmd.MarkFlagRequired("network-size")

	return cmd
}
