package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nvandessel/viralsim/internal/service"
)

func newProjectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Project user growth from a k-factor",
		Long: `Forecast daily population from a starting user count and k-factor.

Each day adds users*k*referral_rate new users and loses users*churn_rate.

Examples:
  viralsim project --users 1000 --k-factor 1.2 --days 180
  viralsim project --users 500 --k-factor 0.8 --churn-rate 0.05 --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			users, _ := cmd.Flags().GetFloat64("users")
			kFactor, _ := cmd.Flags().GetFloat64("k-factor")
			days, _ := cmd.Flags().GetInt("days")
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

			req := service.ProjectRequest{StartingUsers: users, KFactor: kFactor, Days: days}
			if cmd.Flags().Changed("referral-rate") {
				v, _ := cmd.Flags().GetFloat64("referral-rate")
				req.ReferralRate = &v
			}
			if cmd.Flags().Changed("churn-rate") {
				v, _ := cmd.Flags().GetFloat64("churn-rate")
				req.ChurnRate = &v
			}

			resp, err := svc.Project(req)
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), resp)
			}

			p := resp.Projection
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Growth projection: %s over %d days\n", p.GrowthType, p.Days)
			fmt.Fprintf(w, "  Starting users:  %.0f\n", p.StartingUsers)
			fmt.Fprintf(w, "  Final users:     %.0f\n", resp.FinalUsers)
			fmt.Fprintf(w, "  Peak users:      %.0f\n", resp.PeakUsers)
			fmt.Fprintf(w, "  Avg daily rate:  %+.3f%%\n", resp.AverageDailyGrowthRate*100)
			return nil
		},
	}

	cmd.Flags().Float64("users", 100, "Starting users")
	cmd.Flags().Float64("k-factor", 1.0, "Viral coefficient")
	cmd.Flags().Int("days", 0, "Forecast horizon (default from config)")
	cmd.Flags().Float64("referral-rate", 0.10, "Share of users referring per day")
	cmd.Flags().Float64("churn-rate", 0.02, "Daily churn rate")

	return cmd
}
