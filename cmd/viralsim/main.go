package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/nvandessel/viralsim/internal/config"
	"github.com/nvandessel/viralsim/internal/instrument"
	"github.com/nvandessel/viralsim/internal/logging"
	"github.com/nvandessel/viralsim/internal/service"
)

// Set with -ldflags "-X main.version=..." at release time.
var (
	version = "0.1.0-dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "viralsim",
		Short: "Viral referral network growth simulator",
		Long: `viralsim simulates how a product spreads through referrals.

It seeds organic users from persona profiles, decides from telemetry who
refers whom, simulates invitations and their acceptance, and reports the
resulting referral graph, k-factor and growth projection.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON")
	rootCmd.PersistentFlags().String("config", "", "Config file (.yaml or .toml); default ~/.viralsim/config.yaml")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: error, warn, info, debug or trace")

	rootCmd.AddCommand(
		newVersionCmd(),
		newSimulateCmd(),
		newScenarioCmd(),
		newProjectCmd(),
		newSocialProofCmd(),
		newConfigCmd(),
		newServeCmd(),
		newMCPServerCmd(),
	)
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), map[string]string{
					"version": version,
					"commit":  commit,
					"date":    date,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "viralsim version %s (commit: %s, built: %s)\n", version, commit, date)
			return nil
		},
	}
}

// loadConfig loads the --config file, or the default config location, and
// applies --log-level.
func loadConfig(cmd *cobra.Command) (*config.AppConfig, error) {
	path, _ := cmd.Flags().GetString("config")

	var cfg *config.AppConfig
	var err error
	if path != "" {
		cfg, err = config.LoadFromFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Logging.Level = level
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// newService builds the simulation service with logging on stderr and the
// decision trace when the level asks for it. The returned func closes the
// trace.
func newService(cmd *cobra.Command, cfg *config.AppConfig, recorder *instrument.Recorder) (*service.Service, func(), error) {
	logger := logging.NewLogger(cfg.Logging.Level, cmd.ErrOrStderr())
	decisions := logging.NewDecisionLogger(cfg.DecisionDir(), cfg.Logging.Level)

	svc, err := service.New(cfg,
		service.WithLogger(logger),
		service.WithDecisionLogger(decisions),
		service.WithRecorder(recorder),
	)
	if err != nil {
		decisions.Close()
		return nil, nil, err
	}
	return svc, decisions.Close, nil
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigCh := make(chan os.Signal, 1)
	notifySignals(sigCh)

	go func() {
		defer signal.Stop(sigCh)
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
