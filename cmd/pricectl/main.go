// Command pricectl runs sweeps, reconciliation and imports from the shell.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"hotel-rate-monitor/internal/app"
	"hotel-rate-monitor/internal/config"
	"hotel-rate-monitor/internal/logging"
	"hotel-rate-monitor/internal/pricing"
	"hotel-rate-monitor/internal/scanner"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "pricectl",
		Short:         "Operate the hotel rate monitor",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "config/monitor_config.yaml", "path to YAML config")

	load := func() (*app.App, error) {
		cfg, err := config.LoadConfig(configPath)
		if err != nil {
			return nil, err
		}
		logging.Init("pricectl", cfg.Logging.Level)
		return app.New(cfg)
	}

	root.AddCommand(
		newSweepCommand(load),
		newReconcileCommand(load),
		newImportCommand(load),
		newNormalizeCommand(),
	)
	return root
}

func newSweepCommand(load func() (*app.App, error)) *cobra.Command {
	var owner string
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Scan every tracked property once",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := load()
			if err != nil {
				return err
			}
			defer a.Close()

			session, err := a.Orchestrator.RunSweep(cmd.Context(), scanner.Scope{OwnerID: owner})
			if err != nil {
				return err
			}
			return printJSON(cmd, session)
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "limit the sweep to one owner")
	return cmd
}

func newReconcileCommand(load func() (*app.App, error)) *cobra.Command {
	var (
		owner  string
		dryRun bool
	)
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Merge duplicate properties that share a provider identifier",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := load()
			if err != nil {
				return err
			}
			defer a.Close()

			run := a.Reconciler.Reconcile
			if dryRun {
				run = a.Reconciler.Plan
			}
			report, err := run(cmd.Context(), owner)
			if err != nil {
				return err
			}
			return printJSON(cmd, report)
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "limit reconciliation to one owner")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report planned merges without writing")
	return cmd
}

func newImportCommand(load func() (*app.App, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.csv>",
		Short: "Create or update tracked properties from CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			a, err := load()
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.Importer.Import(cmd.Context(), f)
			if err != nil {
				return err
			}
			return printJSON(cmd, result)
		},
	}
}

func newNormalizeCommand() *cobra.Command {
	var currency string
	cmd := &cobra.Command{
		Use:   "normalize <raw price>",
		Short: "Parse a raw price string the way a sweep would",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			price, err := pricing.Normalize(args[0], currency)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), price.String())
			return nil
		},
	}
	cmd.Flags().StringVar(&currency, "currency", "USD", "currency assumed when the text names none")
	return cmd
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
