// Package cli defines the ranksentinel command tree.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jonathanavis96/ranksentinel-sub002/internal/app"
	"github.com/jonathanavis96/ranksentinel-sub002/internal/config"
	"github.com/jonathanavis96/ranksentinel-sub002/internal/domain"
	"github.com/jonathanavis96/ranksentinel-sub002/internal/logging"
)

// Version is stamped by the release build.
var Version = "dev"

// Execute runs the command tree with a signal-aware context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return NewRootCmd().ExecuteContext(ctx)
}

// NewRootCmd builds the root command and its subcommands.
func NewRootCmd() *cobra.Command {
	var cfgPath string

	root := &cobra.Command{
		Use:   "ranksentinel",
		Short: "SEO regression monitoring for customer sites",
		Long: `RankSentinel crawls customer sites on a daily and weekly cadence,
diffs each capture against the prior run, classifies regressions by
severity and emails a digest of new findings.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "",
		"path to YAML config (default $RANKSENTINEL_CONFIG)")

	root.AddCommand(
		newRunCmd(&cfgPath),
		newScheduleCmd(&cfgPath),
		newPurgeCmd(&cfgPath),
		newVersionCmd(),
	)
	return root
}

func newRunCmd(cfgPath *string) *cobra.Command {
	var runType string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute one monitoring run and exit",
		Long: `Execute one monitoring run across all active customers and exit.
Intended to be invoked from cron; the exit code is non-zero when any
customer failed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			typ := domain.RunType(runType)
			if !typ.Valid() {
				return fmt.Errorf("unknown run type %q (want daily or weekly)", runType)
			}

			application, err := buildApp(*cfgPath)
			if err != nil {
				return err
			}
			defer application.Close()

			result, err := application.RunOnce(cmd.Context(), typ)
			if err != nil {
				return err
			}
			printResult(cmd, result)
			if result.Failed > 0 {
				return fmt.Errorf("%d of %d customers failed", result.Failed, result.Processed)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&runType, "type", string(domain.RunDaily), "run type: daily or weekly")
	return cmd
}

func newScheduleCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "schedule",
		Short: "Run the daily and weekly jobs on a cron schedule until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := buildApp(*cfgPath)
			if err != nil {
				return err
			}
			defer application.Close()

			return application.RunSchedule(cmd.Context())
		},
	}
}

func newPurgeCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Delete data of customers cancelled past the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := buildApp(*cfgPath)
			if err != nil {
				return err
			}
			defer application.Close()

			purged, err := application.Purge(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "purged %d customers\n", purged)
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "ranksentinel %s\n", Version)
		},
	}
}

func buildApp(cfgPath string) (*app.Application, error) {
	cfg := config.Load(cfgPath)
	logger := logging.New(cfg.Logging.Level)
	return app.New(cfg, logger)
}

func printResult(cmd *cobra.Command, result domain.RunResult) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "run %s (%s): %d processed, %d succeeded, %d failed\n",
		result.RunID, result.RunType, result.Processed, result.Succeeded, result.Failed)
	for _, sev := range []domain.Severity{domain.SeverityCritical, domain.SeverityWarning, domain.SeverityInfo} {
		if n := result.FindingsBySeverity[sev]; n > 0 {
			fmt.Fprintf(out, "  new %s findings: %d\n", sev, n)
		}
	}
	if len(result.FailedCustomerIDs) > 0 {
		fmt.Fprintf(out, "  failed customers: %s\n", strings.Join(result.FailedCustomerIDs, ", "))
	}
}
