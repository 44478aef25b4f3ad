package commands

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/alvesdmateus/image-publisher/internal/trigger"
	"github.com/alvesdmateus/image-publisher/pkg/config"
	"github.com/alvesdmateus/image-publisher/pkg/database"
)

var (
	runReport string
	runBranch string
	runNoPush bool
	runRecord bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the pipeline once for the event in the environment",
	Long: `Reads the triggering event from GITHUB_EVENT_NAME, GITHUB_REF,
GITHUB_REPOSITORY, GITHUB_SHA, GITHUB_ACTOR and GITHUB_TOKEN and runs the
publish pipeline once.

Exits 0 when the run succeeds or the event is skipped, non-zero when a step
fails. The derived IMAGE_REPOSITORY and IMAGE_TAG are appended to $GITHUB_ENV
when it is set.

Nothing is written outside the run workspace unless asked: --report writes a
report file and --record stores the run in the configured ledger.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		applyRunFlags(cfg)

		shutdownTracing := initTracing(ctx, cfg)
		defer shutdownTracing()

		rt, err := buildRuntime(cfg)
		if err != nil {
			return err
		}
		defer rt.Close()

		event := trigger.FromEnvironment(environmentLookup(os.LookupEnv, cfg))
		result, runErr := rt.pipeline.Execute(ctx, event)
		if result == nil {
			return runErr
		}

		if err := exportEnv(os.Getenv(EnvExportFile), result.Env); err != nil {
			log.Error().Err(err).Msg("Failed to export run environment")
		}
		if runReport != "" {
			if err := writeReport(runReport, result); err != nil {
				log.Error().Err(err).Str("path", runReport).Msg("Failed to write run report")
			}
		}
		printSummary(cmd.OutOrStdout(), result)

		return runErr
	},
}

func init() {
	runCmd.Flags().StringVar(&runReport, "report", "", "write a YAML run report to this path")
	runCmd.Flags().StringVar(&runBranch, "branch", "", "override the designated branch")
	runCmd.Flags().BoolVar(&runNoPush, "no-push", false, "build the image without pushing")
	runCmd.Flags().BoolVar(&runRecord, "record", false, "store the run in the configured ledger")
}

// applyRunFlags overrides configuration for a single run. Without --record the
// ledger is disabled so a run leaves no files behind.
func applyRunFlags(c *config.Config) {
	if runBranch != "" {
		c.Pipeline.Branch = runBranch
	}
	if runNoPush {
		c.Publish.Push = false
	}
	if !runRecord {
		c.Database.Driver = database.DriverNone
	}
}
