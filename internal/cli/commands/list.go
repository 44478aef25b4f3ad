package commands

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/alvesdmateus/image-publisher/internal/pipeline"
	"github.com/alvesdmateus/image-publisher/internal/state"
	"github.com/alvesdmateus/image-publisher/pkg/database"
)

var (
	listRepository string
	listStatus     string
	listLimit      int
	listOutput     string
)

var listCmd = &cobra.Command{
	Use:   "list [run-id]",
	Short: "List recorded runs, or show one run with its steps",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, runs, err := openLedger(cfg)
		if err != nil {
			return err
		}
		if db == nil {
			return errors.New("run ledger is disabled (database.driver is none)")
		}
		defer database.Close(db)

		out := cmd.OutOrStdout()

		if len(args) == 1 {
			run, err := runs.GetRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if listOutput == "yaml" {
				return writeYAML(out, runView(run, true))
			}
			printRun(out, run)
			return nil
		}

		list, err := runs.ListRuns(cmd.Context(), state.ListFilter{
			Repository: listRepository,
			Status:     strings.ToUpper(listStatus),
			Limit:      listLimit,
		})
		if err != nil {
			return err
		}

		if listOutput == "yaml" {
			views := make([]map[string]interface{}, 0, len(list))
			for i := range list {
				views = append(views, runView(&list[i], false))
			}
			return writeYAML(out, views)
		}
		printRunTable(out, list)
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <run-id>",
	Short: "Delete a run and its steps from the ledger",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, runs, err := openLedger(cfg)
		if err != nil {
			return err
		}
		if db == nil {
			return errors.New("run ledger is disabled (database.driver is none)")
		}
		defer database.Close(db)

		if err := runs.DeleteRun(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted run %s\n", args[0])
		return nil
	},
}

func init() {
	listCmd.Flags().StringVarP(&listRepository, "repository", "r", "", "only runs of this repository (owner/name)")
	listCmd.Flags().StringVarP(&listStatus, "status", "s", "", "only runs with this status")
	listCmd.Flags().IntVarP(&listLimit, "limit", "n", 20, "maximum number of runs")
	listCmd.Flags().StringVarP(&listOutput, "output", "o", "table", "output format: table or yaml")
}

func statusColor(status string) string {
	switch pipeline.Status(status) {
	case pipeline.StatusSucceeded:
		return color.GreenString(status)
	case pipeline.StatusFailed:
		return color.RedString(status)
	case pipeline.StatusRunning:
		return color.YellowString(status)
	default:
		return status
	}
}

func printRunTable(w io.Writer, runs []state.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tREPOSITORY\tSHA\tSTATUS\tSTARTED\tDURATION")
	for _, run := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			run.ID,
			run.Repository,
			shortSHA(run.SHA),
			statusColor(run.Status),
			run.StartedAt.Local().Format(time.DateTime),
			run.Duration().Round(time.Millisecond),
		)
	}
	tw.Flush()
}

func printRun(w io.Writer, run *state.Run) {
	fmt.Fprintf(w, "Run:        %s\n", run.ID)
	fmt.Fprintf(w, "Repository: %s\n", run.Repository)
	fmt.Fprintf(w, "Ref:        %s\n", run.Ref)
	fmt.Fprintf(w, "Commit:     %s\n", run.SHA)
	fmt.Fprintf(w, "Actor:      %s\n", run.Actor)
	fmt.Fprintf(w, "Status:     %s\n", statusColor(run.Status))
	if run.Error != "" {
		fmt.Fprintf(w, "Error:      %s\n", run.Error)
	}
	for _, tag := range run.Tags {
		fmt.Fprintf(w, "Tag:        %s\n", tag)
	}
	if run.Digest != "" {
		fmt.Fprintf(w, "Digest:     %s\n", run.Digest)
	}

	if len(run.Steps) == 0 {
		return
	}
	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STEP\tSTATUS\tDURATION\tERROR")
	for _, step := range run.Steps {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			step.Step,
			statusColor(step.Status),
			(time.Duration(step.DurationMS) * time.Millisecond).String(),
			step.Error,
		)
	}
	tw.Flush()
}

// runView is the serialized shape of a ledger record
func runView(run *state.Run, withSteps bool) map[string]interface{} {
	view := map[string]interface{}{
		"id":         run.ID,
		"repository": run.Repository,
		"ref":        run.Ref,
		"sha":        run.SHA,
		"actor":      run.Actor,
		"status":     run.Status,
		"started_at": run.StartedAt,
	}
	if run.FinishedAt != nil {
		view["finished_at"] = *run.FinishedAt
	}
	if run.ImageRepository != "" {
		view["image_repository"] = run.ImageRepository
		view["image_tag"] = run.ImageTag
	}
	if len(run.Tags) > 0 {
		view["tags"] = run.Tags
	}
	if run.Digest != "" {
		view["digest"] = run.Digest
	}
	if run.Error != "" {
		view["error"] = run.Error
	}
	if withSteps {
		steps := make([]map[string]interface{}, 0, len(run.Steps))
		for _, step := range run.Steps {
			s := map[string]interface{}{
				"step":        step.Step,
				"status":      step.Status,
				"duration_ms": step.DurationMS,
			}
			if step.Error != "" {
				s["error"] = step.Error
			}
			steps = append(steps, s)
		}
		view["steps"] = steps
	}
	return view
}

func writeYAML(w io.Writer, v interface{}) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return enc.Close()
}

func shortSHA(sha string) string {
	if len(sha) > 12 {
		return sha[:12]
	}
	return sha
}
