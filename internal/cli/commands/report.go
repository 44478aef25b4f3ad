package commands

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/alvesdmateus/image-publisher/internal/pipeline"
)

// EnvExportFile names the file the hosting runtime reads step outputs from
const EnvExportFile = "GITHUB_ENV"

// writeReport writes the run result as YAML
func writeReport(path string, result *pipeline.Result) error {
	data, err := yaml.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create report directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// exportEnv appends the derived values as KEY=value lines to path, so later
// workflow steps see them. An empty path is a no-op.
func exportEnv(path string, env map[string]string) error {
	if path == "" || len(env) == 0 {
		return nil
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open env file: %w", err)
	}
	defer f.Close()

	if _, err := io.WriteString(f, formatEnv(env)); err != nil {
		return fmt.Errorf("failed to write env file: %w", err)
	}
	return nil
}

func formatEnv(env map[string]string) string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%s\n", k, env[k])
	}
	return b.String()
}

// printSummary writes a short human-readable outcome
func printSummary(w io.Writer, result *pipeline.Result) {
	fmt.Fprintf(w, "Run %s: %s (%s)\n", result.RunID, result.Status, result.Duration().Round(time.Millisecond))
	for _, step := range result.Steps {
		line := fmt.Sprintf("  %-13s %-10s %s", step.Step, step.Status, step.Duration.Round(time.Millisecond))
		if step.Error != "" {
			line += "  " + step.Error
		}
		fmt.Fprintln(w, line)
	}
	if result.Publish != nil {
		for _, pushed := range result.Publish.Pushed {
			fmt.Fprintf(w, "  pushed %s %s\n", pushed.Tag, pushed.Digest)
		}
	}
}
