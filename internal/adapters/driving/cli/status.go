package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/aurora-labs/aurora-cli/internal/core/domain"
)

var (
	statusRuns int
	statusJSON bool
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show queue depths and recent stage runs",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().IntVarP(&statusRuns, "runs", "n", 10, "recent run-log entries to show")
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "output as JSON")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, _ []string) error {
	if jobStore == nil {
		return errors.New("job store not configured")
	}

	ctx := context.Background()
	counts, err := jobStore.Counts(ctx)
	if err != nil {
		return fmt.Errorf("counting jobs: %w", err)
	}

	var runs []domain.RunEntry
	if runLogStore != nil && statusRuns > 0 {
		runs, err = runLogStore.Recent(ctx, statusRuns)
		if err != nil {
			return fmt.Errorf("reading run log: %w", err)
		}
	}

	if statusJSON {
		return outputStatusJSON(cmd, counts, runs)
	}
	return outputStatusText(cmd, counts, runs)
}

func outputStatusJSON(cmd *cobra.Command, counts map[domain.Lane]map[domain.JobStatus]int, runs []domain.RunEntry) error {
	payload := map[string]any{
		"queues":      counts,
		"recent_runs": runs,
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling status: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

func outputStatusText(cmd *cobra.Command, counts map[domain.Lane]map[domain.JobStatus]int, runs []domain.RunEntry) error {
	cmd.Println("Queues:")
	if len(counts) == 0 {
		cmd.Println("  (empty)")
	}

	lanes := make([]string, 0, len(counts))
	for lane := range counts {
		lanes = append(lanes, string(lane))
	}
	sort.Strings(lanes)

	for _, lane := range lanes {
		byStatus := counts[domain.Lane(lane)]
		statuses := make([]string, 0, len(byStatus))
		for status := range byStatus {
			statuses = append(statuses, string(status))
		}
		sort.Strings(statuses)

		cmd.Printf("  %s:", lane)
		for _, status := range statuses {
			cmd.Printf(" %s=%d", status, byStatus[domain.JobStatus(status)])
		}
		cmd.Println()
	}

	if len(runs) > 0 {
		cmd.Println()
		cmd.Println("Recent runs:")
		for i := range runs {
			run := &runs[i]
			line := fmt.Sprintf("  %s  %-20s lane=%s", run.CreatedAt.Format("2006-01-02 15:04:05"), run.Component, run.Lane)
			if run.Model != "" {
				line += " model=" + run.Model
			}
			if run.Error != "" {
				line += " error=" + run.Error
			}
			cmd.Println(line)
		}
	}

	return nil
}
