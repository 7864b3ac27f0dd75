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
	memoryUser    string
	memoryProject string
	memorySession string
	memoryJSON    bool
)

var memoryStatsCmd = &cobra.Command{
	Use:   "memory-stats",
	Short: "Show memory counts by type and kind",
	RunE:  runMemoryStats,
}

var memoryMaintainCmd = &cobra.Command{
	Use:   "memory-maintain",
	Short: "Delete expired memories and stale feedback",
	RunE:  runMemoryMaintain,
}

func init() {
	for _, cmd := range []*cobra.Command{memoryStatsCmd, memoryMaintainCmd} {
		cmd.Flags().StringVar(&memoryUser, "user", "", "user scope")
		cmd.Flags().StringVar(&memoryProject, "project", "", "project scope")
		cmd.Flags().StringVar(&memorySession, "session", "", "session scope")
		rootCmd.AddCommand(cmd)
	}
	memoryStatsCmd.Flags().BoolVar(&memoryJSON, "json", false, "output as JSON")
}

func memoryScope() domain.Scope {
	return domain.Scope{UserID: memoryUser, ProjectID: memoryProject, SessionID: memorySession}
}

func runMemoryStats(cmd *cobra.Command, _ []string) error {
	if memoryAdmin == nil {
		return errors.New("memory service not configured")
	}

	stats, err := memoryAdmin.Stats(context.Background(), memoryScope())
	if err != nil {
		return fmt.Errorf("collecting memory stats: %w", err)
	}

	if memoryJSON {
		data, err := json.MarshalIndent(stats, "", "  ")
		if err != nil {
			return fmt.Errorf("marshalling stats: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	cmd.Printf("Total:    %d\n", stats.Total)
	cmd.Printf("Pinned:   %d\n", stats.Pinned)
	cmd.Printf("Expired:  %d\n", stats.Expired)
	cmd.Printf("Feedback: %d\n", stats.Feedback)

	if len(stats.ByType) > 0 {
		cmd.Println()
		cmd.Println("By type:")
		for _, key := range sortedKeys(stats.ByType) {
			cmd.Printf("  %-12s %d\n", key, stats.ByType[domain.MemoryType(key)])
		}
	}
	if len(stats.ByKind) > 0 {
		cmd.Println()
		cmd.Println("By kind:")
		for _, key := range sortedKeys(stats.ByKind) {
			cmd.Printf("  %-12s %d\n", key, stats.ByKind[domain.MemoryKind(key)])
		}
	}
	return nil
}

func runMemoryMaintain(cmd *cobra.Command, _ []string) error {
	if memoryAdmin == nil {
		return errors.New("memory service not configured")
	}

	report, err := memoryAdmin.Maintain(context.Background(), memoryScope())
	if err != nil {
		return fmt.Errorf("maintaining memory: %w", err)
	}

	cmd.Printf("Scanned %d rows: deleted %d expired, %d stale feedback, %d excess feedback.\n",
		report.Scanned, report.DeletedExpired, report.DeletedStale, report.DeletedExcess)
	return nil
}

func sortedKeys[K ~string](m map[K]int) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, string(key))
	}
	sort.Strings(keys)
	return keys
}
