package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aurora-labs/aurora-cli/internal/core/domain"
)

var (
	askLimit    int
	askJSON     bool
	askUser     string
	askProject  string
	askSession  string
	askLongTerm bool
	askTopics   []string
	askEntities []string
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer a question over the ingested corpus",
	Long: `Runs the retrieval loop over indexed segments, memories, and the
knowledge graph, then synthesises an answer with citations. Scope flags
restrict which memories are visible.`,
	Args: cobra.ExactArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().IntVarP(&askLimit, "limit", "n", 8, "maximum evidence items to retrieve")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "output the answer as JSON")
	askCmd.Flags().StringVar(&askUser, "user", "", "user scope for memory recall")
	askCmd.Flags().StringVar(&askProject, "project", "", "project scope for memory recall")
	askCmd.Flags().StringVar(&askSession, "session", "", "session scope for memory recall")
	askCmd.Flags().BoolVar(&askLongTerm, "long-term", false, "also query the remote long-term memory store")
	askCmd.Flags().StringSliceVar(&askTopics, "topics", nil, "only evidence matching one of these topics")
	askCmd.Flags().StringSliceVar(&askEntities, "entities", nil, "only evidence mentioning one of these entities")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	if asker == nil {
		return errors.New("retrieval service not configured")
	}

	opts := domain.RetrieveOptions{
		Limit:           askLimit,
		Scope:           domain.Scope{UserID: askUser, ProjectID: askProject, SessionID: askSession},
		IncludeLongTerm: askLongTerm,
		Topics:          askTopics,
		Entities:        askEntities,
	}

	answer, err := asker.Ask(context.Background(), args[0], opts)
	if err != nil {
		return fmt.Errorf("answering question: %w", err)
	}

	if askJSON {
		data, err := json.MarshalIndent(answer, "", "  ")
		if err != nil {
			return fmt.Errorf("marshalling answer: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	cmd.Println(answer.Text)
	if answer.Fallback {
		cmd.Println()
		cmd.Println("(model unavailable; answer assembled from top evidence)")
	}
	if len(answer.Citations) > 0 {
		cmd.Println()
		cmd.Println("Sources:")
		for i, citation := range answer.Citations {
			if citation.SegmentID != "" {
				cmd.Printf("  [%d] %s (%s)\n", i+1, citation.DocID, citation.SegmentID)
			} else {
				cmd.Printf("  [%d] %s\n", i+1, citation.DocID)
			}
		}
	}
	return nil
}
