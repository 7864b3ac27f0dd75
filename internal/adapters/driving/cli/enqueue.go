package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	enqueueTags         []string
	enqueueContext      string
	enqueueSpeaker      string
	enqueueOrganization string
	enqueueEventDate    string
)

var enqueueURLCmd = &cobra.Command{
	Use:   "enqueue-url [url]",
	Short: "Queue a web page for ingestion",
	Long: `Fetches the page once to content-address it, stores the raw HTML, and
queues the first pipeline stage. Re-enqueueing identical content is a no-op.`,
	Args: cobra.ExactArgs(1),
	RunE: runEnqueueURL,
}

var enqueueDocCmd = &cobra.Command{
	Use:   "enqueue-doc [path]",
	Short: "Queue a local document or image for ingestion",
	Args:  cobra.ExactArgs(1),
	RunE:  runEnqueueDoc,
}

var enqueueYouTubeCmd = &cobra.Command{
	Use:   "enqueue-youtube [url]",
	Short: "Queue a video for transcription",
	Args:  cobra.ExactArgs(1),
	RunE:  runEnqueueYouTube,
}

func init() {
	for _, cmd := range []*cobra.Command{enqueueURLCmd, enqueueDocCmd, enqueueYouTubeCmd} {
		cmd.Flags().StringSliceVar(&enqueueTags, "tags", nil, "tags attached to the source")
		cmd.Flags().StringVar(&enqueueContext, "context", "", "free-form context note")
		cmd.Flags().StringVar(&enqueueSpeaker, "speaker", "", "known speaker name")
		cmd.Flags().StringVar(&enqueueOrganization, "organization", "", "organization the source belongs to")
		cmd.Flags().StringVar(&enqueueEventDate, "event-date", "", "event date (YYYY-MM-DD)")
		rootCmd.AddCommand(cmd)
	}
}

func runEnqueueURL(cmd *cobra.Command, args []string) error {
	if ingestor == nil {
		return errors.New("ingest service not configured")
	}

	sourceID, sourceVersion, err := ingestor.IngestURL(context.Background(), args[0], enqueueAnnotations())
	if err != nil {
		return fmt.Errorf("enqueueing url: %w", err)
	}

	cmd.Printf("Queued %s@%s\n", sourceID, sourceVersion)
	return nil
}

func runEnqueueDoc(cmd *cobra.Command, args []string) error {
	if ingestor == nil {
		return errors.New("ingest service not configured")
	}

	sourceID, sourceVersion, err := ingestor.IngestDoc(context.Background(), args[0], enqueueAnnotations())
	if err != nil {
		return fmt.Errorf("enqueueing document: %w", err)
	}

	cmd.Printf("Queued %s@%s\n", sourceID, sourceVersion)
	return nil
}

func runEnqueueYouTube(cmd *cobra.Command, args []string) error {
	if ingestor == nil {
		return errors.New("ingest service not configured")
	}

	sourceID, sourceVersion, err := ingestor.IngestYouTube(context.Background(), args[0], enqueueAnnotations())
	if err != nil {
		return fmt.Errorf("enqueueing video: %w", err)
	}

	cmd.Printf("Queued %s@%s\n", sourceID, sourceVersion)
	return nil
}

// enqueueAnnotations collects the non-empty annotation flags.
func enqueueAnnotations() map[string]any {
	annotations := map[string]any{}
	if len(enqueueTags) > 0 {
		tags := make([]any, len(enqueueTags))
		for i, tag := range enqueueTags {
			tags[i] = tag
		}
		annotations["tags"] = tags
	}
	if enqueueContext != "" {
		annotations["context"] = enqueueContext
	}
	if enqueueSpeaker != "" {
		annotations["speaker"] = enqueueSpeaker
	}
	if enqueueOrganization != "" {
		annotations["organization"] = enqueueOrganization
	}
	if enqueueEventDate != "" {
		annotations["event_date"] = enqueueEventDate
	}
	if len(annotations) == 0 {
		return nil
	}
	return annotations
}
