package cli

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/aurora-labs/aurora-cli/internal/core/domain"
	"github.com/aurora-labs/aurora-cli/internal/core/services"
)

var (
	workerLane  string
	workerDrain bool
)

// drainIdlePolls is how many consecutive empty claims end a --drain run.
const drainIdlePolls = 3

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run a pipeline worker for one lane",
	Long: `Runs the claim-dispatch-complete loop over one lane queue until
interrupted. Several workers may serve the same lane concurrently.

Lanes:
  io          network and filesystem stages
  transcribe  speech-to-text and speaker stages
  oss20b      fast-model stages (chunking, embedding, enrichment, graph)
  nemotron    deep-model stages (document summarisation)`,
	RunE: runWorker,
}

func init() {
	workerCmd.Flags().StringVar(&workerLane, "lane", string(domain.LaneIO), "lane queue to serve")
	workerCmd.Flags().BoolVar(&workerDrain, "drain", false, "exit once the lane is empty")
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, _ []string) error {
	if jobStore == nil || dispatcherFor == nil {
		return errors.New("worker not configured")
	}

	lane := domain.Lane(workerLane)
	switch lane {
	case domain.LaneIO, domain.LaneTranscribe, domain.LaneFastModel, domain.LaneDeepModel:
	default:
		return fmt.Errorf("unknown lane %q", workerLane)
	}

	cfg := services.WorkerConfig{Lane: lane}
	if settings != nil {
		cfg.LeaseSeconds = settings.WorkerLeaseSeconds
		cfg.MaxAttempts = settings.WorkerMaxAttempts
		cfg.IdleSleep = time.Duration(settings.WorkerIdleSleepMS) * time.Millisecond
	}
	if workerDrain {
		cfg.MaxIdlePolls = drainIdlePolls
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if handoffService != nil {
		handoffService.Start(ctx)
		defer handoffService.Stop()
	}

	cmd.Printf("Worker serving lane %s. Press Ctrl+C to stop.\n", lane)

	worker := services.NewWorker(cfg, jobStore, dispatcherFor(lane))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("worker stopped: %w", err)
	}

	cmd.Println("Worker stopped.")
	return nil
}
