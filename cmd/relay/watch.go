package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/groblegark/relay/internal/events"
	"github.com/groblegark/relay/internal/model"
	"github.com/spf13/cobra"
)

var runsWatchCmd = &cobra.Command{
	Use:   "watch <run-id>",
	Short: "Watch a run until it finishes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		runID := args[0]
		interval, _ := cmd.Flags().GetDuration("interval")

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		seen := make(map[string]model.StageOutcome)

		// Initial query.
		done, err := queryAndPrintRun(ctx, runID, seen)
		if err != nil || done {
			return err
		}

		// Choose event-driven or polling mode.
		natsURL := os.Getenv("RELAY_NATS_URL")
		if natsURL == "" {
			natsURL = activeRemoteNATSURL()
		}
		if natsURL != "" {
			return watchNATS(ctx, natsURL, runID, seen)
		}
		return watchPoll(ctx, interval, runID, seen)
	},
}

// watchNATS re-queries the run when run or stage events arrive, with debounce.
func watchNATS(ctx context.Context, natsURL, runID string, seen map[string]model.StageOutcome) error {
	sub, err := events.NewNATSSubscriber(natsURL)
	if err != nil {
		return fmt.Errorf("connecting to NATS: %w", err)
	}
	defer sub.Close()

	stream, err := sub.Subscribe("relay.>")
	if err != nil {
		return fmt.Errorf("subscribing to events: %w", err)
	}
	defer stream.Close()

	debounce := time.NewTimer(0)
	debounce.Stop()
	// Drain the timer channel in case it fired between NewTimer and Stop.
	select {
	case <-debounce.C:
	default:
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-stream.C:
			if !ok {
				return nil
			}
			debounce.Reset(200 * time.Millisecond)
		case <-sub.Reconnects():
			// Anything published while disconnected is gone; re-query now.
			debounce.Reset(0)
		case <-debounce.C:
			done, err := queryAndPrintRun(ctx, runID, seen)
			if err != nil || done {
				return err
			}
		}
	}
}

// watchPoll polls the run at the given interval.
func watchPoll(ctx context.Context, interval time.Duration, runID string, seen map[string]model.StageOutcome) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(interval):
		}
		done, err := queryAndPrintRun(ctx, runID, seen)
		if err != nil || done {
			return err
		}
	}
}

// queryAndPrintRun fetches the run, prints stage transitions since the last
// query, and reports whether the run has reached a terminal status.
func queryAndPrintRun(ctx context.Context, runID string, seen map[string]model.StageOutcome) (bool, error) {
	run, err := relayClient.GetRun(ctx, runID)
	if err != nil {
		if ctx.Err() != nil {
			return true, nil
		}
		return false, err
	}

	for _, sr := range run.Stages {
		if prev, ok := seen[sr.Name]; ok && prev == sr.Outcome {
			continue
		}
		seen[sr.Name] = sr.Outcome
		fmt.Printf("%s  %s: %s\n", time.Now().Format("15:04:05"), sr.Name, renderOutcome(sr.Outcome))
	}

	if run.Status.Terminal() {
		fmt.Printf("run %s %s\n", run.ID, renderStatus(run.Status))
		return true, nil
	}
	return false, nil
}

func init() {
	runsWatchCmd.Flags().Duration("interval", 2*time.Second, "polling interval when NATS is unavailable")
}
