package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/mikey/llm-mail-triage/internal/adapters/intake"
	"github.com/mikey/llm-mail-triage/internal/core"
	"github.com/mikey/llm-mail-triage/internal/di"
	"github.com/mikey/llm-mail-triage/internal/factory"
)

func main() {
	flags := di.ParseFlags()

	container, err := di.BuildCLIContainer(flags)
	if err != nil {
		fmt.Printf("Failed to build dependency container: %v\n", err)
		os.Exit(1)
	}

	if err := container.Invoke(run); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func run(
	flags *di.CLIFlags,
	logger *zap.Logger,
	cliIntake *intake.CLIIntake,
	pipeline *factory.Pipeline,
) error {
	defer logger.Sync()
	defer pipeline.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if flags.FeedbackAction != "" {
		return recordFeedback(ctx, flags, pipeline.Feedback)
	}

	var input io.Reader = os.Stdin
	if flags.InputFile != "" {
		f, err := os.Open(flags.InputFile)
		if err != nil {
			return fmt.Errorf("failed to open input file: %w", err)
		}
		defer f.Close()
		input = f
	}

	email, err := cliIntake.ParseMessage(input)
	if err != nil {
		return err
	}

	_, err = cliIntake.ProcessEmail(ctx, email)
	return err
}

// recordFeedback records a user action against a previously seen email so
// the sender statistics learn from it.
func recordFeedback(ctx context.Context, flags *di.CLIFlags, tracker *core.FeedbackTracker) error {
	if flags.SenderEmail == "" {
		return fmt.Errorf("-sender is required for feedback actions")
	}
	if flags.EmailID == "" {
		return fmt.Errorf("-email-id is required for feedback actions")
	}

	action, err := tracker.TrackAction(ctx, core.TrackActionInput{
		EmailID:       flags.EmailID,
		SenderEmail:   flags.SenderEmail,
		AccountID:     flags.AccountID,
		ActionType:    core.ActionType(flags.FeedbackAction),
		ActionDetails: flags.FeedbackFolder,
	})
	if err != nil {
		return fmt.Errorf("failed to record feedback: %w", err)
	}

	fmt.Printf("Recorded %s for %s\n", action.ActionType, flags.SenderEmail)
	fmt.Printf("Inferred importance: %.2f\n", action.InferredImportance)
	fmt.Printf("Inferred category: %s\n", action.InferredCategory)
	return nil
}
