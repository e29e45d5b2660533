// Command birthdays sends the birthday template once. It runs as an AWS
// Lambda handler when AWS_LAMBDA_FUNCTION_NAME is set, for example behind an
// EventBridge schedule, and as a one-shot CLI otherwise.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/clinicmail/clinicmail/internal/app"
	"github.com/clinicmail/clinicmail/internal/config"
	"github.com/clinicmail/clinicmail/internal/logger"
	"github.com/clinicmail/clinicmail/internal/model"
	"github.com/clinicmail/clinicmail/internal/scheduler"
	"github.com/spf13/cobra"
)

func main() {
	if os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != "" {
		lambda.Start(handleLambda)
		return
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var date string

var rootCmd = &cobra.Command{
	Use:   "birthdays",
	Short: "Send the birthday message to every patient born on a given day",
	RunE:  runLocal,
}

func init() {
	rootCmd.Flags().StringVar(&date, "date", "", "day to send for, as YYYY-MM-DD in the scheduler timezone (default today)")
}

// handleLambda runs the job for the event time, so a replayed event sends
// for the day it was originally scheduled.
func handleLambda(ctx context.Context, event events.CloudWatchEvent) (*model.DispatchSummary, error) {
	at := event.Time
	if at.IsZero() {
		at = time.Now()
	}
	return run(ctx, at)
}

func runLocal(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	at := time.Now()
	if date != "" {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		loc, err := time.LoadLocation(cfg.Scheduler.Timezone)
		if err != nil {
			return err
		}
		at, err = time.ParseInLocation(model.BirthDateLayout, date, loc)
		if err != nil {
			return fmt.Errorf("invalid --date %q: %w", date, err)
		}
		at = at.Add(12 * time.Hour)
	}

	summary, err := run(ctx, at)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(summary)
}

func run(ctx context.Context, at time.Time) (*model.DispatchSummary, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Format)

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize application")
		return nil, err
	}
	defer a.Close()

	sched, err := scheduler.New(cfg.Scheduler, a.Notifications, log)
	if err != nil {
		return nil, err
	}
	return sched.RunAt(ctx, at)
}
