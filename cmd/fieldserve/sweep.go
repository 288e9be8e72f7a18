package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/fieldserve-io/fieldserve/internal/config"
	"github.com/fieldserve-io/fieldserve/internal/database"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run one escalation sweep and exit",
	Long: `sweep runs a single escalation pass against the database and
prints the result. Useful for cron-driven deployments that prefer an
external scheduler over the in-process one.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSweep()
	},
}

func runSweep() error {
	logger := log.New(os.Stdout, "", log.LstdFlags)

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	db, err := database.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return err
	}
	defer db.Close()

	app, err := buildApp(cfg, db, logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	result, err := app.escalation.RunOnce(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("ack_reminders=%d start_reminders=%d flagged=%d errors=%d skipped=%v\n",
		result.AckReminders, result.StartReminders, result.Flagged, result.Errors, result.Skipped)
	return nil
}
