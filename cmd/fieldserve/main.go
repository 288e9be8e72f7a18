// Package main is the fieldserve server binary: the request workflow API,
// the escalation scheduler and the notification dispatcher in one process.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "fieldserve",
	Short: "Field service request workflow server",
	Long: `fieldserve runs the service request workflow: single-use action
links for technicians, escalation reminders for stalled requests, and
subscription-based notification fan-out.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(sweepCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
