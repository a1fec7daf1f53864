// Package cli implements the rivals command-line interface using Cobra.
// Everything except serve and reset talks to a running daemon over HTTP.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var daemonAddr string

var rootCmd = &cobra.Command{
	Use:   "rivals",
	Short: "Rivals: daily quests against rivals who never sleep",
	Long: `Rivals tracks your daily tasks, levels and streak while four rivals
keep training in the background. Start the daemon with 'rivals serve',
then use the other commands to play.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&daemonAddr, "addr", "", "Daemon address host:port (default from config)")
}

// Execute runs the root command. Called from main.go.
func Execute(version string) {
	rootCmd.Version = version

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
