package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/tutu-network/rivals/internal/daemon"
)

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Host to listen on (overrides config)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (overrides config)")
	serveCmd.Flags().BoolVar(&serveMemory, "memory", false, "Keep state in memory only")
	rootCmd.AddCommand(serveCmd)
}

var (
	serveHost   string
	servePort   int
	serveMemory bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the rivals daemon",
	Long:  `Start the game engine and its HTTP API (default 127.0.0.1:11480).`,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := daemon.LoadConfig()
	if err != nil {
		return err
	}

	// Override config from flags
	if serveHost != "" {
		cfg.API.Host = serveHost
	}
	if servePort > 0 {
		cfg.API.Port = servePort
	}
	if serveMemory {
		cfg.Store.Driver = "memory"
	}

	d, err := daemon.NewWithConfig(cfg)
	if err != nil {
		return err
	}
	d.Server.SetVersion(rootCmd.Version)
	return d.Serve(context.Background())
}
