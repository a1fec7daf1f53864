package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tutu-network/rivals/internal/daemon"
)

func init() {
	resetCmd.Flags().BoolVarP(&resetYes, "yes", "y", false, "Confirm deleting all progress")
	rootCmd.AddCommand(resetCmd)
}

var resetYes bool

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete all progress for the configured player",
	Long: `Delete the saved snapshot, baselines and summaries for the configured
player. The daemon must be stopped first; the next 'rivals serve' starts a
fresh game.`,
	RunE: runReset,
}

func runReset(cmd *cobra.Command, args []string) error {
	if !resetYes {
		return errors.New("refusing to reset without --yes")
	}
	cfg, err := daemon.LoadConfig()
	if err != nil {
		return err
	}

	c, err := newClient()
	if err != nil {
		return err
	}
	if c.reachable(cmd.Context()) {
		return fmt.Errorf("a daemon is running at %s; stop it before resetting", c.base)
	}

	store, err := daemon.OpenStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Reset(context.Background(), cfg.Game.Player); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	fmt.Printf("Progress for %q deleted.\n", cfg.Game.Player)
	return nil
}
