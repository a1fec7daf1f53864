package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tutu-network/rivals/internal/api"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:     "status",
	Aliases: []string{"st"},
	Short:   "Show your level, streak and rivals",
	RunE:    runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	var v api.StateView
	if err := c.get(cmd.Context(), "/api/state", &v); err != nil {
		return err
	}
	fmt.Println(renderStatus(v))
	return nil
}
