package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tutu-network/rivals/internal/api"
)

func init() {
	notificationsCmd.Flags().BoolVar(&notifyReadAll, "read", false, "Mark all notifications read")
	notificationsCmd.Flags().BoolVarP(&notifyUnread, "unread", "u", false, "Only show unread notifications")
	rootCmd.AddCommand(notificationsCmd)
}

var (
	notifyReadAll bool
	notifyUnread  bool
)

var notificationsCmd = &cobra.Command{
	Use:     "notifications [ID]",
	Aliases: []string{"inbox"},
	Short:   "List notifications, or mark one read",
	Args:    cobra.MaximumNArgs(1),
	RunE:    runNotifications,
}

func runNotifications(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}

	if len(args) == 1 || notifyReadAll {
		req := map[string]string{}
		if len(args) == 1 {
			req["id"] = args[0]
		}
		var resp struct {
			Marked int `json:"marked"`
		}
		if err := c.post(cmd.Context(), "/api/notifications/read", req, &resp); err != nil {
			return err
		}
		fmt.Printf("Marked %d notification(s) read.\n", resp.Marked)
		return nil
	}

	var v api.StateView
	if err := c.get(cmd.Context(), "/api/state", &v); err != nil {
		return err
	}
	shown := 0
	// Newest first.
	for i := len(v.Notifications) - 1; i >= 0; i-- {
		n := v.Notifications[i]
		if notifyUnread && n.Read {
			continue
		}
		marker := "  "
		if !n.Read {
			marker = accent.Render("● ")
		}
		fmt.Printf("%s%s  %s  %s\n", marker, mutedStyle.Render(n.CreatedAt.Local().Format("Jan 02 15:04")), n.Message, mutedStyle.Render(n.ID))
		shown++
	}
	if shown == 0 {
		fmt.Println("Nothing new.")
	}
	return nil
}
