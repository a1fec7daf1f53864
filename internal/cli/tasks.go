package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tutu-network/rivals/internal/api"
	"github.com/tutu-network/rivals/internal/app/arbiter"
	"github.com/tutu-network/rivals/internal/domain"
)

func init() {
	addCmd.Flags().StringVarP(&addDifficulty, "difficulty", "d", "Easy", "Easy, Medium or Hard")
	addCmd.Flags().IntVar(&addDuration, "duration", 0, "Minimum seconds between start and completion (0 = not time-locked)")
	rootCmd.AddCommand(tasksCmd, startCmd, completeCmd, addCmd)
}

var (
	addDifficulty string
	addDuration   int
)

var tasksCmd = &cobra.Command{
	Use:     "tasks",
	Aliases: []string{"ls"},
	Short:   "List today's tasks",
	RunE:    runTasks,
}

var startCmd = &cobra.Command{
	Use:   "start TASK_ID",
	Short: "Start the timer on a time-locked task",
	Args:  cobra.ExactArgs(1),
	RunE:  runStart,
}

var completeCmd = &cobra.Command{
	Use:     "complete TASK_ID",
	Aliases: []string{"done"},
	Short:   "Complete a task and collect its XP",
	Args:    cobra.ExactArgs(1),
	RunE:    runComplete,
}

var addCmd = &cobra.Command{
	Use:   "add NAME",
	Short: "Add a custom task for today",
	Args:  cobra.ExactArgs(1),
	RunE:  runAdd,
}

func runTasks(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	var v api.StateView
	if err := c.get(cmd.Context(), "/api/state", &v); err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tDIFFICULTY\tXP\tSTATUS")
	for _, t := range v.Tasks {
		fmt.Fprintf(w, "%s\t%s\t%s\t%.0f\t%s\n", t.ID, t.Name, t.Difficulty, t.Difficulty.BaseXP()*v.Multiplier, taskStatus(t))
	}
	return w.Flush()
}

func taskStatus(t domain.Task) string {
	switch {
	case t.Completed:
		return "done"
	case t.StartTime != nil:
		return "started " + t.StartTime.Local().Format("15:04:05")
	case t.TimeLocked:
		return fmt.Sprintf("locked %ds", t.Duration)
	}
	return "open"
}

func runStart(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	var t domain.Task
	if err := c.post(cmd.Context(), "/api/tasks/"+args[0]+"/start", nil, &t); err != nil {
		return err
	}
	fmt.Printf("Started %q. Come back in %ds.\n", t.Name, t.Duration)
	return nil
}

func runComplete(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	var resp struct {
		Verdict arbiter.Verdict `json:"verdict"`
		Player  domain.Player   `json:"player"`
	}
	if err := c.post(cmd.Context(), "/api/tasks/"+args[0]+"/complete", nil, &resp); err != nil {
		return err
	}
	fmt.Println(goodStyle.Render(fmt.Sprintf("+%.0f XP", resp.Verdict.AwardedXP)) +
		fmt.Sprintf("  %s is now level %d (%.0f XP)", resp.Player.Name, resp.Player.Level, resp.Player.XP))
	if resp.Verdict.LeveledUp {
		fmt.Println(accent.Render("Level up!"))
	}
	return nil
}

func runAdd(cmd *cobra.Command, args []string) error {
	d, err := domain.ParseDifficulty(addDifficulty)
	if err != nil {
		return err
	}
	c, err := newClient()
	if err != nil {
		return err
	}
	req := map[string]any{"name": args[0], "difficulty": string(d), "duration": addDuration}
	var t domain.Task
	if err := c.post(cmd.Context(), "/api/tasks", req, &t); err != nil {
		return err
	}
	fmt.Printf("Added %s (%s)\n", t.Name, t.ID)
	return nil
}
