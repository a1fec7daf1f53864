package cli

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tutu-network/rivals/internal/domain"
)

func init() {
	summaryCmd.Flags().BoolVar(&summaryPeek, "peek", false, "Show the summary without acknowledging it")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 7, "Number of days to show")
	summaryCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(summaryCmd)
}

var (
	summaryPeek  bool
	historyLimit int
)

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Show and acknowledge yesterday's summary",
	Long: `Show the pending daily summary and acknowledge it. Each summary is
shown once; use --peek to look without acknowledging.`,
	RunE: runSummary,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List past daily summaries",
	RunE:  runHistory,
}

func runSummary(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	var sum domain.DailySummary
	err = c.get(cmd.Context(), "/api/summary", &sum)
	var ae *apiError
	if errors.As(err, &ae) && ae.Status == http.StatusNotFound {
		fmt.Println("No summary waiting. Check back tomorrow.")
		return nil
	}
	if err != nil {
		return err
	}

	fmt.Println(renderSummary(sum))
	if summaryPeek {
		return nil
	}
	return c.post(cmd.Context(), "/api/summary/"+sum.Date.String()+"/ack", nil, nil)
}

func runHistory(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	var resp struct {
		Summaries []domain.DailySummary `json:"summaries"`
	}
	if err := c.get(cmd.Context(), fmt.Sprintf("/api/summary/history?limit=%d", historyLimit), &resp); err != nil {
		return err
	}
	if len(resp.Summaries) == 0 {
		fmt.Println("No days closed yet.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DATE\tOUTCOME\tYOU\tRIVALS\tSTREAK")
	for _, s := range resp.Summaries {
		fmt.Fprintf(w, "%s\t%s\t%.0f\t%.0f\t%d\n", s.Date, s.Outcome, s.PlayerXPGained, s.RivalsXPGained, s.Streak)
	}
	return w.Flush()
}
