package cmd

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/tickfetch/tickfetch/packages/archive"
)

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Inspect archived exchanges",
}

var archiveLsCmd = &cobra.Command{
	Use:   "ls <db>",
	Short: "List archived exchanges, newest first",
	Args:  cobra.ExactArgs(1),
	RunE:  archiveLsCommand,
}

var archiveShowCmd = &cobra.Command{
	Use:   "show <db> <id>",
	Short: "Print one archived exchange, response body included",
	Args:  cobra.ExactArgs(2),
	RunE:  archiveShowCommand,
}

var archiveLimitFlag int

func init() {
	archiveLsCmd.Flags().IntVarP(&archiveLimitFlag, "limit", "n", 50, "Maximum number of exchanges to list")
	archiveCmd.AddCommand(archiveLsCmd)
	archiveCmd.AddCommand(archiveShowCmd)
}

func archiveLsCommand(cmd *cobra.Command, args []string) error {
	store, err := archive.Open(args[0])
	if err != nil {
		return err
	}
	defer store.Close()

	exchanges, err := store.List(archiveLimitFlag)
	if err != nil {
		return err
	}
	if len(exchanges) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "archive is empty")
		return nil
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "%-6s %-20s %-6s %-6s %-9s %s\n", "ID", "TIME", "METHOD", "STATUS", "ELAPSED", "URL")
	for _, ex := range exchanges {
		status := strconv.Itoa(ex.Status)
		if ex.Status == 0 {
			status = "ERR"
		}
		fmt.Fprintf(w, "%-6d %-20s %-6s %-6s %-9s %s\n",
			ex.ID,
			ex.Timestamp.Local().Format("2006-01-02 15:04:05"),
			ex.Method,
			status,
			ex.Elapsed.Round(time.Millisecond),
			ex.URL)
	}
	return nil
}

func archiveShowCommand(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid exchange id %q", args[1])
	}

	store, err := archive.Open(args[0])
	if err != nil {
		return err
	}
	defer store.Close()

	ex, err := store.Get(id)
	if err != nil {
		return fmt.Errorf("exchange %d: %w", id, err)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "%s %s\n", ex.Method, ex.URL)
	fmt.Fprintf(w, "time:     %s\n", ex.Timestamp.Local().Format(time.RFC3339))
	fmt.Fprintf(w, "status:   %d\n", ex.Status)
	fmt.Fprintf(w, "elapsed:  %s (attempt %d)\n", ex.Elapsed.Round(time.Millisecond), ex.Attempts)
	if ex.Error != "" {
		fmt.Fprintf(w, "error:    %s\n", ex.Error)
	}
	for _, h := range ex.Headers {
		fmt.Fprintf(w, "%s: %s\n", h.Name, h.Value)
	}
	if len(ex.ResponseBody) > 0 {
		fmt.Fprintf(w, "\n%s\n", ex.ResponseBody)
	}
	return nil
}
