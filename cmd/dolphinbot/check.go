package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"dolphinbot/internal/app"
)

var (
	checkLatest int
	checkSend   bool
	checkQuiet  bool
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the config and fetch the feed once",
	Long: `Load the config, fetch the activity feed once and render a summary of
its latest entries. Nothing is posted unless --send is given.`,
	Args: cobra.NoArgs,
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().IntVarP(&checkLatest, "latest", "n", 10, "Number of feed entries in the sample summary")
	checkCmd.Flags().BoolVar(&checkSend, "send", false, "Post the sample summary to the destination")
	checkCmd.Flags().BoolVarP(&checkQuiet, "quiet", "q", false, "Do not print the rendered payload")
}

func runCheck(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
	defer cancel()

	rep, err := app.Check(ctx, cfgPath, version, app.CheckOptions{Latest: checkLatest, Send: checkSend})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "config ok: %s\n", cfgPath)
	fmt.Fprintf(out, "activity:  %s\n", rep.Activity)
	fmt.Fprintf(out, "feed:      %d entries, updated %s\n", rep.Entries, rep.FeedUpdated.Format(time.RFC3339))
	if rep.Entries == 0 {
		return nil
	}
	fmt.Fprintf(out, "sample:    latest %d\n", rep.Stats.Total)
	for _, g := range rep.Stats.Groups {
		fmt.Fprintf(out, "  %-14s %d\n", g.Category.String(), g.Count)
	}
	if !checkQuiet {
		fmt.Fprintf(out, "\n%s payload (%s):\n%s\n", rep.Payload.Kind, rep.Payload.ContentType, rep.Payload.Body)
	}
	if rep.Sent {
		fmt.Fprintln(out, "\nsummary sent")
	}
	return nil
}
