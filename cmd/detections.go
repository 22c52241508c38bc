package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/sauron/internal/detectlog"
)

var detectionsCmd = &cobra.Command{
	Use:   "detections",
	Short: "List recorded target detections",
	Long:  `Print the detection log, newest entries last.`,
	RunE:  runDetections,
}

func init() {
	rootCmd.AddCommand(detectionsCmd)

	detectionsCmd.Flags().Int("limit", 0, "Show only the last N detections (0 = all)")
	detectionsCmd.Flags().String("log", "", "Detection log path (defaults to SAURON_DETECTION_LOG)")
}

func runDetections(cmd *cobra.Command, args []string) error {
	path := mustGetString(cmd, "log")
	if path == "" {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		path = cfg.DetectionLog
	}

	events, err := detectlog.ReadAll(path)
	if err != nil {
		return err
	}
	if limit := mustGetInt(cmd, "limit"); limit > 0 && len(events) > limit {
		events = events[len(events)-limit:]
	}
	if len(events) == 0 {
		fmt.Println("No detections recorded.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tSOURCE\tLABEL\tEVIDENCE")
	for _, ev := range events {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			ev.Timestamp.Format(detectlog.TimestampLayout), ev.SourceID, shortLabel(ev.Label, 32), ev.EvidencePath)
	}
	return w.Flush()
}

// shortLabel truncates label to n runes.
func shortLabel(label string, n int) string {
	r := []rune(label)
	if len(r) <= n {
		return label
	}
	return string(r[:n-3]) + "..."
}
