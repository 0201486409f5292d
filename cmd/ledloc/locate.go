package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/sigreer/ledloc/internal/sched"
)

var onCmd = &cobra.Command{
	Use:   "on [identifier]",
	Short: "Turn a drive's locate LED on",
	Long: `Turn the locate LED on for one drive, or for every drive with --all.

The identifier is a device path (/dev/sdx) or a serial number (matched
case-insensitively). A device path that resolves to no SAS drive gets the
activity-blink fallback instead of a firmware LED.

Examples:
  ledloc on /dev/sdf
  ledloc on ZR50MFBH
  ledloc on --all`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runLocate(cmd, args, true)
	},
}

var offCmd = &cobra.Command{
	Use:   "off [identifier]",
	Short: "Turn a drive's locate LED off",
	Long: `Turn the locate LED off for one drive, or for every drive with --all.

With --all, every registered blink job is stopped as well, including jobs
started by earlier invocations.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runLocate(cmd, args, false)
	},
}

func init() {
	for _, cmd := range []*cobra.Command{onCmd, offCmd} {
		cmd.Flags().Bool("all", false, "Apply to every known drive")
		cmd.Flags().Bool("json", false, "Output results as JSON")
	}
}

func runLocate(cmd *cobra.Command, args []string, on bool) {
	all, _ := cmd.Flags().GetBool("all")
	jsonOut, _ := cmd.Flags().GetBool("json")

	if all == (len(args) == 1) {
		fatal(fmt.Errorf("provide exactly one identifier, or --all"))
	}

	eng, err := newEngine()
	if err != nil {
		fatal(err)
	}
	defer eng.close()
	eng.cleanupOnSignal()

	ctx := context.Background()

	if !all {
		result, err := eng.sched.LocateOne(ctx, args[0], on)
		if err != nil {
			fatal(err)
		}
		if jsonOut {
			outputJSON(result)
		} else {
			printResult(*result)
		}
		return
	}

	summary, err := eng.sched.BulkSetLocate(ctx, on)
	if err != nil {
		fatal(err)
	}
	if jsonOut {
		outputJSON(summary)
		return
	}
	for _, r := range summary.Results {
		printResult(r)
	}
	printSummary(summary)
}

func printResult(r sched.Result) {
	out := os.Stdout
	if r.Status != sched.StatusOK {
		out = os.Stderr
	}
	fmt.Fprintf(out, "%s: %s: %s\n", r.Status, r.Unit, r.Detail)
}

func printSummary(s *sched.Summary) {
	fmt.Printf("summary: %d SAS drive(s) on %d adapter(s), %d AHCI, %d failed, %s elapsed\n",
		s.TotalDrives, len(s.Adapters), s.AHCICount, s.Failed(), s.Elapsed.Round(10*time.Millisecond))
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}
