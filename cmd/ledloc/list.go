package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/sigreer/ledloc/internal/topology"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all drives known to the SAS adapters",
	Long: `List every drive the SAS adapters report, with its physical bay.

This is the ground-truth view: it always re-queries the adapters instead
of serving the topology cache.`,
	Args: cobra.NoArgs,
	Run:  runList,
}

func init() {
	listCmd.Flags().Bool("json", false, "Output as JSON")
}

func runList(cmd *cobra.Command, args []string) {
	jsonOut, _ := cmd.Flags().GetBool("json")

	eng, err := newEngine()
	if err != nil {
		fatal(err)
	}
	defer eng.close()

	snap, err := eng.sched.List(context.Background())
	if err != nil {
		fatal(err)
	}

	if jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.Encode(snap)
		return
	}
	printSnapshot(snap)
}

func printSnapshot(snap *topology.Snapshot) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ADAPTER\tENC\tSLOT\tSERIAL\tMODEL\tSIZE")
	for _, rec := range snap.Drives {
		size := "-"
		if rec.SizeMB > 0 {
			size = humanize.IBytes(uint64(rec.SizeMB) * 1024 * 1024)
		}
		fmt.Fprintf(w, "%s\t%d\t%d\t%s\t%s\t%s\n",
			rec.AdapterKey(), rec.Enclosure, rec.Slot, rec.Serial, rec.Model, size)
	}
	w.Flush()
	fmt.Printf("%d drive(s)\n", len(snap.Drives))
}
