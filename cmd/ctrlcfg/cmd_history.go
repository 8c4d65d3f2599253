package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/newtron-network/ctrlcfg/pkg/auth"
	"github.com/newtron-network/ctrlcfg/pkg/cli"
	"github.com/newtron-network/ctrlcfg/pkg/store"
)

var (
	historyLimit int
	historyShow  bool
)

var historyCmd = &cobra.Command{
	Use:   "history [device]",
	Short: "List stored backups",
	Long: `List backups kept in the artifact store (Redis when redis_addr is set,
otherwise <backup-dir>/history).

Without a device, every device with a stored backup is listed with its
latest backup time.

Examples:
  ctrlcfg history
  ctrlcfg history apic1 --limit 5
  ctrlcfg history apic1 --show`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := authorize(auth.PermBackup); err != nil {
			return err
		}
		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		if len(args) == 0 {
			devices, err := st.Devices(ctx)
			if err != nil {
				return err
			}
			if len(devices) == 0 {
				fmt.Println("No stored backups")
				return nil
			}
			t := cli.NewTable("DEVICE", "PLATFORM", "LATEST", "SKIPPED")
			for _, name := range devices {
				rec, err := st.Latest(ctx, name)
				if err != nil {
					t.Row(name, "", cli.Red(err.Error()), "")
					continue
				}
				t.Row(name, rec.Platform, rec.Taken.Local().Format("2006-01-02 15:04:05"), strings.Join(rec.Skipped, ","))
			}
			t.Flush()
			return nil
		}

		device := args[0]
		if historyShow {
			rec, err := st.Latest(ctx, device)
			if err != nil {
				return err
			}
			fmt.Println(rec.Config)
			return nil
		}

		recs, err := st.History(ctx, device, historyLimit)
		if err != nil {
			return err
		}
		if app.jsonOutput {
			return json.NewEncoder(os.Stdout).Encode(recs)
		}
		printHistory(device, recs)
		return nil
	},
}

func printHistory(device string, recs []*store.Record) {
	if len(recs) == 0 {
		fmt.Printf("No stored backups for %s\n", device)
		return
	}
	fmt.Printf("%s (%s)\n", cli.Bold(device), recs[0].Platform)
	t := cli.NewTable("TAKEN", "SIZE", "SKIPPED").WithPrefix("  ")
	for _, rec := range recs {
		t.Row(rec.Taken.Local().Format("2006-01-02 15:04:05"), fmt.Sprintf("%d B", len(rec.Config)), strings.Join(rec.Skipped, ","))
	}
	t.Flush()
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 10, "Maximum backups to list")
	historyCmd.Flags().BoolVar(&historyShow, "show", false, "Print the latest stored artifact")
	historyCmd.Flags().BoolVar(&app.jsonOutput, "json", false, "JSON output")
}
