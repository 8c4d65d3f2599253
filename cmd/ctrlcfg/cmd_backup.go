package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/newtron-network/ctrlcfg/pkg/auth"
	"github.com/newtron-network/ctrlcfg/pkg/backup"
	"github.com/newtron-network/ctrlcfg/pkg/cli"
	"github.com/newtron-network/ctrlcfg/pkg/inventory"
	"github.com/newtron-network/ctrlcfg/pkg/util"
)

var (
	backupRemoveLines []string
	backupSubstitute  []string
	backupConcurrency int
	backupPrint       bool
)

var backupCmd = &cobra.Command{
	Use:   "backup <device> [device...]",
	Short: "Back up device configuration",
	Long: `Back up the configuration of one or more inventory devices.

Controller platforms are read through their backup_endpoints; CLI
platforms (ios, nxos, eos, wlc) run their show commands over SSH.
Artifacts are written to <backup-dir>/<device>.json (.cfg for CLI
devices) unless the device sets backup_file.

Examples:
  ctrlcfg backup apic1
  ctrlcfg backup sw1 sw2 --remove-line '^! Time:.*'
  ctrlcfg backup meraki1 --substitute 'secret \S+=>secret <removed>'
  ctrlcfg backup apic1 --print`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		inv, err := loadInventory()
		if err != nil {
			return err
		}
		devices, err := inv.Select(args)
		if err != nil {
			return err
		}
		return runBackups(cmd, devices)
	},
}

var backupAllCmd = &cobra.Command{
	Use:   "backup-all",
	Short: "Back up every inventory device",
	Long: `Back up every device in the inventory with bounded concurrency.

One device failing does not stop the others; the command exits non-zero
when any device failed.

Examples:
  ctrlcfg backup-all
  ctrlcfg backup-all -c 16 --json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		inv, err := loadInventory()
		if err != nil {
			return err
		}
		return runBackups(cmd, inv.Devices())
	},
}

func init() {
	for _, cmd := range []*cobra.Command{backupCmd, backupAllCmd} {
		cmd.Flags().StringSliceVar(&backupRemoveLines, "remove-line", nil, "Remove lines matching this regex (repeatable)")
		cmd.Flags().StringArrayVar(&backupSubstitute, "substitute", nil, "Substitute 'regex=>replacement' (repeatable)")
		cmd.Flags().IntVarP(&backupConcurrency, "concurrency", "c", 0, "Devices backed up in parallel (default from settings)")
		cmd.Flags().BoolVar(&app.jsonOutput, "json", false, "JSON output")
	}
	backupCmd.Flags().BoolVar(&backupPrint, "print", false, "Print the artifact instead of a summary")
}

func runBackups(cmd *cobra.Command, devices []*inventory.Device) error {
	if err := authorize(auth.PermBackup, devices...); err != nil {
		return err
	}
	subs, err := parseSubstitutions(backupSubstitute)
	if err != nil {
		return err
	}
	runner, err := newRunner(cmd.Context(), backup.Options{
		RemoveLines:     backupRemoveLines,
		SubstituteLines: subs,
	})
	if err != nil {
		return err
	}
	concurrency := backupConcurrency
	if concurrency <= 0 {
		concurrency = app.settings.GetConcurrency()
	}

	log := util.WithOperation(cmd.Name())
	log.Debugf("Backing up %d device(s), concurrency %d", len(devices), concurrency)
	results, runErr := runner.RunAll(cmd.Context(), devices, concurrency)
	log.Debugf("Backups finished, %d failed", failedCount(results))

	switch {
	case app.jsonOutput:
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(backupSummaries(results)); err != nil {
			return err
		}
	case backupPrint:
		for _, r := range results {
			if r.Artifact != nil {
				fmt.Println(r.Artifact.Text)
			}
		}
	default:
		t := cli.NewTable("DEVICE", "STATUS", "FEATURES", "SKIPPED", "PATH")
		for _, r := range results {
			if r.Err != nil {
				t.Row(r.Device, cli.Status("failed"), "", "", r.Err.Error())
				continue
			}
			a := r.Artifact
			status := "ok"
			if len(a.Skipped) > 0 {
				status = "partial"
			}
			t.Row(r.Device, cli.Status(status), strings.Join(a.Features, ","), strings.Join(a.SkippedNames(), ","), a.Path)
		}
		t.Flush()
	}

	if runErr != nil {
		return fmt.Errorf("%d of %d backups failed", failedCount(results), len(results))
	}
	return nil
}

type backupSummary struct {
	Device   string                  `json:"device"`
	Platform string                  `json:"platform,omitempty"`
	OK       bool                    `json:"ok"`
	Features []string                `json:"features,omitempty"`
	Skipped  []backup.SkippedFeature `json:"skipped,omitempty"`
	Path     string                  `json:"path,omitempty"`
	Error    string                  `json:"error,omitempty"`
}

func backupSummaries(results []backup.Result) []backupSummary {
	out := make([]backupSummary, 0, len(results))
	for _, r := range results {
		s := backupSummary{Device: r.Device, OK: r.Err == nil}
		if r.Err != nil {
			s.Error = r.Err.Error()
		}
		if a := r.Artifact; a != nil {
			s.Platform = a.Platform
			s.Features = a.Features
			s.Skipped = a.Skipped
			s.Path = a.Path
		}
		out = append(out, s)
	}
	return out
}

func failedCount(results []backup.Result) int {
	n := 0
	for _, r := range results {
		if r.Err != nil {
			n++
		}
	}
	return n
}

// parseSubstitutions splits each 'regex=>replacement' flag value.
func parseSubstitutions(values []string) ([]backup.Substitution, error) {
	var out []backup.Substitution
	for _, v := range values {
		search, replace, ok := strings.Cut(v, "=>")
		if !ok || search == "" {
			return nil, fmt.Errorf("invalid --substitute %q: expected 'regex=>replacement'", v)
		}
		out = append(out, backup.Substitution{Search: search, Replace: replace})
	}
	return out, nil
}
