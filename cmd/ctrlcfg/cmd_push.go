package main

import (
	"github.com/spf13/cobra"
)

var pushHideResults bool

var pushCmd = &cobra.Command{
	Use:   "push <device> <patch-file|->",
	Short: "Push a remediation patch through the controller",
	Long: `Push a remediation patch to a device controller.

Every top-level key of the patch is sent through its <key>_remediation
endpoints. Keys without a listed and declared endpoint are skipped;
failing calls are reported and do not stop the others.

Examples:
  ctrlcfg push apic1 patch.json
  ctrlcfg remediate compliance.json | ctrlcfg push apic1 -
  ctrlcfg push netscaler1 patch.json --hide-results`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		inv, err := loadInventory()
		if err != nil {
			return err
		}
		patch, err := readInput(args[1])
		if err != nil {
			return err
		}
		return pushPatch(cmd.Context(), inv, args[0], string(patch), pushHideResults)
	},
}

func init() {
	pushCmd.Flags().BoolVar(&pushHideResults, "hide-results", false, "Do not print controller responses")
	pushCmd.Flags().BoolVar(&app.jsonOutput, "json", false, "JSON output")
}
