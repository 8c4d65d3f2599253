package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/newtron-network/ctrlcfg/pkg/auth"
	"github.com/newtron-network/ctrlcfg/pkg/cli"
)

var permissionsCmd = &cobra.Command{
	Use:   "permissions",
	Short: "Show the permissions of the current user",
	Long: `Show what the current user may run according to <inventory>/access.yaml.

Without an access policy every user holds every permission.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		checker, err := accessChecker()
		if err != nil {
			return err
		}

		fmt.Printf("User: %s\n\n", checker.CurrentUser())
		held := make(map[auth.Permission]bool)
		for _, p := range checker.ListPermissions() {
			held[p] = true
		}

		t := cli.NewTable("PERMISSION", "KIND", "GRANTED")
		for _, p := range auth.Permissions {
			kind := "read-only"
			if !p.IsReadOnly() {
				kind = "write"
			}
			granted := cli.Red("no")
			if held[p] || held[auth.PermAll] {
				granted = cli.Green("yes")
			}
			t.Row(string(p), kind, granted)
		}
		t.Flush()
		return nil
	},
}
