package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/newtron-network/ctrlcfg/pkg/auth"
	"github.com/newtron-network/ctrlcfg/pkg/cli"
	"github.com/newtron-network/ctrlcfg/pkg/dispatcher"
	"github.com/newtron-network/ctrlcfg/pkg/endpoint"
	"github.com/newtron-network/ctrlcfg/pkg/inventory"
	"github.com/newtron-network/ctrlcfg/pkg/remediation"
)

var (
	remDevice      string
	remFeature     string
	remIntended    string
	remActual      string
	remConfigType  string
	remPush        bool
	remHideResults bool
)

var remediateCmd = &cobra.Command{
	Use:   "remediate [record-file|-]",
	Short: "Compute the remediation patch of a compliance record",
	Long: `Compute the minimal configuration that brings a device feature from its
actual to its intended configuration.

The compliance record is read from a JSON or YAML file ("-" for stdin)
with device, feature, config_type, intended and actual fields, or built
from flags where --intended and --actual name files.

Examples:
  ctrlcfg remediate compliance.json
  ctrlcfg remediate -d apic1 -f ntp --intended ntp.json --actual backup/apic1.json
  ctrlcfg remediate compliance.yaml --push --hide-results`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rec, err := remediationRecord(args)
		if err != nil {
			return err
		}
		inv, err := loadInventory()
		if err != nil {
			return err
		}
		dev, err := inv.Device(rec.Device)
		if err != nil {
			return err
		}
		if err := authorize(auth.PermRemediate, dev); err != nil {
			return err
		}
		router := &remediation.Router{Source: inv, User: app.user}
		patch, err := router.Remediate(cmd.Context(), rec)
		if err != nil {
			return err
		}
		if patch == "" {
			fmt.Fprintf(os.Stderr, "%s: %s is compliant, nothing to remediate\n", rec.Device, rec.FeatureKey())
			return nil
		}
		fmt.Println(patch)

		if !remPush {
			return nil
		}
		return pushPatch(cmd.Context(), inv, rec.Device, patch, remHideResults)
	},
}

func init() {
	remediateCmd.Flags().StringVarP(&remDevice, "device", "d", "", "Device name")
	remediateCmd.Flags().StringVarP(&remFeature, "feature", "f", "", "Feature name")
	remediateCmd.Flags().StringVar(&remIntended, "intended", "", "File holding the intended configuration")
	remediateCmd.Flags().StringVar(&remActual, "actual", "", "File holding the actual configuration")
	remediateCmd.Flags().StringVar(&remConfigType, "config-type", remediation.ConfigJSON, "Configuration format (json or xml)")
	remediateCmd.Flags().BoolVar(&remPush, "push", false, "Push the patch to the controller")
	remediateCmd.Flags().BoolVar(&remHideResults, "hide-results", false, "Do not print controller responses")
	remediateCmd.Flags().BoolVar(&app.jsonOutput, "json", false, "JSON output for push results")
}

// remediationRecord reads the record file named by args, or assembles one
// from flags.
func remediationRecord(args []string) (*remediation.Record, error) {
	if len(args) == 1 {
		data, err := readInput(args[0])
		if err != nil {
			return nil, err
		}
		return parseRecord(args[0], data)
	}
	if remDevice == "" || remFeature == "" || remIntended == "" || remActual == "" {
		return nil, fmt.Errorf("a record file or --device, --feature, --intended and --actual are required")
	}
	intended, err := os.ReadFile(remIntended)
	if err != nil {
		return nil, err
	}
	actual, err := os.ReadFile(remActual)
	if err != nil {
		return nil, err
	}
	return &remediation.Record{
		Device:     remDevice,
		Feature:    remFeature,
		ConfigType: remConfigType,
		Intended:   string(intended),
		Actual:     string(actual),
	}, nil
}

// parseRecord decodes JSON for .json files and stdin, YAML otherwise.
func parseRecord(name string, data []byte) (*remediation.Record, error) {
	rec := &remediation.Record{}
	var err error
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, rec)
	default:
		err = json.Unmarshal(data, rec)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing compliance record %s: %w", name, err)
	}
	if err := rec.Validate(); err != nil {
		return nil, fmt.Errorf("compliance record %s: %w", name, err)
	}
	if rec.ConfigType == "" {
		rec.ConfigType = remediation.ConfigJSON
	}
	return rec, nil
}

func readInput(name string) ([]byte, error) {
	if name == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(name)
}

func pushPatch(ctx context.Context, inv *inventory.Inventory, device, patch string, hide bool) error {
	dev, err := inv.Device(device)
	if err != nil {
		return err
	}
	if err := authorize(auth.PermPush, dev); err != nil {
		return err
	}
	cc, err := inv.ConfigContext(dev)
	if err != nil {
		return err
	}
	provider, err := credentialProvider()
	if err != nil {
		return err
	}
	p := &remediation.Pusher{
		Registry:    dispatcher.DefaultRegistry(),
		Secrets:     provider,
		Transport:   app.settings.TransportConfig(),
		User:        app.user,
		HideResults: hide,
	}
	res, err := p.Push(ctx, dev, cc, patch)
	if err != nil {
		return err
	}
	printPushResult(dev.Name, res)
	if res.Failed {
		return fmt.Errorf("push to %s: %w", dev.Name, res.Err())
	}
	return nil
}

func printPushResult(device string, res *remediation.PushResult) {
	if app.jsonOutput {
		out := map[string]any{
			"device":  device,
			"changed": res.Changed,
			"failed":  res.Failed,
			"skipped": res.Skipped,
		}
		if res.Hidden {
			out["results"] = remediation.HiddenResults
		} else {
			out["results"] = res.Results
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.Encode(out)
		return
	}

	status := "unchanged"
	switch {
	case res.Failed:
		status = "failed"
	case res.Changed:
		status = "changed"
	}
	fmt.Printf("%s: %s\n", cli.Bold(device), cli.Status(status))
	for _, s := range res.Skipped {
		fmt.Printf("  %s %s (no %s declared)\n", cli.Yellow("skipped"), s, endpoint.RemediationKey(s))
	}
	if res.Hidden {
		fmt.Printf("  %s\n", remediation.HiddenResults)
	} else {
		for _, r := range res.Results {
			fmt.Printf("  %s %d response(s)\n", cli.DotPad(r.Feature, 24), len(r.Responses))
		}
	}
	for _, err := range res.Errors {
		fmt.Printf("  %s %v\n", cli.Red("error"), err)
	}
}
