package backup

import (
	"context"
	"strings"
	"time"

	"github.com/newtron-network/ctrlcfg/pkg/inventory"
	"github.com/newtron-network/ctrlcfg/pkg/sshcli"
	"github.com/newtron-network/ctrlcfg/pkg/util"
)

// CLI network driver names
const (
	DriverNXOS         = "cisco_nxos"
	DriverXE           = "cisco_xe"
	DriverWLC          = "cisco_wlc"
	DriverNetScalerCLI = "citrix_netscaler_cli"
)

// DefaultCommands are the show commands concatenated into a CLI backup.
var DefaultCommands = map[string][]string{
	DriverNXOS:         {"show run", "show snmp user"},
	DriverXE:           {"show run", "show snmp user"},
	DriverWLC:          {"show run-config commands"},
	DriverNetScalerCLI: {"show runningConfig"},
}

// CLIBackup collects running configuration over SSH.
type CLIBackup struct {
	Orchestrator *Orchestrator
	Runner       sshcli.Runner
}

// Supports reports whether driver is a CLI platform.
func (c *CLIBackup) Supports(driver string) bool {
	_, ok := DefaultCommands[driver]
	return ok
}

// Commands returns the show commands for dev. The platform config_command
// overrides the defaults; several commands are separated by ";".
func (c *CLIBackup) Commands(dev *inventory.Device) []string {
	if cmd := dev.PlatformInfo().ConfigCommand; cmd != "" {
		var out []string
		for _, part := range strings.Split(cmd, ";") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out
	}
	return DefaultCommands[dev.NetworkDriver()]
}

// GetConfig runs every command on dev, concatenates the output and applies
// the same post-processing and persistence as controller backups.
func (c *CLIBackup) GetConfig(ctx context.Context, dev *inventory.Device, opts Options) (art *Artifact, err error) {
	start := time.Now()
	platform := dev.NetworkDriver()
	o := c.Orchestrator
	defer func() {
		o.record(dev, platform, art, err, time.Since(start))
	}()

	filter, err := NewLineFilter(opts.RemoveLines, opts.SubstituteLines)
	if err != nil {
		return nil, err
	}
	creds, err := o.Credentials(ctx, dev)
	if err != nil {
		return nil, err
	}
	host := util.CoalesceString(dev.Host(), dev.Name)

	var b strings.Builder
	for _, cmd := range c.Commands(dev) {
		util.WithDevice(dev.Name).Debugf("Executing %q on %s", cmd, host)
		out, err := c.Runner.Run(ctx, host, creds, cmd)
		if err != nil {
			return nil, err
		}
		b.WriteString(out)
	}

	art = &Artifact{Device: dev.Name, Platform: platform, Taken: start}
	if art.Text, err = filter.Filter(b.String()); err != nil {
		return nil, err
	}
	if err := o.persist(ctx, art, opts.BackupFile); err != nil {
		return art, err
	}
	return art, nil
}
