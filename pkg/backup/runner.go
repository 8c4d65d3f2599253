package backup

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/newtron-network/ctrlcfg/pkg/inventory"
	"github.com/newtron-network/ctrlcfg/pkg/util"
)

// Result is the outcome of one device in a RunAll.
type Result struct {
	Device   string
	Artifact *Artifact
	Err      error
}

// Runner backs up inventory devices, choosing controller or CLI backup by
// network driver.
type Runner struct {
	Inventory    *inventory.Inventory
	Orchestrator *Orchestrator
	// CLI handles CLI platforms; nil disables them.
	CLI *CLIBackup
	// BackupDir holds <device>.json artifacts when a device sets no
	// backup_file.
	BackupDir string
	Options   Options
}

// BackupPath returns where the artifact of dev is written.
func (r *Runner) BackupPath(dev *inventory.Device) string {
	if dev.BackupFile != "" {
		return dev.BackupFile
	}
	if r.BackupDir == "" {
		return ""
	}
	ext := ".json"
	if r.CLI != nil && r.CLI.Supports(dev.NetworkDriver()) {
		ext = ".cfg"
	}
	return filepath.Join(r.BackupDir, dev.Name+ext)
}

// Run backs up one device.
func (r *Runner) Run(ctx context.Context, dev *inventory.Device) (*Artifact, error) {
	opts := r.Options
	opts.BackupFile = r.BackupPath(dev)

	if r.CLI != nil && r.CLI.Supports(dev.NetworkDriver()) {
		return r.CLI.GetConfig(ctx, dev, opts)
	}
	cc, err := r.Inventory.ConfigContext(dev)
	if err != nil {
		return nil, err
	}
	return r.Orchestrator.GetConfig(ctx, dev, cc, opts)
}

// RunAll backs up devices with at most concurrency in flight. Every
// device gets its own driver and session; one failure does not stop the
// others. Results keep the order of devices and the returned error joins
// the per-device failures.
func (r *Runner) RunAll(ctx context.Context, devices []*inventory.Device, concurrency int) ([]Result, error) {
	if concurrency <= 0 {
		concurrency = 1
	}
	results := make([]Result, len(devices))

	var (
		mu   sync.Mutex
		errs *multierror.Error
	)
	var g errgroup.Group
	g.SetLimit(concurrency)
	for i, dev := range devices {
		i, dev := i, dev
		g.Go(func() error {
			art, err := r.Run(ctx, dev)
			results[i] = Result{Device: dev.Name, Artifact: art, Err: err}
			if err != nil {
				util.WithDevice(dev.Name).Errorf("backup failed: %v", err)
				mu.Lock()
				errs = multierror.Append(errs, fmt.Errorf("%s: %w", dev.Name, err))
				mu.Unlock()
			}
			return nil
		})
	}
	g.Wait()
	return results, errs.ErrorOrNil()
}
