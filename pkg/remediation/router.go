package remediation

import (
	"context"
	"time"

	"github.com/newtron-network/ctrlcfg/pkg/audit"
	"github.com/newtron-network/ctrlcfg/pkg/endpoint"
	"github.com/newtron-network/ctrlcfg/pkg/inventory"
	"github.com/newtron-network/ctrlcfg/pkg/util"
)

// Source resolves a device and its config context.
// *inventory.Inventory implements it.
type Source interface {
	Device(name string) (*inventory.Device, error)
	ConfigContext(dev *inventory.Device) (*endpoint.ConfigContext, error)
}

// CLIRemediator computes line-oriented remediation for devices managed
// over the CLI.
type CLIRemediator interface {
	Remediate(ctx context.Context, dev *inventory.Device, rec *Record) (string, error)
}

// Router sends a compliance record to the controller engine or to the CLI
// remediator.
type Router struct {
	Source Source
	// CLI handles devices without controllers; nil makes them an error.
	CLI  CLIRemediator
	User string
}

// UsesController reports whether dev is remediated through its
// controller API.
func UsesController(dev *inventory.Device, cc *endpoint.ConfigContext) bool {
	return dev.HasControllers() || cc.Has(endpoint.KeyRemediationEndpoints)
}

// Remediate returns the remediation for rec, "" when nothing differs.
func (r *Router) Remediate(ctx context.Context, rec *Record) (patch string, err error) {
	start := time.Now()
	ev := audit.NewEvent(r.User, rec.Device, audit.OpRemediate).WithFeatures([]string{rec.FeatureKey()})
	defer func() {
		ev.WithDuration(time.Since(start)).WithChanged(patch != "")
		if err != nil {
			ev.WithError(err)
		} else {
			ev.WithSuccess()
		}
		if aerr := audit.Log(ev); aerr != nil {
			util.WithDevice(rec.Device).Warnf("audit: %v", aerr)
		}
	}()

	if err := rec.Validate(); err != nil {
		return "", err
	}
	dev, err := r.Source.Device(rec.Device)
	if err != nil {
		return "", err
	}
	ev.WithPlatform(dev.NetworkDriver())
	cc, err := r.Source.ConfigContext(dev)
	if err != nil {
		return "", err
	}

	log := util.WithFeature(dev.Name, rec.FeatureKey())
	if UsesController(dev, cc) {
		log.Debug("Computing controller remediation")
		return rec.Compute(cc)
	}
	if r.CLI == nil {
		return "", util.NewDependencyError("remediation of "+dev.Name, "collaborator", "cli remediator")
	}
	log.Debug("Delegating to the cli remediator")
	return r.CLI.Remediate(ctx, dev, rec)
}
