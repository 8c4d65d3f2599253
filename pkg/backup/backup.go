// Package backup collects device configuration from controllers into a
// single JSON artifact.
package backup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/newtron-network/ctrlcfg/pkg/audit"
	"github.com/newtron-network/ctrlcfg/pkg/dispatcher"
	"github.com/newtron-network/ctrlcfg/pkg/endpoint"
	"github.com/newtron-network/ctrlcfg/pkg/inventory"
	"github.com/newtron-network/ctrlcfg/pkg/metrics"
	"github.com/newtron-network/ctrlcfg/pkg/secrets"
	"github.com/newtron-network/ctrlcfg/pkg/store"
	"github.com/newtron-network/ctrlcfg/pkg/transport"
	"github.com/newtron-network/ctrlcfg/pkg/tree"
	"github.com/newtron-network/ctrlcfg/pkg/util"
)

// ArtifactIndent is the JSON indent of backup artifacts.
const ArtifactIndent = "    "

// ErrNoBackupEndpoints is returned when the config context declares no
// backup_endpoints. No network call is made.
var ErrNoBackupEndpoints = fmt.Errorf("%w: could not find the controller endpoints", endpoint.ErrDeclaration)

// Skip reasons, also used as metric labels
const (
	SkipUndeclared = "undeclared"
	SkipTemplate   = "template"
	SkipEmpty      = "empty"
)

// Options controls one backup run.
type Options struct {
	// BackupFile is written when set.
	BackupFile      string
	RemoveLines     []string
	SubstituteLines []Substitution
}

// SkippedFeature records a feature that contributed nothing.
type SkippedFeature struct {
	Feature string `json:"feature"`
	Reason  string `json:"reason"`
}

// Artifact is the result of one device backup.
type Artifact struct {
	Device   string
	Platform string
	// Config is nil for CLI backups.
	Config   *tree.Object
	Text     string
	Features []string
	Skipped  []SkippedFeature
	Path     string
	Taken    time.Time
}

// SkippedNames returns the skipped feature names in order.
func (a *Artifact) SkippedNames() []string {
	out := make([]string, 0, len(a.Skipped))
	for _, s := range a.Skipped {
		out = append(out, s.Feature)
	}
	return out
}

// Orchestrator runs controller backups.
type Orchestrator struct {
	Registry  *dispatcher.Registry
	Secrets   secrets.Provider
	Transport transport.Config
	// Store receives every completed artifact when set.
	Store store.Store
	// User is recorded on audit events.
	User string
}

// Driver returns a fresh driver for dev.
func (o *Orchestrator) Driver(dev *inventory.Device) (dispatcher.Driver, error) {
	reg := o.Registry
	if reg == nil {
		reg = dispatcher.DefaultRegistry()
	}
	return reg.New(dev.NetworkDriver(), o.Transport)
}

// Credentials resolves the credentials of dev.
func (o *Orchestrator) Credentials(ctx context.Context, dev *inventory.Device) (secrets.Credentials, error) {
	if o.Secrets == nil {
		return secrets.Credentials{}, fmt.Errorf("no credential provider: %w", util.ErrInvalidConfig)
	}
	creds, err := o.Secrets.Credentials(ctx, dev.SecretRef())
	if err != nil {
		return secrets.Credentials{}, fmt.Errorf("credentials for %s: %w", dev.Name, err)
	}
	return creds, nil
}

// GetConfig backs up dev. Features are resolved in declared order and
// stored under their canonical names; undeclared, unrenderable and empty
// features are skipped. A cancelled ctx returns the partial artifact with
// the context error and nothing is persisted.
func (o *Orchestrator) GetConfig(ctx context.Context, dev *inventory.Device, cc *endpoint.ConfigContext, opts Options) (art *Artifact, err error) {
	start := time.Now()
	platform := dev.NetworkDriver()
	log := util.WithDevice(dev.Name).WithField("platform", platform)
	defer func() {
		o.record(dev, platform, art, err, time.Since(start))
	}()

	filter, err := NewLineFilter(opts.RemoveLines, opts.SubstituteLines)
	if err != nil {
		return nil, err
	}
	driver, err := o.Driver(dev)
	if err != nil {
		return nil, err
	}
	if v, ok := driver.(dispatcher.ContextValidator); ok {
		if err := v.ValidateContext(cc); err != nil {
			return nil, err
		}
	}
	features, err := cc.BackupEndpoints()
	if err != nil {
		return nil, err
	}
	if len(features) == 0 {
		log.Error(ErrNoBackupEndpoints.Error())
		return nil, ErrNoBackupEndpoints
	}

	creds, err := o.Credentials(ctx, dev)
	if err != nil {
		return nil, err
	}
	auth, err := driver.Authenticate(ctx, dev, creds)
	if err != nil {
		return nil, err
	}
	log.Infof("Authenticated to %s platform: %s", dev.Name, dev.Platform)
	params, err := driver.ControllerSetup(ctx, auth, dev, cc)
	if err != nil {
		return nil, err
	}

	art = &Artifact{Device: dev.Name, Platform: platform, Config: tree.NewObject(), Taken: start}
	skip := func(feature, reason, msg string, args ...interface{}) {
		log.WithField("feature", feature).Errorf(msg, args...)
		art.Skipped = append(art.Skipped, SkippedFeature{Feature: feature, Reason: reason})
		metrics.SkipFeature(platform, reason)
	}

	log.Infof("Collecting feature endpoint backups for %s", dev.Name)
	for _, raw := range features {
		if err := ctx.Err(); err != nil {
			return art, err
		}
		name := endpoint.FeatureName(raw)
		list, found, err := cc.Endpoints(raw)
		if err != nil {
			return nil, err
		}
		if !found {
			skip(raw, SkipUndeclared, "Could not find the endpoint context for %s in the config context", raw)
			continue
		}
		result, err := driver.ResolveBackupEndpoint(ctx, auth, dev, name, list, params)
		switch {
		case err != nil && ctx.Err() != nil:
			return art, ctx.Err()
		case errors.Is(err, endpoint.ErrTemplate):
			skip(raw, SkipTemplate, "Could not render %s: %v", raw, err)
			continue
		case err != nil:
			return nil, err
		case result == nil || tree.IsEmpty(result):
			skip(raw, SkipEmpty, "Could not fetch %s configuration from controller using context %s", name, raw)
			continue
		}
		art.Config.Set(name, result)
		art.Features = append(art.Features, name)
	}
	log.Infof("Finished collecting feature endpoint backups for %s", dev.Name)

	text, err := tree.EncodeString(art.Config, ArtifactIndent)
	if err != nil {
		return nil, err
	}
	if art.Text, err = filter.Filter(text); err != nil {
		return nil, err
	}
	if err := o.persist(ctx, art, opts.BackupFile); err != nil {
		return art, err
	}
	return art, nil
}

// persist writes the artifact file and store record.
func (o *Orchestrator) persist(ctx context.Context, art *Artifact, path string) error {
	if path != "" {
		if err := WriteFile(path, art.Text); err != nil {
			return err
		}
		art.Path = path
	}
	if o.Store != nil {
		rec := &store.Record{Device: art.Device, Platform: art.Platform, Taken: art.Taken, Config: art.Text, Skipped: art.SkippedNames()}
		if err := o.Store.Put(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

// record emits metrics and the audit event for one run.
func (o *Orchestrator) record(dev *inventory.Device, platform string, art *Artifact, err error, elapsed time.Duration) {
	result := "success"
	switch {
	case err != nil:
		result = "error"
	case art != nil && len(art.Skipped) > 0:
		result = "partial"
	}
	metrics.ObserveBackup(platform, result, elapsed)

	ev := audit.NewEvent(o.User, dev.Name, audit.OpBackup).WithPlatform(platform).WithDuration(elapsed)
	if art != nil {
		ev.WithFeatures(art.Features).WithSkipped(art.SkippedNames()).WithArtifact(art.Path)
	}
	if err != nil {
		ev.WithError(err)
	} else {
		ev.WithSuccess()
	}
	if aerr := audit.Log(ev); aerr != nil {
		util.WithDevice(dev.Name).Warnf("audit: %v", aerr)
	}
}

// WriteFile writes text to path, creating parent directories.
func WriteFile(path, text string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating backup directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(text), 0644); err != nil {
		return fmt.Errorf("writing backup file: %w", err)
	}
	return nil
}
