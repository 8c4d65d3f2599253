package remediation

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/newtron-network/ctrlcfg/pkg/audit"
	"github.com/newtron-network/ctrlcfg/pkg/dispatcher"
	"github.com/newtron-network/ctrlcfg/pkg/endpoint"
	"github.com/newtron-network/ctrlcfg/pkg/inventory"
	"github.com/newtron-network/ctrlcfg/pkg/metrics"
	"github.com/newtron-network/ctrlcfg/pkg/secrets"
	"github.com/newtron-network/ctrlcfg/pkg/transport"
	"github.com/newtron-network/ctrlcfg/pkg/tree"
	"github.com/newtron-network/ctrlcfg/pkg/util"
)

// ErrNoRemediationEndpoints is returned when the config context lists no
// remediation_endpoints. No network call is made.
var ErrNoRemediationEndpoints = fmt.Errorf("%w: could not find controller endpoints", endpoint.ErrDeclaration)

// HiddenResults stands in for the responses when results are hidden.
const HiddenResults = "Hidden to protect sensitive information"

// FeatureResult holds the controller responses of one patch key.
type FeatureResult struct {
	Feature   string       `json:"feature"`
	Responses []tree.Value `json:"responses"`
}

// PushResult is the outcome of one Push.
type PushResult struct {
	// Changed is set when at least one call succeeded.
	Changed bool
	// Results is nil when Hidden is set.
	Results []FeatureResult
	Hidden  bool
	// Skipped lists patch keys without a listed and declared endpoint.
	Skipped []string
	Failed  bool
	Errors  []error
}

// Err joins the per-call failures.
func (r *PushResult) Err() error {
	var errs *multierror.Error
	for _, err := range r.Errors {
		errs = multierror.Append(errs, err)
	}
	return errs.ErrorOrNil()
}

// Pusher sends remediation patches to controllers.
type Pusher struct {
	Registry  *dispatcher.Registry
	Secrets   secrets.Provider
	Transport transport.Config
	User      string
	// HideResults keeps controller responses out of the result, for
	// features whose responses echo secrets.
	HideResults bool
}

// Push decodes patch and pushes it to dev. See PushTree.
func (p *Pusher) Push(ctx context.Context, dev *inventory.Device, cc *endpoint.ConfigContext, patch string) (*PushResult, error) {
	v, err := tree.Decode([]byte(patch))
	if err != nil {
		return nil, util.NewValidationError(fmt.Sprintf("remediation patch is not valid json: %v", err))
	}
	obj, ok := v.(*tree.Object)
	if !ok {
		return nil, util.NewValidationError(fmt.Sprintf("remediation patch must be an object, got %s", tree.KindOf(v)))
	}
	return p.PushTree(ctx, dev, cc, obj)
}

// PushTree authenticates, runs controller setup, then pushes every
// top-level key of patch through its <key>_remediation descriptors. Keys
// not listed in remediation_endpoints or not declared are skipped. Calls
// are best effort: failures are collected in the result, and only
// declaration, authentication, setup and cancellation errors are
// returned.
func (p *Pusher) PushTree(ctx context.Context, dev *inventory.Device, cc *endpoint.ConfigContext, patch *tree.Object) (res *PushResult, err error) {
	start := time.Now()
	platform := dev.NetworkDriver()
	log := util.WithDevice(dev.Name).WithField("platform", platform)
	var (
		pushed, failed []string
		calls          int
	)
	defer func() {
		p.record(dev, platform, res, pushed, failed, calls, err, time.Since(start))
	}()

	log.Info("Config merge via controller dispatcher starting")
	reg := p.Registry
	if reg == nil {
		reg = dispatcher.DefaultRegistry()
	}
	driver, err := reg.New(platform, p.Transport)
	if err != nil {
		return nil, err
	}
	if v, ok := driver.(dispatcher.ContextValidator); ok {
		if err := v.ValidateContext(cc); err != nil {
			return nil, err
		}
	}
	listed, err := cc.RemediationEndpoints()
	if err != nil {
		return nil, err
	}
	if len(listed) == 0 {
		log.Error(ErrNoRemediationEndpoints.Error())
		return nil, ErrNoRemediationEndpoints
	}

	if p.Secrets == nil {
		return nil, fmt.Errorf("no credential provider: %w", util.ErrInvalidConfig)
	}
	creds, err := p.Secrets.Credentials(ctx, dev.SecretRef())
	if err != nil {
		return nil, fmt.Errorf("credentials for %s: %w", dev.Name, err)
	}
	auth, err := driver.Authenticate(ctx, dev, creds)
	if err != nil {
		return nil, err
	}
	params, err := driver.ControllerSetup(ctx, auth, dev, cc)
	if err != nil {
		return nil, err
	}

	res = &PushResult{}
	for _, feature := range patch.Keys() {
		key := endpoint.RemediationKey(feature)
		if !slices.Contains(listed, key) {
			log.WithField("feature", feature).Errorf("Could not find the remediation endpoint: %s in %v", key, listed)
			res.Skipped = append(res.Skipped, feature)
			continue
		}
		list, found, err := cc.Endpoints(key)
		if err != nil {
			return res, err
		}
		if !found {
			log.WithField("feature", feature).Errorf("Could not find the remediation endpoint: %s in the config context", key)
			res.Skipped = append(res.Skipped, feature)
			continue
		}

		payload, _ := patch.Get(feature)
		responses, err := driver.ResolveRemediationEndpoint(ctx, auth, dev, list, payload, params)
		calls += len(responses)
		if len(responses) > 0 {
			res.Changed = true
			res.Results = append(res.Results, FeatureResult{Feature: feature, Responses: responses})
			pushed = append(pushed, feature)
		}
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			res.Errors = append(res.Errors, callErrors(feature, err)...)
			failed = append(failed, feature)
		}
	}
	res.Failed = len(res.Errors) > 0

	if p.HideResults {
		res.Results = nil
		res.Hidden = true
		log.Infof("result: %s", HiddenResults)
	} else {
		log.Infof("result: %d feature(s) pushed", len(res.Results))
	}
	log.Info("Config merge ended")
	return res, nil
}

// callErrors flattens a driver multierror into one error per failed call.
func callErrors(feature string, err error) []error {
	var merr *multierror.Error
	if !errors.As(err, &merr) {
		return []error{fmt.Errorf("%s: %w", feature, err)}
	}
	out := make([]error, 0, len(merr.Errors))
	for _, e := range merr.Errors {
		out = append(out, fmt.Errorf("%s: %w", feature, e))
	}
	return out
}

func (p *Pusher) record(dev *inventory.Device, platform string, res *PushResult, pushed, failed []string, calls int, err error, elapsed time.Duration) {
	ev := audit.NewEvent(p.User, dev.Name, audit.OpPush).WithPlatform(platform).WithDuration(elapsed)
	if res != nil {
		metrics.ObservePush(platform, calls, len(res.Errors))
		ev.WithFeatures(pushed).WithSkipped(res.Skipped).WithFailed(failed).WithChanged(res.Changed)
	}
	switch {
	case err != nil:
		ev.WithError(err)
	case res != nil && res.Failed:
		ev.WithError(res.Err())
	default:
		ev.WithSuccess()
	}
	if aerr := audit.Log(ev); aerr != nil {
		util.WithDevice(dev.Name).Warnf("audit: %v", aerr)
	}
}
