// Package dispatcher implements the per-vendor controller drivers.
//
// Every driver follows the same call order for one device operation:
// Authenticate, ControllerSetup, then any number of ResolveBackupEndpoint
// or ResolveRemediationEndpoint calls. Authenticate returns a fresh
// AuthContext holding the session; drivers keep no session state of
// their own, so one Driver value may serve concurrent device operations.
package dispatcher

import (
	"context"
	"errors"
	"fmt"

	"github.com/newtron-network/ctrlcfg/pkg/endpoint"
	"github.com/newtron-network/ctrlcfg/pkg/inventory"
	"github.com/newtron-network/ctrlcfg/pkg/secrets"
	"github.com/newtron-network/ctrlcfg/pkg/transport"
	"github.com/newtron-network/ctrlcfg/pkg/tree"
)

// Driver is the capability set of a controller driver.
type Driver interface {
	// Name returns the network driver name the driver is registered under.
	Name() string

	// Authenticate opens a session. Failures are *AuthError.
	Authenticate(ctx context.Context, dev *inventory.Device, creds secrets.Credentials) (*AuthContext, error)

	// ControllerSetup resolves controller-scoped identifiers used as
	// implicit parameters by later calls. Failures are *SetupError.
	ControllerSetup(ctx context.Context, auth *AuthContext, dev *inventory.Device, cc *endpoint.ConfigContext) (map[string]string, error)

	// ResolveBackupEndpoint runs every descriptor of one feature and merges
	// the extracted results. It returns nil when no endpoint produced data.
	ResolveBackupEndpoint(ctx context.Context, auth *AuthContext, dev *inventory.Device, feature string, endpoints endpoint.FeatureEndpointList, params map[string]string) (tree.Value, error)

	// ResolveRemediationEndpoint pushes payload through every descriptor.
	// Per-call failures are returned together, alongside the responses of
	// the calls that succeeded.
	ResolveRemediationEndpoint(ctx context.Context, auth *AuthContext, dev *inventory.Device, endpoints endpoint.FeatureEndpointList, payload tree.Value, params map[string]string) ([]tree.Value, error)
}

// ContextValidator is implemented by drivers that check a config context
// before any call is made.
type ContextValidator interface {
	ValidateContext(cc *endpoint.ConfigContext) error
}

// AuthContext is the session produced by Authenticate.
type AuthContext struct {
	BaseURL string
	Client  *transport.Client
}

// URL joins path onto the session base URL.
func (a *AuthContext) URL(path string) (string, error) {
	return transport.JoinURL(a.BaseURL, path)
}

// Sentinel errors for driver failures
var (
	ErrAuthentication = errors.New("authentication failed")
	ErrSetup          = errors.New("controller setup failed")
)

// AuthError reports a failed Authenticate.
type AuthError struct {
	Device   string
	Platform string
	Reason   string
	Err      error
}

func (e *AuthError) Error() string {
	msg := fmt.Sprintf("authenticating %s (%s): %s", e.Device, e.Platform, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AuthError) Unwrap() error { return e.Err }

// Is matches ErrAuthentication.
func (e *AuthError) Is(target error) bool { return target == ErrAuthentication }

// SetupError reports a missing controller identifier.
type SetupError struct {
	Device   string
	Platform string
	Reason   string
	Err      error
}

func (e *SetupError) Error() string {
	msg := fmt.Sprintf("controller setup for %s (%s): %s", e.Device, e.Platform, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SetupError) Unwrap() error { return e.Err }

// Is matches ErrSetup.
func (e *SetupError) Is(target error) bool { return target == ErrSetup }
