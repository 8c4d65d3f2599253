package dispatcher

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/newtron-network/ctrlcfg/pkg/endpoint"
	"github.com/newtron-network/ctrlcfg/pkg/inventory"
	"github.com/newtron-network/ctrlcfg/pkg/meraki"
	"github.com/newtron-network/ctrlcfg/pkg/secrets"
	"github.com/newtron-network/ctrlcfg/pkg/transport"
	"github.com/newtron-network/ctrlcfg/pkg/tree"
	"github.com/newtron-network/ctrlcfg/pkg/util"
)

// Meraki setup parameter names
const (
	ParamOrganizationID = "organizationId"
	ParamNetworkID      = "networkId"
	ParamSerial         = "serial"
)

// merakiRateLimit stays under the Dashboard limit of 10 calls per second
// per organization.
const merakiRateLimit = 8

// Meraki drives the Meraki Dashboard API. Descriptor endpoints name
// Dashboard operations ("networks.getNetworkSyslogServers") instead of
// URI templates.
type Meraki struct {
	httpDriver
}

// NewMeraki returns a Meraki driver.
func NewMeraki(cfg transport.Config) *Meraki {
	if cfg.RateLimit == 0 {
		cfg.RateLimit = merakiRateLimit
		cfg.Burst = merakiRateLimit
	}
	m := &Meraki{httpDriver: newHTTPDriver(DriverMeraki, cfg)}
	m.router = merakiRouter{}
	return m
}

// Authenticate implements Driver. The Dashboard API key is the device's
// token, or its password when no token is set.
func (m *Meraki) Authenticate(ctx context.Context, dev *inventory.Device, creds secrets.Credentials) (*AuthContext, error) {
	base := dev.ControllerURL("meraki")
	if base != "" {
		base = transport.EnsureAPIPath(base, meraki.DefaultAPIPath)
	}
	auth, err := m.session(dev, base)
	if err != nil {
		return nil, err
	}
	key := creds.Secret()
	if key == "" {
		return nil, m.authError(dev, "no dashboard api key", nil)
	}
	auth.Client.SetHeader("Authorization", "Bearer "+key)
	auth.Client.SetHeader("Content-Type", "application/json")
	auth.Client.SetHeader("Accept", "application/json")
	return auth, nil
}

// ControllerSetup implements Driver. The organization comes from the
// config context organization_id, else the first organization the key
// can see.
func (m *Meraki) ControllerSetup(ctx context.Context, auth *AuthContext, dev *inventory.Device, cc *endpoint.ConfigContext) (map[string]string, error) {
	orgID := cc.String("organization_id")
	if orgID == "" {
		op, _ := meraki.Lookup("organizations.getOrganizations")
		u, err := auth.URL(op.Path)
		if err != nil {
			return nil, &SetupError{Device: dev.Name, Platform: m.name, Reason: "building organizations url", Err: err}
		}
		resp, err := auth.Client.Get(ctx, u)
		if err != nil {
			return nil, &SetupError{Device: dev.Name, Platform: m.name, Reason: "listing organizations", Err: err}
		}
		orgID = lookupString(resp.Content(), 0, "id")
	}
	if orgID == "" {
		return nil, &SetupError{Device: dev.Name, Platform: m.name, Reason: "could not find the Meraki organization ID"}
	}
	return map[string]string{
		ParamOrganizationID: orgID,
		ParamNetworkID:      cc.String("network_id"),
		ParamSerial:         dev.Serial,
	}, nil
}

// ValidateContext implements ContextValidator: every declared endpoint
// must name a known Dashboard operation.
func (m *Meraki) ValidateContext(cc *endpoint.ConfigContext) error {
	backups, err := cc.BackupEndpoints()
	if err != nil {
		return err
	}
	remediations, err := cc.RemediationEndpoints()
	if err != nil {
		return err
	}
	for _, feature := range append(backups, remediations...) {
		list, found, err := cc.Endpoints(feature)
		if err != nil {
			return err
		}
		if !found {
			continue
		}
		for i, d := range list {
			if _, ok := meraki.Lookup(d.Endpoint); !ok {
				return &endpoint.DeclarationError{Feature: feature, Index: i,
					Reason: fmt.Sprintf("unknown Meraki method %q", d.Endpoint)}
			}
		}
	}
	return nil
}

// merakiRouter resolves descriptors against the Dashboard method table.
type merakiRouter struct{}

func (merakiRouter) lookup(d *endpoint.Descriptor) (meraki.Method, error) {
	op, ok := meraki.Lookup(d.Endpoint)
	if !ok {
		return meraki.Method{}, &endpoint.DeclarationError{Feature: d.Endpoint, Index: -1, Reason: "unknown Meraki method"}
	}
	return op, nil
}

func (r merakiRouter) backupRequest(auth *AuthContext, dev *inventory.Device, d *endpoint.Descriptor, params map[string]string) (*transport.Request, error) {
	op, err := r.lookup(d)
	if err != nil {
		return nil, err
	}
	path, err := op.BuildPath(params)
	if err != nil {
		return nil, &endpoint.TemplateError{Template: op.Path, Err: err}
	}
	u, err := auth.URL(path)
	if err != nil {
		return nil, err
	}

	// Declared parameters that are not path placeholders become query
	// arguments.
	query := url.Values{}
	for k, v := range endpoint.ResolveParams(d.AllParameters(), params) {
		if !isPathParam(op, k) {
			query.Set(k, v)
		}
	}
	fragments := append([]string(nil), d.Query...)
	if len(query) > 0 {
		fragments = append(fragments, query.Encode())
	}
	return &transport.Request{Method: op.HTTPMethod, URL: endpoint.BuildQuery(u, fragments)}, nil
}

func (r merakiRouter) remediationRequest(auth *AuthContext, dev *inventory.Device, d *endpoint.Descriptor, body *tree.Object, params map[string]string) (*transport.Request, error) {
	op, err := r.lookup(d)
	if err != nil {
		return nil, err
	}
	values := make(map[string]string, len(params)+body.Len())
	for k, v := range params {
		values[k] = v
	}
	body.Range(func(k string, v tree.Value) bool {
		switch t := v.(type) {
		case tree.String:
			values[k] = string(t)
		case tree.Number:
			values[k] = string(t)
		}
		return true
	})
	path, err := op.BuildPath(values)
	if err != nil {
		return nil, &endpoint.TemplateError{Template: op.Path, Err: err}
	}
	u, err := auth.URL(path)
	if err != nil {
		return nil, err
	}

	payload := tree.Clone(body).(*tree.Object)
	for _, k := range payload.Keys() {
		if isPathParam(op, k) {
			payload.Delete(k)
		}
	}
	encoded, err := tree.Encode(payload, "")
	if err != nil {
		return nil, err
	}
	return &transport.Request{
		Method: op.HTTPMethod,
		URL:    u,
		Header: http.Header{"Content-Type": []string{"application/json"}},
		Body:   encoded,
	}, nil
}

func isPathParam(op meraki.Method, name string) bool {
	return util.ContainsFold(op.PathParams(), name)
}
