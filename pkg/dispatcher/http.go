package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/hashicorp/go-multierror"

	"github.com/newtron-network/ctrlcfg/pkg/endpoint"
	"github.com/newtron-network/ctrlcfg/pkg/inventory"
	"github.com/newtron-network/ctrlcfg/pkg/transport"
	"github.com/newtron-network/ctrlcfg/pkg/tree"
	"github.com/newtron-network/ctrlcfg/pkg/util"
)

// router turns a descriptor into a concrete request.
type router interface {
	backupRequest(auth *AuthContext, dev *inventory.Device, d *endpoint.Descriptor, params map[string]string) (*transport.Request, error)
	remediationRequest(auth *AuthContext, dev *inventory.Device, d *endpoint.Descriptor, body *tree.Object, params map[string]string) (*transport.Request, error)
}

// httpDriver resolves descriptors over an HTTP session. Vendor drivers
// embed it and supply Authenticate.
type httpDriver struct {
	name   string
	cfg    transport.Config
	router router
}

func newHTTPDriver(name string, cfg transport.Config) httpDriver {
	return httpDriver{name: name, cfg: cfg, router: templateRouter{}}
}

// Name implements Driver.
func (h *httpDriver) Name() string { return h.name }

// session opens a fresh client rooted at baseURL.
func (h *httpDriver) session(dev *inventory.Device, baseURL string) (*AuthContext, error) {
	if baseURL == "" {
		return nil, &AuthError{Device: dev.Name, Platform: h.name, Reason: "could not resolve the controller url"}
	}
	client, err := transport.New(h.cfg)
	if err != nil {
		return nil, &AuthError{Device: dev.Name, Platform: h.name, Reason: "creating session", Err: err}
	}
	return &AuthContext{BaseURL: baseURL, Client: client}, nil
}

func (h *httpDriver) authError(dev *inventory.Device, reason string, err error) error {
	return &AuthError{Device: dev.Name, Platform: h.name, Reason: reason, Err: err}
}

// ControllerSetup implements Driver. HTTP controllers need no setup.
func (h *httpDriver) ControllerSetup(ctx context.Context, auth *AuthContext, dev *inventory.Device, cc *endpoint.ConfigContext) (map[string]string, error) {
	return map[string]string{}, nil
}

// ResolveBackupEndpoint implements Driver.
func (h *httpDriver) ResolveBackupEndpoint(ctx context.Context, auth *AuthContext, dev *inventory.Device, feature string, endpoints endpoint.FeatureEndpointList, params map[string]string) (tree.Value, error) {
	log := util.WithFeature(dev.Name, feature)
	var acc endpoint.Accumulator
	var templateErr error

	for _, d := range endpoints {
		if err := ctx.Err(); err != nil {
			return acc.Result(), err
		}
		req, err := h.router.backupRequest(auth, dev, d, params)
		if errors.Is(err, endpoint.ErrTemplate) {
			log.Errorf("Skipping endpoint %s: %v", d.Endpoint, err)
			templateErr = err
			continue
		}
		if err != nil {
			return nil, err
		}
		resp, err := auth.Client.Do(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				return acc.Result(), ctx.Err()
			}
			log.Errorf("Error in API call to %s: %v", req.URL, err)
			continue
		}
		content := resp.Content()
		fields, err := endpoint.ExtractFields(d, content)
		if err != nil {
			log.Errorf("Error resolving jmespath for %s: %v", req.URL, err)
			continue
		}
		if !endpoint.Usable(fields) {
			log.Errorf("jmespath values not found in response from %s", req.URL)
			continue
		}
		if err := acc.Add(fields); err != nil {
			return nil, err
		}
	}

	if acc.Empty() {
		if templateErr != nil {
			return nil, templateErr
		}
		log.Errorf("No valid responses found for the %s endpoints", feature)
		return nil, nil
	}
	return acc.Result(), nil
}

// ResolveRemediationEndpoint implements Driver.
func (h *httpDriver) ResolveRemediationEndpoint(ctx context.Context, auth *AuthContext, dev *inventory.Device, endpoints endpoint.FeatureEndpointList, payload tree.Value, params map[string]string) ([]tree.Value, error) {
	items, err := payloadItems(payload)
	if err != nil {
		return nil, err
	}

	var results []tree.Value
	var errs *multierror.Error
	for _, d := range endpoints {
		for _, item := range items {
			if err := ctx.Err(); err != nil {
				return results, err
			}
			body := mergeRequired(dev, d, item, params)
			req, err := h.router.remediationRequest(auth, dev, d, body, params)
			if err != nil {
				util.WithDevice(dev.Name).Errorf("Skipping remediation call to %s: %v", d.Endpoint, err)
				errs = multierror.Append(errs, err)
				continue
			}
			resp, err := auth.Client.Do(ctx, req)
			if err != nil {
				if ctx.Err() != nil {
					return results, ctx.Err()
				}
				util.WithDevice(dev.Name).Errorf("Error in API call to %s: %v", req.URL, err)
				errs = multierror.Append(errs, err)
				continue
			}
			results = append(results, resp.Content())
		}
	}
	return results, errs.ErrorOrNil()
}

// ErrPayloadShape is returned for a remediation payload that is neither an
// object nor a list.
var ErrPayloadShape = errors.New("remediation payload must be a dict or a list")

// payloadItems returns one body per call: the payload itself for an
// object, or each object item of a list.
func payloadItems(payload tree.Value) ([]*tree.Object, error) {
	switch p := payload.(type) {
	case *tree.Object:
		return []*tree.Object{p}, nil
	case *tree.Array:
		out := make([]*tree.Object, 0, p.Len())
		for _, item := range p.Items {
			if obj, ok := item.(*tree.Object); ok {
				out = append(out, obj)
			}
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: got %s", ErrPayloadShape, tree.KindOf(payload))
}

// mergeRequired copies item and sets every non-optional parameter known
// from setup. A parameter absent from both is logged; the call proceeds.
func mergeRequired(dev *inventory.Device, d *endpoint.Descriptor, item *tree.Object, params map[string]string) *tree.Object {
	body := tree.Clone(item).(*tree.Object)
	for _, name := range d.Required() {
		if v := params[name]; v != "" {
			body.Set(name, tree.String(v))
			continue
		}
		if !body.Has(name) {
			util.WithDevice(dev.Name).Errorf("resolve_remediation_endpoint needs '%s' for %s", name, d.Endpoint)
		}
	}
	return body
}

// templateRouter renders descriptor endpoints as URI templates relative
// to the session base URL.
type templateRouter struct{}

func (templateRouter) backupRequest(auth *AuthContext, dev *inventory.Device, d *endpoint.Descriptor, params map[string]string) (*transport.Request, error) {
	uri, err := endpoint.RenderURI(d.Endpoint, endpoint.TemplateData(dev.TemplateData(), params))
	if err != nil {
		return nil, err
	}
	url, err := auth.URL(uri)
	if err != nil {
		return nil, err
	}
	return &transport.Request{Method: d.HTTPMethod(), URL: endpoint.BuildQuery(url, d.Query)}, nil
}

func (templateRouter) remediationRequest(auth *AuthContext, dev *inventory.Device, d *endpoint.Descriptor, body *tree.Object, params map[string]string) (*transport.Request, error) {
	data := endpoint.TemplateData(dev.TemplateData(), params)
	data["item"] = tree.ToAny(body)
	uri, err := endpoint.RenderURI(d.Endpoint, data)
	if err != nil {
		return nil, err
	}
	url, err := auth.URL(uri)
	if err != nil {
		return nil, err
	}
	encoded, err := tree.Encode(body, "")
	if err != nil {
		return nil, err
	}
	return &transport.Request{
		Method: d.HTTPMethod(),
		URL:    endpoint.BuildQuery(url, d.Query),
		Header: http.Header{"Content-Type": []string{"application/json"}},
		Body:   encoded,
	}, nil
}
