package dispatcher

import (
	"context"
	"errors"

	"github.com/newtron-network/ctrlcfg/pkg/inventory"
	"github.com/newtron-network/ctrlcfg/pkg/secrets"
	"github.com/newtron-network/ctrlcfg/pkg/transport"
)

var errEmptyCredentials = errors.New("username and/or password not set")

// REST drives any token or basic-auth JSON API. The base URL is the
// device's controller, its base_url attribute, or https://<primary ip>.
type REST struct {
	httpDriver
	Scheme string
}

// NewREST returns a generic REST driver.
func NewREST(cfg transport.Config) *REST {
	return &REST{httpDriver: newHTTPDriver(DriverREST, cfg), Scheme: "https"}
}

// Authenticate implements Driver. A token is sent as a bearer header;
// otherwise username and password are sent as basic auth.
func (r *REST) Authenticate(ctx context.Context, dev *inventory.Device, creds secrets.Credentials) (*AuthContext, error) {
	base := dev.ControllerURL("")
	if base == "" {
		base, _ = dev.Attributes["base_url"].(string)
	}
	if base == "" && dev.Host() != "" {
		base = r.Scheme + "://" + dev.Host()
	}
	auth, err := r.session(dev, base)
	if err != nil {
		return nil, err
	}
	switch {
	case creds.Token != "":
		auth.Client.SetHeader("Authorization", "Bearer "+creds.Token)
	default:
		header, err := BasicAuth(creds.Username, creds.Password)
		if err != nil {
			return nil, r.authError(dev, "no token or basic credentials", err)
		}
		auth.Client.SetHeader("Authorization", header)
	}
	auth.Client.SetHeader("Content-Type", "application/json")
	auth.Client.SetHeader("Accept", "application/json")
	return auth, nil
}
