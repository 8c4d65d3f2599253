package dispatcher

import (
	"context"

	"github.com/newtron-network/ctrlcfg/pkg/inventory"
	"github.com/newtron-network/ctrlcfg/pkg/secrets"
	"github.com/newtron-network/ctrlcfg/pkg/transport"
)

// NetScaler drives the Citrix NITRO API on the appliance itself.
type NetScaler struct {
	httpDriver
	// Scheme defaults to https.
	Scheme string
}

// NewNetScaler returns a NetScaler driver.
func NewNetScaler(cfg transport.Config) *NetScaler {
	return &NetScaler{httpDriver: newHTTPDriver(DriverNetScaler, cfg), Scheme: "https"}
}

// Authenticate implements Driver. NITRO authenticates each request with
// header credentials; no login call is made.
func (n *NetScaler) Authenticate(ctx context.Context, dev *inventory.Device, creds secrets.Credentials) (*AuthContext, error) {
	if creds.Username == "" || creds.Password == "" {
		return nil, n.authError(dev, "username and password are required", nil)
	}
	auth, err := n.session(dev, n.Scheme+"://"+dev.Name)
	if err != nil {
		return nil, err
	}
	auth.Client.SetHeader("X-NITRO-USER", creds.Username)
	auth.Client.SetHeader("X-NITRO-PASS", creds.Password)
	auth.Client.SetHeader("Content-Type", "application/json")
	return auth, nil
}
