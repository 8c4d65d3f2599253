package dispatcher

import (
	"context"
	"encoding/base64"

	"github.com/newtron-network/ctrlcfg/pkg/inventory"
	"github.com/newtron-network/ctrlcfg/pkg/secrets"
	"github.com/newtron-network/ctrlcfg/pkg/transport"
)

// WTI drives WTI console and power appliances over their REST API.
type WTI struct {
	httpDriver
	Scheme string
}

// NewWTI returns a WTI driver.
func NewWTI(cfg transport.Config) *WTI {
	return &WTI{httpDriver: newHTTPDriver(DriverWTI, cfg), Scheme: "https"}
}

// Authenticate implements Driver.
func (w *WTI) Authenticate(ctx context.Context, dev *inventory.Device, creds secrets.Credentials) (*AuthContext, error) {
	header, err := BasicAuth(creds.Username, creds.Password)
	if err != nil {
		return nil, w.authError(dev, "encoding credentials", err)
	}
	if dev.Host() == "" {
		return nil, w.authError(dev, "device has no primary ip", nil)
	}
	auth, err := w.session(dev, w.Scheme+"://"+dev.Host())
	if err != nil {
		return nil, err
	}
	auth.Client.SetHeader("Authorization", header)
	auth.Client.SetHeader("Content-Type", "application/json")
	return auth, nil
}

// BasicAuth returns the "Basic <b64>" header value. Both parts are
// required.
func BasicAuth(username, password string) (string, error) {
	if username == "" || password == "" {
		return "", errEmptyCredentials
	}
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(username+":"+password)), nil
}
