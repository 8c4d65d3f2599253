package dispatcher

import (
	"bytes"
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/newtron-network/ctrlcfg/pkg/inventory"
	"github.com/newtron-network/ctrlcfg/pkg/secrets"
	"github.com/newtron-network/ctrlcfg/pkg/transport"
)

// VManage drives Cisco SD-WAN Manager: a form login sets JSESSIONID and a
// follow-up call returns the XSRF token.
type VManage struct {
	httpDriver
}

// NewVManage returns a vManage driver.
func NewVManage(cfg transport.Config) *VManage {
	return &VManage{httpDriver: newHTTPDriver(DriverVManage, cfg)}
}

// Authenticate implements Driver.
func (v *VManage) Authenticate(ctx context.Context, dev *inventory.Device, creds secrets.Credentials) (*AuthContext, error) {
	auth, err := v.session(dev, dev.ControllerURL("vmanage"))
	if err != nil {
		return nil, err
	}
	securityURL, err := auth.URL("j_security_check")
	if err != nil {
		return nil, v.authError(dev, "building login url", err)
	}
	form := url.Values{"j_username": {creds.Username}, "j_password": {creds.Password}}
	resp, err := auth.Client.Do(ctx, &transport.Request{
		Method: http.MethodPost,
		URL:    securityURL,
		Header: http.Header{"Content-Type": []string{"application/x-www-form-urlencoded"}},
		Body:   []byte(form.Encode()),
	})
	if err != nil {
		return nil, v.authError(dev, "login request", err)
	}
	// vManage answers a rejected login with 200 and the login page.
	if bytes.Contains(bytes.ToLower(resp.Body), []byte("<html")) {
		return nil, v.authError(dev, "credentials rejected by vManage", nil)
	}
	if resp.Header.Get("Set-Cookie") == "" {
		return nil, v.authError(dev, "could not find JSESSIONID from vManage controller", nil)
	}

	tokenURL, _ := auth.URL("dataservice/client/token")
	tokenResp, err := auth.Client.Do(ctx, &transport.Request{
		Method: http.MethodGet,
		URL:    tokenURL,
		Header: http.Header{"Content-Type": []string{"application/json"}},
	})
	if err != nil {
		return nil, v.authError(dev, "retrieving xsrf token", err)
	}
	token := strings.Trim(strings.TrimSpace(string(tokenResp.Body)), `"`)
	if token == "" {
		return nil, v.authError(dev, "empty xsrf token", nil)
	}
	auth.Client.SetHeader("Content-Type", "application/json")
	auth.Client.SetHeader("X-XSRF-TOKEN", token)
	return auth, nil
}
