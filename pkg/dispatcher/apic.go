package dispatcher

import (
	"context"
	"net/http"

	"github.com/newtron-network/ctrlcfg/pkg/inventory"
	"github.com/newtron-network/ctrlcfg/pkg/secrets"
	"github.com/newtron-network/ctrlcfg/pkg/transport"
	"github.com/newtron-network/ctrlcfg/pkg/tree"
)

// APIC drives Cisco ACI controllers through the aaaLogin token session.
type APIC struct {
	httpDriver
}

// NewAPIC returns an APIC driver.
func NewAPIC(cfg transport.Config) *APIC {
	return &APIC{httpDriver: newHTTPDriver(DriverAPIC, cfg)}
}

// Authenticate implements Driver.
func (a *APIC) Authenticate(ctx context.Context, dev *inventory.Device, creds secrets.Credentials) (*AuthContext, error) {
	auth, err := a.session(dev, dev.ControllerURL("apic"))
	if err != nil {
		return nil, err
	}
	loginURL, err := auth.URL("api/aaaLogin.json")
	if err != nil {
		return nil, a.authError(dev, "building login url", err)
	}

	attrs := tree.NewObject()
	attrs.Set("name", tree.String(creds.Username))
	attrs.Set("pwd", tree.String(creds.Password))
	user := tree.NewObject()
	user.Set("attributes", attrs)
	login := tree.NewObject()
	login.Set("aaaUser", user)
	body, _ := tree.Encode(login, "")

	resp, err := auth.Client.Do(ctx, &transport.Request{
		Method: http.MethodPost,
		URL:    loginURL,
		Header: http.Header{"Content-Type": []string{"text/plain"}},
		Body:   body,
	})
	if err != nil {
		return nil, a.authError(dev, "login request", err)
	}
	token := lookupString(resp.Content(), "imdata", 0, "aaaLogin", "attributes", "token")
	if token == "" {
		return nil, a.authError(dev, "could not find cookie from APIC controller", nil)
	}
	auth.Client.SetHeader("Cookie", "APIC-cookie="+token)
	auth.Client.SetHeader("Content-Type", "text/plain")
	return auth, nil
}

// lookupString walks v by object keys and list indexes.
func lookupString(v tree.Value, path ...any) string {
	cur := v
	for _, step := range path {
		switch s := step.(type) {
		case string:
			obj, ok := cur.(*tree.Object)
			if !ok {
				return ""
			}
			if cur, ok = obj.Get(s); !ok {
				return ""
			}
		case int:
			arr, ok := cur.(*tree.Array)
			if !ok || s >= arr.Len() {
				return ""
			}
			cur = arr.Items[s]
		}
	}
	switch t := cur.(type) {
	case tree.String:
		return string(t)
	case tree.Number:
		return string(t)
	}
	return ""
}
