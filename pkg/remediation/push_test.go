package remediation

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/newtron-network/ctrlcfg/internal/testutil"
	"github.com/newtron-network/ctrlcfg/pkg/dispatcher"
	"github.com/newtron-network/ctrlcfg/pkg/endpoint"
	"github.com/newtron-network/ctrlcfg/pkg/inventory"
	"github.com/newtron-network/ctrlcfg/pkg/metrics"
	"github.com/newtron-network/ctrlcfg/pkg/secrets"
	"github.com/newtron-network/ctrlcfg/pkg/transport"
	"github.com/newtron-network/ctrlcfg/pkg/util"
)

func restDevice(name, url string) *inventory.Device {
	dev := &inventory.Device{
		Name:        name,
		Platform:    "rest",
		Controllers: []inventory.Controller{{Name: "ctl", Platform: "rest", URL: url}},
	}
	dev.SetPlatform(&inventory.Platform{Name: "rest", NetworkDriver: dispatcher.DriverREST})
	return dev
}

func newPusher() *Pusher {
	return &Pusher{
		Registry:  dispatcher.DefaultRegistry(),
		Secrets:   secrets.Static{"dev1": {Token: "t0k"}},
		Transport: transport.Config{RetryMax: 1},
		User:      "tester",
	}
}

const pushContext = `{
	"remediation_endpoints": ["ntp_remediation", "snmp_remediation", "dns_remediation"],
	"ntp_remediation": [{"endpoint": "api/ntp/{{ .item.id }}", "method": "POST", "parameters": {"optional": ["server"], "non_optional": ["id"]}}],
	"snmp_remediation": [{"endpoint": "api/snmp", "method": "PUT", "parameters": {"optional": ["contact"]}}],
	"aaa_remediation": [{"endpoint": "api/aaa", "method": "PUT", "parameters": {"optional": ["x"]}}]
}`

func TestPush(t *testing.T) {
	ctl := testutil.NewController(t)
	ctl.Handle("POST", "/api/ntp/5", `{"status": "ok"}`)
	ctl.HandleReply("PUT", "/api/snmp", testutil.Reply{Status: http.StatusOK, Body: `{"status": "ok"}`})

	p := newPusher()
	cc := configContext(t, pushContext)
	before := promtest.ToFloat64(metrics.RemediationPushes.WithLabelValues(dispatcher.DriverREST, "success"))

	patch := `{
		"ntp": {"server": "10.0.0.1", "id": "5"},
		"aaa": {"x": 1},
		"dns": {"server": "1.1.1.1"},
		"snmp": [{"contact": "noc"}, {"contact": "ops"}]
	}`
	res, err := p.Push(context.Background(), restDevice("dev1", ctl.URL), cc, patch)
	if err != nil {
		t.Fatalf("Push() error = %v", err)
	}
	if !res.Changed || res.Failed || res.Hidden {
		t.Errorf("Push() = %+v, want changed and not failed", res)
	}
	if strings.Join(res.Skipped, ",") != "aaa,dns" {
		t.Errorf("Push().Skipped = %v, want [aaa dns]", res.Skipped)
	}
	if len(res.Results) != 2 || res.Results[0].Feature != "ntp" || len(res.Results[1].Responses) != 2 {
		t.Errorf("Push().Results = %+v", res.Results)
	}

	calls := ctl.Calls()
	if len(calls) != 3 {
		t.Fatalf("controller saw %d calls, want 3", len(calls))
	}
	if calls[0].Body != `{"server":"10.0.0.1","id":"5"}` {
		t.Errorf("ntp body = %s", calls[0].Body)
	}
	if calls[2].Body != `{"contact":"ops"}` || calls[2].Header.Get("Authorization") != "Bearer t0k" {
		t.Errorf("snmp call = %+v", calls[2])
	}
	if got := promtest.ToFloat64(metrics.RemediationPushes.WithLabelValues(dispatcher.DriverREST, "success")) - before; got != 3 {
		t.Errorf("successful pushes = %v, want 3", got)
	}
}

func TestPush_PartialFailure(t *testing.T) {
	ctl := testutil.NewController(t)
	ctl.HandleReply("PUT", "/api/snmp", testutil.Reply{Status: http.StatusBadRequest, Body: `{"error": "bad contact"}`})
	ctl.Handle("POST", "/api/ntp/5", `{}`)

	p := newPusher()
	p.HideResults = true
	res, err := p.Push(context.Background(), restDevice("dev1", ctl.URL), configContext(t, pushContext),
		`{"snmp": [{"contact": "noc"}, {"contact": "ops"}], "ntp": {"server": "a", "id": "5"}}`)
	if err != nil {
		t.Fatalf("Push() error = %v", err)
	}
	if !res.Failed || len(res.Errors) != 2 {
		t.Errorf("Push() errors = %v, want 2", res.Errors)
	}
	if !res.Changed || !res.Hidden || res.Results != nil {
		t.Errorf("Push() = %+v, want changed with hidden results", res)
	}
	if err := res.Err(); err == nil || !strings.Contains(err.Error(), "snmp") {
		t.Errorf("PushResult.Err() = %v", err)
	}
	var reqErr *transport.RequestError
	if !errors.As(res.Errors[0], &reqErr) || reqErr.StatusCode != http.StatusBadRequest {
		t.Errorf("Errors[0] = %v, want a 400 RequestError", res.Errors[0])
	}
}

func TestPush_Errors(t *testing.T) {
	ctl := testutil.NewController(t)
	dev := restDevice("dev1", ctl.URL)

	tests := []struct {
		name    string
		context string
		patch   string
		check   func(error) bool
	}{
		{
			name:    "no remediation endpoints",
			context: `{"ntp_remediation": [{"endpoint": "a", "parameters": {"optional": ["x"]}}]}`,
			patch:   `{"ntp": {}}`,
			check:   func(err error) bool { return errors.Is(err, ErrNoRemediationEndpoints) && errors.Is(err, endpoint.ErrDeclaration) },
		},
		{
			name:    "patch not json",
			context: pushContext,
			patch:   `{"ntp"`,
			check:   func(err error) bool { var v *util.ValidationError; return errors.As(err, &v) },
		},
		{
			name:    "patch not an object",
			context: pushContext,
			patch:   `[1]`,
			check:   func(err error) bool { var v *util.ValidationError; return errors.As(err, &v) },
		},
		{
			name:    "malformed declaration",
			context: `{"remediation_endpoints": ["ntp_remediation"], "ntp_remediation": [{"method": "PUT"}]}`,
			patch:   `{"ntp": {}}`,
			check:   func(err error) bool { return errors.Is(err, endpoint.ErrDeclaration) },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newPusher().Push(context.Background(), dev, configContext(t, tt.context), tt.patch)
			if !tt.check(err) {
				t.Errorf("Push() error = %v", err)
			}
		})
	}
	if n := len(ctl.Calls()); n != 0 {
		t.Errorf("controller saw %d calls, want 0", n)
	}

	p := newPusher()
	p.Secrets = secrets.Static{}
	if _, err := p.Push(context.Background(), dev, configContext(t, pushContext), `{"ntp": {}}`); !errors.Is(err, secrets.ErrNotFound) {
		t.Errorf("Push(no credentials) error = %v", err)
	}
}
