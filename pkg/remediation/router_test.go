package remediation

import (
	"context"
	"errors"
	"testing"

	"github.com/newtron-network/ctrlcfg/pkg/endpoint"
	"github.com/newtron-network/ctrlcfg/pkg/inventory"
	"github.com/newtron-network/ctrlcfg/pkg/util"
)

type fakeSource struct {
	devices  map[string]*inventory.Device
	contexts map[string]*endpoint.ConfigContext
}

func (s *fakeSource) Device(name string) (*inventory.Device, error) {
	dev, ok := s.devices[name]
	if !ok {
		return nil, util.ErrNotFound
	}
	return dev, nil
}

func (s *fakeSource) ConfigContext(dev *inventory.Device) (*endpoint.ConfigContext, error) {
	return s.contexts[dev.Name], nil
}

type fakeCLI struct {
	calls []string
}

func (f *fakeCLI) Remediate(ctx context.Context, dev *inventory.Device, rec *Record) (string, error) {
	f.calls = append(f.calls, dev.Name)
	return "hostname " + dev.Name, nil
}

func TestRouter(t *testing.T) {
	cliOnly := configContext(t, `{"ntp_remediation": [{"endpoint": "x", "parameters": {"optional": ["server"]}}]}`)
	src := &fakeSource{
		devices: map[string]*inventory.Device{
			"apic1": {Name: "apic1", Platform: "apic", Controllers: []inventory.Controller{{Name: "c", Platform: "apic", URL: "https://apic"}}},
			"rest1": {Name: "rest1", Platform: "rest"},
			"sw1":   {Name: "sw1", Platform: "nxos"},
		},
		contexts: map[string]*endpoint.ConfigContext{
			"apic1": cliOnly,
			"rest1": configContext(t, engineContext),
			"sw1":   cliOnly,
		},
	}
	intended := `{"ntp": {"server": "10.0.0.1"}}`
	actual := `{"ntp": {"server": "10.0.0.2"}}`
	want := "{\n    \"ntp\": {\n        \"server\": \"10.0.0.1\"\n    }\n}"

	cli := &fakeCLI{}
	r := &Router{Source: src, CLI: cli, User: "tester"}
	for _, name := range []string{"apic1", "rest1"} {
		got, err := r.Remediate(context.Background(), &Record{Device: name, Feature: "ntp", ConfigType: "json", Intended: intended, Actual: actual})
		if err != nil {
			t.Fatalf("Remediate(%s) error = %v", name, err)
		}
		if got != want {
			t.Errorf("Remediate(%s) = %q, want %q", name, got, want)
		}
	}
	if len(cli.calls) != 0 {
		t.Errorf("cli remediator called for %v", cli.calls)
	}

	got, err := r.Remediate(context.Background(), &Record{Device: "sw1", Feature: "ntp", ConfigType: "cli"})
	if err != nil {
		t.Fatalf("Remediate(sw1) error = %v", err)
	}
	if got != "hostname sw1" || len(cli.calls) != 1 {
		t.Errorf("Remediate(sw1) = %q, calls = %v", got, cli.calls)
	}

	r.CLI = nil
	_, err = r.Remediate(context.Background(), &Record{Device: "sw1", Feature: "ntp"})
	var derr *util.DependencyError
	if !errors.As(err, &derr) {
		t.Errorf("Remediate(no cli) error = %v, want *util.DependencyError", err)
	}

	if _, err := r.Remediate(context.Background(), &Record{Device: "ghost", Feature: "ntp"}); !errors.Is(err, util.ErrNotFound) {
		t.Errorf("Remediate(unknown) error = %v, want ErrNotFound", err)
	}
	if _, err := r.Remediate(context.Background(), &Record{Device: "sw1"}); !errors.Is(err, util.ErrValidationFailed) {
		t.Errorf("Remediate(no feature) error = %v, want ErrValidationFailed", err)
	}
}

func TestUsesController(t *testing.T) {
	plain := &inventory.Device{Name: "d"}
	if UsesController(plain, configContext(t, `{}`)) {
		t.Error("UsesController(no controllers, no remediation_endpoints) = true")
	}
	if !UsesController(plain, configContext(t, `{"remediation_endpoints": ["ntp_remediation"]}`)) {
		t.Error("UsesController(remediation_endpoints) = false")
	}
	grouped := &inventory.Device{Name: "d", ControllerGroup: &inventory.ControllerGroup{Name: "g"}}
	if !UsesController(grouped, configContext(t, `{}`)) {
		t.Error("UsesController(controller group) = false")
	}
}
