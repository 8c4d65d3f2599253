package backup

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/newtron-network/ctrlcfg/internal/testutil"
	"github.com/newtron-network/ctrlcfg/pkg/audit"
	"github.com/newtron-network/ctrlcfg/pkg/dispatcher"
	"github.com/newtron-network/ctrlcfg/pkg/endpoint"
	"github.com/newtron-network/ctrlcfg/pkg/inventory"
	"github.com/newtron-network/ctrlcfg/pkg/metrics"
	"github.com/newtron-network/ctrlcfg/pkg/secrets"
	"github.com/newtron-network/ctrlcfg/pkg/store"
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

func newOrchestrator() *Orchestrator {
	return &Orchestrator{
		Registry:  dispatcher.DefaultRegistry(),
		Secrets:   secrets.Static{"dev1": {Token: "t0k"}, "dev2": {Token: "t0k"}},
		Transport: transport.Config{RetryMax: 1},
		User:      "tester",
	}
}

func configContext(t *testing.T, s string) *endpoint.ConfigContext {
	t.Helper()
	cc, err := endpoint.ParseConfigContext([]byte(s))
	return testutil.Must(t, cc, err)
}

func TestGetConfig_NoBackupEndpoints(t *testing.T) {
	ctl := testutil.NewController(t)
	o := newOrchestrator()

	art, err := o.GetConfig(context.Background(), restDevice("dev1", ctl.URL), configContext(t, `{"ntp_backup": []}`), Options{})
	if !errors.Is(err, ErrNoBackupEndpoints) || !errors.Is(err, endpoint.ErrDeclaration) {
		t.Errorf("GetConfig() error = %v, want ErrNoBackupEndpoints", err)
	}
	if art != nil {
		t.Errorf("GetConfig() artifact = %+v, want nil", art)
	}
	if n := len(ctl.Calls()); n != 0 {
		t.Errorf("controller saw %d calls, want 0", n)
	}
}

const partialContext = `{
	"backup_endpoints": ["ntp_backup", "snmp_backup", "aaa_backup", "tenant_backup"],
	"ntp_backup": [{"endpoint": "api/ntp", "jmespath": {"servers": "servers"}}],
	"snmp_backup": [{"endpoint": "api/snmp", "jmespath": {"contact": "contact", "location": "location"}}],
	"tenant_backup": [{"endpoint": "api/{{ .obj.tenant }}", "jmespath": {"a": "a"}}]
}`

func TestGetConfig_SkipsEmptyFeatures(t *testing.T) {
	ctl := testutil.NewController(t)
	ctl.Handle("GET", "/api/ntp", `{"servers": {}}`)
	ctl.Handle("GET", "/api/snmp", `{"contact": "noc", "location": "dc1"}`)

	o := newOrchestrator()
	before := promtest.ToFloat64(metrics.BackupRuns.WithLabelValues(dispatcher.DriverREST, "partial"))

	art, err := o.GetConfig(context.Background(), restDevice("dev1", ctl.URL), configContext(t, partialContext), Options{})
	if err != nil {
		t.Fatalf("GetConfig() error = %v", err)
	}
	want := "{\n    \"snmp\": {\n        \"contact\": \"noc\",\n        \"location\": \"dc1\"\n    }\n}"
	if art.Text != want {
		t.Errorf("GetConfig().Text =\n%s\nwant\n%s", art.Text, want)
	}
	if got := art.Config.Keys(); len(got) != 1 || got[0] != "snmp" {
		t.Errorf("Config keys = %v, want [snmp]", got)
	}

	wantSkipped := map[string]string{"ntp_backup": SkipEmpty, "aaa_backup": SkipUndeclared, "tenant_backup": SkipTemplate}
	if len(art.Skipped) != len(wantSkipped) {
		t.Fatalf("Skipped = %v", art.Skipped)
	}
	for _, s := range art.Skipped {
		if wantSkipped[s.Feature] != s.Reason {
			t.Errorf("Skipped %s reason = %q, want %q", s.Feature, s.Reason, wantSkipped[s.Feature])
		}
	}
	if after := promtest.ToFloat64(metrics.BackupRuns.WithLabelValues(dispatcher.DriverREST, "partial")); after != before+1 {
		t.Errorf("partial backups metric = %v, want %v", after, before+1)
	}
}

func TestGetConfig_TemplateFailureKeepsFeatureData(t *testing.T) {
	ctl := testutil.NewController(t)
	ctl.Handle("GET", "/api/ntp", `{"server": "10.0.0.1"}`)

	cc := configContext(t, `{
		"backup_endpoints": ["ntp_backup"],
		"ntp_backup": [
			{"endpoint": "api/ntp", "jmespath": {"server": "server"}},
			{"endpoint": "api/{{ .obj.tenant }}", "jmespath": {"a": "a"}}
		]
	}`)
	art, err := newOrchestrator().GetConfig(context.Background(), restDevice("dev1", ctl.URL), cc, Options{})
	if err != nil {
		t.Fatalf("GetConfig() error = %v", err)
	}
	want := "{\n    \"ntp\": {\n        \"server\": \"10.0.0.1\"\n    }\n}"
	if art.Text != want {
		t.Errorf("GetConfig().Text =\n%s\nwant\n%s", art.Text, want)
	}
	if len(art.Skipped) != 0 {
		t.Errorf("Skipped = %v, want none", art.Skipped)
	}
}

func TestGetConfig_EmptyRenderedURISkipsFeature(t *testing.T) {
	ctl := testutil.NewController(t)
	dev := restDevice("dev1", ctl.URL)
	dev.Attributes = map[string]any{"path": ""}

	cc := configContext(t, `{
		"backup_endpoints": ["ntp_backup"],
		"ntp_backup": [{"endpoint": "{{ .obj.path }}", "jmespath": {"server": "server"}}]
	}`)
	art, err := newOrchestrator().GetConfig(context.Background(), dev, cc, Options{})
	if err != nil {
		t.Fatalf("GetConfig() error = %v", err)
	}
	if len(art.Skipped) != 1 || art.Skipped[0].Reason != SkipTemplate {
		t.Errorf("Skipped = %v, want ntp_backup as template", art.Skipped)
	}
	if n := len(ctl.Calls()); n != 0 {
		t.Errorf("controller saw %d calls, want 0", n)
	}
}

func TestGetConfig_ShapeMismatchAborts(t *testing.T) {
	ctl := testutil.NewController(t)
	ctl.Handle("GET", "/api/a", `{"items": [{"n": "1"}, {"n": "2"}]}`)
	ctl.Handle("GET", "/api/b", `{"n": "3"}`)

	cc := configContext(t, `{
		"backup_endpoints": ["mixed_backup"],
		"mixed_backup": [
			{"endpoint": "api/a", "jmespath": {"n": "items[*].n"}},
			{"endpoint": "api/b", "jmespath": {"n": "n"}}
		]
	}`)
	art, err := newOrchestrator().GetConfig(context.Background(), restDevice("dev1", ctl.URL), cc, Options{})
	var se *endpoint.ShapeError
	if !errors.As(err, &se) {
		t.Errorf("GetConfig() error = %v, want *endpoint.ShapeError", err)
	}
	if art != nil {
		t.Error("GetConfig() returned an artifact on shape mismatch")
	}
}

func TestGetConfig_MalformedDescriptorAborts(t *testing.T) {
	ctl := testutil.NewController(t)
	cc := configContext(t, `{"backup_endpoints": ["ntp_backup"], "ntp_backup": [{"method": "GET"}]}`)
	_, err := newOrchestrator().GetConfig(context.Background(), restDevice("dev1", ctl.URL), cc, Options{})
	var de *endpoint.DeclarationError
	if !errors.As(err, &de) {
		t.Errorf("GetConfig() error = %v, want *endpoint.DeclarationError", err)
	}
}

func TestGetConfig_PersistsFilteredArtifact(t *testing.T) {
	ctl := testutil.NewController(t)
	ctl.Handle("GET", "/api/snmp", `{"contact": "noc", "community": "s3cret", "location": "dc1"}`)

	dir := t.TempDir()
	fs, _ := store.NewFileStore(filepath.Join(dir, "store"), 0)
	logger, err := audit.NewFileLogger(filepath.Join(dir, "audit.log"), audit.RotationConfig{})
	if err != nil {
		t.Fatal(err)
	}
	audit.SetDefaultLogger(logger)
	defer audit.SetDefaultLogger(nil)
	defer logger.Close()

	o := newOrchestrator()
	o.Store = fs
	cc := configContext(t, `{
		"backup_endpoints": ["snmp_backup"],
		"snmp_backup": [{"endpoint": "api/snmp", "jmespath": {"contact": "contact", "community": "community", "location": "location"}}]
	}`)
	path := filepath.Join(dir, "backups", "nested", "dev1.json")
	opts := Options{
		BackupFile:      path,
		RemoveLines:     []string{`"community"`},
		SubstituteLines: []Substitution{{Search: `dc(\d)`, Replace: "datacenter-${1}"}},
	}
	art, err := o.GetConfig(context.Background(), restDevice("dev1", ctl.URL), cc, opts)
	if err != nil {
		t.Fatalf("GetConfig() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading backup file: %v", err)
	}
	if strings.Contains(string(data), "s3cret") || !strings.Contains(string(data), `"datacenter-1"`) {
		t.Errorf("backup file not filtered:\n%s", data)
	}
	if info, _ := os.Stat(path); info.Mode().Perm() != 0644 {
		t.Errorf("backup file mode = %v, want 0644", info.Mode().Perm())
	}
	if art.Path != path {
		t.Errorf("Artifact.Path = %q", art.Path)
	}

	rec, err := fs.Latest(context.Background(), "dev1")
	if err != nil || rec.Config != string(data) || rec.Platform != dispatcher.DriverREST {
		t.Errorf("store Latest() = %+v, %v", rec, err)
	}

	events, _ := audit.Query(audit.Filter{Device: "dev1", Operation: audit.OpBackup})
	if len(events) != 1 || !events[0].Success || events[0].User != "tester" || events[0].Artifact != path {
		t.Errorf("audit events = %+v", events)
	}
}

func TestGetConfig_Cancelled(t *testing.T) {
	ctl := testutil.NewController(t)
	ctl.Handle("GET", "/api/snmp", `{"contact": "noc"}`)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	path := filepath.Join(t.TempDir(), "dev1.json")
	cc := configContext(t, `{"backup_endpoints": ["snmp_backup"], "snmp_backup": [{"endpoint": "api/snmp", "jmespath": {"c": "contact"}}]}`)

	art, err := newOrchestrator().GetConfig(ctx, restDevice("dev1", ctl.URL), cc, Options{BackupFile: path})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("GetConfig() error = %v, want context.Canceled", err)
	}
	if art == nil {
		t.Fatal("GetConfig() should return the partial artifact")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("cancelled backup should not write a file")
	}
}

func TestGetConfig_DriverAndCredentialErrors(t *testing.T) {
	ctl := testutil.NewController(t)
	cc := configContext(t, `{"backup_endpoints": ["snmp_backup"]}`)
	o := newOrchestrator()

	dev := restDevice("dev1", ctl.URL)
	dev.SetPlatform(&inventory.Platform{Name: "junos", NetworkDriver: "juniper_junos"})
	if _, err := o.GetConfig(context.Background(), dev, cc, Options{}); !errors.Is(err, util.ErrUnsupported) {
		t.Errorf("unknown driver error = %v, want ErrUnsupported", err)
	}

	if _, err := o.GetConfig(context.Background(), restDevice("nobody", ctl.URL), cc, Options{}); !errors.Is(err, secrets.ErrNotFound) {
		t.Errorf("missing credentials error = %v, want secrets.ErrNotFound", err)
	}

	o.Secrets = secrets.Static{"dev1": {}}
	if _, err := o.GetConfig(context.Background(), restDevice("dev1", ctl.URL), cc, Options{}); !errors.Is(err, dispatcher.ErrAuthentication) {
		t.Errorf("empty credentials error = %v, want ErrAuthentication", err)
	}
}

func TestGetConfig_BadFilterPattern(t *testing.T) {
	ctl := testutil.NewController(t)
	cc := configContext(t, `{"backup_endpoints": ["snmp_backup"]}`)
	_, err := newOrchestrator().GetConfig(context.Background(), restDevice("dev1", ctl.URL), cc, Options{RemoveLines: []string{"("}})
	if err == nil || !strings.Contains(err.Error(), "remove line pattern") {
		t.Errorf("GetConfig() error = %v", err)
	}
}
