package inventory

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/newtron-network/ctrlcfg/pkg/tree"
	"github.com/newtron-network/ctrlcfg/pkg/util"
)

func writeFile(t *testing.T, dir, rel, content string) {
	t.Helper()
	path := filepath.Join(dir, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func testInventory(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, dir, "platforms.yaml", `
apic:
  network_driver: cisco_apic
  manufacturer: Cisco
nxos:
  network_driver: cisco_nxos
  config_command: show running-config
`)
	writeFile(t, dir, "devices/leaf1.yaml", `
name: leaf1
platform: apic
primary_ip: 10.1.1.1/24
serial: FDO123
controllers:
  - name: apic-east
    platform: Cisco APIC
    url: https://apic-east.example.net
attributes:
  tenant: prod
  name: shadowed
`)
	writeFile(t, dir, "devices/sw1.yaml", `
platform: nxos
primary_ip: 10.2.2.2
`)
	writeFile(t, dir, "contexts/apic.yaml", `
backup_endpoints:
  - ntp_backup
ntp_backup:
  - endpoint: api/node/class/datetimeNtpProv.json
    method: GET
    jmespath:
      name: imdata[*].datetimeNtpProv.attributes.name
meta:
  owner: neteng
  tier: 1
`)
	writeFile(t, dir, "contexts/leaf1.json", `{"backup_endpoints": ["ntp_backup", "snmp_backup"], "meta": {"tier": 2}}`)
	return dir
}

func TestLoad(t *testing.T) {
	inv, err := Load(testInventory(t))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	devs := inv.Devices()
	if len(devs) != 2 || devs[0].Name != "leaf1" || devs[1].Name != "sw1" {
		t.Fatalf("Devices() = %v", devs)
	}

	leaf, _ := inv.Device("leaf1")
	if leaf.NetworkDriver() != "cisco_apic" {
		t.Errorf("NetworkDriver() = %q, want cisco_apic", leaf.NetworkDriver())
	}
	if leaf.Host() != "10.1.1.1" {
		t.Errorf("Host() = %q, want 10.1.1.1", leaf.Host())
	}
	if got := leaf.ControllerURL("apic"); got != "https://apic-east.example.net" {
		t.Errorf("ControllerURL(apic) = %q", got)
	}
	if got := leaf.ControllerURL("meraki"); got != "" {
		t.Errorf("ControllerURL(meraki) = %q, want empty", got)
	}
	data := leaf.TemplateData()
	if data["name"] != "leaf1" || data["tenant"] != "prod" {
		t.Errorf("TemplateData() = %v", data)
	}

	sw, _ := inv.Device("sw1")
	if sw.PlatformInfo().ConfigCommand != "show running-config" {
		t.Errorf("ConfigCommand = %q", sw.PlatformInfo().ConfigCommand)
	}
	if sw.HasControllers() {
		t.Error("sw1 should have no controllers")
	}
	if sw.SecretRef() != "sw1" {
		t.Errorf("SecretRef() = %q, want sw1", sw.SecretRef())
	}

	if _, err := inv.Device("nope"); !errors.Is(err, util.ErrNotFound) {
		t.Errorf("Device(nope) error = %v, want ErrNotFound", err)
	}
}

func TestConfigContextMerge(t *testing.T) {
	inv, err := Load(testInventory(t))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	leaf, _ := inv.Device("leaf1")
	cc, err := inv.ConfigContext(leaf)
	if err != nil {
		t.Fatalf("ConfigContext() error = %v", err)
	}
	names, _ := cc.BackupEndpoints()
	if len(names) != 2 || names[1] != "snmp_backup" {
		t.Errorf("BackupEndpoints() = %v, want device override", names)
	}
	if _, found, err := cc.Endpoints("ntp_backup"); !found || err != nil {
		t.Errorf("Endpoints(ntp_backup) = %v, %v, want inherited from platform", found, err)
	}
	meta, _ := cc.Get("meta")
	if !meta.(*tree.Object).Has("owner") {
		t.Error("meta.owner lost in merge")
	}

	again, _ := inv.ConfigContext(leaf)
	if again != cc {
		t.Error("ConfigContext() should be cached")
	}

	sw, _ := inv.Device("sw1")
	swcc, err := inv.ConfigContext(sw)
	if err != nil {
		t.Fatalf("ConfigContext(sw1) error = %v", err)
	}
	if swcc.Has("backup_endpoints") {
		t.Error("sw1 has no contexts and should get an empty one")
	}
}

func TestLoadInvalidDevice(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "devices/bad.yaml", "name: bad\nprimary_ip: not-an-ip\nplatform: x\n")
	if _, err := Load(dir); err == nil {
		t.Error("Load() expected validation error")
	}

	dir = t.TempDir()
	writeFile(t, dir, "devices/np.yaml", "name: np\n")
	if _, err := Load(dir); err == nil {
		t.Error("Load() expected error for missing platform")
	}
}

func TestSelect(t *testing.T) {
	inv, _ := Load(testInventory(t))
	devs, err := inv.Select([]string{"sw1", "sw1"})
	if err != nil || len(devs) != 1 {
		t.Errorf("Select() = %v, %v", devs, err)
	}
	if _, err := inv.Select([]string{"ghost"}); err == nil {
		t.Error("Select(ghost) expected error")
	}
	all, _ := inv.Select(nil)
	if len(all) != 2 {
		t.Errorf("Select(nil) = %d devices, want 2", len(all))
	}
}
