package settings

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/newtron-network/ctrlcfg/pkg/transport"
	"github.com/newtron-network/ctrlcfg/pkg/util"
)

func TestSettings_Defaults(t *testing.T) {
	s := &Settings{}

	if got := s.GetInventoryDir(); got != DefaultInventoryDir {
		t.Errorf("GetInventoryDir() default = %q, want %q", got, DefaultInventoryDir)
	}
	if got := s.GetBackupDir(); got != DefaultBackupDir {
		t.Errorf("GetBackupDir() default = %q, want %q", got, DefaultBackupDir)
	}
	if got, want := s.GetAuditLog(), filepath.Join(DefaultBackupDir, "audit.log"); got != want {
		t.Errorf("GetAuditLog() default = %q, want %q", got, want)
	}
	if got := s.GetConcurrency(); got != DefaultConcurrency {
		t.Errorf("GetConcurrency() default = %d", got)
	}
	if s.GetEnvPrefix() != "CTRLCFG" || s.GetVaultMount() != "secret" {
		t.Errorf("GetEnvPrefix() = %q, GetVaultMount() = %q", s.GetEnvPrefix(), s.GetVaultMount())
	}
}

func TestSettings_TransportConfig(t *testing.T) {
	s := &Settings{ConnectTimeout: 5, RetryMax: 7}
	cfg := s.TransportConfig()
	if cfg.ConnectTimeout != 5*time.Second {
		t.Errorf("ConnectTimeout = %v", cfg.ConnectTimeout)
	}
	if cfg.RetryMax != 7 {
		t.Errorf("RetryMax = %d", cfg.RetryMax)
	}
	if cfg.ReadTimeout != 100*time.Second {
		t.Errorf("ReadTimeout = %v, want the 100s default", cfg.ReadTimeout)
	}

	s = &Settings{RetryMax: transport.NoRetry}
	if got := s.TransportConfig().WithDefaults().RetryMax; got != transport.NoRetry {
		t.Errorf("RetryMax = %d, want NoRetry to survive defaulting", got)
	}
}

func TestSettings_GetSet(t *testing.T) {
	s := &Settings{}

	tests := []struct {
		key, value string
		wantErr    error
	}{
		{"inventory_dir", "/srv/inv", nil},
		{"redis_addr", "localhost:6379", nil},
		{"concurrency", "8", nil},
		{"retry_max", "", nil},
		{"retry_max", "-1", nil},
		{"retry_max", "-2", util.ErrInvalidConfig},
		{"concurrency", "-1", util.ErrInvalidConfig},
		{"read_timeout", "soon", util.ErrInvalidConfig},
		{"no_such_key", "x", util.ErrNotFound},
	}
	for _, tt := range tests {
		err := s.Set(tt.key, tt.value)
		if tt.wantErr != nil {
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Set(%q, %q) error = %v, want %v", tt.key, tt.value, err, tt.wantErr)
			}
			continue
		}
		if err != nil {
			t.Errorf("Set(%q, %q) error = %v", tt.key, tt.value, err)
			continue
		}
		if got, _ := s.Get(tt.key); got != tt.value {
			t.Errorf("Get(%q) = %q, want %q", tt.key, got, tt.value)
		}
	}
	if s.GetConcurrency() != 8 {
		t.Errorf("GetConcurrency() = %d, want 8", s.GetConcurrency())
	}
	if _, err := s.Get("bogus"); !errors.Is(err, util.ErrNotFound) {
		t.Errorf("Get(bogus) error = %v", err)
	}
	if len(s.Keys()) != 13 {
		t.Errorf("Keys() = %v", s.Keys())
	}
}

func TestSettings_Clear(t *testing.T) {
	s := &Settings{InventoryDir: "/x", Concurrency: 3, VaultAddr: "http://vault"}
	s.Clear()
	if *s != (Settings{}) {
		t.Errorf("Clear() left %+v", *s)
	}
}

func TestSettings_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "settings.json")
	s := &Settings{InventoryDir: "/srv/inv", Concurrency: 2, VaultAddr: "https://vault:8200"}
	if err := s.SaveTo(path); err != nil {
		t.Fatalf("SaveTo() error = %v", err)
	}

	loaded, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if *loaded != *s {
		t.Errorf("LoadFrom() = %+v, want %+v", *loaded, *s)
	}
}

func TestSettings_LoadMissingAndInvalid(t *testing.T) {
	dir := t.TempDir()
	s, err := LoadFrom(filepath.Join(dir, "missing.json"))
	if err != nil || *s != (Settings{}) {
		t.Errorf("LoadFrom(missing) = %+v, %v", s, err)
	}

	bad := filepath.Join(dir, "bad.json")
	os.WriteFile(bad, []byte("{not json"), 0644)
	if _, err := LoadFrom(bad); err == nil {
		t.Error("LoadFrom(invalid) expected error")
	}
}

func TestDefaultSettingsPath(t *testing.T) {
	if got := DefaultSettingsPath(); filepath.Base(got) != "settings.json" {
		t.Errorf("DefaultSettingsPath() = %q", got)
	}
}
