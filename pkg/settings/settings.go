// Package settings manages persistent user settings for the ctrlcfg CLI.
package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/newtron-network/ctrlcfg/pkg/transport"
	"github.com/newtron-network/ctrlcfg/pkg/util"
)

// Defaults used when a setting is unset
const (
	DefaultInventoryDir = "/etc/ctrlcfg"
	DefaultBackupDir    = "/var/lib/ctrlcfg/backups"
	DefaultConcurrency  = 4
	DefaultEnvPrefix    = "CTRLCFG"
	DefaultVaultMount   = "secret"
)

// Settings holds persistent user preferences
type Settings struct {
	// InventoryDir holds platforms.yaml, devices/ and contexts/
	InventoryDir string `json:"inventory_dir,omitempty"`

	// BackupDir is where artifacts are written as <device>.json
	BackupDir string `json:"backup_dir,omitempty"`

	AuditLog string `json:"audit_log,omitempty"`

	// Transport tuning, in seconds
	ConnectTimeout int `json:"connect_timeout,omitempty"`
	ReadTimeout    int `json:"read_timeout,omitempty"`
	RetryMax       int `json:"retry_max,omitempty"`

	Concurrency int `json:"concurrency,omitempty"`

	// EnvPrefix selects <PREFIX>_<REF>_USERNAME style credential variables
	EnvPrefix string `json:"env_prefix,omitempty"`

	VaultAddr   string `json:"vault_addr,omitempty"`
	VaultMount  string `json:"vault_mount,omitempty"`
	VaultPrefix string `json:"vault_prefix,omitempty"`

	RedisAddr string `json:"redis_addr,omitempty"`

	// MetricsAddr, when set, serves /metrics during long runs
	MetricsAddr string `json:"metrics_addr,omitempty"`
}

// DefaultSettingsPath returns the default path for the settings file
func DefaultSettingsPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "ctrlcfg_settings.json"
	}
	return filepath.Join(home, ".ctrlcfg", "settings.json")
}

// Load reads settings from the default location
func Load() (*Settings, error) {
	return LoadFrom(DefaultSettingsPath())
}

// LoadFrom reads settings from path. A missing file yields empty settings.
func LoadFrom(path string) (*Settings, error) {
	s := &Settings{}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return s, nil
}

// Save writes settings to the default location
func (s *Settings) Save() error {
	return s.SaveTo(DefaultSettingsPath())
}

// SaveTo writes settings to a specific path
func (s *Settings) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// GetInventoryDir returns the inventory directory (with fallback)
func (s *Settings) GetInventoryDir() string {
	return util.CoalesceString(s.InventoryDir, DefaultInventoryDir)
}

// GetBackupDir returns the backup directory (with fallback)
func (s *Settings) GetBackupDir() string {
	return util.CoalesceString(s.BackupDir, DefaultBackupDir)
}

// GetAuditLog returns the audit log path, defaulting to audit.log under
// the backup directory.
func (s *Settings) GetAuditLog() string {
	if s.AuditLog != "" {
		return s.AuditLog
	}
	return filepath.Join(s.GetBackupDir(), "audit.log")
}

// GetConcurrency returns the backup-all worker count
func (s *Settings) GetConcurrency() int {
	if s.Concurrency > 0 {
		return s.Concurrency
	}
	return DefaultConcurrency
}

// GetEnvPrefix returns the credential environment prefix
func (s *Settings) GetEnvPrefix() string {
	return util.CoalesceString(s.EnvPrefix, DefaultEnvPrefix)
}

// GetVaultMount returns the Vault KV v2 mount
func (s *Settings) GetVaultMount() string {
	return util.CoalesceString(s.VaultMount, DefaultVaultMount)
}

// TransportConfig returns the HTTP settings with unset fields defaulted.
func (s *Settings) TransportConfig() transport.Config {
	cfg := transport.Config{
		ConnectTimeout: time.Duration(s.ConnectTimeout) * time.Second,
		ReadTimeout:    time.Duration(s.ReadTimeout) * time.Second,
		RetryMax:       s.RetryMax,
	}
	return cfg.WithDefaults()
}

// fields maps setting keys to their string and int targets.
func (s *Settings) fields() (map[string]*string, map[string]*int) {
	strs := map[string]*string{
		"inventory_dir": &s.InventoryDir,
		"backup_dir":    &s.BackupDir,
		"audit_log":     &s.AuditLog,
		"env_prefix":    &s.EnvPrefix,
		"vault_addr":    &s.VaultAddr,
		"vault_mount":   &s.VaultMount,
		"vault_prefix":  &s.VaultPrefix,
		"redis_addr":    &s.RedisAddr,
		"metrics_addr":  &s.MetricsAddr,
	}
	ints := map[string]*int{
		"connect_timeout": &s.ConnectTimeout,
		"read_timeout":    &s.ReadTimeout,
		"retry_max":       &s.RetryMax,
		"concurrency":     &s.Concurrency,
	}
	return strs, ints
}

// Keys returns every settable key, sorted.
func (s *Settings) Keys() []string {
	strs, ints := s.fields()
	keys := make([]string, 0, len(strs)+len(ints))
	for k := range strs {
		keys = append(keys, k)
	}
	for k := range ints {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Get returns the stored value of key as text ("" when unset).
func (s *Settings) Get(key string) (string, error) {
	strs, ints := s.fields()
	if p, ok := strs[key]; ok {
		return *p, nil
	}
	if p, ok := ints[key]; ok {
		if *p == 0 {
			return "", nil
		}
		return strconv.Itoa(*p), nil
	}
	return "", fmt.Errorf("unknown setting %q: %w", key, util.ErrNotFound)
}

// Set stores value under key. Integer settings must be non-negative,
// except retry_max which also takes -1 to disable retries.
func (s *Settings) Set(key, value string) error {
	strs, ints := s.fields()
	if p, ok := strs[key]; ok {
		*p = value
		return nil
	}
	if p, ok := ints[key]; ok {
		if value == "" {
			*p = 0
			return nil
		}
		n, err := strconv.Atoi(value)
		if err != nil || (n < 0 && !(key == "retry_max" && n == transport.NoRetry)) {
			return fmt.Errorf("setting %s: %q is not a non-negative integer: %w", key, value, util.ErrInvalidConfig)
		}
		*p = n
		return nil
	}
	return fmt.Errorf("unknown setting %q: %w", key, util.ErrNotFound)
}

// Clear resets all settings to defaults
func (s *Settings) Clear() {
	*s = Settings{}
}
