// Package secrets resolves device credentials from a static table, the
// environment or Vault KV v2.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/hashicorp/vault/api"
)

// ErrNotFound is returned when a provider holds no credentials for a ref.
var ErrNotFound = errors.New("credentials not found")

// Credentials are the secrets used to log in to a controller or device.
type Credentials struct {
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	Token    string `json:"token,omitempty"`
}

// Secret returns the API token, falling back to the password.
func (c Credentials) Secret() string {
	if c.Token != "" {
		return c.Token
	}
	return c.Password
}

// Provider looks up credentials by reference.
type Provider interface {
	Credentials(ctx context.Context, ref string) (Credentials, error)
}

// Static serves credentials from memory.
type Static map[string]Credentials

// Credentials implements Provider.
func (s Static) Credentials(_ context.Context, ref string) (Credentials, error) {
	c, ok := s[ref]
	if !ok {
		return Credentials{}, fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	return c, nil
}

// Env reads <PREFIX>_<REF>_USERNAME, _PASSWORD and _TOKEN. The ref is
// upper-cased with every non-alphanumeric character replaced by "_".
type Env struct {
	Prefix string
}

// Credentials implements Provider.
func (e Env) Credentials(_ context.Context, ref string) (Credentials, error) {
	base := EnvName(e.Prefix, ref)
	c := Credentials{
		Username: os.Getenv(base + "_USERNAME"),
		Password: os.Getenv(base + "_PASSWORD"),
		Token:    os.Getenv(base + "_TOKEN"),
	}
	if c == (Credentials{}) {
		return Credentials{}, fmt.Errorf("%w: %s (%s_*)", ErrNotFound, ref, base)
	}
	return c, nil
}

// EnvName builds the variable prefix used by Env.
func EnvName(prefix, ref string) string {
	var b strings.Builder
	if prefix != "" {
		b.WriteString(strings.ToUpper(prefix))
		b.WriteByte('_')
	}
	for _, r := range strings.ToUpper(ref) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

// Chain tries each provider in order and returns the first hit.
type Chain []Provider

// Credentials implements Provider.
func (c Chain) Credentials(ctx context.Context, ref string) (Credentials, error) {
	for _, p := range c {
		creds, err := p.Credentials(ctx, ref)
		if err == nil {
			return creds, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return Credentials{}, err
		}
	}
	return Credentials{}, fmt.Errorf("%w: %s", ErrNotFound, ref)
}

// VaultConfig locates a KV v2 mount.
type VaultConfig struct {
	Address string `json:"address,omitempty"`
	Token   string `json:"token,omitempty"`
	Mount   string `json:"mount,omitempty"`
	// Prefix is prepended to every ref, e.g. "network/devices".
	Prefix string `json:"prefix,omitempty"`
}

// Vault reads credentials from a KV v2 secret whose data carries
// username, password and token keys.
type Vault struct {
	kv     *api.KVv2
	prefix string
}

// NewVault connects to Vault. Empty address and token fall back to
// VAULT_ADDR and VAULT_TOKEN.
func NewVault(cfg VaultConfig) (*Vault, error) {
	vcfg := api.DefaultConfig()
	if vcfg.Error != nil {
		return nil, fmt.Errorf("reading vault environment: %w", vcfg.Error)
	}
	if cfg.Address != "" {
		vcfg.Address = cfg.Address
	}
	client, err := api.NewClient(vcfg)
	if err != nil {
		return nil, fmt.Errorf("creating vault client: %w", err)
	}
	if cfg.Token != "" {
		client.SetToken(cfg.Token)
	}
	mount := cfg.Mount
	if mount == "" {
		mount = "secret"
	}
	return &Vault{kv: client.KVv2(mount), prefix: strings.Trim(cfg.Prefix, "/")}, nil
}

// Credentials implements Provider.
func (v *Vault) Credentials(ctx context.Context, ref string) (Credentials, error) {
	path := ref
	if v.prefix != "" {
		path = v.prefix + "/" + ref
	}
	secret, err := v.kv.Get(ctx, path)
	if err != nil {
		if errors.Is(err, api.ErrSecretNotFound) {
			return Credentials{}, fmt.Errorf("%w: vault %s", ErrNotFound, path)
		}
		return Credentials{}, fmt.Errorf("reading vault secret %s: %w", path, err)
	}
	if secret == nil || secret.Data == nil {
		return Credentials{}, fmt.Errorf("%w: vault %s", ErrNotFound, path)
	}
	return Credentials{
		Username: stringField(secret.Data, "username"),
		Password: stringField(secret.Data, "password"),
		Token:    stringField(secret.Data, "token"),
	}, nil
}

func stringField(data map[string]interface{}, key string) string {
	s, _ := data[key].(string)
	return s
}
