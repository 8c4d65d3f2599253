package endpoint

import (
	"fmt"
	"strings"

	"github.com/newtron-network/ctrlcfg/pkg/tree"
)

// Well-known config context keys
const (
	KeyBackupEndpoints      = "backup_endpoints"
	KeyRemediationEndpoints = "remediation_endpoints"
	RemediationSuffix       = "_remediation"
)

// ConfigContext is the per-device declarative document listing features
// and their endpoint descriptors. It is read-only.
type ConfigContext struct {
	root *tree.Object
}

// NewConfigContext wraps an object value.
func NewConfigContext(v tree.Value) (*ConfigContext, error) {
	if tree.KindOf(v) == tree.KindNull {
		return &ConfigContext{root: tree.NewObject()}, nil
	}
	obj, ok := v.(*tree.Object)
	if !ok {
		return nil, &DeclarationError{Feature: "config_context", Index: -1,
			Reason: fmt.Sprintf("expected an object, got %s", tree.KindOf(v))}
	}
	return &ConfigContext{root: obj}, nil
}

// ParseConfigContext decodes a JSON config context.
func ParseConfigContext(data []byte) (*ConfigContext, error) {
	v, err := tree.Decode(data)
	if err != nil {
		return nil, err
	}
	return NewConfigContext(v)
}

// Root returns the underlying object.
func (c *ConfigContext) Root() *tree.Object {
	if c == nil {
		return nil
	}
	return c.root
}

// Get returns the raw value at key.
func (c *ConfigContext) Get(key string) (tree.Value, bool) {
	if c == nil {
		return nil, false
	}
	return c.root.Get(key)
}

// Has reports whether key is present with a non-empty value.
func (c *ConfigContext) Has(key string) bool {
	v, ok := c.Get(key)
	return ok && !tree.IsEmpty(v) && v != tree.String("")
}

// String returns the scalar at key as text, or "" when absent.
func (c *ConfigContext) String(key string) string {
	v, ok := c.Get(key)
	if !ok {
		return ""
	}
	switch t := v.(type) {
	case tree.String:
		return string(t)
	case tree.Number:
		return string(t)
	case tree.Bool:
		if t {
			return "true"
		}
		return "false"
	}
	return ""
}

// StringList returns the list of names at key. An absent key yields nil;
// any other non-list value is a declaration error.
func (c *ConfigContext) StringList(key string) ([]string, error) {
	v, ok := c.Get(key)
	if !ok || tree.IsEmpty(v) || v == tree.String("") {
		return nil, nil
	}
	list, ok := tree.Strings(v)
	if !ok {
		return nil, &DeclarationError{Feature: key, Index: -1, Reason: "expected a list of feature names"}
	}
	return list, nil
}

// BackupEndpoints returns the feature names to back up, in order.
func (c *ConfigContext) BackupEndpoints() ([]string, error) {
	return c.StringList(KeyBackupEndpoints)
}

// RemediationEndpoints returns the feature names that accept remediation.
func (c *ConfigContext) RemediationEndpoints() ([]string, error) {
	return c.StringList(KeyRemediationEndpoints)
}

// Endpoints parses the descriptor list stored under name. found is false
// when the key is absent or empty; a present but malformed entry returns a
// *DeclarationError.
func (c *ConfigContext) Endpoints(name string) (list FeatureEndpointList, found bool, err error) {
	v, ok := c.Get(name)
	if !ok || tree.IsEmpty(v) || v == tree.String("") {
		return nil, false, nil
	}
	list, err = ParseFeatureEndpoints(name, v)
	if err != nil {
		return nil, true, err
	}
	return list, true, nil
}

// RemediationKey returns the config context key holding the remediation
// descriptors of feature.
func RemediationKey(feature string) string {
	return feature + RemediationSuffix
}

// FeatureName derives the canonical feature key from a config context
// name: the text before the last "_", else the last "-", else the last
// space, lower-cased with "-" and spaces replaced by "_".
func FeatureName(raw string) string {
	feat := raw
	switch {
	case strings.Contains(raw, "_"):
		feat = raw[:strings.LastIndex(raw, "_")]
	case strings.Contains(raw, "-"):
		feat = raw[:strings.LastIndex(raw, "-")]
	case strings.Contains(raw, " "):
		feat = raw[:strings.LastIndex(raw, " ")]
	}
	feat = strings.TrimSpace(strings.ToLower(feat))
	return strings.NewReplacer("-", "_", " ", "_").Replace(feat)
}
