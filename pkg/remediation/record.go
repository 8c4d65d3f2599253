package remediation

import (
	"fmt"
	"strings"

	"github.com/clbanning/mxj/v2"

	"github.com/newtron-network/ctrlcfg/pkg/endpoint"
	"github.com/newtron-network/ctrlcfg/pkg/tree"
	"github.com/newtron-network/ctrlcfg/pkg/util"
)

// Config types of a compliance record
const (
	ConfigJSON = "json"
	ConfigXML  = "xml"
)

// Record is one compliance result: the intended and the backed-up
// configuration of a device feature.
type Record struct {
	Device     string `json:"device" yaml:"device"`
	Feature    string `json:"feature" yaml:"feature"`
	ConfigType string `json:"config_type" yaml:"config_type"`
	Intended   string `json:"intended" yaml:"intended"`
	Actual     string `json:"actual" yaml:"actual"`
}

// FeatureKey returns the lower-cased feature name used as the top-level
// config key.
func (r *Record) FeatureKey() string {
	return strings.ToLower(strings.TrimSpace(r.Feature))
}

// Validate reports every missing identifying field of the record.
func (r *Record) Validate() error {
	var vb util.ValidationBuilder
	vb.Add(strings.TrimSpace(r.Device) != "", "device is required").
		Add(r.FeatureKey() != "", "feature is required")
	return vb.Build()
}

// Type returns the normalized config type.
func (r *Record) Type() string {
	return strings.ToLower(strings.TrimSpace(r.ConfigType))
}

// Trees parses both configurations according to the config type.
func (r *Record) Trees() (intended, actual tree.Value, err error) {
	var parse func(string) (tree.Value, error)
	switch r.Type() {
	case ConfigJSON:
		parse = ParseJSON
	case ConfigXML:
		parse = ParseXML
	default:
		return nil, nil, util.NewValidationError(fmt.Sprintf("config type %s is not supported", r.ConfigType))
	}
	if intended, err = parse(r.Intended); err != nil {
		return nil, nil, fmt.Errorf("intended config of %s: %w", r.Device, err)
	}
	if actual, err = parse(r.Actual); err != nil {
		return nil, nil, fmt.Errorf("actual config of %s: %w", r.Device, err)
	}
	return intended, actual, nil
}

// Compute runs the remediation engine over the record.
func (r *Record) Compute(cc *endpoint.ConfigContext) (string, error) {
	intended, actual, err := r.Trees()
	if err != nil {
		return "", err
	}
	return Compute(intended, actual, cc, r.FeatureKey())
}

// ParseJSON decodes a JSON configuration.
func ParseJSON(text string) (tree.Value, error) {
	return tree.Decode([]byte(text))
}

// ParseXML converts an XML document into a tree. The root element becomes
// the only top-level key; attributes appear as "-name" keys and mixed text
// as "#text". Sibling keys are sorted.
func ParseXML(text string) (tree.Value, error) {
	m, err := mxj.NewMapXml([]byte(text))
	if err != nil {
		return nil, fmt.Errorf("parsing xml: %w", err)
	}
	return tree.FromAny(map[string]any(m)), nil
}
