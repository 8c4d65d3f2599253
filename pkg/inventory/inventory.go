package inventory

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/newtron-network/ctrlcfg/pkg/endpoint"
	"github.com/newtron-network/ctrlcfg/pkg/tree"
	"github.com/newtron-network/ctrlcfg/pkg/util"
)

// DefaultDir is the default inventory directory
var DefaultDir = "/etc/ctrlcfg"

var validate = validator.New()

// Inventory holds devices and platforms loaded from a directory:
//
//	platforms.yaml          platform name -> Platform
//	devices/<name>.yaml     one Device per file
//	contexts/<platform>.yaml, contexts/<device>.yaml
//
// Config contexts are read lazily; the device context is merged over the
// platform context.
type Inventory struct {
	dir       string
	platforms map[string]*Platform
	devices   map[string]*Device

	mu       sync.Mutex
	contexts map[string]*endpoint.ConfigContext
}

// Load reads platforms and devices from dir.
func Load(dir string) (*Inventory, error) {
	if dir == "" {
		dir = DefaultDir
	}
	inv := &Inventory{
		dir:       dir,
		platforms: make(map[string]*Platform),
		devices:   make(map[string]*Device),
		contexts:  make(map[string]*endpoint.ConfigContext),
	}
	if err := inv.loadPlatforms(); err != nil {
		return nil, fmt.Errorf("loading platforms: %w", err)
	}
	if err := inv.loadDevices(); err != nil {
		return nil, fmt.Errorf("loading devices: %w", err)
	}
	return inv, nil
}

func (inv *Inventory) loadPlatforms() error {
	data, err := os.ReadFile(filepath.Join(inv.dir, "platforms.yaml"))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	var platforms map[string]*Platform
	if err := yaml.Unmarshal(data, &platforms); err != nil {
		return fmt.Errorf("parsing platforms.yaml: %w", err)
	}
	for name, p := range platforms {
		if p == nil {
			p = &Platform{}
		}
		p.Name = name
		if err := validate.Struct(p); err != nil {
			return fmt.Errorf("platform %s: %w", name, err)
		}
		inv.platforms[name] = p
	}
	return nil
}

func (inv *Inventory) loadDevices() error {
	files, err := filepath.Glob(filepath.Join(inv.dir, "devices", "*.yaml"))
	if err != nil {
		return err
	}
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		var dev Device
		if err := yaml.Unmarshal(data, &dev); err != nil {
			return fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
		}
		if dev.Name == "" {
			dev.Name = strings.TrimSuffix(filepath.Base(path), ".yaml")
		}
		if err := validate.Struct(&dev); err != nil {
			return fmt.Errorf("device %s: %w", dev.Name, err)
		}
		if _, dup := inv.devices[dev.Name]; dup {
			return fmt.Errorf("device %s defined twice", dev.Name)
		}
		if p, ok := inv.platforms[dev.Platform]; ok {
			dev.SetPlatform(p)
		} else {
			util.WithDevice(dev.Name).Debugf("platform %s not in platforms.yaml, using it as the network driver", dev.Platform)
		}
		inv.devices[dev.Name] = &dev
	}
	return nil
}

// Dir returns the inventory directory.
func (inv *Inventory) Dir() string { return inv.dir }

// Device returns a device by name.
func (inv *Inventory) Device(name string) (*Device, error) {
	dev, ok := inv.devices[name]
	if !ok {
		return nil, fmt.Errorf("device %s: %w", name, util.ErrNotFound)
	}
	return dev, nil
}

// Devices returns every device sorted by name.
func (inv *Inventory) Devices() []*Device {
	out := make([]*Device, 0, len(inv.devices))
	for _, d := range inv.devices {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Select returns the devices whose names are listed, or every device when
// names is empty.
func (inv *Inventory) Select(names []string) ([]*Device, error) {
	if len(names) == 0 {
		return inv.Devices(), nil
	}
	out := make([]*Device, 0, len(names))
	for _, n := range util.UniqueStrings(names) {
		d, err := inv.Device(n)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// Platform returns a platform by name.
func (inv *Inventory) Platform(name string) (*Platform, bool) {
	p, ok := inv.platforms[name]
	return p, ok
}

// ConfigContext returns the merged config context of a device.
func (inv *Inventory) ConfigContext(dev *Device) (*endpoint.ConfigContext, error) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if cc, ok := inv.contexts[dev.Name]; ok {
		return cc, nil
	}

	var merged tree.Value = tree.NewObject()
	for _, name := range []string{dev.Platform, dev.Name} {
		layer, err := inv.readContext(name)
		if err != nil {
			return nil, fmt.Errorf("config context for %s: %w", dev.Name, err)
		}
		if layer != nil {
			merged = tree.Merge(merged, layer)
		}
	}
	cc, err := endpoint.NewConfigContext(merged)
	if err != nil {
		return nil, err
	}
	inv.contexts[dev.Name] = cc
	return cc, nil
}

// readContext reads contexts/<name>.yaml or contexts/<name>.json. A
// missing file yields nil.
func (inv *Inventory) readContext(name string) (tree.Value, error) {
	base := filepath.Join(inv.dir, "contexts", name)
	if data, err := os.ReadFile(base + ".yaml"); err == nil {
		return tree.DecodeYAML(data)
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	data, err := os.ReadFile(base + ".json")
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return tree.Decode(data)
}
