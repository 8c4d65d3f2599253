// Package inventory loads device records, platforms and config contexts
// from an inventory directory.
package inventory

import (
	"strings"
)

// Platform describes how a family of devices is reached.
type Platform struct {
	Name          string `yaml:"name" json:"name"`
	NetworkDriver string `yaml:"network_driver" json:"network_driver" validate:"required"`
	Manufacturer  string `yaml:"manufacturer,omitempty" json:"manufacturer,omitempty"`
	// ConfigCommand is the show command used by CLI backups.
	ConfigCommand string `yaml:"config_command,omitempty" json:"config_command,omitempty"`
}

// Controller is a management system fronting the device.
type Controller struct {
	Name     string `yaml:"name" json:"name" validate:"required"`
	Platform string `yaml:"platform" json:"platform"`
	URL      string `yaml:"url" json:"url" validate:"required,url"`
}

// ControllerGroup binds a device to one controller.
type ControllerGroup struct {
	Name       string     `yaml:"name" json:"name"`
	Controller Controller `yaml:"controller" json:"controller"`
}

// Device is one managed device or controller-managed appliance.
type Device struct {
	Name            string           `yaml:"name" json:"name" validate:"required"`
	Platform        string           `yaml:"platform" json:"platform" validate:"required"`
	PrimaryIP       string           `yaml:"primary_ip,omitempty" json:"primary_ip,omitempty" validate:"omitempty,ip|cidr"`
	Serial          string           `yaml:"serial,omitempty" json:"serial,omitempty"`
	Role            string           `yaml:"role,omitempty" json:"role,omitempty"`
	Site            string           `yaml:"site,omitempty" json:"site,omitempty"`
	Secret          string           `yaml:"secret,omitempty" json:"secret,omitempty"`
	Controllers     []Controller     `yaml:"controllers,omitempty" json:"controllers,omitempty" validate:"dive"`
	ControllerGroup *ControllerGroup `yaml:"controller_group,omitempty" json:"controller_group,omitempty"`
	Attributes      map[string]any   `yaml:"attributes,omitempty" json:"attributes,omitempty"`
	// BackupFile overrides the default backup path.
	BackupFile string `yaml:"backup_file,omitempty" json:"backup_file,omitempty"`

	platform *Platform
}

// PlatformInfo returns the resolved platform, or a bare platform named
// after Device.Platform when the inventory does not define it.
func (d *Device) PlatformInfo() *Platform {
	if d.platform != nil {
		return d.platform
	}
	return &Platform{Name: d.Platform, NetworkDriver: d.Platform}
}

// SetPlatform attaches a resolved platform.
func (d *Device) SetPlatform(p *Platform) {
	d.platform = p
}

// NetworkDriver returns the platform network driver name.
func (d *Device) NetworkDriver() string {
	return d.PlatformInfo().NetworkDriver
}

// Host returns the primary IP without its prefix length.
func (d *Device) Host() string {
	ip, _, _ := strings.Cut(d.PrimaryIP, "/")
	return ip
}

// SecretRef returns the credential reference, defaulting to the name.
func (d *Device) SecretRef() string {
	if d.Secret != "" {
		return d.Secret
	}
	return d.Name
}

// HasControllers reports whether the device is associated with any
// controller.
func (d *Device) HasControllers() bool {
	return d.ControllerGroup != nil || len(d.Controllers) > 0
}

// ControllerURL returns the URL of the controller managing the device.
// A controller group wins; otherwise the last controller whose platform
// name contains kind is used.
func (d *Device) ControllerURL(kind string) string {
	if d.ControllerGroup != nil && d.ControllerGroup.Controller.URL != "" {
		return d.ControllerGroup.Controller.URL
	}
	url := ""
	for _, c := range d.Controllers {
		if strings.Contains(strings.ToLower(c.Platform), strings.ToLower(kind)) {
			url = c.URL
		}
	}
	return url
}

// TemplateData returns the attributes exposed to URI templates as .obj.
// Custom attributes never shadow the built-in fields.
func (d *Device) TemplateData() map[string]any {
	out := make(map[string]any, len(d.Attributes)+6)
	for k, v := range d.Attributes {
		out[k] = v
	}
	out["name"] = d.Name
	out["platform"] = d.Platform
	out["primary_ip"] = d.Host()
	out["serial"] = d.Serial
	out["role"] = d.Role
	out["site"] = d.Site
	return out
}
