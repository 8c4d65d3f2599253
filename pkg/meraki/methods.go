// Package meraki maps Dashboard API "object.method" names, as written in
// config contexts, to their HTTP routes.
//
// The table is static: an unknown name is rejected when a config context
// is validated, before any backup or remediation starts.
package meraki

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// DefaultAPIPath is appended to the Dashboard URL.
const DefaultAPIPath = "api/v1"

// Method is one Dashboard API operation.
type Method struct {
	Key        string
	HTTPMethod string
	Path       string
}

var pathParam = regexp.MustCompile(`\{([A-Za-z0-9_]+)\}`)

// PathParams returns the placeholder names in Path, in order.
func (m Method) PathParams() []string {
	matches := pathParam.FindAllStringSubmatch(m.Path, -1)
	out := make([]string, 0, len(matches))
	for _, match := range matches {
		out = append(out, match[1])
	}
	return out
}

// BuildPath fills the path placeholders from values, matching names
// case-insensitively.
func (m Method) BuildPath(values map[string]string) (string, error) {
	var missing []string
	path := pathParam.ReplaceAllStringFunc(m.Path, func(ph string) string {
		name := ph[1 : len(ph)-1]
		for k, v := range values {
			if strings.EqualFold(k, name) && v != "" {
				return v
			}
		}
		missing = append(missing, name)
		return ph
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("%s needs %s", m.Key, strings.Join(missing, ", "))
	}
	return path, nil
}

// Lookup returns the method registered under key.
func Lookup(key string) (Method, bool) {
	m, ok := Methods[key]
	return m, ok
}

// Keys returns every registered method name, sorted.
func Keys() []string {
	out := make([]string, 0, len(Methods))
	for k := range Methods {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func method(key, verb, path string) Method {
	return Method{Key: key, HTTPMethod: verb, Path: path}
}

// Methods is the Dashboard operation table.
var Methods = func() map[string]Method {
	list := []Method{
		// organizations
		method("organizations.getOrganizations", "GET", "organizations"),
		method("organizations.getOrganization", "GET", "organizations/{organizationId}"),
		method("organizations.updateOrganization", "PUT", "organizations/{organizationId}"),
		method("organizations.getOrganizationNetworks", "GET", "organizations/{organizationId}/networks"),
		method("organizations.getOrganizationDevices", "GET", "organizations/{organizationId}/devices"),
		method("organizations.getOrganizationAdmins", "GET", "organizations/{organizationId}/admins"),
		method("organizations.getOrganizationSnmp", "GET", "organizations/{organizationId}/snmp"),
		method("organizations.updateOrganizationSnmp", "PUT", "organizations/{organizationId}/snmp"),
		method("organizations.getOrganizationLoginSecurity", "GET", "organizations/{organizationId}/loginSecurity"),
		method("organizations.updateOrganizationLoginSecurity", "PUT", "organizations/{organizationId}/loginSecurity"),

		// networks
		method("networks.getNetwork", "GET", "networks/{networkId}"),
		method("networks.updateNetwork", "PUT", "networks/{networkId}"),
		method("networks.getNetworkSyslogServers", "GET", "networks/{networkId}/syslogServers"),
		method("networks.updateNetworkSyslogServers", "PUT", "networks/{networkId}/syslogServers"),
		method("networks.getNetworkSnmp", "GET", "networks/{networkId}/snmp"),
		method("networks.updateNetworkSnmp", "PUT", "networks/{networkId}/snmp"),
		method("networks.getNetworkAlertsSettings", "GET", "networks/{networkId}/alerts/settings"),
		method("networks.updateNetworkAlertsSettings", "PUT", "networks/{networkId}/alerts/settings"),
		method("networks.getNetworkFirmwareUpgrades", "GET", "networks/{networkId}/firmwareUpgrades"),
		method("networks.updateNetworkFirmwareUpgrades", "PUT", "networks/{networkId}/firmwareUpgrades"),
		method("networks.getNetworkGroupPolicies", "GET", "networks/{networkId}/groupPolicies"),
		method("networks.getNetworkSettings", "GET", "networks/{networkId}/settings"),
		method("networks.updateNetworkSettings", "PUT", "networks/{networkId}/settings"),

		// devices
		method("devices.getDevice", "GET", "devices/{serial}"),
		method("devices.updateDevice", "PUT", "devices/{serial}"),
		method("devices.getDeviceManagementInterface", "GET", "devices/{serial}/managementInterface"),
		method("devices.updateDeviceManagementInterface", "PUT", "devices/{serial}/managementInterface"),

		// switch
		method("switch.getDeviceSwitchPorts", "GET", "devices/{serial}/switch/ports"),
		method("switch.getDeviceSwitchPort", "GET", "devices/{serial}/switch/ports/{portId}"),
		method("switch.updateDeviceSwitchPort", "PUT", "devices/{serial}/switch/ports/{portId}"),
		method("switch.getDeviceSwitchRoutingInterfaces", "GET", "devices/{serial}/switch/routing/interfaces"),
		method("switch.getNetworkSwitchSettings", "GET", "networks/{networkId}/switch/settings"),
		method("switch.updateNetworkSwitchSettings", "PUT", "networks/{networkId}/switch/settings"),
		method("switch.getNetworkSwitchAccessPolicies", "GET", "networks/{networkId}/switch/accessPolicies"),
		method("switch.getNetworkSwitchStp", "GET", "networks/{networkId}/switch/stp"),
		method("switch.updateNetworkSwitchStp", "PUT", "networks/{networkId}/switch/stp"),

		// appliance
		method("appliance.getNetworkApplianceVlans", "GET", "networks/{networkId}/appliance/vlans"),
		method("appliance.getNetworkApplianceVlan", "GET", "networks/{networkId}/appliance/vlans/{vlanId}"),
		method("appliance.createNetworkApplianceVlan", "POST", "networks/{networkId}/appliance/vlans"),
		method("appliance.updateNetworkApplianceVlan", "PUT", "networks/{networkId}/appliance/vlans/{vlanId}"),
		method("appliance.getNetworkApplianceFirewallL3FirewallRules", "GET", "networks/{networkId}/appliance/firewall/l3FirewallRules"),
		method("appliance.updateNetworkApplianceFirewallL3FirewallRules", "PUT", "networks/{networkId}/appliance/firewall/l3FirewallRules"),
		method("appliance.getNetworkApplianceSettings", "GET", "networks/{networkId}/appliance/settings"),
		method("appliance.updateNetworkApplianceSettings", "PUT", "networks/{networkId}/appliance/settings"),

		// wireless
		method("wireless.getNetworkWirelessSsids", "GET", "networks/{networkId}/wireless/ssids"),
		method("wireless.getNetworkWirelessSsid", "GET", "networks/{networkId}/wireless/ssids/{number}"),
		method("wireless.updateNetworkWirelessSsid", "PUT", "networks/{networkId}/wireless/ssids/{number}"),
		method("wireless.getNetworkWirelessSettings", "GET", "networks/{networkId}/wireless/settings"),
		method("wireless.updateNetworkWirelessSettings", "PUT", "networks/{networkId}/wireless/settings"),
		method("wireless.getNetworkWirelessRfProfiles", "GET", "networks/{networkId}/wireless/rfProfiles"),
	}
	out := make(map[string]Method, len(list))
	for _, m := range list {
		out[m.Key] = m
	}
	return out
}()
