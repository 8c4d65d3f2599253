// Package auth provides permission-based access control over backup,
// remediation and push runs.
package auth

// Permission defines an action that can be controlled
type Permission string

// Standard permissions
const (
	PermBackup    Permission = "backup"
	PermRemediate Permission = "remediate"
	PermPush      Permission = "push"
	PermAuditView Permission = "audit.view"

	PermAll Permission = "all" // Superuser - allows everything
)

// Permissions lists every permission except PermAll.
var Permissions = []Permission{PermBackup, PermRemediate, PermPush, PermAuditView}

// Context provides context for permission checks
type Context struct {
	Device   string
	Platform string
}

// NewContext creates a new permission context
func NewContext() *Context {
	return &Context{}
}

// WithDevice sets the device context
func (c *Context) WithDevice(device string) *Context {
	c.Device = device
	return c
}

// WithPlatform sets the network driver context
func (c *Context) WithPlatform(platform string) *Context {
	c.Platform = platform
	return c
}

// IsReadOnly returns true if the permission never changes a device
func (p Permission) IsReadOnly() bool {
	return p != PermPush && p != PermAll
}
