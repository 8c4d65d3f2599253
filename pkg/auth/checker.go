package auth

import (
	"errors"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/newtron-network/ctrlcfg/pkg/util"
)

// PolicyFile is the access policy file name inside the inventory directory.
const PolicyFile = "access.yaml"

// Policy maps permissions to the users and groups holding them. Platform
// entries are checked before the global ones.
type Policy struct {
	SuperUsers  []string                       `yaml:"superusers"`
	UserGroups  map[string][]string            `yaml:"user_groups"`
	Permissions map[string][]string            `yaml:"permissions"`
	Platforms   map[string]map[string][]string `yaml:"platforms"`
}

// LoadPolicy reads a policy file. A missing file yields a nil policy,
// which allows everything.
func LoadPolicy(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p := &Policy{}
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return p, nil
}

// Checker validates user permissions
type Checker struct {
	policy      *Policy
	currentUser string
}

// NewChecker creates a permission checker for username. A nil policy
// allows every user everything.
func NewChecker(policy *Policy, username string) *Checker {
	return &Checker{policy: policy, currentUser: util.CoalesceString(username, "unknown")}
}

// SetUser overrides the current user
func (c *Checker) SetUser(username string) {
	c.currentUser = username
}

// CurrentUser returns the current username
func (c *Checker) CurrentUser() string {
	return c.currentUser
}

// Check verifies if the current user has a permission
func (c *Checker) Check(permission Permission, ctx *Context) error {
	return c.CheckUser(c.currentUser, permission, ctx)
}

// CheckUser verifies if a specific user has a permission
func (c *Checker) CheckUser(username string, permission Permission, ctx *Context) error {
	if c.policy == nil || c.isSuperUser(username) {
		return nil
	}

	// Platform-specific permissions first
	if ctx != nil && ctx.Platform != "" {
		if perms, ok := c.policy.Platforms[ctx.Platform]; ok && c.checkPermissionMap(username, permission, perms) {
			return nil
		}
	}

	if c.checkPermissionMap(username, permission, c.policy.Permissions) {
		return nil
	}

	return &PermissionError{
		User:       username,
		Permission: permission,
		Context:    ctx,
	}
}

// IsSuperUser returns true if the current user is a superuser
func (c *Checker) IsSuperUser() bool {
	return c.policy == nil || c.isSuperUser(c.currentUser)
}

func (c *Checker) isSuperUser(username string) bool {
	return slices.Contains(c.policy.SuperUsers, username)
}

// checkPermissionMap checks the "all" wildcard key, then the specific
// permission key.
func (c *Checker) checkPermissionMap(username string, permission Permission, permMap map[string][]string) bool {
	if groups, ok := permMap[string(PermAll)]; ok && c.userInGroups(username, groups) {
		return true
	}
	groups, ok := permMap[string(permission)]
	return ok && c.userInGroups(username, groups)
}

func (c *Checker) userInGroups(username string, allowedGroups []string) bool {
	for _, group := range allowedGroups {
		if group == username {
			return true
		}
		if slices.Contains(c.policy.UserGroups[group], username) {
			return true
		}
	}
	return false
}

// ListPermissions returns the global permissions of the current user, in
// the order of Permissions.
func (c *Checker) ListPermissions() []Permission {
	if c.IsSuperUser() {
		return []Permission{PermAll}
	}
	var perms []Permission
	for _, p := range Permissions {
		if c.checkPermissionMap(c.currentUser, p, c.policy.Permissions) {
			perms = append(perms, p)
		}
	}
	return perms
}

// PermissionError represents a permission denial
type PermissionError struct {
	User       string
	Permission Permission
	Context    *Context
}

func (e *PermissionError) Error() string {
	msg := fmt.Sprintf("permission denied: user '%s' does not have '%s' permission", e.User, e.Permission)
	if e.Context != nil {
		if e.Context.Platform != "" {
			msg += fmt.Sprintf(" for platform '%s'", e.Context.Platform)
		}
		if e.Context.Device != "" {
			msg += fmt.Sprintf(" on device '%s'", e.Context.Device)
		}
	}
	return msg
}

func (e *PermissionError) Unwrap() error {
	return util.ErrPermissionDenied
}
