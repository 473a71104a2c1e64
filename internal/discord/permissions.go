package discord

import (
	"slices"
	"sync"
)

// PermissionChecker validates that a member holds the role required for
// commands that change a guild's sound library. The role can be swapped at
// runtime when the configuration is reloaded.
type PermissionChecker struct {
	mu     sync.RWMutex
	roleID string
}

// NewPermissionChecker creates a PermissionChecker requiring roleID.
func NewPermissionChecker(roleID string) *PermissionChecker {
	return &PermissionChecker{roleID: roleID}
}

// SetRole replaces the required role.
func (p *PermissionChecker) SetRole(roleID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.roleID = roleID
}

// CanManage reports whether inv's author may add or delete sounds. An empty
// role allows everyone.
func (p *PermissionChecker) CanManage(inv *Invocation) bool {
	p.mu.RLock()
	roleID := p.roleID
	p.mu.RUnlock()

	if roleID == "" {
		return true
	}
	return slices.Contains(inv.Roles, roleID)
}
