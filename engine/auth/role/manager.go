package role

import (
	"sync"

	"github.com/vimarsh-ai/vimarsh/engine/auth/user"
	"github.com/vimarsh-ai/vimarsh/engine/core"
)

// Manager maps emails to roles from the allow-lists loaded at startup.
// Mutations are in-memory only and gated to super admins; durable changes
// go through configuration reload.
type Manager struct {
	mu          sync.RWMutex
	admins      map[string]struct{}
	superAdmins map[string]struct{}
}

func NewManager(adminEmails, superAdminEmails []string) *Manager {
	m := &Manager{
		admins:      make(map[string]struct{}, len(adminEmails)),
		superAdmins: make(map[string]struct{}, len(superAdminEmails)),
	}
	for _, email := range adminEmails {
		m.admins[core.NormalizeEmail(email)] = struct{}{}
	}
	for _, email := range superAdminEmails {
		m.superAdmins[core.NormalizeEmail(email)] = struct{}{}
	}
	return m
}

// Role resolves the role for an email, case-insensitively.
func (m *Manager) Role(email string) user.Role {
	normalized := core.NormalizeEmail(email)
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.superAdmins[normalized]; ok {
		return user.RoleSuperAdmin
	}
	if _, ok := m.admins[normalized]; ok {
		return user.RoleAdmin
	}
	return user.RoleUser
}

// Permissions returns the fixed bundle for a role.
func (m *Manager) Permissions(r user.Role) []string {
	return r.Permissions()
}

// AddAdmin grants admin to an email. Super-admin callers only.
func (m *Manager) AddAdmin(actor user.Role, email string) error {
	if actor != user.RoleSuperAdmin {
		return core.NewError(nil, core.CodeInsufficientRole,
			"only super admins may modify the admin list", nil)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.admins[core.NormalizeEmail(email)] = struct{}{}
	return nil
}

// RemoveAdmin revokes admin from an email. Super-admin callers only.
func (m *Manager) RemoveAdmin(actor user.Role, email string) error {
	if actor != user.RoleSuperAdmin {
		return core.NewError(nil, core.CodeInsufficientRole,
			"only super admins may modify the admin list", nil)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.admins, core.NormalizeEmail(email))
	return nil
}
