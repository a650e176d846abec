// Package authroles maps identity-provider groups to roles and roles to permissions.
package authroles

import (
	"fmt"
	"slices"

	"github.com/target/gatekeeper/config"
	domainauth "github.com/target/gatekeeper/internal/domain/auth"
	"github.com/target/gatekeeper/internal/domain/permission"
	"github.com/target/gatekeeper/internal/ports"
)

var _ ports.RoleMapper = (*StaticRoleMapper)(nil)

// StaticRoleMapper maps groups by exact name. It is immutable after construction.
type StaticRoleMapper struct {
	groupRoles  map[string]string
	rolePerms   map[string][]permission.Permission
	defaultRole string
}

// StaticRoleMapperOptions configures a StaticRoleMapper.
type StaticRoleMapperOptions struct {
	GroupRoles      map[string]string   // group -> role
	RolePermissions map[string][]string // role -> permission strings
	DefaultRole     string              // Optional: granted when no group matches
}

// NewStaticRoleMapper parses every role permission up front so a bad mapping fails at startup.
func NewStaticRoleMapper(opts StaticRoleMapperOptions) (*StaticRoleMapper, error) {
	m := &StaticRoleMapper{
		groupRoles:  make(map[string]string, len(opts.GroupRoles)),
		rolePerms:   make(map[string][]permission.Permission, len(opts.RolePermissions)),
		defaultRole: opts.DefaultRole,
	}
	for g, r := range opts.GroupRoles {
		m.groupRoles[g] = r
	}
	for role, raw := range opts.RolePermissions {
		perms, err := permission.ParseAll(raw)
		if err != nil {
			return nil, fmt.Errorf("role %q: %w", role, err)
		}
		m.rolePerms[role] = perms
	}
	return m, nil
}

// FromConfig builds a mapper from the AUTHC_GROUP_ROLES and AUTHC_ROLE_PERMISSIONS settings.
func FromConfig(cfg config.RoleMappingConfig) (*StaticRoleMapper, error) {
	return NewStaticRoleMapper(StaticRoleMapperOptions{
		GroupRoles:      cfg.RolesByGroup(),
		RolePermissions: cfg.PermissionsByRole(),
	})
}

// Roles returns the sorted, distinct roles for groups.
func (m *StaticRoleMapper) Roles(groups []string) []string {
	var out []string
	for _, g := range groups {
		if r, ok := m.groupRoles[g]; ok {
			out = append(out, r)
		}
	}
	if len(out) == 0 && m.defaultRole != "" {
		out = append(out, m.defaultRole)
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// Permissions returns the permissions granted to any of roles.
func (m *StaticRoleMapper) Permissions(roles []string) []permission.Permission {
	var out []permission.Permission
	for _, r := range roles {
		out = append(out, m.rolePerms[r]...)
	}
	return permission.Dedup(out)
}

// Grants maps groups straight to AuthorizationInfo. Extra roles (for example
// read from a token claim) are added before permissions are resolved.
func (m *StaticRoleMapper) Grants(groups []string, extraRoles ...string) domainauth.AuthorizationInfo {
	roles := append(m.Roles(groups), extraRoles...)
	return domainauth.NewAuthorizationInfo(roles, m.Permissions(roles))
}
