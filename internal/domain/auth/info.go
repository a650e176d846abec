package auth

import (
	"slices"

	"github.com/target/gatekeeper/internal/domain/permission"
)

// AuthenticationInfo is what a realm returns after verifying a token.
type AuthenticationInfo struct {
	Principals PrincipalCollection
	// Credentials is the stored credential material the realm matched against. Optional.
	Credentials []byte
}

// CredentialsMergePolicy picks the credentials kept when two results merge.
type CredentialsMergePolicy func(current, next []byte) []byte

// KeepFirstCredentials keeps the first non-empty credential value.
func KeepFirstCredentials(current, next []byte) []byte {
	if len(current) > 0 {
		return current
	}
	return next
}

// Merge accumulates principals from next. A nil policy keeps the first non-empty credentials.
func (a AuthenticationInfo) Merge(next AuthenticationInfo, policy CredentialsMergePolicy) AuthenticationInfo {
	if policy == nil {
		policy = KeepFirstCredentials
	}
	return AuthenticationInfo{
		Principals:  a.Principals.Merge(next.Principals),
		Credentials: slices.Clone(policy(a.Credentials, next.Credentials)),
	}
}

// AuthorizationInfo is the role set and permission list granted to a principal by one realm.
type AuthorizationInfo struct {
	Roles       []string                `json:"roles"`
	Permissions []permission.Permission `json:"permissions"`
}

// NewAuthorizationInfo normalizes roles (sorted, deduplicated) and deduplicates permissions.
func NewAuthorizationInfo(roles []string, perms []permission.Permission) AuthorizationInfo {
	r := slices.Clone(roles)
	slices.Sort(r)
	r = slices.Compact(r)
	if len(r) > 0 && r[0] == "" {
		r = r[1:]
	}
	return AuthorizationInfo{Roles: r, Permissions: permission.Dedup(perms)}
}

// HasRole is plain set membership; roles have no implication semantics.
func (a AuthorizationInfo) HasRole(role string) bool {
	return slices.Contains(a.Roles, role)
}

// IsPermitted reports whether any granted permission implies requested.
func (a AuthorizationInfo) IsPermitted(requested permission.Permission) bool {
	return permission.AnyImplies(a.Permissions, requested)
}

// Union combines two grants.
func (a AuthorizationInfo) Union(other AuthorizationInfo) AuthorizationInfo {
	return NewAuthorizationInfo(
		append(slices.Clone(a.Roles), other.Roles...),
		append(slices.Clone(a.Permissions), other.Permissions...),
	)
}

// IsEmpty reports whether nothing is granted.
func (a AuthorizationInfo) IsEmpty() bool {
	return len(a.Roles) == 0 && len(a.Permissions) == 0
}
