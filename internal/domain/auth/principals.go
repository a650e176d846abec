package auth

import "slices"

// PrincipalCollection holds the principals each realm attached to an identity,
// keyed by realm name. Realm order is the order realms were added. The zero
// value is empty and usable. Methods never mutate the receiver.
type PrincipalCollection struct {
	realms  []string
	byRealm map[string][]string
}

// NewPrincipalCollection returns a collection holding principals from a single realm.
func NewPrincipalCollection(realm string, principals ...string) PrincipalCollection {
	return PrincipalCollection{}.With(realm, principals...)
}

// With returns a copy with principals appended to realm's entry. Duplicates
// within a realm are dropped; empty principals are ignored.
func (c PrincipalCollection) With(realm string, principals ...string) PrincipalCollection {
	out := c.clone()
	existing, known := out.byRealm[realm]
	for _, p := range principals {
		if p == "" || slices.Contains(existing, p) {
			continue
		}
		existing = append(existing, p)
	}
	if len(existing) == 0 {
		return out
	}
	if !known {
		out.realms = append(out.realms, realm)
	}
	out.byRealm[realm] = existing
	return out
}

// Merge returns the union of both collections. Entries of other are appended
// per realm; no realm's principals overwrite another's.
func (c PrincipalCollection) Merge(other PrincipalCollection) PrincipalCollection {
	out := c
	for _, realm := range other.realms {
		out = out.With(realm, other.byRealm[realm]...)
	}
	return out
}

func (c PrincipalCollection) clone() PrincipalCollection {
	out := PrincipalCollection{
		realms:  slices.Clone(c.realms),
		byRealm: make(map[string][]string, len(c.byRealm)+1),
	}
	for realm, ps := range c.byRealm {
		out.byRealm[realm] = slices.Clone(ps)
	}
	return out
}

// IsEmpty reports whether no realm contributed a principal.
func (c PrincipalCollection) IsEmpty() bool { return len(c.realms) == 0 }

// RealmNames returns the contributing realms in order.
func (c PrincipalCollection) RealmNames() []string { return slices.Clone(c.realms) }

// FromRealm returns the principals contributed by realm.
func (c PrincipalCollection) FromRealm(realm string) []string {
	return slices.Clone(c.byRealm[realm])
}

// Primary returns the first principal of the first realm, or "".
func (c PrincipalCollection) Primary() string {
	if len(c.realms) == 0 {
		return ""
	}
	return c.byRealm[c.realms[0]][0]
}

// AvailablePrincipal returns realm's own primary principal when it contributed
// one, otherwise the collection's primary principal.
func (c PrincipalCollection) AvailablePrincipal(realm string) string {
	if ps := c.byRealm[realm]; len(ps) > 0 {
		return ps[0]
	}
	return c.Primary()
}

// All returns every distinct principal in realm order.
func (c PrincipalCollection) All() []string {
	var out []string
	for _, realm := range c.realms {
		for _, p := range c.byRealm[realm] {
			if !slices.Contains(out, p) {
				out = append(out, p)
			}
		}
	}
	return out
}

// Contains reports whether any realm contributed principal.
func (c PrincipalCollection) Contains(principal string) bool {
	for _, ps := range c.byRealm {
		if slices.Contains(ps, principal) {
			return true
		}
	}
	return false
}
