// Package permission implements the wildcard permission-implication algebra.
//
// A permission is a colon-delimited sequence of parts ("printer:print:lp1200").
// Each part is a comma-delimited set of tokens ("print,query") or the wildcard
// "*". A granted permission implies a requested one when, part by part, the
// granted token set is a wildcard or a superset of the requested set. Missing
// trailing granted parts behave as wildcards; extra trailing granted parts must
// be wildcards.
package permission

import (
	"slices"
	"strings"

	"github.com/target/gatekeeper/internal/errors"
)

const (
	// PartDelimiter separates permission levels.
	PartDelimiter = ":"
	// TokenDelimiter separates alternatives within a level.
	TokenDelimiter = ","
	// Wildcard matches every token at its level.
	Wildcard = "*"
)

// part is an immutable token set. A part containing the wildcard token is
// fully permissive regardless of any literals listed beside it.
type part struct {
	wildcard bool
	tokens   []string // sorted, deduplicated; empty when wildcard
}

func (p part) containsAll(other part) bool {
	if p.wildcard {
		return true
	}
	if other.wildcard {
		return false
	}
	for _, tok := range other.tokens {
		if _, found := slices.BinarySearch(p.tokens, tok); !found {
			return false
		}
	}
	return true
}

func (p part) String() string {
	if p.wildcard {
		return Wildcard
	}
	return strings.Join(p.tokens, TokenDelimiter)
}

// Permission is a parsed, immutable wildcard permission.
type Permission struct {
	raw   string
	parts []part
}

// Parse builds a Permission. The empty string, empty parts ("a::b") and empty
// tokens ("a:b,,c") are rejected with an invalid_permission error. Matching is
// case-sensitive; surrounding whitespace on tokens is ignored.
func Parse(s string) (Permission, error) {
	if strings.TrimSpace(s) == "" {
		return Permission{}, errors.New(errors.ErrCodeInvalidPermission, "permission must not be empty")
	}

	rawParts := strings.Split(s, PartDelimiter)
	parts := make([]part, 0, len(rawParts))
	for i, rp := range rawParts {
		p, err := parsePart(rp)
		if err != nil {
			return Permission{}, errors.Wrapf(err, errors.ErrCodeInvalidPermission,
				"invalid permission %q at part %d", s, i)
		}
		parts = append(parts, p)
	}
	return Permission{raw: s, parts: parts}, nil
}

// MustParse is Parse for static permissions; it panics on malformed input.
func MustParse(s string) Permission {
	p, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return p
}

// ParseAll parses every string, failing on the first malformed entry.
func ParseAll(raw []string) ([]Permission, error) {
	out := make([]Permission, 0, len(raw))
	for _, s := range raw {
		p, err := Parse(s)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func parsePart(s string) (part, error) {
	if strings.TrimSpace(s) == "" {
		return part{}, errors.New(errors.ErrCodeInvalidPermission, "empty part")
	}
	rawTokens := strings.Split(s, TokenDelimiter)
	tokens := make([]string, 0, len(rawTokens))
	wildcard := false
	for _, rt := range rawTokens {
		tok := strings.TrimSpace(rt)
		if tok == "" {
			return part{}, errors.New(errors.ErrCodeInvalidPermission, "empty token")
		}
		if tok == Wildcard {
			wildcard = true
			continue
		}
		tokens = append(tokens, tok)
	}
	if wildcard {
		return part{wildcard: true}, nil
	}
	slices.Sort(tokens)
	return part{tokens: slices.Compact(tokens)}, nil
}

// Implies reports whether p authorizes requested.
func (p Permission) Implies(requested Permission) bool {
	if len(p.parts) == 0 || len(requested.parts) == 0 {
		return false
	}
	for i, rp := range requested.parts {
		if i >= len(p.parts) {
			// Granted is coarser: remaining requested levels are implied.
			return true
		}
		if !p.parts[i].containsAll(rp) {
			return false
		}
	}
	for _, gp := range p.parts[len(requested.parts):] {
		if !gp.wildcard {
			return false
		}
	}
	return true
}

// Equal reports structural equality: same parts with the same token sets.
// It is meant for deduplication, not for authorization decisions.
func (p Permission) Equal(other Permission) bool {
	return slices.EqualFunc(p.parts, other.parts, func(a, b part) bool {
		return a.wildcard == b.wildcard && slices.Equal(a.tokens, b.tokens)
	})
}

// IsZero reports whether p was never successfully parsed.
func (p Permission) IsZero() bool { return len(p.parts) == 0 }

// String returns the permission as it was written.
func (p Permission) String() string { return p.raw }

// Canonical returns the normalized form (sorted tokens, wildcard-collapsed parts).
func (p Permission) Canonical() string {
	out := make([]string, len(p.parts))
	for i, pt := range p.parts {
		out[i] = pt.String()
	}
	return strings.Join(out, PartDelimiter)
}

// MarshalText renders the permission as written.
func (p Permission) MarshalText() ([]byte, error) {
	return []byte(p.raw), nil
}

// UnmarshalText parses a permission from its textual form.
func (p *Permission) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Implies parses both strings and evaluates granted.Implies(requested).
func Implies(granted, requested string) (bool, error) {
	g, err := Parse(granted)
	if err != nil {
		return false, err
	}
	r, err := Parse(requested)
	if err != nil {
		return false, err
	}
	return g.Implies(r), nil
}

// AnyImplies reports whether any granted permission implies requested.
func AnyImplies(granted []Permission, requested Permission) bool {
	for _, g := range granted {
		if g.Implies(requested) {
			return true
		}
	}
	return false
}

// Dedup removes structurally equal permissions, keeping first occurrences.
func Dedup(perms []Permission) []Permission {
	seen := make(map[string]struct{}, len(perms))
	out := make([]Permission, 0, len(perms))
	for _, p := range perms {
		key := p.Canonical()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, p)
	}
	return out
}
