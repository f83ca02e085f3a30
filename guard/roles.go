package guard

import (
	"strings"

	"github.com/MrEthical07/hrdesk/session"
)

// RoleSet is an immutable allow-list of normalized roles. The zero value is
// empty and admits every role.
type RoleSet struct {
	names []string
}

// Roles builds a RoleSet. Names are uppercased and de-duplicated; blanks are
// dropped. Input order is kept.
func Roles(names ...string) RoleSet {
	var out []string
	for _, n := range names {
		n = strings.ToUpper(strings.TrimSpace(n))
		if n == "" || containsName(out, n) {
			continue
		}
		out = append(out, n)
	}
	return RoleSet{names: out}
}

// Empty reports whether the set has no roles.
func (r RoleSet) Empty() bool { return len(r.names) == 0 }

// Contains reports whether role, normalized, is in the set. A blank role is
// normalized to session.DefaultRole first.
func (r RoleSet) Contains(role string) bool {
	return containsName(r.names, session.NormalizeRole(role))
}

// Names returns a copy of the roles in insertion order.
func (r RoleSet) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

func (r RoleSet) String() string {
	return strings.Join(r.names, ",")
}

func containsName(names []string, n string) bool {
	for _, v := range names {
		if v == n {
			return true
		}
	}
	return false
}
