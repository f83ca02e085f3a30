package guard

import (
	"sort"
	"strings"
)

// Matrix maps route prefixes to role allow-lists. The longest matching
// prefix wins; a path with no match needs only authentication.
type Matrix struct {
	rules []rule
}

type rule struct {
	prefix string
	roles  RoleSet
}

// NewMatrix builds a Matrix from prefix → roles. Prefixes are cleaned of
// trailing slashes except for the root.
func NewMatrix(rules map[string][]string) Matrix {
	m := Matrix{rules: make([]rule, 0, len(rules))}
	for prefix, roles := range rules {
		m.rules = append(m.rules, rule{prefix: cleanPrefix(prefix), roles: Roles(roles...)})
	}
	sort.Slice(m.rules, func(i, j int) bool {
		if len(m.rules[i].prefix) != len(m.rules[j].prefix) {
			return len(m.rules[i].prefix) > len(m.rules[j].prefix)
		}
		return m.rules[i].prefix < m.rules[j].prefix
	})
	return m
}

// Allowed returns the allow-list for path.
func (m Matrix) Allowed(path string) RoleSet {
	for _, r := range m.rules {
		if matchPrefix(path, r.prefix) {
			return r.roles
		}
	}
	return RoleSet{}
}

// Prefixes lists the configured prefixes, longest first.
func (m Matrix) Prefixes() []string {
	out := make([]string, 0, len(m.rules))
	for _, r := range m.rules {
		out = append(out, r.prefix)
	}
	return out
}

func cleanPrefix(p string) string {
	p = strings.TrimSpace(p)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 {
		p = strings.TrimRight(p, "/")
		if p == "" {
			p = "/"
		}
	}
	return p
}

// matchPrefix matches whole path segments, so /leave does not match /leaves.
func matchPrefix(path, prefix string) bool {
	if prefix == "/" {
		return true
	}
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	return len(path) == len(prefix) || path[len(prefix)] == '/'
}
