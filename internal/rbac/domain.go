package rbac

import (
	"sort"
	"time"
)

// SentinelAll is the storage-level marker for an unrestricted grant set. It is
// only interpreted by the grant set codec; permission names must never use it.
const SentinelAll = "all"

// Permission represents an atomic, named capability.
type Permission struct {
	ID          int64
	Name        string
	Description string
	Category    string
	CreatedAt   time.Time
}

// Role represents a named bundle of permissions.
type Role struct {
	ID           int64
	Name         string
	Description  string
	Unrestricted bool
	IsSystem     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Assignment ties a permission to a role.
type Assignment struct {
	RoleID       int64
	PermissionID int64
	AssignedAt   time.Time
}

// GrantSet describes what a role is allowed to do. It is either unrestricted
// (every permission in the registry, present and future) or an explicit set of
// permission names. The zero value is an empty explicit set.
type GrantSet struct {
	unrestricted bool
	names        map[string]struct{}
}

// Unrestricted returns the grant set covering the whole registry.
func Unrestricted() GrantSet {
	return GrantSet{unrestricted: true}
}

// Explicit returns a grant set containing exactly the given permission names.
func Explicit(names ...string) GrantSet {
	set := make(map[string]struct{}, len(names))
	for _, name := range names {
		if name == "" {
			continue
		}
		set[name] = struct{}{}
	}
	return GrantSet{names: set}
}

// GrantSetFromNames decodes a stored permission-name list. The sentinel value
// anywhere in the list makes the whole set unrestricted.
func GrantSetFromNames(names []string) GrantSet {
	for _, name := range names {
		if name == SentinelAll {
			return Unrestricted()
		}
	}
	return Explicit(names...)
}

// IsUnrestricted reports whether the set covers the whole registry.
func (g GrantSet) IsUnrestricted() bool {
	return g.unrestricted
}

// Has reports whether the set grants the named permission.
func (g GrantSet) Has(name string) bool {
	if g.unrestricted {
		return name != ""
	}
	_, ok := g.names[name]
	return ok
}

// Names returns the explicit permission names in sorted order. It returns nil
// for an unrestricted set; resolution against the registry happens at check
// time, not here.
func (g GrantSet) Names() []string {
	if g.unrestricted || len(g.names) == 0 {
		return nil
	}
	names := make([]string, 0, len(g.names))
	for name := range g.names {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of explicit grants; zero for unrestricted sets.
func (g GrantSet) Len() int {
	if g.unrestricted {
		return 0
	}
	return len(g.names)
}
