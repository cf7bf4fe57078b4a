package labels

import (
	"fmt"
	"sort"
)

// Role identifies a semantic document field.
type Role string

const (
	RoleIDNumber Role = "id_number"
	RoleName     Role = "name"
	RoleLastName Role = "lastname"
)

// KnownRoles lists the roles a document deployment can fill.
var KnownRoles = []Role{RoleIDNumber, RoleName, RoleLastName}

// RoleMap assigns detector class names to field roles. The assignment is
// explicit; class names are never inspected for meaning.
type RoleMap struct {
	byClass map[string]Role
}

// NewRoleMap builds a RoleMap from role -> class name pairs.
func NewRoleMap(classes map[Role]string) (RoleMap, error) {
	byClass := make(map[string]Role, len(classes))
	for role, class := range classes {
		if !role.Known() {
			return RoleMap{}, fmt.Errorf("unknown field role %q", role)
		}
		if class == "" {
			return RoleMap{}, fmt.Errorf("field role %q has no class name", role)
		}
		if prev, dup := byClass[class]; dup {
			return RoleMap{}, fmt.Errorf("class %q assigned to both %q and %q", class, prev, role)
		}
		byClass[class] = role
	}
	return RoleMap{byClass: byClass}, nil
}

// DefaultRoleMap assigns each role to the class of the same short name.
func DefaultRoleMap() RoleMap {
	m, _ := NewRoleMap(map[Role]string{RoleIDNumber: "id", RoleName: "name", RoleLastName: "lastname"})
	return m
}

// RoleOf returns the role bound to class.
func (m RoleMap) RoleOf(class string) (Role, bool) {
	r, ok := m.byClass[class]
	return r, ok
}

// Classes returns the class names that carry a role, sorted.
func (m RoleMap) Classes() []string {
	out := make([]string, 0, len(m.byClass))
	for c := range m.byClass {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Known reports whether r is a recognised role.
func (r Role) Known() bool {
	for _, k := range KnownRoles {
		if r == k {
			return true
		}
	}
	return false
}
