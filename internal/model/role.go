package model

import (
	"fmt"
	"strings"
	"time"
)

// RoleName identifies a role. The three built-in roles are constants; any
// other value must exist in the roles table to be valid.
type RoleName string

const (
	RoleClient     RoleName = "client"
	RoleAdmin      RoleName = "admin"
	RoleSuperAdmin RoleName = "super-admin"
)

// SeedRoles are created by the migrations and can be neither renamed nor deleted.
var SeedRoles = []RoleName{RoleClient, RoleAdmin, RoleSuperAdmin}

// NormalizeRoleName trims and lower-cases a role name.
func NormalizeRoleName(s string) RoleName {
	return RoleName(strings.ToLower(strings.TrimSpace(s)))
}

// IsSeed reports whether r is one of the built-in roles.
func (r RoleName) IsSeed() bool {
	for _, s := range SeedRoles {
		if r == s {
			return true
		}
	}
	return false
}

// IsStaff reports whether r is admin or super-admin.
func (r RoleName) IsStaff() bool { return r == RoleAdmin || r == RoleSuperAdmin }

// Permission is a capability a role can grant.
type Permission string

const (
	PermRead   Permission = "read"
	PermWrite  Permission = "write"
	PermDelete Permission = "delete"
	PermAdmin  Permission = "admin"
)

var permissions = map[Permission]bool{
	PermRead:   true,
	PermWrite:  true,
	PermDelete: true,
	PermAdmin:  true,
}

// ParsePermissions validates raw permission strings against the closed set
// and removes duplicates while keeping the input order.
func ParsePermissions(raw []string) ([]Permission, error) {
	out := make([]Permission, 0, len(raw))
	seen := make(map[Permission]bool, len(raw))
	for _, s := range raw {
		p := Permission(strings.ToLower(strings.TrimSpace(s)))
		if !permissions[p] {
			return nil, fmt.Errorf("invalid permission %q", s)
		}
		if seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out, nil
}

// Role mirrors the `roles` table.
type Role struct {
	ID          uint64       `json:"id"`
	Name        RoleName     `json:"name"`
	Description string       `json:"description"`
	Permissions []Permission `json:"permissions"`
	CreatedAt   time.Time    `json:"-"`
}

// RolePatch lists the mutable role fields.
type RolePatch struct {
	Name        *RoleName
	Description *string
	Permissions []Permission // nil = unchanged
}

// RoleStat is a role together with the number of users holding it.
type RoleStat struct {
	ID          uint64       `json:"id"`
	Name        RoleName     `json:"name"`
	Description string       `json:"description"`
	Permissions []Permission `json:"permissions"`
	UserCount   int64        `json:"userCount"`
}
