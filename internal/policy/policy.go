// Package policy holds the authorization rules that depend on more than the
// caller's role: ownership of a review, who may hand out which role and when
// a role or genre is still referenced. Every function returns nil when the
// action is allowed and an *apperr.Error otherwise.
package policy

import (
	"github.com/iliyamo/scydb-api/internal/apperr"
	"github.com/iliyamo/scydb-api/internal/model"
)

const (
	msgNoPermission = "You do not have permission to perform this action"
	msgReviewOwner  = "You can only modify your own reviews"
)

// CanModifyReview allows the review author and staff.
func CanModifyReview(p model.Principal, r model.Review) error {
	if p.Role.IsStaff() || r.UserID == p.ID {
		return nil
	}
	return apperr.Forbidden(msgReviewOwner)
}

// CheckRoleAssignment decides whether p may set a user's role to requested.
// exists tells whether requested is present in the role registry.
func CheckRoleAssignment(p model.Principal, requested model.RoleName, exists bool) error {
	if p.Role != model.RoleSuperAdmin {
		return apperr.Forbidden("Only super-admin can change user roles")
	}
	if !exists {
		return apperr.BadRequest("invalid role")
	}
	return nil
}

// CheckRoleToggle decides whether p may flip target between client and admin.
func CheckRoleToggle(p model.Principal, target model.User) error {
	if p.Role != model.RoleSuperAdmin {
		return apperr.Forbidden(msgNoPermission)
	}
	if target.Role == model.RoleSuperAdmin {
		return apperr.Forbidden("Cannot change super-admin role")
	}
	return nil
}

// ToggledRole returns the role a toggle moves the user to.
func ToggledRole(current model.RoleName) model.RoleName {
	if current == model.RoleAdmin {
		return model.RoleClient
	}
	return model.RoleAdmin
}

// CheckRoleDeletion refuses to delete seed roles and roles still held by users.
func CheckRoleDeletion(r model.Role, holders int64) error {
	if r.Name.IsSeed() {
		return apperr.Conflict("Cannot delete default roles")
	}
	if holders > 0 {
		return apperr.Conflict("Cannot delete role that is assigned to users")
	}
	return nil
}

// CheckRoleRename refuses to rename a seed role. Keeping the same name is allowed.
func CheckRoleRename(r model.Role, newName model.RoleName) error {
	if r.Name.IsSeed() && newName != r.Name {
		return apperr.Conflict("Cannot rename default roles")
	}
	return nil
}

// CheckGenreDeletion refuses to delete a genre used by any movie.
func CheckGenreDeletion(g model.Genre, movies int64) error {
	if movies > 0 {
		return apperr.Conflict("Cannot delete genre that is used by movies")
	}
	return nil
}

// CheckUserEdit stops anyone below super-admin from editing another staff
// account's profile.
func CheckUserEdit(p model.Principal, target model.User) error {
	if p.Role == model.RoleSuperAdmin || p.ID == target.ID || !target.Role.IsStaff() {
		return nil
	}
	return apperr.Forbidden("Only super-admin can modify staff accounts")
}

// CheckUserDeletion allows only super-admins to hard-delete accounts.
func CheckUserDeletion(p model.Principal) error {
	if p.Role != model.RoleSuperAdmin {
		return apperr.Forbidden("Only super-admin can delete users")
	}
	return nil
}
