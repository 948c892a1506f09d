package model

import "time"

// DefaultPhoto is assigned to accounts created without a profile picture.
const DefaultPhoto = "default.jpg"

// User represents an account record as stored in the `users` table.
// Secrets (password hash, one-time token digests) never leave the server:
// their json tags are "-".
//
// Fields:
//
//	ID                    – primary key identifier of the user.
//	Email                 – unique, lower-cased address.
//	Role                  – name of a row in the roles table.
//	EmailVerified         – set once the verification link was followed.
//	Active                – false after the user deleted their own account.
//	WatchLater            – ids of movies on the user's watch-later list.
//	PasswordChangedAt     – tokens issued before this instant are stale.
//	VerificationTokenHash – SHA-256 digest of the pending verification token.
//	ResetTokenHash        – SHA-256 digest of the pending password reset token.
type User struct {
	ID                    uint64     `json:"id"`
	Name                  string     `json:"name"`
	Email                 string     `json:"email"`
	Photo                 string     `json:"photo"`
	PasswordHash          string     `json:"-"`
	Role                  RoleName   `json:"role"`
	EmailVerified         bool       `json:"emailVerified"`
	Active                bool       `json:"-"`
	WatchLater            []uint64   `json:"watchLater"`
	PasswordChangedAt     *time.Time `json:"-"`
	VerificationTokenHash string     `json:"-"`
	VerificationExpiresAt *time.Time `json:"-"`
	ResetTokenHash        string     `json:"-"`
	ResetExpiresAt        *time.Time `json:"-"`
	CreatedAt             time.Time  `json:"createdAt"`
	UpdatedAt             time.Time  `json:"updatedAt"`
}

// ChangedPasswordAfter reports whether the password was changed after a
// token issued at iat. JWT timestamps carry whole seconds, so a token
// issued in the same second as the change counts as stale.
func (u User) ChangedPasswordAfter(iat time.Time) bool {
	if u.PasswordChangedAt == nil {
		return false
	}
	return u.PasswordChangedAt.Unix() >= iat.Unix()
}

// SessionIssuedAfter returns the issue time for a token that must outlive a
// password change at changedAt: the first whole second after it.
func SessionIssuedAfter(changedAt time.Time) time.Time {
	return changedAt.Truncate(time.Second).Add(time.Second)
}

// Principal returns the authenticated identity view of the user.
func (u User) Principal() Principal {
	return Principal{ID: u.ID, Role: u.Role, EmailVerified: u.EmailVerified}
}

// Principal is the identity attached to a request once its session token
// has been verified. It is rebuilt from the users table on every request.
type Principal struct {
	ID            uint64
	Role          RoleName
	EmailVerified bool
}

// UserPatch lists the mutable profile fields. Nil means "leave unchanged".
type UserPatch struct {
	Name  *string
	Email *string
	Photo *string
	Role  *RoleName
}

// Empty reports whether the patch changes nothing.
func (p UserPatch) Empty() bool {
	return p.Name == nil && p.Email == nil && p.Photo == nil && p.Role == nil
}

// RoleCount is one bucket of the user statistics.
type RoleCount struct {
	Role  RoleName `json:"role"`
	Count int64    `json:"count"`
}

// UserStats summarises the user base for the admin dashboard.
type UserStats struct {
	Total      int64       `json:"total"`
	Active     int64       `json:"active"`
	Inactive   int64       `json:"inactive"`
	Verified   int64       `json:"verified"`
	Unverified int64       `json:"unverified"`
	ByRole     []RoleCount `json:"byRole"`
}
