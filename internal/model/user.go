// Package model defines the data structures used throughout the application.
package model

import "time"

// Role values for User.Role. Admins bypass every diagram permission check.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User represents a registered user account.
//
// GitHub OAuth is the identity provider, so the external identifier is the
// GitHub user ID. We still generate our own internal string ID (xid) so
// primary keys are not tied to a third party's numbering scheme.
//
// Email is what diagram shares are addressed to; it can be empty when the
// user hides it on GitHub, in which case only public or owned diagrams are
// reachable.
type User struct {
	ID        string    `json:"id"        db:"id"`
	GitHubID  int64     `json:"githubId"  db:"github_id"` // GitHub's numeric user ID
	Login     string    `json:"login"     db:"login"`     // GitHub username
	Email     string    `json:"email"     db:"email"`     // Primary public email (may be empty)
	Name      string    `json:"fullName"  db:"name"`      // Display name, falls back to Login
	AvatarURL string    `json:"avatarUrl" db:"avatar_url"`
	Role      string    `json:"role"      db:"role"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// IsAdmin reports whether the user holds the administrator role.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// DisplayName is the name shown to collaborators.
func (u *User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.Login
}

// Caller is the identity a service acts on behalf of. Handlers build it from
// the authenticated user; the zero value is an anonymous guest.
type Caller struct {
	UserID string
	Email  string
	Name   string
	Admin  bool
}

// CallerFromUser builds a Caller from a stored user.
func CallerFromUser(u *User) Caller {
	return Caller{
		UserID: u.ID,
		Email:  u.Email,
		Name:   u.DisplayName(),
		Admin:  u.IsAdmin(),
	}
}

// IsGuest reports whether no user is attached.
func (c Caller) IsGuest() bool {
	return c.UserID == ""
}
