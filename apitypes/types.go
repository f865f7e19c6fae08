// Package apitypes holds the request/response shapes shared by every component
// that produces or consumes authentication results.
package apitypes

// PackageName identifies this package in the shared package registry.
const PackageName = "api-types"

// User is an authenticated principal as exposed over the API.
type User struct {
	ID    string  `json:"id"`
	Email string  `json:"email"`
	Name  *string `json:"name"`
}

// AuthResponse pairs an opaque session token with the authenticated user.
type AuthResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// NewUser builds a User. An empty name is stored as absent.
func NewUser(id, email, name string) User {
	u := User{ID: id, Email: email}
	if name != "" {
		u.Name = &name
	}
	return u
}

// DisplayName returns the name or an empty string when absent.
func (u User) DisplayName() string {
	if u.Name == nil {
		return ""
	}
	return *u.Name
}
