package auth

import (
	"time"

	"github.com/google/uuid"

	"github.com/saas-project/saas/apitypes"
	"github.com/saas-project/saas/internal/platform/httpx"
)

// User represents an authenticated user account.
type User struct {
	ID           uuid.UUID
	Email        string
	Name         *string
	PasswordHash string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// APIUser converts the account to its published shape.
func (u *User) APIUser() apitypes.User {
	out := apitypes.User{ID: u.ID.String(), Email: u.Email}
	if u.Name != nil {
		name := *u.Name
		out.Name = &name
	}
	return out
}

// Tokens holds a freshly issued token pair. Refresh is empty when only the
// access token was renewed.
type Tokens struct {
	Access         string
	AccessExpires  time.Time
	Refresh        string
	RefreshExpires time.Time
}

// Client-facing failures.
var (
	ErrEmailTaken          = httpx.NewError(httpx.ErrDuplicate, "email already registered")
	ErrMissingRefreshToken = httpx.NewError(httpx.ErrUnauthorized, "missing refresh token")
	ErrInvalidRefreshToken = httpx.NewError(httpx.ErrUnauthorized, "invalid refresh token")
	ErrMissingToken        = httpx.NewError(httpx.ErrUnauthorized, "missing access token")
	ErrInvalidToken        = httpx.NewError(httpx.ErrUnauthorized, "invalid token")
	ErrExpiredToken        = httpx.NewError(httpx.ErrUnauthorized, "token expired")
	ErrBadCredentials      = httpx.NewError(httpx.ErrUnauthorized, "invalid credentials")
)
