package dashboard

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/saas-project/saas/apitypes"
	"github.com/saas-project/saas/internal/auth"
	"github.com/saas-project/saas/internal/platform/httpx"
	"github.com/saas-project/saas/internal/shared"
)

// Guard modes accepted by NewChecker.
const (
	ModeOff     = "off"
	ModeSession = "session"
	ModeToken   = "token"
)

// Decision is the outcome of an access check.
type Decision struct {
	Allowed   bool
	Principal *apitypes.User
}

// Allow admits the request, optionally naming who made it.
func Allow(principal *apitypes.User) Decision {
	return Decision{Allowed: true, Principal: principal}
}

// Deny sends the request to the login entry point.
func Deny() Decision {
	return Decision{}
}

// Checker decides whether a request may see dashboard content. An error means
// the decision could not be made.
type Checker interface {
	Check(ctx context.Context, r *http.Request) (Decision, error)
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc func(ctx context.Context, r *http.Request) (Decision, error)

// Check calls f.
func (f CheckerFunc) Check(ctx context.Context, r *http.Request) (Decision, error) {
	return f(ctx, r)
}

// Passthrough admits every request without consulting any state.
type Passthrough struct{}

// Check always allows.
func (Passthrough) Check(context.Context, *http.Request) (Decision, error) {
	return Allow(nil), nil
}

// UserLoader resolves active accounts by id. *auth.Service satisfies it.
type UserLoader interface {
	UserByID(ctx context.Context, id uuid.UUID) (*auth.User, error)
}

// TokenAuthenticator resolves the account behind an access token.
// *auth.Service satisfies it.
type TokenAuthenticator interface {
	CurrentUser(ctx context.Context, accessToken string) (*auth.User, error)
}

// SessionChecker admits requests whose browser session is bound to an active
// account.
type SessionChecker struct {
	Users UserLoader
}

// Check reads the session placed in the context by the session middleware.
func (c SessionChecker) Check(ctx context.Context, r *http.Request) (Decision, error) {
	raw := strings.TrimSpace(shared.SessionFromContext(ctx).User())
	if raw == "" {
		return Deny(), nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return Deny(), nil
	}
	return resolve(c.Users.UserByID(ctx, id))
}

// TokenChecker admits requests carrying a valid access token, either as a
// bearer header or in the access cookie.
type TokenChecker struct {
	Tokens TokenAuthenticator
}

// Check verifies the request's access token.
func (c TokenChecker) Check(ctx context.Context, r *http.Request) (Decision, error) {
	token := auth.AccessTokenFromRequest(r)
	if token == "" {
		return Deny(), nil
	}
	return resolve(c.Tokens.CurrentUser(ctx, token))
}

func resolve(user *auth.User, err error) (Decision, error) {
	if err != nil {
		if errors.Is(err, httpx.ErrUnauthorized) {
			return Deny(), nil
		}
		return Deny(), err
	}
	principal := user.APIUser()
	return Allow(&principal), nil
}

// ParseMode normalises a guard mode name.
func ParseMode(mode string) (string, error) {
	mode = strings.ToLower(strings.TrimSpace(mode))
	switch mode {
	case "":
		return ModeOff, nil
	case ModeOff, ModeSession, ModeToken:
		return mode, nil
	default:
		return "", fmt.Errorf("dashboard: unknown guard mode %q", mode)
	}
}

// NewChecker returns the checker for mode. svc may be nil for ModeOff.
func NewChecker(mode string, svc *auth.Service) (Checker, error) {
	mode, err := ParseMode(mode)
	if err != nil {
		return nil, err
	}
	switch mode {
	case ModeSession:
		if svc == nil {
			return nil, errors.New("dashboard: session guard needs the auth service")
		}
		return SessionChecker{Users: svc}, nil
	case ModeToken:
		if svc == nil {
			return nil, errors.New("dashboard: token guard needs the auth service")
		}
		return TokenChecker{Tokens: svc}, nil
	default:
		return Passthrough{}, nil
	}
}
