package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
	"golang.org/x/text/unicode/norm"

	"github.com/saas-project/saas/internal/platform/httpx"
	"github.com/saas-project/saas/internal/shared"
)

// EventRecorder counts authentication outcomes.
type EventRecorder interface {
	RecordAuth(action, outcome string)
}

type noopRecorder struct{}

func (noopRecorder) RecordAuth(string, string) {}

// ServiceConfig collects the collaborators of Service.
type ServiceConfig struct {
	Hasher       *PasswordHasher
	Access       *TokenIssuer
	Refresh      *TokenIssuer
	RefreshStore RefreshTokenStore
	Events       EventRecorder
	Logger       *slog.Logger
}

// Service wraps authentication business rules.
type Service struct {
	repo     Repository
	hasher   *PasswordHasher
	access   *TokenIssuer
	refresh  *TokenIssuer
	store    RefreshTokenStore
	events   EventRecorder
	logger   *slog.Logger
	validate *validator.Validate
	inflight singleflight.Group
}

// NewService constructs a new Service.
func NewService(repo Repository, cfg ServiceConfig) *Service {
	if cfg.Hasher == nil {
		cfg.Hasher = DefaultPasswordHasher()
	}
	if cfg.Events == nil {
		cfg.Events = noopRecorder{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Service{
		repo:     repo,
		hasher:   cfg.Hasher,
		access:   cfg.Access,
		refresh:  cfg.Refresh,
		store:    cfg.RefreshStore,
		events:   cfg.Events,
		logger:   cfg.Logger,
		validate: validator.New(),
	}
}

// RegisterInput is the payload accepted by Register.
type RegisterInput struct {
	Email    string  `json:"email" validate:"required,email,max=254"`
	Password string  `json:"password" validate:"required,min=8,max=128"`
	Name     *string `json:"name,omitempty" validate:"omitempty,max=100"`
}

// LoginInput is the payload accepted by Login.
type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Register creates an active account and signs it in.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*User, Tokens, error) {
	in.Email = normalizeEmail(in.Email)
	in.Name = normalizeName(in.Name)
	if err := s.check(in); err != nil {
		s.events.RecordAuth("register", "invalid")
		return nil, Tokens{}, err
	}
	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, Tokens{}, err
	}
	user := &User{
		ID:           uuid.New(),
		Email:        in.Email,
		Name:         in.Name,
		PasswordHash: hash,
		IsActive:     true,
	}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			s.events.RecordAuth("register", "duplicate")
		}
		return nil, Tokens{}, fmt.Errorf("auth: register: %w", err)
	}
	tokens, err := s.issuePair(ctx, user.ID)
	if err != nil {
		return nil, Tokens{}, err
	}
	s.events.RecordAuth("register", "success")
	return user, tokens, nil
}

// Authenticate validates email/password credentials. Every failure, including
// an unknown email or an inactive account, is reported as invalid credentials.
// Hashes from older schemes or parameters are upgraded on success.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	user, err := s.repo.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, httpx.ErrNotFound) {
			return nil, shared.ErrInvalidCredentials
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, shared.ErrInvalidCredentials
	}
	ok, err := s.hasher.Verify(password, user.PasswordHash)
	if err != nil || !ok {
		return nil, shared.ErrInvalidCredentials
	}
	if s.hasher.NeedsRehash(user.PasswordHash) {
		s.rehash(ctx, user, password)
	}
	return user, nil
}

func (s *Service) rehash(ctx context.Context, user *User, password string) {
	hash, err := s.hasher.Hash(password)
	if err == nil {
		err = s.repo.UpdatePasswordHash(ctx, user.ID, hash)
	}
	if err != nil {
		s.logger.Warn("upgrade password hash", slog.String("user_id", user.ID.String()), slog.Any("error", err))
		return
	}
	user.PasswordHash = hash
}

// Login authenticates and issues an access/refresh token pair.
func (s *Service) Login(ctx context.Context, in LoginInput) (*User, Tokens, error) {
	if err := s.check(in); err != nil {
		s.events.RecordAuth("login", "invalid")
		return nil, Tokens{}, err
	}
	user, err := s.Authenticate(ctx, in.Email, in.Password)
	if err != nil {
		if errors.Is(err, shared.ErrInvalidCredentials) {
			s.events.RecordAuth("login", "failure")
			return nil, Tokens{}, ErrBadCredentials
		}
		return nil, Tokens{}, fmt.Errorf("auth: login: %w", err)
	}
	tokens, err := s.issuePair(ctx, user.ID)
	if err != nil {
		return nil, Tokens{}, err
	}
	s.events.RecordAuth("login", "success")
	return user, tokens, nil
}

// IssueTokens signs userID in with a fresh access/refresh pair.
func (s *Service) IssueTokens(ctx context.Context, userID uuid.UUID) (Tokens, error) {
	return s.issuePair(ctx, userID)
}

type refreshResult struct {
	user   *User
	tokens Tokens
}

// Refresh issues a new access token for a valid refresh token. Concurrent
// calls with the same token share one lookup, which is detached from any
// single caller's cancellation; each caller still stops waiting when its own
// ctx is done.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*User, Tokens, error) {
	if refreshToken == "" {
		return nil, Tokens{}, ErrMissingRefreshToken
	}
	detached := context.WithoutCancel(ctx)
	ch := s.inflight.DoChan(refreshToken, func() (any, error) {
		return s.refreshOnce(detached, refreshToken)
	})
	var out singleflight.Result
	select {
	case <-ctx.Done():
		return nil, Tokens{}, ctx.Err()
	case out = <-ch:
	}
	if out.Err != nil {
		s.events.RecordAuth("refresh", "failure")
		return nil, Tokens{}, out.Err
	}
	res := out.Val.(refreshResult)
	s.events.RecordAuth("refresh", "success")
	return res.user, res.tokens, nil
}

func (s *Service) refreshOnce(ctx context.Context, refreshToken string) (refreshResult, error) {
	subject, err := s.refresh.Parse(refreshToken)
	if err != nil {
		return refreshResult{}, ErrInvalidRefreshToken
	}
	owner, err := s.store.Lookup(ctx, refreshToken)
	if err != nil {
		return refreshResult{}, err
	}
	if owner != subject {
		return refreshResult{}, ErrInvalidRefreshToken
	}
	user, err := s.repo.FindByID(ctx, owner)
	if err != nil {
		if errors.Is(err, httpx.ErrNotFound) {
			return refreshResult{}, ErrInvalidRefreshToken
		}
		return refreshResult{}, fmt.Errorf("auth: refresh: %w", err)
	}
	if !user.IsActive {
		return refreshResult{}, ErrInvalidRefreshToken
	}
	access, expires, err := s.access.Issue(user.ID)
	if err != nil {
		return refreshResult{}, err
	}
	return refreshResult{user: user, tokens: Tokens{Access: access, AccessExpires: expires}}, nil
}

// Logout revokes the refresh token.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return ErrMissingRefreshToken
	}
	if err := s.store.Revoke(ctx, refreshToken); err != nil {
		return err
	}
	s.events.RecordAuth("logout", "success")
	return nil
}

// VerifyAccess returns the user id carried by a valid access token.
func (s *Service) VerifyAccess(token string) (uuid.UUID, error) {
	return s.access.Parse(token)
}

// CurrentUser resolves the active account behind an access token.
func (s *Service) CurrentUser(ctx context.Context, accessToken string) (*User, error) {
	id, err := s.access.Parse(accessToken)
	if err != nil {
		return nil, err
	}
	return s.UserByID(ctx, id)
}

// UserByID loads an active account. Missing or inactive accounts are reported
// as an invalid token.
func (s *Service) UserByID(ctx context.Context, id uuid.UUID) (*User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, httpx.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, ErrInvalidToken
	}
	return user, nil
}

// RegisterSession persists the session metadata in postgres.
func (s *Service) RegisterSession(ctx context.Context, id string, userID uuid.UUID, expiresAt time.Time, ip, ua string) error {
	return s.repo.CreateSession(ctx, id, userID, expiresAt, ip, ua)
}

// RemoveSession deletes a session record from postgres.
func (s *Service) RemoveSession(ctx context.Context, id string) error {
	return s.repo.DeleteSession(ctx, id)
}

// PurgeExpiredSessions drops session records that expired more than retention ago.
func (s *Service) PurgeExpiredSessions(ctx context.Context, now time.Time, retention time.Duration) (int64, error) {
	return s.repo.PurgeSessions(ctx, now.Add(-retention))
}

func (s *Service) issuePair(ctx context.Context, userID uuid.UUID) (Tokens, error) {
	access, accessExp, err := s.access.Issue(userID)
	if err != nil {
		return Tokens{}, err
	}
	refresh, refreshExp, err := s.refresh.Issue(userID)
	if err != nil {
		return Tokens{}, err
	}
	if err := s.store.Save(ctx, refresh, userID, s.refresh.TTL()); err != nil {
		return Tokens{}, err
	}
	return Tokens{Access: access, AccessExpires: accessExp, Refresh: refresh, RefreshExpires: refreshExp}, nil
}

func (s *Service) check(v any) error {
	err := s.validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	fields := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		fields = append(fields, strings.ToLower(fe.Field())+" "+fe.Tag())
	}
	sort.Strings(fields)
	return httpx.NewError(httpx.ErrValidation, "invalid fields: "+strings.Join(fields, ", "))
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func normalizeName(name *string) *string {
	if name == nil {
		return nil
	}
	trimmed := norm.NFC.String(strings.TrimSpace(*name))
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
