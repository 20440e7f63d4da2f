package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"taskify/backend/internal/models"
	"taskify/backend/internal/repositories"
	"taskify/backend/internal/tokens"

	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
)

const (
	nameMinLength = 2
	maxFieldLen   = 255
	msgRequired   = "This field is required."
)

type UserStore interface {
	Create(ctx context.Context, u *models.User) error
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	Update(ctx context.Context, u *models.User, fields ...string) error
}

type PasswordHasher interface {
	Hash(plain string) (string, error)
	Verify(hashed, plain string) bool
	VerifyDummy(plain string)
}

type RegisterInput struct {
	Email           string
	Name            string
	Password        string
	ConfirmPassword string
}

// UpdateProfileInput carries a partial profile update. Nil fields are left alone.
type UpdateProfileInput struct {
	Email           *string
	Name            *string
	Password        *string
	ConfirmPassword *string
}

type LoginResult struct {
	Access    string            `json:"access"`
	Refresh   string            `json:"refresh"`
	User      models.PublicUser `json:"user"`
	TokenType string            `json:"token_type"`
	ExpiresIn int64             `json:"expires_in"`
}

type AuthService struct {
	users     UserStore
	hasher    PasswordHasher
	policy    *PasswordPolicy
	tokens    *tokens.Manager
	authCache *AuthCache
	blacklist *TokenBlacklist
	validate  *validator.Validate
	logger    *slog.Logger
}

func NewAuthService(
	users UserStore,
	hasher PasswordHasher,
	policy *PasswordPolicy,
	tokenManager *tokens.Manager,
	authCache *AuthCache,
	blacklist *TokenBlacklist,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		hasher:    hasher,
		policy:    policy,
		tokens:    tokenManager,
		authCache: authCache,
		blacklist: blacklist,
		validate:  validator.New(),
		logger:    logger,
	}
}

// NormalizeEmail trims and lower-cases an address so lookups and the unique
// index agree on identity.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *AuthService) checkName(verr *ValidationError, name string) {
	n := utf8.RuneCountInString(strings.TrimSpace(name))
	switch {
	case n == 0:
		verr.Add("name", msgRequired)
	case n < nameMinLength:
		verr.Add("name", fmt.Sprintf("Ensure this field has at least %d characters.", nameMinLength))
	case n > maxFieldLen:
		verr.Add("name", fmt.Sprintf("Ensure this field has no more than %d characters.", maxFieldLen))
	}
}

func (s *AuthService) checkPassword(verr *ValidationError, password, confirm, email, name string) {
	if password != confirm {
		verr.Add("password", "Passwords do not match")
	}
	for _, msg := range s.policy.Check(password, email, name) {
		verr.Add("password", msg)
	}
}

func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	email := NormalizeEmail(in.Email)
	name := strings.TrimSpace(in.Name)

	verr := &ValidationError{}
	switch {
	case email == "":
		verr.Add("email", msgRequired)
	case len(email) > maxFieldLen || s.validate.Var(email, "email") != nil:
		verr.Add("email", "Enter a valid email address.")
	}
	s.checkName(verr, name)
	switch {
	case in.Password == "":
		verr.Add("password", msgRequired)
	case in.ConfirmPassword == "":
		verr.Add("confirm_password", msgRequired)
	default:
		s.checkPassword(verr, in.Password, in.ConfirmPassword, email, name)
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	if _, err := s.users.FindByEmail(ctx, email); err == nil {
		return nil, &ConflictError{Field: "email", Err: ErrEmailTaken}
	} else if !errors.Is(err, repositories.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	hashed, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		Email:    email,
		Name:     name,
		Password: hashed,
		IsActive: true,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repositories.ErrDuplicateEmail) {
			return nil, &ConflictError{Field: "email", Err: ErrEmailTaken}
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.authCache.Forget(ctx, email)
	s.logger.Info("user registered", "user_id", user.ID)
	return user, nil
}

// Login verifies credentials and issues a token pair. An unknown email and a
// wrong password fail with the same AuthorizationError.
func (s *AuthService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email = NormalizeEmail(email)

	verr := &ValidationError{}
	if email == "" {
		verr.Add("email", msgRequired)
	}
	if password == "" {
		verr.Add("password", msgRequired)
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	user, err := s.verifyCached(ctx, email, password)
	if err != nil {
		return nil, err
	}
	if user == nil {
		user, err = s.verify(ctx, email, password)
		if err != nil {
			return nil, err
		}
	}

	if !user.IsActive {
		s.authCache.Forget(ctx, email)
		return nil, &AuthorizationError{Err: ErrAccountDisabled}
	}

	pair, err := s.tokens.IssuePair(user.ID, user.Email)
	if err != nil {
		return nil, err
	}

	return &LoginResult{
		Access:    pair.Access,
		Refresh:   pair.Refresh,
		User:      user.Public(),
		TokenType: "Bearer",
		ExpiresIn: int64(s.tokens.AccessTTL().Seconds()),
	}, nil
}

// verifyCached returns the user when a cache entry vouches for this exact
// password and stored hash. It returns nil, nil when the full check must run.
func (s *AuthService) verifyCached(ctx context.Context, email, password string) (*models.User, error) {
	entry, ok := s.authCache.Lookup(ctx, email)
	if !ok {
		return nil, nil
	}

	user, err := s.users.FindByID(ctx, entry.UserID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			s.authCache.Forget(ctx, email)
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	if user.Email != email || !s.authCache.Matches(entry, email, user.Password, password) {
		return nil, nil
	}
	return user, nil
}

func (s *AuthService) verify(ctx context.Context, email, password string) (*models.User, error) {
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, repositories.ErrNotFound) {
			return nil, fmt.Errorf("failed to load user: %w", err)
		}
		s.hasher.VerifyDummy(password)
		return nil, &AuthorizationError{Err: ErrInvalidCredentials}
	}

	if !s.hasher.Verify(user.Password, password) {
		return nil, &AuthorizationError{Err: ErrInvalidCredentials}
	}

	if user.IsActive {
		s.authCache.Remember(ctx, email, user.ID, user.Password, password)
	}
	return user, nil
}

// Refresh exchanges a live, unrevoked refresh token for a new access token.
// The refresh token itself is not rotated.
func (s *AuthService) Refresh(ctx context.Context, refresh string) (string, error) {
	if strings.TrimSpace(refresh) == "" {
		return "", NewValidationError("refresh", msgRequired)
	}

	claims, err := s.tokens.ParseRefresh(refresh)
	if err != nil {
		return "", &AuthorizationError{Err: ErrTokenInvalid}
	}

	revoked, err := s.blacklist.IsRevoked(ctx, claims.ID)
	if err != nil {
		return "", err
	}
	if revoked {
		return "", &AuthorizationError{Err: ErrTokenRevoked}
	}

	userID, err := claims.UserID()
	if err != nil {
		return "", &AuthorizationError{Err: ErrTokenInvalid}
	}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return "", &AuthorizationError{Err: ErrTokenInvalid}
		}
		return "", fmt.Errorf("failed to load user: %w", err)
	}
	if !user.IsActive {
		return "", &AuthorizationError{Err: ErrAccountDisabled}
	}

	access, _, err := s.tokens.IssueAccess(user.ID, user.Email)
	if err != nil {
		return "", err
	}
	return access, nil
}

// Logout blacklists a refresh token. A missing, malformed or already revoked
// token is a client error.
func (s *AuthService) Logout(ctx context.Context, refresh string) error {
	if strings.TrimSpace(refresh) == "" {
		return NewValidationError("refresh", "Refresh token required")
	}

	claims, err := s.tokens.ParseRefresh(refresh)
	if err != nil {
		return NewValidationError("refresh", "Token is invalid or expired")
	}

	if err := s.blacklist.Revoke(ctx, claims); err != nil {
		if errors.Is(err, ErrTokenRevoked) || errors.Is(err, ErrTokenInvalid) {
			return NewValidationError("refresh", "Token is blacklisted")
		}
		return err
	}

	s.logger.Info("refresh token revoked", "user_id", claims.Subject)
	return nil
}

// Profile loads the caller's own record. A caller whose account vanished or
// was disabled after the token was issued is treated as unauthenticated.
func (s *AuthService) Profile(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, &AuthenticationError{Err: ErrUserNotFound}
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if !user.IsActive {
		return nil, &AuthenticationError{Err: ErrAccountDisabled}
	}
	return user, nil
}

func (s *AuthService) UpdateProfile(ctx context.Context, userID uuid.UUID, in UpdateProfileInput) (*models.User, error) {
	user, err := s.Profile(ctx, userID)
	if err != nil {
		return nil, err
	}

	verr := &ValidationError{}
	if in.Email != nil && NormalizeEmail(*in.Email) != user.Email {
		verr.Add("email", "Email cannot be changed.")
	}

	var fields []string
	name := user.Name
	if in.Name != nil {
		name = strings.TrimSpace(*in.Name)
		s.checkName(verr, name)
		fields = append(fields, "name")
	}

	if in.Password != nil {
		confirm := ""
		if in.ConfirmPassword != nil {
			confirm = *in.ConfirmPassword
		}
		if *in.Password == "" {
			verr.Add("password", "This field may not be blank.")
		} else {
			s.checkPassword(verr, *in.Password, confirm, user.Email, name)
		}
	} else if in.ConfirmPassword != nil {
		verr.Add("password", "Passwords do not match")
	}

	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	user.Name = name
	if in.Password != nil {
		hashed, err := s.hasher.Hash(*in.Password)
		if err != nil {
			return nil, err
		}
		user.Password = hashed
		fields = append(fields, "password")
	}

	if len(fields) == 0 {
		return user, nil
	}

	if err := s.users.Update(ctx, user, fields...); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, &AuthenticationError{Err: ErrUserNotFound}
		}
		return nil, fmt.Errorf("failed to update user: %w", err)
	}

	s.authCache.Forget(ctx, user.Email)
	return user, nil
}
