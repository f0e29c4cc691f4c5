package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"
	"golang.org/x/text/unicode/norm"

	"github.com/hanko-field/storefront/internal/platform/auth"
	"github.com/hanko-field/storefront/internal/repositories"
)

const (
	minPasswordLength = 6
	maxPasswordLength = 72
	maxNameLength     = 80
)

var (
	errUserRepositoryRequired = errors.New("user service: repository is required")
	errUserTokensRequired     = errors.New("user service: token issuer is required")
	errUserHasherRequired     = errors.New("user service: password hasher is required")
	errUserClockRequired      = errors.New("user service: clock is required")
)

var (
	// ErrUserInvalidInput indicates a malformed signup, login or profile request.
	ErrUserInvalidInput = errors.New("user service: invalid input")
	// ErrUserExists indicates the email address is already registered.
	ErrUserExists = errors.New("user service: user already exists")
	// ErrUserInvalidCredentials indicates an unknown email or a wrong password.
	ErrUserInvalidCredentials = errors.New("user service: invalid credentials")
	// ErrUserNotFound indicates the authenticated user no longer exists.
	ErrUserNotFound = errors.New("user service: user not found")
	// ErrUserUnavailable indicates a backend failure.
	ErrUserUnavailable = errors.New("user service: unavailable")
)

// UserServiceDeps bundles collaborators required to construct a user service.
type UserServiceDeps struct {
	Users       repositories.UserRepository
	Tokens      TokenIssuer
	Passwords   PasswordHasher
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(context.Context, string, map[string]any)
}

type userService struct {
	users     repositories.UserRepository
	tokens    TokenIssuer
	passwords PasswordHasher
	now       func() time.Time
	newID     func() string
	logger    func(context.Context, string, map[string]any)
}

// NewUserService constructs a UserService enforcing dependency validation.
func NewUserService(deps UserServiceDeps) (UserService, error) {
	switch {
	case deps.Users == nil:
		return nil, errUserRepositoryRequired
	case deps.Tokens == nil:
		return nil, errUserTokensRequired
	case deps.Passwords == nil:
		return nil, errUserHasherRequired
	case deps.Clock == nil:
		return nil, errUserClockRequired
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &userService{
		users:     deps.Users,
		tokens:    deps.Tokens,
		passwords: deps.Passwords,
		now:       func() time.Time { return deps.Clock().UTC() },
		newID:     idGen,
		logger:    logger,
	}, nil
}

func (s *userService) Signup(ctx context.Context, cmd SignupCommand) (AuthResult, error) {
	first, err := normaliseName(cmd.FirstName)
	if err != nil {
		return AuthResult{}, err
	}
	last, err := normaliseName(cmd.LastName)
	if err != nil {
		return AuthResult{}, err
	}
	email, err := normaliseEmail(cmd.Email)
	if err != nil {
		return AuthResult{}, err
	}
	if err := validatePassword(cmd.Password); err != nil {
		return AuthResult{}, err
	}

	hash, err := s.passwords.Hash(cmd.Password)
	if err != nil {
		return AuthResult{}, fmt.Errorf("%w: %v", ErrUserUnavailable, err)
	}
	now := s.now()
	user, err := s.users.Create(ctx, User{
		ID:           s.newID(),
		FirstName:    first,
		LastName:     last,
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		return AuthResult{}, s.translateRepoError(ctx, "user.signup_failed", err)
	}
	s.logger(ctx, "user.signup", map[string]any{"userID": user.ID})
	return s.authResult(user)
}

func (s *userService) Login(ctx context.Context, cmd LoginCommand) (AuthResult, error) {
	email, err := normaliseEmail(cmd.Email)
	if err != nil || cmd.Password == "" {
		return AuthResult{}, ErrUserInvalidCredentials
	}
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if isRepoNotFound(err) {
			return AuthResult{}, ErrUserInvalidCredentials
		}
		return AuthResult{}, s.translateRepoError(ctx, "user.login_failed", err)
	}
	if err := s.passwords.Compare(user.PasswordHash, cmd.Password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return AuthResult{}, ErrUserInvalidCredentials
		}
		return AuthResult{}, fmt.Errorf("%w: %v", ErrUserUnavailable, err)
	}
	return s.authResult(user)
}

func (s *userService) GetProfile(ctx context.Context, userID string) (User, error) {
	if strings.TrimSpace(userID) == "" {
		return User{}, ErrUserInvalidInput
	}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return User{}, s.translateRepoError(ctx, "user.profile_failed", err)
	}
	return user, nil
}

// UpdateProfile applies the supplied fields. Blank values leave the stored value unchanged.
func (s *userService) UpdateProfile(ctx context.Context, cmd UpdateProfileCommand) (AuthResult, error) {
	user, err := s.GetProfile(ctx, cmd.UserID)
	if err != nil {
		return AuthResult{}, err
	}

	if present(cmd.FirstName) {
		if user.FirstName, err = normaliseName(*cmd.FirstName); err != nil {
			return AuthResult{}, err
		}
	}
	if present(cmd.LastName) {
		if user.LastName, err = normaliseName(*cmd.LastName); err != nil {
			return AuthResult{}, err
		}
	}
	if present(cmd.Email) {
		if user.Email, err = normaliseEmail(*cmd.Email); err != nil {
			return AuthResult{}, err
		}
	}
	if cmd.Password != nil && *cmd.Password != "" {
		if err := validatePassword(*cmd.Password); err != nil {
			return AuthResult{}, err
		}
		if user.PasswordHash, err = s.passwords.Hash(*cmd.Password); err != nil {
			return AuthResult{}, fmt.Errorf("%w: %v", ErrUserUnavailable, err)
		}
	}
	user.UpdatedAt = s.now()

	saved, err := s.users.Update(ctx, user)
	if err != nil {
		return AuthResult{}, s.translateRepoError(ctx, "user.update_failed", err)
	}
	return s.authResult(saved)
}

func (s *userService) authResult(user User) (AuthResult, error) {
	token, expires, err := s.tokens.Issue(user.ID, user.Email, user.IsAdmin)
	if err != nil {
		return AuthResult{}, fmt.Errorf("%w: %v", ErrUserUnavailable, err)
	}
	return AuthResult{User: user, Token: token, ExpiresAt: expires}, nil
}

func (s *userService) translateRepoError(ctx context.Context, event string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return ErrUserNotFound
		case repoErr.IsConflict():
			return ErrUserExists
		}
	}
	s.logger(ctx, event, map[string]any{"error": err.Error()})
	return ErrUserUnavailable
}

func present(value *string) bool {
	return value != nil && strings.TrimSpace(*value) != ""
}

// normaliseEmail applies NFKC, trims and lower-cases so visually identical addresses collide.
func normaliseEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(norm.NFKC.String(raw)))
	if email == "" {
		return "", fmt.Errorf("%w: email is required", ErrUserInvalidInput)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%w: email is malformed", ErrUserInvalidInput)
	}
	return email, nil
}

func normaliseName(raw string) (string, error) {
	name := strings.TrimSpace(norm.NFKC.String(raw))
	if name == "" {
		return "", fmt.Errorf("%w: name is required", ErrUserInvalidInput)
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return "", fmt.Errorf("%w: name is too long", ErrUserInvalidInput)
	}
	return name, nil
}

// validatePassword enforces the minimum length; bcrypt ignores bytes past 72.
func validatePassword(password string) error {
	if utf8.RuneCountInString(password) < minPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", ErrUserInvalidInput, minPasswordLength)
	}
	if len(password) > maxPasswordLength {
		return fmt.Errorf("%w: password must be at most %d bytes", ErrUserInvalidInput, maxPasswordLength)
	}
	return nil
}
