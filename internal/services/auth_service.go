package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/yukikurage/observation-record-api/internal/constants"
	"github.com/yukikurage/observation-record-api/internal/models"
	"github.com/yukikurage/observation-record-api/internal/observability"
	"github.com/yukikurage/observation-record-api/internal/repository"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrUsernameRequired     = errors.New("username is required")
	ErrPasswordRequired     = errors.New("password is required")
	ErrInvalidEmail         = errors.New("invalid email address")
	ErrUsernameTaken        = errors.New("username already exists")
	ErrEmailTaken           = errors.New("email already exists")
	ErrAccountConflict      = errors.New("username or email already exists")
	ErrInvalidCredentials   = errors.New("invalid username or password")
	ErrFailedToHashPassword = errors.New("failed to hash password")
)

// AuthService is the credential store: registration with salted bcrypt hashes
// and password verification.
type AuthService struct {
	userRepo repository.UserRepository
	metrics  *observability.Metrics
	cost     int

	// dummyHash is compared against when the user does not exist so that an
	// unknown username costs the same as a wrong password.
	dummyHash []byte
}

// NewAuthService creates a new AuthService.
func NewAuthService(userRepo repository.UserRepository, metrics *observability.Metrics) *AuthService {
	return NewAuthServiceWithCost(userRepo, metrics, bcrypt.DefaultCost)
}

// NewAuthServiceWithCost creates an AuthService hashing with the given bcrypt cost.
func NewAuthServiceWithCost(userRepo repository.UserRepository, metrics *observability.Metrics, cost int) *AuthService {
	dummy, err := bcrypt.GenerateFromPassword([]byte("not-a-real-password"), cost)
	if err != nil {
		panic(fmt.Sprintf("bcrypt: %v", err))
	}
	return &AuthService{
		userRepo:  userRepo,
		metrics:   metrics,
		cost:      cost,
		dummyHash: dummy,
	}
}

// RegisterInput represents the information needed to create a user.
type RegisterInput struct {
	Username string
	Password string
	Email    string
	Nickname string
}

// Register validates the input, hashes the password and stores the user. The
// nickname defaults to the username.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (*models.User, error) {
	username := strings.TrimSpace(input.Username)
	email := strings.TrimSpace(input.Email)
	nickname := strings.TrimSpace(input.Nickname)

	if username == "" {
		return nil, ErrUsernameRequired
	}
	if input.Password == "" {
		return nil, ErrPasswordRequired
	}
	if len(email) < constants.MinEmailLength || !strings.Contains(email, "@") {
		return nil, ErrInvalidEmail
	}
	if nickname == "" {
		nickname = username
	}

	taken, err := s.userRepo.UsernameExists(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("failed to check username: %w", err)
	}
	if taken {
		return nil, ErrUsernameTaken
	}
	taken, err = s.userRepo.EmailExists(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}
	if taken {
		return nil, ErrEmailTaken
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(input.Password), s.cost)
	if err != nil {
		return nil, ErrFailedToHashPassword
	}

	user := &models.User{
		Username:     username,
		PasswordHash: string(hashedPassword),
		Email:        email,
		Nickname:     nickname,
	}

	// The pre-checks race with concurrent registrations; the unique
	// constraints decide.
	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrConstraintViolation) {
			return nil, fmt.Errorf("%w: %w", ErrAccountConflict, err)
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return user, nil
}

// Authenticate verifies credentials and returns the user. An unknown username
// and a wrong password both return ErrInvalidCredentials after a full bcrypt
// comparison.
func (s *AuthService) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	user, err := s.userRepo.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
			s.metrics.AuthFailures.Inc()
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.metrics.AuthFailures.Inc()
		return nil, ErrInvalidCredentials
	}

	return user, nil
}
