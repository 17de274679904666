package account

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"classroll/internal/apperr"
	"classroll/internal/auth"
	"classroll/internal/validate"
)

var (
	ErrNotFound    = apperr.NotFound("user not found")
	ErrEmailExists = apperr.New(apperr.KindConflict, "a user with this email already exists")

	errBadCredentials = apperr.Unauthenticated("invalid email or password")
)

// User is a registered account.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Role         auth.Role `json:"role"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Store persists users.
type Store interface {
	CreateUser(ctx context.Context, u User) error
	UserByEmail(ctx context.Context, email string) (User, error)
	UserByID(ctx context.Context, id string) (User, error)
}

// Service registers and authenticates accounts.
type Service struct {
	store Store
	cost  int
}

// NewService creates a service with the default bcrypt cost.
func NewService(store Store) *Service {
	return &Service{store: store, cost: bcrypt.DefaultCost}
}

// WithCost overrides the bcrypt cost; tests use bcrypt.MinCost.
func (s *Service) WithCost(cost int) *Service {
	s.cost = cost
	return s
}

// NewUser is the input to Register.
type NewUser struct {
	Name     string `json:"name" validate:"notblank,max=120"`
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=6,max=72"`
	Role     string `json:"role" validate:"oneof=FACULTY STUDENT"`
}

// Register creates an account.
func (s *Service) Register(ctx context.Context, name, email, password, role string) (User, error) {
	nu := NewUser{
		Name:     strings.TrimSpace(name),
		Email:    strings.ToLower(strings.TrimSpace(email)),
		Password: password,
		Role:     strings.ToUpper(strings.TrimSpace(role)),
	}
	if err := validate.Struct(nu); err != nil {
		return User{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(nu.Password), s.cost)
	if err != nil {
		return User{}, apperr.Wrap(apperr.KindInternal, "hash password", err)
	}
	u := User{
		ID:           uuid.NewString(),
		Name:         nu.Name,
		Email:        nu.Email,
		Role:         auth.Role(nu.Role),
		PasswordHash: string(hash),
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		return User{}, err
	}
	return u, nil
}

// Login verifies credentials and returns the account.
func (s *Service) Login(ctx context.Context, email, password string) (User, error) {
	u, err := s.store.UserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return User{}, errBadCredentials
		}
		return User{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return User{}, errBadCredentials
	}
	return u, nil
}

// Get returns the account with id.
func (s *Service) Get(ctx context.Context, id string) (User, error) {
	return s.store.UserByID(ctx, id)
}
