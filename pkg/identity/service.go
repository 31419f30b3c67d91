package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/pulseboard/platform/pkg/common/models"
	"golang.org/x/crypto/bcrypt"
)

const (
	RoleAdmin  = "admin"
	RoleViewer = "viewer"
)

var (
	ErrBootstrapNotAllowed = errors.New("dashboard already bootstrapped")
	ErrInvalidCredentials  = errors.New("invalid credentials")
)

type Service struct {
	repo *Repository
}

func NewService(repo *Repository) *Service {
	return &Service{repo: repo}
}

// Bootstrap creates the first account with admin rights. It only works
// while the user table is empty.
func (s *Service) Bootstrap(ctx context.Context, req models.BootstrapRequest) (models.User, error) {
	count, err := s.repo.CountUsers(ctx)
	if err != nil {
		return models.User{}, err
	}
	if count > 0 {
		return models.User{}, ErrBootstrapNotAllowed
	}
	if req.Email == "" || req.Password == "" {
		return models.User{}, fmt.Errorf("email and password required")
	}

	return s.createUser(ctx, strings.TrimSpace(req.Email), req.Name, RoleAdmin, req.Password)
}

func (s *Service) createUser(ctx context.Context, email, name, role, password string) (models.User, error) {
	if password == "" {
		return models.User{}, fmt.Errorf("password required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return models.User{}, err
	}

	return s.repo.CreateUser(ctx, CreateUserInput{
		Email:        email,
		Name:         name,
		Role:         role,
		PasswordHash: string(hash),
	})
}

// RegisterUser lets an admin add teammates. New accounts default to the
// read-only viewer role.
func (s *Service) RegisterUser(ctx context.Context, actor models.User, req models.RegisterRequest) (models.User, error) {
	if actor.Role != RoleAdmin {
		return models.User{}, fmt.Errorf("insufficient permissions")
	}
	role := req.Role
	if role == "" {
		role = RoleViewer
	}
	if role != RoleAdmin && role != RoleViewer {
		return models.User{}, fmt.Errorf("unknown role %q", role)
	}
	return s.createUser(ctx, strings.TrimSpace(req.Email), req.Name, role, req.Password)
}

func (s *Service) Authenticate(ctx context.Context, email, password string) (models.User, error) {
	user, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return models.User{}, ErrInvalidCredentials
		}
		return models.User{}, err
	}
	if password == "" {
		return models.User{}, ErrInvalidCredentials
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return models.User{}, ErrInvalidCredentials
	}

	return user, nil
}

func (s *Service) GetUser(ctx context.Context, id uuid.UUID) (models.User, error) {
	return s.repo.GetUserByID(ctx, id)
}

func (s *Service) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	return s.repo.GetUserByEmail(ctx, email)
}
