package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-erp-api/internal/models"
)

type userRepository interface {
	List(ctx context.Context) ([]models.User, error)
	ListByRole(ctx context.Context, role models.Role) ([]models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// UserService lists login accounts. Accounts are created by seeding and credential generation.
type UserService struct {
	repo   userRepository
	logger *zap.Logger
}

// NewUserService creates an instance of UserService.
func NewUserService(repo userRepository, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{repo: repo, logger: logger}
}

// List returns accounts, optionally restricted to one role.
func (s *UserService) List(ctx context.Context, role string) ([]models.User, error) {
	var (
		users []models.User
		err   error
	)
	if role == "" {
		users, err = s.repo.List(ctx)
	} else {
		r, parseErr := models.ParseRole(role)
		if parseErr != nil {
			return nil, fieldError("invalid role filter", "role", "role must be Admin, Teacher, Student or Finance")
		}
		users, err = s.repo.ListByRole(ctx, r)
	}
	if err != nil {
		return nil, translateErr(err, "", "failed to list users")
	}
	return users, nil
}

// Get returns a user by ID.
func (s *UserService) Get(ctx context.Context, id string) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, translateErr(err, "user not found", "failed to load user")
	}
	return user, nil
}
