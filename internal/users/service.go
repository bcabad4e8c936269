package users

import (
	"context"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	Directory
	ListUsers(ctx context.Context) ([]Profile, error)
}

// Service handles user business logic.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// ListUsers returns all users.
func (s *Service) ListUsers(ctx context.Context) ([]Profile, error) {
	return s.repo.ListUsers(ctx)
}

// Profile returns a single user.
func (s *Service) Profile(ctx context.Context, id int64) (Profile, error) {
	return s.repo.Profile(ctx, id)
}
