package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/ZMukhammadRizo/lms-alfa-sub003/internal/shared"
	"github.com/ZMukhammadRizo/lms-alfa-sub003/internal/users"
)

// Service wraps authentication business rules.
type Service struct {
	repo      Repository
	directory users.Directory
	logger    *slog.Logger
}

// NewService constructs a new Service.
func NewService(repo Repository, directory users.Directory, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, directory: directory, logger: logger}
}

// SignInWithPassword validates email/password credentials.
func (s *Service) SignInWithPassword(ctx context.Context, email, password string) (*User, error) {
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	return user, nil
}

// GetUser returns the user joined with its role and parent role.
func (s *Service) GetUser(ctx context.Context, id int64) (users.Profile, error) {
	return s.directory.Profile(ctx, id)
}

// UpdateUser changes email and/or password. Failures are reported in the
// Result rather than as an error so callers can show them as-is.
func (s *Service) UpdateUser(ctx context.Context, id int64, email, password string) shared.Result {
	email = strings.TrimSpace(email)
	if email == "" && password == "" {
		return shared.Failed("nothing to update")
	}
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return shared.Failed("user not found")
		}
		s.logger.Error("update user lookup", slog.Int64("user_id", id), slog.Any("error", err))
		return shared.Failed("could not update user")
	}
	if email != "" {
		if err := s.repo.UpdateEmail(ctx, id, email); err != nil {
			if errors.Is(err, ErrEmailTaken) {
				return shared.Failed("email already in use")
			}
			s.logger.Error("update email", slog.Int64("user_id", id), slog.Any("error", err))
			return shared.Failed("could not update email")
		}
	}
	if password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return shared.Failed("could not update password")
		}
		if err := s.repo.UpdatePasswordHash(ctx, id, string(hash)); err != nil {
			s.logger.Error("update password", slog.Int64("user_id", id), slog.Any("error", err))
			return shared.Failed("could not update password")
		}
	}
	return shared.Succeeded("profile updated")
}

// RegisterSession persists the session metadata in postgres.
func (s *Service) RegisterSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	return s.repo.CreateSession(ctx, id, userID, expiresAt, ip, ua)
}

// RemoveSession deletes a session record from postgres.
func (s *Service) RemoveSession(ctx context.Context, id string) error {
	return s.repo.DeleteSession(ctx, id)
}
