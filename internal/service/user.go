package service

import (
	"context"
	"log/slog"
	"strings"

	"github.com/sakif/opensource-hub/internal/apperror"
	"github.com/sakif/opensource-hub/internal/model"
	"github.com/sakif/opensource-hub/internal/repository"
)

// MaxBioLength caps the profile bio.
const MaxBioLength = 500

type UserService struct {
	users  repository.UserRepository
	logger *slog.Logger
}

func NewUserService(users repository.UserRepository, logger *slog.Logger) *UserService {
	return &UserService{users: users, logger: logger}
}

func (s *UserService) Get(ctx context.Context, userID string) (*model.User, error) {
	return s.users.GetUserByID(ctx, userID)
}

// Update applies a partial profile update and returns the updated user.
//
// === VALIDATION ===
// name, when sent, must not be blank; bio is capped at MaxBioLength;
// avatarUrl must be an http(s) URL.
func (s *UserService) Update(ctx context.Context, userID string, upd model.UserUpdate) (*model.User, error) {
	if upd.Name != nil {
		trimmed := strings.TrimSpace(*upd.Name)
		if trimmed == "" {
			return nil, apperror.ValidationFailed("name", "name cannot be empty")
		}
		upd.Name = &trimmed
	}
	if upd.Bio != nil && len(*upd.Bio) > MaxBioLength {
		return nil, apperror.ValidationFailed("bio", "bio is too long")
	}
	if upd.AvatarURL != nil && !isHTTPURL(*upd.AvatarURL) {
		return nil, apperror.ValidationFailed("avatarUrl", "avatarUrl must be an http(s) URL")
	}

	user, err := s.users.UpdateProfile(ctx, userID, upd)
	if err != nil {
		return nil, err
	}
	s.logger.Info("profile updated", slog.String("userID", userID))
	return user, nil
}

// Delete removes the user and, through cascading foreign keys, their
// accounts, projects, votes and bookmarks.
func (s *UserService) Delete(ctx context.Context, userID string) error {
	if err := s.users.DeleteUser(ctx, userID); err != nil {
		return err
	}
	s.logger.Info("user deleted", slog.String("userID", userID))
	return nil
}

func (s *UserService) ListSkills(ctx context.Context) ([]model.Skill, error) {
	return s.users.ListSkills(ctx)
}
