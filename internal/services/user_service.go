package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/churchhub/churchhub-api/internal/apperr"
	"github.com/churchhub/churchhub-api/internal/models"
	"github.com/churchhub/churchhub-api/internal/usercache"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// UserService handles administrative owner provisioning. Webhook-driven
// owner creation lives in WebhookService; this is the operator path.
type UserService struct {
	db    *gorm.DB
	users *usercache.Cache
}

func NewUserService(db *gorm.DB, users *usercache.Cache) *UserService {
	return &UserService{db: db, users: users}
}

type ProvisionUserInput struct {
	Username    string
	Email       string
	DisplayName string
	CalUserID   *int64
	// Optional initial portal password, stored bcrypt-hashed for the
	// auth service to verify against.
	Password    string
	Preferences map[string]interface{}
}

// Provision creates a user, or updates the existing record when the
// username is already taken (reprovisioning an owner). The user-cache
// entry for the Cal id is invalidated so webhook ingestion picks up the
// new mapping.
func (s *UserService) Provision(in ProvisionUserInput) (*models.User, error) {
	if in.Username == "" || in.Email == "" {
		return nil, fmt.Errorf("username and email are required: %w", apperr.ErrBadInput)
	}

	var hashed string
	if in.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, err
		}
		hashed = string(hash)
	}

	var user models.User
	err := s.db.First(&user, "username = ?", in.Username).Error
	switch {
	case err == nil:
		updates := map[string]interface{}{
			"email":        in.Email,
			"display_name": in.DisplayName,
			"is_active":    true,
		}
		if in.CalUserID != nil {
			updates["cal_user_id"] = *in.CalUserID
		}
		if hashed != "" {
			updates["password"] = hashed
		}
		if len(in.Preferences) > 0 {
			updates["preferences"] = datatypes.JSONMap(mergeMetadata(user.Preferences, in.Preferences))
		}
		if err := s.db.Model(&user).Updates(updates).Error; err != nil {
			return nil, err
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		user = models.User{
			CalUserID:   in.CalUserID,
			Username:    in.Username,
			Email:       in.Email,
			DisplayName: in.DisplayName,
			Password:    hashed,
			IsActive:    true,
			Preferences: in.Preferences,
		}
		if err := s.db.Create(&user).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return nil, fmt.Errorf("user %q: %w", in.Username, apperr.ErrAlreadyExists)
			}
			return nil, err
		}
	default:
		return nil, err
	}

	if in.CalUserID != nil {
		s.users.Invalidate(context.Background(), *in.CalUserID)
	}
	return &user, nil
}
