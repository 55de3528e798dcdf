package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// User is a schedule owner (pastor). Created either by administrative
// provisioning or on the first webhook-observed booking from an unseen
// Cal user.
type User struct {
	ID          uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	CalUserID   *int64            `gorm:"uniqueIndex" json:"cal_user_id,omitempty"`
	Username    string            `gorm:"not null;size:255;uniqueIndex" json:"username"`
	Email       string            `gorm:"not null;size:255" json:"email"`
	DisplayName string            `gorm:"size:255" json:"display_name"`
	// Password is an optional bcrypt hash consumed by the portal auth
	// service; never set for webhook-created users.
	Password    string            `gorm:"size:255" json:"-"`
	IsActive    bool              `gorm:"default:true" json:"is_active"`
	Preferences datatypes.JSONMap `json:"preferences,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

func (User) TableName() string {
	return "users"
}
