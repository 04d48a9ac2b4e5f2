package models

import (
	"context"
	"errors"
	"time"

	"github.com/pipeworks/factory_backend/config"
	"github.com/pipeworks/factory_backend/utils"
)

type User struct {
	ID         int       `gorm:"primary_key" json:"id"`
	BusinessId string    `gorm:"size:64;index;not null" json:"business_id"`
	Username   string    `gorm:"size:100;uniqueIndex;not null" json:"username" binding:"required"`
	Password   string    `gorm:"size:100;not null" json:"-"`
	Name       string    `gorm:"size:100" json:"name"`
	Role       string    `gorm:"size:20;not null;default:'operator'" json:"role"`
	CanDelete  *bool     `gorm:"not null;default:false" json:"can_delete"`
	IsActive   *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewUser struct {
	Username  string `json:"username" binding:"required"`
	Password  string `json:"password" binding:"required"`
	Name      string `json:"name"`
	Role      string `json:"role"`
	CanDelete bool   `json:"can_delete"`
}

func CreateUser(ctx context.Context, businessId string, input *NewUser) (*User, error) {
	if err := utils.ValidateUnique[User](ctx, "", "username", input.Username, 0); err != nil {
		return nil, err
	}
	hash, err := utils.HashPassword(input.Password)
	if err != nil {
		return nil, err
	}
	role := input.Role
	if role == "" {
		role = "operator"
	}
	user := User{
		BusinessId: businessId,
		Username:   input.Username,
		Password:   hash,
		Name:       input.Name,
		Role:       role,
		CanDelete:  utils.NewFalse(),
		IsActive:   utils.NewTrue(),
	}
	if input.CanDelete {
		user.CanDelete = utils.NewTrue()
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// Authenticate verifies credentials and returns the user. Callers mint the JWT.
func Authenticate(ctx context.Context, username, password string) (*User, error) {
	db := config.GetDB()
	var user User
	skipCtx := utils.SetSkipTenantScopeInContext(ctx, true)
	if err := db.WithContext(skipCtx).Where("username = ?", username).First(&user).Error; err != nil {
		return nil, errors.New("invalid username or password")
	}
	if user.IsActive != nil && !*user.IsActive {
		return nil, errors.New("user is disabled")
	}
	if !utils.CheckPasswordHash(password, user.Password) {
		return nil, errors.New("invalid username or password")
	}
	return &user, nil
}
