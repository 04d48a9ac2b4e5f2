package models

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/pipeworks/factory_backend/config"
	"gorm.io/gorm"
)

// Business is the tenant root. Every other row is scoped by BusinessId.
type Business struct {
	ID        uuid.UUID `gorm:"type:char(36);primary_key" json:"id"`
	Name      string    `gorm:"size:100;not null" json:"name" binding:"required"`
	Email     string    `gorm:"size:100" json:"email"`
	Phone     string    `gorm:"size:20" json:"phone"`
	Address   string    `gorm:"type:text" json:"address"`
	Timezone  string    `gorm:"size:50;not null;default:'UTC'" json:"timezone"`
	Currency  string    `gorm:"size:10;not null;default:'INR'" json:"currency"`
	IsActive  *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewBusiness struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Address  string `json:"address"`
	Timezone string `json:"timezone"`
	Currency string `json:"currency"`
}

func (b *Business) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

func CreateBusiness(ctx context.Context, input *NewBusiness) (*Business, error) {
	if input.Name == "" {
		return nil, errors.New("business name is required")
	}
	timezone := input.Timezone
	if timezone == "" {
		timezone = "UTC"
	}
	currency := input.Currency
	if currency == "" {
		currency = "INR"
	}
	business := Business{
		Name:     input.Name,
		Email:    input.Email,
		Phone:    input.Phone,
		Address:  input.Address,
		Timezone: timezone,
		Currency: currency,
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&business).Error; err != nil {
		return nil, err
	}
	return &business, nil
}

func GetBusinessById(tx *gorm.DB, businessId string) (*Business, error) {
	var business Business
	if err := tx.Where("id = ?", businessId).First(&business).Error; err != nil {
		return nil, err
	}
	return &business, nil
}
