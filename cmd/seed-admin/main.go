// seed-admin bootstraps a business and its admin user so a fresh deployment
// can log in. Safe to rerun: an existing business/user is updated in place.
//
// Usage:
//
//	DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... go run ./cmd/seed-admin \
//	  -business "Pipe Works" -username admin -password 'changeme'
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/pipeworks/factory_backend/config"
	"github.com/pipeworks/factory_backend/models"
	"github.com/pipeworks/factory_backend/utils"
	"gorm.io/gorm"
)

func main() {
	businessName := flag.String("business", "Pipe Works", "business name to create or reuse")
	username := flag.String("username", "admin", "admin username")
	password := flag.String("password", "", "admin password (required)")
	flag.Parse()

	if *password == "" {
		fmt.Fprintln(os.Stderr, "-password is required")
		os.Exit(1)
	}

	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}
	models.MigrateTable()

	ctx = utils.SetIsAdminInContext(ctx, true)
	ctx = utils.SetSkipTenantScopeInContext(ctx, true)

	var biz models.Business
	err := db.WithContext(ctx).Where("name = ?", *businessName).First(&biz).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		created, createErr := models.CreateBusiness(ctx, &models.NewBusiness{Name: *businessName})
		if createErr != nil {
			fmt.Fprintf(os.Stderr, "failed to create business: %v\n", createErr)
			os.Exit(1)
		}
		biz = *created
		fmt.Printf("Created business %q (id=%s)\n", biz.Name, biz.ID)
	} else if err != nil {
		fmt.Fprintf(os.Stderr, "failed to lookup business: %v\n", err)
		os.Exit(1)
	}

	businessID := biz.ID.String()
	ctx = utils.SetBusinessIdInContext(ctx, businessID)

	hashed, err := utils.HashPassword(*password)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to hash password: %v\n", err)
		os.Exit(1)
	}

	var existing models.User
	err = db.WithContext(ctx).Where("username = ?", *username).First(&existing).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			fmt.Fprintf(os.Stderr, "failed to lookup user: %v\n", err)
			os.Exit(1)
		}
		u := models.User{
			BusinessId: businessID,
			Username:   *username,
			Password:   hashed,
			Name:       "Administrator",
			Role:       "admin",
			CanDelete:  utils.NewTrue(),
			IsActive:   utils.NewTrue(),
		}
		if err := db.WithContext(ctx).Create(&u).Error; err != nil {
			fmt.Fprintf(os.Stderr, "failed to create admin user: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Created admin user %q for business %q\n", *username, biz.Name)
		return
	}

	if err := db.WithContext(ctx).Model(&models.User{}).Where("username = ?", *username).Updates(map[string]any{
		"password":    hashed,
		"business_id": businessID,
		"role":        "admin",
		"can_delete":  utils.NewTrue(),
		"is_active":   utils.NewTrue(),
	}).Error; err != nil {
		fmt.Fprintf(os.Stderr, "failed to update admin user: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Updated admin user %q for business %q\n", *username, biz.Name)
}
