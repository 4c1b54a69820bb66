package services

import (
	"context"
	"fmt"
	"strconv"

	"chatbridge/models"

	"github.com/jinzhu/gorm"
)

// Directory reads the CRM user table. Users are managed by another service.
type Directory struct {
	db *gorm.DB
}

func NewDirectory(db *gorm.DB) *Directory {
	return &Directory{db: db}
}

func (d *Directory) Get(ctx context.Context, id int64) (*models.User, error) {
	var user models.User
	if err := d.db.First(&user, id).Error; err != nil {
		if gorm.IsRecordNotFoundError(err) {
			return nil, notFound("user", strconv.FormatInt(id, 10))
		}
		return nil, fmt.Errorf("directory: load user: %w", err)
	}
	return &user, nil
}

// FirstAdmin returns the oldest active admin, or nil when there is none.
func (d *Directory) FirstAdmin(ctx context.Context) (*models.User, error) {
	var user models.User
	err := d.db.Where("role = ? AND status <> ?", models.USER_ROLE_ADMIN, models.USER_STATUS_BLOCKED).
		Order("id asc").First(&user).Error
	if err != nil {
		if gorm.IsRecordNotFoundError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("directory: load admin: %w", err)
	}
	return &user, nil
}
