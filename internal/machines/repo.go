package machines

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/vendcare-backend/pkg/db/models"
)

// Repository handles vending machine persistence.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// FindByCode loads a machine by the code printed on its QR sticker.
func (r *Repository) FindByCode(ctx context.Context, code string) (*models.VendingMachine, error) {
	var machine models.VendingMachine
	if err := r.db.WithContext(ctx).Where("machine_code = ?", code).First(&machine).Error; err != nil {
		return nil, err
	}
	return &machine, nil
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.VendingMachine, error) {
	var machine models.VendingMachine
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&machine).Error; err != nil {
		return nil, err
	}
	return &machine, nil
}

// UpdateAPIKeyHash replaces the stored device key hash.
func (r *Repository) UpdateAPIKeyHash(ctx context.Context, id uuid.UUID, hash string) error {
	res := r.db.WithContext(ctx).
		Model(&models.VendingMachine{}).
		Where("id = ?", id).
		Updates(map[string]any{"api_key_hash": hash, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
