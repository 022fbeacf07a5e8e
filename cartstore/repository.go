package cartstore

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/namestrings/checkout-api/models"
	"gorm.io/gorm"
)

// Repository persists full cart states under a namespaced store key.
//
// Load reports whether any save has ever happened for the key. That flag
// is what keeps an explicitly cleared cart empty across reloads: a key
// that was never saved starts fresh, a key saved with zero lines stays
// empty.
type Repository interface {
	Load(key string) (lines []Line, saved bool, err error)
	Save(key string, lines []Line) error
	PruneStale(olderThan time.Time) (int64, error)
}

type gormRepository struct {
	db *gorm.DB
}

func NewGormRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) Load(key string) ([]Line, bool, error) {
	var record models.CartRecord
	err := r.db.Where("store_key = ?", key).First(&record).Error
	if err == gorm.ErrRecordNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load cart %s: %w", key, err)
	}

	var rows []models.CartLineRecord
	if err := r.db.Where("store_key = ?", key).Order("position ASC").Find(&rows).Error; err != nil {
		return nil, false, fmt.Errorf("load cart lines %s: %w", key, err)
	}

	lines := make([]Line, 0, len(rows))
	for _, row := range rows {
		customization := map[string]string{}
		if row.Customization != "" {
			if err := json.Unmarshal([]byte(row.Customization), &customization); err != nil {
				return nil, false, fmt.Errorf("decode customization for %s: %w", row.ProductID, err)
			}
		}
		lines = append(lines, Line{
			ProductID:     row.ProductID,
			Name:          row.ProductName,
			Image:         row.ProductImage,
			UnitPrice:     row.UnitPrice,
			Quantity:      row.Quantity,
			Customization: customization,
			AddedAt:       row.AddedAt,
		})
	}
	return lines, true, nil
}

// Save rewrites the whole cart in one transaction. The CartRecord row is
// kept even when lines is empty so the cleared state survives reloads.
func (r *gormRepository) Save(key string, lines []Line) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		var record models.CartRecord
		err := tx.Where("store_key = ?", key).First(&record).Error
		if err == gorm.ErrRecordNotFound {
			record = models.CartRecord{StoreKey: key}
			if err := tx.Create(&record).Error; err != nil {
				return err
			}
		} else if err != nil {
			return err
		} else {
			record.UpdatedAt = time.Now()
			if err := tx.Save(&record).Error; err != nil {
				return err
			}
		}

		if err := tx.Where("store_key = ?", key).Delete(&models.CartLineRecord{}).Error; err != nil {
			return err
		}

		for i, line := range lines {
			customization, err := json.Marshal(line.Customization)
			if err != nil {
				return err
			}
			row := models.CartLineRecord{
				StoreKey:         key,
				Position:         i,
				ProductID:        line.ProductID,
				ProductName:      line.Name,
				ProductImage:     line.Image,
				UnitPrice:        line.UnitPrice,
				Quantity:         line.Quantity,
				CustomizationKey: CustomizationKey(line.Customization),
				Customization:    string(customization),
				AddedAt:          line.AddedAt,
			}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// PruneStale removes cart rows untouched since the cutoff. Used by the
// fixed-time maintenance routine for abandoned guest carts.
func (r *gormRepository) PruneStale(olderThan time.Time) (int64, error) {
	var keys []string
	if err := r.db.Model(&models.CartRecord{}).
		Where("updated_at < ?", olderThan).
		Pluck("store_key", &keys).Error; err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}

	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("store_key IN ?", keys).Delete(&models.CartLineRecord{}).Error; err != nil {
			return err
		}
		return tx.Where("store_key IN ?", keys).Delete(&models.CartRecord{}).Error
	})
	if err != nil {
		return 0, err
	}
	return int64(len(keys)), nil
}
