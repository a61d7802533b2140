package repository

import (
	"context"
	"fmt"
	"strings"

	"lambari-service/internal/models"
	"lambari-service/internal/normalize"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type BrandsRepository struct {
	db    *gorm.DB
	cache listCache
}

func NewBrandsRepository(db *gorm.DB, redis *redis.Client) *BrandsRepository {
	return &BrandsRepository{
		db:    db,
		cache: listCache{redis: redis, key: brandListCacheKey},
	}
}

// FindAll returns every brand ordered for display.
func (r *BrandsRepository) FindAll(ctx context.Context) ([]models.Brand, error) {
	var brands []models.Brand
	if r.cache.get(ctx, &brands) {
		return brands, nil
	}

	err := r.db.WithContext(ctx).
		Order("display_order ASC, name ASC").
		Find(&brands).Error
	if err != nil {
		return nil, translateError(err)
	}

	r.cache.set(ctx, brands)
	return brands, nil
}

// Create inserts a brand. Names colliding with an existing brand after
// normalization fail with ErrDuplicate.
func (r *BrandsRepository) Create(ctx context.Context, input models.NewBrand) (*models.Brand, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: brand name is required", ErrInvalid)
	}

	brand := &models.Brand{
		ID:             uuid.New().String(),
		Name:           name,
		NormalizedName: normalize.Name(name),
		Slug:           normalize.Slug(name),
		Color:          input.Color,
		TextColor:      input.TextColor,
		Active:         input.Active,
		Order:          input.Order,
	}

	// Select keeps an explicit active=false from being replaced by the column default
	if err := r.db.WithContext(ctx).Select("*").Create(brand).Error; err != nil {
		return nil, translateError(err)
	}

	r.cache.invalidate(ctx)
	return brand, nil
}
