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

type CategoriesRepository struct {
	db    *gorm.DB
	cache listCache
}

func NewCategoriesRepository(db *gorm.DB, redis *redis.Client) *CategoriesRepository {
	return &CategoriesRepository{
		db:    db,
		cache: listCache{redis: redis, key: categoryListCacheKey},
	}
}

// FindAll returns every category ordered for display.
func (r *CategoriesRepository) FindAll(ctx context.Context) ([]models.Category, error) {
	var categories []models.Category
	if r.cache.get(ctx, &categories) {
		return categories, nil
	}

	err := r.db.WithContext(ctx).
		Order("display_order ASC, name ASC").
		Find(&categories).Error
	if err != nil {
		return nil, translateError(err)
	}

	r.cache.set(ctx, categories)
	return categories, nil
}

// Create inserts a category. The slug defaults to one derived from the name.
func (r *CategoriesRepository) Create(ctx context.Context, input models.NewCategory) (*models.Category, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: category name is required", ErrInvalid)
	}

	slug := input.Slug
	if slug == "" {
		slug = normalize.Slug(name)
	}

	category := &models.Category{
		ID:             uuid.New().String(),
		Name:           name,
		NormalizedName: normalize.Name(name),
		Slug:           slug,
		Type:           input.Type,
		Active:         input.Active,
		Order:          input.Order,
	}

	if err := r.db.WithContext(ctx).Select("*").Create(category).Error; err != nil {
		return nil, translateError(err)
	}

	r.cache.invalidate(ctx)
	return category, nil
}
