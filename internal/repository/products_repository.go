package repository

import (
	"context"
	"fmt"

	"lambari-service/internal/models"
	"lambari-service/internal/normalize"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ProductsRepository struct {
	db *gorm.DB
}

func NewProductsRepository(db *gorm.DB) *ProductsRepository {
	return &ProductsRepository{db: db}
}

// Create persists a new product. Products are never updated by the import
// flow, so a provided ID that already exists fails with ErrDuplicate.
func (r *ProductsRepository) Create(ctx context.Context, product *models.Product) (*models.Product, error) {
	if err := product.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	if product.ID == uuid.Nil {
		product.ID = uuid.New()
	}
	if product.Slug == "" {
		product.Slug = normalize.Slug(product.Name) + "-" + product.ID.String()[:8]
	}
	if product.Stock == nil {
		product.Stock = models.StockMap{}
	}
	if product.Images == nil {
		product.Images = models.StringList{}
	}

	if err := r.db.WithContext(ctx).Select("*").Create(product).Error; err != nil {
		return nil, translateError(err)
	}
	return product, nil
}

// ListByImport returns the products created by one import run, oldest first.
func (r *ProductsRepository) ListByImport(ctx context.Context, importID string) ([]models.Product, error) {
	var products []models.Product
	err := r.db.WithContext(ctx).
		Where("import_id = ?", importID).
		Order("created_at ASC").
		Find(&products).Error
	if err != nil {
		return nil, translateError(err)
	}
	return products, nil
}
