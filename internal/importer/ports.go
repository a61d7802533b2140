package importer

import (
	"context"
	"io"

	"lambari-service/internal/models"
)

// ProductRepository persists products created by an import.
type ProductRepository interface {
	Create(ctx context.Context, product *models.Product) (*models.Product, error)
}

// BrandRepository reads and creates brands.
type BrandRepository interface {
	FindAll(ctx context.Context) ([]models.Brand, error)
	Create(ctx context.Context, input models.NewBrand) (*models.Brand, error)
}

// CategoryRepository reads and creates categories.
type CategoryRepository interface {
	FindAll(ctx context.Context) ([]models.Category, error)
	Create(ctx context.Context, input models.NewCategory) (*models.Category, error)
}

// SpreadsheetParser turns an uploaded file into raw rows.
type SpreadsheetParser interface {
	Parse(ctx context.Context, r io.Reader, filename string) ([]models.RawRow, error)
}
