package importer

import (
	"context"
	"fmt"
	"sync"

	"lambari-service/internal/models"
	"lambari-service/internal/normalize"
	"lambari-service/internal/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// ============================================================================
// testify mocks
// ============================================================================

type MockBrandRepository struct {
	mock.Mock
}

var _ BrandRepository = (*MockBrandRepository)(nil)

func (m *MockBrandRepository) FindAll(ctx context.Context) ([]models.Brand, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Brand), args.Error(1)
}

func (m *MockBrandRepository) Create(ctx context.Context, input models.NewBrand) (*models.Brand, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Brand), args.Error(1)
}

type MockCategoryRepository struct {
	mock.Mock
}

var _ CategoryRepository = (*MockCategoryRepository)(nil)

func (m *MockCategoryRepository) FindAll(ctx context.Context) ([]models.Category, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Category), args.Error(1)
}

func (m *MockCategoryRepository) Create(ctx context.Context, input models.NewCategory) (*models.Category, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Category), args.Error(1)
}

// ============================================================================
// In-memory catalog
// ============================================================================

// memoryCatalog implements the three repositories over maps. failProduct
// lets a test decide, per product name, whether Create fails and how.
type memoryCatalog struct {
	mu               sync.Mutex
	brands           []models.Brand
	categories       []models.Category
	products         []models.Product
	brandCreates     int
	categoryCreates  int
	productCreates   int
	failProduct      func(name string) error
	failBrandCreate  error
	failCategoryLoad error
	onProductCreate  func()
}

var (
	_ ProductRepository  = (*memoryProducts)(nil)
	_ BrandRepository    = (*memoryBrands)(nil)
	_ CategoryRepository = (*memoryCategories)(nil)
)

type memoryProducts struct{ c *memoryCatalog }
type memoryBrands struct{ c *memoryCatalog }
type memoryCategories struct{ c *memoryCatalog }

func newMemoryCatalog(brandNames ...string) *memoryCatalog {
	c := &memoryCatalog{}
	for i, name := range brandNames {
		c.brands = append(c.brands, models.Brand{
			ID:             fmt.Sprintf("brand-%d", i+1),
			Name:           name,
			NormalizedName: normalize.Name(name),
			Active:         true,
			Order:          i + 1,
		})
	}
	return c
}

func (c *memoryCatalog) addCategory(name string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := fmt.Sprintf("category-%d", len(c.categories)+1)
	c.categories = append(c.categories, models.Category{ID: id, Name: name, NormalizedName: normalize.Name(name), Active: true})
	return id
}

func (c *memoryCatalog) repos() (*memoryProducts, *memoryBrands, *memoryCategories) {
	return &memoryProducts{c}, &memoryBrands{c}, &memoryCategories{c}
}

func (c *memoryCatalog) brandByName(name string) (models.Brand, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, b := range c.brands {
		if b.NormalizedName == normalize.Name(name) {
			return b, true
		}
	}
	return models.Brand{}, false
}

func (r *memoryBrands) FindAll(ctx context.Context) ([]models.Brand, error) {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	out := make([]models.Brand, len(r.c.brands))
	copy(out, r.c.brands)
	return out, nil
}

func (r *memoryBrands) Create(ctx context.Context, input models.NewBrand) (*models.Brand, error) {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	r.c.brandCreates++
	if r.c.failBrandCreate != nil {
		return nil, r.c.failBrandCreate
	}
	key := normalize.Name(input.Name)
	for _, b := range r.c.brands {
		if b.NormalizedName == key {
			return nil, repository.ErrDuplicate
		}
	}
	b := models.Brand{
		ID:             uuid.New().String(),
		Name:           input.Name,
		NormalizedName: key,
		Color:          input.Color,
		TextColor:      input.TextColor,
		Active:         input.Active,
		Order:          input.Order,
	}
	r.c.brands = append(r.c.brands, b)
	return &b, nil
}

func (r *memoryCategories) FindAll(ctx context.Context) ([]models.Category, error) {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	if r.c.failCategoryLoad != nil {
		return nil, r.c.failCategoryLoad
	}
	out := make([]models.Category, len(r.c.categories))
	copy(out, r.c.categories)
	return out, nil
}

func (r *memoryCategories) Create(ctx context.Context, input models.NewCategory) (*models.Category, error) {
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	r.c.categoryCreates++
	key := normalize.Name(input.Name)
	for _, c := range r.c.categories {
		if c.NormalizedName == key {
			return nil, repository.ErrDuplicate
		}
	}
	c := models.Category{
		ID:             uuid.New().String(),
		Name:           input.Name,
		NormalizedName: key,
		Slug:           input.Slug,
		Type:           input.Type,
		Active:         input.Active,
		Order:          input.Order,
	}
	r.c.categories = append(r.c.categories, c)
	return &c, nil
}

func (r *memoryProducts) Create(ctx context.Context, product *models.Product) (*models.Product, error) {
	if r.c.onProductCreate != nil {
		r.c.onProductCreate()
	}
	r.c.mu.Lock()
	defer r.c.mu.Unlock()
	r.c.productCreates++
	if r.c.failProduct != nil {
		if err := r.c.failProduct(product.Name); err != nil {
			return nil, err
		}
	}
	if product.ID == uuid.Nil {
		product.ID = uuid.New()
	}
	r.c.products = append(r.c.products, *product)
	return product, nil
}

// recordingObserver collects events for assertions.
type recordingObserver struct {
	mu        sync.Mutex
	validated int
	committed []models.RowOutcome
	created   []string
	completed int
	lastErr   error
}

func (o *recordingObserver) RowValidated(context.Context, models.ValidationResult) {
	o.mu.Lock()
	o.validated++
	o.mu.Unlock()
}

func (o *recordingObserver) RowCommitted(_ context.Context, outcome models.RowOutcome) {
	o.mu.Lock()
	o.committed = append(o.committed, outcome)
	o.mu.Unlock()
}

func (o *recordingObserver) EntityCreated(_ context.Context, kind, _ string, name string) {
	o.mu.Lock()
	o.created = append(o.created, kind+":"+name)
	o.mu.Unlock()
}

func (o *recordingObserver) ImportCompleted(_ context.Context, _ *models.BulkImportReport, err error) {
	o.mu.Lock()
	o.completed++
	o.lastErr = err
	o.mu.Unlock()
}
