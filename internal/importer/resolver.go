package importer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"lambari-service/internal/models"
	"lambari-service/internal/normalize"
	"lambari-service/internal/repository"

	"golang.org/x/sync/singleflight"
)

// Defaults applied to entities created during an import
const (
	DefaultBrandColor     = "#1F2937"
	DefaultBrandTextColor = "#FFFFFF"
	DefaultCategoryType   = "kit"
	DefaultCallTimeout    = 10 * time.Second
)

type ResolverOptions struct {
	CallTimeout    time.Duration
	BrandColor     string
	BrandTextColor string
	CategoryType   string
	Observer       Observer
}

func (o *ResolverOptions) applyDefaults() {
	if o.CallTimeout <= 0 {
		o.CallTimeout = DefaultCallTimeout
	}
	if o.BrandColor == "" {
		o.BrandColor = DefaultBrandColor
	}
	if o.BrandTextColor == "" {
		o.BrandTextColor = DefaultBrandTextColor
	}
	if o.CategoryType == "" {
		o.CategoryType = DefaultCategoryType
	}
	if o.Observer == nil {
		o.Observer = NopObserver{}
	}
}

// entityTable is the per-kind state of one resolver.
type entityTable struct {
	kind     string
	existing map[string]string
	pending  map[string]string
	reserved int
	created  int
	create   func(ctx context.Context, name string, order int) (string, error)
	load     func(ctx context.Context) (map[string]string, error)
}

// EntityResolver maps brand and category names to ids for one import run,
// creating each unmatched normalized name exactly once. The name-to-id
// decision is serialized per key; product creation is not.
type EntityResolver struct {
	opts ResolverOptions

	mu         sync.Mutex
	brands     *entityTable
	categories *entityTable
	group      singleflight.Group
}

// NewEntityResolver loads the current brands and categories. Failing to load
// them is an infrastructure error since nothing can be linked safely.
func NewEntityResolver(ctx context.Context, brands BrandRepository, categories CategoryRepository, opts ResolverOptions) (*EntityResolver, error) {
	opts.applyDefaults()
	r := &EntityResolver{opts: opts}

	r.brands = &entityTable{
		kind: EntityBrand,
		create: func(ctx context.Context, name string, order int) (string, error) {
			b, err := brands.Create(ctx, models.NewBrand{
				Name:      name,
				Color:     opts.BrandColor,
				TextColor: opts.BrandTextColor,
				Active:    true,
				Order:     order,
			})
			if err != nil {
				return "", err
			}
			return b.ID, nil
		},
		load: func(ctx context.Context) (map[string]string, error) {
			list, err := brands.FindAll(ctx)
			if err != nil {
				return nil, err
			}
			ids := make(map[string]string, len(list))
			for _, b := range list {
				ids[normalize.Name(b.Name)] = b.ID
			}
			return ids, nil
		},
	}
	r.categories = &entityTable{
		kind: EntityCategory,
		create: func(ctx context.Context, name string, order int) (string, error) {
			c, err := categories.Create(ctx, models.NewCategory{
				Name:   name,
				Slug:   normalize.Slug(name),
				Type:   opts.CategoryType,
				Active: true,
				Order:  order,
			})
			if err != nil {
				return "", err
			}
			return c.ID, nil
		},
		load: func(ctx context.Context) (map[string]string, error) {
			list, err := categories.FindAll(ctx)
			if err != nil {
				return nil, err
			}
			ids := make(map[string]string, len(list))
			for _, c := range list {
				ids[normalize.Name(c.Name)] = c.ID
			}
			return ids, nil
		},
	}

	for _, t := range []*entityTable{r.brands, r.categories} {
		callCtx, cancel := context.WithTimeout(ctx, opts.CallTimeout)
		existing, err := t.load(callCtx)
		cancel()
		if err != nil {
			return nil, &InfrastructureError{Op: fmt.Sprintf("load %ss", t.kind), Err: err}
		}
		t.existing = existing
		t.pending = make(map[string]string)
	}
	return r, nil
}

// ResolveBrand returns the id of the brand named name, creating it on first use.
func (r *EntityResolver) ResolveBrand(ctx context.Context, name string) (string, error) {
	return r.resolve(ctx, r.brands, name)
}

// ResolveCategory returns the id of the category named name, creating it on first use.
func (r *EntityResolver) ResolveCategory(ctx context.Context, name string) (string, error) {
	return r.resolve(ctx, r.categories, name)
}

// CreatedBrands is the number of brands this resolver created.
func (r *EntityResolver) CreatedBrands() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.brands.created
}

// CreatedCategories is the number of categories this resolver created.
func (r *EntityResolver) CreatedCategories() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.categories.created
}

func (r *EntityResolver) lookup(t *entityTable, key string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := t.existing[key]; ok {
		return id, true
	}
	id, ok := t.pending[key]
	return id, ok
}

func (r *EntityResolver) resolve(ctx context.Context, t *entityTable, name string) (string, error) {
	key := normalize.Name(name)
	if key == "" {
		return "", &ResolutionError{Kind: t.kind, Name: name, Err: errors.New("empty name")}
	}
	if id, ok := r.lookup(t, key); ok {
		return id, nil
	}

	v, err, _ := r.group.Do(t.kind+":"+key, func() (interface{}, error) {
		// A flight for this key may have finished between lookup and Do
		if id, ok := r.lookup(t, key); ok {
			return id, nil
		}
		return r.create(ctx, t, key, name)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (r *EntityResolver) create(ctx context.Context, t *entityTable, key, name string) (string, error) {
	r.mu.Lock()
	t.reserved++
	order := len(t.existing) + t.reserved
	r.mu.Unlock()

	callCtx, cancel := context.WithTimeout(ctx, r.opts.CallTimeout)
	defer cancel()

	id, err := t.create(callCtx, name, order)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if errors.Is(err, repository.ErrDuplicate) {
			// Created outside this batch after the snapshot was taken
			if id, ok := r.adopt(ctx, t, key); ok {
				return id, nil
			}
		}
		if errors.Is(err, repository.ErrUnavailable) {
			return "", &InfrastructureError{Op: "create " + t.kind, Err: err}
		}
		return "", &ResolutionError{Kind: t.kind, Name: name, Err: err}
	}

	r.mu.Lock()
	t.pending[key] = id
	t.created++
	r.mu.Unlock()

	r.opts.Observer.EntityCreated(ctx, t.kind, id, name)
	return id, nil
}

// adopt reloads the table and records an entity another writer created.
func (r *EntityResolver) adopt(ctx context.Context, t *entityTable, key string) (string, bool) {
	callCtx, cancel := context.WithTimeout(ctx, r.opts.CallTimeout)
	defer cancel()

	current, err := t.load(callCtx)
	if err != nil {
		return "", false
	}
	id, ok := current[key]
	if !ok {
		return "", false
	}

	r.mu.Lock()
	t.existing[key] = id
	r.mu.Unlock()
	return id, true
}
