package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// StockMap type for PostgreSQL JSONB (size label -> quantity)
type StockMap map[string]int

func (s StockMap) Value() (driver.Value, error) {
	if s == nil {
		return "{}", nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (s *StockMap) Scan(value interface{}) error {
	if value == nil {
		*s = make(StockMap)
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return nil
	}
	return json.Unmarshal(bytes, s)
}

// Total returns the sum of all size quantities.
func (s StockMap) Total() int {
	total := 0
	for _, qty := range s {
		total += qty
	}
	return total
}

// StringList type for PostgreSQL JSONB (array of strings)
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (l *StringList) Scan(value interface{}) error {
	if value == nil {
		*l = make(StringList, 0)
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return nil
	}
	return json.Unmarshal(bytes, l)
}

// Product is a kit or single item in the wholesale catalog.
type Product struct {
	ID          uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	Name        string     `json:"name" gorm:"not null"`
	Slug        string     `json:"slug" gorm:"index"`
	Description *string    `json:"description,omitempty"`
	BrandID     string     `json:"brand" gorm:"column:brand_id;index;not null"`
	CategoryID  *string    `json:"categoryId,omitempty" gorm:"index"`
	Price       float64    `json:"price" gorm:"type:numeric(12,2);not null"`
	CostPrice   float64    `json:"costPrice" gorm:"type:numeric(12,2);not null"`
	Stock       StockMap   `json:"stock" gorm:"type:jsonb"`
	Images      StringList `json:"images" gorm:"type:jsonb"`
	Active      bool       `json:"active"`
	ImportID    *string    `json:"importId,omitempty" gorm:"index"`
	CreatedByID *string    `json:"createdById,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

var (
	ErrProductNameTooShort = errors.New("product name must have at least 3 characters")
	ErrProductPrice        = errors.New("product price must be greater than zero")
	ErrProductCostPrice    = errors.New("product cost price must be greater than zero")
	ErrProductBrand        = errors.New("product brand is required")
)

// Validate checks the rules every stored product must satisfy.
func (p *Product) Validate() error {
	if len([]rune(strings.TrimSpace(p.Name))) < 3 {
		return ErrProductNameTooShort
	}
	if p.Price <= 0 {
		return ErrProductPrice
	}
	if p.CostPrice <= 0 {
		return ErrProductCostPrice
	}
	if p.BrandID == "" {
		return ErrProductBrand
	}
	return nil
}

func (p *Product) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// Brand is a clothing label. NormalizedName is unique across the catalog.
type Brand struct {
	ID             string    `json:"id" gorm:"type:varchar(36);primaryKey"`
	Name           string    `json:"name" gorm:"not null"`
	NormalizedName string    `json:"-" gorm:"uniqueIndex;not null"`
	Slug           string    `json:"slug"`
	Color          string    `json:"color"`
	TextColor      string    `json:"textColor"`
	Active         bool      `json:"active"`
	Order          int       `json:"order" gorm:"column:display_order"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// NewBrand carries the fields needed to create a brand.
type NewBrand struct {
	Name      string `json:"name"`
	Color     string `json:"color"`
	TextColor string `json:"textColor"`
	Active    bool   `json:"active"`
	Order     int    `json:"order"`
}

// Category groups products in the storefront. NormalizedName is unique.
type Category struct {
	ID             string    `json:"id" gorm:"type:varchar(36);primaryKey"`
	Name           string    `json:"name" gorm:"not null"`
	NormalizedName string    `json:"-" gorm:"uniqueIndex;not null"`
	Slug           string    `json:"slug"`
	Type           string    `json:"type"`
	Active         bool      `json:"active"`
	Order          int       `json:"order" gorm:"column:display_order"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// NewCategory carries the fields needed to create a category.
type NewCategory struct {
	Name   string `json:"name"`
	Slug   string `json:"slug"`
	Type   string `json:"type"`
	Active bool   `json:"active"`
	Order  int    `json:"order"`
}

// TableName returns the table name for the Product model
func (Product) TableName() string {
	return "products"
}

// TableName returns the table name for the Brand model
func (Brand) TableName() string {
	return "brands"
}

// TableName returns the table name for the Category model
func (Category) TableName() string {
	return "categories"
}

type ErrorResponse struct {
	Success   bool        `json:"success"`
	Error     Error       `json:"error"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp string      `json:"timestamp,omitempty"`
}

type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

type SuccessResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message *string     `json:"message,omitempty"`
}
