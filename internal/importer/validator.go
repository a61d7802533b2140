package importer

import (
	"fmt"
	"math"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"lambari-service/internal/models"
	"lambari-service/internal/normalize"
)

// DefaultBrandName is linked to rows that name no brand.
const DefaultBrandName = "Sem Marca"

// Issue codes
const (
	IssueNameRequired  = "NAME_REQUIRED"
	IssueNameTooShort  = "NAME_TOO_SHORT"
	IssuePriceRequired = "PRICE_REQUIRED"
	IssuePriceInvalid  = "PRICE_INVALID"
	IssueCostRequired  = "COST_REQUIRED"
	IssueCostInvalid   = "COST_INVALID"
	IssueMargin        = "MARGIN_NON_POSITIVE"
	IssueBrandMissing  = "BRAND_MISSING"
	IssueBrandNew      = "BRAND_NEW"
	IssueCategoryNew   = "CATEGORY_NEW"
	IssueStockInvalid  = "STOCK_INVALID"
	IssueActiveInvalid = "ACTIVE_INVALID"
	IssueImageInvalid  = "IMAGE_INVALID"
)

const minProductNameRunes = 3

// CatalogSnapshot is the read-only view of existing brand and category names
// that validation checks rows against. It never changes after construction.
type CatalogSnapshot struct {
	brands     map[string]struct{}
	categories map[string]struct{}
}

func NewCatalogSnapshot(brands []models.Brand, categories []models.Category) *CatalogSnapshot {
	s := &CatalogSnapshot{
		brands:     make(map[string]struct{}, len(brands)),
		categories: make(map[string]struct{}, len(categories)),
	}
	for _, b := range brands {
		s.brands[normalize.Name(b.Name)] = struct{}{}
	}
	for _, c := range categories {
		s.categories[normalize.Name(c.Name)] = struct{}{}
	}
	return s
}

// HasBrand reports whether a brand with the same normalized name exists.
func (s *CatalogSnapshot) HasBrand(name string) bool {
	if s == nil {
		return false
	}
	_, ok := s.brands[normalize.Name(name)]
	return ok
}

// HasCategory reports whether a category with the same normalized name exists.
func (s *CatalogSnapshot) HasCategory(name string) bool {
	if s == nil {
		return false
	}
	_, ok := s.categories[normalize.Name(name)]
	return ok
}

// Validator classifies rows. It holds configuration only, so Validate is a
// pure function of the row and snapshot.
type Validator struct {
	defaultBrand string
}

func NewValidator(defaultBrand string) *Validator {
	if strings.TrimSpace(defaultBrand) == "" {
		defaultBrand = DefaultBrandName
	}
	return &Validator{defaultBrand: defaultBrand}
}

// DefaultBrand returns the placeholder used for rows without a brand.
func (v *Validator) DefaultBrand() string {
	return v.defaultBrand
}

type rowChecker struct {
	result models.ValidationResult
}

func (c *rowChecker) add(severity models.Severity, column, code, message string) {
	c.result.Issues = append(c.result.Issues, models.ValidationIssue{
		Column:   column,
		Code:     code,
		Severity: severity,
		Message:  message,
	})
	c.result.Messages = append(c.result.Messages, message)
}

func (c *rowChecker) errorf(column, code, format string, args ...interface{}) {
	c.add(models.SeverityError, column, code, fmt.Sprintf(format, args...))
}

func (c *rowChecker) warnf(column, code, format string, args ...interface{}) {
	c.add(models.SeverityWarning, column, code, fmt.Sprintf(format, args...))
}

// Validate checks one row against the snapshot.
func (v *Validator) Validate(row models.RawRow, snapshot *CatalogSnapshot) models.ValidationResult {
	c := &rowChecker{result: models.ValidationResult{
		Row:          row.Line,
		Messages:     []string{},
		OriginalData: copyCells(row.Cells),
		Data:         models.ProductDraft{Stock: models.StockMap{}, Active: true},
	}}

	v.checkName(c, row.Get(ColName))
	price, priceOK := v.checkMoney(c, row.Get(ColPrice), ColPrice, "price", IssuePriceRequired, IssuePriceInvalid)
	cost, costOK := v.checkMoney(c, row.Get(ColCostPrice), ColCostPrice, "cost price", IssueCostRequired, IssueCostInvalid)
	if priceOK {
		c.result.Data.Price = price
	}
	if costOK {
		c.result.Data.CostPrice = cost
	}
	if priceOK && costOK && cost >= price {
		c.warnf(ColCostPrice, IssueMargin, "margin non-positive: cost %.2f is not below price %.2f", cost, price)
	}

	v.checkBrand(c, row.Get(ColBrand), snapshot)
	v.checkCategory(c, row.Get(ColCategory), snapshot)
	v.checkStock(c, row.Cells)
	v.checkActive(c, row.Get(ColActive))
	v.checkImages(c, row.Get(ColImages))
	c.result.Data.Description = strings.TrimSpace(row.Get(ColDescription))

	c.result.Status = statusOf(c.result.Issues)
	return c.result
}

func (v *Validator) checkName(c *rowChecker, raw string) {
	name := strings.Join(strings.Fields(raw), " ")
	switch {
	case name == "":
		c.errorf(ColName, IssueNameRequired, "name is required")
	case utf8.RuneCountInString(name) < minProductNameRunes:
		c.errorf(ColName, IssueNameTooShort, "name must have at least %d characters", minProductNameRunes)
	default:
		c.result.Data.Name = name
	}
}

func (v *Validator) checkMoney(c *rowChecker, raw, column, label, requiredCode, invalidCode string) (float64, bool) {
	if strings.TrimSpace(raw) == "" {
		c.errorf(column, requiredCode, "%s is required", label)
		return 0, false
	}
	value, err := ParseMoney(raw)
	if err != nil {
		c.errorf(column, invalidCode, "%s %q is not a valid number", label, raw)
		return 0, false
	}
	if value <= 0 {
		c.errorf(column, invalidCode, "%s must be greater than zero", label)
		return 0, false
	}
	return value, true
}

func (v *Validator) checkBrand(c *rowChecker, raw string, snapshot *CatalogSnapshot) {
	name := strings.Join(strings.Fields(raw), " ")
	if name == "" {
		c.result.Data.BrandName = v.defaultBrand
		c.result.Data.NewBrand = !snapshot.HasBrand(v.defaultBrand)
		c.warnf(ColBrand, IssueBrandMissing, "brand missing: default brand %q will be used", v.defaultBrand)
		return
	}
	c.result.Data.BrandName = name
	if !snapshot.HasBrand(name) {
		c.result.Data.NewBrand = true
		c.warnf(ColBrand, IssueBrandNew, "new brand will be created: %s", name)
	}
}

func (v *Validator) checkCategory(c *rowChecker, raw string, snapshot *CatalogSnapshot) {
	name := strings.Join(strings.Fields(raw), " ")
	if name == "" {
		return
	}
	c.result.Data.CategoryName = name
	if !snapshot.HasCategory(name) {
		c.result.Data.NewCategory = true
		c.warnf(ColCategory, IssueCategoryNew, "new category will be created: %s", name)
	}
}

func (v *Validator) checkStock(c *rowChecker, cells map[string]string) {
	keys := make([]string, 0)
	for key := range cells {
		if _, ok := stockSize(key); ok {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	for _, key := range keys {
		size, _ := stockSize(key)
		raw := strings.TrimSpace(cells[key])
		if raw == "" {
			c.result.Data.Stock[size] = 0
			continue
		}
		qty, err := parseQuantity(raw)
		if err != nil {
			c.result.Data.Stock[size] = 0
			c.warnf(key, IssueStockInvalid, "stock %s %q is not a non-negative integer, using 0", size, raw)
			continue
		}
		c.result.Data.Stock[size] = qty
	}
}

func (v *Validator) checkActive(c *rowChecker, raw string) {
	if strings.TrimSpace(raw) == "" {
		return
	}
	active, ok := parseBool(raw)
	if !ok {
		c.warnf(ColActive, IssueActiveInvalid, "active %q not understood, product will be active", raw)
		return
	}
	c.result.Data.Active = active
}

func (v *Validator) checkImages(c *rowChecker, raw string) {
	parts := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ';' || r == '|' || r == '\n'
	})
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		u, err := url.Parse(part)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			c.warnf(ColImages, IssueImageInvalid, "image %q is not an http(s) URL, ignored", part)
			continue
		}
		c.result.Data.Images = append(c.result.Data.Images, part)
	}
}

// statusOf applies the precedence error > warning > valid.
func statusOf(issues []models.ValidationIssue) models.RowStatus {
	status := models.RowStatusValid
	for _, issue := range issues {
		if issue.Severity == models.SeverityError {
			return models.RowStatusError
		}
		status = models.RowStatusWarning
	}
	return status
}

// ParseMoney accepts "89.90", "89,90", "1.234,56", "1,234.56" and an optional
// "R$" prefix. A lone dot followed by exactly three digits is a thousands
// separator, so "1.234" is 1234 while "0.500" stays 0.5.
func ParseMoney(raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "R$")
	s = strings.TrimPrefix(s, "r$")
	s = strings.Map(func(r rune) rune {
		if r == ' ' || r == '\u00a0' {
			return -1
		}
		return r
	}, s)

	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")
	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastComma >= 0:
		if strings.Count(s, ",") > 1 {
			return 0, fmt.Errorf("ambiguous number %q", raw)
		}
		s = strings.Replace(s, ",", ".", 1)
	case lastDot >= 0:
		// "1.234" and "12.345.678" are pt-BR thousands without cents
		if thousandsGrouped(s, ".") {
			s = strings.ReplaceAll(s, ".", "")
		}
	}

	value, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, fmt.Errorf("invalid number %q", raw)
	}
	return math.Round(value*100) / 100, nil
}

// thousandsGrouped reports whether sep splits s into a non-zero leading group
// of up to three digits followed by groups of exactly three.
func thousandsGrouped(s, sep string) bool {
	groups := strings.Split(s, sep)
	if len(groups) < 2 {
		return false
	}
	head := strings.TrimPrefix(groups[0], "-")
	if len(head) > 3 || !isDigits(head) || strings.Trim(head, "0") == "" {
		return false
	}
	for _, g := range groups[1:] {
		if len(g) != 3 || !isDigits(g) {
			return false
		}
	}
	return true
}

func isDigits(s string) bool {
	return s != "" && strings.IndexFunc(s, func(r rune) bool { return r < '0' || r > '9' }) < 0
}

func parseQuantity(raw string) (int, error) {
	if qty, err := strconv.Atoi(raw); err == nil {
		if qty < 0 {
			return 0, fmt.Errorf("negative quantity %d", qty)
		}
		return qty, nil
	}
	// XLSX numeric cells may come through as "10.0"
	f, err := strconv.ParseFloat(strings.Replace(raw, ",", ".", 1), 64)
	if err != nil || f < 0 || f != math.Trunc(f) || f > math.MaxInt32 {
		return 0, fmt.Errorf("invalid quantity %q", raw)
	}
	return int(f), nil
}

func parseBool(raw string) (bool, bool) {
	switch normalize.Name(raw) {
	case "sim", "s", "yes", "y", "true", "1", "ativo", "x":
		return true, true
	case "nao", "n", "no", "false", "0", "inativo":
		return false, true
	}
	return false, false
}

func copyCells(cells map[string]string) map[string]string {
	out := make(map[string]string, len(cells))
	for k, v := range cells {
		out[k] = v
	}
	return out
}
