package importer

import (
	"strings"

	"lambari-service/internal/normalize"
)

// Canonical column keys used in RawRow.Cells.
const (
	ColName        = "name"
	ColBrand       = "brand"
	ColPrice       = "price"
	ColCostPrice   = "costPrice"
	ColCategory    = "category"
	ColDescription = "description"
	ColImages      = "images"
	ColActive      = "active"

	stockPrefix = "stock:"
)

var columnAliases = map[string]string{
	"nome":        ColName,
	"name":        ColName,
	"produto":     ColName,
	"marca":       ColBrand,
	"brand":       ColBrand,
	"preco":       ColPrice,
	"price":       ColPrice,
	"preco_venda": ColPrice,
	"custo":       ColCostPrice,
	"costprice":   ColCostPrice,
	"cost_price":  ColCostPrice,
	"preco_custo": ColCostPrice,
	"categoria":   ColCategory,
	"category":    ColCategory,
	"descricao":   ColDescription,
	"description": ColDescription,
	"imagens":     ColImages,
	"images":      ColImages,
	"ativo":       ColActive,
	"active":      ColActive,
}

var stockHeaderPrefixes = []string{"estoque_", "stock_"}

// canonicalColumn maps a raw header cell to its canonical key. Unknown
// headers keep their folded form so they travel with the row but are never
// read by validation.
func canonicalColumn(header string) string {
	folded := normalize.Header(header)
	if key, ok := columnAliases[folded]; ok {
		return key
	}
	for _, prefix := range stockHeaderPrefixes {
		if strings.HasPrefix(folded, prefix) && len(folded) > len(prefix) {
			size := strings.ReplaceAll(folded[len(prefix):], "_", " ")
			return StockColumn(strings.ToUpper(size))
		}
	}
	return folded
}

// StockColumn returns the cell key for a size label.
func StockColumn(size string) string {
	return stockPrefix + size
}

// stockSize extracts the size label from a stock cell key.
func stockSize(key string) (string, bool) {
	if !strings.HasPrefix(key, stockPrefix) {
		return "", false
	}
	return strings.TrimPrefix(key, stockPrefix), true
}
