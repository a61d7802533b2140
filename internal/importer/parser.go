package importer

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"lambari-service/internal/models"

	"github.com/gabriel-vasile/mimetype"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"
)

const (
	DefaultMaxUploadBytes int64 = 10 << 20

	xlsxMIME = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// preferredSheets are picked over the first sheet when present.
var preferredSheets = []string{"Kits", "Produtos", "Products"}

// Parser reads CSV and XLSX uploads into raw rows.
type Parser struct {
	maxBytes int64
}

func NewParser(maxBytes int64) *Parser {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	return &Parser{maxBytes: maxBytes}
}

// Parse reads the whole upload, detects its format and returns every
// non-blank data row. A file with a header and no data rows yields an empty
// slice and no error.
func (p *Parser) Parse(ctx context.Context, r io.Reader, filename string) ([]models.RawRow, error) {
	data, err := io.ReadAll(io.LimitReader(r, p.maxBytes+1))
	if err != nil {
		return nil, &ParseError{Code: CodeUnreadable, Message: "failed to read upload", Err: err}
	}
	if int64(len(data)) > p.maxBytes {
		return nil, &ParseError{
			Code:    CodeFileTooLarge,
			Message: fmt.Sprintf("file exceeds the %d byte upload limit", p.maxBytes),
		}
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, &ParseError{Code: CodeMissingHeader, Message: "file is empty"}
	}

	format, err := DetectFormat(filename, data)
	if err != nil {
		return nil, err
	}

	var records [][]string
	var lines []int
	switch format {
	case models.ImportFormatXLSX:
		records, lines, err = readXLSX(data)
	default:
		records, lines, err = readCSV(data)
	}
	if err != nil {
		return nil, err
	}

	return buildRows(ctx, records, lines)
}

// DetectFormat picks the reader from the file extension, falling back to
// content sniffing for uploads without a usable name.
func DetectFormat(filename string, data []byte) (models.ImportFormat, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv", ".txt":
		return models.ImportFormatCSV, nil
	case ".xlsx":
		return models.ImportFormatXLSX, nil
	}

	mt := mimetype.Detect(data)
	if mt.Is(xlsxMIME) {
		return models.ImportFormatXLSX, nil
	}
	for m := mt; m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return models.ImportFormatCSV, nil
		}
	}
	return "", &ParseError{
		Code:    CodeInvalidFormat,
		Message: fmt.Sprintf("unsupported file format %q, use .csv or .xlsx", mt.String()),
	}
}

// readCSV decodes a CSV upload. Spreadsheet exports from Brazilian locales
// use ';' and often Windows-1252, so both are handled.
func readCSV(data []byte) ([][]string, []int, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if !utf8.Valid(data) {
		decoded, err := charmap.Windows1252.NewDecoder().Bytes(data)
		if err != nil {
			return nil, nil, &ParseError{Code: CodeUnreadable, Message: "failed to decode CSV text", Err: err}
		}
		data = decoded
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = detectDelimiter(data)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var records [][]string
	var lines []int
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, &ParseError{Code: CodeUnreadable, Message: "failed to read CSV", Err: err}
		}
		line, _ := reader.FieldPos(0)
		records = append(records, record)
		lines = append(lines, line)
	}
	return records, lines, nil
}

func detectDelimiter(data []byte) rune {
	firstLine := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		firstLine = data[:i]
	}
	if bytes.Count(firstLine, []byte{';'}) > bytes.Count(firstLine, []byte{','}) {
		return ';'
	}
	return ','
}

func readXLSX(data []byte) ([][]string, []int, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, nil, &ParseError{Code: CodeInvalidFormat, Message: "failed to open Excel file", Err: err}
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, &ParseError{Code: CodeMissingHeader, Message: "no sheets found in Excel file"}
	}

	sheetName := pickSheet(sheets)
	excelRows, err := f.GetRows(sheetName)
	if err != nil {
		return nil, nil, &ParseError{Code: CodeUnreadable, Message: "failed to read sheet", Err: err}
	}

	// GetRows keeps interior empty rows, so the index is the spreadsheet line
	lines := make([]int, len(excelRows))
	for i := range excelRows {
		lines[i] = i + 1
	}
	return excelRows, lines, nil
}

func pickSheet(sheets []string) string {
	for _, preferred := range preferredSheets {
		for _, name := range sheets {
			if strings.EqualFold(name, preferred) {
				return name
			}
		}
	}
	return sheets[0]
}

// buildRows maps records onto canonical columns. The first non-blank record
// is the header.
func buildRows(ctx context.Context, records [][]string, lines []int) ([]models.RawRow, error) {
	headerIdx := -1
	for i, record := range records {
		if !isBlank(record) {
			headerIdx = i
			break
		}
	}
	if headerIdx < 0 {
		return nil, &ParseError{Code: CodeMissingHeader, Message: "header row is missing"}
	}

	headers := make([]string, len(records[headerIdx]))
	recognized := false
	for i, h := range records[headerIdx] {
		if strings.TrimSpace(h) == "" {
			continue
		}
		headers[i] = canonicalColumn(h)
		if isKnownColumn(headers[i]) {
			recognized = true
		}
	}
	if !recognized {
		return nil, &ParseError{
			Code:    CodeMissingHeader,
			Message: "header row has no recognized column (expected nome, marca, preco, custo, categoria, estoque_<tamanho>)",
		}
	}

	rows := make([]models.RawRow, 0, len(records)-headerIdx-1)
	for i := headerIdx + 1; i < len(records); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		record := records[i]
		if isBlank(record) {
			continue
		}

		cells := make(map[string]string, len(headers))
		for col, value := range record {
			if col >= len(headers) || headers[col] == "" {
				continue
			}
			value = strings.TrimSpace(value)
			if existing, ok := cells[headers[col]]; ok && existing != "" {
				continue
			}
			cells[headers[col]] = value
		}
		rows = append(rows, models.RawRow{Line: lines[i], Cells: cells})
	}
	return rows, nil
}

func isKnownColumn(key string) bool {
	if _, ok := stockSize(key); ok {
		return true
	}
	for _, canonical := range columnAliases {
		if canonical == key {
			return true
		}
	}
	return false
}

func isBlank(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
