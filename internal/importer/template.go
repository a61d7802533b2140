package importer

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strings"

	"lambari-service/internal/models"

	"github.com/xuri/excelize/v2"
)

const (
	templateSheet     = "Kits"
	instructionsSheet = "Instrucoes"
	resultsSheet      = "Resultado"
	summarySheet      = "Resumo"

	headerColor   = "4472C4"
	requiredColor = "C65911"
)

var templateSizes = []string{"P", "M", "G", "GG"}

// KitImportColumns returns the column definitions for kit import
func KitImportColumns() []models.ImportTemplateColumn {
	columns := []models.ImportTemplateColumn{
		{Name: "nome", Aliases: []string{"name"}, Description: "Nome do kit (minimo 3 caracteres)", Required: true, Type: "string", Example: "Kit Verão Menina"},
		{Name: "marca", Aliases: []string{"brand"}, Description: "Marca. Criada automaticamente se nao existir; vazio usa a marca padrao", Required: false, Type: "string", Example: "Pimpolho"},
		{Name: "preco", Aliases: []string{"price"}, Description: "Preco de venda, maior que zero", Required: true, Type: "number", Example: "89,90"},
		{Name: "custo", Aliases: []string{"costPrice"}, Description: "Preco de custo, maior que zero", Required: true, Type: "number", Example: "50,00"},
		{Name: "categoria", Aliases: []string{"category"}, Description: "Categoria. Criada automaticamente se nao existir", Required: false, Type: "string", Example: "Verão"},
		{Name: "descricao", Aliases: []string{"description"}, Description: "Descricao do kit", Required: false, Type: "string", Example: ""},
		{Name: "imagens", Aliases: []string{"images"}, Description: "URLs das imagens separadas por virgula", Required: false, Type: "list", Example: ""},
		{Name: "ativo", Aliases: []string{"active"}, Description: "sim/nao, padrao sim", Required: false, Type: "boolean", Example: "sim"},
	}
	for _, size := range templateSizes {
		columns = append(columns, models.ImportTemplateColumn{
			Name:        "estoque_" + size,
			Aliases:     []string{"stock_" + size},
			Description: fmt.Sprintf("Quantidade em estoque do tamanho %s", size),
			Required:    false,
			Type:        "number",
			Example:     "10",
		})
	}
	return columns
}

// KitImportTemplate returns the template definition for kits
func KitImportTemplate() models.ImportTemplate {
	return models.ImportTemplate{
		Entity:  "kits",
		Version: "1.0",
		Columns: KitImportColumns(),
		SampleData: []map[string]string{
			{"nome": "Kit Verão Menina", "marca": "Pimpolho", "preco": "89,90", "custo": "50,00", "categoria": "Verão", "ativo": "sim", "estoque_P": "10", "estoque_M": "8"},
		},
	}
}

func templateHeaders(template models.ImportTemplate) []string {
	headers := make([]string, len(template.Columns))
	for i, col := range template.Columns {
		headers[i] = col.Name
	}
	return headers
}

// WriteCSVTemplate writes the header row and one sample row, ';' separated
// so spreadsheet apps in pt-BR open it in columns.
func WriteCSVTemplate(w io.Writer, template models.ImportTemplate) error {
	writer := csv.NewWriter(w)
	writer.Comma = ';'

	headers := templateHeaders(template)
	if err := writer.Write(headers); err != nil {
		return err
	}
	for _, sample := range template.SampleData {
		record := make([]string, len(headers))
		for i, h := range headers {
			record[i] = sample[h]
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func headerStyles(f *excelize.File) (int, int, error) {
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{headerColor}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})
	if err != nil {
		return 0, 0, err
	}
	requiredStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{requiredColor}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})
	if err != nil {
		return 0, 0, err
	}
	return headerStyle, requiredStyle, nil
}

// WriteXLSXTemplate writes an Excel template with styled headers and an
// instructions sheet.
func WriteXLSXTemplate(w io.Writer, template models.ImportTemplate) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", templateSheet); err != nil {
		return err
	}
	headerStyle, requiredStyle, err := headerStyles(f)
	if err != nil {
		return err
	}

	for i, col := range template.Columns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		headerText := col.Name
		style := headerStyle
		if col.Required {
			headerText = col.Name + " *"
			style = requiredStyle
		}
		f.SetCellValue(templateSheet, cell, headerText)
		f.SetCellStyle(templateSheet, cell, cell, style)

		colName, _ := excelize.ColumnNumberToName(i + 1)
		f.SetColWidth(templateSheet, colName, colName, 18)
	}
	for r, sample := range template.SampleData {
		for i, col := range template.Columns {
			cell, _ := excelize.CoordinatesToCellName(i+1, r+2)
			f.SetCellValue(templateSheet, cell, sample[col.Name])
		}
	}

	if _, err := f.NewSheet(instructionsSheet); err != nil {
		return err
	}
	f.SetCellValue(instructionsSheet, "A1", "Importacao de kits")
	f.SetCellValue(instructionsSheet, "A3", "Colunas marcadas com * sao obrigatorias.")
	f.SetCellValue(instructionsSheet, "A4", "Marcas e categorias sao comparadas sem acentos e sem diferenciar maiusculas; nomes novos sao criados uma unica vez.")
	f.SetCellValue(instructionsSheet, "A5", "Adicione colunas estoque_<tamanho> para outros tamanhos (ex.: estoque_RN, estoque_10).")
	f.SetCellValue(instructionsSheet, "A7", "Coluna")
	f.SetCellValue(instructionsSheet, "B7", "Descricao")
	f.SetCellValue(instructionsSheet, "C7", "Obrigatoria")
	f.SetCellValue(instructionsSheet, "D7", "Tipo")
	f.SetCellValue(instructionsSheet, "E7", "Exemplo")
	for i, col := range template.Columns {
		row := i + 8
		required := "Nao"
		if col.Required {
			required = "Sim"
		}
		f.SetCellValue(instructionsSheet, fmt.Sprintf("A%d", row), col.Name)
		f.SetCellValue(instructionsSheet, fmt.Sprintf("B%d", row), col.Description)
		f.SetCellValue(instructionsSheet, fmt.Sprintf("C%d", row), required)
		f.SetCellValue(instructionsSheet, fmt.Sprintf("D%d", row), col.Type)
		f.SetCellValue(instructionsSheet, fmt.Sprintf("E%d", row), col.Example)
	}
	f.SetColWidth(instructionsSheet, "A", "A", 20)
	f.SetColWidth(instructionsSheet, "B", "B", 70)

	f.SetActiveSheet(0)
	return f.Write(w)
}

// WriteReportXLSX exports a finished import: one summary sheet and one row
// per spreadsheet line with its validation and commit outcome.
func WriteReportXLSX(w io.Writer, report *models.BulkImportReport) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return err
	}
	headerStyle, _, err := headerStyles(f)
	if err != nil {
		return err
	}

	summary := [][2]interface{}{
		{"Importacao", report.ID},
		{"Data", report.Timestamp.Format("2006-01-02 15:04:05")},
		{"Linhas", report.TotalRows},
		{"Validas", report.ValidCount},
		{"Com aviso", report.WarningCount},
		{"Com erro", report.ErrorCount},
		{"Criados", report.SuccessCount},
		{"Falhas na gravacao", report.CommitFailureCount},
		{"Nao processados", report.SkippedCount},
		{"Marcas criadas", report.CreatedBrands},
		{"Categorias criadas", report.CreatedCategories},
	}
	for i, kv := range summary {
		f.SetCellValue(summarySheet, fmt.Sprintf("A%d", i+1), kv[0])
		f.SetCellValue(summarySheet, fmt.Sprintf("B%d", i+1), kv[1])
	}
	f.SetColWidth(summarySheet, "A", "A", 22)
	f.SetColWidth(summarySheet, "B", "B", 40)

	if _, err := f.NewSheet(resultsSheet); err != nil {
		return err
	}
	headers := []string{"linha", "status", "mensagens", "resultado", "codigo", "produto", "marca", "categoria", "erro"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(resultsSheet, cell, h)
		f.SetCellStyle(resultsSheet, cell, cell, headerStyle)
	}

	outcomes := make(map[int]models.RowOutcome, len(report.Outcomes))
	for _, o := range report.Outcomes {
		outcomes[o.Row] = o
	}
	validations := make([]models.ValidationResult, len(report.Validations))
	copy(validations, report.Validations)
	sort.SliceStable(validations, func(i, j int) bool { return validations[i].Row < validations[j].Row })

	for r, v := range validations {
		o := outcomes[v.Row]
		values := []interface{}{v.Row, string(v.Status), strings.Join(v.Messages, "; "), string(o.Status), o.Code, o.ProductID, o.BrandID, o.CategoryID, o.Error}
		for i, value := range values {
			cell, _ := excelize.CoordinatesToCellName(i+1, r+2)
			f.SetCellValue(resultsSheet, cell, value)
		}
	}
	f.SetColWidth(resultsSheet, "C", "C", 60)
	f.SetColWidth(resultsSheet, "F", "H", 38)

	return f.Write(w)
}
