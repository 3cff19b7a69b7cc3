package excel

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/nurpe/jurisconnect/internal/model"
)

const summarySheet = "Resumo"

type Generator struct{}

func NewGenerator() *Generator {
	return &Generator{}
}

// Generate renders a summary sheet plus one detail sheet per company.
func (g *Generator) Generate(report model.FinancialReport) ([]byte, error) {
	file := excelize.NewFile()
	defer file.Close()

	if err := file.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	if err := g.writeSummary(file, summarySheet, report); err != nil {
		return nil, err
	}

	usedNames := map[string]struct{}{summarySheet: {}}
	for _, group := range report.Groups {
		sheetName := buildSheetName(group.Company.Name, group.Company.ID, usedNames)
		usedNames[sheetName] = struct{}{}

		if _, err := file.NewSheet(sheetName); err != nil {
			return nil, err
		}
		if err := g.writeDetail(file, sheetName, report, group); err != nil {
			return nil, err
		}
	}

	file.SetActiveSheet(0)
	buf, err := file.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (g *Generator) writeSummary(file *excelize.File, sheet string, report model.FinancialReport) error {
	set := func(cell string, value interface{}) {
		_ = file.SetCellValue(sheet, cell, value)
	}

	set("A1", "Relatório financeiro")
	set("A2", "Início do período")
	set("B2", formatDate(report.PeriodStart))
	set("A3", "Fim do período")
	set("B3", formatDate(report.PeriodEnd))
	set("A4", "Solicitações")
	set("B4", report.TotalRequests)
	set("A5", "Valor cobrado")
	set("B5", money(report.Totals.CompanyValue))
	set("A6", "Valor correspondentes")
	set("B6", money(report.Totals.CorrespondentValue))
	set("A7", "Margem")
	set("B7", money(report.Totals.ProfitMargin))

	tableRow := 9
	headers := []string{"Empresa", "CNPJ", "Solicitações", "Valor cobrado", "Valor correspondentes", "Margem"}
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, tableRow)
		set(cell, header)
	}
	for i, group := range report.Groups {
		row := tableRow + 1 + i
		set(fmt.Sprintf("A%d", row), companyLabel(group.Company))
		set(fmt.Sprintf("B%d", row), group.Company.CNPJ)
		set(fmt.Sprintf("C%d", row), len(group.Requests))
		set(fmt.Sprintf("D%d", row), money(group.Totals.CompanyValue))
		set(fmt.Sprintf("E%d", row), money(group.Totals.CorrespondentValue))
		set(fmt.Sprintf("F%d", row), money(group.Totals.ProfitMargin))
	}

	_ = file.SetColWidth(sheet, "A", "A", 40)
	_ = file.SetColWidth(sheet, "B", "B", 22)
	_ = file.SetColWidth(sheet, "C", "F", 20)
	return nil
}

func (g *Generator) writeDetail(file *excelize.File, sheet string, report model.FinancialReport, group model.CompanyGroup) error {
	set := func(cell string, value interface{}) {
		_ = file.SetCellValue(sheet, cell, value)
	}

	set("A1", "Empresa")
	set("B1", companyLabel(group.Company))
	set("A2", "Início do período")
	set("B2", formatDate(report.PeriodStart))
	set("A3", "Fim do período")
	set("B3", formatDate(report.PeriodEnd))
	set("A4", "Solicitações")
	set("B4", len(group.Requests))
	set("A5", "Margem")
	set("B5", money(group.Totals.ProfitMargin))

	tableRow := 7
	headers := []string{
		"Criada em",
		"Título",
		"Tipo",
		"Cidade/UF",
		"Prazo",
		"Status",
		"Pagamento",
		"Valor cobrado",
		"Valor correspondente",
		"Margem",
	}
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, tableRow)
		set(cell, header)
	}

	for i, req := range group.Requests {
		row := tableRow + 1 + i
		set(fmt.Sprintf("A%d", row), formatDateTime(req.CreatedAt))
		set(fmt.Sprintf("B%d", row), req.Title)
		set(fmt.Sprintf("C%d", row), string(req.ServiceType))
		set(fmt.Sprintf("D%d", row), fmt.Sprintf("%s/%s", req.ServiceArea.City, req.ServiceArea.State))
		set(fmt.Sprintf("E%d", row), formatDate(req.Deadline))
		set(fmt.Sprintf("F%d", row), string(req.Status))
		set(fmt.Sprintf("G%d", row), string(req.Payment.Status))
		set(fmt.Sprintf("H%d", row), nullMoney(req.CompanyValue))
		set(fmt.Sprintf("I%d", row), nullMoney(req.CorrespondentValue))
		set(fmt.Sprintf("J%d", row), nullMoney(req.ProfitMargin))
	}

	_ = file.SetColWidth(sheet, "A", "A", 20)
	_ = file.SetColWidth(sheet, "B", "B", 40)
	_ = file.SetColWidth(sheet, "C", "G", 16)
	_ = file.SetColWidth(sheet, "H", "J", 18)
	return nil
}

func companyLabel(company model.Company) string {
	if strings.TrimSpace(company.Name) != "" {
		return company.Name
	}
	return company.ID.String()
}

func buildSheetName(name string, id uuid.UUID, used map[string]struct{}) string {
	base := strings.TrimSpace(name)
	if base == "" {
		base = id.String()
	}
	base = sanitizeSheetName(base)

	runes := []rune(base)
	if len(runes) > 31 {
		base = string(runes[:31])
	}

	candidate := base
	for counter := 2; ; counter++ {
		if _, exists := used[candidate]; !exists {
			return candidate
		}
		suffix := fmt.Sprintf("-%d", counter)
		trimmed := []rune(base)
		if len(trimmed)+len(suffix) > 31 {
			trimmed = trimmed[:31-len(suffix)]
		}
		candidate = string(trimmed) + suffix
	}
}

func sanitizeSheetName(value string) string {
	replacer := strings.NewReplacer(
		"[", "-",
		"]", "-",
		":", "-",
		"*", "-",
		"?", "-",
		"/", "-",
		"\\", "-",
	)
	value = strings.TrimSpace(replacer.Replace(value))
	if value == "" || value == summarySheet {
		return "Empresa"
	}
	return value
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("02/01/2006")
}

func formatDateTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("02/01/2006 15:04")
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func nullMoney(d decimal.NullDecimal) string {
	if !d.Valid {
		return ""
	}
	return d.Decimal.StringFixed(2)
}
