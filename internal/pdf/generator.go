package pdf

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/shopspring/decimal"

	"github.com/nurpe/jurisconnect/internal/model"
)

const fontName = "Helvetica"

type Generator struct{}

func NewGenerator() *Generator {
	return &Generator{}
}

// Generate renders a one-page completion certificate. Core fonts are encoded
// as cp1252, which covers Portuguese text.
func (g *Generator) Generate(cert model.CompletionCertificate) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	req := cert.Request

	pdf.SetFont(fontName, "B", 14)
	pdf.CellFormat(0, 10, tr("Certificado de conclusão de serviço"), "", 1, "C", false, 0, "")
	pdf.SetFont(fontName, "", 10)
	pdf.CellFormat(0, 6, tr(fmt.Sprintf("Solicitação %s", req.ID)), "", 1, "C", false, 0, "")
	pdf.CellFormat(0, 6, tr(fmt.Sprintf("Emitido em %s", formatDateTime(cert.IssuedAt))), "", 1, "C", false, 0, "")
	pdf.Ln(4)

	section(pdf, tr, "Serviço")
	lines := []string{
		fmt.Sprintf("Título: %s", safeValue(req.Title)),
		fmt.Sprintf("Tipo: %s", safeValue(string(req.ServiceType))),
		fmt.Sprintf("Processo: %s", safeValue(req.ProcessNumber)),
		fmt.Sprintf("Local: %s", location(req.ServiceArea)),
		fmt.Sprintf("Prazo: %s", formatDate(req.Deadline)),
		fmt.Sprintf("Concluído em: %s", formatTimePtr(req.CompletedAt)),
	}
	if req.ClientName != "" {
		lines = append(lines, fmt.Sprintf("Cliente: %s", req.ClientName))
	}
	writeLines(pdf, tr, lines)
	pdf.Ln(2)

	section(pdf, tr, "Contratante")
	writeLines(pdf, tr, []string{
		safeValue(cert.Company.Name),
		fmt.Sprintf("CNPJ: %s", safeValue(cert.Company.CNPJ)),
		fmt.Sprintf("Endereço: %s", safeValue(cert.Company.Address)),
	})
	pdf.Ln(2)

	section(pdf, tr, "Correspondente")
	writeLines(pdf, tr, []string{
		safeValue(cert.Correspondent.FullName),
		fmt.Sprintf("OAB: %s/%s", safeValue(cert.Correspondent.OAB.Number), safeValue(cert.Correspondent.OAB.State)),
	})
	pdf.Ln(2)

	section(pdf, tr, "Relatório de conclusão")
	pdf.SetFont(fontName, "", 10)
	if report := req.CompletionReport; report != nil {
		pdf.MultiCell(0, 5, tr(safeValue(report.Content)), "", "L", false)
		for _, a := range report.Attachments {
			pdf.MultiCell(0, 5, tr(fmt.Sprintf("Anexo: %s", a.Name)), "", "L", false)
		}
		status := "Relatório pendente de aprovação"
		if report.Approved {
			status = fmt.Sprintf("Relatório aprovado em %s", formatTimePtr(report.ApprovedAt))
		}
		pdf.Ln(1)
		pdf.MultiCell(0, 5, tr(status), "", "L", false)
	} else {
		pdf.MultiCell(0, 5, "-", "", "L", false)
	}
	pdf.Ln(2)

	section(pdf, tr, "Valores")
	colWidths := []float64{120, 60}
	drawTableRow(pdf, tr, []string{"Descrição", "Valor (R$)"}, colWidths, true)
	drawTableRow(pdf, tr, []string{"Valor do serviço", formatMoney(req.CompanyValue)}, colWidths, false)
	if cert.ShowInternalValues {
		drawTableRow(pdf, tr, []string{"Valor do correspondente", formatMoney(req.CorrespondentValue)}, colWidths, false)
		drawTableRow(pdf, tr, []string{"Margem", formatMoney(req.ProfitMargin)}, colWidths, false)
	}
	pdf.Ln(8)

	signatureBlock(pdf, tr, "Correspondente", cert.Correspondent.FullName)
	signatureBlock(pdf, tr, "Contratante", cert.Company.ContactName)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func section(pdf *gofpdf.Fpdf, tr func(string) string, title string) {
	pdf.SetFont(fontName, "B", 12)
	pdf.CellFormat(0, 8, tr(title), "", 1, "L", false, 0, "")
}

func writeLines(pdf *gofpdf.Fpdf, tr func(string) string, lines []string) {
	pdf.SetFont(fontName, "", 10)
	for _, line := range lines {
		pdf.MultiCell(0, 5, tr(line), "", "L", false)
	}
}

func drawTableRow(pdf *gofpdf.Fpdf, tr func(string) string, cols []string, widths []float64, header bool) {
	style := ""
	if header {
		style = "B"
	}
	pdf.SetFont(fontName, style, 10)
	for i, col := range cols {
		align := "L"
		if i > 0 {
			align = "R"
		}
		pdf.CellFormat(widths[i], 8, tr(col), "1", 0, align, false, 0, "")
	}
	pdf.Ln(-1)
}

func signatureBlock(pdf *gofpdf.Fpdf, tr func(string) string, label, name string) {
	pdf.SetFont(fontName, "", 11)
	pdf.CellFormat(0, 8, tr(fmt.Sprintf("%s: ______________________ /%s/", label, safeValue(name))), "", 1, "L", false, 0, "")
}

func location(loc model.Location) string {
	parts := []string{}
	if loc.Court != "" {
		parts = append(parts, loc.Court)
	}
	if loc.CourtSection != "" {
		parts = append(parts, loc.CourtSection)
	}
	parts = append(parts, fmt.Sprintf("%s/%s", loc.City, loc.State))
	return strings.Join(parts, ", ")
}

func safeValue(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}

func formatMoney(d decimal.NullDecimal) string {
	if !d.Valid {
		return "-"
	}
	return d.Decimal.StringFixed(2)
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("02/01/2006")
}

func formatDateTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("02/01/2006 15:04")
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return formatDateTime(*t)
}
