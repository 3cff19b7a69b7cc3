package excel

import (
	"bytes"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/nurpe/jurisconnect/internal/model"
)

func TestGenerateFinancialReport(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)
	company := model.Company{ID: uuid.New(), Name: "Silva & Souza: Advogados", CNPJ: "12.345.678/0001-90"}

	req := model.ServiceRequest{
		ID:                 uuid.New(),
		CompanyID:          company.ID,
		Title:              "Audiência de conciliação",
		ServiceType:        model.ServiceTypeHearing,
		ServiceArea:        model.Location{City: "Campinas", State: "SP"},
		Deadline:           end,
		Status:             model.StatusCompleted,
		CompanyValue:       decimal.NewNullDecimal(decimal.NewFromInt(300)),
		CorrespondentValue: decimal.NewNullDecimal(decimal.NewFromInt(180)),
		ProfitMargin:       decimal.NewNullDecimal(decimal.NewFromInt(120)),
		Payment:            model.Payment{Status: model.PaymentPaid},
		CreatedAt:          start.Add(24 * time.Hour),
	}
	totals := model.FinancialTotals{
		CompanyValue:       decimal.NewFromInt(300),
		CorrespondentValue: decimal.NewFromInt(180),
		ProfitMargin:       decimal.NewFromInt(120),
	}
	report := model.FinancialReport{
		PeriodStart:   start,
		PeriodEnd:     end,
		TotalRequests: 1,
		Totals:        totals,
		Groups:        []model.CompanyGroup{{Company: company, Requests: []model.ServiceRequest{req}, Totals: totals}},
	}

	data, err := NewGenerator().Generate(report)
	require.NoError(t, err)

	file, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer file.Close()

	require.Equal(t, []string{"Resumo", "Silva & Souza- Advogados"}, file.GetSheetList())

	value, err := file.GetCellValue("Resumo", "B4")
	require.NoError(t, err)
	require.Equal(t, "1", value)

	value, err = file.GetCellValue("Resumo", "B7")
	require.NoError(t, err)
	require.Equal(t, "120.00", value)

	value, err = file.GetCellValue("Silva & Souza- Advogados", "B8")
	require.NoError(t, err)
	require.Equal(t, "Audiência de conciliação", value)

	value, err = file.GetCellValue("Silva & Souza- Advogados", "I8")
	require.NoError(t, err)
	require.Equal(t, "180.00", value)
}

func TestBuildSheetNameDeduplicatesAndTruncates(t *testing.T) {
	used := map[string]struct{}{summarySheet: {}}

	long := "Escritório de Advocacia Muito Comprido Ltda"
	first := buildSheetName(long, uuid.New(), used)
	require.Len(t, []rune(first), 31)
	used[first] = struct{}{}

	second := buildSheetName(long, uuid.New(), used)
	require.Len(t, []rune(second), 31)
	require.NotEqual(t, first, second)
	require.Contains(t, second, "-2")

	id := uuid.New()
	require.Equal(t, id.String()[:31], buildSheetName("  ", id, used))
	require.Equal(t, "Empresa", buildSheetName("Resumo", uuid.New(), used))
}
