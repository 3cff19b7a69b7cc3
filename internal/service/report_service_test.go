package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/nurpe/jurisconnect/internal/model"
	"github.com/nurpe/jurisconnect/internal/repository"
)

type stubExcel struct {
	report model.FinancialReport
	err    error
}

func (s *stubExcel) Generate(report model.FinancialReport) ([]byte, error) {
	s.report = report
	return []byte("xlsx"), s.err
}

type stubPDF struct {
	cert model.CompletionCertificate
}

func (s *stubPDF) Generate(cert model.CompletionCertificate) ([]byte, error) {
	s.cert = cert
	return []byte("%PDF-"), nil
}

func seedRequest(t *testing.T, store *repository.MemoryStore, companyID uuid.UUID, status model.RequestStatus, createdAt time.Time, company, correspondent int64) *model.ServiceRequest {
	t.Helper()
	req := &model.ServiceRequest{
		ID:        uuid.New(),
		CompanyID: companyID,
		Title:     "Diligência " + string(status),
		Status:    status,
		CreatedAt: createdAt,
		Deadline:  createdAt.Add(48 * time.Hour),
	}
	if company > 0 {
		req.CompanyValue = decimal.NewNullDecimal(decimal.NewFromInt(company))
	}
	if correspondent > 0 {
		req.CorrespondentValue = decimal.NewNullDecimal(decimal.NewFromInt(correspondent))
	}
	req.RecomputeProfit()
	require.NoError(t, store.CreateRequest(context.Background(), req))
	return req
}

func TestExportFinancialReport(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	alpha := model.Company{ID: uuid.New(), Name: "Alpha Advocacia", Active: true}
	beta := model.Company{ID: uuid.New(), Name: "Beta Jurídico", Active: true}
	store.PutCompany(alpha)
	store.PutCompany(beta)

	day := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	seedRequest(t, store, beta.ID, model.StatusCompleted, day, 500, 300)
	seedRequest(t, store, alpha.ID, model.StatusAssigned, day, 400, 250)
	seedRequest(t, store, alpha.ID, model.StatusCancelled, day, 1000, 600)
	seedRequest(t, store, alpha.ID, model.StatusOpen, day, 0, 0)
	seedRequest(t, store, alpha.ID, model.StatusCompleted, day.AddDate(0, 1, 0), 900, 100)

	excel := &stubExcel{}
	svc := NewReportService(store, excel, &stubPDF{})
	admin := model.Principal{UserID: uuid.New(), Role: model.RoleAdmin}

	res, err := svc.ExportFinancialReport(ctx, FinancialReportInput{
		PeriodStart: time.Date(2026, 3, 1, 15, 0, 0, 0, time.UTC),
		PeriodEnd:   time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC),
		Principal:   admin,
	})
	require.NoError(t, err)
	require.Equal(t, "financial-report-20260301-20260331.xlsx", res.FileName)
	require.Equal(t, []byte("xlsx"), res.Content)

	report := excel.report
	require.Equal(t, 4, report.TotalRequests)
	require.Len(t, report.Groups, 2)
	require.Equal(t, "Alpha Advocacia", report.Groups[0].Company.Name)
	require.Len(t, report.Groups[0].Requests, 3)
	require.True(t, report.Groups[0].Totals.CompanyValue.Equal(decimal.NewFromInt(400)))
	require.True(t, report.Groups[0].Totals.ProfitMargin.Equal(decimal.NewFromInt(150)))
	require.Equal(t, "Beta Jurídico", report.Groups[1].Company.Name)
	require.True(t, report.Totals.CompanyValue.Equal(decimal.NewFromInt(900)))
	require.True(t, report.Totals.CorrespondentValue.Equal(decimal.NewFromInt(550)))
	require.True(t, report.Totals.ProfitMargin.Equal(decimal.NewFromInt(350)))
}

func TestExportFinancialReportRejections(t *testing.T) {
	ctx := context.Background()
	excel := &stubExcel{}
	svc := NewReportService(repository.NewMemoryStore(), excel, &stubPDF{})
	admin := model.Principal{UserID: uuid.New(), Role: model.RoleAdmin}
	companyID := uuid.New()
	company := model.Principal{UserID: uuid.New(), Role: model.RoleCompany, ProfileID: &companyID}
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	_, err := svc.ExportFinancialReport(ctx, FinancialReportInput{PeriodStart: start, PeriodEnd: start, Principal: company})
	require.ErrorIs(t, err, ErrForbidden)

	_, err = svc.ExportFinancialReport(ctx, FinancialReportInput{PeriodStart: start, Principal: admin})
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.ExportFinancialReport(ctx, FinancialReportInput{PeriodStart: start, PeriodEnd: start.AddDate(0, 0, -1), Principal: admin})
	require.ErrorIs(t, err, ErrValidation)

	res, err := svc.ExportFinancialReport(ctx, FinancialReportInput{PeriodStart: start, PeriodEnd: start, Principal: admin})
	require.NoError(t, err)
	require.Equal(t, 0, excel.report.TotalRequests)
	require.Equal(t, "financial-report-20260301-20260301.xlsx", res.FileName)

	excel.err = errors.New("disk full")
	_, err = svc.ExportFinancialReport(ctx, FinancialReportInput{PeriodStart: start, PeriodEnd: start, Principal: admin})
	require.Error(t, err)
	require.Equal(t, CodeInternal, Code(err))
}

func TestCompletionCertificate(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	companyID := uuid.New()
	correspondentID := uuid.New()
	store.PutCompany(model.Company{ID: companyID, Name: "Alpha Advocacia", Active: true})
	store.PutCorrespondent(model.Correspondent{ID: correspondentID, FullName: "Ana Lima", Active: true})

	completedAt := time.Date(2026, 3, 12, 18, 0, 0, 0, time.UTC)
	req := seedRequest(t, store, companyID, model.StatusCompleted, completedAt.Add(-48*time.Hour), 500, 300)
	req.Title = "Cópia integral / 2ª Vara"
	req.CorrespondentID = &correspondentID
	req.CompletedAt = &completedAt
	req.CompletionReport = &model.CompletionReport{Content: "Cópias extraídas"}
	require.NoError(t, store.SaveRequest(ctx, req, repository.SaveCondition{ExpectedVersion: 1}))

	pdf := &stubPDF{}
	svc := NewReportService(store, &stubExcel{}, pdf)
	company := model.Principal{UserID: uuid.New(), Role: model.RoleCompany, ProfileID: &companyID}

	res, err := svc.CompletionCertificate(ctx, company, req.ID)
	require.NoError(t, err)
	require.Equal(t, "certificate-c-pia-integral---2--vara-20260312.pdf", res.FileName)
	require.False(t, pdf.cert.ShowInternalValues)
	require.Equal(t, "Ana Lima", pdf.cert.Correspondent.FullName)
	require.Equal(t, "Alpha Advocacia", pdf.cert.Company.Name)

	_, err = svc.CompletionCertificate(ctx, model.Principal{UserID: uuid.New(), Role: model.RoleAdmin}, req.ID)
	require.NoError(t, err)
	require.True(t, pdf.cert.ShowInternalValues)

	otherID := uuid.New()
	_, err = svc.CompletionCertificate(ctx, model.Principal{Role: model.RoleCompany, ProfileID: &otherID}, req.ID)
	require.ErrorIs(t, err, ErrForbidden)
	_, err = svc.CompletionCertificate(ctx, model.Principal{Role: model.RoleCorrespondent, ProfileID: &correspondentID}, req.ID)
	require.ErrorIs(t, err, ErrForbidden)

	open := seedRequest(t, store, companyID, model.StatusOpen, completedAt, 0, 0)
	_, err = svc.CompletionCertificate(ctx, company, open.ID)
	require.ErrorIs(t, err, ErrInvalidTransition)

	_, err = svc.CompletionCertificate(ctx, company, uuid.New())
	require.ErrorIs(t, err, ErrNotFound)
}
