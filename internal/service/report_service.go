package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nurpe/jurisconnect/internal/model"
	"github.com/nurpe/jurisconnect/internal/repository"
)

type ExcelGenerator interface {
	Generate(report model.FinancialReport) ([]byte, error)
}

type PDFGenerator interface {
	Generate(cert model.CompletionCertificate) ([]byte, error)
}

type ReportService struct {
	store Store
	excel ExcelGenerator
	pdf   PDFGenerator
	now   func() time.Time
}

type FinancialReportInput struct {
	PeriodStart time.Time
	PeriodEnd   time.Time
	Principal   model.Principal
}

type ExportResult struct {
	FileName string
	Content  []byte
}

// reportPageSize bounds each store read while collecting a period.
const reportPageSize = 500

func NewReportService(store Store, excel ExcelGenerator, pdf PDFGenerator) *ReportService {
	return &ReportService{
		store: store,
		excel: excel,
		pdf:   pdf,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (s *ReportService) ExportFinancialReport(ctx context.Context, input FinancialReportInput) (*ExportResult, error) {
	if err := NewEvaluator().CanPerform(input.Principal, OpExportReport, nil).Err(); err != nil {
		return nil, err
	}
	if input.PeriodStart.IsZero() || input.PeriodEnd.IsZero() {
		return nil, fmt.Errorf("%w: period dates are required", ErrValidation)
	}

	periodStart := dateOnly(input.PeriodStart)
	periodEnd := dateOnly(input.PeriodEnd)
	if periodStart.After(periodEnd) {
		return nil, fmt.Errorf("%w: period_start must be before or equal to period_end", ErrValidation)
	}
	endExclusive := periodEnd.Add(24 * time.Hour)

	var requests []model.ServiceRequest
	for offset := 0; ; offset += reportPageSize {
		page, total, err := s.store.FindRequests(ctx, repository.RequestFilter{
			CreatedFrom: &periodStart,
			CreatedTo:   &endExclusive,
			Limit:       reportPageSize,
			Offset:      offset,
		})
		if err != nil {
			return nil, fmt.Errorf("collect period requests: %w", err)
		}
		requests = append(requests, page...)
		if len(page) < reportPageSize || int64(len(requests)) >= total {
			break
		}
	}

	groups, err := s.groupByCompany(ctx, requests)
	if err != nil {
		return nil, err
	}

	report := model.FinancialReport{
		PeriodStart:   periodStart,
		PeriodEnd:     periodEnd,
		TotalRequests: len(requests),
		Groups:        groups,
	}
	for _, group := range groups {
		report.Totals = addTotals(report.Totals, group.Totals)
	}

	content, err := s.excel.Generate(report)
	if err != nil {
		return nil, err
	}
	return &ExportResult{
		FileName: buildFinancialFileName(report),
		Content:  content,
	}, nil
}

func (s *ReportService) groupByCompany(ctx context.Context, requests []model.ServiceRequest) ([]model.CompanyGroup, error) {
	index := make(map[uuid.UUID]int)
	var groups []model.CompanyGroup
	var companyIDs []uuid.UUID

	for _, req := range requests {
		pos, ok := index[req.CompanyID]
		if !ok {
			groups = append(groups, model.CompanyGroup{Company: model.Company{ID: req.CompanyID}})
			pos = len(groups) - 1
			index[req.CompanyID] = pos
			companyIDs = append(companyIDs, req.CompanyID)
		}
		groups[pos].Requests = append(groups[pos].Requests, req)
		groups[pos].Totals = addTotals(groups[pos].Totals, requestTotals(req))
	}
	if len(companyIDs) == 0 {
		return groups, nil
	}

	companies, err := s.store.ListCompaniesByIDs(ctx, companyIDs)
	if err != nil {
		return nil, fmt.Errorf("load companies: %w", err)
	}
	for _, company := range companies {
		if pos, ok := index[company.ID]; ok {
			groups[pos].Company = company
		}
	}

	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].Company.Name < groups[j].Company.Name
	})
	return groups, nil
}

func requestTotals(req model.ServiceRequest) model.FinancialTotals {
	var totals model.FinancialTotals
	if req.Status == model.StatusCancelled || req.Status == model.StatusRejected {
		return totals
	}
	if req.CompanyValue.Valid {
		totals.CompanyValue = req.CompanyValue.Decimal
	}
	if req.CorrespondentValue.Valid {
		totals.CorrespondentValue = req.CorrespondentValue.Decimal
	}
	if req.ProfitMargin.Valid {
		totals.ProfitMargin = req.ProfitMargin.Decimal
	}
	return totals
}

func addTotals(a, b model.FinancialTotals) model.FinancialTotals {
	return model.FinancialTotals{
		CompanyValue:       a.CompanyValue.Add(b.CompanyValue),
		CorrespondentValue: a.CorrespondentValue.Add(b.CorrespondentValue),
		ProfitMargin:       a.ProfitMargin.Add(b.ProfitMargin),
	}
}

func (s *ReportService) CompletionCertificate(ctx context.Context, actor model.Principal, id uuid.UUID) (*ExportResult, error) {
	req, err := s.store.GetRequest(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: service request %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("load service request: %w", err)
	}
	if !actor.IsAdmin() && !(actor.IsCompany() && actor.Owns(req.CompanyID)) {
		return nil, fmt.Errorf("%w: certificates are issued to the owning company", ErrForbidden)
	}
	if req.Status != model.StatusCompleted || req.CorrespondentID == nil {
		return nil, fmt.Errorf("%w: certificates need a completed request, status is %s", ErrInvalidTransition, req.Status)
	}

	company, err := s.store.GetCompany(ctx, req.CompanyID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: company %s", ErrNotFound, req.CompanyID)
		}
		return nil, fmt.Errorf("load company: %w", err)
	}
	correspondent, err := s.store.GetCorrespondent(ctx, *req.CorrespondentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: correspondent %s", ErrNotFound, *req.CorrespondentID)
		}
		return nil, fmt.Errorf("load correspondent: %w", err)
	}

	content, err := s.pdf.Generate(model.CompletionCertificate{
		Request:            *req,
		Company:            *company,
		Correspondent:      *correspondent,
		IssuedAt:           s.now(),
		IssuedBy:           actor.UserID,
		ShowInternalValues: actor.IsAdmin(),
	})
	if err != nil {
		return nil, err
	}

	name := sanitizeFileName(req.Title)
	if name == "" {
		name = req.ID.String()
	}
	return &ExportResult{
		FileName: fmt.Sprintf("certificate-%s-%s.pdf", name, req.CompletedAt.Format("20060102")),
		Content:  content,
	}, nil
}

func buildFinancialFileName(report model.FinancialReport) string {
	period := fmt.Sprintf("%s-%s", report.PeriodStart.Format("20060102"), report.PeriodEnd.Format("20060102"))
	return fmt.Sprintf("financial-report-%s.xlsx", period)
}

func dateOnly(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func sanitizeFileName(input string) string {
	result := make([]rune, 0, len(input))
	for _, r := range strings.ToLower(input) {
		switch {
		case r >= 'a' && r <= 'z':
			result = append(result, r)
		case r >= '0' && r <= '9':
			result = append(result, r)
		case r == '-', r == '_':
			result = append(result, r)
		default:
			result = append(result, '-')
		}
	}
	return strings.Trim(string(result), "-")
}
