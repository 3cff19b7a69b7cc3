package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type FinancialTotals struct {
	CompanyValue       decimal.Decimal
	CorrespondentValue decimal.Decimal
	ProfitMargin       decimal.Decimal
}

type CompanyGroup struct {
	Company  Company
	Requests []ServiceRequest
	Totals   FinancialTotals
}

type FinancialReport struct {
	PeriodStart   time.Time
	PeriodEnd     time.Time
	TotalRequests int
	Totals        FinancialTotals
	Groups        []CompanyGroup
}

// CompletionCertificate is the printable close-out record of a completed
// request. Internal values are hidden when ShowInternalValues is false.
type CompletionCertificate struct {
	Request            ServiceRequest
	Company            Company
	Correspondent      Correspondent
	IssuedAt           time.Time
	IssuedBy           uuid.UUID
	ShowInternalValues bool
}
