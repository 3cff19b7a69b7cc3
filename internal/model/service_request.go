package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type RequestStatus string

const (
	StatusOpen       RequestStatus = "open"
	StatusInReview   RequestStatus = "in_review"
	StatusAssigned   RequestStatus = "assigned"
	StatusAccepted   RequestStatus = "accepted"
	StatusInProgress RequestStatus = "in_progress"
	StatusCompleted  RequestStatus = "completed"
	StatusCancelled  RequestStatus = "cancelled"
	StatusRejected   RequestStatus = "rejected"
)

var statusAliases = map[string]RequestStatus{
	"open":        StatusOpen,
	"in_review":   StatusInReview,
	"assigned":    StatusAssigned,
	"accepted":    StatusAccepted,
	"in_progress": StatusInProgress,
	"completed":   StatusCompleted,
	"cancelled":   StatusCancelled,
	"rejected":    StatusRejected,

	"pending_approval": StatusOpen,
	"approved":         StatusInReview,

	"aberta":       StatusOpen,
	"em_analise":   StatusInReview,
	"atribuida":    StatusAssigned,
	"em_andamento": StatusInProgress,
	"concluida":    StatusCompleted,
	"cancelada":    StatusCancelled,
	"rejeitada":    StatusRejected,
}

// ParseStatus maps canonical, legacy english and portuguese status names to
// the canonical status.
func ParseStatus(raw string) (RequestStatus, bool) {
	status, ok := statusAliases[strings.ToLower(strings.TrimSpace(raw))]
	return status, ok
}

func (s RequestStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusRejected:
		return true
	default:
		return false
	}
}

type ServiceType string

const (
	ServiceTypeHearing      ServiceType = "hearing"
	ServiceTypeFiling       ServiceType = "filing"
	ServiceTypeDiligence    ServiceType = "diligence"
	ServiceTypeCaseCopy     ServiceType = "case_copy"
	ServiceTypeDispatch     ServiceType = "dispatch"
	ServiceTypeDistribution ServiceType = "distribution"
	ServiceTypeOther        ServiceType = "other"
)

type Urgency string

const (
	UrgencyLow    Urgency = "low"
	UrgencyMedium Urgency = "medium"
	UrgencyHigh   Urgency = "high"
	UrgencyUrgent Urgency = "urgent"
)

type DocumentType string

const (
	DocumentPowerOfAttorney DocumentType = "power_of_attorney"
	DocumentPetition        DocumentType = "petition"
	DocumentGeneric         DocumentType = "document"
	DocumentOther           DocumentType = "other"
)

type PaymentStatus string

const (
	PaymentPending    PaymentStatus = "pending"
	PaymentProcessing PaymentStatus = "processing"
	PaymentPaid       PaymentStatus = "paid"
	PaymentCancelled  PaymentStatus = "cancelled"
)

type PaymentMethod string

const (
	PaymentMethodPix      PaymentMethod = "pix"
	PaymentMethodTransfer PaymentMethod = "transfer"
	PaymentMethodBoleto   PaymentMethod = "boleto"
	PaymentMethodCredit   PaymentMethod = "credit"
	PaymentMethodOther    PaymentMethod = "other"
)

type Location struct {
	City         string
	State        string
	Court        string
	CourtSection string
	Address      string
}

// StatusChange is one entry of the append-only audit trail.
type StatusChange struct {
	Seq     int
	Status  RequestStatus
	At      time.Time
	Note    string
	ActorID uuid.UUID
}

type Attachment struct {
	Name       string
	Path       string
	UploadedAt time.Time
}

type CompletionReport struct {
	Content       string
	SubmittedAt   *time.Time
	Attachments   []Attachment
	Approved      bool
	ApprovedAt    *time.Time
	ApprovedBy    *uuid.UUID
	ApprovalNotes string
}

type Document struct {
	ID         uuid.UUID
	Type       DocumentType
	Name       string
	Path       string
	UploadedAt time.Time
	UploadedBy uuid.UUID
}

type Payment struct {
	Status PaymentStatus
	Method *PaymentMethod
	PaidAt *time.Time
	Notes  string
}

type Rating struct {
	Value   int
	Comment string
	RatedAt time.Time
}

type ServiceRequest struct {
	ID              uuid.UUID
	CompanyID       uuid.UUID
	CorrespondentID *uuid.UUID

	Title          string
	Description    string
	ServiceType    ServiceType
	PracticeArea   string
	ServiceArea    Location
	ProcessNumber  string
	ClientName     string
	ClientDocument string
	OpposingParty  string
	Urgency        Urgency
	Deadline       time.Time
	ScheduledDate  *time.Time
	ScheduledTime  string
	Notes          string
	Instructions   string

	Status        RequestStatus
	StatusHistory []StatusChange

	CompanyValue       decimal.NullDecimal
	CorrespondentValue decimal.NullDecimal
	ProfitMargin       decimal.NullDecimal

	CompletedAt      *time.Time
	CompletionReport *CompletionReport
	Documents        []Document
	Payment          Payment
	Rating           *Rating

	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsOverdue is a read-time predicate; overdue is never stored.
func (r *ServiceRequest) IsOverdue(now time.Time) bool {
	if r.Status.Terminal() {
		return false
	}
	return now.After(r.Deadline)
}

func (r *ServiceRequest) LastChange() (StatusChange, bool) {
	if len(r.StatusHistory) == 0 {
		return StatusChange{}, false
	}
	return r.StatusHistory[len(r.StatusHistory)-1], true
}

func (r *ServiceRequest) AssignedTo(correspondentID uuid.UUID) bool {
	return r.CorrespondentID != nil && *r.CorrespondentID == correspondentID
}

// RecomputeProfit keeps ProfitMargin equal to CompanyValue - CorrespondentValue
// whenever both values are set.
func (r *ServiceRequest) RecomputeProfit() {
	if !r.CompanyValue.Valid || !r.CorrespondentValue.Valid {
		r.ProfitMargin = decimal.NullDecimal{}
		return
	}
	r.ProfitMargin = decimal.NewNullDecimal(r.CompanyValue.Decimal.Sub(r.CorrespondentValue.Decimal))
}

// Clone returns a deep copy so callers can validate mutations without
// touching the original.
func (r *ServiceRequest) Clone() *ServiceRequest {
	if r == nil {
		return nil
	}
	out := *r
	out.CorrespondentID = cloneUUID(r.CorrespondentID)
	out.ScheduledDate = cloneTime(r.ScheduledDate)
	out.CompletedAt = cloneTime(r.CompletedAt)
	out.StatusHistory = append([]StatusChange(nil), r.StatusHistory...)
	out.Documents = append([]Document(nil), r.Documents...)
	out.Payment.Method = clonePaymentMethod(r.Payment.Method)
	out.Payment.PaidAt = cloneTime(r.Payment.PaidAt)
	if r.CompletionReport != nil {
		report := *r.CompletionReport
		report.SubmittedAt = cloneTime(r.CompletionReport.SubmittedAt)
		report.ApprovedAt = cloneTime(r.CompletionReport.ApprovedAt)
		report.ApprovedBy = cloneUUID(r.CompletionReport.ApprovedBy)
		report.Attachments = append([]Attachment(nil), r.CompletionReport.Attachments...)
		out.CompletionReport = &report
	}
	if r.Rating != nil {
		rating := *r.Rating
		out.Rating = &rating
	}
	return &out
}

func cloneUUID(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func clonePaymentMethod(m *PaymentMethod) *PaymentMethod {
	if m == nil {
		return nil
	}
	v := *m
	return &v
}
