package service

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nurpe/jurisconnect/internal/model"
)

type Operation string

const (
	OpRead            Operation = "read"
	OpCreate          Operation = "create"
	OpUpdate          Operation = "update"
	OpAssign          Operation = "assign"
	OpCancel          Operation = "cancel"
	OpTransition      Operation = "transition"
	OpApproveReport   Operation = "approve_report"
	OpSetCompanyValue Operation = "set_company_value"
	OpFindEligible    Operation = "find_eligible"
	OpUpdatePayment   Operation = "update_payment"
	OpRate            Operation = "rate"
	OpAttachDocument  Operation = "attach_document"
	OpExportReport    Operation = "export_report"
)

// Decision is the outcome of a permission check.
type Decision struct {
	Allowed bool
	Reason  string
}

func allow() Decision {
	return Decision{Allowed: true}
}

func deny(format string, args ...interface{}) Decision {
	return Decision{Reason: fmt.Sprintf(format, args...)}
}

// Err returns nil for allowed decisions and an ErrForbidden wrap otherwise.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrForbidden, d.Reason)
}

// Evaluator answers who may do what to which service request. It is pure:
// it never loads anything and never mutates the request.
type Evaluator struct{}

func NewEvaluator() *Evaluator {
	return &Evaluator{}
}

// CanPerform decides op for principal against req. req may be nil for
// operations that do not target a stored request (export_report, create
// without a draft).
func (e *Evaluator) CanPerform(p model.Principal, op Operation, req *model.ServiceRequest) Decision {
	if p.IsAdmin() {
		return allow()
	}

	switch op {
	case OpAssign, OpSetCompanyValue, OpFindEligible, OpUpdatePayment, OpExportReport:
		return deny("%s is restricted to admins", op)
	case OpCreate:
		if !p.IsCompany() {
			return deny("only companies and admins create service requests")
		}
		if p.ProfileID == nil {
			return deny("company profile is missing")
		}
		if req != nil && !p.Owns(req.CompanyID) {
			return deny("companies create requests for themselves only")
		}
		return allow()
	}

	if req == nil {
		return deny("%s needs a target request", op)
	}

	switch {
	case p.IsCompany():
		if !p.Owns(req.CompanyID) {
			return deny("request belongs to another company")
		}
		switch op {
		case OpRead, OpCancel, OpApproveReport, OpRate, OpAttachDocument:
			return allow()
		case OpUpdate:
			if req.Status != model.StatusOpen && req.Status != model.StatusInReview {
				return deny("companies edit requests only while open or in review")
			}
			return allow()
		case OpTransition:
			return allow()
		}
	case p.IsCorrespondent():
		if p.ProfileID == nil || !req.AssignedTo(*p.ProfileID) {
			return deny("request is not assigned to this correspondent")
		}
		switch op {
		case OpRead, OpAttachDocument, OpTransition:
			return allow()
		case OpUpdate:
			switch req.Status {
			case model.StatusAssigned, model.StatusInProgress:
				return allow()
			}
			return deny("correspondents edit requests only while assigned or in progress")
		}
	}

	return deny("%s is not permitted for role %s", op, p.Role)
}

// CanTransitionTo narrows OpTransition to the targets each role may request.
// The lifecycle table is checked separately.
func (e *Evaluator) CanTransitionTo(p model.Principal, req *model.ServiceRequest, target model.RequestStatus) Decision {
	if d := e.CanPerform(p, OpTransition, req); !d.Allowed {
		return d
	}
	switch {
	case p.IsAdmin():
		return allow()
	case p.IsCompany():
		if target == model.StatusCancelled {
			return allow()
		}
		return deny("companies may only cancel their requests")
	case p.IsCorrespondent():
		switch target {
		case model.StatusAccepted, model.StatusRejected, model.StatusInProgress, model.StatusCompleted:
			return allow()
		}
		return deny("correspondents cannot move a request to %s", target)
	}
	return deny("unknown role %s", p.Role)
}

// Field names accepted by UpdateServiceRequest.
const (
	FieldTitle            = "title"
	FieldDescription      = "description"
	FieldServiceType      = "serviceType"
	FieldPracticeArea     = "practiceArea"
	FieldServiceArea      = "serviceArea"
	FieldProcessNumber    = "processNumber"
	FieldClientName       = "clientName"
	FieldClientDocument   = "clientDocument"
	FieldOpposingParty    = "opposingParty"
	FieldUrgency          = "urgency"
	FieldDeadline         = "deadline"
	FieldScheduledDate    = "scheduledDate"
	FieldScheduledTime    = "scheduledTime"
	FieldNotes            = "notes"
	FieldStatus           = "status"
	FieldCompletionReport = "completionReport"
	FieldCompanyValue     = "companyValue"
	FieldInstructions     = "instructions"
)

var companyFields = fieldSet(
	FieldTitle, FieldDescription, FieldServiceType, FieldServiceArea, FieldProcessNumber,
	FieldClientName, FieldClientDocument, FieldOpposingParty, FieldUrgency, FieldDeadline,
	FieldScheduledDate, FieldScheduledTime, FieldNotes,
)

var correspondentFields = fieldSet(FieldStatus, FieldNotes, FieldCompletionReport)

func fieldSet(names ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, name := range names {
		set[name] = struct{}{}
	}
	return set
}

type LocationInput struct {
	City         string `json:"city" validate:"required,max=120"`
	State        string `json:"state" validate:"required,len=2,alpha"`
	Court        string `json:"court" validate:"max=200"`
	CourtSection string `json:"courtSection" validate:"max=200"`
	Address      string `json:"address" validate:"max=300"`
}

func (l LocationInput) toModel() model.Location {
	return model.Location{
		City:         strings.TrimSpace(l.City),
		State:        strings.ToUpper(strings.TrimSpace(l.State)),
		Court:        strings.TrimSpace(l.Court),
		CourtSection: strings.TrimSpace(l.CourtSection),
		Address:      strings.TrimSpace(l.Address),
	}
}

type CompletionReportInput struct {
	Content     string             `json:"content"`
	Attachments []model.Attachment `json:"attachments"`
}

// UpdateFields is a partial update: nil means "not provided".
type UpdateFields struct {
	Title            *string
	Description      *string
	ServiceType      *model.ServiceType
	PracticeArea     *string
	ServiceArea      *LocationInput
	ProcessNumber    *string
	ClientName       *string
	ClientDocument   *string
	OpposingParty    *string
	Urgency          *model.Urgency
	Deadline         *time.Time
	ScheduledDate    *time.Time
	ScheduledTime    *string
	Notes            *string
	Status           *model.RequestStatus
	CompletionReport *CompletionReportInput
	CompanyValue     *decimal.Decimal
	Instructions     *string
}

// Names lists the provided fields in a stable order.
func (f UpdateFields) Names() []string {
	var names []string
	add := func(set bool, name string) {
		if set {
			names = append(names, name)
		}
	}
	add(f.Title != nil, FieldTitle)
	add(f.Description != nil, FieldDescription)
	add(f.ServiceType != nil, FieldServiceType)
	add(f.PracticeArea != nil, FieldPracticeArea)
	add(f.ServiceArea != nil, FieldServiceArea)
	add(f.ProcessNumber != nil, FieldProcessNumber)
	add(f.ClientName != nil, FieldClientName)
	add(f.ClientDocument != nil, FieldClientDocument)
	add(f.OpposingParty != nil, FieldOpposingParty)
	add(f.Urgency != nil, FieldUrgency)
	add(f.Deadline != nil, FieldDeadline)
	add(f.ScheduledDate != nil, FieldScheduledDate)
	add(f.ScheduledTime != nil, FieldScheduledTime)
	add(f.Notes != nil, FieldNotes)
	add(f.Status != nil, FieldStatus)
	add(f.CompletionReport != nil, FieldCompletionReport)
	add(f.CompanyValue != nil, FieldCompanyValue)
	add(f.Instructions != nil, FieldInstructions)
	return names
}

// RequestUpdate is an update that passed the role allow-list and value
// validation. It can only be built by ProjectUpdate.
type RequestUpdate struct {
	fields UpdateFields
}

func (u RequestUpdate) Fields() UpdateFields {
	return u.fields
}

func (u RequestUpdate) Empty() bool {
	return len(u.fields.Names()) == 0
}

var (
	processNumberPattern = regexp.MustCompile(`^\d{7}-\d{2}\.\d{4}\.\d\.\d{2}\.\d{4}$`)
	scheduledTimePattern = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)
	statePattern         = regexp.MustCompile(`^[A-Za-z]{2}$`)
)

// ProjectUpdate checks every provided field against the role's allow-list
// and validates the values. Disallowed fields are rejected, never dropped.
func (e *Evaluator) ProjectUpdate(p model.Principal, fields UpdateFields, current *model.ServiceRequest) (RequestUpdate, error) {
	if err := e.CanPerform(p, OpUpdate, current).Err(); err != nil {
		return RequestUpdate{}, err
	}

	var allowed map[string]struct{}
	switch {
	case p.IsAdmin():
	case p.IsCompany():
		allowed = companyFields
	case p.IsCorrespondent():
		allowed = correspondentFields
	}

	names := fields.Names()
	if allowed != nil {
		var rejected []string
		for _, name := range names {
			if _, ok := allowed[name]; !ok {
				rejected = append(rejected, name)
			}
		}
		if len(rejected) > 0 {
			sort.Strings(rejected)
			return RequestUpdate{}, fmt.Errorf("%w: role %s cannot update %s", ErrForbidden, p.Role, strings.Join(rejected, ", "))
		}
	}

	if err := validateFields(fields, current); err != nil {
		return RequestUpdate{}, err
	}

	out := fields
	if fields.ServiceArea != nil {
		area := *fields.ServiceArea
		out.ServiceArea = &area
	}
	if fields.CompletionReport != nil {
		report := *fields.CompletionReport
		report.Attachments = append([]model.Attachment(nil), fields.CompletionReport.Attachments...)
		out.CompletionReport = &report
	}
	return RequestUpdate{fields: out}, nil
}

func validateFields(f UpdateFields, current *model.ServiceRequest) error {
	if f.Title != nil && (strings.TrimSpace(*f.Title) == "" || len(*f.Title) > 200) {
		return fmt.Errorf("%w: title must have 1 to 200 characters", ErrValidation)
	}
	if f.Description != nil && (strings.TrimSpace(*f.Description) == "" || len(*f.Description) > 5000) {
		return fmt.Errorf("%w: description must have 1 to 5000 characters", ErrValidation)
	}
	if f.ServiceType != nil && !validServiceType(*f.ServiceType) {
		return fmt.Errorf("%w: unknown service type %q", ErrValidation, *f.ServiceType)
	}
	if f.ServiceArea != nil {
		if strings.TrimSpace(f.ServiceArea.City) == "" {
			return fmt.Errorf("%w: serviceArea.city is required", ErrValidation)
		}
		if !statePattern.MatchString(strings.TrimSpace(f.ServiceArea.State)) {
			return fmt.Errorf("%w: serviceArea.state must have two letters", ErrValidation)
		}
	}
	if f.ProcessNumber != nil && *f.ProcessNumber != "" && !processNumberPattern.MatchString(*f.ProcessNumber) {
		return fmt.Errorf("%w: processNumber must follow NNNNNNN-DD.AAAA.J.TR.OOOO", ErrValidation)
	}
	if f.Urgency != nil && !validUrgency(*f.Urgency) {
		return fmt.Errorf("%w: unknown urgency %q", ErrValidation, *f.Urgency)
	}
	if f.Deadline != nil && f.Deadline.IsZero() {
		return fmt.Errorf("%w: deadline cannot be cleared", ErrValidation)
	}
	if f.ScheduledTime != nil && *f.ScheduledTime != "" && !scheduledTimePattern.MatchString(*f.ScheduledTime) {
		return fmt.Errorf("%w: scheduledTime must be HH:MM", ErrValidation)
	}
	if f.Notes != nil && len(*f.Notes) > 2000 {
		return fmt.Errorf("%w: notes exceed 2000 characters", ErrValidation)
	}
	if f.CompanyValue != nil && !f.CompanyValue.IsPositive() {
		return fmt.Errorf("%w: companyValue must be positive", ErrInvalidValue)
	}
	if f.Status != nil && *f.Status == model.StatusCompleted {
		content := ""
		if f.CompletionReport != nil {
			content = f.CompletionReport.Content
		} else if current != nil && current.CompletionReport != nil {
			content = current.CompletionReport.Content
		}
		if strings.TrimSpace(content) == "" {
			return fmt.Errorf("%w: completing a request requires completionReport.content", ErrValidation)
		}
	}
	return nil
}

func validServiceType(t model.ServiceType) bool {
	switch t {
	case model.ServiceTypeHearing, model.ServiceTypeFiling, model.ServiceTypeDiligence,
		model.ServiceTypeCaseCopy, model.ServiceTypeDispatch, model.ServiceTypeDistribution,
		model.ServiceTypeOther:
		return true
	}
	return false
}

func validUrgency(u model.Urgency) bool {
	switch u {
	case model.UrgencyLow, model.UrgencyMedium, model.UrgencyHigh, model.UrgencyUrgent:
		return true
	}
	return false
}
