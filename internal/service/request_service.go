package service

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nurpe/jurisconnect/internal/config"
	"github.com/nurpe/jurisconnect/internal/model"
	"github.com/nurpe/jurisconnect/internal/repository"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// Result is the outcome of a mutating operation: the stored request and the
// notifications the caller should dispatch now that the change is committed.
type Result struct {
	Request *model.ServiceRequest
	Intents []model.Intent
}

type RequestService struct {
	store        Store
	evaluator    *Evaluator
	matcher      *Matcher
	validate     *validator.Validate
	now          func() time.Time
	newID        func() uuid.UUID
	saveAttempts int
}

type Option func(*RequestService)

func WithClock(now func() time.Time) Option {
	return func(s *RequestService) {
		s.now = now
	}
}

func WithIDGenerator(gen func() uuid.UUID) Option {
	return func(s *RequestService) {
		s.newID = gen
	}
}

func NewRequestService(store Store, cfg *config.Config, opts ...Option) *RequestService {
	s := &RequestService{
		store:        store,
		evaluator:    NewEvaluator(),
		matcher:      NewMatcher(),
		validate:     newValidator(),
		now:          func() time.Time { return time.Now().UTC() },
		newID:        uuid.New,
		saveAttempts: 3,
	}
	if cfg != nil && cfg.Lifecycle.SaveAttempts > 0 {
		s.saveAttempts = cfg.Lifecycle.SaveAttempts
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Now is the service clock, used by callers to derive read-time values such
// as overdue.
func (s *RequestService) Now() time.Time {
	return s.now()
}

type CreateInput struct {
	CompanyID      *uuid.UUID        `json:"companyId"`
	Title          string            `json:"title" validate:"required,max=200"`
	Description    string            `json:"description" validate:"required,max=5000"`
	ServiceType    model.ServiceType `json:"serviceType" validate:"required,oneof=hearing filing diligence case_copy dispatch distribution other"`
	PracticeArea   string            `json:"practiceArea" validate:"max=120"`
	ServiceArea    LocationInput     `json:"serviceArea"`
	ProcessNumber  string            `json:"processNumber" validate:"omitempty,cnj"`
	ClientName     string            `json:"clientName" validate:"max=200"`
	ClientDocument string            `json:"clientDocument" validate:"max=20"`
	OpposingParty  string            `json:"opposingParty" validate:"max=200"`
	Urgency        model.Urgency     `json:"urgency" validate:"omitempty,oneof=low medium high urgent"`
	Deadline       time.Time         `json:"deadline" validate:"required"`
	ScheduledDate  *time.Time        `json:"scheduledDate"`
	ScheduledTime  string            `json:"scheduledTime" validate:"omitempty,hhmm"`
	Notes          string            `json:"notes" validate:"max=2000"`
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("cnj", matchPattern(processNumberPattern))
	_ = v.RegisterValidation("hhmm", matchPattern(scheduledTimePattern))
	return v
}

func matchPattern(re *regexp.Regexp) validator.Func {
	return func(fl validator.FieldLevel) bool {
		return re.MatchString(fl.Field().String())
	}
}

func validationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	parts := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		ns := fe.Namespace()
		if idx := strings.Index(ns, "."); idx >= 0 {
			ns = ns[idx+1:]
		}
		parts = append(parts, fmt.Sprintf("%s failed on %s", ns, fe.Tag()))
	}
	return fmt.Errorf("%w: %s", ErrValidation, strings.Join(parts, "; "))
}

func (s *RequestService) CreateServiceRequest(ctx context.Context, actor model.Principal, input CreateInput) (*Result, error) {
	var companyID uuid.UUID
	switch {
	case actor.IsAdmin():
		if input.CompanyID == nil || *input.CompanyID == uuid.Nil {
			return nil, fmt.Errorf("%w: companyId is required", ErrValidation)
		}
		companyID = *input.CompanyID
	case actor.IsCompany():
		if err := s.evaluator.CanPerform(actor, OpCreate, nil).Err(); err != nil {
			return nil, err
		}
		companyID = *actor.ProfileID
		if input.CompanyID != nil && *input.CompanyID != companyID {
			return nil, fmt.Errorf("%w: companies create requests for themselves only", ErrForbidden)
		}
	default:
		return nil, s.evaluator.CanPerform(actor, OpCreate, nil).Err()
	}

	input.Title = strings.TrimSpace(input.Title)
	input.Description = strings.TrimSpace(input.Description)
	input.ProcessNumber = strings.TrimSpace(input.ProcessNumber)
	if err := s.validate.Struct(input); err != nil {
		return nil, validationError(err)
	}

	company, err := s.store.GetCompany(ctx, companyID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: company %s", ErrNotFound, companyID)
		}
		return nil, fmt.Errorf("load company: %w", err)
	}
	if !company.Active {
		return nil, fmt.Errorf("%w: company %s is inactive", ErrForbidden, companyID)
	}

	urgency := input.Urgency
	if urgency == "" {
		urgency = model.UrgencyMedium
	}
	now := s.now()
	req := &model.ServiceRequest{
		ID:             s.newID(),
		CompanyID:      companyID,
		Title:          input.Title,
		Description:    input.Description,
		ServiceType:    input.ServiceType,
		PracticeArea:   strings.TrimSpace(input.PracticeArea),
		ServiceArea:    input.ServiceArea.toModel(),
		ProcessNumber:  input.ProcessNumber,
		ClientName:     strings.TrimSpace(input.ClientName),
		ClientDocument: strings.TrimSpace(input.ClientDocument),
		OpposingParty:  strings.TrimSpace(input.OpposingParty),
		Urgency:        urgency,
		Deadline:       input.Deadline.UTC(),
		ScheduledDate:  input.ScheduledDate,
		ScheduledTime:  input.ScheduledTime,
		Notes:          input.Notes,
		Status:         model.StatusOpen,
		Payment:        model.Payment{Status: model.PaymentPending},
		CreatedAt:      now,
	}
	appendHistory(req, model.StatusOpen, actor.UserID, "request created", now)

	if err := s.store.CreateRequest(ctx, req); err != nil {
		return nil, fmt.Errorf("create service request: %w", err)
	}

	return &Result{
		Request: req,
		Intents: []model.Intent{newIntent(req, model.RecipientAdmins, model.EventRequestCreated, now, map[string]string{
			"company": company.Name,
		})},
	}, nil
}

func (s *RequestService) GetServiceRequest(ctx context.Context, actor model.Principal, id uuid.UUID) (*model.ServiceRequest, error) {
	req, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.evaluator.CanPerform(actor, OpRead, req).Err(); err != nil {
		return nil, err
	}
	return req, nil
}

type ListInput struct {
	Status       *model.RequestStatus
	ServiceType  *model.ServiceType
	DeadlineFrom *time.Time
	DeadlineTo   *time.Time
	Limit        int
	Offset       int
}

type ListResult struct {
	Items []model.ServiceRequest
	Total int64
}

func (s *RequestService) ListServiceRequests(ctx context.Context, actor model.Principal, input ListInput) (*ListResult, error) {
	filter := repository.RequestFilter{
		Status:       input.Status,
		ServiceType:  input.ServiceType,
		DeadlineFrom: input.DeadlineFrom,
		DeadlineTo:   input.DeadlineTo,
		Limit:        input.Limit,
		Offset:       input.Offset,
	}
	switch {
	case actor.IsAdmin():
	case actor.IsCompany() && actor.ProfileID != nil:
		filter.CompanyID = actor.ProfileID
	case actor.IsCorrespondent() && actor.ProfileID != nil:
		filter.CorrespondentID = actor.ProfileID
	default:
		return nil, fmt.Errorf("%w: no profile to scope the listing", ErrForbidden)
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	items, total, err := s.store.FindRequests(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list service requests: %w", err)
	}
	return &ListResult{Items: items, Total: total}, nil
}

func (s *RequestService) UpdateServiceRequest(ctx context.Context, actor model.Principal, id uuid.UUID, fields UpdateFields, note string) (*Result, error) {
	return s.mutate(ctx, id, false, func(current *model.ServiceRequest) (*model.ServiceRequest, []model.Intent, error) {
		update, err := s.evaluator.ProjectUpdate(actor, fields, current)
		if err != nil {
			return nil, nil, err
		}
		if update.Empty() {
			return nil, nil, nil
		}

		f := update.Fields()
		now := s.now()
		next := current.Clone()
		applyFields(next, f, now)

		var intents []model.Intent
		if f.CompanyValue != nil {
			next, err = s.price(next, actor, *f.CompanyValue, note, now)
			if err != nil {
				return nil, nil, err
			}
			intents = append(intents, pricedIntent(next, now))
		}
		if f.Status != nil && *f.Status != next.Status {
			next, err = s.transition(next, actor, *f.Status, note, now)
			if err != nil {
				return nil, nil, err
			}
			intents = append(intents, transitionIntents(next, now)...)
		}
		next.UpdatedAt = now
		return next, intents, nil
	})
}

func applyFields(req *model.ServiceRequest, f UpdateFields, now time.Time) {
	setString := func(dst *string, src *string) {
		if src != nil {
			*dst = strings.TrimSpace(*src)
		}
	}
	setString(&req.Title, f.Title)
	setString(&req.Description, f.Description)
	setString(&req.PracticeArea, f.PracticeArea)
	setString(&req.ProcessNumber, f.ProcessNumber)
	setString(&req.ClientName, f.ClientName)
	setString(&req.ClientDocument, f.ClientDocument)
	setString(&req.OpposingParty, f.OpposingParty)
	setString(&req.ScheduledTime, f.ScheduledTime)
	setString(&req.Instructions, f.Instructions)
	if f.Notes != nil {
		req.Notes = *f.Notes
	}
	if f.ServiceType != nil {
		req.ServiceType = *f.ServiceType
	}
	if f.ServiceArea != nil {
		req.ServiceArea = f.ServiceArea.toModel()
	}
	if f.Urgency != nil {
		req.Urgency = *f.Urgency
	}
	if f.Deadline != nil {
		req.Deadline = f.Deadline.UTC()
	}
	if f.ScheduledDate != nil {
		scheduled := *f.ScheduledDate
		req.ScheduledDate = &scheduled
	}
	if f.CompletionReport != nil {
		report := req.CompletionReport
		if report == nil {
			report = &model.CompletionReport{}
		}
		report.Content = strings.TrimSpace(f.CompletionReport.Content)
		report.Attachments = make([]model.Attachment, 0, len(f.CompletionReport.Attachments))
		for _, a := range f.CompletionReport.Attachments {
			if a.UploadedAt.IsZero() {
				a.UploadedAt = now
			}
			report.Attachments = append(report.Attachments, a)
		}
		submittedAt := now
		report.SubmittedAt = &submittedAt
		req.CompletionReport = report
	}
}

func (s *RequestService) SetCompanyValue(ctx context.Context, actor model.Principal, id uuid.UUID, value decimal.Decimal, note string) (*Result, error) {
	return s.mutate(ctx, id, false, func(current *model.ServiceRequest) (*model.ServiceRequest, []model.Intent, error) {
		if err := s.evaluator.CanPerform(actor, OpSetCompanyValue, current).Err(); err != nil {
			return nil, nil, err
		}
		now := s.now()
		next, err := s.price(current, actor, value, note, now)
		if err != nil {
			return nil, nil, err
		}
		return next, []model.Intent{pricedIntent(next, now)}, nil
	})
}

func (s *RequestService) price(current *model.ServiceRequest, actor model.Principal, value decimal.Decimal, note string, now time.Time) (*model.ServiceRequest, error) {
	if !value.IsPositive() {
		return nil, fmt.Errorf("%w: companyValue must be positive", ErrInvalidValue)
	}
	if note == "" {
		note = "company value set to " + value.StringFixed(2)
	}
	next, err := Transition(current, model.StatusInReview, actor.UserID, note, now)
	if err != nil {
		return nil, err
	}
	next.CompanyValue = decimal.NewNullDecimal(value)
	next.RecomputeProfit()
	return next, nil
}

func pricedIntent(req *model.ServiceRequest, now time.Time) model.Intent {
	return newIntent(req, model.RecipientCompany, model.EventRequestPriced, now, map[string]string{
		"companyValue": req.CompanyValue.Decimal.StringFixed(2),
	})
}

type AssignInput struct {
	CorrespondentID    uuid.UUID
	CorrespondentValue decimal.Decimal
	Instructions       string
	Note               string
}

func (s *RequestService) AssignCorrespondent(ctx context.Context, actor model.Principal, id uuid.UUID, input AssignInput) (*Result, error) {
	if err := s.evaluator.CanPerform(actor, OpAssign, nil).Err(); err != nil {
		return nil, err
	}

	correspondent, err := s.store.GetCorrespondent(ctx, input.CorrespondentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: correspondent %s", ErrNotFound, input.CorrespondentID)
		}
		return nil, fmt.Errorf("load correspondent: %w", err)
	}
	user, err := s.store.GetUser(ctx, correspondent.UserID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("load correspondent user: %w", err)
	}
	userActive := err == nil && user.Status == model.UserStatusActive

	return s.mutate(ctx, id, true, func(current *model.ServiceRequest) (*model.ServiceRequest, []model.Intent, error) {
		if err := s.matcher.ValidateAssignment(current, *correspondent, input.CorrespondentValue); err != nil {
			return nil, nil, err
		}
		if !userActive {
			return nil, nil, fmt.Errorf("%w: correspondent %s has no active account", ErrNotEligible, correspondent.ID)
		}

		now := s.now()
		note := input.Note
		if note == "" {
			note = "assigned to " + correspondent.FullName
		}
		next, err := Transition(current, model.StatusAssigned, actor.UserID, note, now)
		if err != nil {
			return nil, nil, err
		}
		correspondentID := correspondent.ID
		next.CorrespondentID = &correspondentID
		next.CorrespondentValue = decimal.NewNullDecimal(input.CorrespondentValue)
		next.RecomputeProfit()
		if instructions := strings.TrimSpace(input.Instructions); instructions != "" {
			next.Instructions = instructions
		}
		return next, transitionIntents(next, now), nil
	})
}

func (s *RequestService) TransitionStatus(ctx context.Context, actor model.Principal, id uuid.UUID, target model.RequestStatus, note string) (*Result, error) {
	return s.mutate(ctx, id, false, func(current *model.ServiceRequest) (*model.ServiceRequest, []model.Intent, error) {
		now := s.now()
		next, err := s.transition(current, actor, target, note, now)
		if err != nil {
			return nil, nil, err
		}
		return next, transitionIntents(next, now), nil
	})
}

func (s *RequestService) CancelServiceRequest(ctx context.Context, actor model.Principal, id uuid.UUID, note string) (*Result, error) {
	return s.mutate(ctx, id, false, func(current *model.ServiceRequest) (*model.ServiceRequest, []model.Intent, error) {
		if err := s.evaluator.CanPerform(actor, OpCancel, current).Err(); err != nil {
			return nil, nil, err
		}
		now := s.now()
		next, err := Transition(current, model.StatusCancelled, actor.UserID, note, now)
		if err != nil {
			return nil, nil, err
		}
		return next, transitionIntents(next, now), nil
	})
}

// transition moves a request to target on behalf of actor. in_review and
// assigned carry data of their own and are only reached through pricing and
// assignment.
func (s *RequestService) transition(current *model.ServiceRequest, actor model.Principal, target model.RequestStatus, note string, now time.Time) (*model.ServiceRequest, error) {
	if err := s.evaluator.CanTransitionTo(actor, current, target).Err(); err != nil {
		return nil, err
	}
	switch target {
	case model.StatusInReview:
		return nil, fmt.Errorf("%w: %s -> %s requires a company value", ErrInvalidTransition, current.Status, target)
	case model.StatusAssigned:
		return nil, fmt.Errorf("%w: %s -> %s requires a correspondent assignment", ErrInvalidTransition, current.Status, target)
	}
	return Transition(current, target, actor.UserID, note, now)
}

func (s *RequestService) ApproveCompletionReport(ctx context.Context, actor model.Principal, id uuid.UUID, notes string) (*Result, error) {
	return s.mutate(ctx, id, false, func(current *model.ServiceRequest) (*model.ServiceRequest, []model.Intent, error) {
		if err := s.evaluator.CanPerform(actor, OpApproveReport, current).Err(); err != nil {
			return nil, nil, err
		}
		if current.Status != model.StatusCompleted {
			return nil, nil, fmt.Errorf("%w: report approval needs a completed request, status is %s", ErrInvalidTransition, current.Status)
		}
		if current.CompletionReport == nil {
			return nil, nil, fmt.Errorf("%w: request has no completion report", ErrValidation)
		}
		if current.CompletionReport.Approved {
			return nil, nil, nil
		}

		now := s.now()
		next := current.Clone()
		approvedAt := now
		approvedBy := actor.UserID
		next.CompletionReport.Approved = true
		next.CompletionReport.ApprovedAt = &approvedAt
		next.CompletionReport.ApprovedBy = &approvedBy
		next.CompletionReport.ApprovalNotes = strings.TrimSpace(notes)
		next.UpdatedAt = now
		return next, []model.Intent{newIntent(next, model.RecipientCorrespondent, model.EventReportApproved, now, nil)}, nil
	})
}

func (s *RequestService) FindEligibleCorrespondents(ctx context.Context, actor model.Principal, id uuid.UUID) ([]model.Correspondent, error) {
	req, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.evaluator.CanPerform(actor, OpFindEligible, req).Err(); err != nil {
		return nil, err
	}

	pool, err := s.store.ListCorrespondents(ctx, repository.CorrespondentFilter{
		State:      req.ServiceArea.State,
		ActiveOnly: true,
	})
	if err != nil {
		return nil, fmt.Errorf("list correspondents: %w", err)
	}
	if len(pool) == 0 {
		return []model.Correspondent{}, nil
	}

	userIDs := make([]uuid.UUID, 0, len(pool))
	for _, c := range pool {
		userIDs = append(userIDs, c.UserID)
	}
	users, err := s.store.ListUsersByIDs(ctx, userIDs)
	if err != nil {
		return nil, fmt.Errorf("list correspondent users: %w", err)
	}
	active := make(map[uuid.UUID]bool, len(users))
	for _, u := range users {
		active[u.ID] = u.Status == model.UserStatusActive
	}

	filtered := pool[:0]
	for _, c := range pool {
		if active[c.UserID] {
			filtered = append(filtered, c)
		}
	}
	return s.matcher.FindEligible(req, filtered), nil
}

var paymentTransitions = map[model.PaymentStatus][]model.PaymentStatus{
	model.PaymentPending:    {model.PaymentProcessing, model.PaymentPaid, model.PaymentCancelled},
	model.PaymentProcessing: {model.PaymentPaid, model.PaymentCancelled},
}

type PaymentInput struct {
	Status model.PaymentStatus
	Method *model.PaymentMethod
	Notes  *string
}

func (s *RequestService) UpdatePayment(ctx context.Context, actor model.Principal, id uuid.UUID, input PaymentInput) (*Result, error) {
	return s.mutate(ctx, id, false, func(current *model.ServiceRequest) (*model.ServiceRequest, []model.Intent, error) {
		if err := s.evaluator.CanPerform(actor, OpUpdatePayment, current).Err(); err != nil {
			return nil, nil, err
		}
		if input.Method != nil && !validPaymentMethod(*input.Method) {
			return nil, nil, fmt.Errorf("%w: unknown payment method %q", ErrValidation, *input.Method)
		}

		changed := input.Status != "" && input.Status != current.Payment.Status
		if changed {
			if !paymentAllowed(current.Payment.Status, input.Status) {
				return nil, nil, fmt.Errorf("%w: payment %s -> %s", ErrInvalidTransition, current.Payment.Status, input.Status)
			}
			if input.Status == model.PaymentPaid && current.Status != model.StatusCompleted {
				return nil, nil, fmt.Errorf("%w: only completed requests can be paid, status is %s", ErrInvalidTransition, current.Status)
			}
		}
		if !changed && input.Method == nil && input.Notes == nil {
			return nil, nil, nil
		}

		now := s.now()
		next := current.Clone()
		if changed {
			next.Payment.Status = input.Status
			if input.Status == model.PaymentPaid {
				paidAt := now
				next.Payment.PaidAt = &paidAt
			}
		}
		if input.Method != nil {
			method := *input.Method
			next.Payment.Method = &method
		}
		if input.Notes != nil {
			next.Payment.Notes = strings.TrimSpace(*input.Notes)
		}
		next.UpdatedAt = now

		if !changed {
			return next, nil, nil
		}
		ctxValues := map[string]string{"payment": string(next.Payment.Status)}
		intents := []model.Intent{newIntent(next, model.RecipientCompany, model.EventPaymentUpdated, now, ctxValues)}
		if next.Payment.Status == model.PaymentPaid && next.CorrespondentID != nil {
			intents = append(intents, newIntent(next, model.RecipientCorrespondent, model.EventPaymentUpdated, now, ctxValues))
		}
		return next, intents, nil
	})
}

func paymentAllowed(from, to model.PaymentStatus) bool {
	for _, next := range paymentTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func validPaymentMethod(m model.PaymentMethod) bool {
	switch m {
	case model.PaymentMethodPix, model.PaymentMethodTransfer, model.PaymentMethodBoleto,
		model.PaymentMethodCredit, model.PaymentMethodOther:
		return true
	}
	return false
}

// RateCorrespondent stores the company's rating on the request and folds it
// into the correspondent's aggregate in the same store write. A request is
// rated once.
func (s *RequestService) RateCorrespondent(ctx context.Context, actor model.Principal, id uuid.UUID, value int, comment string) (*Result, error) {
	if value < 1 || value > 5 {
		return nil, fmt.Errorf("%w: rating must be between 1 and 5", ErrInvalidValue)
	}

	return s.mutateWith(ctx, id, false, s.store.RateRequest, func(current *model.ServiceRequest) (*model.ServiceRequest, []model.Intent, error) {
		if err := s.evaluator.CanPerform(actor, OpRate, current).Err(); err != nil {
			return nil, nil, err
		}
		if current.Status != model.StatusCompleted || current.CorrespondentID == nil {
			return nil, nil, fmt.Errorf("%w: only completed requests can be rated, status is %s", ErrInvalidTransition, current.Status)
		}
		if current.Rating != nil {
			return nil, nil, fmt.Errorf("%w: request %s is already rated", ErrValidation, current.ID)
		}

		now := s.now()
		next := current.Clone()
		next.Rating = &model.Rating{Value: value, Comment: strings.TrimSpace(comment), RatedAt: now}
		next.UpdatedAt = now
		return next, []model.Intent{newIntent(next, model.RecipientCorrespondent, model.EventCorrespondentRated, now, map[string]string{
			"rating": fmt.Sprintf("%d", value),
		})}, nil
	})
}

type DocumentInput struct {
	Type model.DocumentType
	Name string
	Path string
}

func (s *RequestService) AttachDocument(ctx context.Context, actor model.Principal, id uuid.UUID, input DocumentInput) (*Result, error) {
	input.Name = strings.TrimSpace(input.Name)
	input.Path = strings.TrimSpace(input.Path)
	if input.Name == "" || input.Path == "" {
		return nil, fmt.Errorf("%w: document name and path are required", ErrValidation)
	}
	switch input.Type {
	case "":
		input.Type = model.DocumentGeneric
	case model.DocumentPowerOfAttorney, model.DocumentPetition, model.DocumentGeneric, model.DocumentOther:
	default:
		return nil, fmt.Errorf("%w: unknown document type %q", ErrValidation, input.Type)
	}

	return s.mutate(ctx, id, false, func(current *model.ServiceRequest) (*model.ServiceRequest, []model.Intent, error) {
		if err := s.evaluator.CanPerform(actor, OpAttachDocument, current).Err(); err != nil {
			return nil, nil, err
		}
		if current.Status.Terminal() {
			return nil, nil, fmt.Errorf("%w: request is %s", ErrValidation, current.Status)
		}

		now := s.now()
		next := current.Clone()
		next.Documents = append(next.Documents, model.Document{
			ID:         s.newID(),
			Type:       input.Type,
			Name:       input.Name,
			Path:       input.Path,
			UploadedAt: now,
			UploadedBy: actor.UserID,
		})
		next.UpdatedAt = now

		var intents []model.Intent
		ctxValues := map[string]string{"document": input.Name}
		if !actor.IsCompany() {
			intents = append(intents, newIntent(next, model.RecipientCompany, model.EventDocumentAttached, now, ctxValues))
		}
		if !actor.IsCorrespondent() && next.CorrespondentID != nil {
			intents = append(intents, newIntent(next, model.RecipientCorrespondent, model.EventDocumentAttached, now, ctxValues))
		}
		return next, intents, nil
	})
}

type mutation func(current *model.ServiceRequest) (*model.ServiceRequest, []model.Intent, error)

type saveFunc func(ctx context.Context, req *model.ServiceRequest, cond repository.SaveCondition) error

// mutate runs read-validate-save against the request's version. A stale
// save re-reads and re-validates, so a lost race surfaces the business
// error the fresh state produces. A nil request from fn is a no-op.
func (s *RequestService) mutate(ctx context.Context, id uuid.UUID, unassigned bool, fn mutation) (*Result, error) {
	return s.mutateWith(ctx, id, unassigned, s.store.SaveRequest, fn)
}

func (s *RequestService) mutateWith(ctx context.Context, id uuid.UUID, unassigned bool, save saveFunc, fn mutation) (*Result, error) {
	for attempt := 1; ; attempt++ {
		current, err := s.load(ctx, id)
		if err != nil {
			return nil, err
		}
		next, intents, err := fn(current)
		if err != nil {
			return nil, err
		}
		if next == nil {
			return &Result{Request: current}, nil
		}
		if attempt > s.saveAttempts {
			return nil, fmt.Errorf("%w: service request %s changed during %d attempts", ErrConflict, id, s.saveAttempts)
		}

		err = save(ctx, next, repository.SaveCondition{
			ExpectedVersion: current.Version,
			Unassigned:      unassigned,
		})
		if err == nil {
			return &Result{Request: next, Intents: intents}, nil
		}
		if !errors.Is(err, repository.ErrVersionConflict) {
			return nil, fmt.Errorf("save service request: %w", err)
		}
	}
}

func (s *RequestService) load(ctx context.Context, id uuid.UUID) (*model.ServiceRequest, error) {
	req, err := s.store.GetRequest(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: service request %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("load service request: %w", err)
	}
	return req, nil
}
