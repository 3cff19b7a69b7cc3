package http

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nurpe/jurisconnect/internal/model"
)

type locationResponse struct {
	City         string `json:"city"`
	State        string `json:"state"`
	Court        string `json:"court,omitempty"`
	CourtSection string `json:"courtSection,omitempty"`
	Address      string `json:"address,omitempty"`
}

type statusChangeResponse struct {
	Seq     int                 `json:"seq"`
	Status  model.RequestStatus `json:"status"`
	At      time.Time           `json:"at"`
	Note    string              `json:"note,omitempty"`
	ActorID uuid.UUID           `json:"actorId"`
}

type attachmentResponse struct {
	Name       string    `json:"name"`
	Path       string    `json:"path"`
	UploadedAt time.Time `json:"uploadedAt"`
}

type completionReportResponse struct {
	Content       string               `json:"content"`
	SubmittedAt   *time.Time           `json:"submittedAt,omitempty"`
	Attachments   []attachmentResponse `json:"attachments"`
	Approved      bool                 `json:"approved"`
	ApprovedAt    *time.Time           `json:"approvedAt,omitempty"`
	ApprovedBy    *uuid.UUID           `json:"approvedBy,omitempty"`
	ApprovalNotes string               `json:"approvalNotes,omitempty"`
}

type documentResponse struct {
	ID         uuid.UUID          `json:"id"`
	Type       model.DocumentType `json:"type"`
	Name       string             `json:"name"`
	Path       string             `json:"path"`
	UploadedAt time.Time          `json:"uploadedAt"`
	UploadedBy uuid.UUID          `json:"uploadedBy"`
}

type paymentResponse struct {
	Status model.PaymentStatus  `json:"status"`
	Method *model.PaymentMethod `json:"method,omitempty"`
	PaidAt *time.Time           `json:"paidAt,omitempty"`
	Notes  string               `json:"notes,omitempty"`
}

type ratingResponse struct {
	Value   int       `json:"value"`
	Comment string    `json:"comment,omitempty"`
	RatedAt time.Time `json:"ratedAt"`
}

type requestResponse struct {
	ID                 uuid.UUID                 `json:"id"`
	CompanyID          uuid.UUID                 `json:"companyId"`
	CorrespondentID    *uuid.UUID                `json:"correspondentId"`
	Title              string                    `json:"title"`
	Description        string                    `json:"description"`
	ServiceType        model.ServiceType         `json:"serviceType"`
	PracticeArea       string                    `json:"practiceArea,omitempty"`
	ServiceArea        locationResponse          `json:"serviceArea"`
	ProcessNumber      string                    `json:"processNumber,omitempty"`
	ClientName         string                    `json:"clientName,omitempty"`
	ClientDocument     string                    `json:"clientDocument,omitempty"`
	OpposingParty      string                    `json:"opposingParty,omitempty"`
	Urgency            model.Urgency             `json:"urgency"`
	Deadline           time.Time                 `json:"deadline"`
	ScheduledDate      *time.Time                `json:"scheduledDate,omitempty"`
	ScheduledTime      string                    `json:"scheduledTime,omitempty"`
	Notes              string                    `json:"notes,omitempty"`
	Instructions       string                    `json:"instructions,omitempty"`
	Status             model.RequestStatus       `json:"status"`
	StatusHistory      []statusChangeResponse    `json:"statusHistory"`
	CompanyValue       *decimal.Decimal          `json:"companyValue"`
	CorrespondentValue *decimal.Decimal          `json:"correspondentValue,omitempty"`
	ProfitMargin       *decimal.Decimal          `json:"profitMargin,omitempty"`
	CompletedAt        *time.Time                `json:"completedAt,omitempty"`
	CompletionReport   *completionReportResponse `json:"completionReport,omitempty"`
	Documents          []documentResponse        `json:"documents"`
	Payment            paymentResponse           `json:"payment"`
	Rating             *ratingResponse           `json:"rating,omitempty"`
	Overdue            bool                      `json:"overdue"`
	Version            int64                     `json:"version"`
	CreatedAt          time.Time                 `json:"createdAt"`
	UpdatedAt          time.Time                 `json:"updatedAt"`
}

func nullDecimal(d decimal.NullDecimal) *decimal.Decimal {
	if !d.Valid {
		return nil
	}
	v := d.Decimal
	return &v
}

// toRequestResponse renders req for principal. Correspondent values and the
// margin are internal to admins; correspondents see their own value only.
func toRequestResponse(req *model.ServiceRequest, principal model.Principal, now time.Time) requestResponse {
	out := requestResponse{
		ID:              req.ID,
		CompanyID:       req.CompanyID,
		CorrespondentID: req.CorrespondentID,
		Title:           req.Title,
		Description:     req.Description,
		ServiceType:     req.ServiceType,
		PracticeArea:    req.PracticeArea,
		ServiceArea: locationResponse{
			City:         req.ServiceArea.City,
			State:        req.ServiceArea.State,
			Court:        req.ServiceArea.Court,
			CourtSection: req.ServiceArea.CourtSection,
			Address:      req.ServiceArea.Address,
		},
		ProcessNumber:  req.ProcessNumber,
		ClientName:     req.ClientName,
		ClientDocument: req.ClientDocument,
		OpposingParty:  req.OpposingParty,
		Urgency:        req.Urgency,
		Deadline:       req.Deadline,
		ScheduledDate:  req.ScheduledDate,
		ScheduledTime:  req.ScheduledTime,
		Notes:          req.Notes,
		Instructions:   req.Instructions,
		Status:         req.Status,
		StatusHistory:  make([]statusChangeResponse, 0, len(req.StatusHistory)),
		CompletedAt:    req.CompletedAt,
		Documents:      make([]documentResponse, 0, len(req.Documents)),
		Payment: paymentResponse{
			Status: req.Payment.Status,
			Method: req.Payment.Method,
			PaidAt: req.Payment.PaidAt,
			Notes:  req.Payment.Notes,
		},
		Overdue:   req.IsOverdue(now),
		Version:   req.Version,
		CreatedAt: req.CreatedAt,
		UpdatedAt: req.UpdatedAt,
	}

	switch {
	case principal.IsAdmin():
		out.CompanyValue = nullDecimal(req.CompanyValue)
		out.CorrespondentValue = nullDecimal(req.CorrespondentValue)
		out.ProfitMargin = nullDecimal(req.ProfitMargin)
	case principal.IsCompany():
		out.CompanyValue = nullDecimal(req.CompanyValue)
	case principal.IsCorrespondent():
		out.CorrespondentValue = nullDecimal(req.CorrespondentValue)
	}

	for _, change := range req.StatusHistory {
		out.StatusHistory = append(out.StatusHistory, statusChangeResponse{
			Seq:     change.Seq,
			Status:  change.Status,
			At:      change.At,
			Note:    change.Note,
			ActorID: change.ActorID,
		})
	}
	for _, doc := range req.Documents {
		out.Documents = append(out.Documents, documentResponse{
			ID:         doc.ID,
			Type:       doc.Type,
			Name:       doc.Name,
			Path:       doc.Path,
			UploadedAt: doc.UploadedAt,
			UploadedBy: doc.UploadedBy,
		})
	}
	if report := req.CompletionReport; report != nil {
		rendered := &completionReportResponse{
			Content:       report.Content,
			SubmittedAt:   report.SubmittedAt,
			Attachments:   make([]attachmentResponse, 0, len(report.Attachments)),
			Approved:      report.Approved,
			ApprovedAt:    report.ApprovedAt,
			ApprovedBy:    report.ApprovedBy,
			ApprovalNotes: report.ApprovalNotes,
		}
		for _, a := range report.Attachments {
			rendered.Attachments = append(rendered.Attachments, attachmentResponse{Name: a.Name, Path: a.Path, UploadedAt: a.UploadedAt})
		}
		out.CompletionReport = rendered
	}
	if req.Rating != nil {
		out.Rating = &ratingResponse{Value: req.Rating.Value, Comment: req.Rating.Comment, RatedAt: req.Rating.RatedAt}
	}
	return out
}

type serviceAreaResponse struct {
	City     string `json:"city"`
	State    string `json:"state"`
	RadiusKM int    `json:"radiusKm"`
}

type correspondentResponse struct {
	ID            uuid.UUID             `json:"id"`
	FullName      string                `json:"fullName"`
	OABNumber     string                `json:"oabNumber"`
	OABState      string                `json:"oabState"`
	Email         string                `json:"email,omitempty"`
	Phone         string                `json:"phone,omitempty"`
	Specialties   []string              `json:"specialties"`
	ServiceAreas  []serviceAreaResponse `json:"serviceAreas"`
	Availability  model.Availability    `json:"availability"`
	RatingAverage float64               `json:"ratingAverage"`
	RatingCount   int                   `json:"ratingCount"`
}

func toCorrespondentResponse(c model.Correspondent) correspondentResponse {
	out := correspondentResponse{
		ID:            c.ID,
		FullName:      c.FullName,
		OABNumber:     c.OAB.Number,
		OABState:      c.OAB.State,
		Email:         c.Email,
		Phone:         c.Phone,
		Specialties:   append([]string{}, c.Specialties...),
		ServiceAreas:  make([]serviceAreaResponse, 0, len(c.ServiceAreas)),
		Availability:  c.Availability,
		RatingAverage: c.Rating.Average,
		RatingCount:   c.Rating.Count,
	}
	for _, area := range c.ServiceAreas {
		out.ServiceAreas = append(out.ServiceAreas, serviceAreaResponse{City: area.City, State: area.State, RadiusKM: area.RadiusKM})
	}
	return out
}
