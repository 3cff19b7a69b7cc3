package model

import (
	"time"

	"github.com/google/uuid"
)

type RecipientKind string

const (
	RecipientAdmins        RecipientKind = "admins"
	RecipientCompany       RecipientKind = "company"
	RecipientCorrespondent RecipientKind = "correspondent"
)

type EventKind string

const (
	EventRequestCreated     EventKind = "request.created"
	EventRequestPriced      EventKind = "request.priced"
	EventRequestAssigned    EventKind = "request.assigned"
	EventRequestAccepted    EventKind = "request.accepted"
	EventRequestRejected    EventKind = "request.rejected"
	EventRequestCompleted   EventKind = "request.completed"
	EventRequestCancelled   EventKind = "request.cancelled"
	EventReportApproved     EventKind = "request.report_approved"
	EventPaymentUpdated     EventKind = "request.payment_updated"
	EventDocumentAttached   EventKind = "request.document_attached"
	EventCorrespondentRated EventKind = "request.correspondent_rated"
)

// Intent is a "notify X about Y" value produced by a state change. Delivery
// happens outside the lifecycle, after the change is stored.
type Intent struct {
	Recipient   RecipientKind     `json:"recipient"`
	RecipientID *uuid.UUID        `json:"recipient_id,omitempty"`
	Kind        EventKind         `json:"kind"`
	RequestID   uuid.UUID         `json:"request_id"`
	Title       string            `json:"title"`
	Status      RequestStatus     `json:"status"`
	Context     map[string]string `json:"context,omitempty"`
	OccurredAt  time.Time         `json:"occurred_at"`
}
