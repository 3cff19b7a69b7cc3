package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nurpe/jurisconnect/internal/model"
)

var transitions = map[model.RequestStatus][]model.RequestStatus{
	model.StatusOpen:       {model.StatusInReview, model.StatusAssigned, model.StatusCancelled},
	model.StatusInReview:   {model.StatusInReview, model.StatusAssigned, model.StatusCancelled},
	model.StatusAssigned:   {model.StatusAccepted, model.StatusRejected, model.StatusCancelled},
	model.StatusAccepted:   {model.StatusInProgress, model.StatusCancelled},
	model.StatusInProgress: {model.StatusCompleted, model.StatusCancelled},
}

// CanTransition answers the lifecycle table. Terminal statuses have no exits.
func CanTransition(from, to model.RequestStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition returns a copy of req moved to target with one history entry
// appended. req itself is never modified.
func Transition(req *model.ServiceRequest, target model.RequestStatus, actor uuid.UUID, note string, now time.Time) (*model.ServiceRequest, error) {
	if !CanTransition(req.Status, target) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, req.Status, target)
	}

	next := req.Clone()
	if target == model.StatusCompleted {
		if next.CompletionReport == nil || strings.TrimSpace(next.CompletionReport.Content) == "" {
			return nil, fmt.Errorf("%w: completing a request requires completionReport.content", ErrValidation)
		}
		completedAt := now
		next.CompletedAt = &completedAt
		if next.CompletionReport.SubmittedAt == nil {
			submittedAt := now
			next.CompletionReport.SubmittedAt = &submittedAt
		}
	}

	next.Status = target
	appendHistory(next, target, actor, note, now)
	return next, nil
}

func appendHistory(req *model.ServiceRequest, status model.RequestStatus, actor uuid.UUID, note string, now time.Time) {
	seq := 1
	if last, ok := req.LastChange(); ok {
		seq = last.Seq + 1
	}
	req.StatusHistory = append(req.StatusHistory, model.StatusChange{
		Seq:     seq,
		Status:  status,
		At:      now,
		Note:    note,
		ActorID: actor,
	})
	req.UpdatedAt = now
}

// transitionIntents lists who hears about a status change.
func transitionIntents(req *model.ServiceRequest, now time.Time) []model.Intent {
	var kind model.EventKind
	var recipients []model.RecipientKind
	switch req.Status {
	case model.StatusAssigned:
		kind = model.EventRequestAssigned
		recipients = []model.RecipientKind{model.RecipientCorrespondent, model.RecipientCompany}
	case model.StatusAccepted:
		kind = model.EventRequestAccepted
		recipients = []model.RecipientKind{model.RecipientCompany}
	case model.StatusRejected:
		kind = model.EventRequestRejected
		recipients = []model.RecipientKind{model.RecipientCompany}
	case model.StatusCompleted:
		kind = model.EventRequestCompleted
		recipients = []model.RecipientKind{model.RecipientCompany}
	case model.StatusCancelled:
		if req.CorrespondentID == nil {
			return nil
		}
		kind = model.EventRequestCancelled
		recipients = []model.RecipientKind{model.RecipientCorrespondent}
	default:
		return nil
	}

	intents := make([]model.Intent, 0, len(recipients))
	for _, recipient := range recipients {
		intents = append(intents, newIntent(req, recipient, kind, now, nil))
	}
	return intents
}

func newIntent(req *model.ServiceRequest, recipient model.RecipientKind, kind model.EventKind, now time.Time, ctx map[string]string) model.Intent {
	intent := model.Intent{
		Recipient:  recipient,
		Kind:       kind,
		RequestID:  req.ID,
		Title:      req.Title,
		Status:     req.Status,
		Context:    ctx,
		OccurredAt: now,
	}
	switch recipient {
	case model.RecipientCompany:
		id := req.CompanyID
		intent.RecipientID = &id
	case model.RecipientCorrespondent:
		if req.CorrespondentID != nil {
			id := *req.CorrespondentID
			intent.RecipientID = &id
		}
	}
	if last, ok := req.LastChange(); ok && last.Note != "" {
		if intent.Context == nil {
			intent.Context = map[string]string{}
		}
		if _, set := intent.Context["note"]; !set {
			intent.Context["note"] = last.Note
		}
	}
	return intent
}
