package service

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/nurpe/jurisconnect/internal/model"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to model.RequestStatus
		ok       bool
	}{
		{model.StatusOpen, model.StatusInReview, true},
		{model.StatusOpen, model.StatusAssigned, true},
		{model.StatusOpen, model.StatusAccepted, false},
		{model.StatusInReview, model.StatusInReview, true},
		{model.StatusInReview, model.StatusOpen, false},
		{model.StatusAssigned, model.StatusAccepted, true},
		{model.StatusAssigned, model.StatusRejected, true},
		{model.StatusAssigned, model.StatusInProgress, false},
		{model.StatusAccepted, model.StatusInProgress, true},
		{model.StatusAccepted, model.StatusCompleted, false},
		{model.StatusInProgress, model.StatusCompleted, true},
		{model.StatusInProgress, model.StatusCancelled, true},
		{model.StatusCompleted, model.StatusCancelled, false},
		{model.StatusRejected, model.StatusAssigned, false},
		{model.StatusCancelled, model.StatusOpen, false},
	}
	for _, tc := range cases {
		require.Equal(t, tc.ok, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}

	for _, terminal := range []model.RequestStatus{model.StatusCompleted, model.StatusRejected, model.StatusCancelled} {
		require.True(t, terminal.Terminal())
		require.Empty(t, transitions[terminal])
	}
}

func TestTransitionLeavesSourceUntouched(t *testing.T) {
	now := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	actor := uuid.New()
	req := &model.ServiceRequest{
		ID:     uuid.New(),
		Status: model.StatusOpen,
		StatusHistory: []model.StatusChange{
			{Seq: 1, Status: model.StatusOpen, At: now, ActorID: actor},
		},
	}

	next, err := Transition(req, model.StatusCancelled, actor, "duplicada", now.Add(time.Minute))
	require.NoError(t, err)
	require.Equal(t, model.StatusCancelled, next.Status)
	require.Len(t, next.StatusHistory, 2)
	require.Equal(t, model.StatusChange{Seq: 2, Status: model.StatusCancelled, At: now.Add(time.Minute), Note: "duplicada", ActorID: actor}, next.StatusHistory[1])
	require.Equal(t, now.Add(time.Minute), next.UpdatedAt)

	require.Equal(t, model.StatusOpen, req.Status)
	require.Len(t, req.StatusHistory, 1)

	_, err = Transition(next, model.StatusOpen, actor, "", now)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestTransitionToCompleted(t *testing.T) {
	now := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	req := &model.ServiceRequest{ID: uuid.New(), Status: model.StatusInProgress}

	_, err := Transition(req, model.StatusCompleted, uuid.New(), "", now)
	require.ErrorIs(t, err, ErrValidation)

	req.CompletionReport = &model.CompletionReport{Content: "feito"}
	next, err := Transition(req, model.StatusCompleted, uuid.New(), "", now)
	require.NoError(t, err)
	require.Equal(t, now, *next.CompletedAt)
	require.Equal(t, now, *next.CompletionReport.SubmittedAt)
	require.Equal(t, 1, next.StatusHistory[0].Seq)
	require.Nil(t, req.CompletedAt)
	require.Nil(t, req.CompletionReport.SubmittedAt)
}

func TestTransitionIntents(t *testing.T) {
	now := time.Now().UTC()
	correspondentID := uuid.New()
	req := &model.ServiceRequest{ID: uuid.New(), CompanyID: uuid.New(), Status: model.StatusCancelled}
	require.Empty(t, transitionIntents(req, now))

	req.CorrespondentID = &correspondentID
	intents := transitionIntents(req, now)
	require.Len(t, intents, 1)
	require.Equal(t, model.EventRequestCancelled, intents[0].Kind)
	require.Equal(t, correspondentID, *intents[0].RecipientID)

	req.Status = model.StatusInProgress
	require.Empty(t, transitionIntents(req, now))

	req.Status = model.StatusCompleted
	intents = transitionIntents(req, now)
	require.Len(t, intents, 1)
	require.Equal(t, model.RecipientCompany, intents[0].Recipient)
	require.Equal(t, req.CompanyID, *intents[0].RecipientID)
}
