package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/nurpe/jurisconnect/internal/model"
)

func newStoredRequest(t *testing.T, store *MemoryStore, companyID uuid.UUID, createdAt time.Time) *model.ServiceRequest {
	t.Helper()
	req := &model.ServiceRequest{
		ID:        uuid.New(),
		CompanyID: companyID,
		Title:     "Audiência",
		Status:    model.StatusOpen,
		Deadline:  createdAt.Add(72 * time.Hour),
		CreatedAt: createdAt,
		StatusHistory: []model.StatusChange{
			{Seq: 1, Status: model.StatusOpen, At: createdAt},
		},
	}
	require.NoError(t, store.CreateRequest(context.Background(), req))
	return req
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	store := NewMemoryStore()
	req := newStoredRequest(t, store, uuid.New(), time.Now())
	require.Equal(t, int64(1), req.Version)

	loaded, err := store.GetRequest(context.Background(), req.ID)
	require.NoError(t, err)
	loaded.Title = "changed"
	loaded.StatusHistory[0].Note = "changed"

	again, err := store.GetRequest(context.Background(), req.ID)
	require.NoError(t, err)
	require.Equal(t, "Audiência", again.Title)
	require.Empty(t, again.StatusHistory[0].Note)

	_, err = store.GetRequest(context.Background(), uuid.New())
	require.True(t, errors.Is(err, ErrNotFound))
}

func TestMemoryStoreSaveChecksVersion(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	req := newStoredRequest(t, store, uuid.New(), time.Now())

	first := req.Clone()
	first.Title = "first"
	require.NoError(t, store.SaveRequest(ctx, first, SaveCondition{ExpectedVersion: 1}))
	require.Equal(t, int64(2), first.Version)

	stale := req.Clone()
	stale.Title = "stale"
	err := store.SaveRequest(ctx, stale, SaveCondition{ExpectedVersion: 1})
	require.ErrorIs(t, err, ErrVersionConflict)

	stored, err := store.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	require.Equal(t, "first", stored.Title)
}

func TestMemoryStoreSaveUnassignedCondition(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	req := newStoredRequest(t, store, uuid.New(), time.Now())

	assigned := req.Clone()
	correspondentID := uuid.New()
	assigned.CorrespondentID = &correspondentID
	assigned.Status = model.StatusAssigned
	require.NoError(t, store.SaveRequest(ctx, assigned, SaveCondition{ExpectedVersion: 1, Unassigned: true}))

	other := assigned.Clone()
	otherID := uuid.New()
	other.CorrespondentID = &otherID
	err := store.SaveRequest(ctx, other, SaveCondition{ExpectedVersion: 2, Unassigned: true})
	require.ErrorIs(t, err, ErrVersionConflict)
}

func TestMemoryStoreFindRequestsFiltersAndPages(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	companyA, companyB := uuid.New(), uuid.New()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		newStoredRequest(t, store, companyA, base.Add(time.Duration(i)*time.Hour))
	}
	newStoredRequest(t, store, companyB, base)

	items, total, err := store.FindRequests(ctx, RequestFilter{CompanyID: &companyA, Limit: 2})
	require.NoError(t, err)
	require.Equal(t, int64(3), total)
	require.Len(t, items, 2)
	require.True(t, items[0].CreatedAt.After(items[1].CreatedAt))

	items, _, err = store.FindRequests(ctx, RequestFilter{CompanyID: &companyA, Limit: 2, Offset: 2})
	require.NoError(t, err)
	require.Len(t, items, 1)

	from := base.Add(30 * time.Minute)
	items, total, err = store.FindRequests(ctx, RequestFilter{CreatedFrom: &from})
	require.NoError(t, err)
	require.Equal(t, int64(2), total)
	require.Len(t, items, 2)
}

func TestMemoryStoreCorrespondents(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	active := model.Correspondent{
		ID:           uuid.New(),
		FullName:     "Ana",
		Active:       true,
		ServiceAreas: []model.CoverageArea{{City: "Campinas", State: "sp"}},
	}
	inactive := model.Correspondent{
		ID:           uuid.New(),
		FullName:     "Bruno",
		ServiceAreas: []model.CoverageArea{{City: "Santos", State: "SP"}},
	}
	elsewhere := model.Correspondent{
		ID:           uuid.New(),
		FullName:     "Carla",
		Active:       true,
		ServiceAreas: []model.CoverageArea{{City: "Recife", State: "PE"}},
	}
	store.PutCorrespondent(active)
	store.PutCorrespondent(inactive)
	store.PutCorrespondent(elsewhere)

	list, err := store.ListCorrespondents(ctx, CorrespondentFilter{State: "SP", ActiveOnly: true})
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, active.ID, list[0].ID)
}

func ratedCopy(req *model.ServiceRequest, correspondentID uuid.UUID, value int) *model.ServiceRequest {
	next := req.Clone()
	next.CorrespondentID = &correspondentID
	next.Rating = &model.Rating{Value: value, RatedAt: time.Now()}
	return next
}

func TestMemoryStoreRateRequestFoldsAggregate(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	correspondent := model.Correspondent{ID: uuid.New(), FullName: "Ana", Active: true}
	store.PutCorrespondent(correspondent)

	first := newStoredRequest(t, store, uuid.New(), time.Now())
	require.NoError(t, store.RateRequest(ctx, ratedCopy(first, correspondent.ID, 5), SaveCondition{ExpectedVersion: 1}))

	second := newStoredRequest(t, store, uuid.New(), time.Now())
	require.NoError(t, store.RateRequest(ctx, ratedCopy(second, correspondent.ID, 4), SaveCondition{ExpectedVersion: 1}))

	loaded, err := store.GetCorrespondent(ctx, correspondent.ID)
	require.NoError(t, err)
	require.Equal(t, model.RatingSummary{Average: 4.5, Count: 2}, loaded.Rating)

	stored, err := store.GetRequest(ctx, first.ID)
	require.NoError(t, err)
	require.Equal(t, 5, stored.Rating.Value)
	require.Equal(t, int64(2), stored.Version)
}

func TestMemoryStoreRateRequestIsAtomic(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	correspondent := model.Correspondent{ID: uuid.New(), FullName: "Ana", Active: true}
	store.PutCorrespondent(correspondent)
	req := newStoredRequest(t, store, uuid.New(), time.Now())

	err := store.RateRequest(ctx, ratedCopy(req, correspondent.ID, 5), SaveCondition{ExpectedVersion: 7})
	require.ErrorIs(t, err, ErrVersionConflict)

	err = store.RateRequest(ctx, ratedCopy(req, uuid.New(), 5), SaveCondition{ExpectedVersion: 1})
	require.ErrorIs(t, err, ErrNotFound)

	stored, err := store.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	require.Nil(t, stored.Rating)
	require.Equal(t, int64(1), stored.Version)

	loaded, err := store.GetCorrespondent(ctx, correspondent.ID)
	require.NoError(t, err)
	require.Zero(t, loaded.Rating.Count)
}

func TestMemoryStoreRatingAverageDoesNotDrift(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	correspondent := model.Correspondent{ID: uuid.New(), FullName: "Ana", Active: true}
	store.PutCorrespondent(correspondent)

	// 5,4,4 repeated: exact average is 4.333...
	values := []int{5, 4, 4}
	for i := 0; i < 300; i++ {
		req := newStoredRequest(t, store, uuid.New(), time.Now())
		require.NoError(t, store.RateRequest(ctx, ratedCopy(req, correspondent.ID, values[i%3]), SaveCondition{ExpectedVersion: 1}))
	}

	loaded, err := store.GetCorrespondent(ctx, correspondent.ID)
	require.NoError(t, err)
	require.Equal(t, 300, loaded.Rating.Count)
	require.Equal(t, 4.33, loaded.Rating.Average)
}
