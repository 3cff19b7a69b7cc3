package repository

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/nurpe/jurisconnect/internal/model"
)

// MemoryStore is the Entity Store used for tests and STORE_DRIVER=memory.
// Every read returns a deep copy.
type MemoryStore struct {
	mu             sync.RWMutex
	requests       map[uuid.UUID]*model.ServiceRequest
	companies      map[uuid.UUID]model.Company
	correspondents map[uuid.UUID]model.Correspondent
	users          map[uuid.UUID]model.User
	ratingTotals   map[uuid.UUID]float64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		requests:       make(map[uuid.UUID]*model.ServiceRequest),
		companies:      make(map[uuid.UUID]model.Company),
		correspondents: make(map[uuid.UUID]model.Correspondent),
		users:          make(map[uuid.UUID]model.User),
		ratingTotals:   make(map[uuid.UUID]float64),
	}
}

func (m *MemoryStore) PutCompany(c model.Company) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.companies[c.ID] = c
}

func (m *MemoryStore) PutCorrespondent(c model.Correspondent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.correspondents[c.ID] = cloneCorrespondent(c)
	m.ratingTotals[c.ID] = c.Rating.Average * float64(c.Rating.Count)
}

func (m *MemoryStore) PutUser(u model.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
}

func (m *MemoryStore) CreateRequest(_ context.Context, req *model.ServiceRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	req.Version = 1
	m.requests[req.ID] = req.Clone()
	return nil
}

func (m *MemoryStore) GetRequest(_ context.Context, id uuid.UUID) (*model.ServiceRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	req, ok := m.requests[id]
	if !ok {
		return nil, ErrNotFound
	}
	return req.Clone(), nil
}

func (m *MemoryStore) SaveRequest(_ context.Context, req *model.ServiceRequest, cond SaveCondition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkSave(req, cond); err != nil {
		return err
	}
	m.storeRequest(req, cond)
	return nil
}

// RateRequest saves req and folds req.Rating into the assigned
// correspondent's aggregate under one lock.
func (m *MemoryStore) RateRequest(_ context.Context, req *model.ServiceRequest, cond SaveCondition) error {
	if req.Rating == nil || req.CorrespondentID == nil {
		return fmt.Errorf("rate request %s: rating and correspondent are required", req.ID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkSave(req, cond); err != nil {
		return err
	}
	c, ok := m.correspondents[*req.CorrespondentID]
	if !ok {
		return ErrNotFound
	}
	total := m.ratingTotals[c.ID] + float64(req.Rating.Value)
	c.Rating.Count++
	c.Rating.Average = math.Round(total/float64(c.Rating.Count)*100) / 100
	m.ratingTotals[c.ID] = total
	m.correspondents[c.ID] = c
	m.storeRequest(req, cond)
	return nil
}

func (m *MemoryStore) checkSave(req *model.ServiceRequest, cond SaveCondition) error {
	stored, ok := m.requests[req.ID]
	if !ok || stored.Version != cond.ExpectedVersion {
		return ErrVersionConflict
	}
	if cond.Unassigned {
		if stored.CorrespondentID != nil || (stored.Status != model.StatusOpen && stored.Status != model.StatusInReview) {
			return ErrVersionConflict
		}
	}
	return nil
}

func (m *MemoryStore) storeRequest(req *model.ServiceRequest, cond SaveCondition) {
	req.Version = cond.ExpectedVersion + 1
	m.requests[req.ID] = req.Clone()
}

func (m *MemoryStore) FindRequests(_ context.Context, filter RequestFilter) ([]model.ServiceRequest, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []model.ServiceRequest
	for _, req := range m.requests {
		if matchesFilter(req, filter) {
			matched = append(matched, *req.Clone())
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID.String() < matched[j].ID.String()
	})

	total := int64(len(matched))
	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			matched = nil
		} else {
			matched = matched[filter.Offset:]
		}
	}
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	if matched == nil {
		matched = []model.ServiceRequest{}
	}
	return matched, total, nil
}

func matchesFilter(req *model.ServiceRequest, f RequestFilter) bool {
	switch {
	case f.CompanyID != nil && req.CompanyID != *f.CompanyID:
		return false
	case f.CorrespondentID != nil && !req.AssignedTo(*f.CorrespondentID):
		return false
	case f.Status != nil && req.Status != *f.Status:
		return false
	case f.ServiceType != nil && req.ServiceType != *f.ServiceType:
		return false
	case f.DeadlineFrom != nil && req.Deadline.Before(*f.DeadlineFrom):
		return false
	case f.DeadlineTo != nil && !req.Deadline.Before(*f.DeadlineTo):
		return false
	case f.CreatedFrom != nil && req.CreatedAt.Before(*f.CreatedFrom):
		return false
	case f.CreatedTo != nil && !req.CreatedAt.Before(*f.CreatedTo):
		return false
	}
	return true
}

func (m *MemoryStore) GetCompany(_ context.Context, id uuid.UUID) (*model.Company, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.companies[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

func (m *MemoryStore) ListCompaniesByIDs(_ context.Context, ids []uuid.UUID) ([]model.Company, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Company
	for _, id := range ids {
		if c, ok := m.companies[id]; ok {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MemoryStore) GetUser(_ context.Context, id uuid.UUID) (*model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (m *MemoryStore) ListUsersByIDs(_ context.Context, ids []uuid.UUID) ([]model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.User
	for _, id := range ids {
		if u, ok := m.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *MemoryStore) GetCorrespondent(_ context.Context, id uuid.UUID) (*model.Correspondent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.correspondents[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := cloneCorrespondent(c)
	return &out, nil
}

func (m *MemoryStore) ListCorrespondents(_ context.Context, filter CorrespondentFilter) ([]model.Correspondent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state := strings.ToUpper(strings.TrimSpace(filter.State))
	var out []model.Correspondent
	for _, c := range m.correspondents {
		if filter.ActiveOnly && !c.Active {
			continue
		}
		if state != "" && !coversState(c, state) {
			continue
		}
		out = append(out, cloneCorrespondent(c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FullName < out[j].FullName })
	return out, nil
}

func coversState(c model.Correspondent, state string) bool {
	for _, area := range c.ServiceAreas {
		if strings.ToUpper(strings.TrimSpace(area.State)) == state {
			return true
		}
	}
	return false
}

func cloneCorrespondent(c model.Correspondent) model.Correspondent {
	c.Specialties = append([]string(nil), c.Specialties...)
	c.ServiceAreas = append([]model.CoverageArea(nil), c.ServiceAreas...)
	return c
}
