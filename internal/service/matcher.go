package service

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/nurpe/jurisconnect/internal/model"
)

// Matcher decides which correspondents may take a request and ranks them.
type Matcher struct{}

func NewMatcher() *Matcher {
	return &Matcher{}
}

func normalizePlace(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// IsEligible reports whether c covers the locality. A service area with a
// positive radius covers every city of its state.
func (m *Matcher) IsEligible(c model.Correspondent, city, state string) bool {
	if c.Availability == model.AvailabilityUnavailable {
		return false
	}
	city, state = normalizePlace(city), normalizePlace(state)
	for _, area := range c.ServiceAreas {
		if normalizePlace(area.State) != state {
			continue
		}
		if normalizePlace(area.City) == city || area.RadiusKM > 0 {
			return true
		}
	}
	return false
}

func (m *Matcher) coversCityExactly(c model.Correspondent, city, state string) bool {
	city, state = normalizePlace(city), normalizePlace(state)
	for _, area := range c.ServiceAreas {
		if normalizePlace(area.State) == state && normalizePlace(area.City) == city {
			return true
		}
	}
	return false
}

// FindEligible filters pool down to active, eligible correspondents and
// orders them best first. Callers drop correspondents whose user account is
// not active before calling.
func (m *Matcher) FindEligible(req *model.ServiceRequest, pool []model.Correspondent) []model.Correspondent {
	type candidate struct {
		correspondent model.Correspondent
		exactCity     bool
		specialty     bool
	}

	city, state := req.ServiceArea.City, req.ServiceArea.State
	candidates := make([]candidate, 0, len(pool))
	for _, c := range pool {
		if !c.Active || !m.IsEligible(c, city, state) {
			continue
		}
		candidates = append(candidates, candidate{
			correspondent: c,
			exactCity:     m.coversCityExactly(c, city, state),
			specialty:     req.PracticeArea != "" && c.HasSpecialty(req.PracticeArea),
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.exactCity != b.exactCity {
			return a.exactCity
		}
		if a.specialty != b.specialty {
			return a.specialty
		}
		aAvailable := a.correspondent.Availability == model.AvailabilityAvailable
		bAvailable := b.correspondent.Availability == model.AvailabilityAvailable
		if aAvailable != bAvailable {
			return aAvailable
		}
		if a.correspondent.Rating.Average != b.correspondent.Rating.Average {
			return a.correspondent.Rating.Average > b.correspondent.Rating.Average
		}
		if a.correspondent.Rating.Count != b.correspondent.Rating.Count {
			return a.correspondent.Rating.Count > b.correspondent.Rating.Count
		}
		return a.correspondent.FullName < b.correspondent.FullName
	})

	out := make([]model.Correspondent, len(candidates))
	for i, c := range candidates {
		out[i] = c.correspondent
	}
	return out
}

// ValidateAssignment checks an assignment against the current request. The
// checks run in a fixed order so that a lost assignment race always reports
// ErrAlreadyAssigned.
func (m *Matcher) ValidateAssignment(req *model.ServiceRequest, c model.Correspondent, value decimal.Decimal) error {
	if req.CorrespondentID != nil {
		return fmt.Errorf("%w: request %s already has a correspondent", ErrAlreadyAssigned, req.ID)
	}
	if req.Status != model.StatusOpen && req.Status != model.StatusInReview {
		return fmt.Errorf("%w: cannot assign a request in status %s", ErrInvalidTransition, req.Status)
	}
	if !c.Active {
		return fmt.Errorf("%w: correspondent %s is inactive", ErrNotEligible, c.ID)
	}
	if !m.IsEligible(c, req.ServiceArea.City, req.ServiceArea.State) {
		return fmt.Errorf("%w: correspondent %s does not serve %s/%s", ErrNotEligible, c.ID, req.ServiceArea.City, req.ServiceArea.State)
	}
	if !value.IsPositive() {
		return fmt.Errorf("%w: correspondent value must be positive", ErrInvalidValue)
	}
	if !req.CompanyValue.Valid {
		return fmt.Errorf("%w: company value is not set", ErrInvalidValue)
	}
	if value.GreaterThanOrEqual(req.CompanyValue.Decimal) {
		return fmt.Errorf("%w: correspondent value %s must be lower than company value %s", ErrInvalidValue, value.StringFixed(2), req.CompanyValue.Decimal.StringFixed(2))
	}
	return nil
}
