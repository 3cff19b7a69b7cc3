package model

import (
	"time"

	"github.com/google/uuid"
)

type Availability string

const (
	AvailabilityAvailable   Availability = "available"
	AvailabilityPartial     Availability = "partial"
	AvailabilityUnavailable Availability = "unavailable"
)

// CoverageArea is a locality a correspondent works in. RadiusKM > 0 means the
// correspondent also travels to nearby cities of the same state.
type CoverageArea struct {
	City     string
	State    string
	RadiusKM int
}

type OAB struct {
	Number string
	State  string
}

type RatingSummary struct {
	Average float64
	Count   int
}

type Correspondent struct {
	ID           uuid.UUID
	UserID       uuid.UUID
	FullName     string
	OAB          OAB
	Email        string
	Phone        string
	Specialties  []string
	ServiceAreas []CoverageArea
	Availability Availability
	Rating       RatingSummary
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (c Correspondent) HasSpecialty(tag string) bool {
	for _, s := range c.Specialties {
		if s == tag {
			return true
		}
	}
	return false
}
