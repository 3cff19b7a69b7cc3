package repository

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nurpe/jurisconnect/internal/model"
)

// ErrNotFound is returned for absent records by every store implementation.
var ErrNotFound = gorm.ErrRecordNotFound

// ErrVersionConflict means the stored request diverged from the version the
// caller read; the caller must re-read and retry.
var ErrVersionConflict = errors.New("repository: version conflict")

// SaveCondition guards a conditional request update.
type SaveCondition struct {
	ExpectedVersion int64
	// Unassigned additionally requires the stored request to have no
	// correspondent and to still be open or in review.
	Unassigned bool
}

type RequestFilter struct {
	CompanyID       *uuid.UUID
	CorrespondentID *uuid.UUID
	Status          *model.RequestStatus
	ServiceType     *model.ServiceType
	DeadlineFrom    *time.Time
	DeadlineTo      *time.Time
	CreatedFrom     *time.Time
	CreatedTo       *time.Time
	Limit           int
	Offset          int
}

type CorrespondentFilter struct {
	State      string
	ActiveOnly bool
}
