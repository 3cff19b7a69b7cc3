package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/nurpe/jurisconnect/internal/model"
	"github.com/nurpe/jurisconnect/internal/repository"
)

// RequestStore persists service requests. SaveRequest must fail with
// repository.ErrVersionConflict when the condition does not hold, and must
// store the request together with its new history entries atomically.
type RequestStore interface {
	CreateRequest(ctx context.Context, req *model.ServiceRequest) error
	GetRequest(ctx context.Context, id uuid.UUID) (*model.ServiceRequest, error)
	SaveRequest(ctx context.Context, req *model.ServiceRequest, cond repository.SaveCondition) error
	// RateRequest saves req like SaveRequest and, in the same unit, folds
	// req.Rating into the aggregate of req's correspondent.
	RateRequest(ctx context.Context, req *model.ServiceRequest, cond repository.SaveCondition) error
	FindRequests(ctx context.Context, filter repository.RequestFilter) ([]model.ServiceRequest, int64, error)
}

type CorrespondentStore interface {
	GetCorrespondent(ctx context.Context, id uuid.UUID) (*model.Correspondent, error)
	ListCorrespondents(ctx context.Context, filter repository.CorrespondentFilter) ([]model.Correspondent, error)
}

type CompanyStore interface {
	GetCompany(ctx context.Context, id uuid.UUID) (*model.Company, error)
	ListCompaniesByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Company, error)
}

type UserStore interface {
	GetUser(ctx context.Context, id uuid.UUID) (*model.User, error)
	ListUsersByIDs(ctx context.Context, ids []uuid.UUID) ([]model.User, error)
}

// Store is the Entity Store the services run against.
type Store interface {
	RequestStore
	CorrespondentStore
	CompanyStore
	UserStore
}
