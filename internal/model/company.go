package model

import (
	"time"

	"github.com/google/uuid"
)

type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "pending"
	VerificationInReview VerificationStatus = "in_review"
	VerificationApproved VerificationStatus = "approved"
	VerificationRejected VerificationStatus = "rejected"
)

type Company struct {
	ID                 uuid.UUID
	UserID             uuid.UUID
	Name               string
	CNPJ               string
	Address            string
	ContactName        string
	ContactEmail       string
	ContactPhone       string
	VerificationStatus VerificationStatus
	Active             bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}
