package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nurpe/jurisconnect/internal/model"
)

type CompanyRepository struct {
	db *gorm.DB
}

func NewCompanyRepository(db *gorm.DB) *CompanyRepository {
	return &CompanyRepository{db: db}
}

type companyRow struct {
	ID                 uuid.UUID
	UserID             uuid.UUID
	Name               string
	CNPJ               string `gorm:"column:cnpj"`
	Address            string
	ContactName        string
	ContactEmail       string
	ContactPhone       string
	VerificationStatus string
	Active             bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (row companyRow) toModel() model.Company {
	return model.Company{
		ID:                 row.ID,
		UserID:             row.UserID,
		Name:               row.Name,
		CNPJ:               row.CNPJ,
		Address:            row.Address,
		ContactName:        row.ContactName,
		ContactEmail:       row.ContactEmail,
		ContactPhone:       row.ContactPhone,
		VerificationStatus: model.VerificationStatus(row.VerificationStatus),
		Active:             row.Active,
		CreatedAt:          row.CreatedAt,
		UpdatedAt:          row.UpdatedAt,
	}
}

const companyColumns = `id, user_id, name, cnpj, address, contact_name, contact_email, contact_phone,
	verification_status, active, created_at, updated_at`

func (r *CompanyRepository) GetCompany(ctx context.Context, id uuid.UUID) (*model.Company, error) {
	var row companyRow
	if err := r.db.WithContext(ctx).Raw(`
		SELECT `+companyColumns+`
		FROM companies
		WHERE id = ?
		LIMIT 1
	`, id).Scan(&row).Error; err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, gorm.ErrRecordNotFound
	}
	company := row.toModel()
	return &company, nil
}

func (r *CompanyRepository) ListCompaniesByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Company, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []companyRow
	if err := r.db.WithContext(ctx).Raw(`
		SELECT `+companyColumns+`
		FROM companies
		WHERE id IN ?
		ORDER BY name ASC
	`, ids).Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]model.Company, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toModel())
	}
	return out, nil
}

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

type userRow struct {
	ID        uuid.UUID
	Name      string
	Email     string
	Role      string
	Status    string
	CreatedAt time.Time
}

func (row userRow) toModel() model.User {
	return model.User{
		ID:        row.ID,
		Name:      row.Name,
		Email:     row.Email,
		Role:      model.Role(row.Role),
		Status:    model.UserStatus(row.Status),
		CreatedAt: row.CreatedAt,
	}
}

func (r *UserRepository) GetUser(ctx context.Context, id uuid.UUID) (*model.User, error) {
	var row userRow
	if err := r.db.WithContext(ctx).Raw(`
		SELECT id, name, email, role, status, created_at
		FROM users
		WHERE id = ?
		LIMIT 1
	`, id).Scan(&row).Error; err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, gorm.ErrRecordNotFound
	}
	user := row.toModel()
	return &user, nil
}

func (r *UserRepository) ListUsersByIDs(ctx context.Context, ids []uuid.UUID) ([]model.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []userRow
	if err := r.db.WithContext(ctx).Raw(`
		SELECT id, name, email, role, status, created_at
		FROM users
		WHERE id IN ?
	`, ids).Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]model.User, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toModel())
	}
	return out, nil
}

type CorrespondentRepository struct {
	db *gorm.DB
}

func NewCorrespondentRepository(db *gorm.DB) *CorrespondentRepository {
	return &CorrespondentRepository{db: db}
}

type correspondentRow struct {
	ID            uuid.UUID
	UserID        uuid.UUID
	FullName      string
	OABNumber     string `gorm:"column:oab_number"`
	OABState      string `gorm:"column:oab_state"`
	Email         string
	Phone         string
	Specialties   string
	Availability  string
	RatingAverage float64
	RatingCount   int
	Active        bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type serviceAreaRow struct {
	CorrespondentID uuid.UUID
	City            string
	State           string
	RadiusKM        int `gorm:"column:radius_km"`
}

const correspondentColumns = `c.id, c.user_id, c.full_name, c.oab_number, c.oab_state, c.email, c.phone,
	c.specialties::text AS specialties, c.availability, c.rating_average::float8 AS rating_average,
	c.rating_count, c.active, c.created_at, c.updated_at`

func (r *CorrespondentRepository) GetCorrespondent(ctx context.Context, id uuid.UUID) (*model.Correspondent, error) {
	var row correspondentRow
	if err := r.db.WithContext(ctx).Raw(`
		SELECT `+correspondentColumns+`
		FROM correspondents c
		WHERE c.id = ?
		LIMIT 1
	`, id).Scan(&row).Error; err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, gorm.ErrRecordNotFound
	}
	out, err := r.attachAreas(ctx, []correspondentRow{row})
	if err != nil {
		return nil, err
	}
	return &out[0], nil
}

// ListCorrespondents returns correspondents with at least one service area
// in filter.State, or all of them when State is empty.
func (r *CorrespondentRepository) ListCorrespondents(ctx context.Context, filter CorrespondentFilter) ([]model.Correspondent, error) {
	query := `
		SELECT ` + correspondentColumns + `
		FROM correspondents c
		WHERE 1 = 1`
	var args []interface{}
	if state := strings.TrimSpace(filter.State); state != "" {
		query += ` AND EXISTS (
			SELECT 1 FROM correspondent_service_areas a
			WHERE a.correspondent_id = c.id AND upper(a.state) = upper(?)
		)`
		args = append(args, state)
	}
	if filter.ActiveOnly {
		query += ` AND c.active = TRUE`
	}
	query += ` ORDER BY c.full_name ASC`

	var rows []correspondentRow
	if err := r.db.WithContext(ctx).Raw(query, args...).Scan(&rows).Error; err != nil {
		return nil, err
	}
	return r.attachAreas(ctx, rows)
}

// addCorrespondentRating folds one rating into the aggregate. The average is
// derived from the exact rating_sum, so rounding never accumulates.
func addCorrespondentRating(tx *gorm.DB, id uuid.UUID, value int) error {
	res := tx.Exec(`
		UPDATE correspondents
		SET rating_sum = rating_sum + ?,
			rating_count = rating_count + 1,
			rating_average = ROUND((rating_sum + ?)::numeric / (rating_count + 1), 2),
			updated_at = NOW()
		WHERE id = ?
	`, value, value, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *CorrespondentRepository) attachAreas(ctx context.Context, rows []correspondentRow) ([]model.Correspondent, error) {
	out := make([]model.Correspondent, 0, len(rows))
	if len(rows) == 0 {
		return out, nil
	}
	ids := make([]uuid.UUID, len(rows))
	for i, row := range rows {
		ids[i] = row.ID
	}

	var areas []serviceAreaRow
	if err := r.db.WithContext(ctx).Raw(`
		SELECT correspondent_id, city, state, radius_km
		FROM correspondent_service_areas
		WHERE correspondent_id IN ?
		ORDER BY correspondent_id, state, city
	`, ids).Scan(&areas).Error; err != nil {
		return nil, err
	}
	byCorrespondent := make(map[uuid.UUID][]model.CoverageArea, len(rows))
	for _, a := range areas {
		byCorrespondent[a.CorrespondentID] = append(byCorrespondent[a.CorrespondentID], model.CoverageArea{
			City:     a.City,
			State:    a.State,
			RadiusKM: a.RadiusKM,
		})
	}

	for _, row := range rows {
		var specialties []string
		if row.Specialties != "" {
			if err := json.Unmarshal([]byte(row.Specialties), &specialties); err != nil {
				return nil, fmt.Errorf("decode specialties of %s: %w", row.ID, err)
			}
		}
		out = append(out, model.Correspondent{
			ID:           row.ID,
			UserID:       row.UserID,
			FullName:     row.FullName,
			OAB:          model.OAB{Number: row.OABNumber, State: row.OABState},
			Email:        row.Email,
			Phone:        row.Phone,
			Specialties:  specialties,
			ServiceAreas: byCorrespondent[row.ID],
			Availability: model.Availability(row.Availability),
			Rating:       model.RatingSummary{Average: row.RatingAverage, Count: row.RatingCount},
			Active:       row.Active,
			CreatedAt:    row.CreatedAt,
			UpdatedAt:    row.UpdatedAt,
		})
	}
	return out, nil
}

// PostgresStore bundles the gorm repositories into one Entity Store.
type PostgresStore struct {
	*RequestRepository
	*CompanyRepository
	*CorrespondentRepository
	*UserRepository
	db *gorm.DB
}

func NewPostgresStore(db *gorm.DB) *PostgresStore {
	return &PostgresStore{
		RequestRepository:       NewRequestRepository(db),
		CompanyRepository:       NewCompanyRepository(db),
		CorrespondentRepository: NewCorrespondentRepository(db),
		UserRepository:          NewUserRepository(db),
		db:                      db,
	}
}

// RateRequest saves req and folds req.Rating into the assigned
// correspondent's aggregate in one transaction.
func (s *PostgresStore) RateRequest(ctx context.Context, req *model.ServiceRequest, cond SaveCondition) error {
	if req.Rating == nil || req.CorrespondentID == nil {
		return fmt.Errorf("rate request %s: rating and correspondent are required", req.ID)
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := saveRequest(tx, req, cond); err != nil {
			return err
		}
		return addCorrespondentRating(tx, *req.CorrespondentID, req.Rating.Value)
	})
	if err != nil {
		return err
	}
	req.Version = cond.ExpectedVersion + 1
	return nil
}
