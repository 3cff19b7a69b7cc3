package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/nurpe/jurisconnect/internal/model"
)

type RequestRepository struct {
	db *gorm.DB
}

func NewRequestRepository(db *gorm.DB) *RequestRepository {
	return &RequestRepository{db: db}
}

const requestColumns = `
	sr.id,
	sr.company_id,
	sr.correspondent_id,
	sr.title,
	sr.description,
	sr.service_type,
	sr.practice_area,
	sr.city,
	sr.state,
	sr.court,
	sr.court_section,
	sr.address,
	sr.process_number,
	sr.client_name,
	sr.client_document,
	sr.opposing_party,
	sr.urgency,
	sr.deadline,
	sr.scheduled_date,
	sr.scheduled_time,
	sr.notes,
	sr.instructions,
	sr.status,
	sr.company_value,
	sr.correspondent_value,
	sr.profit_margin,
	sr.completed_at,
	sr.completion_report,
	sr.documents,
	sr.payment_status,
	sr.payment_method,
	sr.payment_paid_at,
	sr.payment_notes,
	sr.rating_value,
	sr.rating_comment,
	sr.rated_at,
	sr.version,
	sr.created_at,
	sr.updated_at`

type requestRow struct {
	ID                 uuid.UUID
	CompanyID          uuid.UUID
	CorrespondentID    *uuid.UUID
	Title              string
	Description        string
	ServiceType        string
	PracticeArea       string
	City               string
	State              string
	Court              string
	CourtSection       string
	Address            string
	ProcessNumber      string
	ClientName         string
	ClientDocument     string
	OpposingParty      string
	Urgency            string
	Deadline           time.Time
	ScheduledDate      *time.Time
	ScheduledTime      string
	Notes              string
	Instructions       string
	Status             string
	CompanyValue       decimal.NullDecimal
	CorrespondentValue decimal.NullDecimal
	ProfitMargin       decimal.NullDecimal
	CompletedAt        *time.Time
	CompletionReport   sql.NullString
	Documents          sql.NullString
	PaymentStatus      string
	PaymentMethod      *string
	PaymentPaidAt      *time.Time
	PaymentNotes       string
	RatingValue        *int
	RatingComment      *string
	RatedAt            *time.Time
	Version            int64
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

type historyRow struct {
	RequestID uuid.UUID
	Seq       int
	Status    string
	Note      string
	ActorID   uuid.UUID
	CreatedAt time.Time
}

type completionReportDoc struct {
	Content       string          `json:"content"`
	SubmittedAt   *time.Time      `json:"submitted_at,omitempty"`
	Attachments   []attachmentDoc `json:"attachments"`
	Approved      bool            `json:"approved"`
	ApprovedAt    *time.Time      `json:"approved_at,omitempty"`
	ApprovedBy    *uuid.UUID      `json:"approved_by,omitempty"`
	ApprovalNotes string          `json:"approval_notes,omitempty"`
}

type attachmentDoc struct {
	Name       string    `json:"name"`
	Path       string    `json:"path"`
	UploadedAt time.Time `json:"uploaded_at"`
}

type documentDoc struct {
	ID         uuid.UUID `json:"id"`
	Type       string    `json:"type"`
	Name       string    `json:"name"`
	Path       string    `json:"path"`
	UploadedAt time.Time `json:"uploaded_at"`
	UploadedBy uuid.UUID `json:"uploaded_by"`
}

func (r *RequestRepository) CreateRequest(ctx context.Context, req *model.ServiceRequest) error {
	cols, err := writableColumns(req)
	if err != nil {
		return err
	}
	req.Version = 1

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Exec(`
			INSERT INTO service_requests (
				id, company_id, correspondent_id, title, description, service_type, practice_area,
				city, state, court, court_section, address, process_number, client_name,
				client_document, opposing_party, urgency, deadline, scheduled_date, scheduled_time,
				notes, instructions, status, company_value, correspondent_value, profit_margin,
				completed_at, completion_report, documents, payment_status, payment_method,
				payment_paid_at, payment_notes, rating_value, rating_comment, rated_at,
				version, created_at, updated_at
			) VALUES (
				?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?,
				?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?
			)
		`, append([]interface{}{req.ID, req.CompanyID}, append(cols, req.Version, req.CreatedAt, req.UpdatedAt)...)...).Error
		if err != nil {
			return err
		}
		return insertHistory(tx, req.ID, req.StatusHistory)
	})
}

// writableColumns returns the mutable column values in table order, from
// correspondent_id through rated_at.
func writableColumns(req *model.ServiceRequest) ([]interface{}, error) {
	report, err := encodeCompletionReport(req.CompletionReport)
	if err != nil {
		return nil, err
	}
	documents, err := encodeDocuments(req.Documents)
	if err != nil {
		return nil, err
	}

	var paymentMethod *string
	if req.Payment.Method != nil {
		m := string(*req.Payment.Method)
		paymentMethod = &m
	}
	var ratingValue *int
	var ratingComment *string
	var ratedAt *time.Time
	if req.Rating != nil {
		v, c, at := req.Rating.Value, req.Rating.Comment, req.Rating.RatedAt
		ratingValue, ratingComment, ratedAt = &v, &c, &at
	}

	return []interface{}{
		req.CorrespondentID,
		req.Title,
		req.Description,
		string(req.ServiceType),
		req.PracticeArea,
		req.ServiceArea.City,
		req.ServiceArea.State,
		req.ServiceArea.Court,
		req.ServiceArea.CourtSection,
		req.ServiceArea.Address,
		req.ProcessNumber,
		req.ClientName,
		req.ClientDocument,
		req.OpposingParty,
		string(req.Urgency),
		req.Deadline,
		req.ScheduledDate,
		req.ScheduledTime,
		req.Notes,
		req.Instructions,
		string(req.Status),
		req.CompanyValue,
		req.CorrespondentValue,
		req.ProfitMargin,
		req.CompletedAt,
		report,
		documents,
		string(req.Payment.Status),
		paymentMethod,
		req.Payment.PaidAt,
		req.Payment.Notes,
		ratingValue,
		ratingComment,
		ratedAt,
	}, nil
}

func (r *RequestRepository) GetRequest(ctx context.Context, id uuid.UUID) (*model.ServiceRequest, error) {
	var row requestRow
	err := r.db.WithContext(ctx).Raw(`
		SELECT `+requestColumns+`
		FROM service_requests sr
		WHERE sr.id = ?
		LIMIT 1
	`, id).Scan(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == uuid.Nil {
		return nil, gorm.ErrRecordNotFound
	}

	histories, err := r.loadHistory(ctx, []uuid.UUID{row.ID})
	if err != nil {
		return nil, err
	}
	return row.toModel(histories[row.ID])
}

// SaveRequest writes req when the stored version still equals
// cond.ExpectedVersion and appends history entries newer than the stored
// ones. Both happen in one transaction.
func (r *RequestRepository) SaveRequest(ctx context.Context, req *model.ServiceRequest, cond SaveCondition) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return saveRequest(tx, req, cond)
	})
	if err != nil {
		return err
	}
	req.Version = cond.ExpectedVersion + 1
	return nil
}

func saveRequest(tx *gorm.DB, req *model.ServiceRequest, cond SaveCondition) error {
	cols, err := writableColumns(req)
	if err != nil {
		return err
	}

	query := `
		UPDATE service_requests SET
			correspondent_id = ?, title = ?, description = ?, service_type = ?, practice_area = ?,
			city = ?, state = ?, court = ?, court_section = ?, address = ?, process_number = ?,
			client_name = ?, client_document = ?, opposing_party = ?, urgency = ?, deadline = ?,
			scheduled_date = ?, scheduled_time = ?, notes = ?, instructions = ?, status = ?,
			company_value = ?, correspondent_value = ?, profit_margin = ?, completed_at = ?,
			completion_report = ?, documents = ?, payment_status = ?, payment_method = ?,
			payment_paid_at = ?, payment_notes = ?, rating_value = ?, rating_comment = ?, rated_at = ?,
			version = version + 1,
			updated_at = ?
		WHERE id = ? AND version = ?`
	if cond.Unassigned {
		query += ` AND correspondent_id IS NULL AND status IN ('open', 'in_review')`
	}
	args := append(cols, req.UpdatedAt, req.ID, cond.ExpectedVersion)

	res := tx.Exec(query, args...)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrVersionConflict
	}

	var storedSeq int
	if err := tx.Raw(`
		SELECT COALESCE(MAX(seq), 0)
		FROM service_request_status_history
		WHERE request_id = ?
	`, req.ID).Scan(&storedSeq).Error; err != nil {
		return err
	}

	var fresh []model.StatusChange
	for _, change := range req.StatusHistory {
		if change.Seq > storedSeq {
			fresh = append(fresh, change)
		}
	}
	return insertHistory(tx, req.ID, fresh)
}

func insertHistory(tx *gorm.DB, requestID uuid.UUID, changes []model.StatusChange) error {
	for _, change := range changes {
		if err := tx.Exec(`
			INSERT INTO service_request_status_history (request_id, seq, status, note, actor_id, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (request_id, seq) DO NOTHING
		`, requestID, change.Seq, string(change.Status), change.Note, change.ActorID, change.At).Error; err != nil {
			return fmt.Errorf("insert status history %d: %w", change.Seq, err)
		}
	}
	return nil
}

func (r *RequestRepository) FindRequests(ctx context.Context, filter RequestFilter) ([]model.ServiceRequest, int64, error) {
	where, args := requestFilterClause(filter)

	var total int64
	if err := r.db.WithContext(ctx).Raw(`
		SELECT COUNT(*)
		FROM service_requests sr
		`+where, args...).Scan(&total).Error; err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []model.ServiceRequest{}, 0, nil
	}

	query := `
		SELECT ` + requestColumns + `
		FROM service_requests sr
		` + where + `
		ORDER BY sr.created_at DESC, sr.id`
	pageArgs := append([]interface{}{}, args...)
	if filter.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		pageArgs = append(pageArgs, filter.Limit, filter.Offset)
	}

	var rows []requestRow
	if err := r.db.WithContext(ctx).Raw(query, pageArgs...).Scan(&rows).Error; err != nil {
		return nil, 0, err
	}

	ids := make([]uuid.UUID, len(rows))
	for i, row := range rows {
		ids[i] = row.ID
	}
	histories, err := r.loadHistory(ctx, ids)
	if err != nil {
		return nil, 0, err
	}

	items := make([]model.ServiceRequest, 0, len(rows))
	for _, row := range rows {
		req, err := row.toModel(histories[row.ID])
		if err != nil {
			return nil, 0, err
		}
		items = append(items, *req)
	}
	return items, total, nil
}

func requestFilterClause(filter RequestFilter) (string, []interface{}) {
	var conditions []string
	var args []interface{}
	add := func(cond string, arg interface{}) {
		conditions = append(conditions, cond)
		args = append(args, arg)
	}
	if filter.CompanyID != nil {
		add("sr.company_id = ?", *filter.CompanyID)
	}
	if filter.CorrespondentID != nil {
		add("sr.correspondent_id = ?", *filter.CorrespondentID)
	}
	if filter.Status != nil {
		add("sr.status = ?", string(*filter.Status))
	}
	if filter.ServiceType != nil {
		add("sr.service_type = ?", string(*filter.ServiceType))
	}
	if filter.DeadlineFrom != nil {
		add("sr.deadline >= ?", *filter.DeadlineFrom)
	}
	if filter.DeadlineTo != nil {
		add("sr.deadline < ?", *filter.DeadlineTo)
	}
	if filter.CreatedFrom != nil {
		add("sr.created_at >= ?", *filter.CreatedFrom)
	}
	if filter.CreatedTo != nil {
		add("sr.created_at < ?", *filter.CreatedTo)
	}
	if len(conditions) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(conditions, " AND "), args
}

func (r *RequestRepository) loadHistory(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID][]model.StatusChange, error) {
	out := make(map[uuid.UUID][]model.StatusChange, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []historyRow
	if err := r.db.WithContext(ctx).Raw(`
		SELECT request_id, seq, status, note, actor_id, created_at
		FROM service_request_status_history
		WHERE request_id IN ?
		ORDER BY request_id, seq
	`, ids).Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.RequestID] = append(out[row.RequestID], model.StatusChange{
			Seq:     row.Seq,
			Status:  model.RequestStatus(row.Status),
			At:      row.CreatedAt,
			Note:    row.Note,
			ActorID: row.ActorID,
		})
	}
	return out, nil
}

func (row requestRow) toModel(history []model.StatusChange) (*model.ServiceRequest, error) {
	req := &model.ServiceRequest{
		ID:              row.ID,
		CompanyID:       row.CompanyID,
		CorrespondentID: row.CorrespondentID,
		Title:           row.Title,
		Description:     row.Description,
		ServiceType:     model.ServiceType(row.ServiceType),
		PracticeArea:    row.PracticeArea,
		ServiceArea: model.Location{
			City:         row.City,
			State:        row.State,
			Court:        row.Court,
			CourtSection: row.CourtSection,
			Address:      row.Address,
		},
		ProcessNumber:      row.ProcessNumber,
		ClientName:         row.ClientName,
		ClientDocument:     row.ClientDocument,
		OpposingParty:      row.OpposingParty,
		Urgency:            model.Urgency(row.Urgency),
		Deadline:           row.Deadline,
		ScheduledDate:      row.ScheduledDate,
		ScheduledTime:      row.ScheduledTime,
		Notes:              row.Notes,
		Instructions:       row.Instructions,
		Status:             model.RequestStatus(row.Status),
		StatusHistory:      history,
		CompanyValue:       row.CompanyValue,
		CorrespondentValue: row.CorrespondentValue,
		ProfitMargin:       row.ProfitMargin,
		CompletedAt:        row.CompletedAt,
		Payment: model.Payment{
			Status: model.PaymentStatus(row.PaymentStatus),
			PaidAt: row.PaymentPaidAt,
			Notes:  row.PaymentNotes,
		},
		Version:   row.Version,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
	if row.PaymentMethod != nil {
		method := model.PaymentMethod(*row.PaymentMethod)
		req.Payment.Method = &method
	}
	if row.RatingValue != nil {
		req.Rating = &model.Rating{Value: *row.RatingValue}
		if row.RatingComment != nil {
			req.Rating.Comment = *row.RatingComment
		}
		if row.RatedAt != nil {
			req.Rating.RatedAt = *row.RatedAt
		}
	}

	var err error
	if req.CompletionReport, err = decodeCompletionReport(row.CompletionReport); err != nil {
		return nil, fmt.Errorf("decode completion report of %s: %w", row.ID, err)
	}
	if req.Documents, err = decodeDocuments(row.Documents); err != nil {
		return nil, fmt.Errorf("decode documents of %s: %w", row.ID, err)
	}
	return req, nil
}

func encodeCompletionReport(report *model.CompletionReport) (*string, error) {
	if report == nil {
		return nil, nil
	}
	doc := completionReportDoc{
		Content:       report.Content,
		SubmittedAt:   report.SubmittedAt,
		Attachments:   make([]attachmentDoc, 0, len(report.Attachments)),
		Approved:      report.Approved,
		ApprovedAt:    report.ApprovedAt,
		ApprovedBy:    report.ApprovedBy,
		ApprovalNotes: report.ApprovalNotes,
	}
	for _, a := range report.Attachments {
		doc.Attachments = append(doc.Attachments, attachmentDoc{Name: a.Name, Path: a.Path, UploadedAt: a.UploadedAt})
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	s := string(raw)
	return &s, nil
}

func decodeCompletionReport(raw sql.NullString) (*model.CompletionReport, error) {
	if !raw.Valid || raw.String == "" || raw.String == "null" {
		return nil, nil
	}
	var doc completionReportDoc
	if err := json.Unmarshal([]byte(raw.String), &doc); err != nil {
		return nil, err
	}
	report := &model.CompletionReport{
		Content:       doc.Content,
		SubmittedAt:   doc.SubmittedAt,
		Approved:      doc.Approved,
		ApprovedAt:    doc.ApprovedAt,
		ApprovedBy:    doc.ApprovedBy,
		ApprovalNotes: doc.ApprovalNotes,
	}
	for _, a := range doc.Attachments {
		report.Attachments = append(report.Attachments, model.Attachment{Name: a.Name, Path: a.Path, UploadedAt: a.UploadedAt})
	}
	return report, nil
}

func encodeDocuments(docs []model.Document) (string, error) {
	out := make([]documentDoc, 0, len(docs))
	for _, d := range docs {
		out = append(out, documentDoc{
			ID:         d.ID,
			Type:       string(d.Type),
			Name:       d.Name,
			Path:       d.Path,
			UploadedAt: d.UploadedAt,
			UploadedBy: d.UploadedBy,
		})
	}
	raw, err := json.Marshal(out)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func decodeDocuments(raw sql.NullString) ([]model.Document, error) {
	if !raw.Valid || raw.String == "" {
		return nil, nil
	}
	var docs []documentDoc
	if err := json.Unmarshal([]byte(raw.String), &docs); err != nil {
		return nil, err
	}
	out := make([]model.Document, 0, len(docs))
	for _, d := range docs {
		out = append(out, model.Document{
			ID:         d.ID,
			Type:       model.DocumentType(d.Type),
			Name:       d.Name,
			Path:       d.Path,
			UploadedAt: d.UploadedAt,
			UploadedBy: d.UploadedBy,
		})
	}
	return out, nil
}
