package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/nurpe/jurisconnect/internal/http/middleware"
	"github.com/nurpe/jurisconnect/internal/model"
	"github.com/nurpe/jurisconnect/internal/service"
)

type IntentDispatcher interface {
	Dispatch(ctx context.Context, intents []model.Intent)
}

type Handler struct {
	requests *service.RequestService
	reports  *service.ReportService
	notifier IntentDispatcher
	log      zerolog.Logger
}

func NewHandler(requests *service.RequestService, reports *service.ReportService, notifier IntentDispatcher, log zerolog.Logger) *Handler {
	return &Handler{requests: requests, reports: reports, notifier: notifier, log: log}
}

func (h *Handler) Register(router *gin.Engine, authMiddleware gin.HandlerFunc) {
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	protected := router.Group("/")
	protected.Use(authMiddleware)

	requests := protected.Group("/service-requests")
	requests.POST("", h.createRequest)
	requests.GET("", h.listRequests)
	requests.GET("/:id", h.getRequest)
	requests.PATCH("/:id", h.updateRequest)
	requests.POST("/:id/pricing", h.setCompanyValue)
	requests.POST("/:id/assignment", h.assignCorrespondent)
	requests.POST("/:id/status", h.transitionStatus)
	requests.POST("/:id/cancel", h.cancelRequest)
	requests.POST("/:id/report/approval", h.approveReport)
	requests.GET("/:id/eligible-correspondents", h.eligibleCorrespondents)
	requests.PUT("/:id/payment", h.updatePayment)
	requests.POST("/:id/rating", h.rateCorrespondent)
	requests.POST("/:id/documents", h.attachDocument)
	requests.GET("/:id/certificate", h.completionCertificate)

	protected.POST("/reports/financial/export", h.exportFinancialReport)
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (h *Handler) abort(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{"error": errorBody{Code: code, Message: message}})
}

func (h *Handler) badRequest(c *gin.Context, message string) {
	h.abort(c, http.StatusBadRequest, service.CodeValidation, message)
}

func (h *Handler) handleError(c *gin.Context, err error) {
	code := service.Code(err)
	switch code {
	case service.CodeNotFound:
		h.abort(c, http.StatusNotFound, code, err.Error())
	case service.CodeForbidden:
		h.abort(c, http.StatusForbidden, code, err.Error())
	case service.CodeValidation:
		h.abort(c, http.StatusBadRequest, code, err.Error())
	case service.CodeNotEligible:
		h.abort(c, http.StatusUnprocessableEntity, code, err.Error())
	case service.CodeInvalidTransition, service.CodeInvalidValue, service.CodeAlreadyAssigned, service.CodeConflict:
		h.abort(c, http.StatusConflict, code, err.Error())
	default:
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		h.abort(c, http.StatusInternalServerError, service.CodeInternal, "internal error")
	}
}

func (h *Handler) principal(c *gin.Context) (model.Principal, bool) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		h.abort(c, http.StatusUnauthorized, "UNAUTHORIZED", "missing principal")
	}
	return principal, ok
}

func (h *Handler) requestID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(strings.TrimSpace(c.Param("id")))
	if err != nil {
		h.badRequest(c, "invalid id")
		return uuid.Nil, false
	}
	return id, true
}

// respond hands the intents of a committed change to the notifier and
// renders the request. The notifier must not block.
func (h *Handler) respond(c *gin.Context, principal model.Principal, status int, result *service.Result) {
	if h.notifier != nil && len(result.Intents) > 0 {
		h.notifier.Dispatch(context.WithoutCancel(c.Request.Context()), result.Intents)
	}
	c.JSON(status, toRequestResponse(result.Request, principal, h.requests.Now()))
}

type createRequestBody struct {
	CompanyID      *uuid.UUID            `json:"companyId"`
	Title          string                `json:"title"`
	Description    string                `json:"description"`
	ServiceType    string                `json:"serviceType"`
	PracticeArea   string                `json:"practiceArea"`
	ServiceArea    service.LocationInput `json:"serviceArea"`
	ProcessNumber  string                `json:"processNumber"`
	ClientName     string                `json:"clientName"`
	ClientDocument string                `json:"clientDocument"`
	OpposingParty  string                `json:"opposingParty"`
	Urgency        string                `json:"urgency"`
	Deadline       string                `json:"deadline"`
	ScheduledDate  string                `json:"scheduledDate"`
	ScheduledTime  string                `json:"scheduledTime"`
	Notes          string                `json:"notes"`
}

func (h *Handler) createRequest(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}

	var body createRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.badRequest(c, err.Error())
		return
	}

	input := service.CreateInput{
		CompanyID:      body.CompanyID,
		Title:          body.Title,
		Description:    body.Description,
		ServiceType:    model.ServiceType(strings.ToLower(strings.TrimSpace(body.ServiceType))),
		PracticeArea:   body.PracticeArea,
		ServiceArea:    body.ServiceArea,
		ProcessNumber:  body.ProcessNumber,
		ClientName:     body.ClientName,
		ClientDocument: body.ClientDocument,
		OpposingParty:  body.OpposingParty,
		Urgency:        model.Urgency(strings.ToLower(strings.TrimSpace(body.Urgency))),
		ScheduledTime:  body.ScheduledTime,
		Notes:          body.Notes,
	}
	if strings.TrimSpace(body.Deadline) != "" {
		deadline, err := parseDate(body.Deadline)
		if err != nil {
			h.badRequest(c, "invalid deadline")
			return
		}
		input.Deadline = deadline
	}
	if strings.TrimSpace(body.ScheduledDate) != "" {
		scheduled, err := parseDate(body.ScheduledDate)
		if err != nil {
			h.badRequest(c, "invalid scheduledDate")
			return
		}
		input.ScheduledDate = &scheduled
	}

	result, err := h.requests.CreateServiceRequest(c.Request.Context(), principal, input)
	if err != nil {
		h.handleError(c, err)
		return
	}
	h.respond(c, principal, http.StatusCreated, result)
}

func (h *Handler) listRequests(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}

	var input service.ListInput
	if raw := c.Query("status"); raw != "" {
		status, ok := model.ParseStatus(raw)
		if !ok {
			h.badRequest(c, "invalid status")
			return
		}
		input.Status = &status
	}
	if raw := strings.TrimSpace(c.Query("serviceType")); raw != "" {
		serviceType := model.ServiceType(strings.ToLower(raw))
		input.ServiceType = &serviceType
	}
	for _, q := range []struct {
		name string
		dst  **time.Time
	}{{"deadlineFrom", &input.DeadlineFrom}, {"deadlineTo", &input.DeadlineTo}} {
		if raw := c.Query(q.name); raw != "" {
			parsed, err := parseDate(raw)
			if err != nil {
				h.badRequest(c, "invalid "+q.name)
				return
			}
			*q.dst = &parsed
		}
	}
	var err error
	if input.Limit, err = queryInt(c, "limit"); err != nil {
		h.badRequest(c, "invalid limit")
		return
	}
	if input.Offset, err = queryInt(c, "offset"); err != nil {
		h.badRequest(c, "invalid offset")
		return
	}

	result, err := h.requests.ListServiceRequests(c.Request.Context(), principal, input)
	if err != nil {
		h.handleError(c, err)
		return
	}

	now := h.requests.Now()
	items := make([]requestResponse, 0, len(result.Items))
	for i := range result.Items {
		items = append(items, toRequestResponse(&result.Items[i], principal, now))
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "total": result.Total})
}

func (h *Handler) getRequest(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}
	id, ok := h.requestID(c)
	if !ok {
		return
	}

	req, err := h.requests.GetServiceRequest(c.Request.Context(), principal, id)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, toRequestResponse(req, principal, h.requests.Now()))
}

type updateRequestBody struct {
	Title            *string                        `json:"title"`
	Description      *string                        `json:"description"`
	ServiceType      *model.ServiceType             `json:"serviceType"`
	PracticeArea     *string                        `json:"practiceArea"`
	ServiceArea      *service.LocationInput         `json:"serviceArea"`
	ProcessNumber    *string                        `json:"processNumber"`
	ClientName       *string                        `json:"clientName"`
	ClientDocument   *string                        `json:"clientDocument"`
	OpposingParty    *string                        `json:"opposingParty"`
	Urgency          *model.Urgency                 `json:"urgency"`
	Deadline         *string                        `json:"deadline"`
	ScheduledDate    *string                        `json:"scheduledDate"`
	ScheduledTime    *string                        `json:"scheduledTime"`
	Notes            *string                        `json:"notes"`
	Status           *string                        `json:"status"`
	CompletionReport *service.CompletionReportInput `json:"completionReport"`
	CompanyValue     *decimal.Decimal               `json:"companyValue"`
	Instructions     *string                        `json:"instructions"`
	Note             string                         `json:"note"`
}

// immutableFields can never be written through an update, whatever the role.
var immutableFields = map[string]struct{}{
	"id": {}, "companyId": {}, "correspondentId": {}, "correspondentValue": {}, "profitMargin": {},
	"statusHistory": {}, "completedAt": {}, "version": {}, "createdAt": {}, "updatedAt": {},
	"payment": {}, "rating": {}, "documents": {},
}

var updatableFields = map[string]struct{}{
	"title": {}, "description": {}, "serviceType": {}, "practiceArea": {}, "serviceArea": {},
	"processNumber": {}, "clientName": {}, "clientDocument": {}, "opposingParty": {}, "urgency": {},
	"deadline": {}, "scheduledDate": {}, "scheduledTime": {}, "notes": {}, "status": {},
	"completionReport": {}, "companyValue": {}, "instructions": {}, "note": {},
}

func decodeUpdate(raw []byte) (service.UpdateFields, string, error) {
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(raw, &keys); err != nil {
		return service.UpdateFields{}, "", fmt.Errorf("%w: body must be a JSON object", service.ErrValidation)
	}
	var immutable, unknown []string
	for key := range keys {
		if _, ok := immutableFields[key]; ok {
			immutable = append(immutable, key)
			continue
		}
		if _, ok := updatableFields[key]; !ok {
			unknown = append(unknown, key)
		}
	}
	if len(immutable) > 0 {
		sort.Strings(immutable)
		return service.UpdateFields{}, "", fmt.Errorf("%w: %s cannot be changed", service.ErrForbidden, strings.Join(immutable, ", "))
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return service.UpdateFields{}, "", fmt.Errorf("%w: unknown fields %s", service.ErrValidation, strings.Join(unknown, ", "))
	}

	var body updateRequestBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return service.UpdateFields{}, "", fmt.Errorf("%w: %v", service.ErrValidation, err)
	}

	fields := service.UpdateFields{
		Title:            body.Title,
		Description:      body.Description,
		ServiceType:      body.ServiceType,
		PracticeArea:     body.PracticeArea,
		ServiceArea:      body.ServiceArea,
		ProcessNumber:    body.ProcessNumber,
		ClientName:       body.ClientName,
		ClientDocument:   body.ClientDocument,
		OpposingParty:    body.OpposingParty,
		Urgency:          body.Urgency,
		ScheduledTime:    body.ScheduledTime,
		Notes:            body.Notes,
		CompletionReport: body.CompletionReport,
		CompanyValue:     body.CompanyValue,
		Instructions:     body.Instructions,
	}
	if body.Deadline != nil {
		deadline, err := parseDate(*body.Deadline)
		if err != nil {
			return service.UpdateFields{}, "", fmt.Errorf("%w: invalid deadline", service.ErrValidation)
		}
		fields.Deadline = &deadline
	}
	if body.ScheduledDate != nil {
		scheduled, err := parseDate(*body.ScheduledDate)
		if err != nil {
			return service.UpdateFields{}, "", fmt.Errorf("%w: invalid scheduledDate", service.ErrValidation)
		}
		fields.ScheduledDate = &scheduled
	}
	if body.Status != nil {
		status, ok := model.ParseStatus(*body.Status)
		if !ok {
			return service.UpdateFields{}, "", fmt.Errorf("%w: unknown status %q", service.ErrValidation, *body.Status)
		}
		fields.Status = &status
	}
	return fields, body.Note, nil
}

func (h *Handler) updateRequest(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}
	id, ok := h.requestID(c)
	if !ok {
		return
	}

	raw, err := c.GetRawData()
	if err != nil {
		h.badRequest(c, "unreadable body")
		return
	}
	fields, note, err := decodeUpdate(raw)
	if err != nil {
		h.handleError(c, err)
		return
	}

	result, err := h.requests.UpdateServiceRequest(c.Request.Context(), principal, id, fields, note)
	if err != nil {
		h.handleError(c, err)
		return
	}
	h.respond(c, principal, http.StatusOK, result)
}

type pricingBody struct {
	CompanyValue decimal.Decimal `json:"companyValue"`
	Note         string          `json:"note"`
}

func (h *Handler) setCompanyValue(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}
	id, ok := h.requestID(c)
	if !ok {
		return
	}
	var body pricingBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.badRequest(c, err.Error())
		return
	}

	result, err := h.requests.SetCompanyValue(c.Request.Context(), principal, id, body.CompanyValue, body.Note)
	if err != nil {
		h.handleError(c, err)
		return
	}
	h.respond(c, principal, http.StatusOK, result)
}

type assignmentBody struct {
	CorrespondentID    string          `json:"correspondentId" binding:"required"`
	CorrespondentValue decimal.Decimal `json:"correspondentValue"`
	Instructions       string          `json:"instructions"`
	Note               string          `json:"note"`
}

func (h *Handler) assignCorrespondent(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}
	id, ok := h.requestID(c)
	if !ok {
		return
	}
	var body assignmentBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.badRequest(c, err.Error())
		return
	}
	correspondentID, err := uuid.Parse(strings.TrimSpace(body.CorrespondentID))
	if err != nil {
		h.badRequest(c, "invalid correspondentId")
		return
	}

	result, err := h.requests.AssignCorrespondent(c.Request.Context(), principal, id, service.AssignInput{
		CorrespondentID:    correspondentID,
		CorrespondentValue: body.CorrespondentValue,
		Instructions:       body.Instructions,
		Note:               body.Note,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}
	h.respond(c, principal, http.StatusOK, result)
}

type statusBody struct {
	Status string `json:"status" binding:"required"`
	Note   string `json:"note"`
}

func (h *Handler) transitionStatus(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}
	id, ok := h.requestID(c)
	if !ok {
		return
	}
	var body statusBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.badRequest(c, err.Error())
		return
	}
	target, ok := model.ParseStatus(body.Status)
	if !ok {
		h.badRequest(c, "invalid status")
		return
	}

	result, err := h.requests.TransitionStatus(c.Request.Context(), principal, id, target, body.Note)
	if err != nil {
		h.handleError(c, err)
		return
	}
	h.respond(c, principal, http.StatusOK, result)
}

type noteBody struct {
	Note string `json:"note"`
}

func (h *Handler) cancelRequest(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}
	id, ok := h.requestID(c)
	if !ok {
		return
	}
	var body noteBody
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			h.badRequest(c, err.Error())
			return
		}
	}

	result, err := h.requests.CancelServiceRequest(c.Request.Context(), principal, id, body.Note)
	if err != nil {
		h.handleError(c, err)
		return
	}
	h.respond(c, principal, http.StatusOK, result)
}

func (h *Handler) approveReport(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}
	id, ok := h.requestID(c)
	if !ok {
		return
	}
	var body noteBody
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			h.badRequest(c, err.Error())
			return
		}
	}

	result, err := h.requests.ApproveCompletionReport(c.Request.Context(), principal, id, body.Note)
	if err != nil {
		h.handleError(c, err)
		return
	}
	h.respond(c, principal, http.StatusOK, result)
}

func (h *Handler) eligibleCorrespondents(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}
	id, ok := h.requestID(c)
	if !ok {
		return
	}

	correspondents, err := h.requests.FindEligibleCorrespondents(c.Request.Context(), principal, id)
	if err != nil {
		h.handleError(c, err)
		return
	}
	items := make([]correspondentResponse, 0, len(correspondents))
	for _, correspondent := range correspondents {
		items = append(items, toCorrespondentResponse(correspondent))
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

type paymentBody struct {
	Status string  `json:"status"`
	Method *string `json:"method"`
	Notes  *string `json:"notes"`
}

func (h *Handler) updatePayment(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}
	id, ok := h.requestID(c)
	if !ok {
		return
	}
	var body paymentBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.badRequest(c, err.Error())
		return
	}

	input := service.PaymentInput{
		Status: model.PaymentStatus(strings.ToLower(strings.TrimSpace(body.Status))),
		Notes:  body.Notes,
	}
	if body.Method != nil {
		method := model.PaymentMethod(strings.ToLower(strings.TrimSpace(*body.Method)))
		input.Method = &method
	}

	result, err := h.requests.UpdatePayment(c.Request.Context(), principal, id, input)
	if err != nil {
		h.handleError(c, err)
		return
	}
	h.respond(c, principal, http.StatusOK, result)
}

type ratingBody struct {
	Value   int    `json:"value"`
	Comment string `json:"comment"`
}

func (h *Handler) rateCorrespondent(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}
	id, ok := h.requestID(c)
	if !ok {
		return
	}
	var body ratingBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.badRequest(c, err.Error())
		return
	}

	result, err := h.requests.RateCorrespondent(c.Request.Context(), principal, id, body.Value, body.Comment)
	if err != nil {
		h.handleError(c, err)
		return
	}
	h.respond(c, principal, http.StatusOK, result)
}

type documentBody struct {
	Type string `json:"type"`
	Name string `json:"name" binding:"required"`
	Path string `json:"path" binding:"required"`
}

func (h *Handler) attachDocument(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}
	id, ok := h.requestID(c)
	if !ok {
		return
	}
	var body documentBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.badRequest(c, err.Error())
		return
	}

	result, err := h.requests.AttachDocument(c.Request.Context(), principal, id, service.DocumentInput{
		Type: model.DocumentType(strings.ToLower(strings.TrimSpace(body.Type))),
		Name: body.Name,
		Path: body.Path,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}
	h.respond(c, principal, http.StatusCreated, result)
}

func (h *Handler) completionCertificate(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}
	id, ok := h.requestID(c)
	if !ok {
		return
	}

	result, err := h.reports.CompletionCertificate(c.Request.Context(), principal, id)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.Header("Content-Disposition", "attachment; filename=\""+result.FileName+"\"")
	c.Data(http.StatusOK, "application/pdf", result.Content)
}

type exportFinancialBody struct {
	PeriodStart string `json:"periodStart" binding:"required"`
	PeriodEnd   string `json:"periodEnd" binding:"required"`
}

func (h *Handler) exportFinancialReport(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}

	var body exportFinancialBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.badRequest(c, err.Error())
		return
	}
	start, err := parseDate(body.PeriodStart)
	if err != nil {
		h.badRequest(c, "invalid periodStart")
		return
	}
	end, err := parseDate(body.PeriodEnd)
	if err != nil {
		h.badRequest(c, "invalid periodEnd")
		return
	}

	result, err := h.reports.ExportFinancialReport(c.Request.Context(), service.FinancialReportInput{
		PeriodStart: start,
		PeriodEnd:   end,
		Principal:   principal,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}

	const xlsx = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	c.Header("Content-Disposition", "attachment; filename=\""+result.FileName+"\"")
	c.Data(http.StatusOK, xlsx, result.Content)
}

func queryInt(c *gin.Context, name string) (int, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, service.ErrValidation
	}
	layouts := []string{
		time.RFC3339,
		"2006-01-02",
		"2006-01-02T15:04:05",
	}
	for _, layout := range layouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, service.ErrValidation
}
