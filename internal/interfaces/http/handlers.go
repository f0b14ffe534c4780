package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/contaflow/expense-engine/internal/application/service"
	"github.com/contaflow/expense-engine/internal/domain/expense"
	"github.com/contaflow/expense-engine/internal/matching"
	"github.com/contaflow/expense-engine/internal/ppd"
	"github.com/contaflow/expense-engine/internal/repository"
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	expenseService *service.ExpenseService
	logger         Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(expenseService *service.ExpenseService, logger Logger) *Handlers {
	return &Handlers{
		expenseService: expenseService,
		logger:         logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

// ExpenseResponse represents an expense in API responses
type ExpenseResponse struct {
	ID                   string             `json:"id"`
	Description          string             `json:"description"`
	Total                string             `json:"total"`
	Currency             string             `json:"currency"`
	Category             string             `json:"category,omitempty"`
	Payment              string             `json:"payment"`
	InvoiceExpected      bool               `json:"invoice_expected"`
	InvoiceStatus        string             `json:"invoice_status"`
	BankStatus           string             `json:"bank_status"`
	State                string             `json:"state"`
	PPD                  bool               `json:"ppd"`
	Movements            []MovementResponse `json:"movements,omitempty"`
	ReconciledAt         *string            `json:"reconciled_at,omitempty"`
	ReconciliationSource string             `json:"reconciliation_source,omitempty"`
	Version              int64              `json:"version"`
	CreatedAt            string             `json:"created_at"`
	UpdatedAt            string             `json:"updated_at"`
}

// MovementResponse represents a linked bank movement in API responses
type MovementResponse struct {
	ID          string `json:"id"`
	Date        string `json:"date,omitempty"`
	Description string `json:"description,omitempty"`
	Amount      string `json:"amount"`
	GroupID     string `json:"group_id,omitempty"`
}

// CaptureRequest represents the body of POST /api/expenses
type CaptureRequest struct {
	Description     string `json:"description" binding:"required"`
	Total           string `json:"total" binding:"required"`
	Currency        string `json:"currency"`
	Category        string `json:"category"`
	InvoiceExpected *bool  `json:"invoice_expected"`
	Payment         string `json:"payment"`
	PPD             bool   `json:"ppd"`
}

// InvoiceRequest represents the body of POST /api/expenses/:id/invoice
type InvoiceRequest struct {
	Status string           `json:"status"`
	PPD    bool             `json:"ppd"`
	Taxes  *TaxScheduleBody `json:"taxes"`
}

// TaxScheduleBody carries the invoice tax breakdown
type TaxScheduleBody struct {
	Subtotal string        `json:"subtotal"`
	Lines    []TaxLineBody `json:"lines"`
}

// TaxLineBody is one tax line of the invoice
type TaxLineBody struct {
	Type   string `json:"type"`
	Kind   string `json:"kind"`
	Rate   string `json:"rate"`
	Amount string `json:"amount" binding:"required"`
}

// ComplementRequest represents the body of POST /api/expenses/:id/payments
type ComplementRequest struct {
	Date      string `json:"date"`
	Reference string `json:"reference"`
	Amount    string `json:"amount" binding:"required"`
}

// MovementBody is a bank movement in match/link requests
type MovementBody struct {
	ID          string `json:"id" binding:"required"`
	Date        string `json:"date"`
	Description string `json:"description"`
	Amount      string `json:"amount" binding:"required"`
	GroupID     string `json:"group_id"`
}

// SuggestionBody is one ranked bank-match suggestion
type SuggestionBody struct {
	Confidence     float64        `json:"confidence"`
	Reasons        []string       `json:"reasons"`
	Movements      []MovementBody `json:"movements" binding:"required"`
	CombinedAmount string         `json:"combined_amount"`
	SplitPayment   bool           `json:"split_payment"`
	GroupID        string         `json:"group_id"`
}

// SuggestionsRequest represents the body of POST /api/expenses/:id/suggestions
type SuggestionsRequest struct {
	Suggestions []SuggestionBody `json:"suggestions"`
}

// LinkRequest represents the body of POST /api/expenses/:id/link
type LinkRequest struct {
	Movements []MovementBody `json:"movements"`
}

// ListExpensesRequest represents query parameters for listing expenses
type ListExpensesRequest struct {
	Limit  int `form:"limit"`
	Offset int `form:"offset"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   "1.0.0",
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    response,
	})
}

// CaptureExpense handles POST /api/expenses
func (h *Handlers) CaptureExpense(c *gin.Context) {
	var req CaptureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body", err)
		return
	}

	total, err := decimal.NewFromString(req.Total)
	if err != nil {
		h.badRequest(c, "invalid total amount", err)
		return
	}

	invoiceExpected := true
	if req.InvoiceExpected != nil {
		invoiceExpected = *req.InvoiceExpected
	}

	e, err := h.expenseService.Capture(c.Request.Context(), service.CaptureInput{
		Description:     req.Description,
		Total:           total,
		Currency:        req.Currency,
		Category:        req.Category,
		InvoiceExpected: invoiceExpected,
		Payment:         expense.ParsePaymentSource(req.Payment),
		PPD:             req.PPD,
	})
	if err != nil {
		h.logger.Error("Failed to capture expense", "error", err)
		c.JSON(http.StatusBadRequest, Response{
			Success: false,
			Error:   err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, Response{
		Success: true,
		Data:    toExpenseResponse(e),
	})
}

// ListExpenses handles GET /api/expenses
func (h *Handlers) ListExpenses(c *gin.Context) {
	var req ListExpensesRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.badRequest(c, "invalid query parameters", err)
		return
	}

	if req.Limit <= 0 || req.Limit > 100 {
		req.Limit = 20
	}
	if req.Offset < 0 {
		req.Offset = 0
	}

	expenses, err := h.expenseService.List(c.Request.Context(), req.Limit, req.Offset)
	if err != nil {
		h.logger.Error("Failed to list expenses", "error", err)
		c.JSON(http.StatusInternalServerError, Response{
			Success: false,
			Error:   "failed to retrieve expenses",
		})
		return
	}

	responses := make([]ExpenseResponse, 0, len(expenses))
	for _, e := range expenses {
		responses = append(responses, toExpenseResponse(e))
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    responses,
	})
}

// GetExpense handles GET /api/expenses/:id
func (h *Handlers) GetExpense(c *gin.Context) {
	id, ok := h.expenseID(c)
	if !ok {
		return
	}

	e, err := h.expenseService.Get(c.Request.Context(), id)
	if err != nil {
		h.notFoundOrError(c, id, err, "Failed to get expense")
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    toExpenseResponse(e),
	})
}

// RegisterInvoice handles POST /api/expenses/:id/invoice
func (h *Handlers) RegisterInvoice(c *gin.Context) {
	id, ok := h.expenseID(c)
	if !ok {
		return
	}

	var req InvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body", err)
		return
	}

	taxes, err := toTaxSchedule(req.Taxes)
	if err != nil {
		h.badRequest(c, "invalid tax schedule", err)
		return
	}

	e, err := h.expenseService.RegisterInvoice(c.Request.Context(), id, service.InvoiceInput{
		RawStatus: req.Status,
		Taxes:     taxes,
		PPD:       req.PPD,
	})
	if err != nil {
		h.notFoundOrError(c, id, err, "Failed to register invoice")
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    toExpenseResponse(e),
	})
}

// CloseWithoutInvoice handles POST /api/expenses/:id/close
func (h *Handlers) CloseWithoutInvoice(c *gin.Context) {
	id, ok := h.expenseID(c)
	if !ok {
		return
	}

	e, err := h.expenseService.CloseWithoutInvoice(c.Request.Context(), id)
	if err != nil {
		h.notFoundOrError(c, id, err, "Failed to close expense")
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    toExpenseResponse(e),
	})
}

// GetJournal handles GET /api/expenses/:id/journal
func (h *Handlers) GetJournal(c *gin.Context) {
	id, ok := h.expenseID(c)
	if !ok {
		return
	}

	entry, err := h.expenseService.Journal(c.Request.Context(), id)
	if err != nil {
		h.notFoundOrError(c, id, err, "Failed to derive journal entry")
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    entry,
	})
}

// GetPaymentProgress handles GET /api/expenses/:id/payments
func (h *Handlers) GetPaymentProgress(c *gin.Context) {
	id, ok := h.expenseID(c)
	if !ok {
		return
	}

	progress, err := h.expenseService.PaymentProgress(c.Request.Context(), id)
	if err != nil {
		h.notFoundOrError(c, id, err, "Failed to compute payment progress")
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    progress,
	})
}

// AddComplement handles POST /api/expenses/:id/payments
func (h *Handlers) AddComplement(c *gin.Context) {
	id, ok := h.expenseID(c)
	if !ok {
		return
	}

	var req ComplementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body", err)
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		h.badRequest(c, "invalid payment amount", err)
		return
	}

	complement := ppd.Complement{
		Reference: req.Reference,
		Amount:    amount,
	}
	if req.Date != "" {
		date, err := time.Parse(time.RFC3339, req.Date)
		if err != nil {
			h.badRequest(c, "invalid payment date", err)
			return
		}
		complement.Date = date
	}

	progress, err := h.expenseService.AddComplement(c.Request.Context(), id, complement)
	if err != nil {
		if errors.Is(err, service.ErrNotDeferred) {
			c.JSON(http.StatusConflict, Response{
				Success: false,
				Error:   err.Error(),
			})
			return
		}
		h.notFoundOrError(c, id, err, "Failed to add payment complement")
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    progress,
	})
}

// ConsumeSuggestions handles POST /api/expenses/:id/suggestions
func (h *Handlers) ConsumeSuggestions(c *gin.Context) {
	id, ok := h.expenseID(c)
	if !ok {
		return
	}

	var req SuggestionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body", err)
		return
	}

	ranked := make([]matching.Suggestion, 0, len(req.Suggestions))
	for _, body := range req.Suggestions {
		sug, err := toSuggestion(body)
		if err != nil {
			h.badRequest(c, "invalid suggestion", err)
			return
		}
		ranked = append(ranked, sug)
	}

	consumption, err := h.expenseService.ConsumeSuggestions(c.Request.Context(), id, ranked)
	if err != nil {
		h.notFoundOrError(c, id, err, "Failed to consume suggestions")
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    consumption,
	})
}

// AcceptMatch handles POST /api/expenses/:id/match/accept
func (h *Handlers) AcceptMatch(c *gin.Context) {
	id, ok := h.expenseID(c)
	if !ok {
		return
	}

	var body SuggestionBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.badRequest(c, "invalid request body", err)
		return
	}

	sug, err := toSuggestion(body)
	if err != nil {
		h.badRequest(c, "invalid suggestion", err)
		return
	}

	e, err := h.expenseService.AcceptMatch(c.Request.Context(), id, sug)
	if err != nil {
		h.matchError(c, id, err, "Failed to accept match")
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    toExpenseResponse(e),
	})
}

// RejectMatch handles POST /api/expenses/:id/match/reject
func (h *Handlers) RejectMatch(c *gin.Context) {
	id, ok := h.expenseID(c)
	if !ok {
		return
	}

	var body SuggestionBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.badRequest(c, "invalid request body", err)
		return
	}

	sug, err := toSuggestion(body)
	if err != nil {
		h.badRequest(c, "invalid suggestion", err)
		return
	}

	if err := h.expenseService.RejectMatch(c.Request.Context(), id, sug); err != nil {
		h.notFoundOrError(c, id, err, "Failed to reject match")
		return
	}

	c.JSON(http.StatusOK, Response{Success: true})
}

// LinkMovements handles POST /api/expenses/:id/link
func (h *Handlers) LinkMovements(c *gin.Context) {
	id, ok := h.expenseID(c)
	if !ok {
		return
	}

	var req LinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body", err)
		return
	}

	movements := make([]expense.BankMovement, 0, len(req.Movements))
	for _, body := range req.Movements {
		m, err := toMovement(body)
		if err != nil {
			h.badRequest(c, "invalid movement", err)
			return
		}
		movements = append(movements, m)
	}

	e, err := h.expenseService.LinkManual(c.Request.Context(), id, movements)
	if err != nil {
		h.matchError(c, id, err, "Failed to link movements")
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    toExpenseResponse(e),
	})
}

// UnlinkMovements handles POST /api/expenses/:id/unlink
func (h *Handlers) UnlinkMovements(c *gin.Context) {
	id, ok := h.expenseID(c)
	if !ok {
		return
	}

	e, err := h.expenseService.Unlink(c.Request.Context(), id)
	if err != nil {
		h.notFoundOrError(c, id, err, "Failed to unlink movements")
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    toExpenseResponse(e),
	})
}

func (h *Handlers) expenseID(c *gin.Context) (uuid.UUID, bool) {
	idStr := c.Param("id")
	id, err := uuid.Parse(idStr)
	if err != nil {
		h.logger.Error("Invalid expense ID", "id", idStr, "error", err)
		c.JSON(http.StatusBadRequest, Response{
			Success: false,
			Error:   "invalid expense ID",
		})
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handlers) badRequest(c *gin.Context, msg string, err error) {
	h.logger.Error(msg, "error", err)
	c.JSON(http.StatusBadRequest, Response{
		Success: false,
		Error:   msg,
	})
}

func (h *Handlers) notFoundOrError(c *gin.Context, id uuid.UUID, err error, logMsg string) {
	if errors.Is(err, service.ErrNotFound) {
		c.JSON(http.StatusNotFound, Response{
			Success: false,
			Error:   "expense not found",
		})
		return
	}
	h.logger.Error(logMsg, "id", id.String(), "error", err)
	c.JSON(http.StatusInternalServerError, Response{
		Success: false,
		Error:   err.Error(),
	})
}

func (h *Handlers) matchError(c *gin.Context, id uuid.UUID, err error, logMsg string) {
	switch {
	case errors.Is(err, service.ErrNotMatchable), errors.Is(err, service.ErrMovementClaimed):
		c.JSON(http.StatusConflict, Response{
			Success: false,
			Error:   err.Error(),
		})
	case errors.Is(err, repository.ErrVersionConflict):
		c.JSON(http.StatusConflict, Response{
			Success: false,
			Error:   "expense was modified concurrently, retry",
		})
	default:
		h.notFoundOrError(c, id, err, logMsg)
	}
}

func toExpenseResponse(e *expense.Expense) ExpenseResponse {
	resp := ExpenseResponse{
		ID:                   e.ID.String(),
		Description:          e.Description,
		Total:                e.Total.String(),
		Currency:             e.Currency,
		Category:             e.Category,
		Payment:              string(e.Payment),
		InvoiceExpected:      e.InvoiceExpected,
		InvoiceStatus:        string(e.InvoiceStatus()),
		BankStatus:           string(e.BankStatus()),
		State:                e.State().String(),
		PPD:                  e.PPD,
		ReconciliationSource: e.ReconciliationSource,
		Version:              e.Version,
		CreatedAt:            e.CreatedAt.Format(time.RFC3339),
		UpdatedAt:            e.UpdatedAt.Format(time.RFC3339),
	}

	for _, m := range e.Movements {
		mr := MovementResponse{
			ID:          m.ID,
			Description: m.Description,
			Amount:      m.Amount.String(),
			GroupID:     m.GroupID,
		}
		if !m.Date.IsZero() {
			mr.Date = m.Date.Format(time.RFC3339)
		}
		resp.Movements = append(resp.Movements, mr)
	}

	if e.ReconciledAt != nil {
		reconciledAt := e.ReconciledAt.Format(time.RFC3339)
		resp.ReconciledAt = &reconciledAt
	}

	return resp
}

func toTaxSchedule(body *TaxScheduleBody) (*expense.TaxSchedule, error) {
	if body == nil {
		return nil, nil
	}

	schedule := &expense.TaxSchedule{}
	if body.Subtotal != "" {
		subtotal, err := decimal.NewFromString(body.Subtotal)
		if err != nil {
			return nil, err
		}
		schedule.Subtotal = &subtotal
	}

	for _, line := range body.Lines {
		amount, err := decimal.NewFromString(line.Amount)
		if err != nil {
			return nil, err
		}
		tl := expense.TaxLine{
			Type:   expense.ParseTaxType(line.Type),
			Kind:   expense.ParseTaxKind(line.Kind),
			Amount: amount,
		}
		if line.Rate != "" {
			rate, err := decimal.NewFromString(line.Rate)
			if err != nil {
				return nil, err
			}
			tl.Rate = &rate
		}
		schedule.Lines = append(schedule.Lines, tl)
	}
	return schedule, nil
}

func toMovement(body MovementBody) (expense.BankMovement, error) {
	amount, err := decimal.NewFromString(body.Amount)
	if err != nil {
		return expense.BankMovement{}, err
	}
	m := expense.BankMovement{
		ID:          body.ID,
		Description: body.Description,
		Amount:      amount,
		GroupID:     body.GroupID,
	}
	if body.Date != "" {
		date, err := time.Parse(time.RFC3339, body.Date)
		if err != nil {
			return expense.BankMovement{}, err
		}
		m.Date = date
	}
	return m, nil
}

func toSuggestion(body SuggestionBody) (matching.Suggestion, error) {
	sug := matching.Suggestion{
		Confidence:   body.Confidence,
		Reasons:      body.Reasons,
		SplitPayment: body.SplitPayment,
		GroupID:      body.GroupID,
	}
	for _, mb := range body.Movements {
		m, err := toMovement(mb)
		if err != nil {
			return matching.Suggestion{}, err
		}
		sug.Movements = append(sug.Movements, m)
	}

	// A scorer-provided combined amount takes precedence over the sum of
	// the member movements.
	if body.CombinedAmount != "" {
		combined, err := decimal.NewFromString(body.CombinedAmount)
		if err != nil {
			return matching.Suggestion{}, err
		}
		sug.CombinedAmount = combined
	} else {
		sug.CombinedAmount = sug.Total()
	}
	return sug, nil
}
