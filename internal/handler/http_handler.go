// Package handler exposes the intake and management API over HTTP.
package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/luminapay/invoice-lifecycle/internal/errors"
	"github.com/luminapay/invoice-lifecycle/internal/observability"
	"github.com/luminapay/invoice-lifecycle/internal/service"
)

// HTTPHandler handles HTTP requests.
type HTTPHandler struct {
	choreographer *service.Choreographer
	reviews       *service.ReviewService
	budgets       *service.BudgetService
	log           zerolog.Logger
}

// NewHTTPHandler creates a new HTTP handler.
func NewHTTPHandler(
	choreographer *service.Choreographer,
	reviews *service.ReviewService,
	budgets *service.BudgetService,
	log zerolog.Logger,
) *HTTPHandler {
	return &HTTPHandler{
		choreographer: choreographer,
		reviews:       reviews,
		budgets:       budgets,
		log:           log.With().Str("component", "http").Logger(),
	}
}

// Router assembles the chi router with middleware. jwtSecret may be empty,
// which disables authentication; metrics may be nil.
func (h *HTTPHandler) Router(jwtSecret string, metrics *observability.Metrics) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestLogger(h.log))
	if metrics != nil {
		r.Use(metrics.MetricsMiddleware)
	}

	r.Get("/healthz", h.Health)
	r.Method(http.MethodGet, "/metrics", observability.Handler())

	r.Route("/api/v1", func(api chi.Router) {
		if jwtSecret != "" {
			api.Use(JWTAuth(jwtSecret))
		}

		api.Route("/invoices", func(r chi.Router) {
			r.Post("/", h.SubmitInvoice)
			r.Get("/{departmentID}", h.ListInvoices)
			r.Get("/{departmentID}/{invoiceID}", h.GetInvoice)
			r.Post("/{departmentID}/{invoiceID}/retry", h.RetryInvoice)
			r.Post("/{departmentID}/{invoiceID}/review", h.ReviewInvoice)
		})

		api.Route("/budgets", func(r chi.Router) {
			r.Post("/", h.CreateBudget)
			r.Get("/{fiscalYear}", h.SearchBudgets)
			r.Get("/{fiscalYear}/consumption", h.BudgetConsumption)
		})
	})

	return r
}

// Health reports liveness.
func (h *HTTPHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type submitInvoiceBody struct {
	DepartmentID  string  `json:"department_id"`
	InvoiceNumber string  `json:"invoice_number,omitempty"`
	VendorName    string  `json:"vendor_name,omitempty"`
	Amount        float64 `json:"amount,omitempty"`
	Currency      string  `json:"currency,omitempty"`
	Description   string  `json:"description,omitempty"`
	ProjectID     string  `json:"project_id,omitempty"`
	Category      string  `json:"category,omitempty"`
	BudgetYear    string  `json:"budget_year,omitempty"`
	PaymentTerms  string  `json:"payment_terms,omitempty"`
	RawFileURL    string  `json:"raw_file_url,omitempty"`
	FileName      string  `json:"file_name,omitempty"`
	FileType      string  `json:"file_type,omitempty"`
	FileSize      int64   `json:"file_size,omitempty"`
}

// SubmitInvoice accepts a new invoice and starts the workflow.
func (h *HTTPHandler) SubmitInvoice(w http.ResponseWriter, r *http.Request) {
	var body submitInvoiceBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, errors.InvalidInput("body", "malformed JSON"))
		return
	}

	inv, err := h.choreographer.HandleIntake(r.Context(), service.SubmitInvoiceRequest{
		DepartmentID:  body.DepartmentID,
		InvoiceNumber: body.InvoiceNumber,
		VendorName:    body.VendorName,
		Amount:        body.Amount,
		Currency:      body.Currency,
		Description:   body.Description,
		ProjectID:     body.ProjectID,
		Category:      body.Category,
		BudgetYear:    body.BudgetYear,
		PaymentTerms:  body.PaymentTerms,
		RawFileURL:    body.RawFileURL,
		FileName:      body.FileName,
		FileType:      body.FileType,
		FileSize:      body.FileSize,
		SubmittedBy:   subjectFrom(r),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, inv)
}

// GetInvoice returns one invoice.
func (h *HTTPHandler) GetInvoice(w http.ResponseWriter, r *http.Request) {
	inv, err := h.choreographer.GetInvoice(r.Context(),
		chi.URLParam(r, "departmentID"), chi.URLParam(r, "invoiceID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

// ListInvoices returns a department's invoices.
func (h *HTTPHandler) ListInvoices(w http.ResponseWriter, r *http.Request) {
	invs, err := h.choreographer.ListInvoices(r.Context(), chi.URLParam(r, "departmentID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, invs)
}

// RetryInvoice re-kicks a FAILED invoice.
func (h *HTTPHandler) RetryInvoice(w http.ResponseWriter, r *http.Request) {
	requestedBy := subjectFrom(r)
	if requestedBy == "" {
		requestedBy = "operator"
	}
	inv, err := h.choreographer.RetryFailed(r.Context(),
		chi.URLParam(r, "departmentID"), chi.URLParam(r, "invoiceID"), requestedBy)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

type reviewBody struct {
	Action string `json:"action"`
	Notes  string `json:"notes,omitempty"`
}

// ReviewInvoice applies a human decision to a MANUAL_REVIEW invoice.
func (h *HTTPHandler) ReviewInvoice(w http.ResponseWriter, r *http.Request) {
	var body reviewBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, errors.InvalidInput("body", "malformed JSON"))
		return
	}

	reviewer := subjectFrom(r)
	if reviewer == "" {
		reviewer = "anonymous"
	}

	inv, err := h.reviews.Resolve(r.Context(), service.ReviewRequest{
		DepartmentID: chi.URLParam(r, "departmentID"),
		InvoiceID:    chi.URLParam(r, "invoiceID"),
		Action:       body.Action,
		Reviewer:     reviewer,
		Notes:        body.Notes,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

type createBudgetBody struct {
	FiscalYear           string  `json:"fiscal_year"`
	DepartmentID         string  `json:"department_id"`
	ProjectID            string  `json:"project_id"`
	Category             string  `json:"category"`
	AllocatedAmount      float64 `json:"allocated_amount"`
	AutoApproveUnder     float64 `json:"auto_approve_under,omitempty"`
	ApprovalRequiredOver float64 `json:"approval_required_over,omitempty"`
	Approver             string  `json:"approver,omitempty"`
	ApproverEmail        string  `json:"approver_email,omitempty"`
}

// CreateBudget allocates a budget line.
func (h *HTTPHandler) CreateBudget(w http.ResponseWriter, r *http.Request) {
	var body createBudgetBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, errors.InvalidInput("body", "malformed JSON"))
		return
	}

	b, err := h.budgets.CreateBudget(r.Context(), service.CreateBudgetRequest{
		FiscalYear:           body.FiscalYear,
		DepartmentID:         body.DepartmentID,
		ProjectID:            body.ProjectID,
		Category:             body.Category,
		AllocatedAmount:      body.AllocatedAmount,
		AutoApproveUnder:     body.AutoApproveUnder,
		ApprovalRequiredOver: body.ApprovalRequiredOver,
		Approver:             body.Approver,
		ApproverEmail:        body.ApproverEmail,
		CreatedBy:            subjectFrom(r),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

// SearchBudgets lists budget lines under a key prefix given as the
// "prefix" query parameter, e.g. ?prefix=IT or ?prefix=IT,PROJ-3001.
func (h *HTTPHandler) SearchBudgets(w http.ResponseWriter, r *http.Request) {
	var parts []string
	if prefix := r.URL.Query().Get("prefix"); prefix != "" {
		parts = strings.Split(prefix, ",")
	}

	budgets, err := h.budgets.SearchBudgets(r.Context(), chi.URLParam(r, "fiscalYear"), parts...)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, budgets)
}

// BudgetConsumption returns a department's consumption report.
func (h *HTTPHandler) BudgetConsumption(w http.ResponseWriter, r *http.Request) {
	departmentID := r.URL.Query().Get("department_id")
	if departmentID == "" {
		writeError(w, errors.InvalidInput("department_id", "query parameter is required"))
		return
	}

	report, err := h.budgets.Consumption(r.Context(), chi.URLParam(r, "fiscalYear"), departmentID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeError maps domain error codes onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	code := errors.CodeOf(err)
	status := http.StatusInternalServerError
	switch code {
	case errors.ErrCodeNotFound:
		status = http.StatusNotFound
	case errors.ErrCodeInvalidInput:
		status = http.StatusBadRequest
	case errors.ErrCodeInvalidState, errors.ErrCodeConflict:
		status = http.StatusConflict
	case errors.ErrCodeUnavailable:
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, errorResponse{Code: string(code), Message: err.Error()})
}
