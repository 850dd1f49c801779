// Package handlers implements the JSON API over the ledger and forecast
// engines.
package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/rumor-ml/commons.systems/fintrack/internal/domain"
	"github.com/rumor-ml/commons.systems/fintrack/internal/errs"
	"github.com/rumor-ml/commons.systems/fintrack/internal/forecast"
	"github.com/rumor-ml/commons.systems/fintrack/internal/ledger"
	"github.com/rumor-ml/commons.systems/fintrack/internal/middleware"
	"github.com/rumor-ml/commons.systems/fintrack/internal/ofximport"
)

// APIHandler handles API requests
type APIHandler struct {
	svc      *ledger.Service
	engine   *forecast.Engine
	importer *ofximport.Importer
}

// NewAPIHandler creates a new API handler
func NewAPIHandler(svc *ledger.Service, engine *forecast.Engine) *APIHandler {
	return &APIHandler{
		svc:      svc,
		engine:   engine,
		importer: ofximport.NewImporter(svc),
	}
}

// writeError maps the typed error taxonomy onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errs.IsValidation(err):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errs.IsNotFound(err):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errs.IsConflict(err):
		http.Error(w, err.Error(), http.StatusConflict)
	case errs.IsUnavailable(err):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	default:
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("ERROR: Failed to encode response: %v", err)
	}
}

func userID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return "", false
	}
	return id, true
}

// yearMonth reads year/month query parameters, defaulting to the current
// month when absent.
func yearMonth(r *http.Request) (int, int, error) {
	now := time.Now().UTC()
	year, month := now.Year(), int(now.Month())
	if v := r.URL.Query().Get("year"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, 0, errs.Validationf("invalid year %q", v)
		}
		year = n
	}
	if v := r.URL.Query().Get("month"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 12 {
			return 0, 0, errs.Validationf("invalid month %q", v)
		}
		month = n
	}
	return year, month, nil
}

type expenseRequest struct {
	Description      string    `json:"description"`
	Amount           float64   `json:"amount"`
	OccurredAt       time.Time `json:"occurred_at"`
	CategoryID       string    `json:"category_id"`
	CategoryName     string    `json:"category_name"`
	PaymentMethod    string    `json:"payment_method"`
	Notes            string    `json:"notes"`
	ReceiptURL       string    `json:"receipt_url"`
	Tags             []string  `json:"tags"`
	Recurring        bool      `json:"recurring"`
	Installment      bool      `json:"installment"`
	InstallmentCount int       `json:"installment_count"`
	InstallmentIndex int       `json:"installment_index"`
}

func (req *expenseRequest) toDomain() *domain.Expense {
	return &domain.Expense{
		Description:      req.Description,
		Amount:           req.Amount,
		OccurredAt:       req.OccurredAt,
		CategoryID:       req.CategoryID,
		CategoryName:     req.CategoryName,
		PaymentMethod:    req.PaymentMethod,
		Notes:            req.Notes,
		ReceiptURL:       req.ReceiptURL,
		Tags:             req.Tags,
		Recurring:        req.Recurring,
		Installment:      req.Installment,
		InstallmentCount: req.InstallmentCount,
		InstallmentIndex: req.InstallmentIndex,
	}
}

type expenseResponse struct {
	ID               string    `json:"id"`
	Description      string    `json:"description"`
	Amount           float64   `json:"amount"`
	OccurredAt       time.Time `json:"occurred_at"`
	CategoryID       string    `json:"category_id"`
	CategoryName     string    `json:"category_name"`
	PaymentMethod    string    `json:"payment_method,omitempty"`
	Notes            string    `json:"notes,omitempty"`
	ReceiptURL       string    `json:"receipt_url,omitempty"`
	Tags             []string  `json:"tags,omitempty"`
	Recurring        bool      `json:"recurring"`
	Installment      bool      `json:"installment"`
	InstallmentCount int       `json:"installment_count,omitempty"`
	InstallmentIndex int       `json:"installment_index,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func expenseView(e *domain.Expense) expenseResponse {
	return expenseResponse{
		ID:               e.ID,
		Description:      e.Description,
		Amount:           e.Amount,
		OccurredAt:       e.OccurredAt,
		CategoryID:       e.CategoryID,
		CategoryName:     e.CategoryName,
		PaymentMethod:    e.PaymentMethod,
		Notes:            e.Notes,
		ReceiptURL:       e.ReceiptURL,
		Tags:             e.Tags,
		Recurring:        e.Recurring,
		Installment:      e.Installment,
		InstallmentCount: e.InstallmentCount,
		InstallmentIndex: e.InstallmentIndex,
		CreatedAt:        e.CreatedAt,
		UpdatedAt:        e.UpdatedAt,
	}
}

// CreateExpense handles POST /api/expenses
func (h *APIHandler) CreateExpense(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	var req expenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	res, err := h.svc.Expenses.Create(r.Context(), uid, req.toDomain())
	if err != nil {
		writeError(w, err)
		return
	}

	resp := struct {
		Expense      expenseResponse      `json:"expense"`
		Notification *domain.Notification `json:"notification,omitempty"`
	}{Expense: expenseView(res.Expense), Notification: res.Notification}
	writeJSON(w, http.StatusCreated, resp)
}

// GetExpense handles GET /api/expenses/{id}
func (h *APIHandler) GetExpense(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	e, err := h.svc.Expenses.Get(r.Context(), uid, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, expenseView(e))
}

// UpdateExpense handles PUT /api/expenses/{id}
func (h *APIHandler) UpdateExpense(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	var req expenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	e := req.toDomain()
	e.ID = r.PathValue("id")
	updated, _, _, err := h.svc.Expenses.Update(r.Context(), uid, e)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, expenseView(updated))
}

// DeleteExpense handles DELETE /api/expenses/{id}
func (h *APIHandler) DeleteExpense(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	deleted, err := h.svc.Expenses.Delete(r.Context(), uid, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": deleted})
}

// SearchExpenses handles GET /api/expenses
func (h *APIHandler) SearchExpenses(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	f, err := searchFilters(r)
	if err != nil {
		writeError(w, err)
		return
	}
	expenses, err := h.svc.Expenses.Search(r.Context(), uid, f)
	if err != nil {
		writeError(w, err)
		return
	}
	views := make([]expenseResponse, 0, len(expenses))
	for _, e := range expenses {
		views = append(views, expenseView(e))
	}
	writeJSON(w, http.StatusOK, views)
}

func searchFilters(r *http.Request) (ledger.SearchFilters, error) {
	q := r.URL.Query()
	f := ledger.SearchFilters{
		CategoryID:    q.Get("category_id"),
		PaymentMethod: q.Get("payment_method"),
		Text:          q.Get("q"),
		Tags:          q["tag"],
	}
	if v := q.Get("start"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, errs.Validationf("invalid start date %q", v)
		}
		f.Start = &t
	}
	if v := q.Get("end"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, errs.Validationf("invalid end date %q", v)
		}
		f.End = &t
	}
	if v := q.Get("min_amount"); v != "" {
		n, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return f, errs.Validationf("invalid min_amount %q", v)
		}
		f.MinAmount = &n
	}
	if v := q.Get("max_amount"); v != "" {
		n, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return f, errs.Validationf("invalid max_amount %q", v)
		}
		f.MaxAmount = &n
	}
	if v := q.Get("recurring"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return f, errs.Validationf("invalid recurring flag %q", v)
		}
		f.Recurring = &b
	}
	if v := q.Get("installment"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return f, errs.Validationf("invalid installment flag %q", v)
		}
		f.Installment = &b
	}
	return f, nil
}

type incomeRequest struct {
	Kind        string    `json:"kind"`
	Amount      float64   `json:"amount"`
	OccurredAt  time.Time `json:"occurred_at"`
	Description string    `json:"description"`
	Recurring   bool      `json:"recurring"`
	Frequency   string    `json:"frequency"`
}

// RegisterIncome handles POST /api/incomes
func (h *APIHandler) RegisterIncome(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	var req incomeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	in, monthly, err := h.svc.Incomes.Register(r.Context(), uid, &domain.Income{
		Kind:        req.Kind,
		Amount:      req.Amount,
		OccurredAt:  req.OccurredAt,
		Description: req.Description,
		Recurring:   req.Recurring,
		Frequency:   req.Frequency,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	resp := struct {
		Income  *domain.Income         `json:"income"`
		Monthly *domain.MonthlySummary `json:"monthly_summary"`
	}{Income: in, Monthly: monthly}
	writeJSON(w, http.StatusCreated, resp)
}

// ListIncomes handles GET /api/incomes
func (h *APIHandler) ListIncomes(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	year, month, err := yearMonth(r)
	if err != nil {
		writeError(w, err)
		return
	}
	incomes, err := h.svc.Incomes.ListForMonth(r.Context(), uid, year, month)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, incomes)
}

// GetBalance handles GET /api/balance
func (h *APIHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	amount, err := h.svc.Balances.CurrentBalance(r.Context(), uid)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]float64{"balance": amount})
}

// GetBalanceHistory handles GET /api/balance/history
func (h *APIHandler) GetBalanceHistory(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	history, err := h.svc.Balances.History(r.Context(), uid)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

type movementRequest struct {
	Amount      float64 `json:"amount"`
	Movement    string  `json:"movement_type"`
	Description string  `json:"description"`
}

// RecordMovement handles POST /api/balance/movements
func (h *APIHandler) RecordMovement(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	var req movementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	snap, err := h.svc.Balances.RecordMovement(r.Context(), uid, req.Amount, domain.MovementType(req.Movement), "", req.Description)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

// GetMonthlySummary handles GET /api/summary
func (h *APIHandler) GetMonthlySummary(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	year, month, err := yearMonth(r)
	if err != nil {
		writeError(w, err)
		return
	}
	summary, err := h.svc.Monthly.Get(r.Context(), uid, year, month)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// RecomputeMonthlySummary handles POST /api/summary/recompute
func (h *APIHandler) RecomputeMonthlySummary(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	year, month, err := yearMonth(r)
	if err != nil {
		writeError(w, err)
		return
	}
	summary, err := h.svc.Monthly.Recompute(r.Context(), uid, year, month)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// SetSavingsTarget handles PUT /api/summary/savings-target
func (h *APIHandler) SetSavingsTarget(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	year, month, err := yearMonth(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req struct {
		Target float64 `json:"target"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	summary, err := h.svc.Monthly.SetSavingsTarget(r.Context(), uid, year, month, req.Target)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// ListBudgets handles GET /api/budgets
func (h *APIHandler) ListBudgets(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	year, month, err := yearMonth(r)
	if err != nil {
		writeError(w, err)
		return
	}
	budgets, err := h.svc.BudgetsForPeriod(r.Context(), uid, year, month)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, budgets)
}

type forecastRequest struct {
	Year      int  `json:"year"`
	Month     int  `json:"month"`
	Apply     bool `json:"apply"`
	Overwrite bool `json:"overwrite"`
}

// ForecastBudgets handles POST /api/budgets/forecast
func (h *APIHandler) ForecastBudgets(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	var req forecastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	budgets, err := h.engine.Forecast(r.Context(), uid, req.Year, req.Month)
	if err != nil {
		writeError(w, err)
		return
	}
	applied := []*domain.Budget{}
	if req.Apply {
		applied, err = h.engine.Apply(r.Context(), uid, budgets, req.Overwrite)
		if err != nil {
			writeError(w, err)
			return
		}
	}
	resp := struct {
		Forecast []*domain.Budget `json:"forecast"`
		Applied  []*domain.Budget `json:"applied"`
	}{Forecast: budgets, Applied: applied}
	writeJSON(w, http.StatusOK, resp)
}

// ListCategories handles GET /api/categories
func (h *APIHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	if _, ok := userID(w, r); !ok {
		return
	}
	categories, err := h.svc.Categories.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, categories)
}

// ListNotifications handles GET /api/notifications
func (h *APIHandler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	var (
		notes []*domain.Notification
		err   error
	)
	if r.URL.Query().Get("unread") == "true" {
		notes, err = h.svc.Notifications.Unread(r.Context(), uid)
	} else {
		notes, err = h.svc.Notifications.ListForUser(r.Context(), uid)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, notes)
}

// MarkNotificationRead handles POST /api/notifications/{id}/read
func (h *APIHandler) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	if err := h.svc.Notifications.MarkRead(r.Context(), uid, r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"read": true})
}

type subscriptionRequest struct {
	ServiceName  string    `json:"service_name"`
	Amount       float64   `json:"amount"`
	RenewsAt     time.Time `json:"renews_at"`
	Frequency    string    `json:"frequency"`
	CategoryID   string    `json:"category_id"`
	CategoryName string    `json:"category_name"`
}

// CreateSubscription handles POST /api/subscriptions
func (h *APIHandler) CreateSubscription(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	var req subscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	sub, first, err := h.svc.Subscriptions.CreateWithExpense(r.Context(), uid, &domain.Subscription{
		ServiceName:  req.ServiceName,
		Amount:       req.Amount,
		RenewsAt:     req.RenewsAt,
		Frequency:    req.Frequency,
		CategoryID:   req.CategoryID,
		CategoryName: req.CategoryName,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	resp := struct {
		Subscription *domain.Subscription `json:"subscription"`
		FirstExpense expenseResponse      `json:"first_expense"`
	}{Subscription: sub, FirstExpense: expenseView(first)}
	writeJSON(w, http.StatusCreated, resp)
}

// ListSubscriptions handles GET /api/subscriptions
func (h *APIHandler) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	subs, err := h.svc.Subscriptions.ActiveForUser(r.Context(), uid)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, subs)
}

// CancelSubscription handles POST /api/subscriptions/{id}/cancel
func (h *APIHandler) CancelSubscription(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	if err := h.svc.Subscriptions.Cancel(r.Context(), uid, r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"cancelled": true})
}

// ResetUserData handles DELETE /api/user/data
func (h *APIHandler) ResetUserData(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	report, err := h.svc.ResetUserData(r.Context(), uid)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// ImportOFX handles POST /api/import/ofx with the statement as the request
// body.
func (h *APIHandler) ImportOFX(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	report, err := h.importer.Import(r.Context(), uid, r.Body)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
