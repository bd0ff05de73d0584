package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/simonkvalheim/fjord-ledger/internal/ledger"
	"github.com/simonkvalheim/fjord-ledger/internal/loan"
	"github.com/simonkvalheim/fjord-ledger/internal/model"
)

// LoanHandler handles HTTP requests for loans
type LoanHandler struct {
	engine *loan.Engine
	ledger *ledger.Service
	log    logrus.FieldLogger
}

// NewLoanHandler creates a new LoanHandler
func NewLoanHandler(engine *loan.Engine, svc *ledger.Service, log logrus.FieldLogger) *LoanHandler {
	return &LoanHandler{engine: engine, ledger: svc, log: log}
}

// RegisterRoutes sets up the loan routes on the given router
func (h *LoanHandler) RegisterRoutes(r chi.Router) {
	r.Route("/loans", func(r chi.Router) {
		r.Post("/", h.Apply)
		r.Get("/", h.List)
		r.Get("/{id}", h.GetByID)
		r.Post("/{id}/approve", h.Approve)
		r.Post("/{id}/reject", h.Reject)
		r.Post("/{id}/disburse", h.Disburse)
		r.Post("/{id}/default", h.MarkDefaulted)
		r.Post("/{id}/payments", h.ApplyPayment)
		r.Get("/{id}/payments", h.Payments)
		r.Get("/{id}/schedule", h.Schedule)
	})
}

// Apply handles POST /loans
func (h *LoanHandler) Apply(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	var app model.LoanApplication
	if !decode(w, r, &app) {
		return
	}

	created, err := h.engine.Apply(r.Context(), actor, app)
	if err != nil {
		writeLedgerError(w, h.log, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// List handles GET /loans?customer_id=
func (h *LoanHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	customerID, ok := customerScope(w, r, actor)
	if !ok {
		return
	}

	loans, err := h.engine.List(r.Context(), actor, customerID)
	if err != nil {
		writeLedgerError(w, h.log, r, err)
		return
	}
	if loans == nil {
		loans = []model.Loan{}
	}
	writeJSON(w, http.StatusOK, loans)
}

// GetByID handles GET /loans/{id}
func (h *LoanHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	got, err := h.engine.Get(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		writeLedgerError(w, h.log, r, err)
		return
	}
	writeJSON(w, http.StatusOK, got)
}

// Approve handles POST /loans/{id}/approve (staff only)
func (h *LoanHandler) Approve(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	approved, err := h.engine.Approve(r.Context(), chi.URLParam(r, "id"), actor)
	if err != nil {
		writeLedgerError(w, h.log, r, err)
		return
	}
	writeJSON(w, http.StatusOK, approved)
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

// Reject handles POST /loans/{id}/reject (staff only)
func (h *LoanHandler) Reject(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	var req rejectRequest
	if r.ContentLength != 0 && !decode(w, r, &req) {
		return
	}

	rejected, err := h.engine.Reject(r.Context(), chi.URLParam(r, "id"), actor, req.Reason)
	if err != nil {
		writeLedgerError(w, h.log, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rejected)
}

type disburseResponse struct {
	Loan        *model.Loan        `json:"loan"`
	Transaction *model.Transaction `json:"transaction"`
}

// Disburse handles POST /loans/{id}/disburse (staff only)
func (h *LoanHandler) Disburse(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	disbursed, txn, err := h.engine.Disburse(r.Context(), chi.URLParam(r, "id"), actor)
	if err != nil {
		writeLedgerError(w, h.log, r, err)
		return
	}
	writeJSON(w, http.StatusOK, disburseResponse{Loan: disbursed, Transaction: txn})
}

// MarkDefaulted handles POST /loans/{id}/default (staff only)
func (h *LoanHandler) MarkDefaulted(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	defaulted, err := h.engine.MarkDefaulted(r.Context(), chi.URLParam(r, "id"), actor)
	if err != nil {
		writeLedgerError(w, h.log, r, err)
		return
	}
	writeJSON(w, http.StatusOK, defaulted)
}

// ApplyPayment handles POST /loans/{id}/payments.
// The caller must see the loan and, when paying from an account, own that account.
func (h *LoanHandler) ApplyPayment(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	loanID := chi.URLParam(r, "id")

	var req model.PaymentRequest
	if !decode(w, r, &req) {
		return
	}
	amount, err := model.ParseAmount(req.Amount)
	if err != nil {
		writeLedgerError(w, h.log, r, err)
		return
	}

	if _, err := h.engine.Get(r.Context(), actor, loanID); err != nil {
		writeLedgerError(w, h.log, r, err)
		return
	}
	if req.SourceAccountID != nil {
		if _, err := h.ledger.GetAccount(r.Context(), actor, *req.SourceAccountID); err != nil {
			writeLedgerError(w, h.log, r, err)
			return
		}
	}

	payment, err := h.engine.ApplyPayment(r.Context(), loanID, amount, req.SourceAccountID)
	if err != nil {
		writeLedgerError(w, h.log, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, payment)
}

// Payments handles GET /loans/{id}/payments
func (h *LoanHandler) Payments(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	payments, err := h.engine.Payments(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		writeLedgerError(w, h.log, r, err)
		return
	}
	if payments == nil {
		payments = []model.LoanPayment{}
	}
	writeJSON(w, http.StatusOK, payments)
}

// Schedule handles GET /loans/{id}/schedule
func (h *LoanHandler) Schedule(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	rows, err := h.engine.RepaymentSchedule(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		writeLedgerError(w, h.log, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}
