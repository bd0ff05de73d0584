package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/simonkvalheim/fjord-ledger/internal/ledger"
	"github.com/simonkvalheim/fjord-ledger/internal/model"
)

// AccountHandler handles HTTP requests for accounts and their journal
type AccountHandler struct {
	ledger *ledger.Service
	log    logrus.FieldLogger
}

// NewAccountHandler creates a new AccountHandler
func NewAccountHandler(svc *ledger.Service, log logrus.FieldLogger) *AccountHandler {
	return &AccountHandler{ledger: svc, log: log}
}

// RegisterRoutes sets up the account routes on the given router
func (h *AccountHandler) RegisterRoutes(r chi.Router) {
	r.Route("/accounts", func(r chi.Router) {
		r.Post("/", h.Open)
		r.Get("/", h.List)
		r.Get("/{id}", h.GetByID)
		r.Get("/{id}/balance", h.GetBalance)
		r.Get("/{id}/statement", h.Statement)
		r.Post("/{id}/deposits", h.Deposit)
		r.Post("/{id}/withdrawals", h.Withdraw)
		r.Post("/{id}/fees", h.ChargeFee)
		r.Post("/{id}/interest", h.PostInterest)
	})
	r.Get("/transactions/{id}", h.GetTransaction)
	r.Post("/transactions/{id}/reverse", h.Reverse)
}

// Open handles POST /accounts.
// customer_id defaults to the caller.
func (h *AccountHandler) Open(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	var req model.OpenAccountRequest
	if !decode(w, r, &req) {
		return
	}
	if req.CustomerID == uuid.Nil {
		if id, err := uuid.Parse(actor.ID); err == nil {
			req.CustomerID = id
		}
	}

	account, err := h.ledger.OpenAccount(r.Context(), actor, req)
	if err != nil {
		writeLedgerError(w, h.log, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, account)
}

// List handles GET /accounts?customer_id=
func (h *AccountHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	customerID, ok := customerScope(w, r, actor)
	if !ok {
		return
	}

	accounts, err := h.ledger.ListAccounts(r.Context(), actor, customerID)
	if err != nil {
		writeLedgerError(w, h.log, r, err)
		return
	}
	// Return empty array instead of null if no accounts
	if accounts == nil {
		accounts = []model.Account{}
	}
	writeJSON(w, http.StatusOK, accounts)
}

// GetByID handles GET /accounts/{id}
func (h *AccountHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.accountRequest(w, r)
	if !ok {
		return
	}

	account, err := h.ledger.GetAccount(r.Context(), actor, id)
	if err != nil {
		writeLedgerError(w, h.log, r, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

// GetBalance handles GET /accounts/{id}/balance
func (h *AccountHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.accountRequest(w, r)
	if !ok {
		return
	}

	balance, err := h.ledger.Balance(r.Context(), actor, id)
	if err != nil {
		writeLedgerError(w, h.log, r, err)
		return
	}
	writeJSON(w, http.StatusOK, balance)
}

// Statement handles GET /accounts/{id}/statement?limit=
// Entries are newest first; a missing or out-of-range limit falls back to the default.
func (h *AccountHandler) Statement(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.accountRequest(w, r)
	if !ok {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = parsed
	}

	if _, err := h.ledger.GetAccount(r.Context(), actor, id); err != nil {
		writeLedgerError(w, h.log, r, err)
		return
	}
	entries, err := h.ledger.Statement(r.Context(), id, limit)
	if err != nil {
		writeLedgerError(w, h.log, r, err)
		return
	}
	if entries == nil {
		entries = []model.Transaction{}
	}
	writeJSON(w, http.StatusOK, entries)
}

type postFunc func(r *http.Request, id uuid.UUID, amount decimal.Decimal, description string) (*model.Transaction, error)

// Deposit handles POST /accounts/{id}/deposits
func (h *AccountHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	h.movement(w, r, false, func(r *http.Request, id uuid.UUID, amount decimal.Decimal, description string) (*model.Transaction, error) {
		return h.ledger.Deposit(r.Context(), id, amount, description)
	})
}

// Withdraw handles POST /accounts/{id}/withdrawals
func (h *AccountHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	h.movement(w, r, false, func(r *http.Request, id uuid.UUID, amount decimal.Decimal, description string) (*model.Transaction, error) {
		return h.ledger.Withdraw(r.Context(), id, amount, description)
	})
}

// ChargeFee handles POST /accounts/{id}/fees (staff only)
func (h *AccountHandler) ChargeFee(w http.ResponseWriter, r *http.Request) {
	h.movement(w, r, true, func(r *http.Request, id uuid.UUID, amount decimal.Decimal, description string) (*model.Transaction, error) {
		return h.ledger.ChargeFee(r.Context(), id, amount, description)
	})
}

// PostInterest handles POST /accounts/{id}/interest (staff only)
func (h *AccountHandler) PostInterest(w http.ResponseWriter, r *http.Request) {
	h.movement(w, r, true, func(r *http.Request, id uuid.UUID, amount decimal.Decimal, description string) (*model.Transaction, error) {
		return h.ledger.PostInterest(r.Context(), id, amount, description)
	})
}

// movement runs a single-leg posting after checking the caller may act on the account
func (h *AccountHandler) movement(w http.ResponseWriter, r *http.Request, staffOnly bool, post postFunc) {
	actor, id, ok := h.accountRequest(w, r)
	if !ok {
		return
	}
	if staffOnly && !actor.Elevated {
		writeLedgerError(w, h.log, r, model.ErrNotPermitted)
		return
	}

	var req model.MovementRequest
	if !decode(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		writeLedgerError(w, h.log, r, err)
		return
	}
	amount, _ := model.ParseAmount(req.Amount)

	if _, err := h.ledger.GetAccount(r.Context(), actor, id); err != nil {
		writeLedgerError(w, h.log, r, err)
		return
	}

	txn, err := post(r, id, amount, req.Description)
	if err != nil {
		writeLedgerError(w, h.log, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, txn)
}

// GetTransaction handles GET /transactions/{id}
func (h *AccountHandler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	txn, err := h.ledger.Transaction(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		writeLedgerError(w, h.log, r, err)
		return
	}
	writeJSON(w, http.StatusOK, txn)
}

type reverseRequest struct {
	Description string `json:"description,omitempty"`
}

// Reverse handles POST /transactions/{id}/reverse (staff only)
func (h *AccountHandler) Reverse(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	var req reverseRequest
	if r.ContentLength != 0 && !decode(w, r, &req) {
		return
	}

	reversals, err := h.ledger.Reverse(r.Context(), actor, chi.URLParam(r, "id"), req.Description)
	if err != nil {
		writeLedgerError(w, h.log, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, reversals)
}

func (h *AccountHandler) accountRequest(w http.ResponseWriter, r *http.Request) (model.Actor, uuid.UUID, bool) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return model.Actor{}, uuid.Nil, false
	}
	id, ok := uuidParam(w, r, "id", "account")
	if !ok {
		return model.Actor{}, uuid.Nil, false
	}
	return actor, id, true
}
