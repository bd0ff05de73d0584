package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/simonkvalheim/fjord-ledger/internal/ledger"
	"github.com/simonkvalheim/fjord-ledger/internal/model"
	"github.com/simonkvalheim/fjord-ledger/internal/processor"
	"github.com/simonkvalheim/fjord-ledger/internal/queue"
)

// TransferHandler handles HTTP requests for transfers
type TransferHandler struct {
	ledger    *ledger.Service
	processor *processor.TransferProcessor
	publisher *queue.Publisher // Optional: if set, uses async processing
	log       logrus.FieldLogger
}

// NewTransferHandler creates a new TransferHandler.
// If publisher is nil, transfers are executed synchronously;
// otherwise they are queued for the worker.
func NewTransferHandler(svc *ledger.Service, proc *processor.TransferProcessor, publisher *queue.Publisher, log logrus.FieldLogger) *TransferHandler {
	return &TransferHandler{
		ledger:    svc,
		processor: proc,
		publisher: publisher,
		log:       log,
	}
}

// RegisterRoutes sets up the transfer routes on the given router
func (h *TransferHandler) RegisterRoutes(r chi.Router) {
	r.Post("/transfers", h.CreateTransfer)
	r.Get("/transfers/requests/{id}", h.GetRequest)
}

// CreateTransfer handles POST /transfers.
// The caller must own the source account. Sync mode answers 201 with both legs;
// async mode answers 202 with the queued request.
func (h *TransferHandler) CreateTransfer(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	var req model.TransferRequest
	if !decode(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		writeLedgerError(w, h.log, r, err)
		return
	}
	amount, _ := model.ParseAmount(req.Amount)

	if _, err := h.ledger.GetAccount(r.Context(), actor, req.FromAccountID); err != nil {
		writeLedgerError(w, h.log, r, err)
		return
	}

	if h.publisher != nil {
		status, err := h.publisher.PublishTransfer(r.Context(), queue.TransferCommand{
			FromAccountID: req.FromAccountID,
			ToAccountID:   req.ToAccountID,
			Amount:        amount,
			Description:   req.Description,
			RequestedBy:   actor.ID,
		})
		if err != nil {
			h.log.WithError(err).Error("failed to queue transfer")
			writeError(w, http.StatusServiceUnavailable, "Transfer queue unavailable")
			return
		}
		writeJSON(w, http.StatusAccepted, status)
		return
	}

	result, err := h.processor.Transfer(r.Context(), req.FromAccountID, req.ToAccountID, amount, req.Description)
	if err != nil {
		writeLedgerError(w, h.log, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// GetRequest handles GET /transfers/requests/{id}
func (h *TransferHandler) GetRequest(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	if h.publisher == nil {
		writeLedgerError(w, h.log, r, model.ErrTransferRequestNotFound)
		return
	}

	status, err := h.publisher.Status(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeLedgerError(w, h.log, r, err)
		return
	}
	if !actor.Elevated && status.RequestedBy != actor.ID {
		writeLedgerError(w, h.log, r, model.ErrNotPermitted)
		return
	}
	writeJSON(w, http.StatusOK, status)
}
