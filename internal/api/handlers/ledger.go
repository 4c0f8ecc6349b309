package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/mediauqi/money-tracker/internal/api/middleware"
	"github.com/mediauqi/money-tracker/internal/domain"
	"github.com/mediauqi/money-tracker/internal/ledger"
)

// LedgerHandler handles the transaction and balance endpoints.
type LedgerHandler struct {
	svc *ledger.Service
	log zerolog.Logger
}

// NewLedgerHandler creates a new ledger handler.
func NewLedgerHandler(svc *ledger.Service, log zerolog.Logger) *LedgerHandler {
	return &LedgerHandler{svc: svc, log: log}
}

type addTransactionRequest struct {
	Type        string        `json:"type"`
	Amount      domain.Amount `json:"amount"`
	Description string        `json:"description"`
	Category    string        `json:"category"`
	Date        string        `json:"date"`
}

// AddTransaction handles POST /transaction/:userId
func (h *LedgerHandler) AddTransaction(w http.ResponseWriter, r *http.Request, userID string) {
	var req addTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Valid type and amount are required")
		return
	}

	var occurredAt time.Time
	if req.Date != "" {
		t, err := time.Parse(time.RFC3339, req.Date)
		if err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid date: expected RFC 3339")
			return
		}
		occurredAt = t
	}

	txn, bal, err := h.svc.AddTransaction(r.Context(), userID, domain.Kind(req.Type), req.Amount, req.Description, req.Category, occurredAt)
	if err != nil {
		h.writeError(w, err, "Failed to add transaction")
		return
	}

	middleware.WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"success":     true,
		"transaction": txn,
		"balance":     bal,
	})
}

// ListTransactions handles GET /transactions/:userId
func (h *LedgerHandler) ListTransactions(w http.ResponseWriter, r *http.Request, userID string) {
	txns, err := h.svc.Transactions(r.Context(), userID)
	if err != nil {
		h.writeError(w, err, "Failed to list transactions")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, txns)
}

// DeleteTransaction handles DELETE /transaction/:transactionId
func (h *LedgerHandler) DeleteTransaction(w http.ResponseWriter, r *http.Request, transactionID string) {
	bal, err := h.svc.DeleteTransaction(r.Context(), transactionID)
	if err != nil {
		h.writeError(w, err, "Failed to delete transaction")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"balance": bal,
	})
}

// GetBalance handles GET /balance/:userId
func (h *LedgerHandler) GetBalance(w http.ResponseWriter, r *http.Request, userID string) {
	bal, err := h.svc.Balance(r.Context(), userID)
	if err != nil {
		h.writeError(w, err, "Failed to get balance")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, bal)
}

func (h *LedgerHandler) writeError(w http.ResponseWriter, err error, msg string) {
	writeDomainError(w, h.log, err, msg)
}

// writeDomainError maps the ledger error taxonomy onto HTTP status codes.
func writeDomainError(w http.ResponseWriter, log zerolog.Logger, err error, msg string) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		middleware.WriteError(w, http.StatusNotFound, err.Error())
	default:
		log.Error().Err(err).Msg(msg)
		middleware.WriteError(w, http.StatusInternalServerError, msg)
	}
}
