// Copyright 2025 Certen Protocol
//
// Transaction Submission API Handlers
// Exposes the orchestrator's ExecuteTransaction contract over HTTP.

package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/certen/objectvalidator/pkg/orchestrator"
	"github.com/certen/objectvalidator/pkg/types"
)

// TransactionHandlers provides HTTP handlers for transaction submission.
type TransactionHandlers struct {
	orch   *orchestrator.Orchestrator
	logger *log.Logger
}

// NewTransactionHandlers creates new transaction submission handlers.
func NewTransactionHandlers(orch *orchestrator.Orchestrator, logger *log.Logger) *TransactionHandlers {
	if logger == nil {
		logger = log.New(log.Writer(), "[TransactionAPI] ", log.LstdFlags)
	}
	return &TransactionHandlers{orch: orch, logger: logger}
}

// executeTransactionRequest is the wire shape for POST /api/v1/transactions.
type executeTransactionRequest struct {
	Transaction           *types.Transaction `json:"transaction"`
	WaitForLocalExecution bool                `json:"wait_for_local_execution"`
}

// HandleExecuteTransaction handles POST /api/v1/transactions: submit a
// transaction and block until it reaches finality (quorum certification or,
// if requested, local execution too).
func (h *TransactionHandlers) HandleExecuteTransaction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Only POST is allowed")
		return
	}

	var req executeTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Transaction == nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid transaction payload")
		return
	}

	resp, err := h.orch.ExecuteTransaction(r.Context(), req.Transaction, req.WaitForLocalExecution)
	if err != nil {
		h.writeOrchestratorError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, resp)
}

func (h *TransactionHandlers) writeOrchestratorError(w http.ResponseWriter, err error) {
	var oe *orchestrator.Error
	if errors.As(err, &oe) {
		switch oe.Category {
		case orchestrator.CategoryInvalidSignature:
			h.writeError(w, http.StatusUnauthorized, "INVALID_SIGNATURE", oe.Error())
		case orchestrator.CategoryInvalidInput:
			h.writeError(w, http.StatusBadRequest, "INVALID_INPUT", oe.Error())
		case orchestrator.CategoryTimeout:
			h.writeError(w, http.StatusGatewayTimeout, "TIMEOUT", oe.Error())
		default:
			h.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", oe.Error())
		}
		return
	}
	if errors.Is(err, orchestrator.ErrTimeoutBeforeFinality) {
		h.writeError(w, http.StatusGatewayTimeout, "TIMEOUT", err.Error())
		return
	}
	h.logger.Printf("unclassified orchestrator error: %v", err)
	h.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
}

func (h *TransactionHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Printf("error encoding response: %v", err)
	}
}

func (h *TransactionHandlers) writeError(w http.ResponseWriter, status int, code, message string) {
	h.writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}
