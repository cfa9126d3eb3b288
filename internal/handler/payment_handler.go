package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"premium-collections/internal/errors"
	"premium-collections/internal/service"
)

type PaymentHandler struct {
	paymentService *service.PaymentService
}

func NewPaymentHandler(paymentService *service.PaymentService) *PaymentHandler {
	return &PaymentHandler{
		paymentService: paymentService,
	}
}

type InitiatePaymentRequest struct {
	PolicyID    string            `json:"policy_id"`
	Amount      json.Number       `json:"amount"`
	Currency    string            `json:"currency"`
	Subscriber  string            `json:"subscriber"`
	Description string            `json:"description,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type InitiatePaymentResponse struct {
	TransactionID string `json:"transaction_id"`
	Status        string `json:"status"`
	Channel       string `json:"channel"`
}

func (h *PaymentHandler) Initiate(w http.ResponseWriter, r *http.Request) {
	var req InitiatePaymentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	// Amounts are integer minor units; "50.00" or 5e3 is rejected here.
	amount, err := req.Amount.Int64()
	if err != nil {
		writeError(w, errors.ErrInvalidAmount.WithDetails("amount must be an integer in minor units"))
		return
	}

	result, err := h.paymentService.Initiate(r.Context(), &service.InitiateRequest{
		PolicyID:    req.PolicyID,
		Amount:      amount,
		Currency:    req.Currency,
		Subscriber:  req.Subscriber,
		Description: req.Description,
		Metadata:    req.Metadata,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, InitiatePaymentResponse{
		TransactionID: result.Transaction.ID.String(),
		Status:        string(result.Transaction.Status),
		Channel:       string(result.Channel),
	})
}

func (h *PaymentHandler) GetPayment(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	transactionID := vars["transaction_id"]

	tx, err := h.paymentService.GetTransaction(r.Context(), transactionID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, tx)
}
