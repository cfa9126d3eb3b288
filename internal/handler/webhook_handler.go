package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"premium-collections/internal/domain"
	"premium-collections/internal/errors"
	"premium-collections/internal/service"
)

// WebhookHandler receives aggregator deliveries. Authenticity is checked
// upstream of this service.
type WebhookHandler struct {
	paymentService *service.PaymentService
}

func NewWebhookHandler(paymentService *service.PaymentService) *WebhookHandler {
	return &WebhookHandler{
		paymentService: paymentService,
	}
}

type DeliveryRequest struct {
	EventID              string      `json:"event_id"`
	TransactionReference string      `json:"transaction_reference"`
	Outcome              string      `json:"outcome"`
	Amount               json.Number `json:"amount,omitempty"`
	Currency             string      `json:"currency,omitempty"`
	Timestamp            *time.Time  `json:"timestamp,omitempty"`
	SettlementReference  string      `json:"settlement_reference,omitempty"`
}

type DeliveryResponse struct {
	EventID string `json:"event_id"`
	Result  string `json:"result"`
}

func (h *WebhookHandler) HandleDelivery(w http.ResponseWriter, r *http.Request) {
	var req DeliveryRequest
	if err := decodeCallback(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	var amount int64
	if req.Amount != "" {
		n, err := req.Amount.Int64()
		if err != nil {
			writeError(w, errors.NewAppError(errors.InvalidInput, "amount must be an integer in minor units"))
			return
		}
		amount = n
	}

	delivery := &service.Delivery{
		EventID:             req.EventID,
		TransactionRef:      req.TransactionReference,
		Outcome:             domain.Outcome(req.Outcome),
		Amount:              amount,
		Currency:            req.Currency,
		SettlementReference: req.SettlementReference,
	}
	if req.Timestamp != nil {
		delivery.Timestamp = *req.Timestamp
	}

	result, err := h.paymentService.HandleDelivery(r.Context(), delivery)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, DeliveryResponse{
		EventID: req.EventID,
		Result:  string(result),
	})
}
