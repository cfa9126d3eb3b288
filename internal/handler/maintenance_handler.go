package handler

import (
	"net/http"

	"premium-collections/internal/service"
)

type MaintenanceHandler struct {
	paymentService *service.PaymentService
}

func NewMaintenanceHandler(paymentService *service.PaymentService) *MaintenanceHandler {
	return &MaintenanceHandler{
		paymentService: paymentService,
	}
}

// Sweep purges expired idempotency keys and credentials. It is meant to be
// called by an external scheduler.
func (h *MaintenanceHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	result, err := h.paymentService.Sweep(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}
