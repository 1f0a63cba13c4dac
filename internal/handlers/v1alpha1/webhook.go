package v1alpha1

import (
	"io"
	"net/http"

	"github.com/shovel-house/shovel-api/internal/handlers/v1alpha1/mappers"
	"github.com/shovel-house/shovel-api/internal/ledger"
	"github.com/shovel-house/shovel-api/pkg/log"
)

const signatureHeader = "Stripe-Signature"

func (h *ServiceHandler) PaymentsWebhook(w http.ResponseWriter, r *http.Request) {
	h.webhook(w, r, ledger.CategoryPayments)
}

func (h *ServiceHandler) ConnectWebhook(w http.ResponseWriter, r *http.Request) {
	h.webhook(w, r, ledger.CategoryConnect)
}

// webhook hands the raw body to the reconciler; the signature covers the
// exact bytes so the payload is never decoded here. A 400 tells the sender
// to give up, a 500 to redeliver.
func (h *ServiceHandler) webhook(w http.ResponseWriter, r *http.Request, category ledger.EventCategory) {
	ctx := r.Context()
	logger := log.NewDebugLogger("webhook_handler").WithContext(ctx).Operation("receive_webhook").WithString("category", string(category)).Build()

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		logger.Error(err).Log()
		respondError(w, r, err)
		return
	}

	result, err := h.webhookSrv.Handle(ctx, category, payload, r.Header.Get(signatureHeader))
	if err != nil {
		logger.Error(err).Log()
		respondError(w, r, err)
		return
	}

	logger.Success().WithString("result", string(result)).Log()
	respond(w, r, http.StatusOK, mappers.WebhookAck{Received: true, Result: string(result)})
}
