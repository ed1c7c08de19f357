package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mariogargano/week-chain-TM-sub006/internal/app"
	"github.com/mariogargano/week-chain-TM-sub006/internal/domain"
)

// WebhookIngester is the minimal interface needed by the webhook endpoints.
type WebhookIngester interface {
	Ingest(ctx context.Context, in app.IngestInput) (app.IngestResult, error)
	RegisterPaymentPlan(ctx context.Context, group domain.PaymentGroup, amountsMXN []int64) error
}

// HandleWebhook ingests one payment-provider delivery. Replays of the same
// provider event id return 200 with duplicate=true so providers stop
// retrying; processing failures return 500 so they retry.
func HandleWebhook(svc WebhookIngester) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req webhookRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}
		if req.EventID == "" {
			writeError(w, http.StatusBadRequest, codeMissingRequiredField, "event_id is required")
			return
		}

		result, err := svc.Ingest(r.Context(), app.IngestInput{
			Source:          chi.URLParam(r, "source"),
			ProviderEventID: req.EventID,
			EventType:       req.EventType,
			Payload:         req.Data,
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}

		resp := webhookResponse{
			ID:        result.Record.ID,
			Status:    string(result.Record.Status),
			Duplicate: result.Duplicate,
		}
		if result.Issued != nil {
			resp.CertificateID = result.Issued.ID
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// HandleRegisterPaymentPlan records an installment group ahead of its
// deliveries.
func HandleRegisterPaymentPlan(svc WebhookIngester) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req paymentPlanRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}
		if len(req.AmountsMXN) == 0 {
			writeError(w, http.StatusBadRequest, codeMissingRequiredField, "amounts_mxn is required")
			return
		}

		err := svc.RegisterPaymentPlan(r.Context(), domain.PaymentGroup{
			ID:           req.GroupID,
			UserID:       req.UserID,
			Tier:         domain.Tier(req.Tier),
			MaxPartySize: req.MaxPartySize,
			OrderRef:     req.OrderRef,
		}, req.AmountsMXN)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}
}

type webhookRequest struct {
	EventID   string         `json:"event_id"`
	EventType string         `json:"event_type"`
	Data      map[string]any `json:"data"`
}

type webhookResponse struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	Duplicate     bool   `json:"duplicate,omitempty"`
	CertificateID string `json:"certificate_id,omitempty"`
}

type paymentPlanRequest struct {
	GroupID      string  `json:"group_id"`
	UserID       string  `json:"user_id"`
	Tier         string  `json:"tier"`
	MaxPartySize int     `json:"max_party_size"`
	OrderRef     string  `json:"order_ref"`
	AmountsMXN   []int64 `json:"amounts_mxn"`
}
