package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mariogargano/week-chain-TM-sub006/internal/app"
)

// OfferResponder is the minimal interface needed to accept or decline.
type OfferResponder interface {
	Respond(ctx context.Context, in app.RespondInput) (app.RespondResult, error)
}

// HandleRespond returns an HTTP handler for the buyer's accept/decline. An
// accept that lost the supply race returns 409 with revert_to_requested set:
// the request is back in the queue, not failed.
func HandleRespond(svc OfferResponder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid := userID(r)
		if uid == "" {
			writeError(w, http.StatusUnauthorized, codeUserRequired, "X-User-ID header is required")
			return
		}

		var req respondRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}
		if req.Action != "accept" && req.Action != "decline" {
			writeError(w, http.StatusBadRequest, codeMissingRequiredField, `action must be "accept" or "decline"`)
			return
		}

		result, err := svc.Respond(r.Context(), app.RespondInput{
			RequestID: chi.URLParam(r, "id"),
			UserID:    uid,
			Accept:    req.Action == "accept",
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}

		resp := respondResponse{
			Request:           toRequestResponse(result.Request),
			RevertToRequested: result.RevertToRequested,
			Replayed:          result.Replayed,
		}
		status := http.StatusOK
		if result.RevertToRequested {
			status = http.StatusConflict
		}
		if result.Reservation != nil {
			res := result.Reservation
			resp.Reservation = &reservationResponse{
				ID:           res.ID,
				RequestID:    res.RequestID,
				SupplyUnitID: res.SupplyUnitID,
				CheckIn:      res.Range.Start.Format(dateLayout),
				CheckOut:     res.Range.End.Format(dateLayout),
				PartySize:    res.PartySize,
				Status:       string(res.Status),
				ConfirmedAt:  res.ConfirmedAt,
			}
		}
		writeJSON(w, status, resp)
	}
}

type respondRequest struct {
	Action string `json:"action"`
}

type reservationResponse struct {
	ID           string    `json:"id"`
	RequestID    string    `json:"request_id"`
	SupplyUnitID string    `json:"supply_unit_id"`
	CheckIn      string    `json:"check_in"`
	CheckOut     string    `json:"check_out"`
	PartySize    int       `json:"party_size"`
	Status       string    `json:"status"`
	ConfirmedAt  time.Time `json:"confirmed_at"`
}

type respondResponse struct {
	Request           requestResponse      `json:"request"`
	Reservation       *reservationResponse `json:"reservation,omitempty"`
	RevertToRequested bool                 `json:"revert_to_requested,omitempty"`
	Replayed          bool                 `json:"replayed,omitempty"`
}
