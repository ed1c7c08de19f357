package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mariogargano/week-chain-TM-sub006/internal/domain"
)

// ReservationCanceller is the minimal interface needed to cancel a stay.
type ReservationCanceller interface {
	CancelReservation(ctx context.Context, reservationID, userID string) (domain.ConfirmedReservation, error)
}

// HandleCancelReservation returns an HTTP handler for cancelling a confirmed
// stay. The consumed allowance goes back to the certificate.
func HandleCancelReservation(svc ReservationCanceller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid := userID(r)
		if uid == "" {
			writeError(w, http.StatusUnauthorized, codeUserRequired, "X-User-ID header is required")
			return
		}

		cancelled, err := svc.CancelReservation(r.Context(), chi.URLParam(r, "id"), uid)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, reservationResponse{
			ID:           cancelled.ID,
			RequestID:    cancelled.RequestID,
			SupplyUnitID: cancelled.SupplyUnitID,
			CheckIn:      cancelled.Range.Start.Format(dateLayout),
			CheckOut:     cancelled.Range.End.Format(dateLayout),
			PartySize:    cancelled.PartySize,
			Status:       string(cancelled.Status),
			ConfirmedAt:  cancelled.ConfirmedAt,
		})
	}
}
