package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mariogargano/week-chain-TM-sub006/internal/app"
	"github.com/mariogargano/week-chain-TM-sub006/internal/domain"
)

// OfferMaker is the minimal interface needed to propose supply.
type OfferMaker interface {
	MakeOffer(ctx context.Context, in app.OfferInput) (domain.ReservationRequest, error)
}

// HandleMakeOffer returns an HTTP handler for the operator offer endpoint.
// A supply conflict comes back as 409 with the conflicting stays listed so
// the operator can pick different supply.
func HandleMakeOffer(svc OfferMaker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req makeOfferRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}
		rng, err := req.dateRange()
		if err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidDateRange, err.Error())
			return
		}

		updated, err := svc.MakeOffer(r.Context(), app.OfferInput{
			RequestID:    chi.URLParam(r, "id"),
			SupplyUnitID: req.SupplyUnitID,
			Range:        rng,
			ExpiryHours:  req.ExpiryHours,
			OperatorNote: req.OperatorNote,
		})
		if err != nil {
			var conflict *app.SupplyConflictError
			if errors.As(err, &conflict) {
				writeJSON(w, http.StatusConflict, supplyConflictResponse{
					Error:     "supply unit is already booked for the requested dates",
					Code:      codeSupplyConflict,
					Conflicts: toConflicts(conflict.Conflicts),
				})
				return
			}
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toRequestResponse(updated))
	}
}

type makeOfferRequest struct {
	SupplyUnitID string `json:"supply_unit_id"`
	Start        string `json:"start"`
	End          string `json:"end"`
	ExpiryHours  int    `json:"expiry_hours"`
	OperatorNote string `json:"operator_note"`
}

func (r makeOfferRequest) dateRange() (domain.DateRange, error) {
	return submitRequest{DesiredStart: r.Start, DesiredEnd: r.End}.dateRange()
}

type conflictEntry struct {
	ReservationID string `json:"reservation_id"`
	CheckIn       string `json:"check_in"`
	CheckOut      string `json:"check_out"`
}

type supplyConflictResponse struct {
	Error     string          `json:"error"`
	Code      string          `json:"code"`
	Conflicts []conflictEntry `json:"conflicts"`
}

func toConflicts(reservations []domain.ConfirmedReservation) []conflictEntry {
	out := make([]conflictEntry, 0, len(reservations))
	for _, res := range reservations {
		out = append(out, conflictEntry{
			ReservationID: res.ID,
			CheckIn:       res.Range.Start.Format(dateLayout),
			CheckOut:      res.Range.End.Format(dateLayout),
		})
	}
	return out
}
