package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mariogargano/week-chain-TM-sub006/internal/domain"
)

const (
	codeNotFound             = "not_found"
	codeInvalidRequestBody   = "invalid_request_body"
	codeMissingRequiredField = "missing_required_field"
	codeInvalidID            = "invalid_id"
	codeInvalidDateRange     = "invalid_date_range"
	codeInvalidPartySize     = "invalid_party_size"
	codeInvalidTier          = "invalid_tier"
	codeUserRequired         = "user_required"
	codeConsentRequired      = "consent_required"
	codeNoAllowanceRemaining = "no_allowance_remaining"
	codePartySizeExceeded    = "party_size_exceeded"
	codeCertificateInactive  = "certificate_inactive"
	codeInvalidRequestState  = "invalid_request_state"
	codeSupplyUnitInactive   = "supply_unit_inactive"
	codeSupplyConflict       = "supply_conflict"
	codeOfferExpired         = "offer_expired"
	codeAlreadyCancelled     = "already_cancelled"
	codeTierSoldOut          = "tier_sold_out"
	codeDuplicateDelivery    = "duplicate_delivery"
	codeInternalError        = "internal_error"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	payload, err := json.Marshal(errorResponse{
		Error: msg,
		Code:  code,
	})
	if err != nil {
		_, _ = w.Write([]byte(`{"error":"internal error","code":"internal_error"}`))
		return
	}
	_, _ = w.Write(payload)
}

// writeServiceError maps domain sentinels onto stable machine codes. Handlers
// intercept richer errors (conflict payloads, revert signals) before falling
// through to this.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidID):
		writeError(w, http.StatusBadRequest, codeInvalidID, err.Error())
	case errors.Is(err, domain.ErrInvalidDateRange):
		writeError(w, http.StatusBadRequest, codeInvalidDateRange, err.Error())
	case errors.Is(err, domain.ErrInvalidPartySize):
		writeError(w, http.StatusBadRequest, codeInvalidPartySize, err.Error())
	case errors.Is(err, domain.ErrInvalidTier):
		writeError(w, http.StatusBadRequest, codeInvalidTier, err.Error())
	case errors.Is(err, domain.ErrConsentRequired):
		writeError(w, http.StatusForbidden, codeConsentRequired, err.Error())
	case errors.Is(err, domain.ErrNoAllowanceRemaining):
		writeError(w, http.StatusConflict, codeNoAllowanceRemaining, err.Error())
	case errors.Is(err, domain.ErrPartySizeExceeded):
		writeError(w, http.StatusConflict, codePartySizeExceeded, err.Error())
	case errors.Is(err, domain.ErrCertificateInactive):
		writeError(w, http.StatusConflict, codeCertificateInactive, err.Error())
	case errors.Is(err, domain.ErrCertificateNotFound),
		errors.Is(err, domain.ErrRequestNotFound),
		errors.Is(err, domain.ErrSupplyUnitNotFound),
		errors.Is(err, domain.ErrReservationNotFound),
		errors.Is(err, domain.ErrSnapshotNotFound),
		errors.Is(err, domain.ErrWebhookNotFound):
		writeError(w, http.StatusNotFound, codeNotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidRequestState):
		writeError(w, http.StatusConflict, codeInvalidRequestState, err.Error())
	case errors.Is(err, domain.ErrSupplyUnitInactive):
		writeError(w, http.StatusConflict, codeSupplyUnitInactive, err.Error())
	case errors.Is(err, domain.ErrSupplyConflict):
		writeError(w, http.StatusConflict, codeSupplyConflict, err.Error())
	case errors.Is(err, domain.ErrOfferExpired):
		writeError(w, http.StatusConflict, codeOfferExpired, err.Error())
	case errors.Is(err, domain.ErrAlreadyCancelled):
		writeError(w, http.StatusConflict, codeAlreadyCancelled, err.Error())
	case errors.Is(err, domain.ErrTierSoldOut):
		writeError(w, http.StatusConflict, codeTierSoldOut, err.Error())
	case errors.Is(err, domain.ErrDuplicateDelivery):
		writeError(w, http.StatusConflict, codeDuplicateDelivery, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// userID extracts the authenticated caller. Authentication itself lives at
// the gateway; this service trusts the forwarded identity header.
func userID(r *http.Request) string {
	return r.Header.Get("X-User-ID")
}
