package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/mariogargano/week-chain-TM-sub006/internal/app"
	"github.com/mariogargano/week-chain-TM-sub006/internal/domain"
)

const dateLayout = "2006-01-02"

// RequestSubmitter is the minimal interface needed by the request handlers.
type RequestSubmitter interface {
	Submit(ctx context.Context, in app.SubmitInput) (domain.ReservationRequest, error)
	ListForUser(ctx context.Context, userID string) ([]domain.ReservationRequest, error)
}

// HandleSubmitRequest returns an HTTP handler for submitting stay requests.
func HandleSubmitRequest(svc RequestSubmitter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid := userID(r)
		if uid == "" {
			writeError(w, http.StatusUnauthorized, codeUserRequired, "X-User-ID header is required")
			return
		}

		var req submitRequest
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

		created, err := svc.Submit(r.Context(), app.SubmitInput{
			UserID:          uid,
			CertificateID:   req.CertificateID,
			DesiredRange:    rng,
			FlexibilityDays: req.FlexibilityDays,
			PartySize:       req.PartySize,
			Notes:           req.Notes,
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toRequestResponse(created))
	}
}

// HandleListRequests returns the caller's requests, newest first.
func HandleListRequests(svc RequestSubmitter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid := userID(r)
		if uid == "" {
			writeError(w, http.StatusUnauthorized, codeUserRequired, "X-User-ID header is required")
			return
		}

		requests, err := svc.ListForUser(r.Context(), uid)
		if err != nil {
			writeServiceError(w, err)
			return
		}

		out := make([]requestResponse, 0, len(requests))
		for _, req := range requests {
			out = append(out, toRequestResponse(req))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

type submitRequest struct {
	CertificateID   string `json:"certificate_id"`
	DesiredStart    string `json:"desired_start"`
	DesiredEnd      string `json:"desired_end"`
	FlexibilityDays int    `json:"flexibility_days"`
	PartySize       int    `json:"party_size"`
	Notes           string `json:"notes"`
}

func (r submitRequest) dateRange() (domain.DateRange, error) {
	start, err := time.Parse(dateLayout, r.DesiredStart)
	if err != nil {
		return domain.DateRange{}, domain.ErrInvalidDateRange
	}
	end, err := time.Parse(dateLayout, r.DesiredEnd)
	if err != nil {
		return domain.DateRange{}, domain.ErrInvalidDateRange
	}
	return domain.DateRange{Start: start, End: end}, nil
}

type offerResponse struct {
	SupplyUnitID string    `json:"supply_unit_id"`
	Start        string    `json:"start"`
	End          string    `json:"end"`
	ExpiresAt    time.Time `json:"expires_at"`
}

type requestResponse struct {
	ID              string         `json:"id"`
	CertificateID   string         `json:"certificate_id"`
	DesiredStart    string         `json:"desired_start"`
	DesiredEnd      string         `json:"desired_end"`
	FlexibilityDays int            `json:"flexibility_days"`
	PartySize       int            `json:"party_size"`
	Notes           string         `json:"notes,omitempty"`
	Status          string         `json:"status"`
	Offer           *offerResponse `json:"offer,omitempty"`
	ConfirmedUnitID string         `json:"confirmed_unit_id,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

func toRequestResponse(req domain.ReservationRequest) requestResponse {
	out := requestResponse{
		ID:              req.ID,
		CertificateID:   req.CertificateID,
		DesiredStart:    req.DesiredRange.Start.Format(dateLayout),
		DesiredEnd:      req.DesiredRange.End.Format(dateLayout),
		FlexibilityDays: req.FlexibilityDays,
		PartySize:       req.PartySize,
		Notes:           req.Notes,
		Status:          string(req.Status),
		ConfirmedUnitID: req.ConfirmedUnitID,
		CreatedAt:       req.CreatedAt,
		UpdatedAt:       req.UpdatedAt,
	}
	if req.Offer != nil {
		out.Offer = &offerResponse{
			SupplyUnitID: req.Offer.SupplyUnitID,
			Start:        req.Offer.Range.Start.Format(dateLayout),
			End:          req.Offer.Range.End.Format(dateLayout),
			ExpiresAt:    req.Offer.ExpiresAt,
		}
	}
	return out
}
