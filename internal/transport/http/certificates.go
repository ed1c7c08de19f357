package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mariogargano/week-chain-TM-sub006/internal/app"
	"github.com/mariogargano/week-chain-TM-sub006/internal/domain"
)

// CertificateIssuer is the minimal interface needed by the admin certificate
// endpoints.
type CertificateIssuer interface {
	Issue(ctx context.Context, in app.IssueInput) (app.IssueResult, error)
	Revoke(ctx context.Context, certificateID string) error
}

// HandleIssueCertificate returns an HTTP handler for operator issuance.
// Without override the sale is gated on capacity and may land on the
// waitlist instead.
func HandleIssueCertificate(svc CertificateIssuer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req issueRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}
		if req.UserID == "" {
			writeError(w, http.StatusBadRequest, codeMissingRequiredField, "user_id is required")
			return
		}

		result, err := svc.Issue(r.Context(), app.IssueInput{
			UserID:       req.UserID,
			Tier:         domain.Tier(req.Tier),
			MaxPartySize: req.MaxPartySize,
			OrderRef:     req.OrderRef,
			Override:     req.Override,
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}

		if result.Waitlisted != nil {
			writeJSON(w, http.StatusAccepted, waitlistedResponse{
				WaitlistEntryID: result.Waitlisted.ID,
				Tier:            string(result.Waitlisted.Tier),
				Reason:          result.Reason,
			})
			return
		}
		writeJSON(w, http.StatusCreated, toCertificateResponse(*result.Certificate))
	}
}

// HandleRevokeCertificate deactivates a certificate.
func HandleRevokeCertificate(svc CertificateIssuer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.Revoke(r.Context(), chi.URLParam(r, "id")); err != nil {
			writeServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

type issueRequest struct {
	UserID       string `json:"user_id"`
	Tier         string `json:"tier"`
	MaxPartySize int    `json:"max_party_size"`
	OrderRef     string `json:"order_ref"`
	Override     bool   `json:"override"`
}

type waitlistedResponse struct {
	WaitlistEntryID string `json:"waitlist_entry_id"`
	Tier            string `json:"tier"`
	Reason          string `json:"reason"`
}

type certificateResponse struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	Tier            string    `json:"tier"`
	MaxPartySize    int       `json:"max_party_size"`
	AnnualAllowance int       `json:"annual_allowance"`
	AllowanceUsed   int       `json:"allowance_used"`
	ResetAt         time.Time `json:"reset_at"`
	ValidUntil      time.Time `json:"valid_until"`
	Status          string    `json:"status"`
	OrderRef        string    `json:"order_ref,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

func toCertificateResponse(cert domain.Certificate) certificateResponse {
	return certificateResponse{
		ID:              cert.ID,
		UserID:          cert.UserID,
		Tier:            string(cert.Tier),
		MaxPartySize:    cert.MaxPartySize,
		AnnualAllowance: cert.AnnualAllowance,
		AllowanceUsed:   cert.AllowanceUsed,
		ResetAt:         cert.ResetAt,
		ValidUntil:      cert.ValidUntil,
		Status:          string(cert.Status),
		OrderRef:        cert.OrderRef,
		CreatedAt:       cert.CreatedAt,
	}
}
