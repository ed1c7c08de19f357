package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mariogargano/week-chain-TM-sub006/internal/app"
)

// EvidenceVerifier is the minimal interface needed to verify audit chains.
type EvidenceVerifier interface {
	VerifyEntity(ctx context.Context, entityType, entityID string) (app.VerifyResult, error)
}

// HandleVerifyEvidence re-hashes an entity's audit chain and reports whether
// it is intact.
func HandleVerifyEvidence(svc EvidenceVerifier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, err := svc.VerifyEntity(r.Context(), chi.URLParam(r, "type"), chi.URLParam(r, "id"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}
