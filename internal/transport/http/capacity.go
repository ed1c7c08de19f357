package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/mariogargano/week-chain-TM-sub006/internal/domain"
)

// CapacityReader exposes the snapshot operations the admin endpoints need.
type CapacityReader interface {
	Latest(ctx context.Context) (domain.CapacitySnapshot, error)
	Recompute(ctx context.Context) (domain.CapacitySnapshot, error)
	SetStopSale(ctx context.Context, tier domain.Tier, stopped bool) (domain.CapacitySnapshot, error)
}

// RequestCounter reports request counts per workflow status.
type RequestCounter interface {
	PendingCounts(ctx context.Context) (map[domain.RequestStatus]int, error)
}

// HandleCapacityStatus returns the latest snapshot plus the request queue
// breakdown. Computes a first snapshot when none exists yet.
func HandleCapacityStatus(capacity CapacityReader, requests RequestCounter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snapshot, err := capacity.Latest(r.Context())
		if errors.Is(err, domain.ErrSnapshotNotFound) {
			snapshot, err = capacity.Recompute(r.Context())
		}
		if err != nil {
			writeServiceError(w, err)
			return
		}

		counts, err := requests.PendingCounts(r.Context())
		if err != nil {
			writeServiceError(w, err)
			return
		}

		resp := capacityStatusResponse{Snapshot: toSnapshotResponse(snapshot)}
		resp.Requests = map[string]int{}
		for status, n := range counts {
			resp.Requests[string(status)] = n
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// HandleRecompute forces a fresh snapshot.
func HandleRecompute(capacity CapacityReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snapshot, err := capacity.Recompute(r.Context())
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toSnapshotResponse(snapshot))
	}
}

// HandleStopSale toggles a tier's stop-sale flag.
func HandleStopSale(capacity CapacityReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req stopSaleRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}

		snapshot, err := capacity.SetStopSale(r.Context(), domain.Tier(req.Tier), req.Stopped)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toSnapshotResponse(snapshot))
	}
}

type stopSaleRequest struct {
	Tier    string `json:"tier"`
	Stopped bool   `json:"stopped"`
}

type snapshotResponse struct {
	ID               string          `json:"id"`
	ComputedAt       time.Time       `json:"computed_at"`
	TotalUnits       int             `json:"total_units"`
	ActiveUnits      int             `json:"active_units"`
	TotalSupplyWeeks int             `json:"total_supply_weeks"`
	SafeCapacity     int             `json:"safe_capacity"`
	CertCounts       map[string]int  `json:"certificates_by_tier"`
	ProjectedDemand  string          `json:"projected_demand"`
	UtilizationPct   string          `json:"utilization_pct"`
	Band             string          `json:"band"`
	StopSale         map[string]bool `json:"stop_sale"`
	WaitlistEnabled  bool            `json:"waitlist_enabled"`
	WaitlistCount    int             `json:"waitlist_count"`
}

type capacityStatusResponse struct {
	Snapshot snapshotResponse `json:"snapshot"`
	Requests map[string]int   `json:"requests_by_status"`
}

func toSnapshotResponse(s domain.CapacitySnapshot) snapshotResponse {
	out := snapshotResponse{
		ID:               s.ID,
		ComputedAt:       s.ComputedAt,
		TotalUnits:       s.TotalUnits,
		ActiveUnits:      s.ActiveUnits,
		TotalSupplyWeeks: s.TotalSupplyWeeks,
		SafeCapacity:     s.SafeCapacity,
		CertCounts:       map[string]int{},
		ProjectedDemand:  s.ProjectedDemand.String(),
		UtilizationPct:   s.UtilizationPct.String(),
		Band:             string(s.Band),
		StopSale:         map[string]bool{},
		WaitlistEnabled:  s.WaitlistEnabled,
		WaitlistCount:    s.WaitlistCount,
	}
	for tier, n := range s.CertCounts {
		out.CertCounts[string(tier)] = n
	}
	for tier, stopped := range s.StopSale {
		out.StopSale[string(tier)] = stopped
	}
	return out
}
