package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/mariogargano/week-chain-TM-sub006/internal/domain"
)

type CapacityRepository struct {
	pool *pgxpool.Pool
}

func NewCapacityRepository(pool *pgxpool.Pool) *CapacityRepository {
	return &CapacityRepository{pool: pool}
}

func (r *CapacityRepository) SupplyStats(ctx context.Context) (total, active, totalWeeks int, err error) {
	const query = `
SELECT COUNT(*),
       COUNT(*) FILTER (WHERE status = 'active'),
       COALESCE(SUM(weeks_per_year) FILTER (WHERE status = 'active'), 0)
FROM supply_units`

	if err := db(ctx, r.pool).QueryRow(ctx, query).Scan(&total, &active, &totalWeeks); err != nil {
		return 0, 0, 0, fmt.Errorf("supply stats: %w", err)
	}
	return total, active, totalWeeks, nil
}

func (r *CapacityRepository) CountActiveCertificatesByTier(ctx context.Context) (map[domain.Tier]int, error) {
	rows, err := db(ctx, r.pool).Query(ctx,
		`SELECT tier, COUNT(*) FROM certificates WHERE status = 'active' GROUP BY tier`)
	if err != nil {
		return nil, fmt.Errorf("count certificates: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.Tier]int, len(domain.Tiers))
	for _, t := range domain.Tiers {
		counts[t] = 0
	}
	for rows.Next() {
		var tier domain.Tier
		var n int
		if err := rows.Scan(&tier, &n); err != nil {
			return nil, err
		}
		counts[tier] = n
	}
	return counts, rows.Err()
}

func (r *CapacityRepository) StopSaleFlags(ctx context.Context) (map[domain.Tier]bool, error) {
	rows, err := db(ctx, r.pool).Query(ctx, `SELECT tier, stop_sale FROM tier_sales`)
	if err != nil {
		return nil, fmt.Errorf("stop-sale flags: %w", err)
	}
	defer rows.Close()

	flags := make(map[domain.Tier]bool, len(domain.Tiers))
	for rows.Next() {
		var tier domain.Tier
		var stopped bool
		if err := rows.Scan(&tier, &stopped); err != nil {
			return nil, err
		}
		flags[tier] = stopped
	}
	return flags, rows.Err()
}

func (r *CapacityRepository) SetStopSaleFlag(ctx context.Context, tier domain.Tier, stopped bool) error {
	tag, err := db(ctx, r.pool).Exec(ctx,
		`UPDATE tier_sales SET stop_sale = $2, updated_at = NOW() WHERE tier = $1`, tier, stopped)
	if err != nil {
		return fmt.Errorf("set stop-sale: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrInvalidTier
	}
	return nil
}

func (r *CapacityRepository) WaitlistCount(ctx context.Context) (int, error) {
	var n int
	err := db(ctx, r.pool).QueryRow(ctx,
		`SELECT COUNT(*) FROM waitlist_entries WHERE status = 'waiting'`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("waitlist count: %w", err)
	}
	return n, nil
}

func (r *CapacityRepository) AddWaitlistEntry(ctx context.Context, entry domain.WaitlistEntry) error {
	const stmt = `
INSERT INTO waitlist_entries (id, user_id, tier, status, joined_at)
VALUES ($1, $2, $3, $4, $5)`

	_, err := db(ctx, r.pool).Exec(ctx, stmt, entry.ID, entry.UserID, entry.Tier, entry.Status, entry.JoinedAt)
	if err != nil {
		return fmt.Errorf("add waitlist entry: %w", err)
	}
	return nil
}

func (r *CapacityRepository) InsertSnapshot(ctx context.Context, s domain.CapacitySnapshot) error {
	const stmt = `
INSERT INTO capacity_snapshots (id, computed_at, total_units, active_units, total_supply_weeks, safe_capacity,
	certs_silver, certs_gold, certs_platinum, certs_signature,
	projected_demand, utilization_pct, band,
	stop_silver, stop_gold, stop_platinum, stop_signature,
	waitlist_enabled, waitlist_count)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`

	_, err := db(ctx, r.pool).Exec(ctx, stmt,
		s.ID, s.ComputedAt, s.TotalUnits, s.ActiveUnits, s.TotalSupplyWeeks, s.SafeCapacity,
		s.CertCounts[domain.TierSilver], s.CertCounts[domain.TierGold],
		s.CertCounts[domain.TierPlatinum], s.CertCounts[domain.TierSignature],
		s.ProjectedDemand.String(), s.UtilizationPct.String(), s.Band,
		s.StopSale[domain.TierSilver], s.StopSale[domain.TierGold],
		s.StopSale[domain.TierPlatinum], s.StopSale[domain.TierSignature],
		s.WaitlistEnabled, s.WaitlistCount)
	if err != nil {
		if isUniqueViolation(err) {
			// computed_at collision with a concurrent recompute; the other
			// snapshot was built from equally fresh reads.
			return nil
		}
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

// LatestSnapshot returns the authoritative (most recent) snapshot.
func (r *CapacityRepository) LatestSnapshot(ctx context.Context) (domain.CapacitySnapshot, error) {
	const query = `
SELECT id, computed_at, total_units, active_units, total_supply_weeks, safe_capacity,
	certs_silver, certs_gold, certs_platinum, certs_signature,
	projected_demand, utilization_pct, band,
	stop_silver, stop_gold, stop_platinum, stop_signature,
	waitlist_enabled, waitlist_count
FROM capacity_snapshots
ORDER BY computed_at DESC
LIMIT 1`

	var (
		s                                    domain.CapacitySnapshot
		silver, gold, platinum, signature    int
		stopSil, stopGold, stopPlat, stopSig bool
		demand, utilization                  string
	)
	err := db(ctx, r.pool).QueryRow(ctx, query).Scan(
		&s.ID, &s.ComputedAt, &s.TotalUnits, &s.ActiveUnits, &s.TotalSupplyWeeks, &s.SafeCapacity,
		&silver, &gold, &platinum, &signature,
		&demand, &utilization, &s.Band,
		&stopSil, &stopGold, &stopPlat, &stopSig,
		&s.WaitlistEnabled, &s.WaitlistCount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.CapacitySnapshot{}, domain.ErrSnapshotNotFound
		}
		return domain.CapacitySnapshot{}, fmt.Errorf("latest snapshot: %w", err)
	}

	s.CertCounts = map[domain.Tier]int{
		domain.TierSilver: silver, domain.TierGold: gold,
		domain.TierPlatinum: platinum, domain.TierSignature: signature,
	}
	s.StopSale = map[domain.Tier]bool{
		domain.TierSilver: stopSil, domain.TierGold: stopGold,
		domain.TierPlatinum: stopPlat, domain.TierSignature: stopSig,
	}
	if s.ProjectedDemand, err = decimal.NewFromString(demand); err != nil {
		return domain.CapacitySnapshot{}, fmt.Errorf("parse demand: %w", err)
	}
	if s.UtilizationPct, err = decimal.NewFromString(utilization); err != nil {
		return domain.CapacitySnapshot{}, fmt.Errorf("parse utilization: %w", err)
	}
	return s, nil
}
