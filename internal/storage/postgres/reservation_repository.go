package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mariogargano/week-chain-TM-sub006/internal/domain"
)

type ReservationRepository struct {
	pool *pgxpool.Pool
}

func NewReservationRepository(pool *pgxpool.Pool) *ReservationRepository {
	return &ReservationRepository{pool: pool}
}

func (r *ReservationRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.pool, fn)
}

func (r *ReservationRepository) GetSupplyUnit(ctx context.Context, id string) (domain.SupplyUnit, error) {
	const query = `SELECT id, name, country, city, weeks_per_year, status FROM supply_units WHERE id = $1`
	var u domain.SupplyUnit
	err := db(ctx, r.pool).QueryRow(ctx, query, id).
		Scan(&u.ID, &u.Name, &u.Country, &u.City, &u.WeeksPerYear, &u.Status)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.SupplyUnit{}, domain.ErrInvalidID
		}
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.SupplyUnit{}, domain.ErrSupplyUnitNotFound
		}
		return domain.SupplyUnit{}, fmt.Errorf("get supply unit: %w", err)
	}
	return u, nil
}

const requestColumns = `id, user_id, certificate_id, desired_start, desired_end, flexibility_days,
party_size, notes, status, offered_unit_id, offered_start, offered_end, offer_expires_at,
confirmed_unit_id, operator_notes, created_at, updated_at`

func scanRequest(row pgx.Row) (domain.ReservationRequest, error) {
	var (
		req           domain.ReservationRequest
		offeredUnit   *string
		offeredStart  *time.Time
		offeredEnd    *time.Time
		offerExpires  *time.Time
		confirmedUnit *string
	)
	err := row.Scan(&req.ID, &req.UserID, &req.CertificateID, &req.DesiredRange.Start, &req.DesiredRange.End,
		&req.FlexibilityDays, &req.PartySize, &req.Notes, &req.Status,
		&offeredUnit, &offeredStart, &offeredEnd, &offerExpires,
		&confirmedUnit, &req.OperatorNotes, &req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		return domain.ReservationRequest{}, err
	}
	if offeredUnit != nil && offeredStart != nil && offeredEnd != nil && offerExpires != nil {
		req.Offer = &domain.Offer{
			SupplyUnitID: *offeredUnit,
			Range:        domain.DateRange{Start: *offeredStart, End: *offeredEnd},
			ExpiresAt:    *offerExpires,
		}
	}
	if confirmedUnit != nil {
		req.ConfirmedUnitID = *confirmedUnit
	}
	return req, nil
}

func (r *ReservationRepository) GetRequestForUpdate(ctx context.Context, id string) (domain.ReservationRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM reservation_requests WHERE id = $1 FOR UPDATE`
	req, err := scanRequest(db(ctx, r.pool).QueryRow(ctx, query, id))
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ReservationRequest{}, domain.ErrInvalidID
		}
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ReservationRequest{}, domain.ErrRequestNotFound
		}
		return domain.ReservationRequest{}, fmt.Errorf("get request: %w", err)
	}
	return req, nil
}

func (r *ReservationRepository) CreateRequest(ctx context.Context, req domain.ReservationRequest) error {
	const stmt = `
INSERT INTO reservation_requests (id, user_id, certificate_id, desired_start, desired_end, flexibility_days, party_size, notes, status, operator_notes, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := db(ctx, r.pool).Exec(ctx, stmt,
		req.ID, req.UserID, req.CertificateID, req.DesiredRange.Start, req.DesiredRange.End,
		req.FlexibilityDays, req.PartySize, req.Notes, req.Status, req.OperatorNotes,
		req.CreatedAt, req.UpdatedAt)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("create request: %w", err)
	}
	return nil
}

func (r *ReservationRepository) UpdateRequest(ctx context.Context, req domain.ReservationRequest) error {
	const stmt = `
UPDATE reservation_requests
SET status = $2, offered_unit_id = $3, offered_start = $4, offered_end = $5, offer_expires_at = $6,
    confirmed_unit_id = $7, operator_notes = $8, updated_at = $9
WHERE id = $1`

	var (
		offeredUnit  any
		offeredStart any
		offeredEnd   any
		offerExpires any
	)
	if req.Offer != nil {
		offeredUnit = req.Offer.SupplyUnitID
		offeredStart = req.Offer.Range.Start
		offeredEnd = req.Offer.Range.End
		offerExpires = req.Offer.ExpiresAt
	}
	var confirmedUnit any
	if req.ConfirmedUnitID != "" {
		confirmedUnit = req.ConfirmedUnitID
	}

	tag, err := db(ctx, r.pool).Exec(ctx, stmt,
		req.ID, req.Status, offeredUnit, offeredStart, offeredEnd, offerExpires,
		confirmedUnit, req.OperatorNotes, req.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrRequestNotFound
	}
	return nil
}

func (r *ReservationRepository) ListRequestsByUser(ctx context.Context, userID string) ([]domain.ReservationRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM reservation_requests WHERE user_id = $1 ORDER BY created_at DESC`
	rows, err := db(ctx, r.pool).Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	defer rows.Close()

	var out []domain.ReservationRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan request: %w", err)
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

func (r *ReservationRepository) CountRequestsByStatus(ctx context.Context) (map[domain.RequestStatus]int, error) {
	rows, err := db(ctx, r.pool).Query(ctx,
		`SELECT status, COUNT(*) FROM reservation_requests GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count requests: %w", err)
	}
	defer rows.Close()

	out := make(map[domain.RequestStatus]int)
	for rows.Next() {
		var status domain.RequestStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[status] = n
	}
	return out, rows.Err()
}

const reservationColumns = `id, request_id, certificate_id, user_id, supply_unit_id, check_in, check_out, party_size, status, confirmed_at`

func scanReservation(row pgx.Row) (domain.ConfirmedReservation, error) {
	var res domain.ConfirmedReservation
	err := row.Scan(&res.ID, &res.RequestID, &res.CertificateID, &res.UserID, &res.SupplyUnitID,
		&res.Range.Start, &res.Range.End, &res.PartySize, &res.Status, &res.ConfirmedAt)
	return res, err
}

// FindConflicts returns confirmed, non-cancelled reservations on the unit
// whose half-open stay window overlaps the range.
func (r *ReservationRepository) FindConflicts(ctx context.Context, supplyUnitID string, rng domain.DateRange) ([]domain.ConfirmedReservation, error) {
	query := `
SELECT ` + reservationColumns + `
FROM confirmed_reservations
WHERE supply_unit_id = $1 AND status <> 'cancelled'
  AND daterange(check_in, check_out) && daterange($2::date, $3::date)
ORDER BY check_in`

	rows, err := db(ctx, r.pool).Query(ctx, query, supplyUnitID, rng.Start, rng.End)
	if err != nil {
		if isInvalidUUID(err) {
			return nil, domain.ErrInvalidID
		}
		return nil, fmt.Errorf("find conflicts: %w", err)
	}
	defer rows.Close()

	var out []domain.ConfirmedReservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reservation: %w", err)
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

// CreateReservation inserts the confirmed stay. The no_overlapping_stays
// exclusion constraint rejects a racing insert for the same unit and window;
// that loss surfaces as domain.ErrSupplyConflict.
func (r *ReservationRepository) CreateReservation(ctx context.Context, res domain.ConfirmedReservation) error {
	const stmt = `
INSERT INTO confirmed_reservations (id, request_id, certificate_id, user_id, supply_unit_id, check_in, check_out, party_size, status, confirmed_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := db(ctx, r.pool).Exec(ctx, stmt,
		res.ID, res.RequestID, res.CertificateID, res.UserID, res.SupplyUnitID,
		res.Range.Start, res.Range.End, res.PartySize, res.Status, res.ConfirmedAt)
	if err != nil {
		if isExclusionViolation(err) {
			return domain.ErrSupplyConflict
		}
		if isUniqueViolation(err) {
			// request_id unique: this request already confirmed.
			return domain.ErrInvalidRequestState
		}
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("create reservation: %w", err)
	}
	return nil
}

func (r *ReservationRepository) GetReservationByRequestID(ctx context.Context, requestID string) (*domain.ConfirmedReservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM confirmed_reservations WHERE request_id = $1`
	res, err := scanReservation(db(ctx, r.pool).QueryRow(ctx, query, requestID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		if isInvalidUUID(err) {
			return nil, domain.ErrInvalidID
		}
		return nil, fmt.Errorf("get reservation by request: %w", err)
	}
	return &res, nil
}

func (r *ReservationRepository) GetReservationForUpdate(ctx context.Context, id string) (domain.ConfirmedReservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM confirmed_reservations WHERE id = $1 FOR UPDATE`
	res, err := scanReservation(db(ctx, r.pool).QueryRow(ctx, query, id))
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ConfirmedReservation{}, domain.ErrInvalidID
		}
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ConfirmedReservation{}, domain.ErrReservationNotFound
		}
		return domain.ConfirmedReservation{}, fmt.Errorf("get reservation: %w", err)
	}
	return res, nil
}

func (r *ReservationRepository) UpdateReservationStatus(ctx context.Context, id string, status domain.ReservationStatus) error {
	tag, err := db(ctx, r.pool).Exec(ctx,
		`UPDATE confirmed_reservations SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("update reservation status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrReservationNotFound
	}
	return nil
}

// ExpireOffers force-transitions offered requests whose expiry has passed.
func (r *ReservationRepository) ExpireOffers(ctx context.Context, now time.Time) ([]string, error) {
	rows, err := db(ctx, r.pool).Query(ctx, `
UPDATE reservation_requests
SET status = 'expired', updated_at = $1
WHERE status = 'offered' AND offer_expires_at <= $1
RETURNING id`, now)
	if err != nil {
		return nil, fmt.Errorf("expire offers: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
