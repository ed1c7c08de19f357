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

type CertificateRepository struct {
	pool *pgxpool.Pool
}

func NewCertificateRepository(pool *pgxpool.Pool) *CertificateRepository {
	return &CertificateRepository{pool: pool}
}

func (r *CertificateRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.pool, fn)
}

const certificateColumns = `id, user_id, tier, max_party_size, annual_allowance, allowance_used, reset_at, valid_until, status, order_ref, created_at`

func scanCertificate(row pgx.Row) (domain.Certificate, error) {
	var c domain.Certificate
	err := row.Scan(&c.ID, &c.UserID, &c.Tier, &c.MaxPartySize, &c.AnnualAllowance,
		&c.AllowanceUsed, &c.ResetAt, &c.ValidUntil, &c.Status, &c.OrderRef, &c.CreatedAt)
	return c, err
}

func (r *CertificateRepository) GetCertificate(ctx context.Context, id string) (domain.Certificate, error) {
	query := `SELECT ` + certificateColumns + ` FROM certificates WHERE id = $1`
	cert, err := scanCertificate(db(ctx, r.pool).QueryRow(ctx, query, id))
	if err != nil {
		if isInvalidUUID(err) {
			return domain.Certificate{}, domain.ErrInvalidID
		}
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Certificate{}, domain.ErrCertificateNotFound
		}
		return domain.Certificate{}, fmt.Errorf("get certificate: %w", err)
	}
	return cert, nil
}

func (r *CertificateRepository) CreateCertificate(ctx context.Context, cert domain.Certificate) error {
	const stmt = `
INSERT INTO certificates (id, user_id, tier, max_party_size, annual_allowance, allowance_used, reset_at, valid_until, status, order_ref, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := db(ctx, r.pool).Exec(ctx, stmt,
		cert.ID, cert.UserID, cert.Tier, cert.MaxPartySize, cert.AnnualAllowance,
		cert.AllowanceUsed, cert.ResetAt, cert.ValidUntil, cert.Status, cert.OrderRef, cert.CreatedAt)
	if err != nil {
		return fmt.Errorf("create certificate: %w", err)
	}
	return nil
}

func (r *CertificateRepository) UpdateCertificateStatus(ctx context.Context, id string, status domain.CertificateStatus) error {
	tag, err := db(ctx, r.pool).Exec(ctx,
		`UPDATE certificates SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("update certificate status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrCertificateNotFound
	}
	return nil
}

// ApplyAnnualReset zeroes the consumed allowance and advances the reset date
// by one year when the reset date has passed. Repeats when more than a year
// has been missed, so a long-dormant certificate lands on the right year.
func (r *CertificateRepository) ApplyAnnualReset(ctx context.Context, id string, now time.Time) error {
	const stmt = `
UPDATE certificates
SET allowance_used = 0,
    reset_at = reset_at + make_interval(years => (1 + EXTRACT(YEAR FROM age($2::timestamptz, reset_at)))::int)
WHERE id = $1 AND status = 'active' AND reset_at <= $2`

	_, err := db(ctx, r.pool).Exec(ctx, stmt, id, now)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("apply annual reset: %w", err)
	}
	return nil
}

// ConsumeAllowance is the single conditional update that makes confirms safe
// under concurrency: the decrement happens only while a stay remains.
func (r *CertificateRepository) ConsumeAllowance(ctx context.Context, id string) (bool, error) {
	const stmt = `
UPDATE certificates
SET allowance_used = allowance_used + 1
WHERE id = $1 AND status = 'active' AND allowance_used < annual_allowance`

	tag, err := db(ctx, r.pool).Exec(ctx, stmt, id)
	if err != nil {
		if isInvalidUUID(err) {
			return false, domain.ErrInvalidID
		}
		return false, fmt.Errorf("consume allowance: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *CertificateRepository) ReleaseAllowance(ctx context.Context, id string) (bool, error) {
	const stmt = `
UPDATE certificates
SET allowance_used = allowance_used - 1
WHERE id = $1 AND allowance_used > 0`

	tag, err := db(ctx, r.pool).Exec(ctx, stmt, id)
	if err != nil {
		if isInvalidUUID(err) {
			return false, domain.ErrInvalidID
		}
		return false, fmt.Errorf("release allowance: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *CertificateRepository) ExpireCertificates(ctx context.Context, now time.Time) (int, error) {
	tag, err := db(ctx, r.pool).Exec(ctx,
		`UPDATE certificates SET status = 'expired' WHERE status = 'active' AND valid_until <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("expire certificates: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
