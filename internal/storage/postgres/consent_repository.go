package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mariogargano/week-chain-TM-sub006/internal/app"
)

type ConsentRepository struct {
	pool *pgxpool.Pool
}

func NewConsentRepository(pool *pgxpool.Pool) *ConsentRepository {
	return &ConsentRepository{pool: pool}
}

// ValidateConsent checks that the user's most recent consent for the action
// matches the currently published terms version. An older acceptance does not
// count once new terms are published.
func (r *ConsentRepository) ValidateConsent(ctx context.Context, userID, actionType string) (app.ConsentResult, error) {
	var current string
	err := db(ctx, r.pool).QueryRow(ctx, `
SELECT version FROM terms_versions
WHERE action_type = $1
ORDER BY published_at DESC
LIMIT 1`, actionType).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// No published terms means nothing to consent to.
			return app.ConsentResult{Valid: true}, nil
		}
		return app.ConsentResult{}, fmt.Errorf("current terms version: %w", err)
	}

	var accepted string
	err = db(ctx, r.pool).QueryRow(ctx, `
SELECT version FROM user_consents
WHERE user_id = $1 AND action_type = $2
ORDER BY accepted_at DESC
LIMIT 1`, userID, actionType).Scan(&accepted)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return app.ConsentResult{Valid: false, Version: current}, nil
		}
		return app.ConsentResult{}, fmt.Errorf("latest consent: %w", err)
	}

	return app.ConsentResult{Valid: accepted == current, Version: current}, nil
}

// RecordConsent stores a fresh acceptance of the current terms version.
func (r *ConsentRepository) RecordConsent(ctx context.Context, userID, actionType, version string, acceptedAt time.Time) error {
	_, err := db(ctx, r.pool).Exec(ctx, `
INSERT INTO user_consents (user_id, action_type, version, accepted_at)
VALUES ($1, $2, $3, $4)`, userID, actionType, version, acceptedAt)
	if err != nil {
		return fmt.Errorf("record consent: %w", err)
	}
	return nil
}
