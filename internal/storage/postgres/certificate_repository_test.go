package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/mariogargano/week-chain-TM-sub006/internal/domain"
	"github.com/mariogargano/week-chain-TM-sub006/internal/testutil"
)

func TestCertificateRepository(t *testing.T) {
	pool := testutil.NewTestPool(t)
	repo := NewCertificateRepository(pool)
	testutil.ApplyMigrations(t, context.Background(), pool)

	t.Run("ConsumeAllowance stops at the annual allowance", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)

		id := testutil.InsertCertificate(t, ctx, pool, activeCert("user-1"))

		ok, err := repo.ConsumeAllowance(ctx, id)
		if err != nil || !ok {
			t.Fatalf("expected first consume to succeed, ok=%v err=%v", ok, err)
		}
		ok, err = repo.ConsumeAllowance(ctx, id)
		if err != nil {
			t.Fatalf("second consume: %v", err)
		}
		if ok {
			t.Fatalf("expected second consume to be refused")
		}

		cert, err := repo.GetCertificate(ctx, id)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if cert.AllowanceUsed != 1 {
			t.Fatalf("expected allowance_used 1, got %d", cert.AllowanceUsed)
		}
	})

	t.Run("ConsumeAllowance refuses inactive certificates", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)

		revoked := activeCert("user-1")
		revoked.Status = domain.CertificateStatusRevoked
		id := testutil.InsertCertificate(t, ctx, pool, revoked)

		ok, err := repo.ConsumeAllowance(ctx, id)
		if err != nil {
			t.Fatalf("consume: %v", err)
		}
		if ok {
			t.Fatalf("expected consume against a revoked certificate to be refused")
		}
	})

	t.Run("ReleaseAllowance floors at zero", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)

		id := testutil.InsertCertificate(t, ctx, pool, activeCert("user-1"))

		ok, err := repo.ReleaseAllowance(ctx, id)
		if err != nil {
			t.Fatalf("release: %v", err)
		}
		if ok {
			t.Fatalf("expected release with nothing consumed to be a no-op")
		}

		if _, err := repo.ConsumeAllowance(ctx, id); err != nil {
			t.Fatalf("consume: %v", err)
		}
		ok, err = repo.ReleaseAllowance(ctx, id)
		if err != nil || !ok {
			t.Fatalf("expected release to succeed, ok=%v err=%v", ok, err)
		}
		cert, err := repo.GetCertificate(ctx, id)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if cert.AllowanceUsed != 0 {
			t.Fatalf("expected allowance_used 0, got %d", cert.AllowanceUsed)
		}
	})

	t.Run("ApplyAnnualReset restores a lapsed allowance", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)

		now := time.Now().UTC()
		lapsed := activeCert("user-1")
		lapsed.AllowanceUsed = 1
		lapsed.ResetAt = now.AddDate(0, -3, 0)
		id := testutil.InsertCertificate(t, ctx, pool, lapsed)

		if err := repo.ApplyAnnualReset(ctx, id, now); err != nil {
			t.Fatalf("reset: %v", err)
		}

		cert, err := repo.GetCertificate(ctx, id)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if cert.AllowanceUsed != 0 {
			t.Fatalf("expected allowance_used reset to 0, got %d", cert.AllowanceUsed)
		}
		if !cert.ResetAt.After(now) {
			t.Fatalf("expected reset_at past now, got %v", cert.ResetAt)
		}
	})

	t.Run("ApplyAnnualReset catches up across missed years", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)

		now := time.Now().UTC()
		dormant := activeCert("user-1")
		dormant.AllowanceUsed = 1
		dormant.ResetAt = now.AddDate(-3, 0, 0)
		id := testutil.InsertCertificate(t, ctx, pool, dormant)

		if err := repo.ApplyAnnualReset(ctx, id, now); err != nil {
			t.Fatalf("reset: %v", err)
		}

		cert, err := repo.GetCertificate(ctx, id)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if !cert.ResetAt.After(now) {
			t.Fatalf("expected reset_at past now, got %v", cert.ResetAt)
		}
		if cert.ResetAt.After(now.AddDate(1, 0, 1)) {
			t.Fatalf("expected reset_at within a year of now, got %v", cert.ResetAt)
		}
	})

	t.Run("ExpireCertificates touches only overdue actives", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)

		now := time.Now().UTC()
		overdue := activeCert("user-1")
		overdue.ValidUntil = now.AddDate(0, 0, -1)
		overdueID := testutil.InsertCertificate(t, ctx, pool, overdue)
		currentID := testutil.InsertCertificate(t, ctx, pool, activeCert("user-2"))

		n, err := repo.ExpireCertificates(ctx, now)
		if err != nil {
			t.Fatalf("expire: %v", err)
		}
		if n != 1 {
			t.Fatalf("expected 1 expiry, got %d", n)
		}

		expired, _ := repo.GetCertificate(ctx, overdueID)
		if expired.Status != domain.CertificateStatusExpired {
			t.Fatalf("expected expired, got %s", expired.Status)
		}
		current, _ := repo.GetCertificate(ctx, currentID)
		if current.Status != domain.CertificateStatusActive {
			t.Fatalf("expected active, got %s", current.Status)
		}
	})
}
