package app

import (
	"context"
	"log"

	"github.com/mariogargano/week-chain-TM-sub006/internal/domain"
)

// ConsentResult reports whether a user holds a valid consent record for an
// action, and at which terms version.
type ConsentResult struct {
	Valid   bool
	Version string
}

// ConsentChecker is the consent collaborator. The default implementation
// reads the user_consents table; the contract is narrow on purpose.
type ConsentChecker interface {
	ValidateConsent(ctx context.Context, userID, actionType string) (ConsentResult, error)
}

// Notifier delivers templated messages on workflow transitions. Fire and
// forget: failures are logged by callers, never retried here.
type Notifier interface {
	Notify(ctx context.Context, userID, template string, data map[string]any)
}

// CommissionTrigger kicks off financial settlement for an issued certificate.
// Settlement math lives elsewhere; this only signals.
type CommissionTrigger interface {
	CertificateIssued(ctx context.Context, cert domain.Certificate)
}

// LogNotifier is the default Notifier: it writes the notification to the log
// so local runs and tests can observe transitions without a mail provider.
type LogNotifier struct {
	Logger *log.Logger
}

func (n LogNotifier) Notify(_ context.Context, userID, template string, data map[string]any) {
	logger := n.Logger
	if logger == nil {
		logger = log.Default()
	}
	logger.Printf("notify user=%s template=%s data=%v", userID, template, data)
}

// LogCommissionTrigger is the default CommissionTrigger.
type LogCommissionTrigger struct {
	Logger *log.Logger
}

func (c LogCommissionTrigger) CertificateIssued(_ context.Context, cert domain.Certificate) {
	logger := c.Logger
	if logger == nil {
		logger = log.Default()
	}
	logger.Printf("commission trigger certificate=%s tier=%s order=%s", cert.ID, cert.Tier, cert.OrderRef)
}
