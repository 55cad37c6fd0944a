package service

import (
	"context"
	"time"

	"scancodes/internal/repository"

	"github.com/sirupsen/logrus"
)

// ReconcileReport summarizes one reconciliation pass.
type ReconcileReport struct {
	Checked   int      `json:"checked"`
	Settled   int      `json:"settled"`
	Unchanged int      `json:"unchanged"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors,omitempty"`
}

// ReconcileService re-verifies payments left pending, typically because a
// webhook never arrived or initialization failed half way.
type ReconcileService struct {
	payments *repository.PaymentRepository
	manager  *PaymentManager
	log      logrus.FieldLogger
	now      func() time.Time
}

func NewReconcileService(payments *repository.PaymentRepository, manager *PaymentManager, log logrus.FieldLogger) *ReconcileService {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &ReconcileService{payments: payments, manager: manager, log: log, now: time.Now}
}

// Run verifies, one at a time, up to limit pending payments older than age.
func (s *ReconcileService) Run(ctx context.Context, age time.Duration, limit int) (*ReconcileReport, error) {
	pending, err := s.payments.ListPending(ctx, s.now().Add(-age), limit)
	if err != nil {
		return nil, err
	}
	report := &ReconcileReport{}
	for i := range pending {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		p := &pending[i]
		before := p.Status
		report.Checked++
		if _, err := s.manager.VerifyGatewayPayment(ctx, p); err != nil {
			report.Failed++
			report.Errors = append(report.Errors, p.Key+": "+err.Error())
			continue
		}
		if p.Status != before {
			report.Settled++
		} else {
			report.Unchanged++
		}
	}
	s.log.WithFields(logrus.Fields{
		"checked":   report.Checked,
		"settled":   report.Settled,
		"unchanged": report.Unchanged,
		"failed":    report.Failed,
	}).Info("reconciliation finished")
	return report, nil
}
