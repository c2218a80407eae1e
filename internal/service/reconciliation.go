package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/eric2umeh/frontbill/internal/events"
	"github.com/eric2umeh/frontbill/internal/model"
)

// ComputeExpected returns the per-method payment totals the ledger says
// should have been collected during the window.
func (s *Service) ComputeExpected(ctx context.Context, w model.ShiftWindow) (map[model.PaymentMethod]int64, error) {
	if !w.Valid() {
		return nil, fmt.Errorf("%w: %s [%s, %s)", ErrInvalidWindow, w.Type, w.Start, w.End)
	}
	return s.repo.ExpectedByMethod(ctx, w.Start, w.End)
}

// Reconcile closes out a shift window: expected totals come from the
// ledger, actual totals from the operator's count, and the variances are
// classified into anomaly flags. The record is created atomically with
// the window read, so no payment can slip into the window afterwards.
func (s *Service) Reconcile(ctx context.Context, w model.ShiftWindow, actual map[model.PaymentMethod]int64, submittedBy int64) (*model.Reconciliation, error) {
	if !w.Valid() {
		return nil, fmt.Errorf("%w: %s [%s, %s)", ErrInvalidWindow, w.Type, w.Start, w.End)
	}
	for m := range actual {
		if !m.Valid() {
			return nil, fmt.Errorf("%w: %q in counted totals", ErrUnknownMethod, m)
		}
	}

	rec, err := s.repo.CreateReconciliation(ctx, w, func(expected map[model.PaymentMethod]int64, unposted []model.LedgerEntry) (*model.Reconciliation, error) {
		return buildReconciliation(w, expected, actual, unposted, submittedBy, s.policy), nil
	})
	if err != nil {
		return nil, err
	}

	if s.events != nil && rec.Status == model.StatusFlagged {
		_ = s.events.Publish(events.TopicReconciliationFlagged, events.ReconciliationEvent{
			RecordID:      rec.ID,
			ShiftType:     rec.Window.Type,
			Status:        rec.Status,
			TotalVariance: rec.TotalVariance,
			Flags:         rec.Flags,
		})
	}

	return rec, nil
}

// buildReconciliation is the pure core of the engine: identical inputs
// always produce identical variances, flags and status.
func buildReconciliation(w model.ShiftWindow, expected, actual map[model.PaymentMethod]int64, unposted []model.LedgerEntry, submittedBy int64, policy Policy) *model.Reconciliation {
	rec := &model.Reconciliation{
		ID:          uuid.NewString(),
		Window:      w,
		Expected:    make(map[model.PaymentMethod]int64),
		Actual:      make(map[model.PaymentMethod]int64),
		Variance:    make(map[model.PaymentMethod]int64),
		Status:      model.StatusPending,
		SubmittedBy: submittedBy,
	}

	// Fixed method order keeps flag output reproducible.
	for _, m := range model.Methods() {
		exp, hasExp := expected[m]
		act, hasAct := actual[m]
		if !hasExp && !hasAct {
			continue
		}

		rec.Expected[m] = exp
		rec.Actual[m] = act
		rec.Variance[m] = act - exp
		rec.TotalExpected += exp
		rec.TotalActual += act
	}
	rec.TotalVariance = rec.TotalActual - rec.TotalExpected

	if v := rec.Variance[model.MethodCash]; v != 0 {
		severity := model.SeverityMedium
		if abs(v) >= policy.CashVarianceHigh {
			severity = model.SeverityHigh
		}
		direction := "over"
		if v < 0 {
			direction = "short"
		}
		rec.Flags = append(rec.Flags, model.AnomalyFlag{
			Type:        model.FlagCashVariance,
			Severity:    severity,
			Amount:      v,
			Description: fmt.Sprintf("cash drawer %s by %d kobo", direction, abs(v)),
		})
	}

	if len(unposted) > 0 {
		var total int64
		for i := range unposted {
			total += -unposted[i].Amount
		}
		rec.Flags = append(rec.Flags, model.AnomalyFlag{
			Type:        model.FlagUnpostedCharge,
			Severity:    model.SeverityHigh,
			Amount:      total,
			Description: fmt.Sprintf("%d house-account payment(s) without a city-ledger posting", len(unposted)),
		})
	}

	// Integer comparison: |variance| / expected > bps / 10000, cross-multiplied.
	if rec.TotalExpected > 0 && abs(rec.TotalVariance)*10000 > rec.TotalExpected*policy.LargeVarianceBps {
		rec.Flags = append(rec.Flags, model.AnomalyFlag{
			Type:        model.FlagLargeVariance,
			Severity:    model.SeverityCritical,
			Amount:      rec.TotalVariance,
			Description: fmt.Sprintf("total variance %d kobo exceeds %d basis points of expected %d kobo", rec.TotalVariance, policy.LargeVarianceBps, rec.TotalExpected),
		})
	}

	for _, f := range rec.Flags {
		if f.Severity == model.SeverityHigh || f.Severity == model.SeverityCritical {
			rec.Status = model.StatusFlagged
			break
		}
	}

	return rec
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

// Approve transitions a reconciliation record: PENDING becomes APPROVED,
// FLAGGED becomes RESOLVED. The approver's role is checked through the
// configured authorizer.
func (s *Service) Approve(ctx context.Context, recordID string, approverID int64) (*model.Reconciliation, error) {
	ok, err := s.authz.CanApprove(ctx, approverID)
	if err != nil {
		return nil, fmt.Errorf("check approver role: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: staff %d cannot approve reconciliations", ErrUnauthorized, approverID)
	}

	rec, err := s.repo.ApproveReconciliation(ctx, recordID, approverID)
	if err != nil {
		return nil, err
	}

	if s.events != nil {
		_ = s.events.Publish(events.TopicReconciliationApproved, events.ReconciliationEvent{
			RecordID:      rec.ID,
			ShiftType:     rec.Window.Type,
			Status:        rec.Status,
			TotalVariance: rec.TotalVariance,
		})
	}

	return rec, nil
}

// GetReconciliation returns one reconciliation record.
func (s *Service) GetReconciliation(ctx context.Context, id string) (*model.Reconciliation, error) {
	return s.repo.GetReconciliation(ctx, id)
}

// ListReconciliations returns the most recent reconciliation records.
func (s *Service) ListReconciliations(ctx context.Context, limit int) ([]model.Reconciliation, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.repo.ListReconciliations(ctx, limit)
}
