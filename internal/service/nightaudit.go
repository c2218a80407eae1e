package service

import (
	"context"
	"time"

	"github.com/eric2umeh/frontbill/internal/model"
)

// NightAuditReport is the end-of-day roll-up: revenue per payment
// channel, the debtors list and the day's reconciliation outcomes.
type NightAuditReport struct {
	BusinessDate     string                        `json:"business_date"`
	RevenueByMethod  map[model.PaymentMethod]int64 `json:"revenue_by_method"`
	TotalRevenue     int64                         `json:"total_revenue"`
	CityLedger       int64                         `json:"city_ledger_revenue"`
	Outstanding      []model.AccountBalance        `json:"outstanding_accounts"`
	TotalOutstanding int64                         `json:"total_outstanding"`
	Reconciliations  []model.Reconciliation        `json:"reconciliations"`
	OpenAnomalies    []model.AnomalyFlag           `json:"open_anomalies"`
}

// NightAudit produces the audit report for one business day. It is a
// single on-demand batch read; nothing is mutated and no background work
// is started.
func (s *Service) NightAudit(ctx context.Context, date time.Time) (*NightAuditReport, error) {
	dayStart := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	dayEnd := dayStart.Add(24 * time.Hour)

	revenue, err := s.repo.ExpectedByMethod(ctx, dayStart, dayEnd)
	if err != nil {
		return nil, err
	}

	outstanding, err := s.repo.OutstandingAccounts(ctx)
	if err != nil {
		return nil, err
	}

	recons, err := s.repo.ReconciliationsBetween(ctx, dayStart, dayEnd)
	if err != nil {
		return nil, err
	}

	report := &NightAuditReport{
		BusinessDate:    dayStart.Format("2006-01-02"),
		RevenueByMethod: revenue,
		CityLedger:      revenue[model.MethodHouseAccount],
		Outstanding:     outstanding,
		Reconciliations: recons,
	}

	for _, v := range revenue {
		report.TotalRevenue += v
	}
	for _, b := range outstanding {
		report.TotalOutstanding += b.Balance
	}
	for _, rec := range recons {
		if rec.Status == model.StatusFlagged {
			report.OpenAnomalies = append(report.OpenAnomalies, rec.Flags...)
		}
	}

	return report, nil
}
