package conciliation

import (
	"math"

	"github.com/glosas/glosas/internal/domain/glosa"
)

// Summarize folds the current values of a case's objections into its
// financial summary. It never reads stored totals.
func Summarize(objs []*glosa.Objection) FinancialSummary {
	var s FinancialSummary
	var disputedAll float64
	for _, o := range objs {
		s.ObjectionCount++
		s.BilledTotal += o.BilledValue
		s.AcceptedTotal += o.AcceptedValue
		disputedAll += o.DisputedValue

		switch o.ConciliationStatus {
		case glosa.ConciliationRatified:
			s.RatifiedTotal += o.DisputedValue
		case glosa.ConciliationLifted:
			s.LiftedTotal += o.DisputedValue
		case glosa.ConciliationPending:
			s.PendingCount++
			s.DisputedRemaining += o.DisputedValue
		}
		if o.ConciliationStatus != glosa.ConciliationLifted {
			s.DisputedTotal += o.DisputedValue
		}
	}
	s.BilledTotal = round2(s.BilledTotal)
	s.DisputedTotal = round2(s.DisputedTotal)
	s.AcceptedTotal = round2(s.AcceptedTotal)
	s.RatifiedTotal = round2(s.RatifiedTotal)
	s.LiftedTotal = round2(s.LiftedTotal)
	s.DisputedRemaining = round2(s.DisputedRemaining)
	s.PercentDisputed = percent(s.DisputedTotal, s.BilledTotal)
	s.PercentRatified = percent(s.RatifiedTotal, disputedAll)
	return s
}

// add accumulates another case's summary; percentages are recomputed from
// the sums.
func (s *FinancialSummary) add(o FinancialSummary) {
	s.BilledTotal = round2(s.BilledTotal + o.BilledTotal)
	s.DisputedTotal = round2(s.DisputedTotal + o.DisputedTotal)
	s.AcceptedTotal = round2(s.AcceptedTotal + o.AcceptedTotal)
	s.RatifiedTotal = round2(s.RatifiedTotal + o.RatifiedTotal)
	s.LiftedTotal = round2(s.LiftedTotal + o.LiftedTotal)
	s.DisputedRemaining = round2(s.DisputedRemaining + o.DisputedRemaining)
	s.ObjectionCount += o.ObjectionCount
	s.PendingCount += o.PendingCount
	s.PercentDisputed = percent(s.DisputedTotal, s.BilledTotal)
	s.PercentRatified = percent(s.RatifiedTotal, s.DisputedTotal+s.LiftedTotal)
}

func percent(part, whole float64) float64 {
	if whole == 0 {
		return 0
	}
	return round2(part / whole * 100)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
