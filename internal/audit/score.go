package audit

import (
	"math/rand"

	"pagepilot/internal/domain"
)

// Metric thresholds (milliseconds except CLS) and the independent
// penalty cap applied when a metric exceeds its threshold.
const (
	fcpThreshold  = 1800.0
	lcpThreshold  = 2500.0
	loadThreshold = 3000.0
	clsThreshold  = 0.1

	fcpPenaltyCap  = 30.0
	lcpPenaltyCap  = 35.0
	loadPenaltyCap = 25.0
	clsPenaltyCap  = 15.0
)

// ScoreMetrics derives the category scores from measured metrics. Only
// the performance score is computed; accessibility, best-practices and
// SEO are unmeasured placeholders bounded to a plausible range and must
// not be treated as real signals.
func ScoreMetrics(m domain.AuditMetrics) domain.AuditScores {
	scores := domain.AuditScores{
		Performance:   performanceScore(m),
		Accessibility: placeholderScore(),
		BestPractices: placeholderScore(),
		SEO:           placeholderScore(),
	}
	scores.Overall = overall(scores)
	return scores
}

// performanceScore starts at 100 and subtracts a capped penalty per
// metric over its threshold, floored at 0.
func performanceScore(m domain.AuditMetrics) int {
	score := 100.0
	score -= penalty(m.FirstContentfulPaint, fcpThreshold, 50, fcpPenaltyCap)
	score -= penalty(m.LargestContentfulPaint, lcpThreshold, 50, lcpPenaltyCap)
	score -= penalty(m.LoadTime, loadThreshold, 100, loadPenaltyCap)
	score -= penalty(m.CumulativeLayoutShift*1000, clsThreshold*1000, 10, clsPenaltyCap)
	if score < 0 {
		score = 0
	}
	return int(score)
}

// penalty scales linearly with how far value exceeds threshold and is
// capped independently of the other penalties.
func penalty(value, threshold, perUnit, limit float64) float64 {
	if value <= threshold {
		return 0
	}
	p := (value - threshold) / perUnit
	if p > limit {
		return limit
	}
	return p
}

// placeholderScore is the bounded stand-in for the unmeasured
// categories: 70-100.
func placeholderScore() int {
	return 70 + rand.Intn(31)
}

func overall(s domain.AuditScores) int {
	return (s.Performance + s.Accessibility + s.BestPractices + s.SEO) / 4
}
