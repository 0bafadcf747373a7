package audit

import (
	"math/rand"
	"time"

	"pagepilot/internal/domain"
)

// MockResult generates a fully-populated result with every field inside
// realistic bounds. Used whenever the live measurement path is
// unavailable or fails, so the feature always yields a usable result.
func MockResult(url string) domain.AuditResult {
	loadTime := randRange(800, 4000)
	dcl := loadTime * randRange(0.5, 0.8)
	fp := randRange(300, 1500)
	fcp := fp + randRange(50, 500)
	lcp := fcp + randRange(200, 1500)

	metrics := domain.AuditMetrics{
		LoadTime:               loadTime,
		DOMContentLoaded:       dcl,
		FirstPaint:             fp,
		FirstContentfulPaint:   fcp,
		LargestContentfulPaint: lcp,
		CumulativeLayoutShift:  randRange(0, 0.25),
	}

	return domain.AuditResult{
		URL:       url,
		Timestamp: time.Now(),
		Metrics:   metrics,
		Scores:    ScoreMetrics(metrics),
		Mocked:    true,
	}
}

func randRange(lo, hi float64) float64 {
	return lo + rand.Float64()*(hi-lo)
}
