package domain

import "time"

// AuditMetrics are the raw page-load measurements for one audit run.
// Durations are milliseconds; CumulativeLayoutShift is unitless.
type AuditMetrics struct {
	LoadTime               float64 `json:"loadTime"`
	DOMContentLoaded       float64 `json:"domContentLoaded"`
	FirstPaint             float64 `json:"firstPaint"`
	FirstContentfulPaint   float64 `json:"firstContentfulPaint"`
	LargestContentfulPaint float64 `json:"largestContentfulPaint"`
	CumulativeLayoutShift  float64 `json:"cumulativeLayoutShift"`
}

// AuditScores are 0-100 category scores. Only Performance is computed
// from measurements; the other categories are bounded placeholders and
// must not be read as real signals.
type AuditScores struct {
	Performance   int `json:"performance"`
	Accessibility int `json:"accessibility"`
	BestPractices int `json:"bestPractices"`
	SEO           int `json:"seo"`
	Overall       int `json:"overall"`
}

// AuditResult is the normalized outcome of one audit invocation.
type AuditResult struct {
	URL       string       `json:"url"`
	Title     string       `json:"title,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
	Metrics   AuditMetrics `json:"metrics"`
	Scores    AuditScores  `json:"scores"`
	Mocked    bool         `json:"mocked,omitempty"`
}
