// Package audit produces normalized page-performance results, either by
// live measurement or by a plausible mock when measurement is
// unavailable. The feature never fails outright: the mock path
// guarantees a well-formed result.
package audit

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"pagepilot/internal/domain"
)

// ErrAuditInFlight rejects a run while another is in progress.
// Concurrent requests are rejected, not queued.
var ErrAuditInFlight = errors.New("audit: an audit is already in progress")

// ErrNoURL is returned when no URL was given and none could be resolved.
var ErrNoURL = errors.New("audit: no url to audit")

// Inspector acquires a privileged inspection session on a page.
// Implementations open whatever background resource they need in Attach
// and release it in Session.Detach; the runner guarantees Detach runs on
// every exit path.
type Inspector interface {
	Attach(ctx context.Context, url string) (Session, error)
}

// Session is one attached inspection.
type Session interface {
	// Collect waits for the page to load, bounded by the configured
	// timeout, and returns the measured metrics plus the page title.
	Collect(ctx context.Context) (domain.AuditMetrics, string, error)
	Detach() error
}

// URLResolver supplies "the current web page" when Run is called without
// a URL.
type URLResolver func() (string, error)

// Runner orchestrates audits with single-run concurrency: a boolean
// guard, not a queue.
type Runner struct {
	inspector Inspector
	resolve   URLResolver
	logger    *slog.Logger

	inFlight atomic.Bool

	lastMu sync.Mutex
	last   *domain.AuditResult
}

// NewRunner creates a Runner. A nil inspector makes every run take the
// mock path; a nil resolver makes URL-less runs fail with ErrNoURL.
func NewRunner(inspector Inspector, resolve URLResolver, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{inspector: inspector, resolve: resolve, logger: logger}
}

// Run audits url, falling back to the current web page when url is
// empty and to the mock generator when live measurement fails for any
// reason.
func (r *Runner) Run(ctx context.Context, url string) (domain.AuditResult, error) {
	if !r.inFlight.CompareAndSwap(false, true) {
		return domain.AuditResult{}, ErrAuditInFlight
	}
	defer r.inFlight.Store(false)

	if url == "" {
		if r.resolve == nil {
			return domain.AuditResult{}, ErrNoURL
		}
		resolved, err := r.resolve()
		if err != nil {
			return domain.AuditResult{}, err
		}
		url = resolved
	}

	result, err := r.live(ctx, url)
	if err != nil {
		r.logger.Warn("live audit failed, using mock result", "url", url, "err", err)
		result = MockResult(url)
	}

	r.lastMu.Lock()
	r.last = &result
	r.lastMu.Unlock()
	return result, nil
}

// Last returns the most recent result, if any. Only the latest is kept.
func (r *Runner) Last() (domain.AuditResult, bool) {
	r.lastMu.Lock()
	defer r.lastMu.Unlock()
	if r.last == nil {
		return domain.AuditResult{}, false
	}
	return *r.last, true
}

func (r *Runner) live(ctx context.Context, url string) (domain.AuditResult, error) {
	if r.inspector == nil {
		return domain.AuditResult{}, errors.New("audit: no inspector configured")
	}

	session, err := r.inspector.Attach(ctx, url)
	if err != nil {
		return domain.AuditResult{}, err
	}
	defer func() {
		if detachErr := session.Detach(); detachErr != nil {
			r.logger.Warn("inspection session detach failed", "url", url, "err", detachErr)
		}
	}()

	metrics, title, err := session.Collect(ctx)
	if err != nil {
		return domain.AuditResult{}, err
	}

	return domain.AuditResult{
		URL:       url,
		Title:     title,
		Timestamp: time.Now(),
		Metrics:   metrics,
		Scores:    ScoreMetrics(metrics),
	}, nil
}
