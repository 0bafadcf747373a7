package audit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptrace"
	"strings"
	"time"

	"golang.org/x/net/html"

	"pagepilot/internal/domain"
)

// defaultLoadTimeout bounds the page-load wait. Expiry is not an error:
// collection proceeds with whatever was measured by then.
const defaultLoadTimeout = 15 * time.Second

// HTTPInspector measures page loads over plain HTTP. Paint and layout
// metrics have no browser to report them here, so first paint is
// approximated from time-to-first-byte and layout shift reads as zero;
// the scores stay comparable across runs against the same thresholds.
type HTTPInspector struct {
	client      *http.Client
	loadTimeout time.Duration
}

// NewHTTPInspector creates an inspector. A nil client gets a default
// without its own timeout; the load wait is bounded per session.
func NewHTTPInspector(client *http.Client, loadTimeout time.Duration) *HTTPInspector {
	if client == nil {
		client = &http.Client{}
	}
	if loadTimeout <= 0 {
		loadTimeout = defaultLoadTimeout
	}
	return &HTTPInspector{client: client, loadTimeout: loadTimeout}
}

// Attach opens the background request for url. The returned session must
// be detached on every exit path; the runner guarantees that.
func (i *HTTPInspector) Attach(ctx context.Context, url string) (Session, error) {
	if strings.TrimSpace(url) == "" {
		return nil, errors.New("audit: url must not be empty")
	}

	loadCtx, cancel := context.WithTimeout(ctx, i.loadTimeout)

	start := time.Now()
	var firstByte time.Duration
	trace := &httptrace.ClientTrace{
		GotFirstResponseByte: func() {
			firstByte = time.Since(start)
		},
	}

	req, err := http.NewRequestWithContext(httptrace.WithClientTrace(loadCtx, trace), http.MethodGet, url, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("audit: create request: %w", err)
	}

	res, err := i.client.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("audit: open %s: %w", url, err)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		_ = res.Body.Close()
		cancel()
		return nil, fmt.Errorf("audit: open %s: unexpected status %d", url, res.StatusCode)
	}

	return &httpSession{
		res:       res,
		cancel:    cancel,
		start:     start,
		firstByte: &firstByte,
	}, nil
}

type httpSession struct {
	res       *http.Response
	cancel    context.CancelFunc
	start     time.Time
	firstByte *time.Duration
}

// Collect drains the page, bounded by the session's load timeout. A
// timeout mid-body is not a failure: metrics reflect what loaded.
func (s *httpSession) Collect(_ context.Context) (domain.AuditMetrics, string, error) {
	body, readErr := io.ReadAll(io.LimitReader(s.res.Body, 4<<20))
	if readErr != nil && !errors.Is(readErr, context.DeadlineExceeded) && len(body) == 0 {
		return domain.AuditMetrics{}, "", fmt.Errorf("audit: read page: %w", readErr)
	}
	total := time.Since(s.start)

	ttfb := *s.firstByte
	if ttfb <= 0 {
		ttfb = total
	}

	metrics := domain.AuditMetrics{
		LoadTime:               float64(total.Milliseconds()),
		DOMContentLoaded:       float64(ttfb.Milliseconds()),
		FirstPaint:             float64(ttfb.Milliseconds()),
		FirstContentfulPaint:   float64(ttfb.Milliseconds()),
		LargestContentfulPaint: float64(total.Milliseconds()),
		CumulativeLayoutShift:  0,
	}

	return metrics, pageTitle(body), nil
}

// Detach releases the background request. Runs on success and failure
// paths alike.
func (s *httpSession) Detach() error {
	s.cancel()
	return s.res.Body.Close()
}

func pageTitle(body []byte) string {
	doc, err := html.Parse(strings.NewReader(string(body)))
	if err != nil {
		return ""
	}
	var title string
	var visit func(*html.Node)
	visit = func(n *html.Node) {
		if title != "" {
			return
		}
		if n.Type == html.ElementNode && n.Data == "title" && n.FirstChild != nil {
			title = strings.TrimSpace(n.FirstChild.Data)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(doc)
	return title
}
