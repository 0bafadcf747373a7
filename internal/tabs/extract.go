package tabs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html"

	"pagepilot/internal/domain"
)

const (
	maxHeadings    = 10
	maxExcerptLen  = 500
	maxDocumentLen = 2 << 20
)

// Extractor reads a structured snapshot from one tab's document.
// Implementations return empty fields for attributes the page does not
// have instead of failing; a single invocation never retries.
type Extractor interface {
	Snapshot(ctx context.Context, tab domain.Tab) (*domain.TabSnapshot, error)
	Analyze(ctx context.Context, tab domain.Tab) (*domain.PageAnalysis, error)
}

// HTTPExtractor fetches the tab's URL and parses the document. It is the
// coordinator-side stand-in for an injected page script and carries the
// same privilege boundary: only the coordinator holds one.
type HTTPExtractor struct {
	client *http.Client
}

// NewHTTPExtractor creates an extractor with the given client, or a
// default with a 10s timeout if nil.
func NewHTTPExtractor(client *http.Client) *HTTPExtractor {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPExtractor{client: client}
}

func (e *HTTPExtractor) fetch(ctx context.Context, pageURL string) (*html.Node, error) {
	if strings.TrimSpace(pageURL) == "" {
		return nil, errors.New("tabs: page url must not be empty")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("tabs: create request: %w", err)
	}
	res, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tabs: fetch %s: %w", pageURL, err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, fmt.Errorf("tabs: fetch %s: unexpected status %d", pageURL, res.StatusCode)
	}
	doc, err := html.Parse(io.LimitReader(res.Body, maxDocumentLen))
	if err != nil {
		return nil, fmt.Errorf("tabs: parse %s: %w", pageURL, err)
	}
	return doc, nil
}

// Snapshot implements Extractor.
func (e *HTTPExtractor) Snapshot(ctx context.Context, tab domain.Tab) (*domain.TabSnapshot, error) {
	doc, err := e.fetch(ctx, tab.URL)
	if err != nil {
		return nil, err
	}
	return snapshotFromDoc(doc, tab), nil
}

// Analyze implements Extractor.
func (e *HTTPExtractor) Analyze(ctx context.Context, tab domain.Tab) (*domain.PageAnalysis, error) {
	doc, err := e.fetch(ctx, tab.URL)
	if err != nil {
		return nil, err
	}
	return analyzeDoc(doc), nil
}

func snapshotFromDoc(doc *html.Node, tab domain.Tab) *domain.TabSnapshot {
	snap := &domain.TabSnapshot{
		URL:   tab.URL,
		Title: strings.TrimSpace(textOf(find(doc, "title"))),
	}
	if snap.Title == "" {
		snap.Title = tab.Title
	}

	walk(doc, func(n *html.Node) {
		if n.Type != html.ElementNode {
			return
		}
		switch n.Data {
		case "meta":
			if snap.MetaDescription == "" &&
				strings.EqualFold(attr(n, "name"), "description") {
				snap.MetaDescription = strings.TrimSpace(attr(n, "content"))
			}
		case "h1", "h2", "h3":
			if len(snap.Headings) < maxHeadings {
				if txt := collapse(textOf(n)); txt != "" {
					snap.Headings = append(snap.Headings, txt)
				}
			}
		}
	})

	if body := find(doc, "body"); body != nil {
		excerpt := collapse(textOf(body))
		if len(excerpt) > maxExcerptLen {
			excerpt = excerpt[:maxExcerptLen]
		}
		snap.ExcerptText = excerpt
	}
	return snap
}

func analyzeDoc(doc *html.Node) *domain.PageAnalysis {
	out := &domain.PageAnalysis{}
	labeled := make(map[string]bool)

	walk(doc, func(n *html.Node) {
		if n.Type != html.ElementNode {
			return
		}
		out.Stats.Elements++
		switch n.Data {
		case "img":
			out.Stats.Images++
			if strings.TrimSpace(attr(n, "src")) == "" {
				ident := collapse(attr(n, "alt"))
				if ident == "" {
					ident = "image without src"
				}
				out.BrokenImages = append(out.BrokenImages, ident)
			}
			if strings.TrimSpace(attr(n, "alt")) == "" {
				out.ImagesMissingAlt++
			}
		case "script":
			out.Stats.Scripts++
		case "link":
			if strings.EqualFold(attr(n, "rel"), "stylesheet") {
				out.Stats.Stylesheets++
			}
		case "a":
			out.Stats.Links++
		case "label":
			if id := attr(n, "for"); id != "" {
				labeled[id] = true
			}
		case "h1", "h2", "h3", "h4", "h5", "h6":
			if txt := collapse(textOf(n)); txt != "" {
				out.HeadingOutline = append(out.HeadingOutline, n.Data+": "+txt)
			}
		}
	})

	walk(doc, func(n *html.Node) {
		if n.Type != html.ElementNode || (n.Data != "input" && n.Data != "select" && n.Data != "textarea") {
			return
		}
		if attr(n, "type") == "hidden" {
			return
		}
		if attr(n, "aria-label") != "" || labeled[attr(n, "id")] {
			return
		}
		out.InputsMissingLabel++
	})

	if body := find(doc, "body"); body != nil {
		out.Stats.TextLength = len(collapse(textOf(body)))
	}
	return out
}

// walk visits every node in document order.
func walk(n *html.Node, fn func(*html.Node)) {
	fn(n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

// find returns the first element with the given tag name, or nil.
func find(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := find(c, tag); found != nil {
			return found
		}
	}
	return nil
}

func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, name) {
			return a.Val
		}
	}
	return ""
}

// textOf concatenates all text nodes under n, skipping script and style
// bodies.
func textOf(n *html.Node) string {
	if n == nil {
		return ""
	}
	var b strings.Builder
	var visit func(*html.Node)
	visit = func(node *html.Node) {
		if node.Type == html.ElementNode && (node.Data == "script" || node.Data == "style") {
			return
		}
		if node.Type == html.TextNode {
			b.WriteString(node.Data)
			b.WriteByte(' ')
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(n)
	return b.String()
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
