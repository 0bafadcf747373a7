package tabs

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"pagepilot/internal/domain"
)

const samplePage = `<!DOCTYPE html>
<html>
<head>
  <title> Widgets &amp; Gizmos </title>
  <meta name="description" content="All about widgets.">
  <script>console.log("ignored")</script>
</head>
<body>
  <h1>Widgets</h1>
  <h2>Why widgets</h2>
  <p>Widgets are great. <a href="/more">Read more</a></p>
  <img src="/w.png" alt="a widget">
  <img src="" alt="missing picture">
  <img src="/x.png">
  <label for="q">Search</label>
  <input id="q" type="text">
  <input type="text">
  <input type="hidden" name="csrf">
</body>
</html>`

func serve(t *testing.T, body string) (*HTTPExtractor, domain.Tab) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return NewHTTPExtractor(srv.Client()), domain.Tab{ID: 1, URL: srv.URL}
}

func TestSnapshot(t *testing.T) {
	e, tb := serve(t, samplePage)

	snap, err := e.Snapshot(context.Background(), tb)
	require.NoError(t, err)
	require.Equal(t, "Widgets & Gizmos", snap.Title)
	require.Equal(t, tb.URL, snap.URL)
	require.Equal(t, "All about widgets.", snap.MetaDescription)
	require.Equal(t, []string{"Widgets", "Why widgets"}, snap.Headings)
	require.Contains(t, snap.ExcerptText, "Widgets are great.")
	require.NotContains(t, snap.ExcerptText, "ignored", "script bodies never leak into the excerpt")
}

func TestSnapshot_MissingMetaIsAbsentNotFailure(t *testing.T) {
	e, tb := serve(t, `<html><head><title>Bare</title></head><body>hi</body></html>`)

	snap, err := e.Snapshot(context.Background(), tb)
	require.NoError(t, err)
	require.Equal(t, "Bare", snap.Title)
	require.Empty(t, snap.MetaDescription)
	require.Empty(t, snap.Headings)
}

func TestSnapshot_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	e := NewHTTPExtractor(srv.Client())
	_, err := e.Snapshot(context.Background(), domain.Tab{URL: srv.URL})
	require.Error(t, err)
	require.Contains(t, err.Error(), "404")
}

func TestAnalyze(t *testing.T) {
	e, tb := serve(t, samplePage)

	a, err := e.Analyze(context.Background(), tb)
	require.NoError(t, err)
	require.Equal(t, []string{"missing picture"}, a.BrokenImages)
	require.Equal(t, 1, a.ImagesMissingAlt)
	require.Equal(t, 1, a.InputsMissingLabel, "hidden and labelled inputs do not count")
	require.Equal(t, 3, a.Stats.Images)
	require.Equal(t, 1, a.Stats.Links)
	require.Equal(t, []string{"h1: Widgets", "h2: Why widgets"}, a.HeadingOutline)
	require.Positive(t, a.Stats.TextLength)
}
