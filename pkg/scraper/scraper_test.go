package scraper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const articleHTML = `
<html>
	<head><title>Test Page</title><style>body { color: red; }</style></head>
	<body>
		<nav><a href="/">Home</a></nav>
		<article>
			<h1>Test   Content</h1>
			<p>This is a test
			   paragraph.</p>
			<p>Second paragraph.</p>
			<ul><li><p>Nested item.</p></li></ul>
			<p>Accept Cookies</p>
			<script>var x = 1;</script>
		</article>
		<footer>Copyright</footer>
	</body>
</html>`

const mixedHTML = `
<html><body>
	<article>
		<h1>Rates decision</h1>
		<div>The central bank raised rates <span>by half a point</span> on Tuesday.</div>
		<ul><li>Intro text <p>nested para</p></li></ul>
		<div class="byline">Reporting by <a href="/staff">A. Writer</a><br>Edited by B. Editor</div>
		<!-- ad slot -->
	</article>
</body></html>`

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/article", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(articleHTML))
	})
	mux.HandleFunc("/mixed", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(mixedHTML))
	})
	mux.HandleFunc("/plain", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("Line one.\r\n\r\nLine two."))
	})
	mux.HandleFunc("/empty", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html><body><script>only()</script></body></html>"))
	})
	mux.HandleFunc("/broken.pdf", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte("not really a pdf"))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func testScraper(strict bool, onProgress func(string)) *Scraper {
	return NewWithConfig(ScraperConfig{
		RateLimit:  100,
		Timeout:    5 * time.Second,
		Strict:     strict,
		OnProgress: onProgress,
	})
}

func TestScraperConfig(t *testing.T) {
	s := New()
	assert.Equal(t, 30*time.Second, s.config.Timeout)
	assert.Equal(t, 2.0, s.config.RateLimit)
	assert.Equal(t, int64(defaultMaxBodyBytes), s.config.MaxBodyBytes)
	assert.Equal(t, "newsbot/1.0", s.config.UserAgent)
	assert.False(t, s.config.Strict)
}

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"https://example.com/a", "https://example.com/a", false},
		{"  http://example.com/a  ", "http://example.com/a", false},
		{"example.com/news", "https://example.com/news", false},
		{"", "", true},
		{"ftp://example.com/file", "", true},
		{"https://", "", true},
		{"http://exa mple.com", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NormalizeURL(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFetchHTML(t *testing.T) {
	server := newTestServer(t)
	s := testScraper(false, nil)

	docs, err := s.Fetch(context.Background(), []string{server.URL + "/article"})
	require.NoError(t, err)
	require.Len(t, docs, 1)

	doc := docs[0]
	assert.Equal(t, server.URL+"/article", doc.URL)
	assert.Equal(t, "Test Page", doc.Title)
	assert.Equal(t, "Test Content\nThis is a test paragraph.\n\nSecond paragraph.\n\nNested item.", doc.Content)
	assert.NotContains(t, doc.Content, "var x")
	assert.NotContains(t, doc.Content, "Home")
	assert.Contains(t, doc.Metadata["contentType"], "text/html")
}

func TestFetchHTMLKeepsTextOutsideLeafBlocks(t *testing.T) {
	server := newTestServer(t)
	s := testScraper(false, nil)

	docs, err := s.Fetch(context.Background(), []string{server.URL + "/mixed"})
	require.NoError(t, err)
	require.Len(t, docs, 1)

	assert.Equal(t, "Rates decision\n"+
		"The central bank raised rates by half a point on Tuesday.\n\n"+
		"Intro text\n\n"+
		"nested para\n\n"+
		"Reporting by A. Writer\n\n"+
		"Edited by B. Editor", docs[0].Content)
	assert.NotContains(t, docs[0].Content, "ad slot")
}

func TestJoinParagraphs(t *testing.T) {
	got := joinParagraphs([]paragraph{
		{text: "Markets", tag: "h2"},
		{text: "Stocks fell.", tag: "p"},
		{text: "First point", tag: "li"},
		{text: "Second point", tag: "li"},
		{text: "Closing words.", tag: "p"},
	})
	assert.Equal(t, "Markets\nStocks fell.\n\nFirst point\nSecond point\n\nClosing words.", got)
	assert.Empty(t, joinParagraphs(nil))
}

func TestFetchPlainText(t *testing.T) {
	server := newTestServer(t)
	s := testScraper(false, nil)

	docs, err := s.Fetch(context.Background(), []string{server.URL + "/plain"})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "Line one.\n\nLine two.", docs[0].Content)
}

func TestFetchSkipsFailuresByDefault(t *testing.T) {
	server := newTestServer(t)
	var seen []string
	s := testScraper(false, func(url string) { seen = append(seen, url) })

	docs, err := s.Fetch(context.Background(), []string{
		server.URL + "/missing",
		"",
		server.URL + "/empty",
		server.URL + "/broken.pdf",
		"ftp://example.com/x",
		server.URL + "/article",
	})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, server.URL+"/article", docs[0].URL)
	assert.Len(t, seen, 5)
}

func TestFetchStrictAbortsOnFailure(t *testing.T) {
	server := newTestServer(t)
	s := testScraper(true, nil)

	docs, err := s.Fetch(context.Background(), []string{
		server.URL + "/article",
		server.URL + "/missing",
	})
	require.Error(t, err)
	assert.Nil(t, docs)
	assert.True(t, strings.Contains(err.Error(), "404"))
}

func TestFetchHonoursCancelledContext(t *testing.T) {
	server := newTestServer(t)
	s := testScraper(false, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Fetch(ctx, []string{server.URL + "/article"})
	assert.Error(t, err)
}
