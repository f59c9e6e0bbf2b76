package scraper

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/ledongthuc/pdf"
	"github.com/xhad/newsbot/internal/models"
	"golang.org/x/time/rate"
)

const defaultMaxBodyBytes = 10 << 20

type ScraperConfig struct {
	RateLimit    float64 // requests per second
	Timeout      time.Duration
	UserAgent    string
	MaxBodyBytes int64
	// Strict aborts the whole fetch on the first failing URL instead of skipping it.
	Strict     bool
	OnProgress func(url string)
}

type Scraper struct {
	config  ScraperConfig
	client  *http.Client
	limiter *rate.Limiter
}

func NewWithConfig(config ScraperConfig) *Scraper {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.RateLimit == 0 {
		config.RateLimit = 2 // 2 requests per second by default
	}
	if config.UserAgent == "" {
		config.UserAgent = "newsbot/1.0"
	}
	if config.MaxBodyBytes == 0 {
		config.MaxBodyBytes = defaultMaxBodyBytes
	}

	return &Scraper{
		config: config,
		client: &http.Client{
			Timeout: config.Timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
	}
}

func New() *Scraper {
	return NewWithConfig(ScraperConfig{})
}

// NormalizeURL trims the input and adds an https scheme when none is given.
func NormalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("empty URL")
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("malformed URL %q: %w", raw, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q in %s", parsed.Scheme, raw)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("missing host in %s", raw)
	}
	return parsed.String(), nil
}

// Fetch retrieves every URL in order and returns one Document per URL whose
// text could be extracted.
func (s *Scraper) Fetch(ctx context.Context, urls []string) ([]models.Document, error) {
	var documents []models.Document

	for _, raw := range urls {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		if s.config.OnProgress != nil {
			s.config.OnProgress(raw)
		}

		doc, err := s.fetchOne(ctx, raw)
		if err != nil {
			if s.config.Strict || ctx.Err() != nil {
				return nil, err
			}
			log.Printf("Skipping %s: %v", raw, err)
			continue
		}
		documents = append(documents, doc)
	}

	return documents, nil
}

func (s *Scraper) fetchOne(ctx context.Context, raw string) (models.Document, error) {
	urlStr, err := NormalizeURL(raw)
	if err != nil {
		return models.Document{}, err
	}

	// Apply rate limiting
	if err := s.limiter.Wait(ctx); err != nil {
		return models.Document{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return models.Document{}, err
	}
	req.Header.Set("User-Agent", s.config.UserAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return models.Document{}, fmt.Errorf("fetch %s: %w", urlStr, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.Document{}, fmt.Errorf("received status code %d for URL: %s", resp.StatusCode, urlStr)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, s.config.MaxBodyBytes))
	if err != nil {
		return models.Document{}, fmt.Errorf("read %s: %w", urlStr, err)
	}

	contentType := resp.Header.Get("Content-Type")
	title, content, err := extract(contentType, body)
	if err != nil {
		return models.Document{}, fmt.Errorf("extract %s: %w", urlStr, err)
	}
	if strings.TrimSpace(content) == "" {
		return models.Document{}, fmt.Errorf("no text content at %s", urlStr)
	}

	return models.Document{
		URL:     urlStr,
		Title:   title,
		Content: content,
		Metadata: map[string]interface{}{
			"time":         time.Now(),
			"contentType":  contentType,
			"lastModified": resp.Header.Get("Last-Modified"),
		},
	}, nil
}

func extract(contentType string, body []byte) (title, content string, err error) {
	mediaType, _, _ := mime.ParseMediaType(contentType)
	switch {
	case mediaType == "application/pdf" || bytes.HasPrefix(body, []byte("%PDF-")):
		content, err = extractPDF(body)
		return "", content, err
	case mediaType == "text/plain":
		return "", normalizeNewlines(string(body)), nil
	default:
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
		if err != nil {
			return "", "", err
		}
		return strings.TrimSpace(doc.Find("title").First().Text()), extractMainContent(doc), nil
	}
}

func extractPDF(body []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	text, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, text); err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	return normalizeNewlines(buf.String()), nil
}

func normalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}
