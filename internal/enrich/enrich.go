package enrich

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/chromedp/chromedp"
	readability "github.com/go-shiori/go-readability"

	"github.com/leadscope/leadscope/config"
)

// Extract is the readable text pulled from a URL a commenter shared.
type Extract struct {
	URL   string `json:"url"`
	Title string `json:"title"`
	Text  string `json:"text"`
}

// Enricher fetches pages linked from comments and extracts their readable
// text so shared content participates in term matching. Best-effort: any
// failure falls back to the unenriched comment.
type Enricher struct {
	Enabled    bool
	UseBrowser bool
	Timeout    time.Duration
	MaxChars   int
	HTTPClient *http.Client
}

func New(cfg config.EnrichConfig) *Enricher {
	return &Enricher{
		Enabled:    cfg.Enabled,
		UseBrowser: cfg.UseBrowser,
		Timeout:    cfg.Timeout,
		MaxChars:   cfg.MaxChars,
		HTTPClient: &http.Client{Timeout: cfg.Timeout},
	}
}

var urlPattern = regexp.MustCompile(`https?://[^\s<>"')\]]+`)

// ExtractURLs pulls http(s) URLs out of free text, LinkedIn links excluded
// (those are already covered by the scraping client).
func ExtractURLs(text string) []string {
	var out []string
	for _, m := range urlPattern.FindAllString(text, -1) {
		m = strings.TrimRight(m, ".,;")
		u, err := url.Parse(m)
		if err != nil || u.Host == "" {
			continue
		}
		if strings.Contains(u.Host, "linkedin.com") {
			continue
		}
		out = append(out, m)
	}
	return out
}

// FromComment enriches one comment: every shared URL becomes an Extract.
func (e *Enricher) FromComment(ctx context.Context, commentText string) []Extract {
	if e == nil || !e.Enabled {
		return nil
	}
	var out []Extract
	for _, u := range ExtractURLs(commentText) {
		ex, err := e.fetch(ctx, u)
		if err != nil {
			continue
		}
		out = append(out, ex)
	}
	return out
}

func (e *Enricher) fetch(ctx context.Context, pageURL string) (Extract, error) {
	ctx, cancel := context.WithTimeout(ctx, e.Timeout)
	defer cancel()

	var html string
	var err error
	if e.UseBrowser {
		html, err = fetchRendered(ctx, pageURL)
	} else {
		html, err = e.fetchStatic(ctx, pageURL)
	}
	if err != nil {
		return Extract{}, err
	}

	parsed, err := url.Parse(pageURL)
	if err != nil {
		return Extract{}, err
	}
	article, err := readability.FromReader(strings.NewReader(html), parsed)
	if err != nil {
		return Extract{}, err
	}
	text := truncate(strings.TrimSpace(article.TextContent), e.MaxChars)
	return Extract{URL: pageURL, Title: strings.TrimSpace(article.Title), Text: text}, nil
}

// truncate cuts text to at most max bytes without splitting a UTF-8 rune.
func truncate(text string, max int) string {
	if max <= 0 || len(text) <= max {
		return text
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}

func (e *Enricher) fetchStatic(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "leadscope/1.0")
	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("fetch %s: status %d", pageURL, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// fetchRendered drives headless Chrome for pages that only render with JS.
func fetchRendered(ctx context.Context, pageURL string) (string, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.UserAgent("leadscope/1.0"),
	)
	actx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	bctx, cancelBrowser := chromedp.NewContext(actx)
	defer cancelBrowser()

	var html string
	err := chromedp.Run(bctx,
		chromedp.Navigate(pageURL),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		return "", err
	}
	return html, nil
}
