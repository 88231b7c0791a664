package html

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/charset"

	"github.com/kirillkom/lessons-learned/internal/core/domain"
	"github.com/kirillkom/lessons-learned/internal/infrastructure/resilience"
)

const DefaultEndpoint = "https://html.duckduckgo.com/html/"

// Selectors locate results on the provider's HTML results page.
type Selectors struct {
	Result  string
	Link    string
	Snippet string
}

var DefaultSelectors = Selectors{
	Result:  ".result",
	Link:    "a.result__a",
	Snippet: ".result__snippet",
}

// Provider scrapes an HTML search results page.
type Provider struct {
	endpoint   string
	selectors  Selectors
	userAgent  string
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(endpoint string, executor *resilience.Executor) *Provider {
	if strings.TrimSpace(endpoint) == "" {
		endpoint = DefaultEndpoint
	}
	return &Provider{
		endpoint:   endpoint,
		selectors:  DefaultSelectors,
		userAgent:  "lessons-learned-search/1.0",
		httpClient: &http.Client{Timeout: 15 * time.Second},
		executor:   executor,
	}
}

func (p *Provider) WithSelectors(s Selectors) *Provider {
	p.selectors = s
	return p
}

func (p *Provider) SearchWeb(ctx context.Context, query string, limit int) ([]domain.WebHit, error) {
	if strings.TrimSpace(query) == "" || limit <= 0 {
		return []domain.WebHit{}, nil
	}

	var hits []domain.WebHit
	call := func(ctx context.Context) error {
		var err error
		hits, err = p.fetch(ctx, query, limit)
		return err
	}
	var err error
	if p.executor == nil {
		err = call(ctx)
	} else {
		err = p.executor.Execute(ctx, "html_search", call, resilience.ClassifyHTTPError)
	}
	if err != nil {
		return nil, resilience.WrapTemporaryIfNeeded("html search", err, resilience.ClassifyHTTPError)
	}
	return hits, nil
}

func (p *Provider) fetch(ctx context.Context, query string, limit int) ([]domain.WebHit, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse search endpoint: %w", err)
	}
	q := u.Query()
	q.Set("q", query)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create search request: %w", err)
	}
	req.Header.Set("User-Agent", p.userAgent)
	req.Header.Set("Accept", "text/html")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("html search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, resilience.NewHTTPStatusError("html", "search", resp)
	}

	body, err := charset.NewReader(resp.Body, resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, fmt.Errorf("detect results charset: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, fmt.Errorf("parse results page: %w", err)
	}
	return p.extract(doc, u, limit), nil
}

func (p *Provider) extract(doc *goquery.Document, base *url.URL, limit int) []domain.WebHit {
	out := make([]domain.WebHit, 0, limit)
	doc.Find(p.selectors.Result).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		link := s.Find(p.selectors.Link).First()
		href, ok := link.Attr("href")
		title := collapseSpace(link.Text())
		if !ok || title == "" {
			return true
		}
		target := resolveResultURL(base, href)
		if target == "" {
			return true
		}
		out = append(out, domain.WebHit{
			Title:   title,
			URL:     target,
			Snippet: collapseSpace(s.Find(p.selectors.Snippet).Text()),
		})
		return len(out) < limit
	})
	return out
}

// resolveResultURL makes the link absolute and unwraps redirect links carrying the target in uddg.
func resolveResultURL(base *url.URL, href string) string {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return ""
	}
	abs := base.ResolveReference(ref)
	if target := abs.Query().Get("uddg"); target != "" {
		abs, err = url.Parse(target)
		if err != nil {
			return ""
		}
	}
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return ""
	}
	return abs.String()
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
