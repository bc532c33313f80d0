// Package extract fetches a page and reduces it to a title and readable
// body text for topic extraction and embedding.
package extract

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/matthewjhunter/onboard/internal/metrics"
)

const (
	defaultTimeout  = 8 * time.Second
	defaultMaxChars = 10000
	defaultAgent    = "OnboardBot/1.0"
	retryDelay      = 100 * time.Millisecond
	maxBodyBytes    = 5 << 20
)

// Result is the outcome of one extraction. A failed fetch yields the URL as
// the title and an empty text.
type Result struct {
	Title       string
	Text        string
	ContentHash string
	Degraded    bool
}

// Options configures an Extractor. Zero values select defaults.
type Options struct {
	Timeout       time.Duration
	MaxChars      int
	RatePerSecond float64
	UserAgent     string
	Client        *http.Client
}

// Extractor fetches pages politely: requests are rate limited and a circuit
// breaker stops hammering an unreachable network.
type Extractor struct {
	client    *http.Client
	limiter   *rate.Limiter
	cb        *gobreaker.CircuitBreaker[string]
	strip     *bluemonday.Policy
	maxChars  int
	userAgent string
	log       zerolog.Logger
}

// New creates an Extractor.
func New(opts Options, log zerolog.Logger) *Extractor {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.MaxChars <= 0 {
		opts.MaxChars = defaultMaxChars
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultAgent
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	limit := rate.Inf
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
	}

	e := &Extractor{
		client:    client,
		limiter:   rate.NewLimiter(limit, 1),
		strip:     bluemonday.StrictPolicy(),
		maxChars:  opts.MaxChars,
		userAgent: opts.UserAgent,
		log:       log,
	}
	e.cb = gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        "extract",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 10
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
		},
	})
	return e
}

// Extract fetches rawURL and returns its readable content. It never fails;
// fetch problems produce a degraded result.
func (e *Extractor) Extract(ctx context.Context, rawURL string) Result {
	page, err := e.fetch(ctx, rawURL)
	if err != nil {
		e.log.Debug().Err(err).Str("url", rawURL).Msg("first fetch failed, retrying")
		select {
		case <-ctx.Done():
		case <-time.After(retryDelay):
			page, err = e.fetch(ctx, rawURL)
		}
	}

	var title, text string
	degraded := false
	if err != nil || page == "" {
		if err != nil {
			e.log.Debug().Err(err).Str("url", rawURL).Msg("extraction degraded")
		}
		title = rawURL
		degraded = true
		metrics.ExtractRequests.WithLabelValues("degraded").Inc()
	} else {
		title, text = e.readable(page, rawURL)
		metrics.ExtractRequests.WithLabelValues("ok").Inc()
	}

	text = truncateRunes(text, e.maxChars)
	return Result{
		Title:       title,
		Text:        text,
		ContentHash: ContentHash(title, text),
		Degraded:    degraded,
	}
}

// Offline never touches the network. Every result is the degraded one:
// the URL as title and no text.
type Offline struct{}

func (Offline) Extract(_ context.Context, rawURL string) Result {
	return Result{Title: rawURL, ContentHash: ContentHash(rawURL, ""), Degraded: true}
}

// ContentHash is the hex SHA-256 of the trimmed title and text joined by a
// blank line.
func ContentHash(title, text string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(title) + "\n\n" + strings.TrimSpace(text)))
	return hex.EncodeToString(sum[:])
}

func (e *Extractor) fetch(ctx context.Context, rawURL string) (string, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return e.cb.Execute(func() (string, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return "", fmt.Errorf("failed to create request for %s: %w", rawURL, err)
		}
		req.Header.Set("User-Agent", e.userAgent)

		resp, err := e.client.Do(req)
		if err != nil {
			return "", fmt.Errorf("failed to fetch %s: %w", rawURL, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return "", fmt.Errorf("%s returned status %d", rawURL, resp.StatusCode)
		}
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return "", fmt.Errorf("failed to read %s: %w", rawURL, err)
		}
		return string(body), nil
	})
}

// readable runs readability over page, falling back to the <title> element
// and tag-stripped markup when it finds no article.
func (e *Extractor) readable(page, rawURL string) (string, string) {
	pageURL, _ := url.Parse(rawURL)
	article, err := readability.FromReader(strings.NewReader(page), pageURL)
	if err == nil {
		title := strings.TrimSpace(article.Title)
		text := collapseSpace(article.TextContent)
		if title == "" {
			title = basicTitle(page)
		}
		if text != "" {
			return title, text
		}
		return title, e.stripHTML(page)
	}
	e.log.Debug().Err(err).Str("url", rawURL).Msg("readability failed")
	return basicTitle(page), e.stripHTML(page)
}

func (e *Extractor) stripHTML(page string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err == nil {
		doc.Find("script, style, noscript").Remove()
		if h, err := doc.Html(); err == nil {
			page = h
		}
	}
	return collapseSpace(unescape(e.strip.Sanitize(page)))
}

func basicTitle(page string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}

// unescape reverses the entity escaping bluemonday applies to text nodes.
func unescape(s string) string {
	return html.UnescapeString(s)
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncateRunes(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
