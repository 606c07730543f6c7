package scraper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/razfaz/razfaz/internal/league"
	"github.com/razfaz/razfaz/internal/logger"
)

const (
	DefaultURLTemplate = "https://www.svrz.ch/index.php?id=73&nextPage=2&group_ID=%s"
	UserAgent          = "razfaz-relay/1.0 (github.com/razfaz/razfaz)"
	Timeout            = 30 * time.Second
	DefaultMaxRetries  = 3

	maxBodyBytes = 8 << 20
)

// ErrPageTooLarge is returned when a page exceeds the body size limit
var ErrPageTooLarge = errors.New("page too large")

// Fetcher downloads league pages and scrapes them
type Fetcher struct {
	client      *http.Client
	scraper     *Scraper
	urlTemplate string
	proxy       string
	maxRetries  uint64
	newBackOff  func() backoff.BackOff
}

// FetcherOption configures a Fetcher
type FetcherOption func(*Fetcher)

// WithURLTemplate overrides the league URL template. It must contain one %s for the league id.
func WithURLTemplate(template string) FetcherOption {
	return func(f *Fetcher) {
		if template != "" {
			f.urlTemplate = template
		}
	}
}

// WithProxy prefixes every request URL, e.g. "https://crossorigin.me/"
func WithProxy(prefix string) FetcherOption {
	return func(f *Fetcher) {
		f.proxy = prefix
	}
}

// WithTimeout sets the per-request HTTP timeout
func WithTimeout(d time.Duration) FetcherOption {
	return func(f *Fetcher) {
		if d > 0 {
			f.client.Timeout = d
		}
	}
}

// WithMaxRetries sets how many times a transient failure is retried
func WithMaxRetries(n int) FetcherOption {
	return func(f *Fetcher) {
		if n >= 0 {
			f.maxRetries = uint64(n)
		}
	}
}

// WithHTTPClient replaces the HTTP client
func WithHTTPClient(c *http.Client) FetcherOption {
	return func(f *Fetcher) {
		if c != nil {
			f.client = c
		}
	}
}

// NewFetcher creates a Fetcher for the SVRZ league site
func NewFetcher(sc *Scraper, opts ...FetcherOption) *Fetcher {
	if sc == nil {
		sc = New()
	}
	f := &Fetcher{
		client:      &http.Client{Timeout: Timeout},
		scraper:     sc,
		urlTemplate: DefaultURLTemplate,
		maxRetries:  DefaultMaxRetries,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxElapsedTime = time.Minute
			return b
		},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// URL returns the page URL for leagueID, without the proxy prefix
func (f *Fetcher) URL(leagueID string) string {
	return URLFromLeagueID(f.urlTemplate, leagueID)
}

// Fetch downloads and scrapes the league page for leagueID. When the page
// itself carries no league id, leagueID is used.
func (f *Fetcher) Fetch(ctx context.Context, leagueID string) (*league.Info, error) {
	pageURL := f.URL(leagueID)

	body, err := f.FetchHTML(ctx, leagueID)
	if err != nil {
		return nil, err
	}

	info, err := f.scraper.parseLeague(bytes.NewReader(body), pageURL)
	if errors.Is(err, ErrNoLeagueID) {
		info.LeagueID = leagueID
		err = nil
	}
	if err != nil {
		return nil, fmt.Errorf("scraping league %s: %w", leagueID, err)
	}

	return info, nil
}

// FetchHTML downloads the raw league page, retrying network errors and 5xx responses
func (f *Fetcher) FetchHTML(ctx context.Context, leagueID string) ([]byte, error) {
	reqURL := f.proxy + f.URL(leagueID)
	start := time.Now()
	attempt := 0

	var body []byte
	operation := func() error {
		attempt++
		if attempt > 1 {
			logger.IncrCounter("scraper.fetch_retries")
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("creating request: %w", err))
		}
		req.Header.Set("User-Agent", UserAgent)

		resp, err := f.client.Do(req)
		if err != nil {
			return fmt.Errorf("fetching page: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			return backoff.Permanent(fmt.Errorf("unexpected status code: %d", resp.StatusCode))
		}

		body, err = io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
		if err != nil {
			return fmt.Errorf("reading body: %w", err)
		}
		if len(body) > maxBodyBytes {
			return backoff.Permanent(fmt.Errorf("%w: over %d bytes", ErrPageTooLarge, maxBodyBytes))
		}
		return nil
	}

	b := backoff.WithContext(backoff.WithMaxRetries(f.newBackOff(), f.maxRetries), ctx)
	if err := backoff.Retry(operation, b); err != nil {
		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			err = permanent.Err
		}
		logger.IncrCounter("scraper.fetch_failures")
		logger.Warn("league fetch failed", logger.Fields{
			"league_id": leagueID,
			"url":       reqURL,
			"attempts":  attempt,
			"error":     err.Error(),
		})
		return nil, err
	}

	logger.RecordTiming("scraper.fetch", time.Since(start))
	logger.Debug("league fetched", logger.Fields{
		"league_id": leagueID,
		"bytes":     len(body),
		"attempts":  attempt,
	})
	return body, nil
}
