// Package download fetches conference paper listings from the public
// conference virtual-site API.
package download

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/matsen/paperchat/internal/logging"
	"github.com/matsen/paperchat/internal/paper"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL serves {conference}-{year}-orals-posters.json files.
	DefaultBaseURL = "https://neurips.cc/static/virtual/data"

	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 60 * time.Second

	// DefaultRateLimit is requests per second against the conference site.
	DefaultRateLimit = 2.0

	// maxBodySize bounds a single listing download.
	maxBodySize = 256 << 20
)

// Client is a rate-limited HTTP client for conference listings with an on-disk cache.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	baseURL    string
	cacheDir   string
	log        *logrus.Entry
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithBaseURL sets a custom base URL (for testing or mirrors).
func WithBaseURL(url string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(url, "/")
	}
}

// WithCacheDir enables caching raw responses in dir.
func WithCacheDir(dir string) ClientOption {
	return func(c *Client) {
		c.cacheDir = dir
	}
}

// WithRateLimit sets the maximum request rate in requests per second.
// A non-positive value disables limiting.
func WithRateLimit(perSecond float64) ClientOption {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
}

// WithLogger sets the logger.
func WithLogger(log *logrus.Entry) ClientOption {
	return func(c *Client) {
		c.log = log
	}
}

// NewClient creates a new download client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: DefaultTimeout},
		limiter:    rate.NewLimiter(rate.Limit(DefaultRateLimit), 1),
		baseURL:    DefaultBaseURL,
		log:        logging.NewLogger("download"),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// FileName returns the listing file name for a conference and year.
func FileName(conference string, year int) string {
	return fmt.Sprintf("%s-%d-orals-posters.json", strings.ToLower(conference), year)
}

// URL returns the listing URL for a conference and year.
func (c *Client) URL(conference string, year int) string {
	return c.baseURL + "/" + FileName(conference, year)
}

// CachePath returns where the raw listing is cached, or "" when caching is off.
func (c *Client) CachePath(conference string, year int) string {
	if c.cacheDir == "" {
		return ""
	}
	return filepath.Join(c.cacheDir, FileName(conference, year))
}

// Fetch downloads (or reads from cache) the listing for a conference and
// year and maps it to papers. A cached listing is reused unless force is set.
func (c *Client) Fetch(ctx context.Context, conference string, year int, force bool) ([]paper.Paper, *FetchStats, error) {
	stats := &FetchStats{}
	log := c.log.WithFields(logrus.Fields{"conference": conference, "year": year})

	body, fromCache, err := c.readCache(conference, year, force)
	if err != nil {
		return nil, nil, err
	}
	if fromCache {
		log.WithField("path", c.CachePath(conference, year)).Debug("using cached listing")
		stats.FromCache = true
	} else {
		body, err = c.get(ctx, c.URL(conference, year))
		if err != nil {
			return nil, nil, err
		}
	}

	resp, err := parseResponse(body)
	if err != nil {
		return nil, nil, err
	}

	// Cache only bodies that parsed, so a bad response is never replayed.
	if !fromCache {
		if err := c.writeCache(conference, year, body); err != nil {
			log.WithError(err).Warn("failed to cache listing")
		}
	}

	papers, skipped := MapPapers(resp.Results, conference, year)
	stats.Received = len(resp.Results)
	stats.Mapped = len(papers)
	stats.Skipped = skipped

	log.WithFields(logrus.Fields{
		"received":   stats.Received,
		"mapped":     stats.Mapped,
		"skipped":    stats.Skipped,
		"from_cache": stats.FromCache,
	}).Info("fetched conference listing")

	return papers, stats, nil
}

func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	c.log.WithField("url", url).Debug("downloading listing")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetworkError, err)
	}
	defer resp.Body.Close()

	if err := checkHTTPErrors(resp, url); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %v", ErrNetworkError, err)
	}
	return body, nil
}

// checkHTTPErrors returns an error if the HTTP response indicates a problem.
func checkHTTPErrors(resp *http.Response, url string) error {
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, url)
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: status %d", ErrRateLimited, resp.StatusCode)
	case resp.StatusCode >= 400:
		return &APIError{StatusCode: resp.StatusCode, URL: url}
	}
	return nil
}

func parseResponse(body []byte) (*Response, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrInvalidResponse)
	}

	var resp Response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if resp.Results == nil {
		return nil, fmt.Errorf("%w: missing results", ErrInvalidResponse)
	}
	return &resp, nil
}

func (c *Client) readCache(conference string, year int, force bool) ([]byte, bool, error) {
	path := c.CachePath(conference, year)
	if path == "" || force {
		return nil, false, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("reading cache: %w", err)
	}
	return data, true, nil
}

func (c *Client) writeCache(conference string, year int, body []byte) error {
	path := c.CachePath(conference, year)
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating cache dir: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, body, 0644); err != nil {
		return fmt.Errorf("writing cache: %w", err)
	}
	return os.Rename(tmp, path)
}
