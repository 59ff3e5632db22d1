package scryfall

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	defaultBaseURL   = "https://api.scryfall.com"
	defaultUserAgent = "binderkeep/1.0"
	rateLimitDelay   = 100 * time.Millisecond // 10 req/sec
	requestTimeout   = 30 * time.Second
	maxRetries       = 3
	initialBackoff   = 1 * time.Second
	maxBackoff       = 16 * time.Second

	// maxSearchPages bounds how many result pages SearchCards follows.
	// Exact-name searches rarely exceed one page of 175 printings.
	maxSearchPages = 4
)

// Options configures a Client. Zero values fall back to defaults, except
// MaxRetries where zero disables retries.
type Options struct {
	BaseURL        string
	UserAgent      string
	RateInterval   time.Duration
	Timeout        time.Duration
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Logger         *zap.Logger
}

// DefaultOptions returns the options used by NewClient.
func DefaultOptions() Options {
	return Options{
		BaseURL:        defaultBaseURL,
		UserAgent:      defaultUserAgent,
		RateInterval:   rateLimitDelay,
		Timeout:        requestTimeout,
		MaxRetries:     maxRetries,
		InitialBackoff: initialBackoff,
		MaxBackoff:     maxBackoff,
	}
}

// Client represents a Scryfall API client with rate limiting.
type Client struct {
	httpClient     *http.Client
	rateLimiter    *rate.Limiter
	baseURL        string
	userAgent      string
	maxRetries     int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	logger         *zap.Logger
}

// NewClient creates a new Scryfall API client.
func NewClient(opts Options) *Client {
	def := DefaultOptions()
	if opts.BaseURL == "" {
		opts.BaseURL = def.BaseURL
	}
	if opts.UserAgent == "" {
		opts.UserAgent = def.UserAgent
	}
	if opts.RateInterval <= 0 {
		opts.RateInterval = def.RateInterval
	}
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = def.InitialBackoff
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = def.MaxBackoff
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: opts.Timeout,
		},
		rateLimiter:    rate.NewLimiter(rate.Every(opts.RateInterval), 1),
		baseURL:        opts.BaseURL,
		userAgent:      opts.UserAgent,
		maxRetries:     opts.MaxRetries,
		initialBackoff: opts.InitialBackoff,
		maxBackoff:     opts.MaxBackoff,
		logger:         opts.Logger,
	}
}

// SearchCards runs a full-text search and returns the matching printings in
// Scryfall's order. A query with no matches returns an empty slice, not an error.
func (c *Client) SearchCards(ctx context.Context, query string) ([]Card, error) {
	params := url.Values{}
	params.Set("q", query)
	next := fmt.Sprintf("%s/cards/search?%s", c.baseURL, params.Encode())

	var cards []Card
	for page := 0; page < maxSearchPages && next != ""; page++ {
		var result SearchResult
		if err := c.doRequest(ctx, next, &result); err != nil {
			if IsNotFound(err) {
				return cards, nil
			}
			return nil, fmt.Errorf("failed to search cards with query '%s': %w", query, err)
		}
		cards = append(cards, result.Data...)

		next = ""
		if result.HasMore {
			next = result.NextPage
		}
	}

	return cards, nil
}

// NamedFuzzy performs Scryfall's typo-tolerant single card lookup.
func (c *Client) NamedFuzzy(ctx context.Context, name string) (*Card, error) {
	params := url.Values{}
	params.Set("fuzzy", name)
	endpoint := fmt.Sprintf("%s/cards/named?%s", c.baseURL, params.Encode())

	var card Card
	if err := c.doRequest(ctx, endpoint, &card); err != nil {
		return nil, fmt.Errorf("failed fuzzy lookup for %q: %w", name, err)
	}

	return &card, nil
}

// GetCardBySetNumber retrieves one printing by set code and collector number.
func (c *Client) GetCardBySetNumber(ctx context.Context, setCode, number string) (*Card, error) {
	endpoint := fmt.Sprintf("%s/cards/%s/%s", c.baseURL, url.PathEscape(setCode), url.PathEscape(number))

	var card Card
	if err := c.doRequest(ctx, endpoint, &card); err != nil {
		return nil, fmt.Errorf("failed to get card %s/%s: %w", setCode, number, err)
	}

	return &card, nil
}

// GetSets retrieves a list of all sets.
func (c *Client) GetSets(ctx context.Context) ([]Set, error) {
	endpoint := fmt.Sprintf("%s/sets", c.baseURL)

	var sets SetList
	if err := c.doRequest(ctx, endpoint, &sets); err != nil {
		return nil, fmt.Errorf("failed to get sets: %w", err)
	}

	return sets.Data, nil
}

// doRequest performs an HTTP request with rate limiting and retry logic.
func (c *Client) doRequest(ctx context.Context, endpoint string, result interface{}) error {
	var lastErr error
	backoff := c.initialBackoff

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter error: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("User-Agent", c.userAgent)
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = fmt.Errorf("HTTP request failed: %w", err)

			// Retry on network errors
			if attempt < c.maxRetries {
				if err := sleep(ctx, backoff); err != nil {
					return err
				}
				backoff = min(backoff*2, c.maxBackoff)
				continue
			}
			return lastErr
		}

		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()

		switch resp.StatusCode {
		case http.StatusOK:
			if readErr != nil {
				return fmt.Errorf("failed to read response body: %w", readErr)
			}
			if err := json.Unmarshal(body, result); err != nil {
				return fmt.Errorf("failed to parse JSON response: %w", err)
			}
			return nil

		case http.StatusTooManyRequests:
			lastErr = ErrRateLimited
			if attempt < c.maxRetries {
				wait := backoff
				if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
					if secs, err := strconv.Atoi(retryAfter); err == nil {
						wait = time.Duration(secs) * time.Second
					}
				}
				c.logger.Debug("Scryfall rate limited, backing off",
					zap.Duration("wait", wait), zap.Int("attempt", attempt+1))
				if err := sleep(ctx, wait); err != nil {
					return err
				}
				backoff = min(backoff*2, c.maxBackoff)
				continue
			}

		case http.StatusNotFound:
			return &NotFoundError{URL: endpoint}

		default:
			var apiErr APIError
			if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Details != "" {
				return &apiErr
			}
			return fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
		}
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
