package crawler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gocolly/colly"
	"golang.org/x/time/rate"
)

// Scraper is the HTTP capability: one GET at a time per call, carrying the
// caller's identity as User-Agent. Safe for concurrent use.
type Scraper struct {
	c       *colly.Collector
	limiter *rate.Limiter
}

// NewScraper builds a Scraper. requestsPerSecond <= 0 disables pacing.
func NewScraper(timeout time.Duration, requestsPerSecond float64) *Scraper {
	c := colly.NewCollector()
	c.AllowURLRevisit = true
	if timeout > 0 {
		c.SetRequestTimeout(timeout)
	}

	s := &Scraper{c: c}
	if requestsPerSecond > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), 1)
	}
	return s
}

// Get fetches url and returns the response body. Transport failures and
// non-2xx statuses are returned as errors.
func (s *Scraper) Get(ctx context.Context, url, userAgent string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	// Callbacks are per collector, so every request gets its own clone
	// sharing the underlying HTTP backend.
	c := s.c.Clone()
	c.AllowURLRevisit = true

	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("User-Agent", userAgent)
		r.Headers.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
		r.Headers.Set("Accept-Language", "en-US,en;q=0.5")
		r.Headers.Set("DNT", "1")
		r.Headers.Set("Connection", "keep-alive")
		r.Headers.Set("Upgrade-Insecure-Requests", "1")
	})

	var body []byte
	c.OnResponse(func(r *colly.Response) {
		body = r.Body
	})

	if err := c.Visit(url); err != nil {
		return nil, fmt.Errorf("get %s: %w", url, err)
	}
	if body == nil {
		return nil, errors.New("get " + url + ": empty response")
	}
	return body, nil
}
