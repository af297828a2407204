package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"

	"cve-crawler/internal/extract"
	"cve-crawler/pkg/models"
	"cve-crawler/pkg/util"
)

// ErrUnflushed is returned by Run when records were still waiting for
// storage after the last listing root.
var ErrUnflushed = errors.New("records left unflushed")

// Options configures a crawl run.
type Options struct {
	Roots             []string        `mapstructure:"roots"`
	UserAgents        []string        `mapstructure:"user_agents"`
	EntryBaseURL      string          `mapstructure:"entry_base_url"`
	Concurrency       int             `mapstructure:"concurrency"`
	ListingRetries    int             `mapstructure:"listing_retries"`
	ListingRetryDelay time.Duration   `mapstructure:"listing_retry_delay"`
	RotateEvery       int             `mapstructure:"rotate_every"`
	FlushEvery        int             `mapstructure:"flush_every"`
	StartPage         int             `mapstructure:"start_page"`
	MaxPages          int             `mapstructure:"max_pages"`
	RequestTimeout    time.Duration   `mapstructure:"request_timeout"`
	FlushTimeout      time.Duration   `mapstructure:"flush_timeout"`
	RequestsPerSecond float64         `mapstructure:"requests_per_second"`
	RespectRobots     bool            `mapstructure:"respect_robots"`
	SkipCrawled       bool            `mapstructure:"skip_crawled"`
	Listing           ListingGrammar  `mapstructure:"listing"`
	Extract           extract.Grammar `mapstructure:"extract"`
}

// Flusher persists a batch of records, returning once it is done.
type Flusher interface {
	Flush(ctx context.Context, records []models.VulnerabilityRecord) error
}

// CrawlCache remembers crawled entries and robots.txt bodies across runs.
type CrawlCache interface {
	HasCrawledURL(ctx context.Context, url string) (bool, error)
	SetCrawledURL(ctx context.Context, url string) error
	GetRobotsTXT(ctx context.Context, domain string) (string, bool, error)
	SetRobotsTXT(ctx context.Context, domain string, content string) error
}

// Summary describes a finished run.
type Summary struct {
	Pages    int
	Entries  int
	Records  int
	Failures []Failure
}

// Coordinator drives the crawl: roots one after another, pages of a root
// strictly in sequence, entries of a page concurrently behind a full-page
// barrier.
type Coordinator struct {
	opts    Options
	getter  Getter
	listing *ListingFetcher
	writer  Flusher
	cache   CrawlCache
	session *Session
	robots  *http.Client
	log     *logrus.Logger

	pages   int
	entries int
	records int
}

func NewCoordinator(opts Options, getter Getter, writer Flusher, log *logrus.Logger) *Coordinator {
	if opts.StartPage < 1 {
		opts.StartPage = 1
	}
	return &Coordinator{
		opts:    opts,
		getter:  getter,
		listing: NewListingFetcher(getter, opts.Listing, opts.ListingRetries, opts.ListingRetryDelay, log),
		writer:  writer,
		session: NewSession(opts.UserAgents),
		robots:  &http.Client{Timeout: 30 * time.Second},
		log:     log,
	}
}

// WithCache enables the crawl cache used for robots.txt and, when
// SkipCrawled is set, for skipping entries crawled by an earlier run.
func (c *Coordinator) WithCache(cache CrawlCache) *Coordinator {
	c.cache = cache
	return c
}

func (c *Coordinator) Session() *Session {
	return c.session
}

// Run crawls every configured root. Per-entry and per-page failures are
// collected in the summary; only cancellation or a final flush failure is
// returned as an error.
func (c *Coordinator) Run(ctx context.Context) (Summary, error) {
	for _, root := range c.opts.Roots {
		if err := c.crawlRoot(ctx, root); err != nil {
			return c.summary(), err
		}
	}

	if pending := len(c.session.Batch()); pending > 0 {
		return c.summary(), fmt.Errorf("%w: %d", ErrUnflushed, pending)
	}
	return c.summary(), nil
}

func (c *Coordinator) summary() Summary {
	return Summary{
		Pages:    c.pages,
		Entries:  c.entries,
		Records:  c.records,
		Failures: c.session.Failures(),
	}
}

func (c *Coordinator) crawlRoot(ctx context.Context, root string) error {
	logger := c.log.WithField("root", root)

	base, err := c.baseURL(root)
	if err != nil {
		logger.WithError(err).Error("cannot resolve entry base url, skipping root")
		return nil
	}

	if c.opts.RespectRobots && !c.allowedByRobots(ctx, root) {
		logger.Warn("listing root disallowed by robots.txt, skipping")
		return nil
	}

	entries := NewEntryPool(c.getter, c.opts.Extract, base, c.opts.Concurrency, c.log)

	err = c.crawlPages(ctx, logger, root, entries)

	flushCtx, cancel := c.flushContext(ctx)
	defer cancel()
	c.flush(flushCtx)
	return err
}

// crawlPages walks the pages of root in sequence until pagination ends, the
// page limit is reached or ctx is cancelled.
func (c *Coordinator) crawlPages(ctx context.Context, logger *logrus.Entry, root string, entries *EntryPool) error {
	for page := c.opts.StartPage; c.opts.MaxPages <= 0 || page < c.opts.StartPage+c.opts.MaxPages; page++ {
		if c.opts.RotateEvery > 0 && page%c.opts.RotateEvery == 0 {
			logger.WithField("user_agent", c.session.Rotator.Advance()).Info("user agent rotated")
		}
		identity := c.session.Rotator.Current()

		refs, err := c.listing.FetchPage(ctx, root, page, identity)
		if errors.Is(err, ErrEndOfPagination) {
			logger.WithField("page", page).Info("crawled all pages of root")
			break
		}
		if err != nil {
			return err
		}

		logger.WithFields(logrus.Fields{"page": page, "entries": len(refs)}).Info("working on page")

		refs = c.skipCrawled(ctx, entries, refs)
		c.collect(entries.FetchEntries(ctx, refs, identity))
		c.pages++

		if c.opts.FlushEvery > 0 && page%c.opts.FlushEvery == 0 {
			c.flush(ctx)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return ctx.Err()
}

func (c *Coordinator) collect(results []EntryResult) {
	for _, res := range results {
		c.entries++
		if res.Err != nil {
			c.log.WithError(res.Err).WithFields(logrus.Fields{
				"url":  res.URL,
				"page": res.Page,
			}).Warn("entry could not be retrieved, skipping")
			c.session.AddFailure(Failure{URL: res.URL, Page: res.Page, Reason: res.Err.Error()})
			continue
		}

		c.records += len(res.Records)
		c.session.AddEntry(res.URL, res.Records...)
	}
}

// flush writes the pending batch and clears it only when the write fully
// succeeded; otherwise the records stay for the next flush. Entries are
// marked crawled once their records are stored.
func (c *Coordinator) flush(ctx context.Context) {
	batch, urls := c.session.Pending()
	if len(batch) > 0 {
		if err := c.writer.Flush(ctx, batch); err != nil {
			c.log.WithError(err).WithField("count", len(batch)).Error("flush failed, keeping batch")
			return
		}
		c.log.WithField("count", len(batch)).Info("flushed records")
	}
	c.session.DropFlushed(len(batch), len(urls))

	if c.cache == nil {
		return
	}
	for _, u := range urls {
		if err := c.cache.SetCrawledURL(ctx, u); err != nil {
			c.log.WithError(err).WithField("url", u).Debug("cache crawled url failed")
		}
	}
}

// flushContext returns ctx, or a bounded context detached from it when ctx
// is already cancelled, so an interrupted root still stores its batch.
func (c *Coordinator) flushContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx.Err() == nil {
		return ctx, func() {}
	}
	timeout := c.opts.FlushTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return context.WithTimeout(context.WithoutCancel(ctx), timeout)
}

func (c *Coordinator) skipCrawled(ctx context.Context, pool *EntryPool, refs []models.EntryReference) []models.EntryReference {
	if c.cache == nil || !c.opts.SkipCrawled {
		return refs
	}
	kept := refs[:0:0]
	for _, ref := range refs {
		u, err := pool.resolve(ref.Href)
		if err == nil {
			crawled, err := c.cache.HasCrawledURL(ctx, u)
			if err != nil {
				c.log.WithError(err).Debug("crawl cache lookup failed")
			} else if crawled {
				c.log.WithField("url", u).Debug("entry crawled recently, skipping")
				continue
			}
		}
		kept = append(kept, ref)
	}
	return kept
}

func (c *Coordinator) baseURL(root string) (*url.URL, error) {
	base := c.opts.EntryBaseURL
	if base == "" {
		domain, err := util.GetDomainFromURL(PageURL(root, c.opts.StartPage))
		if err != nil {
			return nil, err
		}
		base = domain
	}
	return url.Parse(base)
}

func (c *Coordinator) allowedByRobots(ctx context.Context, root string) bool {
	target := PageURL(root, c.opts.StartPage)
	domain, err := util.GetDomainFromURL(target)
	if err != nil {
		return false
	}
	agent := c.session.Rotator.Current()

	var robotsTXT string
	found := false
	if c.cache != nil {
		robotsTXT, found, err = c.cache.GetRobotsTXT(ctx, domain)
		if err != nil {
			c.log.WithError(err).Debug("robots cache lookup failed")
		}
	}
	if !found {
		robotsTXT, err = util.FetchRobotsTXT(ctx, c.robots, domain, agent)
		if err != nil {
			// unreachable robots.txt does not block the crawl
			c.log.WithError(err).WithField("domain", domain).Warn("fetch robots.txt failed")
			return true
		}
		if c.cache != nil {
			if err := c.cache.SetRobotsTXT(ctx, domain, robotsTXT); err != nil {
				c.log.WithError(err).Debug("cache robots.txt failed")
			}
		}
	}
	return util.IsAllowedByRobotsTXT(robotsTXT, target, agent)
}
