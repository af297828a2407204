package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/pool"

	"cve-crawler/internal/extract"
	"cve-crawler/pkg/models"
)

// ErrMissingContent means a detail page came back without its content
// section, usually a block page or truncated markup.
var ErrMissingContent = errors.New("detail page has no content section")

// EntryResult is the outcome of one detail page: either records (possibly
// none) or the reason it failed.
type EntryResult struct {
	URL     string
	Page    int
	Records []models.VulnerabilityRecord
	Err     error
}

// EntryPool fetches and extracts detail pages with at most concurrency
// requests in flight.
type EntryPool struct {
	getter      Getter
	grammar     extract.Grammar
	baseURL     *url.URL
	concurrency int
	log         *logrus.Logger
}

func NewEntryPool(getter Getter, grammar extract.Grammar, baseURL *url.URL, concurrency int, log *logrus.Logger) *EntryPool {
	if concurrency < 1 {
		concurrency = 1
	}
	return &EntryPool{
		getter:      getter,
		grammar:     grammar,
		baseURL:     baseURL,
		concurrency: concurrency,
		log:         log,
	}
}

// FetchEntries attempts every reference exactly once and returns when all
// of them have finished. Failures are reported in the results, never as an
// error, and do not affect other entries.
func (p *EntryPool) FetchEntries(ctx context.Context, refs []models.EntryReference, identity string) []EntryResult {
	if len(refs) == 0 {
		return nil
	}

	wp := pool.NewWithResults[EntryResult]().WithMaxGoroutines(p.concurrency)
	for _, ref := range refs {
		ref := ref
		wp.Go(func() EntryResult {
			return p.fetchEntry(ctx, ref, identity)
		})
	}
	return wp.Wait()
}

func (p *EntryPool) fetchEntry(ctx context.Context, ref models.EntryReference, identity string) (res EntryResult) {
	res = EntryResult{URL: ref.Href, Page: ref.Page}
	defer func() {
		if r := recover(); r != nil {
			res.Records = nil
			res.Err = fmt.Errorf("panic while processing entry: %v", r)
		}
	}()

	entryURL, err := p.resolve(ref.Href)
	if err != nil {
		res.Err = err
		return res
	}
	res.URL = entryURL

	p.log.WithFields(logrus.Fields{"url": entryURL, "page": ref.Page}).Info("working on entry")

	body, err := p.getter.Get(ctx, entryURL, identity)
	if err != nil {
		res.Err = err
		return res
	}

	doc, err := extract.ParseBytes(body)
	if err != nil {
		res.Err = err
		return res
	}
	content, ok := p.grammar.ContentSection(doc)
	if !ok {
		res.Err = ErrMissingContent
		return res
	}

	res.Records, res.Err = p.grammar.Extract(content)
	return res
}

func (p *EntryPool) resolve(href string) (string, error) {
	if href == "" {
		return "", errors.New("entry link has no href")
	}
	u, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("parse entry link: %w", err)
	}
	if p.baseURL == nil {
		if !u.IsAbs() {
			return "", fmt.Errorf("relative entry link %q without base url", href)
		}
		return u.String(), nil
	}
	return p.baseURL.ResolveReference(u).String(), nil
}
