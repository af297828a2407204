package crawler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"cve-crawler/internal/extract"
	"cve-crawler/pkg/models"
)

// ErrEndOfPagination means a listing root has no more pages.
var ErrEndOfPagination = errors.New("end of pagination")

// Getter is the HTTP capability the fetchers depend on.
type Getter interface {
	Get(ctx context.Context, url, userAgent string) ([]byte, error)
}

// ListingGrammar locates entry links on a listing page.
type ListingGrammar struct {
	ResultsTag   string `mapstructure:"results_tag"`
	ResultsClass string `mapstructure:"results_class"`
	NavTag       string `mapstructure:"nav_tag"`
}

func DefaultListingGrammar() ListingGrammar {
	return ListingGrammar{ResultsTag: "div", ResultsClass: "results", NavTag: "nav"}
}

// PageURL fills root's {page} placeholder, or appends the page number when
// there is none.
func PageURL(root string, page int) string {
	n := strconv.Itoa(page)
	if strings.Contains(root, "{page}") {
		return strings.ReplaceAll(root, "{page}", n)
	}
	return root + n
}

// ParseListing returns the anchors of the results container that are not
// inside a navigation element, in document order.
func (g ListingGrammar) ParseListing(body []byte, page int) ([]models.EntryReference, error) {
	doc, err := extract.ParseBytes(body)
	if err != nil {
		return nil, err
	}
	results, ok := doc.Find(g.ResultsTag, g.ResultsClass)
	if !ok {
		return nil, fmt.Errorf("no %s.%s container", g.ResultsTag, g.ResultsClass)
	}

	var refs []models.EntryReference
	for _, a := range results.FindAll("a") {
		if a.HasAncestor(g.NavTag) {
			continue
		}
		href, _ := a.Attr("href")
		refs = append(refs, models.EntryReference{Href: href, Page: page})
	}
	return refs, nil
}

// ListingFetcher retrieves one page of a listing. An empty page, or a page
// that could not be fetched or parsed, is retried Retries times with
// RetryDelay between attempts before it is taken as the end of pagination.
type ListingFetcher struct {
	getter     Getter
	grammar    ListingGrammar
	retries    int
	retryDelay time.Duration
	log        *logrus.Logger
}

func NewListingFetcher(getter Getter, grammar ListingGrammar, retries int, retryDelay time.Duration, log *logrus.Logger) *ListingFetcher {
	return &ListingFetcher{
		getter:     getter,
		grammar:    grammar,
		retries:    retries,
		retryDelay: retryDelay,
		log:        log,
	}
}

// FetchPage returns the entry references on page of root, or
// ErrEndOfPagination once every attempt came back empty.
func (lf *ListingFetcher) FetchPage(ctx context.Context, root string, page int, identity string) ([]models.EntryReference, error) {
	url := PageURL(root, page)
	logger := lf.log.WithFields(logrus.Fields{"url": url, "page": page})

	for attempt := 0; attempt <= lf.retries; attempt++ {
		if attempt > 0 {
			t := time.NewTimer(lf.retryDelay)
			select {
			case <-t.C:
			case <-ctx.Done():
				t.Stop()
				return nil, ctx.Err()
			}
		}

		refs, err := lf.fetchOnce(ctx, url, page, identity)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logger.WithError(err).WithField("attempt", attempt+1).Warn("listing attempt failed")
			continue
		}
		if len(refs) > 0 {
			return refs, nil
		}
		logger.WithField("attempt", attempt+1).Debug("listing page empty")
	}
	return nil, ErrEndOfPagination
}

func (lf *ListingFetcher) fetchOnce(ctx context.Context, url string, page int, identity string) ([]models.EntryReference, error) {
	body, err := lf.getter.Get(ctx, url, identity)
	if err != nil {
		return nil, err
	}
	return lf.grammar.ParseListing(body, page)
}
