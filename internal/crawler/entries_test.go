package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cve-crawler/internal/extract"
	"cve-crawler/pkg/models"
)

func detailPage(title string, ids ...string) string {
	var refs strings.Builder
	for _, id := range ids {
		fmt.Fprintf(&refs, `<li><a href="https://cve.mitre.org/cgi-bin/cvename.cgi?name=%s">%s</a></li>`, id, id)
	}
	return `<html><body><section class="ency_content">
<h2 class="title">` + title + `</h2>
<p>Description of ` + title + `.</p>
<ul>` + refs.String() + `</ul>
</section></body></html>`
}

func mustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func refsFor(n int) []models.EntryReference {
	refs := make([]models.EntryReference, n)
	for i := range refs {
		refs[i] = models.EntryReference{Href: fmt.Sprintf("/entry/%d", i), Page: 1}
	}
	return refs
}

func TestFetchEntries_BoundedConcurrency(t *testing.T) {
	var inFlight, maxInFlight int32
	g := &scriptedGetter{fn: func(u string, _ int) ([]byte, error) {
		n := atomic.AddInt32(&inFlight, 1)
		defer atomic.AddInt32(&inFlight, -1)
		for {
			m := atomic.LoadInt32(&maxInFlight)
			if n <= m || atomic.CompareAndSwapInt32(&maxInFlight, m, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		id := "CVE-2024-" + u[strings.LastIndex(u, "/")+1:]
		return []byte(detailPage("Vuln "+id, id)), nil
	}}
	p := NewEntryPool(g, extract.DefaultGrammar(), mustParseURL(t, "https://x.test"), 5, quietLogger())

	results := p.FetchEntries(context.Background(), refsFor(12), "agent")

	require.Len(t, results, 12)
	assert.LessOrEqual(t, atomic.LoadInt32(&maxInFlight), int32(5))
	assert.Len(t, g.urls, 12)

	seen := make(map[string]bool)
	for _, r := range results {
		require.NoError(t, r.Err)
		require.Len(t, r.Records, 1)
		seen[r.URL] = true
	}
	assert.Len(t, seen, 12, "every reference attempted exactly once")
}

func TestFetchEntries_FailuresAreIsolated(t *testing.T) {
	g := &scriptedGetter{fn: func(u string, _ int) ([]byte, error) {
		switch {
		case strings.HasSuffix(u, "/entry/0"):
			return []byte(detailPage("Good", "CVE-2020-0001", "CVE-2020-0002")), nil
		case strings.HasSuffix(u, "/entry/1"):
			return []byte(`<html><body><h1>Access denied</h1></body></html>`), nil
		case strings.HasSuffix(u, "/entry/2"):
			return nil, errors.New("timeout")
		case strings.HasSuffix(u, "/entry/3"):
			return []byte(`<section class="ency_content"><a href="/x">CVE-2020-0003</a></section>`), nil
		default:
			panic("unexpected markup")
		}
	}}
	p := NewEntryPool(g, extract.DefaultGrammar(), mustParseURL(t, "https://x.test"), 2, quietLogger())

	results := p.FetchEntries(context.Background(), refsFor(5), "agent")
	require.Len(t, results, 5)

	byURL := make(map[string]EntryResult)
	for _, r := range results {
		byURL[r.URL] = r
	}

	good := byURL["https://x.test/entry/0"]
	require.NoError(t, good.Err)
	assert.Len(t, good.Records, 2)

	assert.ErrorIs(t, byURL["https://x.test/entry/1"].Err, ErrMissingContent)
	assert.Error(t, byURL["https://x.test/entry/2"].Err)
	assert.ErrorIs(t, byURL["https://x.test/entry/3"].Err, extract.ErrMissingTitle)
	assert.ErrorContains(t, byURL["https://x.test/entry/4"].Err, "panic")
	assert.Empty(t, byURL["https://x.test/entry/4"].Records)
}

func TestFetchEntries_MissingHref(t *testing.T) {
	g := &scriptedGetter{fn: func(string, int) ([]byte, error) { return nil, errors.New("not called") }}
	p := NewEntryPool(g, extract.DefaultGrammar(), mustParseURL(t, "https://x.test"), 1, quietLogger())

	results := p.FetchEntries(context.Background(), []models.EntryReference{{Href: "", Page: 2}}, "agent")
	require.Len(t, results, 1)
	assert.Error(t, results[0].Err)
	assert.Equal(t, 2, results[0].Page)
	assert.Empty(t, g.urls)
}

func TestFetchEntries_Empty(t *testing.T) {
	p := NewEntryPool(&scriptedGetter{}, extract.DefaultGrammar(), nil, 5, quietLogger())
	assert.Empty(t, p.FetchEntries(context.Background(), nil, "agent"))
}

func TestFetchEntries_ReportsProgressPerEntry(t *testing.T) {
	g := &scriptedGetter{fn: func(u string, _ int) ([]byte, error) {
		return []byte(detailPage("T", "CVE-2024-0001")), nil
	}}
	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.InfoLevel)
	p := NewEntryPool(g, extract.DefaultGrammar(), mustParseURL(t, "https://x.test"), 2, log)

	p.FetchEntries(context.Background(), refsFor(3), "agent")

	var urls []string
	for _, e := range hook.AllEntries() {
		if e.Message == "working on entry" {
			assert.Equal(t, logrus.InfoLevel, e.Level)
			urls = append(urls, e.Data["url"].(string))
		}
	}
	assert.ElementsMatch(t, []string{"https://x.test/entry/0", "https://x.test/entry/1", "https://x.test/entry/2"}, urls)
}
