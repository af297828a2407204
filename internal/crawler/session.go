package crawler

import (
	"sync"

	"cve-crawler/pkg/models"
)

// Rotator hands out identities from a fixed pool, advancing on request and
// wrapping around. Rotation is deterministic so runs are reproducible.
type Rotator struct {
	identities []string
	cursor     int
}

func NewRotator(identities []string) *Rotator {
	return &Rotator{identities: identities}
}

func (r *Rotator) Current() string {
	if len(r.identities) == 0 {
		return ""
	}
	return r.identities[r.cursor]
}

func (r *Rotator) Advance() string {
	if len(r.identities) == 0 {
		return ""
	}
	r.cursor = (r.cursor + 1) % len(r.identities)
	return r.identities[r.cursor]
}

// Failure is one ErrorLog entry.
type Failure struct {
	URL    string
	Page   int
	Reason string
}

// Session holds the mutable state of one crawl run: the identity cursor, the
// batch of records awaiting flush and the log of entries that failed.
// Batch and error log may be appended to from several goroutines.
type Session struct {
	Rotator *Rotator

	mu       sync.Mutex
	batch    []models.VulnerabilityRecord
	entries  []string
	failures []Failure
}

func NewSession(identities []string) *Session {
	return &Session{Rotator: NewRotator(identities)}
}

// AddEntry records a successfully extracted entry. Its URL stays pending
// together with its records until a flush stores them.
func (s *Session) AddEntry(url string, records ...models.VulnerabilityRecord) {
	s.mu.Lock()
	s.batch = append(s.batch, records...)
	s.entries = append(s.entries, url)
	s.mu.Unlock()
}

func (s *Session) AddFailure(f Failure) {
	s.mu.Lock()
	s.failures = append(s.failures, f)
	s.mu.Unlock()
}

// Batch returns a copy of the records awaiting flush.
func (s *Session) Batch() []models.VulnerabilityRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.VulnerabilityRecord, len(s.batch))
	copy(out, s.batch)
	return out
}

// Pending returns copies of the records awaiting flush and of the URLs of
// the entries they came from.
func (s *Session) Pending() ([]models.VulnerabilityRecord, []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	records := make([]models.VulnerabilityRecord, len(s.batch))
	copy(records, s.batch)
	urls := make([]string, len(s.entries))
	copy(urls, s.entries)
	return records, urls
}

// DropFlushed removes the first records and entries, the ones a successful
// flush persisted.
func (s *Session) DropFlushed(records, entries int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batch = dropFirst(s.batch, records)
	s.entries = dropFirst(s.entries, entries)
}

func dropFirst[T any](s []T, n int) []T {
	if n >= len(s) {
		return nil
	}
	return append([]T(nil), s[n:]...)
}

func (s *Session) Failures() []Failure {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Failure, len(s.failures))
	copy(out, s.failures)
	return out
}
