package crawler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScraper_SendsIdentity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Agent/1.0", r.Header.Get("User-Agent"))
		assert.Equal(t, "1", r.Header.Get("DNT"))
		w.Write([]byte("<html><body>ok</body></html>"))
	}))
	defer srv.Close()

	s := NewScraper(5*time.Second, 0)
	body, err := s.Get(context.Background(), srv.URL+"/page", "Agent/1.0")
	require.NoError(t, err)
	assert.Contains(t, string(body), "ok")
}

func TestScraper_RevisitsSameURL(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Write([]byte("again"))
	}))
	defer srv.Close()

	s := NewScraper(5*time.Second, 0)
	for i := 0; i < 3; i++ {
		_, err := s.Get(context.Background(), srv.URL, "agent")
		require.NoError(t, err)
	}
	assert.Equal(t, 3, hits)
}

func TestScraper_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	s := NewScraper(5*time.Second, 0)
	_, err := s.Get(context.Background(), srv.URL, "agent")
	assert.Error(t, err)
}

func TestScraper_ConnectionRefused(t *testing.T) {
	s := NewScraper(time.Second, 0)
	_, err := s.Get(context.Background(), "http://127.0.0.1:1/", "agent")
	assert.Error(t, err)
}

func TestScraper_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewScraper(time.Second, 10)
	_, err := s.Get(ctx, "http://127.0.0.1:1/", "agent")
	assert.ErrorIs(t, err, context.Canceled)
}
