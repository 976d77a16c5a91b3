package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"proxyprobe/proxypool/scraper"
)

// mockScraper returns a fixed list or a fixed error.
type mockScraper struct {
	name  string
	lines []string
	err   error
}

func (m *mockScraper) Name() string { return m.name }
func (m *mockScraper) Scrape(ctx context.Context) ([]string, error) {
	return m.lines, m.err
}

func equalSlices(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestFetchAll_DedupAcrossSources(t *testing.T) {
	f := New(time.Second)
	got := f.FetchAll(context.Background(), []scraper.Scraper{
		&mockScraper{name: "a", lines: []string{"1.1.1.1:80", "2.2.2.2:80"}},
		&mockScraper{name: "b", lines: []string{"2.2.2.2:80", "socks5://3.3.3.3:1080"}},
	})
	want := []string{"1.1.1.1:80", "2.2.2.2:80", "socks5://3.3.3.3:1080"}
	if !equalSlices(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

func TestFetchAll_ExactMatchOnly(t *testing.T) {
	f := New(time.Second)
	got := f.FetchAll(context.Background(), []scraper.Scraper{
		&mockScraper{name: "a", lines: []string{"1.1.1.1:80", "http://1.1.1.1:80"}},
	})
	if len(got) != 2 {
		t.Errorf("Expected no normalization during dedup, got %v", got)
	}
}

func TestFetchAll_FailingSourceContributesNothing(t *testing.T) {
	f := New(time.Second)
	got := f.FetchAll(context.Background(), []scraper.Scraper{
		&mockScraper{name: "broken", err: errors.New("network unreachable")},
		&mockScraper{name: "ok", lines: []string{"1.1.1.1:80"}},
	})
	if !equalSlices(got, []string{"1.1.1.1:80"}) {
		t.Errorf("Expected only the healthy source's candidates, got %v", got)
	}
}

func TestFetchAll_OrderIndependent(t *testing.T) {
	f := New(time.Second)
	a := &mockScraper{name: "a", lines: []string{"9.9.9.9:1", "1.1.1.1:1"}}
	b := &mockScraper{name: "b", lines: []string{"5.5.5.5:1"}}

	first := f.FetchAll(context.Background(), []scraper.Scraper{a, b})
	second := f.FetchAll(context.Background(), []scraper.Scraper{b, a})
	if !equalSlices(first, second) {
		t.Errorf("Expected identical results regardless of source order: %v vs %v", first, second)
	}
}

func TestFetchURLs_SameSourceTwiceIsIdempotent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "1.1.1.1:80\nsocks5://2.2.2.2:1080\n")
	}))
	defer srv.Close()

	f := New(2 * time.Second)
	once := f.FetchURLs(context.Background(), []string{srv.URL})
	twice := f.FetchURLs(context.Background(), []string{srv.URL, srv.URL})

	want := []string{"1.1.1.1:80", "socks5://2.2.2.2:1080"}
	if !equalSlices(once, want) {
		t.Errorf("Expected %v, got %v", want, once)
	}
	if !equalSlices(once, twice) {
		t.Errorf("Expected fetching twice to match fetching once: %v vs %v", once, twice)
	}
}

func TestFetchURLs_SlowAndBrokenSourcesDoNotBlockOthers(t *testing.T) {
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "7.7.7.7:8080\n")
	}))
	defer good.Close()
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, "8.8.8.8:8080\n")
	}))
	defer broken.Close()
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer slow.Close()

	f := New(100 * time.Millisecond)
	got := f.FetchURLs(context.Background(), []string{slow.URL, broken.URL, good.URL})
	if !equalSlices(got, []string{"7.7.7.7:8080"}) {
		t.Errorf("Expected only the good source's candidate, got %v", got)
	}
}

func TestNew_NonPositiveTimeoutUsesDefault(t *testing.T) {
	for _, d := range []time.Duration{0, -time.Second} {
		f := New(d)
		if f.timeout != scraper.DefaultTimeout || f.client.Timeout != scraper.DefaultTimeout {
			t.Errorf("New(%v): expected %v timeouts, got fetch=%v client=%v", d, scraper.DefaultTimeout, f.timeout, f.client.Timeout)
		}
	}
}
