package scheduler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"proxyprobe/proxypool/model"
	"proxyprobe/proxypool/progress"
	"proxyprobe/proxypool/validator"
)

// mockProber answers from a function and reports progress like the real validator.
type mockProber struct {
	fn func(raw string) model.ProbeResult
}

func (m *mockProber) Probe(ctx context.Context, raw string, rep progress.Reporter) model.ProbeResult {
	r := m.fn(raw)
	if rep != nil {
		rep.Step(r)
	}
	return r
}

func alwaysWorking(raw string) model.ProbeResult {
	return model.Succeeded(model.ParseCandidate(raw), time.Millisecond, time.Now())
}

func TestRun_OneResultPerNonBlankCandidate(t *testing.T) {
	candidates := []string{"1.1.1.1:80", "", "   ", "socks5://2.2.2.2:1080", "socks4://3.3.3.3:1080"}
	s := New(&mockProber{fn: alwaysWorking}, 2, 0)

	batch := s.Run(context.Background(), candidates)

	if batch.Total != 3 {
		t.Errorf("Expected total 3, got %d", batch.Total)
	}
	results := batch.Results()
	if len(results) != 3 {
		t.Fatalf("Expected 3 results, got %d", len(results))
	}
	seen := make(map[string]int)
	for _, r := range results {
		seen[r.Address]++
	}
	for _, addr := range []string{"http://1.1.1.1:80", "socks5://2.2.2.2:1080", "socks4://3.3.3.3:1080"} {
		if seen[addr] != 1 {
			t.Errorf("Expected exactly one result for %s, got %d", addr, seen[addr])
		}
	}
	if snap := batch.Tracker.Snapshot(); snap.Checked != 3 || snap.Total != 3 {
		t.Errorf("Unexpected progress snapshot: %+v", snap)
	}
	if batch.ID == "" {
		t.Error("Expected batch to carry a run id")
	}
}

func TestRun_PanickingTaskIsFilteredOut(t *testing.T) {
	s := New(&mockProber{fn: func(raw string) model.ProbeResult {
		if raw == "bad:1" {
			panic("unexpected state")
		}
		return alwaysWorking(raw)
	}}, 10, 0)

	batch := s.Run(context.Background(), []string{"a:1", "bad:1", "b:1", "c:1"})

	if len(batch.Results()) != 3 {
		t.Errorf("Expected 3 surviving results, got %d", len(batch.Results()))
	}
	if batch.Dropped() != 1 {
		t.Errorf("Expected 1 dropped task, got %d", batch.Dropped())
	}
	for _, r := range batch.Results() {
		if r.Address == "http://bad:1" {
			t.Errorf("Panicking task should not produce a result")
		}
	}
}

func TestRun_CancelledContextStillYieldsOneResultEach(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls atomic.Int32
	s := New(&mockProber{fn: func(raw string) model.ProbeResult {
		calls.Add(1)
		return model.Failed(model.ParseCandidate(raw), context.Canceled, time.Now())
	}}, 1, 0)

	batch := s.Run(ctx, []string{"a:1", "b:1", "c:1"})
	results := batch.Results()
	if len(results) != 3 {
		t.Fatalf("Expected 3 results, got %d", len(results))
	}
	for _, r := range results {
		if r.Working {
			t.Errorf("Expected every result to be a failure, got %+v", r)
		}
	}
	if snap := batch.Tracker.Snapshot(); snap.Checked != 3 {
		t.Errorf("Expected progress to account for every candidate, got %+v", snap)
	}
}

// gaugeBody decrements the open gauge when the probe closes the response.
type gaugeBody struct {
	io.Reader
	once  sync.Once
	gauge *atomic.Int64
}

func (b *gaugeBody) Close() error {
	b.once.Do(func() { b.gauge.Add(-1) })
	return nil
}

// instrumentedTransport pretends to hold a connection open for a while and tracks the peak.
type instrumentedTransport struct {
	open *atomic.Int64
	peak *atomic.Int64
	hold time.Duration
}

func (t *instrumentedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	n := t.open.Add(1)
	for {
		p := t.peak.Load()
		if n <= p || t.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(t.hold)
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       &gaugeBody{Reader: strings.NewReader(""), gauge: t.open},
		Request:    req,
	}, nil
}

func TestRun_ConcurrencyCapIsNeverExceeded(t *testing.T) {
	var open, peak atomic.Int64
	v := validator.NewValidator("http://target.test/", 5*time.Second,
		validator.WithTransportFactory(func(c model.Candidate) (http.RoundTripper, error) {
			return &instrumentedTransport{open: &open, peak: &peak, hold: 20 * time.Millisecond}, nil
		}))

	candidates := make([]string, 5000)
	for i := range candidates {
		candidates[i] = fmt.Sprintf("10.0.%d.%d:8080", i/256, i%256)
	}

	s := New(v, 1000, 0)
	batch := s.Run(context.Background(), candidates)

	if got := len(batch.Results()); got != 5000 {
		t.Fatalf("Expected 5000 results, got %d", got)
	}
	if peak.Load() > 1000 {
		t.Errorf("Concurrency cap exceeded: peak %d open connections", peak.Load())
	}
	if peak.Load() < 2 {
		t.Errorf("Expected probes to overlap, peak was %d", peak.Load())
	}
	if open.Load() != 0 {
		t.Errorf("Expected all connections to be released, %d still open", open.Load())
	}
	if snap := batch.Tracker.Snapshot(); snap.Checked != 5000 || snap.Working != 5000 {
		t.Errorf("Unexpected progress snapshot: %+v", snap)
	}
}

func TestRun_ProbeRateLimitsLaunches(t *testing.T) {
	s := New(&mockProber{fn: alwaysWorking}, 10, 20)

	start := time.Now()
	batch := s.Run(context.Background(), []string{"a:1", "b:1", "c:1", "d:1", "e:1"})
	if len(batch.Results()) != 5 {
		t.Fatalf("Expected 5 results, got %d", len(batch.Results()))
	}
	// The bucket starts full, so a small batch must not be slowed down noticeably.
	if time.Since(start) > time.Second {
		t.Errorf("Rate limiter blocked a batch smaller than its burst, took %v", time.Since(start))
	}
}

func TestRun_ProbeRatePacesLargeBatch(t *testing.T) {
	s := New(&mockProber{fn: alwaysWorking}, 10, 5)

	// 桶容量为 5，剩下 3 个候选各需等待约 200ms
	start := time.Now()
	batch := s.Run(context.Background(), []string{"a:1", "b:1", "c:1", "d:1", "e:1", "f:1", "g:1", "h:1"})
	elapsed := time.Since(start)

	if len(batch.Results()) != 8 {
		t.Fatalf("Expected 8 results, got %d", len(batch.Results()))
	}
	if elapsed < 400*time.Millisecond {
		t.Errorf("Expected launches beyond the burst to be paced, batch took only %v", elapsed)
	}
}

func TestRun_CancelWhilePacingFailsFast(t *testing.T) {
	candidates := make([]string, 12)
	for i := range candidates {
		candidates[i] = fmt.Sprintf("10.1.0.%d:3128", i)
	}

	t.Run("cancelled before run", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		start := time.Now()
		batch := New(&mockProber{fn: alwaysWorking}, 10, 2).Run(ctx, candidates)
		if elapsed := time.Since(start); elapsed > time.Second {
			t.Errorf("Cancelled batch still waited for the rate limiter: %v", elapsed)
		}
		results := batch.Results()
		if len(results) != 12 {
			t.Fatalf("Expected 12 results, got %d", len(results))
		}
		for _, r := range results {
			if r.Working {
				t.Errorf("Expected %s to fail after cancellation", r.Address)
			}
		}
		if snap := batch.Tracker.Snapshot(); snap.Checked != 12 {
			t.Errorf("Expected progress to count every candidate, got %+v", snap)
		}
	})

	t.Run("cancelled mid-run", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
		defer cancel()

		// 不取消时需要约 5 秒
		start := time.Now()
		batch := New(&mockProber{fn: alwaysWorking}, 10, 2).Run(ctx, candidates)
		if elapsed := time.Since(start); elapsed > 2*time.Second {
			t.Errorf("Batch kept pacing after cancellation: %v", elapsed)
		}

		results := batch.Results()
		if len(results) != 12 {
			t.Fatalf("Expected 12 results, got %d", len(results))
		}
		working := 0
		for _, r := range results {
			if r.Working {
				working++
			}
		}
		if working == 0 || working == 12 {
			t.Errorf("Expected some probes before and some failures after cancellation, got %d working", working)
		}
	})
}
