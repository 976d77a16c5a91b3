package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/juju/ratelimit"
	"golang.org/x/sync/semaphore"
	"proxyprobe/internal/shared/logger"
	"proxyprobe/proxypool/model"
	"proxyprobe/proxypool/progress"
)

// DefaultMaxConcurrent 是未配置时同时进行中的探测上限。
const DefaultMaxConcurrent = 1000

// Prober 对单个候选执行探测，validator.Validator 实现了此接口。
type Prober interface {
	Probe(ctx context.Context, raw string, rep progress.Reporter) model.ProbeResult
}

// Scheduler 在并发上限内对所有候选执行探测。
type Scheduler struct {
	prober        Prober
	maxConcurrent int
	probeRate     int
	sinks         []progress.Sink
}

// New 创建调度器。maxConcurrent <= 0 时使用 DefaultMaxConcurrent，
// probeRate > 0 时限制每秒启动的探测数。
func New(prober Prober, maxConcurrent, probeRate int, sinks ...progress.Sink) *Scheduler {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	return &Scheduler{
		prober:        prober,
		maxConcurrent: maxConcurrent,
		probeRate:     probeRate,
		sinks:         sinks,
	}
}

// Batch 保存一次运行的全部状态，由所有探测任务共享。
// Run 返回后它是只读的。
type Batch struct {
	ID      string
	Total   int
	Tracker *progress.Tracker

	mu      sync.Mutex
	results []model.ProbeResult
	dropped int
}

func (b *Batch) record(r model.ProbeResult) {
	b.mu.Lock()
	b.results = append(b.results, r)
	b.mu.Unlock()
}

// reject 记录一个没能启动的候选，没拿到名额也要产生一个结果。
func (b *Batch) reject(raw string, err error) {
	r := model.Failed(model.ParseCandidate(raw), err, time.Now())
	b.record(r)
	b.Tracker.Step(r)
}

func (b *Batch) drop() {
	b.mu.Lock()
	b.dropped++
	b.mu.Unlock()
}

// Results 返回结果集合的副本。
func (b *Batch) Results() []model.ProbeResult {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]model.ProbeResult, len(b.results))
	copy(out, b.results)
	return out
}

// Dropped 返回因任务级异常而被过滤掉的候选数。
func (b *Batch) Dropped() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// Prepare 为候选创建一个批次，total 固定为非空候选数。
func (s *Scheduler) Prepare(candidates []string) (*Batch, []string) {
	work := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if strings.TrimSpace(c) != "" {
			work = append(work, c)
		}
	}
	return &Batch{
		ID:      uuid.NewString(),
		Total:   len(work),
		Tracker: progress.NewTracker(len(work), s.sinks...),
	}, work
}

// Run 为每个非空候选启动一个探测任务，同时进行中的任务数不超过上限，
// 阻塞直到所有任务结束。单个任务的 panic 被恢复并从结果中过滤掉。
func (s *Scheduler) Run(ctx context.Context, candidates []string) *Batch {
	batch, work := s.Prepare(candidates)
	s.Execute(ctx, batch, work)
	return batch
}

// Execute runs the prepared work against batch. It is split from Run so that callers
// can publish the batch before probing starts.
func (s *Scheduler) Execute(ctx context.Context, batch *Batch, work []string) {
	l := logger.WithComponent("ProxyPool/Scheduler")
	l.Info().
		Str("batch_id", batch.ID).
		Int("count", batch.Total).
		Int("concurrency", s.maxConcurrent).
		Msg("Starting probe batch...")

	var bucket *ratelimit.Bucket
	if s.probeRate > 0 {
		bucket = ratelimit.NewBucketWithRate(float64(s.probeRate), int64(s.probeRate))
	}

	var wg sync.WaitGroup
	sem := semaphore.NewWeighted(int64(s.maxConcurrent))
	started := time.Now()

	for _, raw := range work {
		if err := waitForToken(ctx, bucket); err != nil {
			batch.reject(raw, err)
			continue
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			batch.reject(raw, err)
			continue
		}

		wg.Add(1)
		go func(raw string) {
			defer wg.Done()
			defer sem.Release(1)
			defer func() {
				if rec := recover(); rec != nil {
					batch.drop()
					l.Error().Str("proxy", raw).Err(fmt.Errorf("%v", rec)).Msg("Probe task panicked, dropping it.")
				}
			}()

			batch.record(s.prober.Probe(ctx, raw, batch.Tracker))
		}(raw)
	}

	wg.Wait()

	snap := batch.Tracker.Snapshot()
	l.Info().
		Str("batch_id", batch.ID).
		Int("checked", snap.Checked).
		Int("working", snap.Working).
		Int("dropped", batch.Dropped()).
		Dur("elapsed", time.Since(started)).
		Msg("Probe batch finished.")
}

// waitForToken 从 bucket 取一个令牌，等待期间 ctx 取消则立即返回。bucket 为 nil 表示不限速。
func waitForToken(ctx context.Context, bucket *ratelimit.Bucket) error {
	if bucket == nil {
		return nil
	}
	d := bucket.Take(1)
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
