package manager

import (
	"context"
	"fmt"
	"sync"
	"time"

	"proxyprobe/internal/shared/logger"
	"proxyprobe/proxypool/fetcher"
	"proxyprobe/proxypool/model"
	"proxyprobe/proxypool/progress"
	"proxyprobe/proxypool/ranker"
	"proxyprobe/proxypool/scheduler"
	"proxyprobe/proxypool/storage"
	"proxyprobe/proxypool/validator"
)

// 运行阶段
const (
	PhaseIdle     = "idle"
	PhaseFetching = "fetching"
	PhaseProbing  = "probing"
	PhaseDone     = "done"
)

// Report 是一次运行的最终结果，生成后不再修改。
type Report struct {
	RunID      string
	Sources    int
	Candidates []string
	Results    []model.ProbeResult
	Dropped    int
	Elapsed    time.Duration
}

// Best 返回最快的 limit 个可用代理，limit <= 0 返回全部。
func (r *Report) Best(limit int) []model.ProbeResult {
	return ranker.Best(r.Results, limit)
}

// WorkingCount 返回可用代理数量。
func (r *Report) WorkingCount() int {
	n := 0
	for _, res := range r.Results {
		if res.Working {
			n++
		}
	}
	return n
}

// Status 是提供给状态接口的运行时快照。
type Status struct {
	RunID string `json:"run_id"`
	Phase string `json:"phase"`
	progress.Snapshot
	OpenConns     int64  `json:"open_conns"`
	UplinkBytes   uint64 `json:"uplink_bytes"`
	DownlinkBytes uint64 `json:"downlink_bytes"`
}

// Manager 是一次验证流程的总控制器：抓取 -> 去重 -> 探测 -> 排序 -> 存储。
type Manager struct {
	fetcher   *fetcher.Fetcher
	validator *validator.Validator
	scheduler *scheduler.Scheduler
	storage   *storage.FileStorage

	mu      sync.RWMutex
	phase   string
	current *scheduler.Batch
	last    *Report
}

// NewManager 创建管理器。sinks 会收到每个探测的进度。
func NewManager(
	f *fetcher.Fetcher,
	v *validator.Validator,
	st *storage.FileStorage,
	maxConcurrent, probeRate int,
	sinks ...progress.Sink,
) *Manager {
	return &Manager{
		fetcher:   f,
		validator: v,
		scheduler: scheduler.New(v, maxConcurrent, probeRate, sinks...),
		storage:   st,
		phase:     PhaseIdle,
	}
}

// Run 执行一次完整的验证流程，阻塞直到所有探测完成。
// 只有写输出文件失败时才返回错误。
func (m *Manager) Run(ctx context.Context, urls []string) (*Report, error) {
	l := logger.WithComponent("ProxyPool/Manager")
	started := time.Now()

	m.setPhase(PhaseFetching)
	candidates := m.fetcher.FetchURLs(ctx, urls)
	l.Info().Int("sources", len(urls)).Int("unique", len(candidates)).Msg("Candidates collected.")

	if err := m.storage.SaveUnique(candidates); err != nil {
		return nil, fmt.Errorf("failed to save unique candidates: %w", err)
	}

	batch, work := m.scheduler.Prepare(candidates)
	m.mu.Lock()
	m.current = batch
	m.phase = PhaseProbing
	m.mu.Unlock()

	m.scheduler.Execute(ctx, batch, work)

	report := &Report{
		RunID:      batch.ID,
		Sources:    len(urls),
		Candidates: candidates,
		Results:    batch.Results(),
		Dropped:    batch.Dropped(),
		Elapsed:    time.Since(started),
	}

	m.mu.Lock()
	m.last = report
	m.phase = PhaseDone
	m.mu.Unlock()

	if err := m.storage.SaveWorking(report.Results); err != nil {
		return report, fmt.Errorf("failed to save working proxies: %w", err)
	}
	if err := m.storage.SaveReport(report.Results); err != nil {
		return report, fmt.Errorf("failed to save probe report: %w", err)
	}

	l.Info().
		Str("run_id", report.RunID).
		Int("working", report.WorkingCount()).
		Int("total", len(report.Results)).
		Msg("Run finished.")
	return report, nil
}

func (m *Manager) setPhase(phase string) {
	m.mu.Lock()
	m.phase = phase
	m.mu.Unlock()
}

// Status 返回当前运行的进度快照。
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := m.validator.ConnStats()
	s := Status{
		Phase:         m.phase,
		OpenConns:     stats.Open.Load(),
		UplinkBytes:   stats.Uplink.Load(),
		DownlinkBytes: stats.Downlink.Load(),
	}
	if m.current != nil {
		s.RunID = m.current.ID
		s.Snapshot = m.current.Tracker.Snapshot()
	}
	return s
}

// Best 返回当前已知最快的可用代理；运行中返回到目前为止的结果。
func (m *Manager) Best(limit int) []model.ProbeResult {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.last != nil {
		return m.last.Best(limit)
	}
	if m.current != nil {
		return ranker.Best(m.current.Results(), limit)
	}
	return []model.ProbeResult{}
}
