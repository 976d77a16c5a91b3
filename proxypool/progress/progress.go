package progress

import (
	"fmt"
	"io"
	"sync"

	"github.com/cheggaaa/pb/v3"

	"proxyprobe/proxypool/model"
)

// Reporter 接收每个探测的完成信号，每个探测恰好调用一次 Step。
// 实现不能阻塞调用方。
type Reporter interface {
	Step(r model.ProbeResult)
}

// Snapshot 是某一时刻的进度快照。
type Snapshot struct {
	Checked int     `json:"checked"`
	Total   int     `json:"total"`
	Working int     `json:"working"`
	Percent float64 `json:"percent"`
}

// Sink 接收 Tracker 发出的快照。Publish 在 Tracker 的锁内被调用，必须快速返回。
type Sink interface {
	Publish(s Snapshot, last model.ProbeResult)
}

// Tracker 是一次运行的进度计数器，所有修改都经过同一把锁。
type Tracker struct {
	mu      sync.Mutex
	checked int
	working int
	total   int
	sinks   []Sink
}

// NewTracker creates a tracker for a batch of total probes.
func NewTracker(total int, sinks ...Sink) *Tracker {
	return &Tracker{total: total, sinks: sinks}
}

// Step implements Reporter.
func (t *Tracker) Step(r model.ProbeResult) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.checked++
	if r.Working {
		t.working++
	}
	s := t.snapshotLocked()
	for _, sink := range t.sinks {
		sink.Publish(s, r)
	}
}

// Snapshot returns the current counters.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

func (t *Tracker) snapshotLocked() Snapshot {
	s := Snapshot{Checked: t.checked, Total: t.total, Working: t.working}
	if t.total > 0 {
		s.Percent = float64(t.checked) / float64(t.total) * 100
	}
	return s
}

// consoleTemplate 只保留计数和百分比，便于在非终端输出中阅读。
const consoleTemplate = `checked {{counters . "%s/%s"}} ({{percent . "%.1f%%"}})`

// ConsoleSink 用 pb 进度条显示实时进度，并在进度条上方为每个可用代理打印一行。
// 进度条是静态的：只在 Publish 时重绘，计数完全来自 Tracker。
type ConsoleSink struct {
	out io.Writer
	bar *pb.ProgressBar
}

func NewConsoleSink(out io.Writer) *ConsoleSink {
	return &ConsoleSink{out: out}
}

func (c *ConsoleSink) Publish(s Snapshot, last model.ProbeResult) {
	if c.bar == nil {
		c.bar = pb.New(s.Total).
			SetTemplateString(consoleTemplate).
			SetWriter(c.out).
			Set(pb.Static, true).
			Set(pb.ReturnSymbol, "\r")
		c.bar.Start()
	}

	if last.Working {
		fmt.Fprintf(c.out, "\rworking: %s - %.2fs\n", last.Address, last.Latency.Seconds())
	}
	c.bar.SetTotal(int64(s.Total))
	c.bar.SetCurrent(int64(s.Checked))
	c.bar.Write()
}
