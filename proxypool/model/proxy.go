package model

import (
	"math"
	"strings"
	"time"
)

// Protocol 是候选代理的协议标签。
type Protocol string

const (
	ProtoHTTP   Protocol = "http"
	ProtoSOCKS4 Protocol = "socks4"
	ProtoSOCKS5 Protocol = "socks5"
)

// InfiniteLatency 表示探测失败或超时，不是一个真实的耗时。
const InfiniteLatency = time.Duration(math.MaxInt64)

var knownSchemes = []string{"http://", "socks4://", "socks5://"}

// Candidate 是从原始字符串推导出的探测目标，只在探测时计算，不单独存储。
type Candidate struct {
	Raw      string   // 抓取到的原始行
	Address  string   // 实际用于探测的代理 URL
	Protocol Protocol // 由原始字符串推断
}

// ParseCandidate 推断协议并补全 scheme。
// 协议判断发生在补全之前，所以 "1.2.3.4:8080" 得到 http 和 "http://1.2.3.4:8080"。
func ParseCandidate(raw string) Candidate {
	trimmed := strings.TrimSpace(raw)
	lower := strings.ToLower(trimmed)

	protocol := ProtoHTTP
	switch {
	case strings.Contains(lower, "socks5://"):
		protocol = ProtoSOCKS5
	case strings.Contains(lower, "socks4://"):
		protocol = ProtoSOCKS4
	}

	address := trimmed
	if !hasKnownScheme(lower) {
		address = "http://" + trimmed
	}

	return Candidate{Raw: raw, Address: address, Protocol: protocol}
}

func hasKnownScheme(lower string) bool {
	for _, s := range knownSchemes {
		if strings.HasPrefix(lower, s) {
			return true
		}
	}
	return false
}

// StripScheme drops any "scheme://" prefix, keeping what follows the last separator.
func StripScheme(raw string) string {
	s := strings.TrimSpace(raw)
	if i := strings.LastIndex(s, "://"); i >= 0 {
		return s[i+3:]
	}
	return s
}

// ProbeResult 是一次探测的不可变结果，每个候选恰好产生一个。
type ProbeResult struct {
	Address   string        `json:"address"`
	Protocol  Protocol      `json:"protocol"`
	Latency   time.Duration `json:"latency"`    // 失败时为 InfiniteLatency
	CheckedAt time.Time     `json:"checked_at"` // 完成时间
	Working   bool          `json:"working"`
	Failure   string        `json:"failure,omitempty"` // 失败原因，成功时为空
}

// Succeeded 构造成功结果。
func Succeeded(c Candidate, latency time.Duration, checkedAt time.Time) ProbeResult {
	return ProbeResult{
		Address:   c.Address,
		Protocol:  c.Protocol,
		Latency:   latency,
		CheckedAt: checkedAt,
		Working:   true,
	}
}

// Failed 构造失败结果，reason 为 nil 时记录为 "unknown"。
func Failed(c Candidate, reason error, checkedAt time.Time) ProbeResult {
	msg := "unknown"
	if reason != nil {
		msg = reason.Error()
	}
	return ProbeResult{
		Address:   c.Address,
		Protocol:  c.Protocol,
		Latency:   InfiniteLatency,
		CheckedAt: checkedAt,
		Working:   false,
		Failure:   msg,
	}
}

// LatencyFinite reports whether Latency holds a measured value.
func (r ProbeResult) LatencyFinite() bool {
	return r.Latency != InfiniteLatency
}
