package ranker

import (
	"bufio"
	"io"
	"sort"

	"proxyprobe/proxypool/model"
)

// Best 返回可用代理，按延迟升序排列，延迟相同时按地址排序以保证结果确定。
// limit <= 0 表示返回全部。不会修改传入的切片。
func Best(results []model.ProbeResult, limit int) []model.ProbeResult {
	working := make([]model.ProbeResult, 0, len(results))
	for _, r := range results {
		if r.Working {
			working = append(working, r)
		}
	}

	sort.SliceStable(working, func(i, j int) bool {
		if working[i].Latency != working[j].Latency {
			return working[i].Latency < working[j].Latency
		}
		return working[i].Address < working[j].Address
	})

	if limit > 0 && len(working) > limit {
		return working[:limit]
	}
	return working
}

// WriteAddresses 按顺序逐行写出代理地址。
func WriteAddresses(w io.Writer, results []model.ProbeResult) error {
	bw := bufio.NewWriter(w)
	for _, r := range results {
		if _, err := bw.WriteString(r.Address + "\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}
