package storage

import (
	"bytes"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	"proxyprobe/internal/shared/logger"
	"proxyprobe/proxypool/model"
	"proxyprobe/proxypool/ranker"
)

const (
	delimiter = "|"
	// address|protocol|latency_ms|checked_at|working|failure
	numFields = 6
)

// FileStorage 把一次运行的结果写成纯文本文件。路径为空的输出会被跳过。
type FileStorage struct {
	outputPath string
	uniquePath string
	reportPath string
	mu         sync.Mutex
}

// NewFileStorage 创建一个新的 FileStorage 实例。
func NewFileStorage(outputPath, uniquePath, reportPath string) *FileStorage {
	return &FileStorage{
		outputPath: outputPath,
		uniquePath: uniquePath,
		reportPath: reportPath,
	}
}

// SaveWorking 按延迟从快到慢写出可用代理地址，每行一个。
func (fs *FileStorage) SaveWorking(results []model.ProbeResult) error {
	if fs.outputPath == "" {
		return nil
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()

	best := ranker.Best(results, 0)
	var buf bytes.Buffer
	if err := ranker.WriteAddresses(&buf, best); err != nil {
		return err
	}
	if err := os.WriteFile(fs.outputPath, buf.Bytes(), 0644); err != nil {
		return err
	}

	l := logger.WithComponent("ProxyPool/Storage")
	l.Info().
		Int("count", len(best)).Str("path", fs.outputPath).Msg("Working proxies saved.")
	return nil
}

// SaveUnique 在验证之前写出全部去重候选：去掉 scheme，按字典序排列。
func (fs *FileStorage) SaveUnique(candidates []string) error {
	if fs.uniquePath == "" {
		return nil
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()

	set := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		stripped := model.StripScheme(c)
		if stripped == "" {
			continue
		}
		set[stripped] = struct{}{}
	}
	unique := make([]string, 0, len(set))
	for p := range set {
		unique = append(unique, p)
	}
	sort.Strings(unique)

	var sb strings.Builder
	for _, p := range unique {
		sb.WriteString(p)
		sb.WriteString("\n")
	}
	if err := os.WriteFile(fs.uniquePath, []byte(sb.String()), 0644); err != nil {
		return err
	}

	l := logger.WithComponent("ProxyPool/Storage")
	l.Info().
		Int("count", len(unique)).Str("path", fs.uniquePath).Msg("Unique candidates saved.")
	return nil
}

// SaveReport 写出每个探测结果的详细记录，先列出可用代理（按延迟），再按地址列出失败的。
func (fs *FileStorage) SaveReport(results []model.ProbeResult) error {
	if fs.reportPath == "" {
		return nil
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()

	ordered := ranker.Best(results, 0)
	failed := make([]model.ProbeResult, 0, len(results)-len(ordered))
	for _, r := range results {
		if !r.Working {
			failed = append(failed, r)
		}
	}
	sort.Slice(failed, func(i, j int) bool {
		return failed[i].Address < failed[j].Address
	})
	ordered = append(ordered, failed...)

	var sb strings.Builder
	for _, r := range ordered {
		sb.WriteString(formatResult(r))
		sb.WriteString("\n")
	}
	if err := os.WriteFile(fs.reportPath, []byte(sb.String()), 0644); err != nil {
		return err
	}

	l := logger.WithComponent("ProxyPool/Storage")
	l.Info().
		Int("count", len(ordered)).Str("path", fs.reportPath).Msg("Probe report saved.")
	return nil
}

// formatResult 将结果格式化为一行文本，失败时延迟记为 -1。
func formatResult(r model.ProbeResult) string {
	latency := int64(-1)
	if r.LatencyFinite() {
		latency = r.Latency.Milliseconds()
	}
	return strings.Join([]string{
		r.Address,
		string(r.Protocol),
		strconv.FormatInt(latency, 10),
		strconv.FormatInt(r.CheckedAt.Unix(), 10),
		strconv.FormatBool(r.Working),
		sanitize(r.Failure),
	}, delimiter)
}

// sanitize 保证失败原因不会破坏一行一条记录的格式。
func sanitize(s string) string {
	s = strings.ReplaceAll(s, delimiter, " ")
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
}
