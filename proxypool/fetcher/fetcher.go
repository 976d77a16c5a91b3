package fetcher

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"proxyprobe/internal/shared/logger"
	"proxyprobe/proxypool/scraper"
)

// Fetcher 并发地从多个列表源获取候选，合并并去重。
type Fetcher struct {
	client  *http.Client
	timeout time.Duration
}

// New 创建 Fetcher，timeout 作用于每个列表源的单次下载，<= 0 时使用 scraper.DefaultTimeout。
func New(timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = scraper.DefaultTimeout
	}
	return &Fetcher{
		client:  &http.Client{Timeout: timeout},
		timeout: timeout,
	}
}

// FromURLs 为每个 URL 创建一个共享 client 的纯文本列表源。
func (f *Fetcher) FromURLs(urls []string) []scraper.Scraper {
	sources := make([]scraper.Scraper, 0, len(urls))
	for _, u := range urls {
		sources = append(sources, scraper.NewTextListScraper(u, f.client, f.timeout))
	}
	return sources
}

// FetchURLs is FetchAll over plain text sources built from urls.
func (f *Fetcher) FetchURLs(ctx context.Context, urls []string) []string {
	return f.FetchAll(ctx, f.FromURLs(urls))
}

// FetchAll 同时下载所有源。失败的源只记录日志，不贡献候选，也不影响其他源。
// 返回按字典序排列的去重结果，与源的顺序无关。
func (f *Fetcher) FetchAll(ctx context.Context, sources []scraper.Scraper) []string {
	l := logger.WithComponent("ProxyPool/Fetcher")
	l.Info().Int("sources", len(sources)).Msg("Fetching proxy lists...")

	var wg sync.WaitGroup
	scrapedChan := make(chan []string, len(sources))

	for _, s := range sources {
		wg.Add(1)
		go func(sc scraper.Scraper) {
			defer wg.Done()
			lines, err := sc.Scrape(ctx)
			if err != nil {
				l.Warn().Err(err).Str("source", sc.Name()).Msg("Source failed, skipping.")
				return
			}
			if len(lines) > 0 {
				scrapedChan <- lines
			}
		}(s)
	}

	wg.Wait()
	close(scrapedChan)

	set := make(map[string]struct{})
	for lines := range scrapedChan {
		for _, line := range lines {
			set[line] = struct{}{}
		}
	}

	candidates := make([]string, 0, len(set))
	for c := range set {
		candidates = append(candidates, c)
	}
	sort.Strings(candidates)

	l.Info().Int("unique", len(candidates)).Msg("Proxy lists fetched.")
	return candidates
}
