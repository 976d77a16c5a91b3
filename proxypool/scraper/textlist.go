package scraper

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"proxyprobe/internal/shared/logger"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/108.0.0.0 Safari/537.36"

// TextListScraper 下载一个纯文本代理列表，每行一个候选。
// 如果源返回的是 HTML 页面，则从表格行和 <pre> 块中提取。
type TextListScraper struct {
	url     string
	client  *http.Client
	timeout time.Duration
}

// DefaultTimeout 是单次下载的默认超时。
const DefaultTimeout = 10 * time.Second

// NewTextListScraper 创建一个新的实例。client 为 nil 时使用独立的 client，
// timeout <= 0 时使用 DefaultTimeout。
func NewTextListScraper(url string, client *http.Client, timeout time.Duration) Scraper {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &TextListScraper{url: url, client: client, timeout: timeout}
}

func (s *TextListScraper) Name() string {
	return s.url
}

func (s *TextListScraper) Scrape(ctx context.Context) ([]string, error) {
	l := logger.WithComponent("ProxyPool/Scraper")

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request for %s: %w", s.Name(), err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", s.Name(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("received non-200 status code (%d) from %s", resp.StatusCode, s.Name())
	}

	var lines []string
	if isHTML(resp.Header.Get("Content-Type")) {
		lines, err = parseHTML(resp.Body)
	} else {
		lines, err = splitLines(resp.Body)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read body from %s: %w", s.Name(), err)
	}

	l.Debug().Int("count", len(lines)).Str("source", s.Name()).Msg("Scrape finished.")
	return lines, nil
}

func isHTML(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	return err == nil && mediaType == "text/html"
}

// splitLines 只去掉行尾的 \r 并跳过空行，其余内容原样保留。
func splitLines(r io.Reader) ([]string, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSuffix(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines, scanner.Err()
}

func parseHTML(r io.Reader) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, err
	}

	var lines []string
	doc.Find("table tr").Each(func(_ int, sel *goquery.Selection) {
		cells := sel.Find("td")
		if cells.Length() < 2 {
			return
		}
		host := strings.TrimSpace(cells.Eq(0).Text())
		port := strings.TrimSpace(cells.Eq(1).Text())
		if host == "" || port == "" {
			return
		}
		lines = append(lines, host+":"+port)
	})

	doc.Find("pre").Each(func(_ int, sel *goquery.Selection) {
		pre, err := splitLines(strings.NewReader(sel.Text()))
		if err != nil {
			return
		}
		for _, line := range pre {
			lines = append(lines, strings.TrimSpace(line))
		}
	})

	return lines, nil
}
