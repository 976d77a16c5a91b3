package scraper

import "context"

// Scraper 接口定义了从单个列表源获取候选代理字符串的行为。
type Scraper interface {
	// Scrape 返回源中的候选行，不做验证，也不做去重。
	Scrape(ctx context.Context) ([]string, error)

	// Name 返回源的名称，用于日志记录。
	Name() string
}
