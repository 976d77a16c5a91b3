package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"proxyprobe/internal/service/web"
	"proxyprobe/internal/shared/logger"
	"proxyprobe/internal/shared/types"
	manager "proxyprobe/proxypool"
	"proxyprobe/proxypool/fetcher"
	"proxyprobe/proxypool/progress"
	"proxyprobe/proxypool/storage"
	"proxyprobe/proxypool/validator"
)

// Manager must implement the web StatusProvider 接口
var _ web.StatusProvider = (*manager.Manager)(nil)

// App 把配置、验证流程和可选的状态服务组装在一起。
type App struct {
	cfg     *types.Config
	manager *manager.Manager
	hub     *web.Hub
	out     io.Writer

	waitGroup sync.WaitGroup
}

// New 根据配置创建 App。out 接收控制台进度和汇总，为 nil 时使用 stdout。
func New(cfg *types.Config, out io.Writer, opts ...validator.Option) *App {
	if out == nil {
		out = os.Stdout
	}

	sinks := []progress.Sink{progress.NewConsoleSink(out)}
	var hub *web.Hub
	if cfg.WebConf.WebPort > 0 {
		hub = web.NewHub()
		sinks = append(sinks, hub)
	}

	v := validator.NewValidator(cfg.CheckerConf.TestURL, seconds(cfg.CheckerConf.Timeout), opts...)
	f := fetcher.New(seconds(cfg.CheckerConf.FetchTimeout))
	st := storage.NewFileStorage(cfg.FilesConf.Output, cfg.FilesConf.Unique, cfg.FilesConf.Report)

	return &App{
		cfg:     cfg,
		manager: manager.NewManager(f, v, st, cfg.CheckerConf.MaxConcurrent, cfg.CheckerConf.ProbeRate, sinks...),
		hub:     hub,
		out:     out,
	}
}

// Run 对 urls 执行一次验证并打印汇总。
func (a *App) Run(ctx context.Context, urls []string) (*manager.Report, error) {
	if a.hub != nil {
		go a.hub.Run()
		srv := web.StartServer(&a.waitGroup, a.cfg.WebConf, a.manager, a.hub)
		defer func() {
			if srv != nil {
				srv.Close()
			}
			a.hub.Stop()
			a.waitGroup.Wait()
		}()
	}

	logger.Info().
		Int("sources", len(urls)).
		Int("max_concurrent", a.cfg.CheckerConf.MaxConcurrent).
		Str("test_url", a.cfg.CheckerConf.TestURL).
		Msg("Starting proxy check...")

	report, err := a.manager.Run(ctx, urls)
	if report != nil {
		a.printSummary(report)
	}
	return report, err
}

func (a *App) printSummary(r *manager.Report) {
	top := a.cfg.CheckerConf.Top
	best := r.Best(top)

	fmt.Fprintf(a.out, "\n\nTop %d fastest proxies:\n", top)
	for i, p := range best {
		fmt.Fprintf(a.out, "%d. %s - %s - %.2fs\n", i+1, p.Address, p.Protocol, p.Latency.Seconds())
	}
	fmt.Fprintf(a.out, "\nElapsed: %.2f seconds\n", r.Elapsed.Seconds())
	fmt.Fprintf(a.out, "Working proxies: %d/%d\n", r.WorkingCount(), len(r.Results))
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
