package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"proxyprobe/internal/app"
	"proxyprobe/internal/shared/config"
	"proxyprobe/internal/shared/logger"
	"proxyprobe/internal/shared/types"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run 执行一次完整的检查并返回进程退出码。
func run(args []string, stdout, stderr io.Writer) int {
	defaults := types.Default()

	fs := flag.NewFlagSet("proxyprobe", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Path to an optional ini config file")
	links := fs.String("links", defaults.FilesConf.Links, "File with proxy list URLs, one per line")
	output := fs.String("output", defaults.FilesConf.Output, "Where to write working proxies, fastest first")
	unique := fs.String("unique", defaults.FilesConf.Unique, "Where to write all unique candidates (empty to skip)")
	report := fs.String("report", defaults.FilesConf.Report, "Where to write the detailed probe report (empty to skip)")
	testURL := fs.String("test-url", defaults.CheckerConf.TestURL, "URL that must return 200 through a working proxy")
	timeout := fs.Float64("timeout", defaults.CheckerConf.Timeout, "Per-probe timeout in seconds")
	concurrency := fs.Int("concurrency", defaults.CheckerConf.MaxConcurrent, "Maximum number of probes in flight")
	rate := fs.Int("rate", defaults.CheckerConf.ProbeRate, "Maximum probes started per second (0 = unlimited)")
	top := fs.Int("top", defaults.CheckerConf.Top, "Number of fastest proxies to print")
	webPort := fs.Int("web-port", defaults.WebConf.WebPort, "Port for the live status server (0 = disabled)")
	logLevel := fs.String("log-level", defaults.LogConf.Level, "Log level")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	// 1. 加载配置：默认值 -> ini -> 环境变量 -> 命令行
	cfg := types.Default()
	if *configPath != "" {
		if err := config.LoadIni(cfg, *configPath); err != nil {
			// logger 还没初始化
			fmt.Fprintf(stderr, "Fatal: Failed to load config file '%s': %v\n", *configPath, err)
			return 1
		}
	} else {
		config.ApplyEnv(cfg)
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "links":
			cfg.FilesConf.Links = *links
		case "output":
			cfg.FilesConf.Output = *output
		case "unique":
			cfg.FilesConf.Unique = *unique
		case "report":
			cfg.FilesConf.Report = *report
		case "test-url":
			cfg.CheckerConf.TestURL = *testURL
		case "timeout":
			cfg.CheckerConf.Timeout = *timeout
		case "concurrency":
			cfg.CheckerConf.MaxConcurrent = *concurrency
		case "rate":
			cfg.CheckerConf.ProbeRate = *rate
		case "top":
			cfg.CheckerConf.Top = *top
		case "web-port":
			cfg.WebConf.WebPort = *webPort
		case "log-level":
			cfg.LogConf.Level = *logLevel
		}
	})

	// 2. 初始化日志系统
	if err := logger.Init(cfg.LogConf, stderr); err != nil {
		fmt.Fprintf(stderr, "Fatal: Failed to initialize logger: %v\n", err)
		return 1
	}

	// 3. 读取列表源，缺失即退出，此时还没有任何网络活动
	urls, err := config.LoadSourceURLs(cfg.FilesConf.Links)
	if err != nil {
		logger.Error().Err(err).Msgf("Failed to load source list '%s'", cfg.FilesConf.Links)
		return 1
	}
	logger.Info().Int("count", len(urls)).Str("file", cfg.FilesConf.Links).Msg("Source URLs loaded.")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 4. 运行
	if _, err := app.New(cfg, stdout).Run(ctx, urls); err != nil {
		logger.Error().Err(err).Msg("Run failed.")
		return 1
	}
	return 0
}
