package validator

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/net/proxy"
	"h12.io/socks"
	"proxyprobe/internal/shared"
	"proxyprobe/internal/shared/logger"
	"proxyprobe/proxypool/model"
	"proxyprobe/proxypool/progress"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/108.0.0.0 Safari/537.36"

// TransportFactory 为一个候选代理构造经由该代理出站的 RoundTripper。
type TransportFactory func(c model.Candidate) (http.RoundTripper, error)

type dialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// Option configures a Validator.
type Option func(*Validator)

// WithTransportFactory 替换默认的代理传输层，用于测试或自定义拨号。
func WithTransportFactory(f TransportFactory) Option {
	return func(v *Validator) {
		v.newTransport = f
	}
}

// Validator 对单个候选代理执行一次探测。
type Validator struct {
	testURL      string
	timeout      time.Duration
	newTransport TransportFactory
	conns        shared.ConnStats
}

func NewValidator(testURL string, timeout time.Duration, opts ...Option) *Validator {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	v := &Validator{
		testURL: testURL,
		timeout: timeout,
	}
	v.newTransport = v.proxyTransport
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// ConnStats exposes counters for connections dialed by the default transports.
func (v *Validator) ConnStats() *shared.ConnStats {
	return &v.conns
}

// Probe 经由 raw 指定的代理向测试地址发起一次 GET。
// 任何失败都被归一化为 Working=false 的结果，不会返回错误。
// 完成后恰好调用一次 rep.Step，rep 可以为 nil。
func (v *Validator) Probe(ctx context.Context, raw string, rep progress.Reporter) model.ProbeResult {
	c := model.ParseCandidate(raw)

	latency, err := v.check(ctx, c)
	var result model.ProbeResult
	if err != nil {
		result = model.Failed(c, err, time.Now())
		logger.Debug().Str("proxy", c.Address).Err(err).Msg("Probe failed.")
	} else {
		result = model.Succeeded(c, latency, time.Now())
	}

	if rep != nil {
		rep.Step(result)
	}
	return result
}

func (v *Validator) check(ctx context.Context, c model.Candidate) (time.Duration, error) {
	transport, err := v.newTransport(c)
	if err != nil {
		return 0, err
	}
	if closer, ok := transport.(interface{ CloseIdleConnections() }); ok {
		defer closer.CloseIdleConnections()
	}

	client := &http.Client{
		Transport: transport,
		Timeout:   v.timeout,
	}

	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.testURL, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create test request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("received non-200 status code: %d", resp.StatusCode)
	}
	return time.Since(start), nil
}

// proxyTransport 是默认的 TransportFactory：http 走 CONNECT/绝对URI代理，
// socks5 使用 x/net/proxy，socks4 使用 h12.io/socks。
func (v *Validator) proxyTransport(c model.Candidate) (http.RoundTripper, error) {
	proxyURL, err := url.Parse(c.Address)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy url: %w", err)
	}
	if proxyURL.Host == "" {
		return nil, errors.New("invalid proxy url: missing host")
	}

	dialer := &net.Dialer{
		Timeout:   v.timeout,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		TLSClientConfig:       &tls.Config{InsecureSkipVerify: true},
		DisableKeepAlives:     true,
		TLSHandshakeTimeout:   v.timeout / 2,
		ResponseHeaderTimeout: v.timeout,
		ExpectContinueTimeout: 1 * time.Second,
	}

	switch c.Protocol {
	case model.ProtoSOCKS5:
		d, err := proxy.SOCKS5("tcp", proxyURL.Host, nil, dialer)
		if err != nil {
			return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
		}
		cd, ok := d.(proxy.ContextDialer)
		if !ok {
			return nil, errors.New("SOCKS5 dialer does not support contexts")
		}
		transport.DialContext = v.counted(cd.DialContext)
	case model.ProtoSOCKS4:
		dial := socks.Dial(fmt.Sprintf("socks4://%s?timeout=%s", proxyURL.Host, v.timeout))
		transport.DialContext = v.counted(func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dial(network, addr)
		})
	default:
		transport.Proxy = http.ProxyURL(proxyURL)
		transport.DialContext = v.counted(dialer.DialContext)
	}

	return transport, nil
}

func (v *Validator) counted(dial dialFunc) dialFunc {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := dial(ctx, network, addr)
		if err != nil {
			return nil, err
		}
		return shared.NewCountedConn(conn, &v.conns), nil
	}
}
