package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"proxyprobe/internal/shared/types"
)

// clearLine 把光标移回行首并清掉当前行。
const clearLine = "\r\x1b[K"

// lineWriter 在终端上先清掉进度条所在的行再写日志，
// 日志不会和进度条拼成一行，进度条在下一次更新时重绘。
type lineWriter struct {
	mu  sync.Mutex
	out io.Writer
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := io.WriteString(w.out, clearLine); err != nil {
		return 0, err
	}
	return w.out.Write(p)
}

func isTerminal(out io.Writer) bool {
	f, ok := out.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Init 初始化全局 logger，日志写到 out（nil 时为 stderr）。
// out 是终端时才使用颜色和清行，重定向到文件时输出纯文本。
func Init(cfg types.LogConf, out io.Writer) error {
	if out == nil {
		out = os.Stderr
	}

	levelStr := strings.ToLower(strings.TrimSpace(cfg.Level))
	if levelStr == "" {
		levelStr = "info"
	}
	level, err := zerolog.ParseLevel(levelStr)
	if err != nil {
		return fmt.Errorf("unknown log level %q: %w", cfg.Level, err)
	}

	zerolog.TimestampFunc = func() time.Time {
		return time.Now().UTC()
	}

	tty := isTerminal(out)
	var w io.Writer = out
	if tty {
		w = &lineWriter{out: out}
	}

	log.Logger = zerolog.New(zerolog.ConsoleWriter{
		Out:        w,
		NoColor:    !tty,
		TimeFormat: "2006-01-02 15:04:05",
	}).
		Level(level).
		With().
		Timestamp().
		Logger()

	Debug().Str("level", level.String()).Bool("tty", tty).Msg("Logger initialized.")
	return nil
}

// WithComponent 返回带 component 字段的子 logger，用于区分不同模块的输出。
func WithComponent(name string) zerolog.Logger {
	return log.Logger.With().Str("component", name).Logger()
}

// Event wraps a zerolog event so callers don't import zerolog for one-off messages.
type Event struct {
	*zerolog.Event
}

func Debug() *Event { return &Event{log.Debug()} }
func Info() *Event  { return &Event{log.Info()} }
func Warn() *Event  { return &Event{log.Warn()} }
func Error() *Event { return &Event{log.Error()} }

func (e *Event) Str(key, value string) *Event {
	e.Event = e.Event.Str(key, value)
	return e
}

func (e *Event) Int(key string, value int) *Event {
	e.Event = e.Event.Int(key, value)
	return e
}

func (e *Event) Bool(key string, value bool) *Event {
	e.Event = e.Event.Bool(key, value)
	return e
}

func (e *Event) Dur(key string, d time.Duration) *Event {
	e.Event = e.Event.Dur(key, d)
	return e
}

func (e *Event) Err(err error) *Event {
	e.Event = e.Event.Err(err)
	return e
}

// Msgf sends the event with a formatted message.
func (e *Event) Msgf(format string, v ...interface{}) {
	e.Event.Msgf(format, v...)
}
