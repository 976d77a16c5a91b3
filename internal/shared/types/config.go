package types

// CheckerConf 控制一次验证批次的行为。
type CheckerConf struct {
	TestURL       string  `ini:"test_url"`       // 经代理访问时应返回 200 的地址
	Timeout       float64 `ini:"timeout"`        // 单次探测超时 (秒)
	FetchTimeout  float64 `ini:"fetch_timeout"`  // 单个列表源的下载超时 (秒)
	MaxConcurrent int     `ini:"max_concurrent"` // 同时进行中的探测上限
	ProbeRate     int     `ini:"probe_rate"`     // 每秒最多启动的探测数, 0 表示不限
	Top           int     `ini:"top"`            // 汇总时打印的最快代理数量
}

// FilesConf 包含输入输出文件路径
type FilesConf struct {
	Links  string `ini:"links"`
	Output string `ini:"output"`
	Unique string `ini:"unique"` // 为空则不输出去重后的候选列表
	Report string `ini:"report"` // 为空则不输出详细报告
}

// LogConf contains logging specific configuration
type LogConf struct {
	Level string `ini:"level"`
}

// WebConf 控制可选的状态页面
type WebConf struct {
	WebPort     int    `ini:"web_port"`
	WebUser     string `ini:"web_user"`
	WebPassword string `ini:"web_password"`
}

// Config 是统一配置结构体
type Config struct {
	CheckerConf `ini:"checker"`
	FilesConf   `ini:"files"`
	LogConf     `ini:"log"`
	WebConf     `ini:"web"`
}

// Default 返回未加载任何配置文件时使用的默认值。
func Default() *Config {
	return &Config{
		CheckerConf: CheckerConf{
			TestURL:       "http://www.google.com",
			Timeout:       10.0,
			FetchTimeout:  10.0,
			MaxConcurrent: 1000,
			Top:           10,
		},
		FilesConf: FilesConf{
			Links:  "links.txt",
			Output: "output.txt",
			Unique: "just_proxy.txt",
		},
		LogConf: LogConf{Level: "info"},
	}
}
