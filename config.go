package main

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ===============================
// 配置加载模块
// ===============================

// 默认配置文件路径
const defaultConfigPath = "config.yaml"

// 环境变量（可写在 .env 中）
const (
	envBaseURL  = "IMGBENCH_BASE_URL"
	envToken    = "IMGBENCH_TOKEN"
	envUsername = "IMGBENCH_USERNAME"
	envPassword = "IMGBENCH_PASSWORD"
)

// Config 运行时配置
type Config struct {
	BaseURL    string   // 后端地址，例如 http://localhost:3000
	Filename   string   // 已上传的文件名
	Sizes      []int    // 目标宽度
	Formats    []string // 目标格式
	Baseline   string   // 基准格式
	Challenger string   // 挑战格式

	Protocol     Protocol      // 探测使用的协议
	ResolveIP    string        // 强制连接的IP（可选）
	Timeout      time.Duration // HTTP 客户端超时
	ProbeTimeout time.Duration // 单个变体探测超时
	RunTimeout   time.Duration // 整个批次的等待上限
	Concurrency  int           // 同时进行的探测数

	Score ScoreWeights

	// 后端凭据，仅用于上传
	UploadFile string
	Token      string
	Username   string
	Password   string

	Listen string // 非空时以 HTTP 服务方式运行

	// 输出配置
	OutputDir   string // 输出目录
	EnableLog   bool   // 是否启用日志
	EnableJSON  bool   // 是否生成 JSON 报告
	EnableHTML  bool   // 是否生成 HTML 报告
	EnableChart bool   // 是否生成 PNG 图表
	Debug       bool
}

// Protocol 协议类型
type Protocol int

const (
	HTTP1 Protocol = iota
	HTTP2
	HTTP3
)

func (p Protocol) String() string {
	switch p {
	case HTTP1:
		return "HTTP/1.1"
	case HTTP2:
		return "HTTP/2"
	case HTTP3:
		return "HTTP/3"
	default:
		return "Unknown"
	}
}

// parseProtocol 解析协议字符串
func parseProtocol(s string) Protocol {
	switch s {
	case "HTTP/3", "http3", "h3":
		return HTTP3
	case "HTTP/2", "http2", "h2":
		return HTTP2
	default:
		return HTTP1
	}
}

// ===============================
// YAML 配置结构
// ===============================

type yamlConfig struct {
	BaseURL      string       `yaml:"base_url"`
	Filename     string       `yaml:"filename"`
	Sizes        []int        `yaml:"sizes"`
	Formats      []string     `yaml:"formats"`
	Baseline     string       `yaml:"baseline"`
	Challenger   string       `yaml:"challenger"`
	Protocol     string       `yaml:"protocol"`
	ResolveIP    string       `yaml:"resolve_ip"`
	Timeout      string       `yaml:"timeout"`
	ProbeTimeout string       `yaml:"probe_timeout"`
	RunTimeout   string       `yaml:"run_timeout"`
	Concurrency  int          `yaml:"concurrency"`
	Score        ScoreWeights `yaml:"score"`
	Upload       struct {
		File string `yaml:"file"`
	} `yaml:"upload"`
	Server struct {
		Listen string `yaml:"listen"`
	} `yaml:"server"`
	Output struct {
		Dir         string `yaml:"dir"`
		EnableLog   bool   `yaml:"enable_log"`
		EnableJSON  bool   `yaml:"enable_json"`
		EnableHTML  bool   `yaml:"enable_html"`
		EnableChart bool   `yaml:"enable_chart"`
	} `yaml:"output"`
	Debug bool `yaml:"debug"`
}

// parseDurationOr 解析失败时使用默认值
func parseDurationOr(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// LoadConfig 从 YAML 文件加载配置，并用 .env / 环境变量覆盖后端相关项
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		path = defaultConfigPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	cfg, err := ParseConfig(data)
	if err != nil {
		return nil, err
	}

	// .env 不存在时忽略
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("读取 .env 失败: %w", err)
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ParseConfig 解析 YAML 内容并填充默认值
func ParseConfig(data []byte) (*Config, error) {
	var yc yamlConfig
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	sizes := yc.Sizes
	if len(sizes) == 0 {
		sizes = append([]int(nil), DefaultSizes...)
	}
	formats := yc.Formats
	if len(formats) == 0 {
		formats = append([]string(nil), DefaultFormats...)
	}

	baseline := yc.Baseline
	if baseline == "" {
		baseline = "jpeg"
	}
	challenger := yc.Challenger
	if challenger == "" {
		challenger = "webp"
	}

	concurrency := yc.Concurrency
	if concurrency <= 0 {
		concurrency = 8
	}

	score := yc.Score
	if score.LatencyDivisor == 0 {
		score.LatencyDivisor = DefaultScoreWeights.LatencyDivisor
	}
	if score.SizeDivisor == 0 {
		score.SizeDivisor = DefaultScoreWeights.SizeDivisor
	}

	outputDir := yc.Output.Dir
	if outputDir == "" {
		outputDir = "./output"
	}

	return &Config{
		BaseURL:      yc.BaseURL,
		Filename:     yc.Filename,
		Sizes:        sizes,
		Formats:      formats,
		Baseline:     baseline,
		Challenger:   challenger,
		Protocol:     parseProtocol(yc.Protocol),
		ResolveIP:    yc.ResolveIP,
		Timeout:      parseDurationOr(yc.Timeout, 30*time.Second),
		ProbeTimeout: parseDurationOr(yc.ProbeTimeout, defaultProbeTimeout),
		RunTimeout:   parseDurationOr(yc.RunTimeout, 2*time.Minute),
		Concurrency:  concurrency,
		Score:        score,
		UploadFile:   yc.Upload.File,
		Listen:       yc.Server.Listen,
		OutputDir:    outputDir,
		EnableLog:    yc.Output.EnableLog,
		EnableJSON:   yc.Output.EnableJSON,
		EnableHTML:   yc.Output.EnableHTML,
		EnableChart:  yc.Output.EnableChart,
		Debug:        yc.Debug,
	}, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(envBaseURL); v != "" {
		c.BaseURL = v
	}
	if v := os.Getenv(envToken); v != "" {
		c.Token = v
	}
	if v := os.Getenv(envUsername); v != "" {
		c.Username = v
	}
	if v := os.Getenv(envPassword); v != "" {
		c.Password = v
	}
}

// Validate 检查配置是否可用
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return errors.New("缺少 base_url")
	}
	if c.Baseline == c.Challenger {
		return fmt.Errorf("基准格式和挑战格式不能相同: %s", c.Baseline)
	}
	for _, f := range []string{c.Baseline, c.Challenger} {
		if !slices.Contains(c.Formats, f) {
			return fmt.Errorf("格式 %s 不在 formats 中", f)
		}
	}
	if c.Score.LatencyDivisor <= 0 || c.Score.SizeDivisor <= 0 {
		return errors.New("score 除数必须为正数")
	}
	if c.ProbeTimeout > c.RunTimeout {
		return fmt.Errorf("probe_timeout (%s) 不能大于 run_timeout (%s)", c.ProbeTimeout, c.RunTimeout)
	}
	// 用占位文件名检查尺寸和格式列表
	if _, err := BuildCatalog(c.BaseURL, "check.png", c.Sizes, c.Formats); err != nil {
		return err
	}
	return nil
}

// Aggregator 根据配置创建汇总器
func (c *Config) Aggregator() Aggregator {
	return Aggregator{
		Baseline:   c.Baseline,
		Challenger: c.Challenger,
		Weights:    c.Score,
	}
}

// SessionOptions 根据配置创建会话参数
func (c *Config) SessionOptions() SessionOptions {
	return SessionOptions{
		BaseURL:     c.BaseURL,
		Sizes:       c.Sizes,
		Formats:     c.Formats,
		Concurrency: c.Concurrency,
		Aggregator:  c.Aggregator(),
	}
}
