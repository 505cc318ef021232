package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// ===============================
// 日志模块
// ===============================

// Logger 日志记录器，支持同时输出到控制台和文件
// 探测在多个 goroutine 中打印日志，所有写入都加锁
type Logger struct {
	mu        sync.Mutex
	file      *os.File
	multiOut  io.Writer
	startTime time.Time
	logPath   string
	debug     bool
}

// NewLogger 创建新的日志记录器
// 会自动创建输出目录和日志文件
func NewLogger(outputDir string, enabled bool) (*Logger, error) {
	logger := &Logger{
		startTime: time.Now(),
	}

	if !enabled {
		// 禁用日志时，只输出到控制台
		logger.multiOut = os.Stdout
		return logger, nil
	}

	// 创建日志目录
	logDir := filepath.Join(outputDir, "logs")
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("创建日志目录失败: %w", err)
	}

	// 生成日志文件名（基于时间戳）
	timestamp := logger.startTime.Format("2006-01-02_15-04-05")
	logger.logPath = filepath.Join(logDir, fmt.Sprintf("%s.log", timestamp))

	file, err := os.Create(logger.logPath)
	if err != nil {
		return nil, fmt.Errorf("创建日志文件失败: %w", err)
	}
	logger.file = file
	logger.multiOut = io.MultiWriter(os.Stdout, file)

	return logger, nil
}

// NewWriterLogger 输出到指定 writer，不创建文件
func NewWriterLogger(w io.Writer) *Logger {
	return &Logger{
		multiOut:  w,
		startTime: time.Now(),
	}
}

// SetDebug 是否输出 DEBUG 日志
func (l *Logger) SetDebug(enabled bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.debug = enabled
}

// Close 关闭日志文件
func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// GetLogPath 获取日志文件路径
func (l *Logger) GetLogPath() string {
	return l.logPath
}

// GetStartTime 获取开始时间
func (l *Logger) GetStartTime() time.Time {
	return l.startTime
}

// Writer 控制台和日志文件的合并输出
func (l *Logger) Writer() io.Writer {
	return lockedWriter{l}
}

type lockedWriter struct{ l *Logger }

func (w lockedWriter) Write(p []byte) (int, error) {
	w.l.mu.Lock()
	defer w.l.mu.Unlock()
	return w.l.multiOut.Write(p)
}

// Printf 格式化输出（同时写入控制台和日志文件）
func (l *Logger) Printf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprint(l.multiOut, msg)
}

// Println 输出一行（同时写入控制台和日志文件）
func (l *Logger) Println(args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.multiOut, args...)
}

func (l *Logger) logf(level, format string, args ...interface{}) {
	timestamp := time.Now().Format("15:04:05")
	msg := fmt.Sprintf(format, args...)
	l.mu.Lock()
	defer l.mu.Unlock()
	if level == "DEBUG" && !l.debug {
		return
	}
	fmt.Fprintf(l.multiOut, "[%s] %-5s %s\n", timestamp, level, msg)
}

// Info 输出信息日志
func (l *Logger) Info(format string, args ...interface{}) {
	l.logf("INFO", format, args...)
}

// Error 输出错误日志
func (l *Logger) Error(format string, args ...interface{}) {
	l.logf("ERROR", format, args...)
}

// Debug 输出调试日志
func (l *Logger) Debug(format string, args ...interface{}) {
	l.logf("DEBUG", format, args...)
}

// Section 输出分隔区域
func (l *Logger) Section(title string) {
	l.Println()
	l.Printf("==================== %s ====================\n", title)
}

// LogConfig 记录配置信息
func (l *Logger) LogConfig(cfg Config) {
	sizes := make([]string, len(cfg.Sizes))
	for i, s := range cfg.Sizes {
		sizes[i] = fmt.Sprintf("%d", s)
	}

	l.Section("测试配置")
	l.Printf("后端地址: %s\n", cfg.BaseURL)
	l.Printf("协议: %s\n", cfg.Protocol)
	if cfg.ResolveIP != "" {
		l.Printf("指定IP: %s\n", cfg.ResolveIP)
	}
	l.Printf("目标尺寸: %s\n", strings.Join(sizes, ", "))
	l.Printf("目标格式: %s\n", strings.Join(cfg.Formats, ", "))
	l.Printf("对比: %s vs %s (基准)\n", cfg.Challenger, cfg.Baseline)
	l.Printf("单个探测超时: %s\n", cfg.ProbeTimeout)
	l.Printf("并发数: %d\n", cfg.Concurrency)
}

// LogProbe 记录单个变体的探测结果
func (l *Logger) LogProbe(gen Generation, v Variant, o Outcome) {
	if o.Failure != nil {
		l.Printf("  [#%d %s] ❌ %s: %s\n", gen, v.Key(), o.Failure.Reason, o.Failure.Message)
		return
	}
	r := o.Record
	l.Printf("  [#%d %s] ✓ 加载: %.2fms, TTFB: %.2fms, 大小: %.1fKB, 分辨率: %s\n",
		gen, v.Key(), r.LoadTimeMs, r.TTFBMs, r.SizeKb, r.Resolution)
}
