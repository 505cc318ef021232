package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// exportReport 打印表格并按配置导出报告
func exportReport(cfg *Config, logger *Logger, report *Report) {
	printRecordTable(logger.Writer(), report)
	printSummaryTable(logger.Writer(), report)

	logger.Section("报告生成")

	if cfg.EnableJSON {
		if path, err := ExportJSON(report, cfg.OutputDir); err != nil {
			logger.Error("导出 JSON 报告失败: %v", err)
		} else {
			logger.Printf("📄 JSON 报告: %s\n", path)
		}
	}

	if cfg.EnableHTML {
		if path, err := ExportHTML(report, cfg.OutputDir); err != nil {
			logger.Error("导出 HTML 报告失败: %v", err)
		} else {
			logger.Printf("🌐 HTML 报告: %s\n", path)
		}
	}

	if cfg.EnableChart {
		paths, err := ExportCharts(report, cfg.OutputDir)
		for _, path := range paths {
			logger.Printf("📈 图表: %s\n", path)
		}
		if err != nil {
			logger.Error("导出图表失败: %v", err)
		}
	}
}

// resolveFilename 配置了 upload.file 时先上传，返回后端给出的文件名
func resolveFilename(ctx context.Context, cfg *Config, logger *Logger) (string, error) {
	if cfg.UploadFile == "" {
		if cfg.Filename == "" {
			return "", errors.New("需要配置 filename 或 upload.file")
		}
		return cfg.Filename, nil
	}

	backend := NewBackendClient(cfg.BaseURL, &http.Client{Timeout: cfg.Timeout})
	token := cfg.Token
	if token == "" {
		if cfg.Username == "" {
			return "", fmt.Errorf("上传需要 %s 或 %s/%s", envToken, envUsername, envPassword)
		}
		var err error
		token, err = backend.Login(ctx, cfg.Username, cfg.Password)
		if err != nil {
			return "", err
		}
		logger.Info("登录成功: %s", cfg.Username)
	}

	filename, err := backend.Upload(ctx, token, cfg.UploadFile)
	if err != nil {
		return "", err
	}
	logger.Info("上传完成: %s -> %s", cfg.UploadFile, filename)
	return filename, nil
}

// runOnce 单次测试：开启一个批次并等待其报告
func runOnce(ctx context.Context, cfg *Config, logger *Logger, session *Session) error {
	filename, err := resolveFilename(ctx, cfg, logger)
	if err != nil {
		return err
	}

	logger.Section("开始测试")
	gen, err := session.Start(ctx, filename)
	if err != nil {
		return err
	}

	waitCtx, cancel := context.WithTimeout(ctx, cfg.RunTimeout)
	defer cancel()

	report, err := session.Wait(waitCtx, gen)
	if err != nil {
		return fmt.Errorf("等待批次 #%d 失败: %w", gen, err)
	}

	exportReport(cfg, logger, report)
	return nil
}

// serve 以 HTTP 服务方式运行，每个完成的批次都会导出报告
func serve(ctx context.Context, cfg *Config, logger *Logger, session *Session) error {
	reports, unsubscribe := session.Subscribe()
	defer unsubscribe()

	go func() {
		for {
			select {
			case report := <-reports:
				exportReport(cfg, logger, report)
			case <-ctx.Done():
				return
			}
		}
	}()

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           NewServer(ctx, session, logger).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("HTTP 服务监听: %s", cfg.Listen)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ===============================
// 主函数
// ===============================

func main() {
	configPath := defaultConfigPath
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg, err := LoadConfig(configPath)
	if err != nil {
		fmt.Printf("❌ 加载配置失败: %v\n", err)
		fmt.Println("请确保 config.yaml 文件存在，或指定配置文件路径: ./imgbench [config.yaml]")
		os.Exit(1)
	}

	logger, err := NewLogger(cfg.OutputDir, cfg.EnableLog)
	if err != nil {
		fmt.Printf("❌ 初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()
	logger.SetDebug(cfg.Debug)

	logger.Println("🚀 图片格式加载性能对比")
	logger.Println("==============================")
	logger.LogConfig(*cfg)

	client, err := NewHTTPClient(cfg.Protocol, cfg.ResolveIP, cfg.Timeout)
	if err != nil {
		logger.Error("%v", err)
		os.Exit(1)
	}
	session := NewSession(cfg.SessionOptions(), NewProber(client, cfg.ProbeTimeout), logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Listen != "" {
		err = serve(ctx, cfg, logger, session)
	} else {
		err = runOnce(ctx, cfg, logger, session)
	}
	if err != nil {
		logger.Error("%v", err)
		logger.Close()
		os.Exit(1)
	}

	if logger.GetLogPath() != "" {
		logger.Printf("📝 日志文件: %s\n", logger.GetLogPath())
	}
	logger.Println("\n✅ 测试完成!")
}
