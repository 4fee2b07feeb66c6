package main

import (
	"context"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"ethpulse/internal/app"
	"ethpulse/internal/config"
	"ethpulse/internal/logger"
)

func main() {
	cfgFlag := flag.String("config", "", "config file (default $ETHPULSE_CONFIG or configs/config.yaml)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfgPath := config.ResolvePath(*cfgFlag)
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("读取配置失败: %v", err)
	}
	logFile, err := setupLogOutput(cfg.App.LogPath)
	if err != nil {
		log.Fatalf("初始化日志文件失败: %v", err)
	}
	if logFile != nil {
		defer logFile.Close()
	}
	predictorLog, err := setupPredictorLogOutput(cfg.App.PredictorLogPath)
	if err != nil {
		log.Fatalf("初始化 predictor 日志失败: %v", err)
	}
	if predictorLog != nil {
		defer predictorLog.Close()
	}
	logger.SetFormat(cfg.App.LogFormat)
	logger.SetLevel(cfg.App.LogLevel)
	logger.Infof("✓ 配置加载成功（环境=%s，配置=%s）", cfg.App.Env, cfgPath)

	if err := config.Watch(cfgPath, func(next *config.Config) {
		if next.App.LogLevel != logger.Level() {
			logger.SetLevel(next.App.LogLevel)
			logger.Infof("[config] log_level -> %s", next.App.LogLevel)
		}
	}); err != nil {
		logger.Warnf("[config] watch disabled: %v", err)
	}

	a, err := app.NewApp(cfg)
	if err != nil {
		log.Fatalf("初始化应用失败: %v", err)
	}
	if err := a.Run(ctx); err != nil {
		log.Fatalf("运行失败: %v", err)
	}
}

func openAppend(path string) (*os.File, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
}

func setupLogOutput(path string) (*os.File, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, nil
	}
	file, err := openAppend(trimmed)
	if err != nil {
		return nil, err
	}
	mw := io.MultiWriter(os.Stdout, file)
	log.SetOutput(mw)
	logger.SetOutput(mw)
	return file, nil
}

// setupPredictorLogOutput 把 predictor 的请求/回复单独写到一个文件，未配置时不记录。
func setupPredictorLogOutput(path string) (*os.File, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		logger.SetPredictorWriter(nil)
		return nil, nil
	}
	f, err := openAppend(trimmed)
	if err != nil {
		return nil, err
	}
	logger.SetPredictorWriter(f)
	return f, nil
}
