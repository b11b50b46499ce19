package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/clipworks/reframe/internal/app"
	"github.com/clipworks/reframe/internal/conf"
)

// buildVersion 由编译参数注入
var buildVersion = "dev"

func main() {
	var confPath string
	flag.StringVar(&confPath, "conf", "configs/config.toml", "配置文件路径，不存在时生成默认配置")
	flag.Parse()

	bc, err := conf.SetupConfig(confPath)
	if err != nil {
		slog.Error("load config", "path", confPath, "err", err)
		os.Exit(1)
	}
	bc.BuildVersion = buildVersion

	level := slog.LevelInfo
	if bc.Debug {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(log)

	stop, err := app.Run(bc, log)
	if err != nil {
		slog.Error("start", "err", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	<-ctx.Done()
	slog.Info("shutting down")
	stop()
}
