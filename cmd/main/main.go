package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/BartekS5/streamkit/internal/cli"
	"github.com/BartekS5/streamkit/internal/config"
	"github.com/BartekS5/streamkit/pkg/logger"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		logger.Info("No .env file found, using system environment variables")
	}
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("%v", err)
		os.Exit(1)
	}
	if err := logger.Configure(cfg.LogLevel, cfg.LogFormat, cfg.LogFile); err != nil {
		logger.Error("%v", err)
		os.Exit(1)
	}
	defer logger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := cli.NewRootCmd()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
