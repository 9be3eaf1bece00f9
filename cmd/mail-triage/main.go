package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/mikey/llm-mail-triage/internal/adapters/intake"
	"github.com/mikey/llm-mail-triage/internal/di"
	"github.com/mikey/llm-mail-triage/internal/factory"
)

func main() {
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	container, err := di.BuildContainer(*configPath)
	if err != nil {
		fmt.Printf("Failed to build dependency container: %v\n", err)
		os.Exit(1)
	}

	if err := container.Invoke(run); err != nil {
		fmt.Printf("Application error: %v\n", err)
		os.Exit(1)
	}
}

func run(
	logger *zap.Logger,
	smtpIntake *intake.SMTPIntake,
	pipeline *factory.Pipeline,
) error {
	defer logger.Sync()

	if err := smtpIntake.Start(); err != nil {
		logger.Error("Failed to start SMTP intake", zap.Error(err))
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	<-sigCh
	logger.Info("Shutting down...")

	if err := smtpIntake.Stop(); err != nil {
		logger.Error("Failed to stop SMTP intake", zap.Error(err))
	}
	pipeline.Stop()

	logger.Info("Shutdown complete")
	return nil
}
