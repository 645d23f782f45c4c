package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"graph-cdc/internal/binlog"
	"graph-cdc/internal/config"
	"graph-cdc/internal/models"
	"graph-cdc/internal/nats"
	"graph-cdc/internal/processor"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	logger.SetLevel(logrus.InfoLevel)

	configPath := "config.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}

	if level, err := logrus.ParseLevel(cfg.Logging.Level); err == nil {
		logger.SetLevel(level)
	}

	logger.Info("Starting graph CDC service...")
	logger.Infof("Source id: %s", cfg.SourceID())

	checker := NewMySQLChecker(cfg.MySQL, logger)
	if err := checker.CheckConnectionAndPermissions(); err != nil {
		logger.Fatalf("MySQL preflight check failed: %v", err)
	}

	reader, err := binlog.NewReader(cfg.MySQL, cfg.Binlog, logger)
	if err != nil {
		logger.Fatalf("Failed to create binlog reader: %v", err)
	}
	defer reader.Close()

	encoder := models.NewEncoderWithSourceID(cfg.SourceID())
	publisher, err := nats.NewPublisher(cfg.NATS, encoder, logger)
	if err != nil {
		logger.Fatalf("Failed to create NATS publisher: %v", err)
	}
	defer publisher.Close()

	var transformer *processor.Transformer
	if cfg.Transform.Script != "" {
		transformer, err = processor.NewTransformer(cfg.Transform.Script, logger)
		if err != nil {
			logger.Fatalf("Failed to load transformer: %v", err)
		}
	}

	mapper := processor.NewMapper(cfg.Graph)
	proc, err := processor.NewProcessor(reader, publisher, mapper, transformer, cfg.MySQL, logger)
	if err != nil {
		logger.Fatalf("Failed to create processor: %v", err)
	}
	defer proc.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		errChan <- proc.Start(ctx)
	}()

	select {
	case sig := <-sigChan:
		logger.Infof("Received signal: %v, shutting down...", sig)
		cancel()
	case err := <-errChan:
		if err != nil {
			logger.Errorf("Processor error: %v", err)
		}
	}

	logger.Info("Graph CDC service stopped")
}
