package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/subosito/gotenv"
	"go.uber.org/zap"

	"github.com/contaflow/expense-engine/internal/application/service"
	"github.com/contaflow/expense-engine/internal/config"
	httpserver "github.com/contaflow/expense-engine/internal/interfaces/http"
	"github.com/contaflow/expense-engine/internal/ledger"
	"github.com/contaflow/expense-engine/internal/matching"
	"github.com/contaflow/expense-engine/internal/repository"
	"github.com/contaflow/expense-engine/pkg/database"
	"github.com/contaflow/expense-engine/pkg/utils"
)

func main() {
	// Load .env if present; real env vars win
	_ = gotenv.Load()

	cfg, err := config.Load(configPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting expense engine",
		zap.String("version", "1.0.0"),
		zap.Int("port", cfg.Server.Port),
		zap.String("company", cfg.Ledger.Company))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.New(database.Config{
		Path:            cfg.Database.Path,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		BusyTimeout:     cfg.Database.BusyTimeout,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	migrator := database.NewMigrator(db, logger)
	if err := migrator.Run(ctx, repository.Migrations()); err != nil {
		logger.Fatal("Failed to run database migrations", zap.Error(err))
	}

	expenseRepo := repository.NewExpenseRepository(db, logger)
	feedbackRepo := repository.NewFeedbackRepository(db, logger)

	engine := ledger.NewEngine(nil)
	policy := matching.NewPolicy(matching.Thresholds{
		High:   cfg.Matching.HighConfidence,
		Medium: cfg.Matching.MediumConfidence,
	}, feedbackRepo, logger)

	expenseService := service.NewExpenseService(
		expenseRepo,
		engine,
		policy,
		logger,
		cfg.Ledger.Company,
		cfg.Ledger.Currency,
	)

	server := httpserver.NewServer(httpserver.ServerConfig{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, expenseService, sugaredLogger{logger.Sugar()})

	if err := server.Start(ctx); err != nil {
		logger.Fatal("HTTP server failed", zap.Error(err))
	}

	logger.Info("Server exited successfully")
}

func configPath() string {
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		return path
	}
	return "configs/config.yaml"
}

// sugaredLogger adapts zap's sugared logger to the HTTP layer's Logger
// interface.
type sugaredLogger struct {
	s *zap.SugaredLogger
}

func (l sugaredLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Infow(msg, keysAndValues...)
}

func (l sugaredLogger) Error(msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, keysAndValues...)
}
