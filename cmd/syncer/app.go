package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"wpsync/internal/broker"
	"wpsync/internal/config"
	"wpsync/internal/logging"
	"wpsync/internal/registry"
	"wpsync/internal/service"
	"wpsync/internal/source/wordpress"
	"wpsync/internal/storage/postgres"
)

// app holds the wiring shared by every command.
type app struct {
	cfg        *config.Config
	logger     *slog.Logger
	logCloser  io.Closer
	db         *sqlx.DB
	records    *postgres.RecordStore
	publisher  *broker.Publisher
	reconciler *service.Reconciler
}

func loadConfig() (*config.Config, *slog.Logger, io.Closer, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}

	logger, closer := logging.New(logging.Options{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
	})
	return cfg, logger, closer, nil
}

func connect(cfg *config.Config, logger *slog.Logger) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	logger.Info("connected to database", "host", cfg.Database.Host, "dbname", cfg.Database.DBName)
	return db, nil
}

// newApp loads config, connects to the database and builds the reconciler.
// The publisher is skipped when RabbitMQ is disabled.
func newApp() (*app, error) {
	cfg, logger, closer, err := loadConfig()
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger, logCloser: closer}

	reg, err := registry.Build(cfg, logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("build registry: %w", err)
	}

	a.db, err = connect(cfg, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	var publisher service.Publisher
	if !cfg.RabbitMQ.Disabled {
		a.publisher, err = broker.NewPublisher(broker.Config{
			URL:        cfg.RabbitMQ.URL,
			Exchange:   cfg.RabbitMQ.Exchange,
			RoutingKey: cfg.RabbitMQ.RoutingKey,
			QueueName:  cfg.RabbitMQ.QueueName,
		}, logger)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("connect to rabbitmq: %w", err)
		}
		publisher = a.publisher
	}

	client := wordpress.New(wordpress.Config{
		BaseURL:                   cfg.API.BaseURL,
		PerPage:                   cfg.API.PerPage,
		Timeout:                   cfg.API.Timeout,
		UserAgent:                 cfg.API.UserAgent,
		Username:                  cfg.API.Username,
		Password:                  cfg.API.Password,
		AcceptServerErrorPayloads: cfg.API.AcceptServerErrorPayloads,
	}, logger)

	a.records = postgres.NewRecordStore(a.db)
	a.reconciler = service.NewReconciler(
		client,
		a.records,
		postgres.NewSyncStateStore(a.db),
		postgres.NewTransactionManager(a.db),
		publisher,
		reg,
		logger,
		cfg.Sync,
	)
	return a, nil
}

func (a *app) Close() {
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.logger.Warn("failed to close publisher", "error", err)
		}
	}
	if a.db != nil {
		a.db.Close()
	}
	if a.logCloser != nil {
		a.logCloser.Close()
	}
}
