package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"bottega/internal/amqp"
	"bottega/internal/seed"
	"bottega/internal/sheets"
	gsheet "bottega/internal/sheets/google"
	sheetsmem "bottega/internal/sheets/memory"
	"bottega/internal/storage"
	"bottega/internal/store"
	"bottega/internal/store/memory"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger: logger,
	}
}

// CreateBackend opens the record store, seeds it when asked and connects
// to the broker.
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var (
		result *BackendResult
		err    error
	)
	switch config.Type {
	case SQLiteBackend:
		result, err = f.createSQLiteBackend(ctx, config)
	case MemoryBackend:
		result = f.createMemoryBackend()
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
	if err != nil {
		return nil, err
	}

	if config.Seed {
		if err := f.seed(ctx, result.Store, config.SeedFile); err != nil {
			result.Cleanup()
			return nil, err
		}
	}

	if config.AMQPURL != "" {
		client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
		switch {
		case err != nil && config.RequireBroker:
			result.Cleanup()
			return nil, fmt.Errorf("failed to connect to AMQP: %w", err)
		case err != nil:
			f.logger.Warn("Failed to initialize AMQP client, continuing without ledger events", "error", err)
		default:
			f.logger.Info("Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue)
			result.Broker = client
			closeStore := result.Cleanup
			result.Cleanup = func() error {
				return errors.Join(client.Close(), closeStore())
			}
		}
	}
	return result, nil
}

func (f *DefaultFactory) createSQLiteBackend(ctx context.Context, config Config) (*BackendResult, error) {
	s, err := storage.NewSQLiteStore(ctx, config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite store: %w", err)
	}

	f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)

	return &BackendResult{
		Store:   s,
		Ready:   s.Ping,
		Cleanup: s.Close,
	}, nil
}

func (f *DefaultFactory) createMemoryBackend() *BackendResult {
	s := memory.New()

	f.logger.Warn("Initialized memory backend; records are lost on exit")

	return &BackendResult{
		Store:   s,
		Ready:   func(context.Context) error { return nil },
		Cleanup: s.Close,
	}
}

func (f *DefaultFactory) seed(ctx context.Context, s store.Store, path string) error {
	file, err := seed.Load(path)
	if err != nil {
		return fmt.Errorf("load seed: %w", err)
	}
	res, err := seed.Apply(ctx, s, file)
	if err != nil {
		return fmt.Errorf("apply seed: %w", err)
	}
	if res != (seed.Result{}) {
		f.logger.Info("Seeded record store", "inserted", res.String())
	}
	return nil
}

// CreateSummaryWriter returns the Google Sheets exporter when enabled and
// an in-memory writer otherwise.
func (f *DefaultFactory) CreateSummaryWriter(ctx context.Context, config Config) (sheets.SummaryWriter, error) {
	if !config.SheetsEnabled {
		f.logger.Info("Google Sheets export disabled, keeping summaries in memory")
		return sheetsmem.New(), nil
	}
	cli, err := gsheet.NewFromEnv(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
	}
	f.logger.Info("Initialized Google Sheets exporter")
	return cli, nil
}
