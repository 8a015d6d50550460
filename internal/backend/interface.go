package backend

import (
	"context"
	"slices"

	"bottega/internal/amqp"
	"bottega/internal/sheets"
	"bottega/internal/store"
)

// CleanupFunc releases what CreateBackend opened.
type CleanupFunc func() error

// BackendResult is an opened record store plus the optional broker.
type BackendResult struct {
	Store store.Store
	// Broker is nil when AMQP is disabled, or unreachable and not required.
	Broker  *amqp.Client
	Ready   func(ctx context.Context) error
	Cleanup CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
	CreateSummaryWriter(ctx context.Context, config Config) (sheets.SummaryWriter, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	SQLiteDBPath string

	// Seed applies SeedFile, or the built-in seed when empty, after open.
	Seed     bool
	SeedFile string

	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
	// RequireBroker turns a failed AMQP connection into an error.
	RequireBroker bool

	SheetsEnabled bool
}

type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

func (bt BackendType) String() string {
	return string(bt)
}

func (bt BackendType) IsValid() bool {
	return slices.Contains(GetBackendTypes(), bt)
}
