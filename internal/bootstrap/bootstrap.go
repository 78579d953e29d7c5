// Package bootstrap wires the custody backends into the use cases shared by
// the api and worker binaries.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/trustdoc/custody/internal/config"
	"github.com/trustdoc/custody/internal/core/ports"
	"github.com/trustdoc/custody/internal/core/usecase"
	"github.com/trustdoc/custody/internal/infrastructure/contentstore/ipfs"
	"github.com/trustdoc/custody/internal/infrastructure/hasher/enclave"
	"github.com/trustdoc/custody/internal/infrastructure/ledger/gateway"
	"github.com/trustdoc/custody/internal/infrastructure/ledger/memory"
	"github.com/trustdoc/custody/internal/infrastructure/queue/nats"
	"github.com/trustdoc/custody/internal/infrastructure/repository/postgres"
	"github.com/trustdoc/custody/internal/infrastructure/resilience"
)

type App struct {
	Config config.Config

	Queue  *nats.Queue
	Repo   ports.DocumentRepository
	Hasher ports.IntegrityHasher

	IngestUC    ports.DocumentIngestor
	DeleteUC    ports.DocumentRemover
	QueryUC     ports.DocumentReader
	LifecycleUC ports.DocumentLifecycle
	ReconcileUC *usecase.ReconcileUseCase

	closeFn func()
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	repo := postgres.NewDocumentRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	hasher, err := enclave.New(enclave.Options{
		HostPath: cfg.TEEHostPath,
		Simulate: cfg.TEESimulate,
		Timeout:  time.Duration(cfg.TEETimeoutSeconds) * time.Second,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init enclave hasher: %w", err)
	}

	store := ipfs.New(cfg.IPFSAPIURL)

	executor := resilience.NewExecutor(resilience.DefaultPolicy())

	registrar, closeLedger, err := newRegistrar(cfg, executor)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: executor,
	})
	if err != nil {
		closeLedger()
		_ = db.Close()
		return nil, fmt.Errorf("init reconcile queue: %w", err)
	}

	return &App{
		Config: cfg,
		Queue:  queue,
		Repo:   repo,
		Hasher: hasher,

		IngestUC:    usecase.NewIngestDocumentUseCase(hasher, store, registrar, repo, queue, cfg.IPFSPublishRoot),
		DeleteUC:    usecase.NewDeleteDocumentUseCase(repo, store, registrar),
		QueryUC:     usecase.NewQueryUseCase(repo),
		LifecycleUC: usecase.NewLifecycleUseCase(repo, registrar),
		ReconcileUC: usecase.NewReconcileUseCase(repo),

		closeFn: func() {
			queue.Close()
			closeLedger()
			_ = db.Close()
		},
	}, nil
}

func newRegistrar(cfg config.Config, executor *resilience.Executor) (ports.LedgerRegistrar, func(), error) {
	switch cfg.LedgerMode {
	case "memory":
		return memory.New(cfg.LedgerSignerID), func() {}, nil
	case "gateway", "":
		registrar, err := gateway.New(gateway.Options{
			BaseURL:       cfg.LedgerGatewayURL,
			SignerID:      cfg.LedgerSignerID,
			SettleTimeout: time.Duration(cfg.LedgerSettleTimeoutSeconds) * time.Second,
			Executor:      executor,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("init ledger gateway: %w", err)
		}
		return registrar, registrar.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown ledger mode %q", cfg.LedgerMode)
	}
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
