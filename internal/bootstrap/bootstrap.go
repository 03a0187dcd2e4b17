// Package bootstrap wires the worker's concrete adapters into each
// pipeline component, grounded on components/consumer/internal/bootstrap's
// split (config.go builds the graph, service.go runs it, consumer.go
// registers per-queue handlers) — generalized here since this worker also
// serves an inbound HTTP webhook listener alongside the broker consumers,
// which the teacher's pure-consumer service does not.
package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cschwartz85032/loanserve-sub010/internal/allocation"
	"github.com/cschwartz85032/loanserve-sub010/internal/broker"
	"github.com/cschwartz85032/loanserve-sub010/internal/classifier"
	"github.com/cschwartz85032/loanserve-sub010/internal/config"
	"github.com/cschwartz85032/loanserve-sub010/internal/distribution"
	"github.com/cschwartz85032/loanserve-sub010/internal/envelope"
	"github.com/cschwartz85032/loanserve-sub010/internal/exception"
	"github.com/cschwartz85032/loanserve-sub010/internal/idempotency"
	"github.com/cschwartz85032/loanserve-sub010/internal/ingress"
	"github.com/cschwartz85032/loanserve-sub010/internal/outbox"
	"github.com/cschwartz85032/loanserve-sub010/internal/platform/mlog"
	"github.com/cschwartz85032/loanserve-sub010/internal/platform/mmongo"
	"github.com/cschwartz85032/loanserve-sub010/internal/platform/mpostgres"
	"github.com/cschwartz85032/loanserve-sub010/internal/platform/mredis"
	"github.com/cschwartz85032/loanserve-sub010/internal/returns"
	"github.com/cschwartz85032/loanserve-sub010/internal/reversal"
	"github.com/cschwartz85032/loanserve-sub010/internal/storage"
	"github.com/cschwartz85032/loanserve-sub010/internal/validation"
)

const producerID = "loanserve-worker@1"

// Service is the fully wired worker: everything Run needs to start and
// stop the broker consumers, the outbox dispatcher, and the webhook
// listener together.
type Service struct {
	Config *config.Config
	Logger mlog.Logger

	Broker     *broker.Connection
	Dispatcher *outbox.Dispatcher
	Router     *ingress.Router

	queues []queueBinding
}

// New connects every backing store, constructs each pipeline component,
// and registers its handler against the queue it owns (spec §4, table in
// §5). It does not start anything — call Service.Run for that.
func New(ctx context.Context, cfg *config.Config) (*Service, error) {
	logger, err := mlog.NewZapLogger(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	db, err := connectPostgres(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	mongoConn, err := connectMongo(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	redisClient, err := connectRedis(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	brokerConn := broker.NewConnection(cfg.RabbitMQURI, logger)
	if err := brokerConn.Declare(ctx); err != nil {
		return nil, fmt.Errorf("declare broker topology: %w", err)
	}

	factory := envelope.NewFactory(producerID)

	idemStore := idempotency.NewCachedStore(idempotency.NewPostgresStore(db), redisClient, 24*time.Hour)
	wrapper := idempotency.NewWrapper(idemStore)

	exceptionSvc := &exception.Service{
		Cases:  &exception.PostgresCaseStore{DB: db},
		Notes:  &exception.MongoNotesStore{Collection: mongoConn.Collection("exception_notes")},
		Logger: logger,
	}

	outboxStore := outbox.NewPostgresStore(db)
	publisher := outbox.NewBrokerPublisher(brokerConn)

	dispatcher := &outbox.Dispatcher{
		Store:     outboxStore,
		Publisher: publisher,
		Exception: exceptionSvc,
		Logger:    logger,
		Tick:      cfg.OutboxDispatchInterval,
		BatchSize: cfg.OutboxBatchSize,
	}

	payments := storage.NewPaymentStore(db)
	loans := storage.NewLoanStore(db)
	loanLock := storage.NewLoanLock(db)
	returnWindows := storage.NewReturnWindowStore(db)
	rules := storage.NewRuleStore(db)
	escrow := storage.NewEscrowStore(db)
	ledger := storage.NewLedgerStore(db)
	positions := storage.NewPositionStore(db)
	distributions := storage.NewDistributionStore(db)
	events := storage.NewEventChainStore(db)

	validationConsumer := &validation.Consumer{
		Loans:    loans,
		Payments: payments,
		Windows:  returnWindows,
		Outbox:   outboxStore,
		Wrapper:  wrapper,
		Factory:  factory,
		Logger:   logger,
	}

	classifierConsumer := &classifier.Consumer{
		Loans:     loans,
		Outbox:    outboxStore,
		Events:    events,
		Exception: exceptionSvc,
		Factory:   factory,
		Logger:    logger,
	}

	allocationConsumer := &allocation.Consumer{
		Locks:    loanLock,
		Balances: loans,
		Rules:    rules,
		Ledger:   ledger,
		Payments: payments,
		Outbox:   outboxStore,
		Wrapper:  wrapper,
		Factory:  factory,
		Logger:   logger,
	}

	distributionConsumer := &distribution.Consumer{
		Ledger:       ledger,
		Positions:    positions,
		Writer:       distributions,
		Outbox:       outboxStore,
		Wrapper:      wrapper,
		Factory:      factory,
		Logger:       logger,
		ServicingBps: cfg.DefaultServicingFeeBps,
	}

	reversalConsumer := &reversal.Consumer{
		Payments:     payments,
		Ledger:       ledger,
		Loans:        loans,
		Escrow:       escrow,
		Distribution: distributions,
		Outbox:       outboxStore,
		Exception:    exceptionSvc,
		Wrapper:      wrapper,
		Factory:      factory,
		Logger:       logger,
	}

	returnsHandler := &returns.Handler{
		Payments:  payments,
		Events:    events,
		Saga:      reversalConsumer,
		Exception: exceptionSvc,
		Outbox:    outboxStore,
		Bans:      payments,
		Wrapper:   wrapper,
		Factory:   factory,
		Logger:    logger,
	}

	webhookHandler := &ingress.Handler{Factory: factory, Outbox: outboxStore, Now: time.Now}
	router := ingress.NewRouter(webhookHandler, map[string]ingress.Provider{
		"ach": ingress.NewACHProvider(cfg.WebhookSecretACH),
	}, logger)

	svc := &Service{
		Config:     cfg,
		Logger:     logger,
		Broker:     brokerConn,
		Dispatcher: dispatcher,
		Router:     router,
	}

	svc.registerQueues(cfg, map[string]EnvelopeHandler{
		broker.QueueValidation:     validationConsumer.Handle,
		broker.QueueClassification: classifierConsumer.Handle,
		broker.QueueAllocation:     allocationConsumer.Handle,
		broker.QueueDistribution:   distributionConsumer.Handle,
		broker.QueueReversal:       reversalConsumer.Handle,
		broker.QueueReturned:       returnsHandler.Handle,
	})

	return svc, nil
}

func connectPostgres(ctx context.Context, cfg *config.Config, logger mlog.Logger) (*sql.DB, error) {
	conn := &mpostgres.Connection{
		ConnectionString: fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
			cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName),
		Logger: logger,
	}

	db, err := conn.GetDB(ctx)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	return db, nil
}

// connectMongo returns the connection hub itself, not the raw client: the
// exception notes store needs Collection(name), which the hub provides.
func connectMongo(ctx context.Context, cfg *config.Config, logger mlog.Logger) (*mmongo.Connection, error) {
	conn := &mmongo.Connection{ConnectionString: cfg.MongoURI, Database: cfg.MongoDatabase, Logger: logger}

	if _, err := conn.GetClient(ctx); err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	return conn, nil
}

func connectRedis(ctx context.Context, cfg *config.Config, logger mlog.Logger) (*redis.Client, error) {
	conn := &mredis.Connection{ConnectionString: cfg.RedisURL, Logger: logger}

	client, err := conn.GetClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	return client, nil
}
