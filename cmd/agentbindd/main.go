package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"AgentBind-Chain/internal/api"
	"AgentBind-Chain/internal/association"
	"AgentBind-Chain/internal/auth"
	"AgentBind-Chain/internal/config"
	"AgentBind-Chain/internal/indexer"
	"AgentBind-Chain/internal/observability/alerting"
	"AgentBind-Chain/internal/registry"
	"AgentBind-Chain/internal/registry/provider"
	"AgentBind-Chain/internal/storage/mysql"
	"AgentBind-Chain/pkg/logger"
)

// main is the entry point of the agentbindd daemon.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("agentbindd failed: %v", err)
	}
}

func run(ctx context.Context) error {
	configPath := os.Getenv("AGENTBIND_CONFIG")
	if configPath == "" {
		configPath = filepath.Join("configs", "agentbind.json")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Outputs: cfg.Log.Outputs,
		Audit: logger.AuditConfig{
			Enabled:    cfg.Log.Audit.Enabled,
			Path:       cfg.Log.Audit.Path,
			MaxSizeMB:  cfg.Log.Audit.MaxSizeMB,
			MaxBackups: cfg.Log.Audit.MaxBackups,
			MaxAgeDays: cfg.Log.Audit.MaxAgeDays,
		},
	}); err != nil {
		return err
	}
	defer logger.Sync()

	store, err := buildStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	bus, err := buildBus(cfg)
	if err != nil {
		return err
	}
	defer bus.Close()

	tokenRegistry, closeRegistry, err := buildRegistry(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeRegistry()

	alerter := buildAlerter(cfg)

	gate := association.NewGate(tokenRegistry, store, bus,
		association.WithPromptPolicy(association.PromptPolicy{
			MinLength: cfg.Policy.PromptMinLength,
			MaxLength: cfg.Policy.PromptMaxLength,
		}),
		association.WithAlertDispatcher(alerter),
	)

	verifier := auth.NewVerifier(time.Duration(cfg.Auth.MaxAgeSeconds) * time.Second)

	var idx *indexer.Indexer
	if cfg.Indexer.Enabled {
		idx = indexer.New(bus,
			indexer.WithWorkerCount(cfg.Indexer.Workers),
			indexer.WithAlertDispatcher(alerter),
		)
		go func() {
			if err := idx.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.L().Error("indexer stopped", "error", err)
			}
		}()
	}

	server := api.NewServer(cfg.Server.Address, gate, verifier, idx)
	logger.L().Info("agentbindd listening", "address", cfg.Server.Address)
	return server.Start(ctx)
}

func buildStore(ctx context.Context, cfg *config.Config) (association.Store, error) {
	switch cfg.Storage.Driver {
	case "memory", "":
		return association.NewMemoryStore(), nil
	case "mysql":
		return mysql.NewAssociationStore(ctx, mysql.Config{
			DSN:             cfg.Storage.MySQL.DSN,
			MaxOpenConns:    cfg.Storage.MySQL.MaxOpenConns,
			MaxIdleConns:    cfg.Storage.MySQL.MaxIdleConns,
			ConnMaxLifetime: time.Duration(cfg.Storage.MySQL.ConnMaxLifetimeSeconds) * time.Second,
			ConnMaxIdleTime: time.Duration(cfg.Storage.MySQL.ConnMaxIdleTimeSeconds) * time.Second,
		})
	default:
		return nil, errors.New("unsupported storage driver: " + cfg.Storage.Driver)
	}
}

func buildBus(cfg *config.Config) (association.Bus, error) {
	switch cfg.Events.Driver {
	case "memory", "":
		return association.NewMemoryBus(cfg.Events.BufferSize), nil
	case "redis":
		return association.NewRedisBus(association.RedisBusConfig{
			Address:   cfg.Events.Redis.Address,
			Password:  cfg.Events.Redis.Password,
			DB:        cfg.Events.Redis.DB,
			List:      cfg.Events.Redis.List,
			BlockWait: time.Duration(cfg.Events.Redis.BlockWaitSeconds) * time.Second,
		})
	case "rabbitmq":
		return association.NewRabbitMQBus(association.RabbitMQConfig{
			URL:        cfg.Events.RabbitMQ.URL,
			Queue:      cfg.Events.RabbitMQ.Queue,
			Prefetch:   cfg.Events.RabbitMQ.Prefetch,
			Durable:    cfg.Events.RabbitMQ.Durable,
			AutoDelete: cfg.Events.RabbitMQ.AutoDelete,
		})
	default:
		return nil, errors.New("unsupported events driver: " + cfg.Events.Driver)
	}
}

func buildRegistry(ctx context.Context, cfg *config.Config) (registry.TokenRegistry, func(), error) {
	switch cfg.Registry.Driver {
	case "memory", "":
		return registry.NewMemoryRegistry(), func() {}, nil
	case "ethereum":
		chains, err := provider.New(ctx, provider.Config{
			ChainConfig:  cfg.Registry.ChainConfig,
			DefaultChain: cfg.Registry.DefaultChain,
		})
		if err != nil {
			return nil, nil, err
		}
		client, err := chains.DefaultClient()
		if err != nil {
			chains.Close()
			return nil, nil, err
		}
		return client, chains.Close, nil
	default:
		return nil, nil, errors.New("unsupported registry driver: " + cfg.Registry.Driver)
	}
}

func buildAlerter(cfg *config.Config) alerting.Dispatcher {
	notifiers := []alerting.Notifier{&alerting.LogNotifier{}}
	if cfg.Alerts.WebhookURL != "" {
		notifiers = append(notifiers, &alerting.WebhookNotifier{URL: cfg.Alerts.WebhookURL})
	}
	return alerting.NewFanout(notifiers...)
}
