// Package bootstrap assembles the pieces shared by the api, worker and
// genctl processes from loaded configuration.
package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"

	"github.com/redis/go-redis/v9"

	"github.com/leavend/genstudio/internal/generation"
	"github.com/leavend/genstudio/internal/infra"
	"github.com/leavend/genstudio/internal/infra/credentials"
	"github.com/leavend/genstudio/internal/providers"
	"github.com/leavend/genstudio/internal/providers/local"
	"github.com/leavend/genstudio/internal/providers/qwen"
	"github.com/leavend/genstudio/internal/providers/synthetic"
	"github.com/leavend/genstudio/internal/queue"
	"github.com/leavend/genstudio/internal/relay"
	"github.com/leavend/genstudio/internal/storage"
)

// QueueConfigs returns every catalog queue with env overrides applied. Queues
// that call providers must hold their lock at least one provider timeout.
func QueueConfigs(cfg *infra.Config) ([]queue.Config, error) {
	configs, err := generation.QueueConfigs(infra.QueueConfig)
	if err != nil {
		return nil, err
	}
	for _, c := range configs {
		if c.Name == generation.QueueNotificationFanout {
			continue
		}
		if c.LockDuration < cfg.ProviderTimeout {
			return nil, fmt.Errorf("queue %s: lock duration %s is shorter than the provider timeout %s", c.Name, c.LockDuration, cfg.ProviderTimeout)
		}
	}
	return configs, nil
}

// Queue builds the durable Redis queue.
func Queue(cfg *infra.Config, client redis.UniversalClient, logger infra.Logger) (*queue.Queue, error) {
	configs, err := QueueConfigs(cfg)
	if err != nil {
		return nil, err
	}
	return queue.New(queue.NewRedisBackend(client, cfg.QueuePrefix, nil), logger, configs...)
}

// Relay picks the cross-process event relay named by RELAY_DRIVER.
func Relay(cfg *infra.Config, client redis.UniversalClient, logger infra.Logger) (relay.Relay, error) {
	switch cfg.RelayDriver {
	case infra.RelayAMQP:
		r, err := relay.NewAMQP(cfg.RabbitURL, cfg.RelayExchange, logger)
		if err != nil {
			return nil, err
		}
		return r, nil
	case infra.RelayLocal:
		return relay.NewLocal(), nil
	default:
		return relay.NewRedis(client, cfg.QueuePrefix+":events", logger), nil
	}
}

// QwenKeys resolves the DashScope key from the credentials store, falling
// back to QWEN_API_KEY. A nil store uses the env value only.
func QwenKeys(store *credentials.Store, envKey string) qwen.KeySource {
	return func(ctx context.Context) (string, error) {
		if store == nil {
			return envKey, nil
		}
		return store.Resolve(ctx, credentials.ProviderQwen, envKey)
	}
}

// Providers registers every adapter and resolves the per-capability chains.
// Without CHAIN_<CAPABILITY> the order is local, qwen, then synthetic when
// enabled.
func Providers(cfg *infra.Config, keys qwen.KeySource, logger infra.Logger) (*providers.Executor, error) {
	httpClient := &http.Client{Timeout: cfg.ProviderTimeout}
	reg := providers.NewRegistry(
		local.NewAdapter(local.Options{BaseURL: cfg.LocalGPUURL, HTTPClient: httpClient, Logger: logger}),
		qwen.NewAdapter(qwen.NewClient(qwen.Options{
			APIKey:     cfg.QwenAPIKey,
			Keys:       keys,
			BaseURL:    cfg.QwenBaseURL,
			Model:      cfg.QwenModel,
			HTTPClient: httpClient,
			Logger:     logger,
		})),
	)
	fallback := []string{local.Name, qwen.Name}
	if cfg.Synthetic {
		reg.Add(synthetic.NewAdapter(synthetic.Options{}))
		fallback = append(fallback, synthetic.Name)
	}

	order := make(map[string][]string)
	for _, e := range generation.Catalog() {
		order[e.Capability] = cfg.Chain(e.Capability, fallback)
	}
	chains, err := reg.Chains(order)
	if err != nil {
		return nil, err
	}
	return providers.NewExecutor(chains, providers.Options{Timeout: cfg.ProviderTimeout, Logger: logger}), nil
}

// FileStore opens the artifact store at STORAGE_PATH, made absolute so api
// and worker processes started from different directories agree.
func FileStore(cfg *infra.Config) (*storage.FileStore, error) {
	path := cfg.StoragePath
	if path == "" {
		path = "./storage"
	}
	if !filepath.IsAbs(path) {
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
	}
	return storage.NewFileStore(path, cfg.StorageBaseURL)
}
