package bootstrap

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leavend/genstudio/internal/generation"
	"github.com/leavend/genstudio/internal/infra"
	"github.com/leavend/genstudio/internal/relay"
)

func testConfig() *infra.Config {
	return &infra.Config{
		QueuePrefix:     "test",
		RelayDriver:     infra.RelayLocal,
		Synthetic:       true,
		ProviderTimeout: 30 * time.Second,
	}
}

func TestProvidersDefaultChain(t *testing.T) {
	exec, err := Providers(testConfig(), nil, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, []string{"local", "qwen", "synthetic"}, exec.Chain("logo"))
	assert.Equal(t, 30*time.Second, exec.Timeout())
	assert.Len(t, exec.Capabilities(), len(generation.Catalog()))
}

func TestProvidersChainOverride(t *testing.T) {
	cfg := testConfig()
	cfg.Chains = map[string][]string{"video": {"synthetic"}}
	exec, err := Providers(cfg, nil, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, []string{"synthetic"}, exec.Chain("video"))

	cfg.Chains = map[string][]string{"video": {"veo"}}
	_, err = Providers(cfg, nil, zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown provider "veo"`)
}

func TestQueueConfigsRejectShortLocks(t *testing.T) {
	cfg := testConfig()
	configs, err := QueueConfigs(cfg)
	require.NoError(t, err)
	assert.Len(t, configs, len(generation.Catalog())+1)

	cfg.ProviderTimeout = 10 * time.Minute
	_, err = QueueConfigs(cfg)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "shorter than the provider timeout"), err.Error())
}

func TestQueueOverRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	q, err := Queue(testConfig(), client, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, q.Ping(context.Background()))
	assert.Contains(t, q.Names(), generation.QueueNotificationFanout)
}

func TestRelayDrivers(t *testing.T) {
	cfg := testConfig()
	r, err := Relay(cfg, nil, zerolog.Nop())
	require.NoError(t, err)
	_, ok := r.(*relay.Local)
	assert.True(t, ok, "local driver")

	cfg.RelayDriver = infra.RelayRedis
	r, err = Relay(cfg, redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"}), zerolog.Nop())
	require.NoError(t, err)
	_, ok = r.(*relay.Redis)
	assert.True(t, ok, "redis driver")
}

func TestQwenKeysFallsBackToEnv(t *testing.T) {
	key, err := QwenKeys(nil, "env-key")(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "env-key", key)
}
