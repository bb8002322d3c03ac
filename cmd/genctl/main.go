// Command genctl is the operator CLI: schema migration, job inspection,
// manual enqueue, broadcasts, streaming batches and provider credentials.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/leavend/genstudio/internal/adapter/repo"
	"github.com/leavend/genstudio/internal/bootstrap"
	"github.com/leavend/genstudio/internal/generation"
	"github.com/leavend/genstudio/internal/infra"
	"github.com/leavend/genstudio/internal/infra/credentials"
	"github.com/leavend/genstudio/internal/notify"
	"github.com/leavend/genstudio/internal/queue"
)

func main() {
	_ = godotenv.Load()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// cli carries lazily opened connections shared by subcommands. Each opener
// registers its own cleanup.
type cli struct {
	verbose  bool
	cfg      *infra.Config
	logger   infra.Logger
	closers  []func()
	sql      *infra.SQLRunner
	client   *redis.Client
	queue    *queue.Queue
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:           "genctl",
		Short:         "Operate the generation job system",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := zerolog.WarnLevel
			if c.verbose {
				level = zerolog.DebugLevel
			}
			c.logger = zerolog.New(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr()}).Level(level).With().Timestamp().Logger()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			c.close()
		},
	}
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "log debug output to stderr")

	root.AddCommand(
		newMigrateCmd(c),
		newStatusCmd(c),
		newEnqueueCmd(c),
		newBroadcastCmd(c),
		newStreamCmd(c),
		newCredentialsCmd(c),
	)
	return root
}

func (c *cli) config() (*infra.Config, error) {
	if c.cfg != nil {
		return c.cfg, nil
	}
	cfg, err := infra.LoadConfig()
	if err != nil {
		return nil, err
	}
	c.cfg = cfg
	return cfg, nil
}

func (c *cli) db(ctx context.Context) (*infra.SQLRunner, error) {
	if c.sql != nil {
		return c.sql, nil
	}
	cfg, err := c.config()
	if err != nil {
		return nil, err
	}
	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	c.closers = append(c.closers, pool.Close)
	c.sql = infra.NewSQLRunner(pool, c.logger)
	return c.sql, nil
}

func (c *cli) redisClient(ctx context.Context) (*redis.Client, error) {
	if c.client != nil {
		return c.client, nil
	}
	cfg, err := c.config()
	if err != nil {
		return nil, err
	}
	client, err := infra.NewRedisClient(cfg)
	if err != nil {
		return nil, err
	}
	c.closers = append(c.closers, func() { _ = client.Close() })
	if err := infra.PingRedis(ctx, client); err != nil {
		c.logger.Warn().Err(err).Msg("redis unreachable")
	}
	c.client = client
	return client, nil
}

func (c *cli) jobs(ctx context.Context) (*queue.Queue, error) {
	if c.queue != nil {
		return c.queue, nil
	}
	cfg, err := c.config()
	if err != nil {
		return nil, err
	}
	client, err := c.redisClient(ctx)
	if err != nil {
		return nil, err
	}
	q, err := bootstrap.Queue(cfg, client, c.logger)
	if err != nil {
		return nil, err
	}
	c.queue = q
	return q, nil
}

// service wires the generation service against the configured stores, the
// relay and the provider chains, as the api process does.
func (c *cli) service(ctx context.Context) (*generation.Service, error) {
	cfg, err := c.config()
	if err != nil {
		return nil, err
	}
	sqlRunner, err := c.db(ctx)
	if err != nil {
		return nil, err
	}
	q, err := c.jobs(ctx)
	if err != nil {
		return nil, err
	}
	client, err := c.redisClient(ctx)
	if err != nil {
		return nil, err
	}
	events, err := bootstrap.Relay(cfg, client, c.logger)
	if err != nil {
		return nil, err
	}
	c.closers = append(c.closers, func() { _ = events.Close() })
	store, err := bootstrap.FileStore(cfg)
	if err != nil {
		return nil, err
	}
	exec, err := bootstrap.Providers(cfg, bootstrap.QwenKeys(credentials.NewStore(sqlRunner), cfg.QwenAPIKey), c.logger)
	if err != nil {
		return nil, err
	}
	generations := repo.NewGenerationRepository(sqlRunner)
	dispatcher := notify.NewDispatcher(repo.NewNotificationRepository(sqlRunner), events, c.logger)
	runner := generation.NewRunner(generations, exec, store, dispatcher, c.logger)
	return generation.NewService(generations, q, runner, c.logger), nil
}

func (c *cli) close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}
