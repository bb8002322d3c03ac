package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/leavend/genstudio/internal/adapter/repo"
	"github.com/leavend/genstudio/internal/generation"
	"github.com/leavend/genstudio/internal/infra"
	"github.com/leavend/genstudio/internal/notify"
	"github.com/leavend/genstudio/internal/providers"
	"github.com/leavend/genstudio/internal/providers/synthetic"
	"github.com/leavend/genstudio/internal/relay"
	"github.com/leavend/genstudio/internal/storage"
	"github.com/leavend/genstudio/internal/stream"
)

func newStreamCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stream",
		Short: "Run streaming batches and print NDJSON",
	}
	cmd.AddCommand(newStreamLogosCmd(c))
	return cmd
}

func newStreamLogosCmd(c *cli) *cobra.Command {
	var (
		p       generation.Payload
		n       int
		offline bool
		outDir  string
	)
	cmd := &cobra.Command{
		Use:   "logos",
		Short: "Generate a batch of logos, one line per finished item",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				svc *generation.Service
				err error
			)
			if offline {
				svc, err = offlineService(c.logger, outDir)
			} else {
				svc, err = c.service(cmd.Context())
			}
			if err != nil {
				return err
			}
			p.Kind = generation.KindLogo
			start := time.Now()
			sum, err := stream.NewExecutor(cmd.OutOrStdout(), nil).Run(cmd.Context(), n, func(ctx context.Context, i int) (stream.Item, error) {
				item := p
				item.Params = map[string]any{"variant": i + 1}
				g, res, err := svc.RunInline(ctx, item)
				var out stream.Item
				if g != nil {
					out.ID = g.ID
				}
				if err != nil {
					return out, err
				}
				out.Result = res
				return out, nil
			})
			fmt.Fprintf(cmd.ErrOrStderr(), "%d completed, %d failed in %s\n", sum.Completed, sum.Failed, time.Since(start).Round(time.Millisecond))
			return err
		},
	}
	f := cmd.Flags()
	f.StringVar(&p.UserID, "user", "operator", "owner of the generated records")
	f.StringVar(&p.Prompt, "prompt", "", "logo prompt")
	f.StringVar(&p.Locale, "locale", "en", "notification locale")
	f.IntVar(&p.Width, "width", 0, "output width")
	f.IntVar(&p.Height, "height", 0, "output height")
	f.IntVarP(&n, "count", "n", 4, fmt.Sprintf("batch size (1-%d)", stream.MaxBatch))
	f.BoolVar(&offline, "offline", false, "use in-memory stores and the synthetic provider")
	f.StringVar(&outDir, "out", filepath.Join(os.TempDir(), "genctl"), "artifact directory for --offline")
	_ = cmd.MarkFlagRequired("prompt")
	return cmd
}

// offlineService runs the real runner against in-memory stores, a local
// file store and a synthetic-only chain.
func offlineService(logger infra.Logger, dir string) (*generation.Service, error) {
	store, err := storage.NewFileStore(dir, "file://"+filepath.ToSlash(dir))
	if err != nil {
		return nil, err
	}
	synth := synthetic.NewAdapter(synthetic.Options{})
	chains := make(map[string][]providers.Adapter)
	for _, e := range generation.Catalog() {
		chains[e.Capability] = []providers.Adapter{synth}
	}
	exec := providers.NewExecutor(chains, providers.Options{Timeout: 30 * time.Second, Logger: logger})
	generations := repo.NewMemoryGenerationRepository()
	dispatcher := notify.NewDispatcher(repo.NewMemoryNotificationRepository(), relay.NewLocal(), logger)
	runner := generation.NewRunner(generations, exec, store, dispatcher, logger)
	return generation.NewService(generations, nil, runner, logger), nil
}
