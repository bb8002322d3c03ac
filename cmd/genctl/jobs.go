package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/leavend/genstudio/internal/generation"
	"github.com/leavend/genstudio/internal/queue"
)

func newStatusCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "status job-id",
		Short: "Show a job from any known queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := c.jobs(cmd.Context())
			if err != nil {
				return err
			}
			job, err := q.Find(cmd.Context(), args[0])
			if errors.Is(err, queue.ErrNotFound) {
				return fmt.Errorf("job %s not found (it may have expired)", args[0])
			}
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), job)
		},
	}
}

func newEnqueueCmd(c *cli) *cobra.Command {
	var p generation.Payload
	var key string
	cmd := &cobra.Command{
		Use:   "enqueue kind",
		Short: "Submit a generation as a user would",
		Long:  "Submit a generation. Kinds: " + strings.Join(generation.Kinds(), ", "),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := c.service(cmd.Context())
			if err != nil {
				return err
			}
			p.Kind = strings.ToLower(args[0])
			if key != "" {
				p.GenerationID = generation.IdempotentID(p.UserID, key)
			}
			sub, err := svc.Submit(cmd.Context(), p)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), sub)
		},
	}
	f := cmd.Flags()
	f.StringVar(&p.UserID, "user", "", "owner of the generation")
	f.StringVar(&p.Prompt, "prompt", "", "generation prompt")
	f.StringVar(&p.NegativePrompt, "negative-prompt", "", "things to avoid")
	f.StringVar(&p.SourceURL, "source-url", "", "input image for edit kinds")
	f.StringVar(&p.Model, "model", "", "provider model hint")
	f.IntVar(&p.Width, "width", 0, "output width")
	f.IntVar(&p.Height, "height", 0, "output height")
	f.StringVar(&p.Locale, "locale", "en", "notification locale")
	f.StringVar(&key, "key", "", "idempotency key")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newBroadcastCmd(c *cli) *cobra.Command {
	var b generation.Broadcast
	cmd := &cobra.Command{
		Use:   "broadcast",
		Short: "Queue a notification for a list of users",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := c.jobs(cmd.Context())
			if err != nil {
				return err
			}
			handle, err := generation.NewService(nil, q, nil, c.logger).Broadcast(cmd.Context(), b)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "broadcast queued: %s (%s)\n", handle.ID, handle.Queue)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringSliceVar(&b.UserIDs, "user", nil, "recipient user ids (repeatable or comma separated)")
	f.StringVar(&b.Title, "title", "", "notification title")
	f.StringVar(&b.Message, "message", "", "notification body")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}
