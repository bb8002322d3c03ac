package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/leavend/genstudio/internal/infra/credentials"
)

func newCredentialsCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credentials",
		Short: "Manage provider API keys stored in the database",
	}

	set := &cobra.Command{
		Use:   "set provider token",
		Short: "Store or rotate a provider key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sqlRunner, err := c.db(cmd.Context())
			if err != nil {
				return err
			}
			if err := credentials.NewStore(sqlRunner).SetToken(cmd.Context(), args[0], args[1], map[string]any{"source": "genctl"}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "stored key for %s\n", args[0])
			return nil
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List providers with a stored key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sqlRunner, err := c.db(cmd.Context())
			if err != nil {
				return err
			}
			items, err := credentials.NewStore(sqlRunner).ListProviders(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "PROVIDER\tUPDATED")
			for _, item := range items {
				fmt.Fprintf(tw, "%s\t%s\n", item.Provider, item.UpdatedAt.Format(time.RFC3339))
			}
			return tw.Flush()
		},
	}

	cmd.AddCommand(set, list)
	return cmd
}
