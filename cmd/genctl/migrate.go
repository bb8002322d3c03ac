package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leavend/genstudio/internal/sqlinline"
)

func newMigrateCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sqlRunner, err := c.db(cmd.Context())
			if err != nil {
				return err
			}
			if _, err := sqlRunner.Exec(cmd.Context(), sqlinline.QCreateSchema); err != nil {
				return fmt.Errorf("apply schema: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
			return nil
		},
	}
}
