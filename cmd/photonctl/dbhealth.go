package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newDBHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dbhealth",
		Short: "Ping the database and report the submission count",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, err := openDB(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := db.PingDB(ctx, time.Second); err != nil {
				return fmt.Errorf("DB health: FAIL (%w)", err)
			}
			now, err := db.Store.Now(ctx)
			if err != nil {
				return err
			}
			n, err := db.Store.Count(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "DB health: OK")
			fmt.Fprintf(out, "driver: %s\n", cfg.Database.Driver)
			fmt.Fprintf(out, "db time: %s\n", now.Format(time.RFC3339))
			fmt.Fprintf(out, "submissions: %d\n", n)
			return nil
		},
	}
}
