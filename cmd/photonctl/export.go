package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/photon-decode/internal/export"
)

func newExportCmd() *cobra.Command {
	var from, to string

	cmd := &cobra.Command{
		Use:   "export <out.xlsx>",
		Short: "Write stored submissions to an XLSX workbook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var win export.Window
			for _, f := range []struct {
				val string
				dst **time.Time
			}{{from, &win.From}, {to, &win.To}} {
				if f.val == "" {
					continue
				}
				t, err := time.Parse(time.DateOnly, f.val)
				if err != nil {
					return fmt.Errorf("invalid date %q: %w", f.val, err)
				}
				*f.dst = &t
			}

			db, err := openDB(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()

			data, err := export.NewService(db.Submissions, logger).ExportSubmissionsXLSX(cmd.Context(), win)
			if err != nil {
				return err
			}
			if err := os.WriteFile(args[0], data, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d bytes)\n", args[0], len(data))
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "first day to include (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "last day to include (YYYY-MM-DD)")
	return cmd
}
