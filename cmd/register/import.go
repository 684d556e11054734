package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	httpapi "github.com/tbourn/go-travel-register/internal/http"
)

func newImportCmd() *cobra.Command {
	var rejectedOut string

	cmd := &cobra.Command{
		Use:   "import [file]",
		Short: "Import register entries from a text file (or stdin), one per line",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			in := cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			text, err := io.ReadAll(in)
			if err != nil {
				return fmt.Errorf("read input: %w", err)
			}

			db, err := openDB(cfg)
			if err != nil {
				return err
			}
			if sqlDB, err := db.DB(); err == nil {
				defer sqlDB.Close()
			}

			svcs := httpapi.NewServices(db, cfg, nil)
			report, err := svcs.Ingest.SubmitBatch(cmd.Context(), string(text))
			if err != nil {
				return err
			}
			log.Info().
				Int("created", report.Created).
				Int("updated", report.Updated).
				Int("in_error", report.InError).
				Msg("import finished")

			if rejectedOut != "" && report.Rejected != "" {
				if err := os.WriteFile(rejectedOut, []byte(report.Rejected), 0o644); err != nil {
					return fmt.Errorf("write rejected lines: %w", err)
				}
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}
	cmd.Flags().StringVar(&rejectedOut, "rejected", "", "write rejected lines to this file so they can be fixed and re-imported")
	return cmd
}
