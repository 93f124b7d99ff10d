package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/boardkeeper/boardkeeper/internal/store"
	"github.com/boardkeeper/boardkeeper/internal/wipe"
)

// newWipeCmd creates the 'wipe' subcommand. It drives the paged wipe to
// exhaustion, printing one result line per page.
func newWipeCmd() *cobra.Command {
	var (
		domain    string
		table     string
		prefix    string
		cursor    string
		dryRun    bool
		batchSize int
	)

	cmd := &cobra.Command{
		Use:   "wipe",
		Short: "Removes all rows tied to a domain from one table",
		Long: `Scans the given table for rows belonging to the domain and deletes
them in batches. The command resumes from --cursor if a previous run
was interrupted, and keeps paging until the scan is exhausted.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			logger := appInstance.Logger

			tbl := store.Table(table)
			if !tbl.Valid() {
				return fmt.Errorf("unknown table %q", table)
			}
			if batchSize == 0 {
				batchSize = appInstance.Config.Wipe.DefaultBatchSize
			}

			totalScanned, totalDeleted := 0, 0
			for {
				res, err := appInstance.Engine.WipePage(cmd.Context(), wipe.Request{
					Domain:    domain,
					Prefix:    prefix,
					Table:     tbl,
					DryRun:    dryRun,
					BatchSize: batchSize,
					Cursor:    cursor,
				})
				if err != nil {
					return fmt.Errorf("wipe page: %w", err)
				}
				totalScanned += res.Scanned
				totalDeleted += res.Deleted

				line, err := json.Marshal(res)
				if err != nil {
					return fmt.Errorf("encode result: %w", err)
				}
				cmd.Println(string(line))

				if !res.HasMore {
					break
				}
				cursor = res.Cursor
			}

			logger.Info("Wipe command finished.",
				zap.String("domain", domain),
				zap.String("table", table),
				zap.Bool("dry_run", dryRun),
				zap.Int("scanned", totalScanned),
				zap.Int("deleted", totalDeleted),
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&domain, "domain", "", "domain whose rows should be removed (required)")
	cmd.Flags().StringVar(&table, "table", "", "table to wipe (required)")
	cmd.Flags().StringVar(&prefix, "prefix", "", "index range prefix, defaults to https://<domain>")
	cmd.Flags().StringVar(&cursor, "cursor", "", "resume cursor from a previous run")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report matches without deleting")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "rows per page, defaults to the configured batch size")
	_ = cmd.MarkFlagRequired("domain")
	_ = cmd.MarkFlagRequired("table")

	return cmd
}
