package cmd

import (
	"bytes"
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ogdch/harvester/internal/catalog"
	"github.com/ogdch/harvester/internal/config"
	"github.com/ogdch/harvester/internal/structure"
)

func newStructuresCommand() *cobra.Command {
	var configPath string
	var catalogPath string

	cmd := &cobra.Command{
		Use:   "structures",
		Short: "Imports SHACL structures for the datasets of a previous harvest run",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			c, err := config.NewHarvesterFromFile(configPath)
			if err != nil {
				return err
			}

			logger, err := newLogger(c.Global.Logger.Level)
			if err != nil {
				return err
			}
			defer logger.Sync()
			l := logger.Named("harvester")

			report, err := catalog.ReadFile(catalogPath)
			if err != nil {
				return err
			}

			client := config.InitializeClient(c, l)
			if err := client.Authenticate(ctx); err != nil {
				return err
			}

			importer := config.InitializeStructureImporter(c, client, l)
			summary, err := importer.Run(ctx, report.Targets())
			if err != nil {
				return err
			}

			writeStructureLog(ctx, c, l, report.RunID, summary)

			if len(summary.Failed) > 0 {
				return fmt.Errorf("structure import failed for %d datasets", len(summary.Failed))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to config file")
	cmd.MarkFlagRequired("config")
	cmd.Flags().StringVar(&catalogPath, "catalog", "", "Path to the catalog.json of the harvest run")
	cmd.MarkFlagRequired("catalog")

	return cmd
}

// writeStructureLog stores the import summary next to the harvest
// artifacts of the same run. Failures are logged, not fatal, since the
// uploads themselves already happened.
func writeStructureLog(ctx context.Context, c *config.Harvester, logger *zap.Logger, runID string, summary *structure.Summary) {
	repository, err := config.InitializeRepository(c, logger)
	if err != nil {
		logger.Error("initializing report repository failed", zap.Error(err))
		return
	}

	key := fmt.Sprintf("%s/structure_import_log.txt", runID)
	if err := repository.Write(ctx, key, bytes.NewReader(summary.RenderLog())); err != nil {
		logger.Error("writing structure import log failed", zap.Error(err))
	}
}
