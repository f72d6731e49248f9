package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ogdch/harvester/internal/catalog"
	"github.com/ogdch/harvester/internal/config"
)

func newRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Runs one harvest: fetch, classify, sync, commit state",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			c, err := config.NewHarvesterFromFile(viper.GetString("config"))
			if err != nil {
				return err
			}

			logger, err := newLogger(c.Global.Logger.Level)
			if err != nil {
				return err
			}
			defer logger.Sync()
			l := logger.Named("harvester")

			client := config.InitializeClient(c, l)

			h, err := config.InitializeHarvester(c, client, l)
			if err != nil {
				return err
			}

			report, err := h.Run(ctx)
			if err != nil {
				return err
			}

			if reportPath := viper.GetString("report"); reportPath != "" {
				if err := report.WriteFile(reportPath); err != nil {
					return err
				}
			}

			if c.Job.Reports.Type == "" || c.Job.Reports.Type == "local" {
				pruneReports(c, l)
			}

			if viper.GetBool("structures") || c.Job.Structures.Enabled {
				importer := config.InitializeStructureImporter(c, client, l)
				summary, err := importer.Run(ctx, report.Targets())
				if err != nil {
					return err
				}
				writeStructureLog(ctx, c, l, report.RunID, summary)
			}

			return nil
		},
	}

	cmd.Flags().StringP("config", "c", "", "Path to config file")
	cmd.MarkFlagRequired("config")
	cmd.Flags().String("report", "", "Path to write the run report JSON to")
	cmd.Flags().Bool("structures", false, "Import structures for created/updated datasets after the sync")
	viper.BindPFlag("config", cmd.Flags().Lookup("config"))
	viper.BindPFlag("report", cmd.Flags().Lookup("report"))
	viper.BindPFlag("structures", cmd.Flags().Lookup("structures"))
	viper.AutomaticEnv()
	viper.SetEnvPrefix("HARVESTER")

	return cmd
}

func pruneReports(c *config.Harvester, logger *zap.Logger) {
	if c.Job.Reports.RetentionDays <= 0 {
		return
	}

	base := c.Job.Reports.LocalConfig.Path
	if base == "" {
		base = "./reports"
	}

	removed, err := catalog.Prune(base, c.Job.Reports.RetentionAge(), logger)
	if err != nil {
		logger.Warn("pruning old reports failed", zap.Error(err))
		return
	}
	if removed > 0 {
		logger.Info("pruned old reports", zap.Int("removed", removed))
	}
}
