package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ogdch/harvester/internal/catalog"
	"github.com/ogdch/harvester/internal/config"
)

const defaultInterval = 24 * time.Hour

func newStartCommand() *cobra.Command {
	var configPath string
	var port int

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Starts the harvest daemon: runs on an interval and serves run status",
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
			l.Info("starting harvest daemon")

			var mu sync.RWMutex
			var lastReport *catalog.Report

			runOnce := func() {
				client := config.InitializeClient(c, l)

				h, err := config.InitializeHarvester(c, client, l)
				if err != nil {
					l.Error("initializing harvester failed", zap.Error(err))
					return
				}

				report, err := h.Run(ctx)
				if err != nil {
					l.Error("harvest run failed", zap.Error(err))
					return
				}

				if c.Job.Structures.Enabled {
					importer := config.InitializeStructureImporter(c, client, l)
					summary, err := importer.Run(ctx, report.Targets())
					if err != nil {
						l.Error("structure import failed", zap.Error(err))
					} else {
						writeStructureLog(ctx, c, l, report.RunID, summary)
					}
				}

				mu.Lock()
				lastReport = report
				mu.Unlock()
			}

			interval := c.Job.Interval.Duration()
			if interval <= 0 {
				interval = defaultInterval
			}

			go func() {
				runOnce()

				ticker := time.NewTicker(interval)
				defer ticker.Stop()

				for {
					select {
					case <-ctx.Done():
						return
					case <-ticker.C:
						runOnce()
					}
				}
			}()

			logMiddleware := func(next http.Handler) http.Handler {
				return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					start := time.Now()
					ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

					defer func() {
						l.Info("request",
							zap.String("from", r.RemoteAddr),
							zap.String("protocol", r.Proto),
							zap.String("method", r.Method),
							zap.String("path", r.URL.Path),
							zap.Int("status", ww.Status()),
							zap.Int("bytes", ww.BytesWritten()),
							zap.Duration("duration", time.Since(start)),
						)
					}()

					next.ServeHTTP(ww, r)
				})
			}

			r := chi.NewRouter()
			r.Use(logMiddleware)

			r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusOK)
				w.Write([]byte("ok"))
			})

			r.Get("/report", func(w http.ResponseWriter, _ *http.Request) {
				mu.RLock()
				report := lastReport
				mu.RUnlock()

				if report == nil {
					http.Error(w, "no completed run yet", http.StatusNotFound)
					return
				}

				w.Header().Set("Content-Type", "application/json")
				json.NewEncoder(w).Encode(report)
			})

			address := fmt.Sprintf(":%d", port)
			l.Info("starting server", zap.Int("port", port))

			return http.ListenAndServe(address, r)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to config file")
	cmd.MarkFlagRequired("config")
	cmd.Flags().IntVar(&port, "port", 8080, "Port for the status server")

	return cmd
}
