package harvester

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ogdch/harvester/internal"
	"github.com/ogdch/harvester/internal/catalog"
	"github.com/ogdch/harvester/internal/diff"
	"github.com/ogdch/harvester/internal/hub"
	"github.com/ogdch/harvester/internal/payload"
	"github.com/ogdch/harvester/internal/state"
)

// Source yields the current catalogue of the statistics hub.
type Source interface {
	Fetch(ctx context.Context) ([]hub.Dataset, error)
}

// Destination is the subset of the partner API one harvest run needs.
type Destination interface {
	Authenticate(ctx context.Context) error
	CreateDataset(ctx context.Context, data any) (string, error)
	UpdateDataset(ctx context.Context, datasetID string, data any) error
	DeleteDataset(ctx context.Context, datasetID string) error
	SetPublicationLevel(ctx context.Context, datasetID, level string) error
	SetRegistrationStatus(ctx context.Context, datasetID, status string) error
}

type Option func(*Harvester)

func WithLogger(logger *zap.Logger) Option {
	return func(h *Harvester) {
		h.logger = logger
	}
}

// WithReports sets the repository harvest artifacts are written to.
// Without one, no artifacts are written.
func WithReports(repo internal.Repository) Option {
	return func(h *Harvester) {
		h.reports = repo
	}
}

func WithSourceName(name string) Option {
	return func(h *Harvester) {
		h.sourceName = name
	}
}

func WithClock(now func() time.Time) Option {
	return func(h *Harvester) {
		h.now = now
	}
}

// Harvester drives one full sync: fetch the catalogue, classify it
// against the previous snapshot, apply creates/updates/deletes to the
// destination, and commit the new snapshot. Per-dataset API failures
// are recorded in the run report and retried naturally on the next run;
// only run-level failures (auth, fetch, state I/O) abort.
type Harvester struct {
	source      Source
	destination Destination
	store       *state.Store
	engine      *diff.Engine

	reports    internal.Repository
	sourceName string
	logger     *zap.Logger
	now        func() time.Time
}

func New(source Source, destination Destination, store *state.Store, engine *diff.Engine, opts ...Option) *Harvester {
	h := &Harvester{
		source:      source,
		destination: destination,
		store:       store,
		engine:      engine,
		sourceName:  "bfs",
		logger:      zap.NewNop(),
		now:         time.Now,
	}

	for _, opt := range opts {
		opt(h)
	}

	h.logger = h.logger.Named("harvester")

	return h
}

// Run executes one harvest. The returned report is non-nil whenever the
// run got far enough to classify, even if some datasets failed.
func (h *Harvester) Run(ctx context.Context) (*catalog.Report, error) {
	runID := uuid.NewString()
	logger := h.logger.With(zap.String("run_id", runID))

	logger.Info("harvest starting", zap.String("source", h.sourceName))

	if err := h.destination.Authenticate(ctx); err != nil {
		return nil, fmt.Errorf("harvester: authenticating: %w", err)
	}

	previous, err := h.store.Load()
	if err != nil {
		return nil, fmt.Errorf("harvester: loading state: %w", err)
	}

	current, err := h.source.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("harvester: fetching catalogue: %w", err)
	}

	result := h.engine.Classify(previous, current)

	report := catalog.NewReport(runID, h.sourceName)
	next := state.NewSnapshot()

	h.applyCreates(ctx, logger, result.Created, next, report)
	h.applyUpdates(ctx, logger, result.Updated, previous, next, report)
	h.carryUnchanged(result.Unchanged, previous, next, report)
	h.applyDeletes(ctx, logger, result.Deleted, previous, next, report)
	h.recordRejections(result.Rejected, previous, next, report)

	if err := h.store.Replace(next); err != nil {
		return report, fmt.Errorf("harvester: committing state: %w", err)
	}

	report.Finish()

	h.writeArtifacts(ctx, logger, report)

	logger.Info("harvest finished",
		zap.Int("created", len(report.Created)),
		zap.Int("updated", len(report.Updated)),
		zap.Int("unchanged", len(report.Unchanged)),
		zap.Int("deleted", len(report.Deleted)),
		zap.Int("rejected", len(report.Rejected)),
		zap.Int("failed", len(report.Failed)),
	)

	return report, nil
}

func (h *Harvester) applyCreates(ctx context.Context, logger *zap.Logger, candidates []diff.Candidate, next *state.Snapshot, report *catalog.Report) {
	for _, c := range candidates {
		identifier := c.Dataset.Identifier

		datasetID, err := h.createDataset(ctx, c)
		if err != nil {
			logger.Error("create failed",
				zap.String("identifier", identifier),
				zap.Error(err),
			)
			report.Failed[identifier] = err.Error()
			continue
		}

		logger.Info("dataset created",
			zap.String("identifier", identifier),
			zap.String("dataset_id", datasetID),
		)

		report.Created[identifier] = datasetID
		next.Put(state.Entry{
			Identifier: identifier,
			DatasetID:  datasetID,
			Signature:  c.Signature,
			SyncedAt:   h.now().UTC(),
			Status:     payload.StatusRecorded,
		})
	}
}

// createDataset posts the dataset and promotes it to the public,
// recorded state the portal expects. The entry is only committed when
// all three calls succeed, so a half-created dataset is retried whole
// on the next run.
func (h *Harvester) createDataset(ctx context.Context, c diff.Candidate) (string, error) {
	datasetID, err := h.destination.CreateDataset(ctx, c.Payload)
	if err != nil {
		return "", err
	}

	if err := h.destination.SetPublicationLevel(ctx, datasetID, payload.LevelPublic); err != nil {
		return "", fmt.Errorf("setting publication level: %w", err)
	}

	if err := h.destination.SetRegistrationStatus(ctx, datasetID, payload.StatusRecorded); err != nil {
		return "", fmt.Errorf("setting registration status: %w", err)
	}

	return datasetID, nil
}

func (h *Harvester) applyUpdates(ctx context.Context, logger *zap.Logger, candidates []diff.Candidate, previous, next *state.Snapshot, report *catalog.Report) {
	for _, c := range candidates {
		identifier := c.Dataset.Identifier

		entry, ok := previous.Get(identifier)
		if !ok {
			// Classifier guarantees updates have a previous entry.
			report.Failed[identifier] = "update without previous state entry"
			continue
		}

		if err := h.destination.UpdateDataset(ctx, entry.DatasetID, c.Payload); err != nil {
			logger.Error("update failed",
				zap.String("identifier", identifier),
				zap.String("dataset_id", entry.DatasetID),
				zap.Error(err),
			)
			report.Failed[identifier] = err.Error()
			// Keep the stale entry so the changed signature is
			// retried next run.
			next.Put(entry)
			continue
		}

		logger.Info("dataset updated",
			zap.String("identifier", identifier),
			zap.String("dataset_id", entry.DatasetID),
		)

		report.Updated[identifier] = entry.DatasetID
		next.Put(state.Entry{
			Identifier: identifier,
			DatasetID:  entry.DatasetID,
			Signature:  c.Signature,
			SyncedAt:   h.now().UTC(),
			Status:     payload.StatusRecorded,
		})
	}
}

func (h *Harvester) carryUnchanged(identifiers []string, previous, next *state.Snapshot, report *catalog.Report) {
	for _, identifier := range identifiers {
		entry, ok := previous.Get(identifier)
		if !ok {
			continue
		}
		report.Unchanged[identifier] = entry.DatasetID
		next.Put(entry)
	}
}

func (h *Harvester) applyDeletes(ctx context.Context, logger *zap.Logger, identifiers []string, previous, next *state.Snapshot, report *catalog.Report) {
	for _, identifier := range identifiers {
		entry, ok := previous.Get(identifier)
		if !ok {
			continue
		}

		if err := h.deleteDataset(ctx, entry.DatasetID); err != nil {
			logger.Error("delete failed",
				zap.String("identifier", identifier),
				zap.String("dataset_id", entry.DatasetID),
				zap.Error(err),
			)
			report.Failed[identifier] = err.Error()
			// Keep the entry so the delete is retried next run.
			next.Put(entry)
			continue
		}

		logger.Info("dataset deleted",
			zap.String("identifier", identifier),
			zap.String("dataset_id", entry.DatasetID),
		)
		report.Deleted[identifier] = entry.DatasetID
	}
}

// deleteDataset demotes the dataset to internal before removing it, so
// it disappears from the public portal even if the delete itself fails
// halfway.
func (h *Harvester) deleteDataset(ctx context.Context, datasetID string) error {
	if err := h.destination.SetPublicationLevel(ctx, datasetID, payload.LevelInternal); err != nil {
		return fmt.Errorf("setting publication level: %w", err)
	}
	return h.destination.DeleteDataset(ctx, datasetID)
}

// recordRejections keeps state entries of previously synced datasets
// that failed this run's validity gate. Without this they would look
// deleted next run and be removed from the destination over a transient
// metadata defect.
func (h *Harvester) recordRejections(rejections []diff.Rejection, previous, next *state.Snapshot, report *catalog.Report) {
	for _, r := range rejections {
		report.Rejected[r.Identifier] = r.Reason
		if entry, ok := previous.Get(r.Identifier); ok {
			next.Put(entry)
		}
	}
}

func (h *Harvester) writeArtifacts(ctx context.Context, logger *zap.Logger, report *catalog.Report) {
	if h.reports == nil {
		return
	}

	logKey := fmt.Sprintf("%s/harvest_log.txt", report.RunID)
	if err := h.reports.Write(ctx, logKey, bytes.NewReader(report.RenderLog())); err != nil {
		logger.Error("writing harvest log failed", zap.Error(err))
	}

	bs, err := report.JSON()
	if err != nil {
		logger.Error("encoding report failed", zap.Error(err))
		return
	}

	reportKey := fmt.Sprintf("%s/catalog.json", report.RunID)
	if err := h.reports.Write(ctx, reportKey, bytes.NewReader(bs)); err != nil {
		logger.Error("writing report failed", zap.Error(err))
	}
}
