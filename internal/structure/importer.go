package structure

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ogdch/harvester/internal/i14y"
	"github.com/ogdch/harvester/internal/structure/formats"
)

// Destination is the subset of the partner API the importer needs.
type Destination interface {
	GetDataset(ctx context.Context, datasetID string) (*i14y.Dataset, error)
	DeleteStructure(ctx context.Context, datasetID string) error
	UploadStructure(ctx context.Context, datasetID string, turtle []byte) error
}

type Option func(*Importer)

func WithLogger(logger *zap.Logger) Option {
	return func(i *Importer) {
		i.logger = logger
	}
}

func WithRegistry(registry *formats.Registry) Option {
	return func(i *Importer) {
		i.registry = registry
	}
}

// WithRateLimit caps the number of dataset imports started per second.
func WithRateLimit(perSecond float64) Option {
	return func(i *Importer) {
		i.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
}

func WithClock(now func() time.Time) Option {
	return func(i *Importer) {
		i.now = now
	}
}

// Importer uploads SHACL structure definitions for harvested datasets.
// For every target dataset it reads the distributions back from the
// destination, picks the first registry importer that can process each
// one, dedupes distributions describing the same underlying file,
// replaces any previous structure and uploads the rendered shape.
type Importer struct {
	destination Destination
	registry    *formats.Registry
	limiter     *rate.Limiter
	logger      *zap.Logger
	now         func() time.Time
}

func New(destination Destination, opts ...Option) *Importer {
	i := &Importer{
		destination: destination,
		logger:      zap.NewNop(),
		limiter:     rate.NewLimiter(rate.Limit(defaultImportsPerSecond), 1),
		now:         time.Now,
	}

	for _, opt := range opts {
		opt(i)
	}

	if i.registry == nil {
		i.registry = formats.DefaultRegistry(nil)
	}

	i.logger = i.logger.Named("structure")

	return i
}

const defaultImportsPerSecond = 2

// Summary is the outcome of one structure import run.
type Summary struct {
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`

	// source identifier → number of structures uploaded
	Imported map[string]int `json:"imported"`
	// source identifier → reason nothing was importable
	Skipped map[string]string `json:"skipped"`
	// source identifier → error text
	Failed map[string]string `json:"failed"`
}

// RenderLog renders the structure_import_log.txt artifact.
func (s *Summary) RenderLog() []byte {
	var b strings.Builder

	b.WriteString("Structure import completed at ")
	b.WriteString(s.EndTime.Format(time.RFC3339))
	b.WriteByte('\n')

	b.WriteString("\nImported structures: ")
	b.WriteString(strconv.Itoa(len(s.Imported)))
	for _, id := range sortedKeys(s.Imported) {
		b.WriteString("\n- ")
		b.WriteString(id)
		b.WriteString(" : ")
		b.WriteString(strconv.Itoa(s.Imported[id]))
	}
	b.WriteByte('\n')

	b.WriteString("\nSkipped datasets: ")
	b.WriteString(strconv.Itoa(len(s.Skipped)))
	for _, id := range sortedKeys(s.Skipped) {
		b.WriteString("\n- ")
		b.WriteString(id)
		b.WriteString(" : ")
		b.WriteString(s.Skipped[id])
	}
	b.WriteByte('\n')

	b.WriteString("\nFailed datasets: ")
	b.WriteString(strconv.Itoa(len(s.Failed)))
	for _, id := range sortedKeys(s.Failed) {
		b.WriteString("\n- ")
		b.WriteString(id)
		b.WriteString(" : ")
		b.WriteString(s.Failed[id])
	}
	b.WriteByte('\n')

	return []byte(b.String())
}

// Run imports structures for the given targets, a map of source
// identifier to destination dataset id. A failure on one dataset never
// stops the others.
func (i *Importer) Run(ctx context.Context, targets map[string]string) (*Summary, error) {
	summary := &Summary{
		StartTime: i.now().UTC(),
		Imported:  make(map[string]int),
		Skipped:   make(map[string]string),
		Failed:    make(map[string]string),
	}

	identifiers := make([]string, 0, len(targets))
	for id := range targets {
		identifiers = append(identifiers, id)
	}
	sort.Strings(identifiers)

	for _, identifier := range identifiers {
		if err := i.limiter.Wait(ctx); err != nil {
			return summary, err
		}

		datasetID := targets[identifier]
		count, err := i.importDataset(ctx, identifier, datasetID)
		if err != nil {
			i.logger.Error(
				"structure import failed",
				zap.String("identifier", identifier),
				zap.String("dataset_id", datasetID),
				zap.Error(err),
			)
			summary.Failed[identifier] = err.Error()
			continue
		}

		if count == 0 {
			summary.Skipped[identifier] = "no importable distribution"
			continue
		}
		summary.Imported[identifier] = count
	}

	summary.EndTime = i.now().UTC()

	i.logger.Info(
		"structure import finished",
		zap.Int("imported", len(summary.Imported)),
		zap.Int("skipped", len(summary.Skipped)),
		zap.Int("failed", len(summary.Failed)),
	)

	return summary, nil
}

func (i *Importer) importDataset(ctx context.Context, identifier, datasetID string) (int, error) {
	dataset, err := i.destination.GetDataset(ctx, datasetID)
	if err != nil {
		return 0, err
	}

	documents, err := i.collectDocuments(ctx, identifier, dataset.Distributions)
	if err != nil {
		return 0, err
	}
	if len(documents) == 0 {
		return 0, nil
	}

	// Full replace: the API appends property shapes on repeated
	// uploads, so the previous structure goes first.
	if err := i.destination.DeleteStructure(ctx, datasetID); err != nil {
		return 0, err
	}

	uploaded := 0
	for _, doc := range documents {
		ttl := Turtle(doc, i.now())
		if err := i.destination.UploadStructure(ctx, datasetID, ttl); err != nil {
			return uploaded, err
		}

		i.logger.Info(
			"structure uploaded",
			zap.String("identifier", identifier),
			zap.String("dataset_id", datasetID),
			zap.String("structure", doc.Identifier),
			zap.Int("properties", len(doc.Properties)),
		)
		uploaded++
	}

	return uploaded, nil
}

// collectDocuments fetches one structure document per distinct
// underlying file. Multiple distributions of the same cube (one per
// language, typically) share an importer identifier; the first one
// wins.
func (i *Importer) collectDocuments(ctx context.Context, identifier string, distributions []i14y.Distribution) ([]*formats.Document, error) {
	seen := make(map[string]bool)
	var documents []*formats.Document

	for _, d := range distributions {
		dist := formats.Distribution{
			AccessURL:   refURI(d.AccessURL),
			DownloadURL: refURI(d.DownloadURL),
			MediaType:   d.MediaType,
		}
		if d.Format != nil {
			dist.Format = d.Format.Code
		}

		imp, ok := i.registry.Select(dist)
		if !ok {
			continue
		}

		key, ok := imp.Identifier(dist)
		if !ok {
			continue
		}
		key = strings.ToLower(key)
		if seen[key] {
			continue
		}
		seen[key] = true

		doc, err := imp.Fetch(ctx, dist)
		if err != nil {
			return nil, err
		}

		i.logger.Debug(
			"structure parsed",
			zap.String("identifier", identifier),
			zap.String("importer", imp.Name()),
			zap.String("structure", doc.Identifier),
		)
		documents = append(documents, doc)
	}

	return documents, nil
}

func refURI(ref *i14y.Ref) string {
	if ref == nil {
		return ""
	}
	return ref.URI
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
