package diff

import (
	"errors"
	"sort"

	"go.uber.org/zap"

	"github.com/ogdch/harvester/internal/hub"
	"github.com/ogdch/harvester/internal/payload"
	"github.com/ogdch/harvester/internal/state"
)

// Candidate is a dataset classified for create or update, carrying the
// payload and signature already computed during classification so the
// executor does not build them twice.
type Candidate struct {
	Dataset   hub.Dataset
	Payload   *payload.Dataset
	Signature string
}

// Rejection is a dataset excluded from all sync partitions by the
// validity gate. Its state entry is left untouched so the dataset is
// naturally retried on the next run.
type Rejection struct {
	Identifier string
	Reason     string
}

// Result partitions previous ∪ current into the four sync classes.
// The partitions are disjoint; rejected datasets appear in none of
// them. Created/Updated preserve the input order of current; Deleted
// and Unchanged are sorted.
type Result struct {
	Created   []Candidate
	Updated   []Candidate
	Unchanged []string
	Deleted   []string
	Rejected  []Rejection
}

type Option func(*Engine)

func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// Engine classifies each current dataset against the previous
// snapshot. Classification is pure: identical inputs always produce
// identical partitions.
type Engine struct {
	logger  *zap.Logger
	builder *payload.Builder
}

func New(builder *payload.Builder, opts ...Option) *Engine {
	e := &Engine{
		logger:  zap.NewNop(),
		builder: builder,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Classify compares the previous snapshot against the current feed.
// Deletion is detected by absence from the source feed: identifiers
// known from the previous run that no longer appear in current are
// DELETED. The destination's own listing is not consulted.
func (e *Engine) Classify(previous *state.Snapshot, current []hub.Dataset) *Result {
	result := &Result{}
	seen := make(map[string]struct{}, len(current))

	for _, ds := range current {
		if _, dup := seen[ds.Identifier]; dup && ds.Identifier != "" {
			e.logger.Warn("duplicate identifier in source feed, keeping first occurrence",
				zap.String("identifier", ds.Identifier))
			continue
		}

		p, err := e.builder.Build(ds)
		if err != nil {
			var rej *payload.RejectionError
			if errors.As(err, &rej) {
				result.Rejected = append(result.Rejected, Rejection{
					Identifier: rej.Identifier,
					Reason:     rej.Reason,
				})
				if rej.Identifier != "" {
					seen[rej.Identifier] = struct{}{}
				}
				continue
			}
			// The builder only returns rejections; anything else is a bug.
			result.Rejected = append(result.Rejected, Rejection{
				Identifier: ds.Identifier,
				Reason:     err.Error(),
			})
			continue
		}

		seen[ds.Identifier] = struct{}{}
		sig := payload.Signature(p)
		candidate := Candidate{Dataset: ds, Payload: p, Signature: sig}

		entry, known := previous.Get(ds.Identifier)
		switch {
		case !known:
			result.Created = append(result.Created, candidate)
		case entry.Signature != sig:
			result.Updated = append(result.Updated, candidate)
		default:
			result.Unchanged = append(result.Unchanged, ds.Identifier)
		}
	}

	for _, id := range previous.Identifiers() {
		if _, ok := seen[id]; !ok {
			result.Deleted = append(result.Deleted, id)
		}
	}

	sort.Strings(result.Unchanged)
	sort.Strings(result.Deleted)

	e.logger.Info("classification complete",
		zap.Int("created", len(result.Created)),
		zap.Int("updated", len(result.Updated)),
		zap.Int("unchanged", len(result.Unchanged)),
		zap.Int("deleted", len(result.Deleted)),
		zap.Int("rejected", len(result.Rejected)),
	)

	return result
}
