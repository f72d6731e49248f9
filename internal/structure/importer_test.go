package structure

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ogdch/harvester/internal/i14y"
	"github.com/ogdch/harvester/internal/structure/formats"
)

// fakeDestination records the structure calls the importer makes.
type fakeDestination struct {
	datasets map[string]*i14y.Dataset

	getErr    map[string]error
	uploadErr error

	deleted []string
	uploads map[string][][]byte
}

func newFakeDestination() *fakeDestination {
	return &fakeDestination{
		datasets: make(map[string]*i14y.Dataset),
		getErr:   make(map[string]error),
		uploads:  make(map[string][][]byte),
	}
}

func (f *fakeDestination) GetDataset(_ context.Context, datasetID string) (*i14y.Dataset, error) {
	if err := f.getErr[datasetID]; err != nil {
		return nil, err
	}
	d, ok := f.datasets[datasetID]
	if !ok {
		return nil, fmt.Errorf("no such dataset %s", datasetID)
	}
	return d, nil
}

func (f *fakeDestination) DeleteStructure(_ context.Context, datasetID string) error {
	f.deleted = append(f.deleted, datasetID)
	return nil
}

func (f *fakeDestination) UploadStructure(_ context.Context, datasetID string, turtle []byte) error {
	if f.uploadErr != nil {
		return f.uploadErr
	}
	f.uploads[datasetID] = append(f.uploads[datasetID], turtle)
	return nil
}

func csvRef(url string) *i14y.Ref {
	return &i14y.Ref{URI: url}
}

func csvServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/csv")
		w.Write([]byte(content))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestImporterUploadsStructure(t *testing.T) {
	srv := csvServer(t, "Kanton;Jahr\nZH;2023\n")

	dest := newFakeDestination()
	dest.datasets["abc"] = &i14y.Dataset{
		ID: "abc",
		Distributions: []i14y.Distribution{
			{AccessURL: csvRef(srv.URL + "/population.csv"), MediaType: "text/csv"},
		},
	}

	imp := New(dest, WithRateLimit(1000))
	summary, err := imp.Run(context.Background(), map[string]string{"ogd-1": "abc"})
	require.NoError(t, err)

	assert.Equal(t, map[string]int{"ogd-1": 1}, summary.Imported)
	assert.Empty(t, summary.Failed)
	assert.Empty(t, summary.Skipped)

	// Previous structure is replaced, not appended to.
	assert.Equal(t, []string{"abc"}, dest.deleted)
	require.Len(t, dest.uploads["abc"], 1)
	assert.Contains(t, string(dest.uploads["abc"][0]), "sh:NodeShape")
	assert.Contains(t, string(dest.uploads["abc"][0]), "kanton")
}

func TestImporterDedupesDistributionsByIdentifier(t *testing.T) {
	srv := csvServer(t, "a;b\n1;2\n")

	// The same file offered twice, differing only in URL casing.
	dest := newFakeDestination()
	dest.datasets["abc"] = &i14y.Dataset{
		ID: "abc",
		Distributions: []i14y.Distribution{
			{AccessURL: csvRef(srv.URL + "/Export.csv"), MediaType: "text/csv"},
			{AccessURL: csvRef(srv.URL + "/export.csv"), MediaType: "text/csv"},
		},
	}

	imp := New(dest, WithRateLimit(1000))
	summary, err := imp.Run(context.Background(), map[string]string{"ogd-1": "abc"})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Imported["ogd-1"])
	assert.Len(t, dest.uploads["abc"], 1)
}

func TestImporterSkipsDatasetWithoutImportableDistribution(t *testing.T) {
	dest := newFakeDestination()
	dest.datasets["abc"] = &i14y.Dataset{
		ID: "abc",
		Distributions: []i14y.Distribution{
			{AccessURL: csvRef("https://example.org/report.pdf"), MediaType: "application/pdf"},
		},
	}

	imp := New(dest, WithRateLimit(1000))
	summary, err := imp.Run(context.Background(), map[string]string{"ogd-1": "abc"})
	require.NoError(t, err)

	assert.Equal(t, "no importable distribution", summary.Skipped["ogd-1"])
	assert.Empty(t, dest.deleted)
	assert.Empty(t, dest.uploads)
}

func TestImporterIsolatesFailures(t *testing.T) {
	srv := csvServer(t, "a;b\n1;2\n")

	dest := newFakeDestination()
	dest.getErr["bad"] = errors.New("boom")
	dest.datasets["good"] = &i14y.Dataset{
		ID: "good",
		Distributions: []i14y.Distribution{
			{AccessURL: csvRef(srv.URL + "/data.csv"), MediaType: "text/csv"},
		},
	}

	imp := New(dest, WithRateLimit(1000))
	summary, err := imp.Run(context.Background(), map[string]string{
		"ogd-bad":  "bad",
		"ogd-good": "good",
	})
	require.NoError(t, err)

	assert.Contains(t, summary.Failed["ogd-bad"], "boom")
	assert.Equal(t, 1, summary.Imported["ogd-good"])
}

func TestImporterUploadFailureRecorded(t *testing.T) {
	srv := csvServer(t, "a;b\n1;2\n")

	dest := newFakeDestination()
	dest.uploadErr = errors.New("upload refused")
	dest.datasets["abc"] = &i14y.Dataset{
		ID: "abc",
		Distributions: []i14y.Distribution{
			{AccessURL: csvRef(srv.URL + "/data.csv"), MediaType: "text/csv"},
		},
	}

	imp := New(dest, WithRateLimit(1000))
	summary, err := imp.Run(context.Background(), map[string]string{"ogd-1": "abc"})
	require.NoError(t, err)

	assert.Contains(t, summary.Failed["ogd-1"], "upload refused")
}

func TestSummaryRenderLog(t *testing.T) {
	summary := &Summary{
		Imported: map[string]int{"ogd-a": 2, "ogd-b": 1},
		Skipped:  map[string]string{"ogd-c": "no importable distribution"},
		Failed:   map[string]string{"ogd-d": "boom"},
	}

	log := string(summary.RenderLog())

	assert.Contains(t, log, "Imported structures: 2")
	assert.Contains(t, log, "- ogd-a : 2")
	assert.Contains(t, log, "Skipped datasets: 1")
	assert.Contains(t, log, "- ogd-c : no importable distribution")
	assert.Contains(t, log, "Failed datasets: 1")
	assert.Contains(t, log, "- ogd-d : boom")

	// Identifiers come out sorted inside each section.
	require.Less(t, strings.Index(log, "- ogd-a"), strings.Index(log, "- ogd-b"))
}

func TestImporterCustomRegistry(t *testing.T) {
	registry := formats.NewRegistry()
	registry.Register(formats.NewCSV())

	dest := newFakeDestination()
	dest.datasets["abc"] = &i14y.Dataset{
		ID: "abc",
		Distributions: []i14y.Distribution{
			{AccessURL: csvRef("https://www.pxweb.bfs.admin.ch/px-x-01_1")},
		},
	}

	imp := New(dest, WithRegistry(registry), WithRateLimit(1000))
	summary, err := imp.Run(context.Background(), map[string]string{"ogd-1": "abc"})
	require.NoError(t, err)

	// Without the px importer registered, a px URL is not importable.
	assert.Equal(t, "no importable distribution", summary.Skipped["ogd-1"])
}
