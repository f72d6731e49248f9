package formats

import (
	"context"
	"net/http"
	"time"

	"github.com/ogdch/harvester/internal"
)

const defaultTimeout = 30 * time.Second

// Distribution carries the fields an importer needs to decide whether
// it can handle a file and to download it.
type Distribution struct {
	AccessURL   string
	DownloadURL string
	MediaType   string
	Format      string
}

// URL returns the access URL, falling back to the download URL.
func (d Distribution) URL() string {
	if d.AccessURL != "" {
		return d.AccessURL
	}
	return d.DownloadURL
}

// Property is one named, typed column of a structure document.
type Property struct {
	Name     string
	Labels   internal.Text
	Datatype string
}

// Document is the parsed structure of one distribution: a label and an
// ordered list of named, typed properties. It is regenerated in full
// on every created/updated dataset, never patched.
type Document struct {
	Identifier  string
	Title       internal.Text
	Description internal.Text
	Properties  []Property
}

// Importer handles one file format. Identifier must extract a
// format-specific file identity (not a URL) so the caller can
// deduplicate distributions pointing at the same underlying file.
type Importer interface {
	Name() string
	CanProcess(d Distribution) bool
	Identifier(d Distribution) (string, bool)
	Fetch(ctx context.Context, d Distribution) (*Document, error)
}

// Registry is an ordered collection of importers. Selection is
// first-match in registration order; adding a format means registering
// a new importer, caller logic never changes.
type Registry struct {
	importers []Importer
}

func NewRegistry(importers ...Importer) *Registry {
	return &Registry{importers: importers}
}

// DefaultRegistry returns the registry with the built-in importers in
// their production order: px before csv, since PX cubes are also
// offered as CSV exports and the PX file carries richer metadata.
func DefaultRegistry(httpClient *http.Client) *Registry {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return NewRegistry(
		NewPX(WithPXHTTPClient(httpClient)),
		NewCSV(WithCSVHTTPClient(httpClient)),
	)
}

func (r *Registry) Register(imp Importer) {
	r.importers = append(r.importers, imp)
}

// Select returns the first importer able to process the distribution.
func (r *Registry) Select(d Distribution) (Importer, bool) {
	for _, imp := range r.importers {
		if imp.CanProcess(d) {
			return imp, true
		}
	}
	return nil, false
}
