package hub

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const cataloguePage = `<?xml version="1.0" encoding="UTF-8"?>
<rdf:RDF xmlns:rdf="http://www.w3.org/1999/02/22-rdf-syntax-ns#"
         xmlns:dcat="http://www.w3.org/ns/dcat#"
         xmlns:dct="http://purl.org/dc/terms/"
         xmlns:foaf="http://xmlns.com/foaf/0.1/">
  <dcat:Dataset rdf:about="https://example.org/dataset/1">
    <dct:identifier>px-x-0102020000_101@bfs</dct:identifier>
    <dct:title xml:lang="de">Bevölkerungsstand</dct:title>
    <dct:title xml:lang="fr">Etat de la population</dct:title>
    <dct:description xml:lang="de">Ständige Wohnbevölkerung.</dct:description>
    <dct:accessRights rdf:resource="http://publications.europa.eu/resource/authority/access-right/PUBLIC"/>
    <dct:publisher>
      <foaf:Organization>
        <foaf:name>BFS</foaf:name>
      </foaf:Organization>
    </dct:publisher>
    <dct:issued>2024-01-01T00:00:00Z</dct:issued>
    <dct:modified>2024-06-01T00:00:00Z</dct:modified>
    <dcat:landingPage rdf:resource="https://www.bfs.admin.ch/asset/de/1"/>
    <dcat:theme rdf:resource="http://publications.europa.eu/resource/authority/data-theme/SOCI"/>
    <dcat:keyword xml:lang="de">bevoelkerung</dcat:keyword>
    <dct:language rdf:resource="http://publications.europa.eu/resource/authority/language/DEU"/>
    <dcat:distribution>
      <dcat:Distribution rdf:about="https://example.org/dist/1">
        <dcat:accessURL rdf:resource="https://www.pxweb.bfs.admin.ch/px-x-0102020000_101"/>
        <dcat:downloadURL rdf:resource="https://dam-api.bfs.admin.ch/hub/api/dam/assets/1/master"/>
        <dcat:mediaType rdf:resource="https://www.iana.org/assignments/media-types/text/csv"/>
        <dct:format rdf:resource="http://publications.europa.eu/resource/authority/file-type/CSV"/>
        <dct:title xml:lang="de">CSV Export</dct:title>
        <dcat:byteSize>2048</dcat:byteSize>
      </dcat:Distribution>
    </dcat:distribution>
  </dcat:Dataset>
</rdf:RDF>`

const emptyPage = `<?xml version="1.0" encoding="UTF-8"?>
<rdf:RDF xmlns:rdf="http://www.w3.org/1999/02/22-rdf-syntax-ns#"
         xmlns:dcat="http://www.w3.org/ns/dcat#"/>`

func TestParseCatalogue(t *testing.T) {
	datasets, err := ParseCatalogue(strings.NewReader(cataloguePage))
	require.NoError(t, err)
	require.Len(t, datasets, 1)

	ds := datasets[0]
	assert.Equal(t, "px-x-0102020000_101@bfs", ds.Identifier)
	assert.Equal(t, "Bevölkerungsstand", ds.Title["de"])
	assert.Equal(t, "Etat de la population", ds.Title["fr"])
	assert.Equal(t, "Ständige Wohnbevölkerung.", ds.Description["de"])
	assert.Equal(t, "http://publications.europa.eu/resource/authority/access-right/PUBLIC", ds.AccessRights)
	assert.Equal(t, "BFS", ds.Publisher)
	assert.Equal(t, []string{"bevoelkerung"}, ds.Keywords)

	require.Len(t, ds.Distributions, 1)
	dist := ds.Distributions[0]
	assert.Equal(t, "https://www.pxweb.bfs.admin.ch/px-x-0102020000_101", dist.AccessURL)
	assert.Equal(t, "text/csv", dist.MediaType)
	assert.Equal(t, "CSV", dist.Format)
	assert.Equal(t, int64(2048), dist.ByteSize)
}

func TestParseCatalogueEmpty(t *testing.T) {
	datasets, err := ParseCatalogue(strings.NewReader(emptyPage))
	require.NoError(t, err)
	assert.Empty(t, datasets)
}

func TestClientFetchPaginates(t *testing.T) {
	var requests []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests = append(requests, r.URL.RawQuery)
		w.Header().Set("Content-Type", "application/rdf+xml")
		if r.URL.Query().Get("skip") == "0" {
			w.Write([]byte(cataloguePage))
			return
		}
		w.Write([]byte(emptyPage))
	}))
	defer srv.Close()

	c := New(srv.URL, WithPageSize(100))
	datasets, err := c.Fetch(context.Background())
	require.NoError(t, err)

	assert.Len(t, datasets, 1)
	assert.Len(t, requests, 2)
	assert.Contains(t, requests[0], "limit=100")
}

func TestClientFetchErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.Fetch(context.Background())
	assert.Error(t, err)
}
