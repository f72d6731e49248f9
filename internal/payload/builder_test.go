package payload

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ogdch/harvester/internal"
	"github.com/ogdch/harvester/internal/hub"
)

func validDataset() hub.Dataset {
	return hub.Dataset{
		Identifier:   "px-x-0102020000_101@bfs",
		Title:        internal.Text{"de": "Bevölkerungsstand"},
		Description:  internal.Text{"de": "Ständige Wohnbevölkerung."},
		AccessRights: "http://publications.europa.eu/resource/authority/access-right/PUBLIC",
		Publisher:    "BFS",
		Distributions: []hub.Distribution{
			{
				AccessURL: "https://example.org/data.csv",
				MediaType: "text/csv",
				Format:    "CSV",
			},
		},
	}
}

func TestBuildValidDataset(t *testing.T) {
	b := NewBuilder("CH1")

	p, err := b.Build(validDataset())
	require.NoError(t, err)

	assert.Equal(t, []string{"px-x-0102020000_101@bfs"}, p.Identifiers)
	assert.Equal(t, "PUBLIC", p.AccessRights.Code)
	assert.Equal(t, "BFS", p.Publisher.Identifier)
	require.Len(t, p.Distributions, 1)
	assert.Equal(t, "https://example.org/data.csv", p.Distributions[0].AccessURL.URI)
}

func TestBuildRejectsMissingDescription(t *testing.T) {
	b := NewBuilder("CH1")

	ds := validDataset()
	ds.Description = internal.Text{"de": ""}

	_, err := b.Build(ds)
	var rej *RejectionError
	require.True(t, errors.As(err, &rej))
	assert.Equal(t, "missing description", rej.Reason)
	assert.Equal(t, ds.Identifier, rej.Identifier)
}

func TestBuildRejectsPDFOnlyDataset(t *testing.T) {
	b := NewBuilder("CH1")

	ds := validDataset()
	ds.Distributions = []hub.Distribution{
		{AccessURL: "https://example.org/report.pdf", MediaType: "application/pdf"},
	}

	_, err := b.Build(ds)
	var rej *RejectionError
	require.True(t, errors.As(err, &rej))
	assert.Equal(t, "no non-PDF distribution", rej.Reason)
}

func TestBuildFiltersPDFKeepsOthers(t *testing.T) {
	b := NewBuilder("CH1")

	ds := validDataset()
	ds.Distributions = append(ds.Distributions, hub.Distribution{
		AccessURL: "https://example.org/report.pdf",
		Format:    "PDF",
	})

	p, err := b.Build(ds)
	require.NoError(t, err)
	require.Len(t, p.Distributions, 1)
	assert.Equal(t, "text/csv", p.Distributions[0].MediaType)
}

func TestBuildRejectsInvalidAccessRights(t *testing.T) {
	b := NewBuilder("CH1")

	ds := validDataset()
	ds.AccessRights = "http://example.org/access-right/SECRET"

	_, err := b.Build(ds)
	var rej *RejectionError
	require.True(t, errors.As(err, &rej))
	assert.Contains(t, rej.Reason, "invalid access rights")
}

func TestBuildDefaultsDistributionTitleAndDescription(t *testing.T) {
	b := NewBuilder("CH1")

	p, err := b.Build(validDataset())
	require.NoError(t, err)

	assert.Equal(t, defaultDistributionTitle, p.Distributions[0].Title["de"])
	assert.Equal(t, defaultDistributionDescription, p.Distributions[0].Description["de"])
}

func TestBuildDefaultsPublisherToOrganization(t *testing.T) {
	b := NewBuilder("CH1")

	ds := validDataset()
	ds.Publisher = ""

	p, err := b.Build(ds)
	require.NoError(t, err)
	assert.Equal(t, "CH1", p.Publisher.Identifier)
}

func TestBuildStripsHTMLFromDescription(t *testing.T) {
	b := NewBuilder("CH1")

	ds := validDataset()
	ds.Description = internal.Text{"de": "<p>Ständige <b>Wohnbevölkerung</b>.</p>"}

	p, err := b.Build(ds)
	require.NoError(t, err)
	assert.Equal(t, "Ständige Wohnbevölkerung.", p.Description["de"])
}

func TestSignatureStableAndSensitive(t *testing.T) {
	b := NewBuilder("CH1")

	p1, err := b.Build(validDataset())
	require.NoError(t, err)
	p2, err := b.Build(validDataset())
	require.NoError(t, err)

	assert.Equal(t, Signature(p1), Signature(p2))

	ds := validDataset()
	ds.Title = internal.Text{"de": "Bevölkerungsstand 2025"}
	p3, err := b.Build(ds)
	require.NoError(t, err)

	assert.NotEqual(t, Signature(p1), Signature(p3))
}
