package hub

import (
	"github.com/ogdch/harvester/internal"
)

// Dataset is one catalogue record as published by the hub harvest feed.
// It is an immutable snapshot for the duration of a harvest run.
type Dataset struct {
	Identifier    string
	Title         internal.Text
	Description   internal.Text
	AccessRights  string
	Publisher     string
	LandingPage   string
	Issued        string
	Modified      string
	Themes        []string
	Keywords      []string
	Languages     []string
	Distributions []Distribution
}

// Distribution is one downloadable representation of a dataset.
// It has no lifecycle of its own outside its parent dataset.
type Distribution struct {
	AccessURL   string
	DownloadURL string
	MediaType   string
	Format      string
	Title       internal.Text
	Description internal.Text
	ByteSize    int64
	Checksum    string
}

// URL returns the distribution's access URL, falling back to the
// download URL.
func (d Distribution) URL() string {
	if d.AccessURL != "" {
		return d.AccessURL
	}
	return d.DownloadURL
}
