package payload

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/ogdch/harvester/internal"
	"github.com/ogdch/harvester/internal/hub"
)

// Access rights codes accepted by the destination API.
var accessRightsCodes = map[string]struct{}{
	"PUBLIC":       {},
	"NON_PUBLIC":   {},
	"CONFIDENTIAL": {},
	"RESTRICTED":   {},
}

// Fallback literals for distributions missing mandatory fields. The
// destination requires both; the source frequently omits them, and
// rejecting the whole dataset over a missing download label would be
// too strict.
const (
	defaultDistributionTitle       = "Download"
	defaultDistributionDescription = "Datenexport"
)

// RejectionError reports why a dataset failed the validity gate.
// Rejected datasets are skipped and logged, never synced.
type RejectionError struct {
	Identifier string
	Reason     string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("dataset %s rejected: %s", e.Identifier, e.Reason)
}

type BuilderOption func(*Builder)

func WithLogger(logger *zap.Logger) BuilderOption {
	return func(b *Builder) {
		b.logger = logger
	}
}

// Builder maps source dataset records onto the destination schema and
// enforces the mandatory-field gate.
type Builder struct {
	logger       *zap.Logger
	organization string
}

func NewBuilder(organization string, opts ...BuilderOption) *Builder {
	b := &Builder{
		logger:       zap.NewNop(),
		organization: organization,
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// Build maps one source record to a destination payload, or returns a
// *RejectionError. It never panics past this boundary; the caller
// decides whether to skip-and-log or abort.
func (b *Builder) Build(ds hub.Dataset) (*Dataset, error) {
	if ds.Identifier == "" {
		return nil, &RejectionError{Identifier: ds.Identifier, Reason: "missing identifier"}
	}

	title := cleanText(ds.Title)
	if title.IsEmpty() {
		return nil, &RejectionError{Identifier: ds.Identifier, Reason: "missing title"}
	}

	description := cleanText(ds.Description)
	if description.IsEmpty() {
		return nil, &RejectionError{Identifier: ds.Identifier, Reason: "missing description"}
	}

	rights := accessRightsCode(ds.AccessRights)
	if _, ok := accessRightsCodes[rights]; !ok {
		return nil, &RejectionError{
			Identifier: ds.Identifier,
			Reason:     fmt.Sprintf("invalid access rights %q", ds.AccessRights),
		}
	}

	publisher := ds.Publisher
	if publisher == "" {
		publisher = b.organization
	}
	if publisher == "" {
		return nil, &RejectionError{Identifier: ds.Identifier, Reason: "missing publisher"}
	}

	distributions := b.buildDistributions(ds)
	if len(distributions) == 0 {
		return nil, &RejectionError{Identifier: ds.Identifier, Reason: "no non-PDF distribution"}
	}

	p := &Dataset{
		Identifiers:   []string{ds.Identifier},
		Title:         title,
		Description:   description,
		AccessRights:  Code{Code: rights},
		Publisher:     Publisher{Identifier: publisher},
		Issued:        ds.Issued,
		Modified:      ds.Modified,
		Distributions: distributions,
	}

	if ds.LandingPage != "" {
		p.LandingPage = &URI{URI: ds.LandingPage}
	}

	for _, theme := range ds.Themes {
		p.Themes = append(p.Themes, Code{Code: lastSegment(theme)})
	}

	for _, kw := range ds.Keywords {
		p.Keywords = append(p.Keywords, internal.Text{"de": kw})
	}

	for _, lang := range ds.Languages {
		p.Languages = append(p.Languages, Code{Code: languageCode(lang)})
	}

	return p, nil
}

// buildDistributions filters PDF distributions out and applies the
// mandatory-field fallbacks to the survivors.
func (b *Builder) buildDistributions(ds hub.Dataset) []Distribution {
	var out []Distribution
	for _, dist := range ds.Distributions {
		if isPDF(dist) {
			b.logger.Debug("dropping PDF distribution",
				zap.String("identifier", ds.Identifier),
				zap.String("url", dist.URL()),
			)
			continue
		}

		p := Distribution{
			Title:       cleanText(dist.Title),
			Description: cleanText(dist.Description),
			MediaType:   dist.MediaType,
			ByteSize:    dist.ByteSize,
		}
		if p.Title.IsEmpty() {
			p.Title = internal.Text{"de": defaultDistributionTitle}
		}
		if p.Description.IsEmpty() {
			p.Description = internal.Text{"de": defaultDistributionDescription}
		}
		if dist.AccessURL != "" {
			p.AccessURL = &URI{URI: dist.AccessURL}
		}
		if dist.DownloadURL != "" {
			p.DownloadURL = &URI{URI: dist.DownloadURL}
		}
		if dist.Format != "" {
			p.Format = &Code{Code: dist.Format}
		}

		out = append(out, p)
	}
	return out
}

func isPDF(dist hub.Distribution) bool {
	if strings.Contains(strings.ToLower(dist.MediaType), "pdf") {
		return true
	}
	if strings.EqualFold(dist.Format, "pdf") {
		return true
	}
	u := strings.ToLower(dist.URL())
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		u = u[:i]
	}
	return strings.HasSuffix(u, ".pdf")
}

// accessRightsCode reduces an EU access-right authority URI to its code.
func accessRightsCode(raw string) string {
	return strings.ToUpper(lastSegment(strings.TrimSpace(raw)))
}

// languageCode reduces an EU language authority URI to a lower-case
// two-letter code where possible.
func languageCode(raw string) string {
	code := lastSegment(strings.TrimSpace(raw))
	switch strings.ToUpper(code) {
	case "DEU", "GER":
		return "de"
	case "FRA", "FRE":
		return "fr"
	case "ITA":
		return "it"
	case "ENG":
		return "en"
	case "ROH":
		return "rm"
	}
	return strings.ToLower(code)
}

func lastSegment(uri string) string {
	if uri == "" {
		return ""
	}
	return uri[strings.LastIndex(uri, "/")+1:]
}

// cleanText strips embedded HTML markup from every language variant.
func cleanText(t internal.Text) internal.Text {
	if len(t) == 0 {
		return nil
	}
	out := internal.Text{}
	for lang, v := range t {
		v = stripHTML(v)
		if v != "" {
			out[lang] = v
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func stripHTML(s string) string {
	if !strings.Contains(s, "<") {
		return strings.TrimSpace(s)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(doc.Text())
}
