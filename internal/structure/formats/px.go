package formats

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/ogdch/harvester/internal"
)

// PX cube download endpoint. The file id goes into the file query
// parameter.
const defaultPXDownloadURL = "https://www.pxweb.bfs.admin.ch/DownloadFile.aspx"

var (
	pxPattern   = regexp.MustCompile(`(?i)px-x-\d+_\d+`)
	pxIDPattern = regexp.MustCompile(`(?i)^px-x-\d+_\d+`)

	pxKeyword = regexp.MustCompile(`(?s)(TITLE|DESCRIPTION|HEADING|STUB)(?:\[(\w+)\])?="(.*?)";`)
)

type PXOption func(*PX)

func WithPXHTTPClient(httpClient *http.Client) PXOption {
	return func(p *PX) {
		p.httpClient = httpClient
	}
}

func WithPXDownloadURL(downloadURL string) PXOption {
	return func(p *PX) {
		p.downloadURL = downloadURL
	}
}

// PX imports the structure of PX statistical cubes. The cube id is
// extracted from the distribution URL and the file is fetched from the
// central download endpoint, so two language variants of the same cube
// share one identifier.
type PX struct {
	httpClient  *http.Client
	downloadURL string
}

func NewPX(opts ...PXOption) *PX {
	p := &PX{
		downloadURL: defaultPXDownloadURL,
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.httpClient == nil {
		p.httpClient = &http.Client{Timeout: defaultTimeout}
	}

	return p
}

func (p *PX) Name() string {
	return "px"
}

func (p *PX) CanProcess(d Distribution) bool {
	u := d.URL()
	if u == "" {
		return false
	}
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		u = u[:i]
	}
	return pxPattern.MatchString(u)
}

func (p *PX) Identifier(d Distribution) (string, bool) {
	raw := d.URL()
	if raw == "" {
		return "", false
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}

	base := path.Base(u.Path)
	if i := strings.Index(base, "."); i >= 0 {
		base = base[:i]
	}

	if !pxIDPattern.MatchString(base) {
		return "", false
	}
	return base, true
}

func (p *PX) Fetch(ctx context.Context, d Distribution) (*Document, error) {
	id, ok := p.Identifier(d)
	if !ok {
		return nil, fmt.Errorf("px: no cube identifier in %q", d.URL())
	}

	u := p.downloadURL + "?file=" + url.QueryEscape(id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("px: status %d downloading cube %s", resp.StatusCode, id)
	}

	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	return parsePX(decodeText(content), id)
}

// parsePX extracts titles, descriptions and dimensions from the PX
// keyword header. STUB dimensions become row properties, the HEADING
// dimension becomes the final column property.
func parsePX(content, id string) (*Document, error) {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.ReplaceAll(content, "\r", "\n")

	doc := &Document{
		Identifier:  id,
		Title:       internal.Text{},
		Description: internal.Text{},
	}

	// stub dimension labels by position, per language
	var stubs []internal.Text
	heading := internal.Text{}

	for _, m := range pxKeyword.FindAllStringSubmatch(content, -1) {
		keyword, lang, value := m[1], m[2], strings.TrimSpace(m[3])
		if lang == "" {
			lang = "de"
		}

		switch keyword {
		case "TITLE":
			doc.Title[lang] = value
		case "DESCRIPTION":
			doc.Description[lang] = value
		case "HEADING":
			heading[lang] = strings.Trim(value, `"`)
		case "STUB":
			for i, dim := range splitQuotedList(value) {
				for len(stubs) <= i {
					stubs = append(stubs, internal.Text{})
				}
				if _, ok := stubs[i][lang]; !ok {
					stubs[i][lang] = dim
				}
			}
		}
	}

	if len(doc.Title) == 0 && len(doc.Description) == 0 && len(stubs) == 0 && len(heading) == 0 {
		return nil, fmt.Errorf("px: no PX keywords found in cube %s", id)
	}

	for _, labels := range stubs {
		if len(labels) == 0 {
			continue
		}
		doc.Properties = append(doc.Properties, Property{
			Name:     cleanPropertyName(labels.First()),
			Labels:   labels,
			Datatype: "string",
		})
	}

	if len(heading) > 0 {
		doc.Properties = append(doc.Properties, Property{
			Name:     cleanPropertyName(heading.First()),
			Labels:   heading,
			Datatype: headingDatatype(heading),
		})
	}

	return doc, nil
}

// headingDatatype marks year-like heading dimensions as gYear.
func headingDatatype(labels internal.Text) string {
	for _, label := range labels {
		l := strings.ToLower(label)
		for _, indicator := range []string{"jahr", "year", "année", "annee", "anno"} {
			if strings.Contains(l, indicator) {
				return "gYear"
			}
		}
	}
	return "string"
}

// splitQuotedList splits a PX value list of the form `"a","b","c"`.
func splitQuotedList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, `","`) {
		part = strings.Trim(strings.TrimSpace(part), `"`)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
