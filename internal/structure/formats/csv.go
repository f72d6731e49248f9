package formats

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/ogdch/harvester/internal"
)

// sample size for datatype inference.
const csvSampleRows = 50

var csvDelimiters = []rune{',', ';', '\t'}

type CSVOption func(*CSV)

func WithCSVHTTPClient(httpClient *http.Client) CSVOption {
	return func(c *CSV) {
		c.httpClient = httpClient
	}
}

// CSV imports the column structure of CSV exports: header names become
// properties, datatypes are inferred from a sample of rows.
type CSV struct {
	httpClient *http.Client
}

func NewCSV(opts ...CSVOption) *CSV {
	c := &CSV{}

	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: defaultTimeout}
	}

	return c
}

func (c *CSV) Name() string {
	return "csv"
}

func (c *CSV) CanProcess(d Distribution) bool {
	if strings.Contains(strings.ToLower(d.Format), "csv") {
		return true
	}
	if strings.Contains(strings.ToLower(d.MediaType), "csv") {
		return true
	}

	u := strings.ToLower(d.URL())
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		u = u[:i]
	}
	return strings.HasSuffix(u, ".csv")
}

func (c *CSV) Identifier(d Distribution) (string, bool) {
	raw := d.URL()
	if raw == "" {
		return "", false
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}

	base := path.Base(u.Path)
	if base == "." || base == "/" {
		return "", false
	}
	return base, true
}

func (c *CSV) Fetch(ctx context.Context, d Distribution) (*Document, error) {
	u := d.URL()
	if u == "" {
		return nil, fmt.Errorf("csv: distribution has no URL")
	}

	id, _ := c.Identifier(d)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("csv: status %d downloading %s", resp.StatusCode, u)
	}

	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	return parseCSV(decodeText(content), id)
}

func parseCSV(content, id string) (*Document, error) {
	delimiter := sniffDelimiter(content)

	reader := csv.NewReader(strings.NewReader(content))
	reader.Comma = delimiter
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	headers, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("csv: empty file %s", id)
	}

	var rows [][]string
	for len(rows) < csvSampleRows {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}
		rows = append(rows, row)
	}

	doc := &Document{
		Identifier:  id,
		Title:       internal.Text{"en": fmt.Sprintf("CSV Structure for %s", id)},
		Description: internal.Text{"en": fmt.Sprintf("Automatically generated structure for CSV file with %d columns", len(headers))},
	}

	for i, header := range headers {
		var values []string
		for _, row := range rows {
			if i < len(row) {
				values = append(values, row[i])
			}
		}

		doc.Properties = append(doc.Properties, Property{
			Name:     csvColumnName(header),
			Labels:   internal.Text{"en": strings.TrimSpace(header)},
			Datatype: inferDatatype(values),
		})
	}

	return doc, nil
}

func csvColumnName(header string) string {
	name := cleanPropertyName(header)
	if name == "property" {
		return "column"
	}
	return name
}

// sniffDelimiter picks the delimiter producing the most columns in the
// first row.
func sniffDelimiter(content string) rune {
	sample := content
	if len(sample) > 1024 {
		sample = sample[:1024]
	}
	if i := strings.IndexByte(sample, '\n'); i >= 0 {
		sample = sample[:i]
	}

	best := csvDelimiters[0]
	maxColumns := 0

	for _, delim := range csvDelimiters {
		reader := csv.NewReader(strings.NewReader(sample))
		reader.Comma = delim
		reader.LazyQuotes = true

		row, err := reader.Read()
		if err != nil {
			continue
		}
		if len(row) > maxColumns {
			maxColumns = len(row)
			best = delim
		}
	}

	return best
}

// inferDatatype classifies a column as integer, decimal or string
// based on its non-empty sample values.
func inferDatatype(values []string) string {
	var nonEmpty []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			nonEmpty = append(nonEmpty, v)
		}
	}
	if len(nonEmpty) == 0 {
		return "string"
	}

	isInteger := true
	for _, v := range nonEmpty {
		if _, err := strconv.ParseInt(v, 10, 64); err != nil {
			isInteger = false
			break
		}
	}
	if isInteger {
		return "integer"
	}

	isDecimal := true
	for _, v := range nonEmpty {
		if _, err := strconv.ParseFloat(v, 64); err != nil {
			isDecimal = false
			break
		}
	}
	if isDecimal {
		return "decimal"
	}

	return "string"
}
