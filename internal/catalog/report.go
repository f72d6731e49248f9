package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"
)

/*
The catalog records what one harvest run did: which identifiers were
created, updated, unchanged, deleted or rejected, and whether the run
completed. It is the sole failure-reporting channel — there is no
interactive error surface.
*/

// Report is the outcome of one harvest run.
type Report struct {
	RunID     string    `json:"run_id"`
	Source    string    `json:"source"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`

	// identifier → destination dataset id
	Created   map[string]string `json:"created"`
	Updated   map[string]string `json:"updated"`
	Unchanged map[string]string `json:"unchanged"`
	Deleted   map[string]string `json:"deleted"`

	// identifier → rejection reason
	Rejected map[string]string `json:"rejected"`
	// identifier → error text for datasets whose API call failed
	Failed map[string]string `json:"failed"`

	Completed bool `json:"completed"`
}

func NewReport(runID, source string) *Report {
	return &Report{
		RunID:     runID,
		Source:    source,
		StartTime: time.Now().UTC(),
		Created:   make(map[string]string),
		Updated:   make(map[string]string),
		Unchanged: make(map[string]string),
		Deleted:   make(map[string]string),
		Rejected:  make(map[string]string),
		Failed:    make(map[string]string),
	}
}

// Finish marks the run complete and stamps the end time.
func (r *Report) Finish() {
	r.EndTime = time.Now().UTC()
	r.Completed = true
}

// Targets returns the identifiers the structure importer should
// process: everything created or updated in this run, mapped to the
// destination dataset id.
func (r *Report) Targets() map[string]string {
	targets := make(map[string]string, len(r.Created)+len(r.Updated))
	for id, datasetID := range r.Created {
		targets[id] = datasetID
	}
	for id, datasetID := range r.Updated {
		targets[id] = datasetID
	}
	return targets
}

// RenderLog renders the harvest_log.txt artifact. The format is the
// one downstream tooling greps: section headings per action and one
// "- identifier : id" line per dataset.
func (r *Report) RenderLog() []byte {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "Harvest completed successfully at %s\n", r.EndTime.Format(time.RFC3339))

	sections := []struct {
		name    string
		entries map[string]string
	}{
		{"Created", r.Created},
		{"Updated", r.Updated},
		{"Unchanged", r.Unchanged},
		{"Deleted", r.Deleted},
		{"Rejected", r.Rejected},
		{"Failed", r.Failed},
	}

	for _, section := range sections {
		fmt.Fprintf(&buf, "\n%s datasets: %d", section.name, len(section.entries))
		for _, identifier := range sortedKeys(section.entries) {
			fmt.Fprintf(&buf, "\n- %s : %s", identifier, section.entries[identifier])
		}
		buf.WriteByte('\n')
	}

	return buf.Bytes()
}

// JSON encodes the report for storage.
func (r *Report) JSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// WriteFile writes the report as JSON, for the structures command to
// pick up later.
func (r *Report) WriteFile(path string) error {
	bs, err := r.JSON()
	if err != nil {
		return err
	}
	return os.WriteFile(path, bs, 0o644)
}

// ReadFile loads a report previously written with WriteFile.
func ReadFile(path string) (*Report, error) {
	bs, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var r Report
	if err := json.Unmarshal(bs, &r); err != nil {
		return nil, fmt.Errorf("catalog: decoding report %s: %w", path, err)
	}
	return &r, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
