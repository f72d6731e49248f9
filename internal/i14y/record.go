package i14y

// Ref is a resource reference as returned by the partner API.
type Ref struct {
	URI string `json:"uri"`
}

// Format is a controlled-vocabulary format value.
type Format struct {
	Name string `json:"name"`
	Code string `json:"code"`
}

// Distribution is one downloadable representation attached to a
// destination dataset record.
type Distribution struct {
	ID          string            `json:"id"`
	AccessURL   *Ref              `json:"accessUrl"`
	DownloadURL *Ref              `json:"downloadUrl"`
	MediaType   string            `json:"mediaType"`
	Format      *Format           `json:"format"`
	Title       map[string]string `json:"title"`
}

// Dataset is a destination dataset record as returned by the partner
// API. Only the fields the harvester reads back are mapped.
type Dataset struct {
	ID            string         `json:"id"`
	Identifiers   []string       `json:"identifiers"`
	Distributions []Distribution `json:"distributions"`
}
