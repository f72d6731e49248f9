package payload

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/ogdch/harvester/internal"
)

// Registration status and publication level literals used by the
// destination API. New datasets are always forced to Recorded/Public;
// datasets about to be deleted are first withdrawn to Internal.
const (
	StatusRecorded = "Recorded"
	LevelPublic    = "Public"
	LevelInternal  = "Internal"
)

// Code wraps a controlled-vocabulary code.
type Code struct {
	Code string `json:"code"`
}

// URI wraps a resource reference.
type URI struct {
	URI string `json:"uri"`
}

// Publisher identifies the owning organisation.
type Publisher struct {
	Identifier string `json:"identifier"`
}

// Dataset is the destination API's dataset schema.
type Dataset struct {
	Identifiers   []string        `json:"identifiers"`
	Title         internal.Text   `json:"title"`
	Description   internal.Text   `json:"description"`
	AccessRights  Code            `json:"accessRights"`
	Publisher     Publisher       `json:"publisher"`
	Issued        string          `json:"issued,omitempty"`
	Modified      string          `json:"modified,omitempty"`
	LandingPage   *URI            `json:"landingPage,omitempty"`
	Themes        []Code          `json:"themes,omitempty"`
	Keywords      []internal.Text `json:"keywords,omitempty"`
	Languages     []Code          `json:"languages,omitempty"`
	Distributions []Distribution  `json:"distributions"`
}

// Distribution is the destination API's distribution schema.
type Distribution struct {
	Title       internal.Text `json:"title"`
	Description internal.Text `json:"description"`
	AccessURL   *URI          `json:"accessUrl,omitempty"`
	DownloadURL *URI          `json:"downloadUrl,omitempty"`
	MediaType   string        `json:"mediaType,omitempty"`
	Format      *Code         `json:"format,omitempty"`
	ByteSize    int64         `json:"byteSize,omitempty"`
}

// Identifier returns the dataset's primary identifier.
func (d *Dataset) Identifier() string {
	if len(d.Identifiers) == 0 {
		return ""
	}
	return d.Identifiers[0]
}

// Signature is a content signature over the mapped payload. Two runs
// producing field-wise equal payloads produce equal signatures; any
// mapped field change flips it. Relies on encoding/json emitting map
// keys in sorted order.
func Signature(d *Dataset) string {
	bs, err := json.Marshal(d)
	if err != nil {
		// Dataset contains only marshalable types.
		panic(err)
	}
	sum := sha256.Sum256(bs)
	return hex.EncodeToString(sum[:])
}
