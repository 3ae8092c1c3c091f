package photo

import "time"

// Photo is one legacy image-asset document. The schema evolved over
// several years, so any subset of the reference fields may be present.
type Photo struct {
	ID        string    `bson:"_id" json:"id"`
	CreatedAt time.Time `bson:"_created_at" json:"createdAt"`

	// URL is the primary reference. Pre-migration it is either a CDN
	// upload URL or a third-party (Filestack) host URL; post-migration
	// it is the canonical object-storage URL.
	URL string `bson:"url,omitempty" json:"url,omitempty"`

	// Fullsize is the rendered/display reference.
	Fullsize string `bson:"fullsize,omitempty" json:"fullsize,omitempty"`

	// PrintVersion is the print-ready reference. Usually the same
	// upload as the raster fields, but a distinct PDF for print orders.
	PrintVersion string `bson:"printVersion,omitempty" json:"printVersion,omitempty"`

	BigThumb         string `bson:"bigThumb,omitempty" json:"bigThumb,omitempty"`
	MediumThumb      string `bson:"mediumThumb,omitempty" json:"mediumThumb,omitempty"`
	SmallThumb       string `bson:"smallThumb,omitempty" json:"smallThumb,omitempty"`
	PreviewThumbnail string `bson:"previewThumbnail,omitempty" json:"previewThumbnail,omitempty"`
}

// Field names as stored in the document database.
const (
	FieldURL              = "url"
	FieldFullsize         = "fullsize"
	FieldPrintVersion     = "printVersion"
	FieldBigThumb         = "bigThumb"
	FieldMediumThumb      = "mediumThumb"
	FieldSmallThumb       = "smallThumb"
	FieldPreviewThumbnail = "previewThumbnail"
)

// ReferenceFields lists every reference field in a fixed order.
var ReferenceFields = []string{
	FieldURL,
	FieldFullsize,
	FieldPrintVersion,
	FieldBigThumb,
	FieldMediumThumb,
	FieldSmallThumb,
	FieldPreviewThumbnail,
}

// Field is one named reference value.
type Field struct {
	Name  string
	Value string
}

// Get returns the value of a reference field by name.
func (p *Photo) Get(name string) string {
	switch name {
	case FieldURL:
		return p.URL
	case FieldFullsize:
		return p.Fullsize
	case FieldPrintVersion:
		return p.PrintVersion
	case FieldBigThumb:
		return p.BigThumb
	case FieldMediumThumb:
		return p.MediumThumb
	case FieldSmallThumb:
		return p.SmallThumb
	case FieldPreviewThumbnail:
		return p.PreviewThumbnail
	}
	return ""
}

// Present returns the non-empty reference fields in canonical order.
func (p *Photo) Present() []Field {
	var out []Field
	for _, name := range ReferenceFields {
		if v := p.Get(name); v != "" {
			out = append(out, Field{Name: name, Value: v})
		}
	}
	return out
}

// Variants returns the present reference fields excluding the primary.
func (p *Photo) Variants() []Field {
	var out []Field
	for _, f := range p.Present() {
		if f.Name != FieldURL {
			out = append(out, f)
		}
	}
	return out
}

// References returns all present fields as a name->value map, used as a
// pre-image in audit entries.
func (p *Photo) References() map[string]string {
	out := make(map[string]string)
	for _, f := range p.Present() {
		out[f.Name] = f.Value
	}
	return out
}

// MovedFile describes one object copied to the destination store.
type MovedFile struct {
	Source           string `bson:"source" json:"source"`
	Destination      string `bson:"destination" json:"destination"`
	SourceFormat     string `bson:"sourceFormat" json:"sourceFormat"`
	SourceIdentifier string `bson:"sourceIdentifier" json:"sourceIdentifier"`
}

// LogEntry is one immutable audit record, written once per processing
// attempt and never updated.
type LogEntry struct {
	CreatedAt      time.Time         `bson:"_created_at"`
	JobID          string            `bson:"jobId"`
	Date           string            `bson:"date"`
	PhotoID        string            `bson:"photo_id"`
	PhotoCreatedAt time.Time         `bson:"photo_created_at"`
	Before         map[string]string `bson:"before,omitempty"`
	After          map[string]string `bson:"after,omitempty"`
	MovedFiles     []MovedFile       `bson:"migratedFiles,omitempty"`
	Error          string            `bson:"error,omitempty"`
}
