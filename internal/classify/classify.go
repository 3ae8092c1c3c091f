// Package classify decides, from the reference fields present on one
// legacy photo document, which migration shape the record matches. The
// checks run in a strict precedence order and every record resolves to
// exactly one kind; ambiguity is an Invalid classification, never a
// silent skip.
package classify

import (
	"fmt"
	"regexp"
	"strings"

	"photomigrate/internal/photo"
	"photomigrate/internal/transform"
)

// Kind is the migration shape of one record.
type Kind int

const (
	// Invalid marks a record whose fields violate the expected legacy
	// shapes. It is recorded as an error and never mutated.
	Invalid Kind = iota

	// SkipAlreadyMigrated marks a record whose variant fields already
	// use the fetch-proxy form. No action required.
	SkipAlreadyMigrated

	// FullMigration is the standard case: all seven reference fields
	// present, one shared canonical upload behind them.
	FullMigration

	// VectorMigration covers vector (SVG) records, which carry only the
	// rendered reference and a single thumbnail. The two assets are
	// copied independently.
	VectorMigration

	// ExternalHostResolution covers records whose only reference is a
	// third-party (Filestack) host URL. The destination path comes from
	// the precomputed handle index.
	ExternalHostResolution

	// PrimaryOnlyMigration covers records whose only reference is a
	// CDN-hosted primary URL.
	PrimaryOnlyMigration
)

func (k Kind) String() string {
	switch k {
	case SkipAlreadyMigrated:
		return "skip"
	case FullMigration:
		return "full"
	case VectorMigration:
		return "vector"
	case ExternalHostResolution:
		return "externalHost"
	case PrimaryOnlyMigration:
		return "primaryOnly"
	default:
		return "invalid"
	}
}

// Result is the classification outcome. Reason is set for Invalid.
type Result struct {
	Kind   Kind
	Reason string
}

var (
	// Upload-style reference: CDN-hosted original content.
	uploadPattern = regexp.MustCompile(`res\.cloudinary\.com/[^/]+/image/(upload|private)/`)

	// Fetch-proxy reference: on-the-fly transform of a remote source.
	fetchPattern = regexp.MustCompile(`res\.cloudinary\.com/[^/]+/image/fetch/`)

	uploadMarker = regexp.MustCompile(`/(upload|private)/`)
	fetchMarker  = regexp.MustCompile(`/fetch/`)

	// Third-party file hosting, resolved through the handle index.
	externalHostPattern = regexp.MustCompile(`(cdn|www)\.filestackcontent\.com/`)

	// Destination object-store locations, in the virtual-hosted form
	// the uploader renders.
	objectStorePattern = regexp.MustCompile(`\.s3([.-][a-z0-9-]+)?\.amazonaws\.com/`)

	// Uploads in these folders (and a few fixed placeholder files) are
	// shared non-photo assets and are deliberately outside the
	// migration. A primary reference matching one of these while every
	// variant is already a fetch URL means the record is done.
	allowedUploadPaths = regexp.MustCompile(
		`/(assets|art|fonts|icons|templates|samples|static|stock|collages|creators|lifecycle|marketing|photoWalls|test)/` +
			`|/placeholder_\d+x\d+_[a-z0-9]+\.png$`)
)

// IsUploadStyle reports whether a reference is a CDN upload URL.
func IsUploadStyle(url string) bool { return uploadPattern.MatchString(url) }

// IsFetchStyle reports whether a reference is a CDN fetch-proxy URL.
func IsFetchStyle(url string) bool { return fetchPattern.MatchString(url) }

// IsExternalHost reports whether a reference is a third-party host URL.
func IsExternalHost(url string) bool { return externalHostPattern.MatchString(url) }

// IsObjectStore reports whether a reference already points at the
// destination object store.
func IsObjectStore(url string) bool { return objectStorePattern.MatchString(url) }

// IsAllowedUploadPath reports whether an upload URL points at one of the
// non-photo asset folders excluded from migration.
func IsAllowedUploadPath(url string) bool { return allowedUploadPaths.MatchString(url) }

func invalid(format string, args ...any) Result {
	return Result{Kind: Invalid, Reason: fmt.Sprintf(format, args...)}
}

// Classify resolves one record to exactly one Kind.
func Classify(p *photo.Photo) Result {
	present := p.Present()
	if len(present) == 0 {
		return invalid("no reference fields present")
	}

	if alreadyMigrated(p) {
		return Result{Kind: SkipAlreadyMigrated}
	}

	if res, ok := malformed(p); ok {
		return res
	}

	if res, ok := inconsistentFilenames(p); ok {
		return res
	}

	return shape(p)
}

// alreadyMigrated: every present variant field is a fetch-proxy URL and
// the primary, if present, is not an unmigrated upload (it is either a
// rewritten/object URL or an allow-listed non-photo upload).
func alreadyMigrated(p *photo.Photo) bool {
	variants := p.Variants()
	if len(variants) == 0 && p.URL == "" {
		return false
	}
	if len(variants) == 0 {
		// A lone primary is migrated only when it already points at the
		// destination store; anything else still needs classification.
		return IsObjectStore(p.URL)
	}
	for _, f := range variants {
		if !IsFetchStyle(f.Value) {
			return false
		}
	}
	if p.URL == "" {
		return len(variants) > 0
	}
	if IsUploadStyle(p.URL) {
		return IsAllowedUploadPath(p.URL)
	}
	if IsExternalHost(p.URL) {
		return false
	}
	return true
}

// malformed: a present field matches neither legacy form, or an
// upload-style field carries a marker count other than exactly one, or a
// fetch-style field still carries an upload marker.
func malformed(p *photo.Photo) (Result, bool) {
	for _, f := range p.Present() {
		switch {
		case IsUploadStyle(f.Value):
			if n := len(uploadMarker.FindAllString(f.Value, -1)); n != 1 {
				return invalid("field %s has %d upload markers, expected exactly 1", f.Name, n), true
			}
			if fetchMarker.MatchString(f.Value) {
				return invalid("field %s mixes upload and fetch markers", f.Name), true
			}
		case IsFetchStyle(f.Value):
			if uploadMarker.MatchString(f.Value) {
				return invalid("field %s is fetch-style but contains an upload marker", f.Name), true
			}
		case f.Name == photo.FieldURL && IsExternalHost(f.Value):
			// Third-party hosted primary is a legitimate shape.
		default:
			return invalid("field %s matches neither upload nor fetch form: %s", f.Name, f.Value), true
		}
	}
	return Result{}, false
}

// inconsistentFilenames: the base filename must agree across all present
// variant fields. The print-ready field is exempt only when it is a PDF
// (a genuinely distinct print file).
func inconsistentFilenames(p *photo.Photo) (Result, bool) {
	base := ""
	for _, f := range p.Variants() {
		if f.Name == photo.FieldPrintVersion && isPDF(f.Value) {
			continue
		}
		b := transform.BaseName(f.Value)
		if base == "" {
			base = b
			continue
		}
		if b != base {
			return invalid("field %s filename %q does not match %q", f.Name, b, base), true
		}
	}
	return Result{}, false
}

func shape(p *photo.Photo) Result {
	present := p.Present()

	if len(present) == len(photo.ReferenceFields) {
		// A full migration rewrites every variant from one canonical
		// upload; a variant already in another form means the record is
		// partially migrated or corrupted, and rewriting would clobber it.
		for _, f := range p.Variants() {
			if !IsUploadStyle(f.Value) {
				return invalid("field %s must be an upload-style reference for a full migration", f.Name)
			}
		}
		return Result{Kind: FullMigration}
	}

	// Vector records carry only the rendered reference and one thumbnail.
	if p.URL == "" && p.Fullsize != "" && p.PrintVersion == "" {
		thumbs := 0
		for _, f := range p.Variants() {
			if f.Name != photo.FieldFullsize {
				thumbs++
			}
		}
		if thumbs == 1 {
			return Result{Kind: VectorMigration}
		}
		return invalid("rendered reference with %d thumbnails, expected exactly 1", thumbs)
	}

	if len(present) == 1 && present[0].Name == photo.FieldURL {
		if IsExternalHost(p.URL) {
			return Result{Kind: ExternalHostResolution}
		}
		if IsUploadStyle(p.URL) {
			return Result{Kind: PrimaryOnlyMigration}
		}
		return invalid("lone primary reference is neither CDN-hosted nor externally hosted")
	}

	names := make([]string, 0, len(present))
	for _, f := range present {
		names = append(names, f.Name)
	}
	return invalid("unexpected field combination: %s", strings.Join(names, ","))
}

func isPDF(url string) bool {
	return strings.HasSuffix(strings.ToLower(url), ".pdf")
}
