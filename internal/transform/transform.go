// Package transform derives canonical object identifiers from legacy CDN
// references and rewrites references into the fetch-proxy form that
// points at the migrated object.
package transform

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// Formats the CDN can serve. Anything else is a hard error, never a
// best-effort upload.
var allowedFormats = map[string]struct{}{
	"gif": {}, "png": {}, "jpg": {}, "jpeg": {}, "bmp": {}, "ico": {},
	"pdf": {}, "tiff": {}, "eps": {}, "jpc": {}, "jp2": {}, "psd": {},
	"webp": {}, "svg": {}, "webm": {}, "wdp": {}, "hpx": {}, "djvu": {},
	"ai": {}, "flif": {}, "bpg": {}, "miff": {}, "tga": {}, "heic": {},
}

// FormatAllowed reports whether format is one of the supported
// image/document formats.
func FormatAllowed(format string) bool {
	_, ok := allowedFormats[strings.ToLower(format)]
	return ok
}

var cloudPattern = regexp.MustCompile(`res\.cloudinary\.com/([^/]+)/image/(upload|private)`)

// FileName returns the trailing path segment of a reference.
func FileName(rawURL string) string {
	if i := strings.LastIndex(rawURL, "/"); i >= 0 {
		return rawURL[i+1:]
	}
	return rawURL
}

// BaseName returns the canonical identifier of a reference: the path
// segment between the last "/" and the file extension. This is the
// object-storage key stem.
func BaseName(rawURL string) string {
	name := FileName(rawURL)
	if i := strings.LastIndex(name, "."); i >= 0 {
		return name[:i]
	}
	return name
}

// Extension returns the file extension of a reference, or "" when the
// URL carries none.
func Extension(rawURL string) string {
	name := FileName(rawURL)
	if i := strings.LastIndex(name, "."); i >= 0 {
		return name[i+1:]
	}
	return ""
}

// Components describes the source of one asset move.
type Components struct {
	DownloadURL string
	PublicID    string
	Format      string
}

// FormatResolver resolves the format and download URL of an asset by its
// public identifier via the CDN metadata API. The endpoint is
// rate-limited, so it is consulted only when the URL itself carries no
// extension.
type FormatResolver interface {
	ResolveFormat(ctx context.Context, publicID string) (format, downloadURL string, err error)
}

// Deriver derives move components from legacy references.
type Deriver struct {
	// AllowedClouds restricts which CDN environments are part of the
	// migration; a reference from any other environment is an error.
	AllowedClouds []string
	Resolver      FormatResolver
}

// Components derives the canonical identifier, format and download URL
// for one reference.
func (d *Deriver) Components(ctx context.Context, rawURL string) (Components, error) {
	publicID := BaseName(rawURL)

	if strings.HasSuffix(strings.ToLower(rawURL), ".pdf") {
		return Components{DownloadURL: rawURL, PublicID: publicID, Format: "pdf"}, nil
	}

	format := Extension(rawURL)
	var downloadURL string
	if format != "" {
		cloud, err := d.cloudOf(rawURL)
		if err != nil {
			return Components{}, err
		}
		downloadURL = fmt.Sprintf("https://res.cloudinary.com/%s/image/upload/%s.%s", cloud, publicID, format)
	} else {
		if d.Resolver == nil {
			return Components{}, fmt.Errorf("reference %s has no extension and no metadata resolver is configured", rawURL)
		}
		var err error
		format, downloadURL, err = d.Resolver.ResolveFormat(ctx, publicID)
		if err != nil {
			return Components{}, err
		}
	}

	if !FormatAllowed(format) {
		return Components{}, fmt.Errorf("reference %s has unsupported format %q", rawURL, format)
	}

	return Components{DownloadURL: downloadURL, PublicID: publicID, Format: format}, nil
}

func (d *Deriver) cloudOf(rawURL string) (string, error) {
	m := cloudPattern.FindStringSubmatch(rawURL)
	if m == nil {
		return "", fmt.Errorf("reference %s does not name a CDN environment", rawURL)
	}
	for _, allowed := range d.AllowedClouds {
		if m[1] == allowed {
			return m[1], nil
		}
	}
	return "", fmt.Errorf("reference %s belongs to CDN environment %q which is not part of this migration", rawURL, m[1])
}

// ToFetchURL rewrites a legacy upload reference into a fetch-proxy URL
// targeting objectURL. The trailing path segment is dropped, the upload
// segment swaps for the fetch segment, and a format-coercion directive
// is appended before the fetch target, so any resize/crop directives
// embedded earlier in the path survive the rewrite.
func ToFetchURL(legacyURL, objectURL string) string {
	prefix := legacyURL
	if i := strings.LastIndex(legacyURL, "/"); i >= 0 {
		prefix = legacyURL[:i]
	}
	switch {
	case strings.HasSuffix(prefix, "/image/upload"):
		prefix = strings.TrimSuffix(prefix, "/image/upload") + "/image/fetch"
	case strings.HasSuffix(prefix, "/image/private"):
		prefix = strings.TrimSuffix(prefix, "/image/private") + "/image/fetch"
	default:
		prefix = strings.Replace(prefix, "/image/upload/", "/image/fetch/", 1)
		prefix = strings.Replace(prefix, "/image/private/", "/image/fetch/", 1)
	}
	return prefix + "/f_jpg/" + objectURL
}
