package migrate

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"photomigrate/internal/classify"
	"photomigrate/internal/photo"
	"photomigrate/internal/transform"
)

// outcome is the result of rewriting one record: the post-image of the
// fields that change plus the descriptors of every object moved.
type outcome struct {
	after map[string]string
	moved []photo.MovedFile
}

// buildOutcome computes the rewrite for one record according to its
// classified shape. Object moves happen here; database writes do not.
func (e *Engine) buildOutcome(ctx context.Context, kind classify.Kind, p *photo.Photo, logger *zap.Logger) (*outcome, error) {
	switch kind {
	case classify.FullMigration:
		return e.fullMigration(ctx, p, logger)
	case classify.VectorMigration:
		return e.vectorMigration(ctx, p)
	case classify.ExternalHostResolution:
		return e.externalHostResolution(ctx, p, logger)
	case classify.PrimaryOnlyMigration:
		return e.primaryOnlyMigration(ctx, p)
	default:
		return nil, ShapeViolation("no rewrite defined for classification %s", kind)
	}
}

// fullMigration handles the standard seven-field record. One canonical
// object backs every raster field; a PDF print file is moved on its own.
func (e *Engine) fullMigration(ctx context.Context, p *photo.Photo, logger *zap.Logger) (*outcome, error) {
	out := &outcome{after: make(map[string]string)}

	if isPDF(p.PrintVersion) {
		logger.Info("print-ready reference is a distinct pdf")
		comps, err := e.Deriver.Components(ctx, p.PrintVersion)
		if err != nil {
			return nil, err
		}
		location, err := e.move(ctx, comps, e.Buckets.Transformed, comps.PublicID+"_migrated."+comps.Format, out)
		if err != nil {
			return nil, err
		}
		out.after[photo.FieldPrintVersion] = location
	}

	// The canonical object: already external (a previous system wrote
	// the primary directly to storage), or a fresh move of the rendered
	// upload.
	canonical := p.URL
	if classify.IsUploadStyle(p.URL) {
		comps, err := e.Deriver.Components(ctx, p.Fullsize)
		if err != nil {
			return nil, err
		}
		canonical, err = e.move(ctx, comps, e.Buckets.Transformed, comps.PublicID+"_migrated."+comps.Format, out)
		if err != nil {
			return nil, err
		}
	}

	out.after[photo.FieldURL] = canonical
	if _, ok := out.after[photo.FieldPrintVersion]; !ok {
		out.after[photo.FieldPrintVersion] = transform.ToFetchURL(p.PrintVersion, canonical)
	}
	for _, name := range []string{
		photo.FieldFullsize,
		photo.FieldBigThumb,
		photo.FieldMediumThumb,
		photo.FieldSmallThumb,
		photo.FieldPreviewThumbnail,
	} {
		out.after[name] = transform.ToFetchURL(p.Get(name), canonical)
	}

	return out, nil
}

// vectorMigration handles vector records: the rendered reference and
// its single thumbnail are two distinct assets, copied independently
// and replaced outright (vector sources are not transform targets).
func (e *Engine) vectorMigration(ctx context.Context, p *photo.Photo) (*outcome, error) {
	out := &outcome{after: make(map[string]string)}

	comps, err := e.Deriver.Components(ctx, p.Fullsize)
	if err != nil {
		return nil, err
	}
	location, err := e.move(ctx, comps, e.Buckets.Transformed, comps.PublicID+"_migrated."+comps.Format, out)
	if err != nil {
		return nil, err
	}
	out.after[photo.FieldFullsize] = location

	var thumb photo.Field
	for _, f := range p.Variants() {
		if f.Name != photo.FieldFullsize {
			thumb = f
		}
	}
	thumbComps, err := e.Deriver.Components(ctx, thumb.Value)
	if err != nil {
		return nil, err
	}
	thumbLocation, err := e.move(ctx, thumbComps, e.Buckets.Transformed,
		thumbComps.PublicID+"_"+thumb.Name+"_migrated."+thumbComps.Format, out)
	if err != nil {
		return nil, err
	}
	out.after[thumb.Name] = thumbLocation

	return out, nil
}

// externalHostResolution handles records whose only reference is a
// third-party host URL. The destination path comes from the handle
// index; when the object is already in the bucket the move is skipped
// and the existing object reused.
func (e *Engine) externalHostResolution(ctx context.Context, p *photo.Photo, logger *zap.Logger) (*outcome, error) {
	out := &outcome{after: make(map[string]string)}

	handle := handleOf(p.URL)
	path, ok, err := e.Index.Lookup(handle)
	if err != nil {
		return nil, &Error{Kind: KindTransientIO, Err: err}
	}
	if !ok {
		return nil, ShapeViolation("handle %s is not in the handle index", handle)
	}

	exists, err := e.Store.Exists(ctx, e.Buckets.Filestack, path)
	if err != nil {
		return nil, &Error{Kind: KindTransientIO, Err: err}
	}

	var canonical string
	if exists {
		canonical = e.Store.PublicURL(e.Buckets.Filestack, path)
		// Reuse is not a move; keep it visibly distinct in the logs.
		logger.Info("destination object already present, reusing without move",
			zap.String("handle", handle),
			zap.String("path", path))
	} else {
		canonical, err = e.Mover.Move(ctx, p.URL, e.Buckets.Filestack, path, transform.Extension(path))
		if err != nil {
			return nil, &Error{Kind: KindTransientIO, Err: err}
		}
		out.moved = append(out.moved, photo.MovedFile{
			Source:           p.URL,
			Destination:      canonical,
			SourceFormat:     transform.Extension(path),
			SourceIdentifier: handle,
		})
	}

	out.after[photo.FieldURL] = canonical
	return out, nil
}

// primaryOnlyMigration handles records that carry only a CDN-hosted
// primary reference.
func (e *Engine) primaryOnlyMigration(ctx context.Context, p *photo.Photo) (*outcome, error) {
	out := &outcome{after: make(map[string]string)}

	comps, err := e.Deriver.Components(ctx, p.URL)
	if err != nil {
		return nil, err
	}
	location, err := e.move(ctx, comps, e.Buckets.Transformed, comps.PublicID+"_url_migrated."+comps.Format, out)
	if err != nil {
		return nil, err
	}
	out.after[photo.FieldURL] = location

	return out, nil
}

// move performs one object move and records its descriptor.
func (e *Engine) move(ctx context.Context, comps transform.Components, bucket, key string, out *outcome) (string, error) {
	location, err := e.Mover.Move(ctx, comps.DownloadURL, bucket, key, comps.Format)
	if err != nil {
		return "", &Error{Kind: KindTransientIO, Err: err}
	}
	out.moved = append(out.moved, photo.MovedFile{
		Source:           comps.DownloadURL,
		Destination:      location,
		SourceFormat:     comps.Format,
		SourceIdentifier: comps.PublicID,
	})
	return location, nil
}

func isPDF(url string) bool {
	return strings.HasSuffix(strings.ToLower(url), ".pdf")
}

// handleOf extracts the Filestack handle: the trailing path segment,
// with any delivery query parameters stripped.
func handleOf(rawURL string) string {
	handle := transform.FileName(rawURL)
	if i := strings.IndexByte(handle, '?'); i >= 0 {
		handle = handle[:i]
	}
	return handle
}
