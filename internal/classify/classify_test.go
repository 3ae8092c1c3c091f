package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"photomigrate/internal/photo"
)

const (
	upload = "https://res.cloudinary.com/demo/image/upload/v100/abc123.jpg"
	fetch  = "https://res.cloudinary.com/demo/image/fetch/w_500,h_500,c_fill/abc123.jpg"
)

func fullPhoto() *photo.Photo {
	return &photo.Photo{
		ID:               "p1",
		URL:              upload,
		Fullsize:         "https://res.cloudinary.com/demo/image/upload/w_1000/v100/abc123.jpg",
		PrintVersion:     "https://res.cloudinary.com/demo/image/upload/v100/abc123.jpg",
		BigThumb:         "https://res.cloudinary.com/demo/image/upload/w_500/v100/abc123.jpg",
		MediumThumb:      "https://res.cloudinary.com/demo/image/upload/w_300/v100/abc123.jpg",
		SmallThumb:       "https://res.cloudinary.com/demo/image/upload/w_150/v100/abc123.jpg",
		PreviewThumbnail: "https://res.cloudinary.com/demo/image/upload/w_50/v100/abc123.jpg",
	}
}

func TestClassifyFullMigration(t *testing.T) {
	res := Classify(fullPhoto())
	assert.Equal(t, FullMigration, res.Kind)
	assert.Empty(t, res.Reason)
}

func TestClassifyEmptyRecord(t *testing.T) {
	res := Classify(&photo.Photo{ID: "p1"})
	assert.Equal(t, Invalid, res.Kind)
	assert.Contains(t, res.Reason, "no reference fields")
}

func TestClassifyAlreadyMigrated(t *testing.T) {
	p := &photo.Photo{
		ID:          "p1",
		URL:         "https://photos-migrated.s3.us-west-2.amazonaws.com/abc123_migrated.jpg",
		Fullsize:    "https://res.cloudinary.com/demo/image/fetch/w_1000/f_jpg/https://photos-migrated.s3.us-west-2.amazonaws.com/abc123_migrated.jpg",
		MediumThumb: "https://res.cloudinary.com/demo/image/fetch/w_300/f_jpg/https://photos-migrated.s3.us-west-2.amazonaws.com/abc123_migrated.jpg",
	}
	assert.Equal(t, SkipAlreadyMigrated, Classify(p).Kind)
}

func TestClassifyAllowedUploadPrimaryWithFetchVariants(t *testing.T) {
	p := &photo.Photo{
		ID:       "p1",
		URL:      "https://res.cloudinary.com/demo/image/upload/v1/assets/frame.jpg",
		Fullsize: "https://res.cloudinary.com/demo/image/fetch/w_1000/f_jpg/https://photos-migrated.s3.us-west-2.amazonaws.com/frame.jpg",
	}
	assert.Equal(t, SkipAlreadyMigrated, Classify(p).Kind)
}

func TestClassifyNotMigratedWhileVariantsAreUploads(t *testing.T) {
	p := fullPhoto()
	p.URL = "https://res.cloudinary.com/demo/image/upload/v1/assets/frame.jpg"
	res := Classify(p)
	assert.NotEqual(t, SkipAlreadyMigrated, res.Kind)
}

func TestClassifyDoubleUploadMarkerInvalid(t *testing.T) {
	p := fullPhoto()
	p.BigThumb = "https://res.cloudinary.com/demo/image/upload/v100/upload/abc123.jpg"
	res := Classify(p)
	assert.Equal(t, Invalid, res.Kind)
	assert.Contains(t, res.Reason, "bigThumb")
	assert.Contains(t, res.Reason, "upload markers")
}

func TestClassifyFetchWithUploadMarkerInvalid(t *testing.T) {
	p := &photo.Photo{
		ID:       "p1",
		URL:      upload,
		Fullsize: "https://res.cloudinary.com/demo/image/fetch/w_100/upload/abc123.jpg",
	}
	res := Classify(p)
	assert.Equal(t, Invalid, res.Kind)
	assert.Contains(t, res.Reason, "fetch-style")
}

func TestClassifyUnrecognizedFieldInvalid(t *testing.T) {
	p := fullPhoto()
	p.SmallThumb = "https://example.com/some/random/image.jpg"
	res := Classify(p)
	assert.Equal(t, Invalid, res.Kind)
	assert.Contains(t, res.Reason, "smallThumb")
}

func TestClassifyFilenameMismatchInvalid(t *testing.T) {
	p := fullPhoto()
	p.MediumThumb = "https://res.cloudinary.com/demo/image/upload/w_300/v100/other456.jpg"
	res := Classify(p)
	assert.Equal(t, Invalid, res.Kind)
	assert.Contains(t, res.Reason, "mediumThumb")
}

func TestClassifyPDFPrintVersionExemptFromFilenameCheck(t *testing.T) {
	p := fullPhoto()
	p.PrintVersion = "https://res.cloudinary.com/demo/image/upload/v100/print-order-999.pdf"
	assert.Equal(t, FullMigration, Classify(p).Kind)
}

func TestClassifyVector(t *testing.T) {
	p := &photo.Photo{
		ID:          "p1",
		Fullsize:    "https://res.cloudinary.com/demo/image/upload/v100/vec789.svg",
		MediumThumb: "https://res.cloudinary.com/demo/image/upload/w_300/v100/vec789.svg",
	}
	assert.Equal(t, VectorMigration, Classify(p).Kind)
}

func TestClassifyVectorWithTwoThumbsInvalid(t *testing.T) {
	p := &photo.Photo{
		ID:          "p1",
		Fullsize:    "https://res.cloudinary.com/demo/image/upload/v100/vec789.svg",
		MediumThumb: "https://res.cloudinary.com/demo/image/upload/w_300/v100/vec789.svg",
		SmallThumb:  "https://res.cloudinary.com/demo/image/upload/w_150/v100/vec789.svg",
	}
	res := Classify(p)
	assert.Equal(t, Invalid, res.Kind)
	assert.Contains(t, res.Reason, "thumbnails")
}

func TestClassifyExternalHost(t *testing.T) {
	p := &photo.Photo{ID: "p1", URL: "https://cdn.filestackcontent.com/AbCdEf123"}
	assert.Equal(t, ExternalHostResolution, Classify(p).Kind)

	p.URL = "https://www.filestackcontent.com/AbCdEf123"
	assert.Equal(t, ExternalHostResolution, Classify(p).Kind)
}

func TestClassifyPrimaryOnly(t *testing.T) {
	p := &photo.Photo{ID: "p1", URL: upload}
	assert.Equal(t, PrimaryOnlyMigration, Classify(p).Kind)
}

func TestClassifyLonePrimaryUnknownHostInvalid(t *testing.T) {
	p := &photo.Photo{ID: "p1", URL: "https://example.com/photo.jpg"}
	res := Classify(p)
	assert.Equal(t, Invalid, res.Kind)
	assert.Contains(t, res.Reason, "url")
}

func TestClassifyLoneObjectStorePrimarySkipped(t *testing.T) {
	tests := []string{
		"https://photos-transformed.s3.us-west-2.amazonaws.com/abc123_url_migrated.jpg",
		"https://photos-filestack.s3.amazonaws.com/uploads/2019/AbCdEf123.jpg",
	}
	for _, url := range tests {
		p := &photo.Photo{ID: "p1", URL: url}
		assert.Equal(t, SkipAlreadyMigrated, Classify(p).Kind, url)
	}
}

func TestClassifyFullShapeRequiresUploadVariants(t *testing.T) {
	p := fullPhoto()
	p.MediumThumb = "https://res.cloudinary.com/demo/image/fetch/w_300/abc123.jpg"
	res := Classify(p)
	assert.Equal(t, Invalid, res.Kind)
	assert.Contains(t, res.Reason, "mediumThumb")
}

func TestClassifyUnmigratedPrimaryWithFetchVariantsInvalid(t *testing.T) {
	p := fullPhoto()
	p.Fullsize = "https://res.cloudinary.com/demo/image/fetch/w_1000/abc123.jpg"
	p.PrintVersion = "https://res.cloudinary.com/demo/image/fetch/w_800/abc123.jpg"
	p.BigThumb = "https://res.cloudinary.com/demo/image/fetch/w_500/abc123.jpg"
	p.MediumThumb = "https://res.cloudinary.com/demo/image/fetch/w_300/abc123.jpg"
	p.SmallThumb = "https://res.cloudinary.com/demo/image/fetch/w_150/abc123.jpg"
	p.PreviewThumbnail = "https://res.cloudinary.com/demo/image/fetch/w_50/abc123.jpg"

	res := Classify(p)
	assert.Equal(t, Invalid, res.Kind)
}

func TestClassifyUnexpectedCombinationInvalid(t *testing.T) {
	p := &photo.Photo{
		ID:         "p1",
		URL:        upload,
		SmallThumb: "https://res.cloudinary.com/demo/image/upload/w_150/v100/abc123.jpg",
	}
	res := Classify(p)
	assert.Equal(t, Invalid, res.Kind)
	assert.Contains(t, res.Reason, "field combination")
}

func TestIsAllowedUploadPath(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"https://res.cloudinary.com/demo/image/upload/v1/assets/frame.jpg", true},
		{"https://res.cloudinary.com/demo/image/upload/v1/fonts/serif.png", true},
		{"https://res.cloudinary.com/demo/image/upload/placeholder_500x500_ab12cd.png", true},
		{"https://res.cloudinary.com/demo/image/upload/v100/abc123.jpg", false},
		{"https://res.cloudinary.com/demo/image/upload/v1/customer/abc123.jpg", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsAllowedUploadPath(tt.url), tt.url)
	}
}

func TestUploadAndFetchDetection(t *testing.T) {
	assert.True(t, IsUploadStyle(upload))
	assert.True(t, IsUploadStyle("https://res.cloudinary.com/demo/image/private/v1/abc.jpg"))
	assert.False(t, IsUploadStyle(fetch))
	assert.True(t, IsFetchStyle(fetch))
	assert.False(t, IsFetchStyle(upload))
}
