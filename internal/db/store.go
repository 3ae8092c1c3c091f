// Package db holds the document-database access layer: the per-date
// photo query, the partial field update, and the append-only migration
// log.
package db

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"photomigrate/internal/photo"
)

const (
	photoCollection = "Photo"
	logCollection   = "PhotoMigrationLog"
)

// uploadStyle matches references still pointing at CDN-hosted originals.
// The print-ready field may also use the private delivery type.
var (
	uploadStyle        = primitive.Regex{Pattern: `res.cloudinary.com.*/upload/`}
	uploadPrivateStyle = primitive.Regex{Pattern: `res.cloudinary.com.*/(upload|private)/`}

	// Third-party hosted primaries are part of the sweep too; they
	// resolve through the handle index instead of a CDN download.
	externalHostStyle = primitive.Regex{Pattern: `(cdn|www).filestackcontent.com/`}
)

// Store wraps one Mongo connection. Connections are scoped per job
// invocation: dialed by the runner, closed on every exit path.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
	logger *zap.Logger
}

// Connect dials the document database.
func Connect(ctx context.Context, uri, database string, logger *zap.Logger) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	return &Store{
		client: client,
		db:     client.Database(database),
		logger: logger,
	}, nil
}

// Close releases the connection.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// PhotosForDate returns up to limit photos created on the given calendar
// day that still carry at least one upload-style reference, projected to
// the reference field set.
func (s *Store) PhotosForDate(ctx context.Context, date time.Time, limit int64) ([]photo.Photo, error) {
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	next := day.Add(24 * time.Hour)

	filter := bson.M{
		"_created_at": bson.M{"$gte": day, "$lt": next},
		"$or": bson.A{
			bson.M{photo.FieldURL: uploadStyle},
			bson.M{photo.FieldURL: externalHostStyle},
			bson.M{photo.FieldFullsize: uploadStyle},
			bson.M{photo.FieldPrintVersion: uploadPrivateStyle},
			bson.M{photo.FieldBigThumb: uploadStyle},
			bson.M{photo.FieldMediumThumb: uploadStyle},
			bson.M{photo.FieldSmallThumb: uploadStyle},
			bson.M{photo.FieldPreviewThumbnail: uploadStyle},
		},
	}

	projection := bson.M{"_id": 1, "_created_at": 1}
	for _, name := range photo.ReferenceFields {
		projection[name] = 1
	}

	cursor, err := s.db.Collection(photoCollection).Find(ctx, filter,
		options.Find().SetProjection(projection).SetLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query photos: %w", err)
	}
	defer cursor.Close(ctx)

	var photos []photo.Photo
	if err := cursor.All(ctx, &photos); err != nil {
		return nil, fmt.Errorf("decode photos: %w", err)
	}

	return photos, nil
}

// UpdatePhoto overwrites only the rewritten reference fields of one
// document. Anything other than exactly one modified document is an
// error.
func (s *Store) UpdatePhoto(ctx context.Context, id string, after map[string]string) error {
	set := bson.M{}
	for field, value := range after {
		set[field] = value
	}

	res, err := s.db.Collection(photoCollection).UpdateOne(ctx,
		bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("update photo %s: %w", id, err)
	}
	if res.ModifiedCount != 1 {
		return fmt.Errorf("update photo %s: modified %d documents, expected 1", id, res.ModifiedCount)
	}

	return nil
}

// Append writes one immutable audit entry. Entries are never updated or
// deleted.
func (s *Store) Append(ctx context.Context, entry *photo.LogEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	res, err := s.db.Collection(logCollection).InsertOne(ctx, entry)
	if err != nil {
		return fmt.Errorf("append migration log for photo %s: %w", entry.PhotoID, err)
	}
	if res.InsertedID == nil {
		return fmt.Errorf("append migration log for photo %s: no inserted id", entry.PhotoID)
	}

	return nil
}
