// Package mongostore is the document-database ledger backend: one
// collection per resource, one document per ledger entry.
package mongostore

import (
	"context"
	"fmt"
	"log/slog"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"fintrack/internal/core"
	"fintrack/internal/log"
)

// Document fields owned by the store; record fields with these names are
// dropped on write.
const (
	fieldDocID    = "_id"
	fieldUserID   = "userId"
	fieldEntryKey = "entryKey"
)

// Store wraps a MongoDB database.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
	logger *slog.Logger
}

// New connects to MongoDB and verifies the connection.
func New(ctx context.Context, uri, dbName string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err = client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	logger.Info("Successfully connected to MongoDB", "database", dbName)
	return &Store{
		client: client,
		db:     client.Database(dbName),
		logger: logger,
	}, nil
}

// Close closes the database connection
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *Store) collection(resource string) *mongo.Collection {
	return s.db.Collection(resource)
}

// LoadLedger implements bucket.Backend.
func (s *Store) LoadLedger(ctx context.Context, resource, userID string) (core.Ledger, error) {
	cursor, err := s.collection(resource).Find(ctx, bson.M{fieldUserID: userID})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s entries: %w", resource, err)
	}
	defer cursor.Close(ctx)

	ledger := core.Ledger{}
	for cursor.Next(ctx) {
		var doc bson.M
		if err := cursor.Decode(&doc); err != nil {
			s.logger.WarnContext(ctx, "Skipping undecodable document", log.FieldResource, resource, log.FieldError, err)
			continue
		}
		key, rec, err := fromDocument(doc)
		if err != nil {
			s.logger.WarnContext(ctx, "Skipping malformed document",
				log.FieldResource, resource, log.FieldUserID, userID, log.FieldError, err)
			continue
		}
		ledger[key] = rec
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s entries: %w", resource, err)
	}
	return ledger, nil
}

// SaveLedger implements bucket.Backend: every entry is upserted, then the
// user's documents outside the saved key set are deleted.
func (s *Store) SaveLedger(ctx context.Context, resource, userID string, ledger core.Ledger) error {
	coll := s.collection(resource)
	keys := make([]string, 0, len(ledger))
	for key, rec := range ledger {
		opts := options.Replace().SetUpsert(true)
		_, err := coll.ReplaceOne(ctx, bson.M{fieldDocID: docID(userID, key)}, toDocument(userID, key, rec), opts)
		if err != nil {
			return fmt.Errorf("failed to upsert %s entry %s: %w", resource, key, err)
		}
		keys = append(keys, key)
	}

	res, err := coll.DeleteMany(ctx, bson.M{
		fieldUserID:   userID,
		fieldEntryKey: bson.M{"$nin": keys},
	})
	if err != nil {
		return fmt.Errorf("failed to prune %s entries: %w", resource, err)
	}
	if res.DeletedCount > 0 {
		s.logger.DebugContext(ctx, "Pruned ledger documents",
			log.FieldResource, resource, log.FieldUserID, userID, "deleted", res.DeletedCount)
	}
	return nil
}

// ListUsers implements bucket.Backend.
func (s *Store) ListUsers(ctx context.Context, resource string) ([]string, error) {
	values, err := s.collection(resource).Distinct(ctx, fieldUserID, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("failed to list %s users: %w", resource, err)
	}
	users := make([]string, 0, len(values))
	for _, v := range values {
		if u, ok := v.(string); ok && u != "" {
			users = append(users, u)
		}
	}
	return users, nil
}

// EnsureIndexes creates the per-user index on every resource collection.
func (s *Store) EnsureIndexes(ctx context.Context, resources []string) error {
	for _, r := range resources {
		_, err := s.collection(r).Indexes().CreateOne(ctx, mongo.IndexModel{
			Keys: bson.D{{Key: fieldUserID, Value: 1}, {Key: fieldEntryKey, Value: -1}},
		})
		if err != nil {
			return fmt.Errorf("failed to index %s: %w", r, err)
		}
	}
	return nil
}
