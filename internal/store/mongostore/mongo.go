// Package mongostore implements the DocumentStore capability on MongoDB.
// It backs the archival, orphan sweep, and tracking analytics jobs.
package mongostore

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/trackfleet/logistics-core/internal/store"
)

type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// Connect dials the document store and verifies connectivity.
func Connect(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return &Store{client: client, db: client.Database(database)}, nil
}

func (s *Store) InsertMany(ctx context.Context, collection string, docs []store.Document) error {
	if len(docs) == 0 {
		return nil
	}
	payload := make([]any, len(docs))
	for i, d := range docs {
		payload[i] = d
	}
	if _, err := s.db.Collection(collection).InsertMany(ctx, payload); err != nil {
		return fmt.Errorf("insert into %s: %w", collection, err)
	}
	return nil
}

func (s *Store) FindOlderThan(ctx context.Context, collection, field string, cutoff time.Time, limit int) ([]store.Document, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: field, Value: 1}}).
		SetLimit(int64(limit))
	cur, err := s.db.Collection(collection).Find(ctx, bson.M{field: bson.M{"$lt": cutoff}}, opts)
	if err != nil {
		return nil, fmt.Errorf("find in %s: %w", collection, err)
	}
	defer cur.Close(ctx)

	var out []store.Document
	for cur.Next(ctx) {
		var doc store.Document
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode %s document: %w", collection, err)
		}
		out = append(out, doc)
	}
	return out, cur.Err()
}

func (s *Store) DeleteByIDs(ctx context.Context, collection string, ids []any) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := s.db.Collection(collection).DeleteMany(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return 0, fmt.Errorf("delete from %s: %w", collection, err)
	}
	return res.DeletedCount, nil
}

func (s *Store) Count(ctx context.Context, collection string) (int64, error) {
	n, err := s.db.Collection(collection).EstimatedDocumentCount(ctx)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", collection, err)
	}
	return n, nil
}

func (s *Store) Aggregate(ctx context.Context, collection string, pipeline []map[string]any) ([]store.Document, error) {
	stages := make(mongo.Pipeline, 0, len(pipeline))
	for _, stage := range pipeline {
		d := bson.D{}
		for k, v := range stage {
			d = append(d, bson.E{Key: k, Value: v})
		}
		stages = append(stages, d)
	}
	cur, err := s.db.Collection(collection).Aggregate(ctx, stages)
	if err != nil {
		return nil, fmt.Errorf("aggregate %s: %w", collection, err)
	}
	defer cur.Close(ctx)

	var out []store.Document
	for cur.Next(ctx) {
		var doc store.Document
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode %s aggregate row: %w", collection, err)
		}
		out = append(out, doc)
	}
	return out, cur.Err()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
