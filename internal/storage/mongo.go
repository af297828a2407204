package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"cve-crawler/pkg/models"
)

// bulkWriter is the part of *mongo.Collection MongoStore uses.
type bulkWriter interface {
	BulkWrite(ctx context.Context, writes []mongo.WriteModel, opts ...*options.BulkWriteOptions) (*mongo.BulkWriteResult, error)
}

type MongoStore struct {
	client     *mongo.Client
	collection bulkWriter
}

func NewMongoStore(ctx context.Context, uri, database, collection string) (*MongoStore, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	// Connect does not dial; Ping forces server selection.
	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	return &MongoStore{
		client:     client,
		collection: client.Database(database).Collection(collection),
	}, nil
}

func (ms *MongoStore) BulkUpsert(ctx context.Context, records []models.VulnerabilityRecord) error {
	if len(records) == 0 {
		return nil
	}

	writes := make([]mongo.WriteModel, 0, len(records))
	for _, rec := range records {
		writes = append(writes, upsertModel(rec))
	}

	_, err := ms.collection.BulkWrite(ctx, writes, options.BulkWrite().SetOrdered(false))
	if err == nil {
		return nil
	}

	var bwe mongo.BulkWriteException
	if errors.As(err, &bwe) && len(bwe.WriteErrors) > 0 {
		failed := make([]string, 0, len(bwe.WriteErrors))
		for _, we := range bwe.WriteErrors {
			if we.Index >= 0 && we.Index < len(records) {
				failed = append(failed, records[we.Index].ID)
			}
		}
		return fmt.Errorf("bulk upsert: %d of %d failed (%s): %w",
			len(bwe.WriteErrors), len(records), strings.Join(failed, ", "), err)
	}
	return fmt.Errorf("bulk upsert: %w", err)
}

func (ms *MongoStore) Close(ctx context.Context) error {
	if ms.client == nil {
		return nil
	}
	return ms.client.Disconnect(ctx)
}

// upsertModel replaces the whole document for rec.ID, inserting it when absent.
func upsertModel(rec models.VulnerabilityRecord) mongo.WriteModel {
	return mongo.NewReplaceOneModel().
		SetFilter(bson.M{"_id": rec.ID}).
		SetReplacement(rec).
		SetUpsert(true)
}
