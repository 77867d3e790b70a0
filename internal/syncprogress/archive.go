package syncprogress

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/lorekeep/lorekeep/internal/database"
)

const archiveCollection = "sync_history"

// SaveArchive persists (upsert) a finished sync snapshot. If mongoURI is
// empty the function is a no-op, which keeps the tracker usable without a
// database in tests and local runs.
func SaveArchive(ctx context.Context, mongoURI, databaseName string, p *Progress) error {
	if mongoURI == "" {
		return nil
	}
	client, err := database.ConnectMongo(ctx, mongoURI, 5*time.Second)
	if err != nil {
		return fmt.Errorf("connect mongo: %w", err)
	}
	defer client.Disconnect(ctx)

	col := client.Database(databaseName).Collection(archiveCollection)
	filter := bson.M{"syncId": p.SyncID}
	opts := options.Update().SetUpsert(true)
	if _, err := col.UpdateOne(ctx, filter, bson.M{"$set": p}, opts); err != nil {
		return fmt.Errorf("save sync history: %w", err)
	}
	return nil
}

// LoadArchive fetches an archived sync snapshot by id. Returns nil when not
// found or when mongoURI is empty.
func LoadArchive(ctx context.Context, mongoURI, databaseName, syncID string) (*Progress, error) {
	if mongoURI == "" {
		return nil, nil
	}
	client, err := database.ConnectMongo(ctx, mongoURI, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	defer client.Disconnect(ctx)

	col := client.Database(databaseName).Collection(archiveCollection)
	var p Progress
	if err := col.FindOne(ctx, bson.M{"syncId": syncID}).Decode(&p); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}
