package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/lorekeep/lorekeep/internal/document"
)

// MongoRepo implements a MongoDB-backed document repository. Documents keep
// a string "id" field so API ids stay independent of Mongo ObjectIDs.
type MongoRepo struct {
	col *mongo.Collection
}

func NewMongoRepo(col *mongo.Collection) *MongoRepo {
	// unique lookup index plus a tenant index for list queries
	col.Indexes().CreateOne(context.Background(), mongo.IndexModel{
		Keys: bson.D{{Key: "id", Value: 1}}, Options: options.Index().SetUnique(true),
	})
	col.Indexes().CreateOne(context.Background(), mongo.IndexModel{
		Keys: bson.D{{Key: "tenantId", Value: 1}},
	})
	return &MongoRepo{col: col}
}

func (m *MongoRepo) Create(doc *document.Document) (string, error) {
	now := time.Now().UTC()
	doc.CreatedAt = now
	doc.UpdatedAt = now
	if _, err := m.col.InsertOne(context.Background(), doc); err != nil {
		return "", err
	}
	return doc.ID, nil
}

func (m *MongoRepo) Get(tenantID, id string) (*document.Document, error) {
	var d document.Document
	err := m.col.FindOne(context.Background(), bson.M{"id": id, "tenantId": tenantID}).Decode(&d)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &d, nil
}

func (m *MongoRepo) List(tenantID string) ([]*document.Document, error) {
	cur, err := m.col.Find(context.Background(), bson.M{"tenantId": tenantID})
	if err != nil {
		return nil, err
	}
	defer cur.Close(context.Background())
	out := []*document.Document{}
	for cur.Next(context.Background()) {
		var d document.Document
		if err := cur.Decode(&d); err != nil {
			return nil, err
		}
		out = append(out, &d)
	}
	return out, nil
}

func (m *MongoRepo) Update(tenantID, id string, u document.Update) error {
	set := bson.M{"updatedAt": time.Now().UTC()}
	if u.Title != nil {
		set["title"] = *u.Title
	}
	if u.Content != nil {
		set["content"] = *u.Content
	}
	if u.Tags != nil {
		set["tags"] = *u.Tags
	}
	res, err := m.col.UpdateOne(context.Background(), bson.M{"id": id, "tenantId": tenantID}, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *MongoRepo) Delete(tenantID, id string) error {
	res, err := m.col.DeleteOne(context.Background(), bson.M{"id": id, "tenantId": tenantID})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}
