package sessions

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Repository stores refresh sessions. Lookups key on the refresh token;
// the per-user operations back the session-management endpoints.
type Repository interface {
	Create(ctx context.Context, s *Session) error
	GetByRefresh(ctx context.Context, refresh string) (*Session, error)
	DeleteByRefresh(ctx context.Context, refresh string) error
	ListByUser(ctx context.Context, userID string) ([]*Session, error)
	// DeleteByID removes one of the user's sessions, reporting whether it
	// existed.
	DeleteByID(ctx context.Context, userID, sessionID string) (bool, error)
	// DeleteByUser removes all of the user's sessions except the one bound
	// to exceptJTI, returning how many were removed.
	DeleteByUser(ctx context.Context, userID, exceptJTI string) (int, error)
}

// MongoRepository keeps sessions in a Mongo collection, one document per
// refresh token.
type MongoRepository struct {
	col *mongo.Collection
}

func NewMongoRepository(col *mongo.Collection) *MongoRepository {
	return &MongoRepository{col: col}
}

func (r *MongoRepository) Create(ctx context.Context, s *Session) error {
	now := time.Now().UTC()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	if s.ExpiresAt.IsZero() {
		s.ExpiresAt = now.Add(7 * 24 * time.Hour)
	}
	_, err := r.col.InsertOne(ctx, s)
	return err
}

func (r *MongoRepository) GetByRefresh(ctx context.Context, refresh string) (*Session, error) {
	var s Session
	if err := r.col.FindOne(ctx, bson.M{"refreshToken": refresh}).Decode(&s); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

func (r *MongoRepository) DeleteByRefresh(ctx context.Context, refresh string) error {
	_, err := r.col.DeleteOne(ctx, bson.M{"refreshToken": refresh})
	return err
}

func (r *MongoRepository) ListByUser(ctx context.Context, userID string) ([]*Session, error) {
	filter := bson.M{
		"userId":    userID,
		"expiresAt": bson.M{"$gt": time.Now().UTC()},
	}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	cur, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []*Session
	for cur.Next(ctx) {
		var s Session
		if err := cur.Decode(&s); err != nil {
			return nil, err
		}
		out = append(out, &s)
	}
	return out, cur.Err()
}

func (r *MongoRepository) DeleteByID(ctx context.Context, userID, sessionID string) (bool, error) {
	res, err := r.col.DeleteOne(ctx, bson.M{"_id": sessionID, "userId": userID})
	if err != nil {
		return false, err
	}
	return res.DeletedCount > 0, nil
}

func (r *MongoRepository) DeleteByUser(ctx context.Context, userID, exceptJTI string) (int, error) {
	filter := bson.M{"userId": userID}
	if exceptJTI != "" {
		filter["accessJti"] = bson.M{"$ne": exceptJTI}
	}
	res, err := r.col.DeleteMany(ctx, filter)
	if err != nil {
		return 0, err
	}
	return int(res.DeletedCount), nil
}
