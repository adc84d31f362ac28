package documents

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoRepository implements Repository on a Mongo collection with a unique
// index on "sub". The upsert is one FindOneAndUpdate, never a read followed
// by a conditional write, so concurrent saves for the same subject serialize
// inside the server.
type MongoRepository struct {
	col *mongo.Collection
}

func NewMongoRepository(col *mongo.Collection) *MongoRepository {
	idx := mongo.IndexModel{Keys: bson.D{{Key: "sub", Value: 1}}, Options: options.Index().SetUnique(true)}
	_, _ = col.Indexes().CreateOne(context.Background(), idx)
	return &MongoRepository{col: col}
}

func (r *MongoRepository) Upsert(ctx context.Context, sub string, payload []byte) error {
	now := time.Now().UTC()
	filter := bson.M{"sub": sub}
	update := bson.M{
		"$set":         bson.M{"payload": string(payload), "updatedAt": now},
		"$setOnInsert": bson.M{"createdAt": now},
	}
	opts := options.Update().SetUpsert(true)
	_, err := r.col.UpdateOne(ctx, filter, update, opts)
	return err
}

func (r *MongoRepository) GetBySub(ctx context.Context, sub string) (*Document, error) {
	var d Document
	if err := r.col.FindOne(ctx, bson.M{"sub": sub}).Decode(&d); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &d, nil
}
