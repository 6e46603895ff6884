package database

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Sequence hands out human-readable order ids from a counter document, so
// every instance draws from the same sequence.
type Sequence struct {
	coll *mongo.Collection
}

func NewSequence(db *mongo.Database) *Sequence {
	return &Sequence{coll: db.Collection(countersCollection)}
}

func (s *Sequence) NextOrderID(ctx context.Context) (string, error) {
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var counter struct {
		Seq int64 `bson:"seq"`
	}
	err := s.coll.FindOneAndUpdate(ctx,
		bson.M{"_id": "orderId"},
		bson.M{"$inc": bson.M{"seq": 1}},
		opts).Decode(&counter)
	if err != nil {
		return "", fmt.Errorf("next order id: %w", err)
	}
	return fmt.Sprintf("ORD%06d", counter.Seq), nil
}
