package database

import (
	"context"
	"errors"
	"time"

	"github.com/Madhav-Gupta-28/dropkart-backend-go/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// FeeRepository owns the two singleton pricing documents: the driver
// convenience fee and the checkout shipping rule.
type FeeRepository struct {
	conveniences *mongo.Collection
	shippings    *mongo.Collection
	now          func() time.Time
}

func NewFeeRepository(db *mongo.Database) *FeeRepository {
	return &FeeRepository{
		conveniences: db.Collection(conveniencesCollection),
		shippings:    db.Collection(shippingsCollection),
		now:          time.Now,
	}
}

// BaseDriverFare reads the convenience singleton, creating it with the
// default fare the first time it is needed.
func (r *FeeRepository) BaseDriverFare(ctx context.Context) (float64, error) {
	now := r.now()
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var fee models.Convenience
	err := r.conveniences.FindOneAndUpdate(ctx, bson.M{},
		bson.M{"$setOnInsert": bson.M{
			"baseDriverFare": models.DefaultBaseDriverFare,
			"perKmRate":      0,
			"createdAt":      now,
			"updatedAt":      now,
		}}, opts).Decode(&fee)
	if err != nil {
		return 0, err
	}
	return fee.BaseDriverFare, nil
}

func (r *FeeRepository) UpdateConvenience(ctx context.Context, baseFare, perKm float64, adminID primitive.ObjectID) (*models.Convenience, error) {
	now := r.now()
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var fee models.Convenience
	err := r.conveniences.FindOneAndUpdate(ctx, bson.M{},
		bson.M{
			"$set": bson.M{
				"baseDriverFare": baseFare,
				"perKmRate":      perKm,
				"lastUpdatedBy":  adminID,
				"updatedAt":      now,
			},
			"$setOnInsert": bson.M{"createdAt": now},
		}, opts).Decode(&fee)
	if err != nil {
		return nil, err
	}
	return &fee, nil
}

// Shipping returns the shipping rule, or a free-shipping rule when none has
// been configured.
func (r *FeeRepository) Shipping(ctx context.Context) (*models.Shipping, error) {
	var rule models.Shipping
	err := r.shippings.FindOne(ctx, bson.M{}).Decode(&rule)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return &models.Shipping{}, nil
	}
	if err != nil {
		return nil, err
	}
	return &rule, nil
}

func (r *FeeRepository) UpdateShipping(ctx context.Context, charge, freeAbove float64) (*models.Shipping, error) {
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var rule models.Shipping
	err := r.shippings.FindOneAndUpdate(ctx, bson.M{},
		bson.M{"$set": bson.M{
			"shippingCharge":    charge,
			"freeShippingAbove": freeAbove,
			"updatedAt":         r.now(),
		}}, opts).Decode(&rule)
	if err != nil {
		return nil, err
	}
	return &rule, nil
}
