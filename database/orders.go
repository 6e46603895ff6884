package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Madhav-Gupta-28/dropkart-backend-go/delivery"
	"github.com/Madhav-Gupta-28/dropkart-backend-go/models"
	"github.com/Madhav-Gupta-28/dropkart-backend-go/utils"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type OrderRepository struct {
	coll *mongo.Collection
	now  func() time.Time
}

func NewOrderRepository(db *mongo.Database) *OrderRepository {
	return &OrderRepository{coll: db.Collection(ordersCollection), now: time.Now}
}

func (r *OrderRepository) Insert(ctx context.Context, o *models.Order) error {
	if o.ID.IsZero() {
		o.ID = primitive.NewObjectID()
	}
	now := r.now()
	o.CreatedAt = now
	o.UpdatedAt = now

	if _, err := r.coll.InsertOne(ctx, o); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return utils.NewConflictError(utils.CodeDuplicate, "Order id already exists")
		}
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (r *OrderRepository) FindByOrderID(ctx context.Context, orderID string) (*models.Order, error) {
	var order models.Order
	err := r.coll.FindOne(ctx, bson.M{"orderId": orderID}).Decode(&order)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// UpdateIf is the single conditional write behind every order transition.
func (r *OrderRepository) UpdateIf(ctx context.Context, cond delivery.OrderCondition, patch delivery.OrderPatch) (*models.Order, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var order models.Order
	err := r.coll.FindOneAndUpdate(ctx, conditionFilter(cond), patchUpdate(patch, r.now()), opts).Decode(&order)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *OrderRepository) ListForDriver(ctx context.Context, driverID primitive.ObjectID, statuses []models.OrderStatus, sortBy models.Milestone) ([]models.Order, error) {
	filter := bson.M{"assignedDriverId": driverID}
	if len(statuses) > 0 {
		filter["status"] = bson.M{"$in": statuses}
	}
	opts := options.Find().SetSort(bson.D{{Key: string(sortBy), Value: -1}})
	return r.find(ctx, filter, opts)
}

func (r *OrderRepository) ListForCustomer(ctx context.Context, customerID primitive.ObjectID, status models.OrderStatus) ([]models.Order, error) {
	filter := bson.M{"userId": customerID}
	if status != "" {
		filter["status"] = status
	}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	return r.find(ctx, filter, opts)
}

// ListByStatus feeds the admin dispatch board.
func (r *OrderRepository) ListByStatus(ctx context.Context, status models.OrderStatus, limit int) ([]models.Order, error) {
	filter := bson.M{}
	if status != "" {
		filter["status"] = status
	}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return r.find(ctx, filter, opts)
}

func (r *OrderRepository) ListUnsettled(ctx context.Context, maxAttempts, limit int) ([]models.Order, error) {
	filter := bson.M{
		"status":           models.OrderStatusDelivered,
		"payout":           bson.M{"$exists": true},
		"payout.settledAt": nil,
	}
	if maxAttempts > 0 {
		// $not also matches payouts that never failed and carry no counter.
		filter["payout.settleAttempts"] = bson.M{"$not": bson.M{"$gte": maxAttempts}}
	}
	opts := options.Find().SetSort(bson.D{
		{Key: "payout.settleAttempts", Value: 1},
		{Key: "deliveredAt", Value: 1},
	})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return r.find(ctx, filter, opts)
}

func (r *OrderRepository) MarkSettled(ctx context.Context, orderID string, at time.Time) error {
	_, err := r.coll.UpdateOne(ctx,
		bson.M{"orderId": orderID, "payout": bson.M{"$exists": true}, "payout.settledAt": nil},
		bson.M{"$set": bson.M{"payout.settledAt": at, "updatedAt": at}},
	)
	return err
}

func (r *OrderRepository) RecordSettleFailure(ctx context.Context, orderID, reason string, at time.Time) error {
	_, err := r.coll.UpdateOne(ctx,
		bson.M{"orderId": orderID, "payout": bson.M{"$exists": true}, "payout.settledAt": nil},
		bson.M{
			"$inc": bson.M{"payout.settleAttempts": 1},
			"$set": bson.M{"payout.lastError": reason, "updatedAt": at},
		})
	return err
}

func (r *OrderRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]models.Order, error) {
	cursor, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	orders := []models.Order{}
	if err := cursor.All(ctx, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func conditionFilter(cond delivery.OrderCondition) bson.M {
	filter := bson.M{
		"orderId": cond.OrderID,
		"status":  cond.Status,
	}
	if !cond.DriverID.IsZero() {
		filter["assignedDriverId"] = cond.DriverID
	}
	if !cond.CustomerID.IsZero() {
		filter["userId"] = cond.CustomerID
	}
	if cond.OTPHash != "" {
		filter["deliveryOTP"] = cond.OTPHash
	}
	if cond.MaxAttempts > 0 {
		filter["otpAttempts"] = bson.M{"$lt": cond.MaxAttempts}
	}
	if !cond.NotExpiredAt.IsZero() {
		filter["otpExpiresAt"] = bson.M{"$gt": cond.NotExpiredAt}
	}
	return filter
}

func patchUpdate(p delivery.OrderPatch, now time.Time) bson.M {
	set := bson.M{}
	unset := bson.M{}
	inc := bson.M{}

	if p.Status != "" {
		set["status"] = p.Status
	}
	if p.Milestone != "" {
		set[string(p.Milestone)] = p.At
	}
	if p.DriverID != nil {
		set["assignedDriverId"] = *p.DriverID
	}
	if p.ClearDriver {
		unset["assignedDriverId"] = ""
	}
	if p.OTPHash != "" {
		set["deliveryOTP"] = p.OTPHash
		set["otpExpiresAt"] = p.OTPExpires
		set["otpAttempts"] = 0
	}
	if p.ClearOTP {
		unset["deliveryOTP"] = ""
		unset["otpExpiresAt"] = ""
	}
	if p.IncAttempts {
		inc["otpAttempts"] = 1
	}
	if p.Payout != nil {
		set["payout"] = bson.M{"amount": p.Payout.Amount, "settledAt": nil}
	}

	if p.At.IsZero() {
		set["updatedAt"] = now
	} else {
		set["updatedAt"] = p.At
	}

	update := bson.M{"$set": set}
	if len(unset) > 0 {
		update["$unset"] = unset
	}
	if len(inc) > 0 {
		update["$inc"] = inc
	}
	return update
}
