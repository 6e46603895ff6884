package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Madhav-Gupta-28/dropkart-backend-go/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type ProductRepository struct {
	coll *mongo.Collection
	now  func() time.Time
}

func NewProductRepository(db *mongo.Database) *ProductRepository {
	return &ProductRepository{coll: db.Collection(productsCollection), now: time.Now}
}

func (r *ProductRepository) List(ctx context.Context, category string) ([]models.Product, error) {
	filter := bson.M{}
	if category != "" {
		filter["category"] = category
	}

	cursor, err := r.coll.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	products := []models.Product{}
	if err := cursor.All(ctx, &products); err != nil {
		return nil, err
	}
	return products, nil
}

func (r *ProductRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Product, error) {
	var product models.Product
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&product)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *ProductRepository) Create(ctx context.Context, p *models.Product) error {
	if p.ID.IsZero() {
		p.ID = primitive.NewObjectID()
	}
	now := r.now()
	p.CreatedAt = now
	p.UpdatedAt = now

	if _, err := r.coll.InsertOne(ctx, p); err != nil {
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

// TakeStock decrements stock by qty only if enough is left.
func (r *ProductRepository) TakeStock(ctx context.Context, id primitive.ObjectID, qty int) (bool, error) {
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": id, "stock": bson.M{"$gte": qty}},
		bson.M{"$inc": bson.M{"stock": -qty}, "$set": bson.M{"updatedAt": r.now()}})
	if err != nil {
		return false, err
	}
	return res.ModifiedCount == 1, nil
}

func (r *ProductRepository) ReturnStock(ctx context.Context, id primitive.ObjectID, qty int) error {
	_, err := r.coll.UpdateOne(ctx, bson.M{"_id": id},
		bson.M{"$inc": bson.M{"stock": qty}, "$set": bson.M{"updatedAt": r.now()}})
	return err
}

type CartRepository struct {
	coll *mongo.Collection
	now  func() time.Time
}

func NewCartRepository(db *mongo.Database) *CartRepository {
	return &CartRepository{coll: db.Collection(cartsCollection), now: time.Now}
}

// Get returns the user's cart with totals filled in, or an empty cart.
func (r *CartRepository) Get(ctx context.Context, userID primitive.ObjectID) (*models.Cart, error) {
	var cart models.Cart
	err := r.coll.FindOne(ctx, bson.M{"userId": userID}).Decode(&cart)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return &models.Cart{UserID: userID, Items: []models.CartItem{}}, nil
	}
	if err != nil {
		return nil, err
	}
	cart.Recalculate()
	return &cart, nil
}

// AddItem bumps the quantity of an existing line or appends a new one.
func (r *CartRepository) AddItem(ctx context.Context, userID primitive.ObjectID, item models.CartItem) error {
	now := r.now()

	res, err := r.coll.UpdateOne(ctx,
		bson.M{"userId": userID, "items.productId": item.ProductID},
		bson.M{
			"$inc": bson.M{"items.$.quantity": item.Quantity},
			"$set": bson.M{"items.$.price": item.Price, "updatedAt": now},
		})
	if err != nil {
		return err
	}
	if res.MatchedCount == 1 {
		return nil
	}

	item.AddedAt = now
	_, err = r.coll.UpdateOne(ctx,
		bson.M{"userId": userID, "items.productId": bson.M{"$ne": item.ProductID}},
		bson.M{
			"$push":        bson.M{"items": item},
			"$set":         bson.M{"updatedAt": now},
			"$setOnInsert": bson.M{"createdAt": now},
		},
		options.Update().SetUpsert(true))
	if mongo.IsDuplicateKeyError(err) {
		// lost a race with a concurrent add of the same product
		return r.AddItem(ctx, userID, item)
	}
	return err
}

func (r *CartRepository) SetQuantity(ctx context.Context, userID, productID primitive.ObjectID, qty int) (bool, error) {
	arrayFilters := options.ArrayFilters{
		Filters: []interface{}{bson.M{"elem.productId": productID}},
	}
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"userId": userID, "items.productId": productID},
		bson.M{"$set": bson.M{
			"items.$[elem].quantity": qty,
			"updatedAt":              r.now(),
		}},
		options.Update().SetArrayFilters(arrayFilters))
	if err != nil {
		return false, err
	}
	return res.MatchedCount > 0, nil
}

func (r *CartRepository) RemoveItem(ctx context.Context, userID, productID primitive.ObjectID) (bool, error) {
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"userId": userID, "items.productId": productID},
		bson.M{
			"$pull": bson.M{"items": bson.M{"productId": productID}},
			"$set":  bson.M{"updatedAt": r.now()},
		})
	if err != nil {
		return false, err
	}
	return res.MatchedCount > 0, nil
}

func (r *CartRepository) Clear(ctx context.Context, userID primitive.ObjectID) error {
	_, err := r.coll.UpdateOne(ctx,
		bson.M{"userId": userID},
		bson.M{"$set": bson.M{"items": []models.CartItem{}, "updatedAt": r.now()}})
	return err
}
