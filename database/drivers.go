package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Madhav-Gupta-28/dropkart-backend-go/models"
	"github.com/Madhav-Gupta-28/dropkart-backend-go/utils"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// settledWindow bounds how many credited order ids a driver document keeps
// for replay detection.
const settledWindow = 200

type DriverRepository struct {
	coll *mongo.Collection
	now  func() time.Time
}

func NewDriverRepository(db *mongo.Database) *DriverRepository {
	return &DriverRepository{coll: db.Collection(driversCollection), now: time.Now}
}

func (r *DriverRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Driver, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *DriverRepository) FindByLogin(ctx context.Context, email, phone string) (*models.Driver, error) {
	or := bson.A{}
	if email != "" {
		or = append(or, bson.M{"email": email})
	}
	if phone != "" {
		or = append(or, bson.M{"phone": phone})
	}
	if len(or) == 0 {
		return nil, nil
	}
	return r.findOne(ctx, bson.M{"$or": or})
}

func (r *DriverRepository) Reserve(ctx context.Context, id primitive.ObjectID, orderID string) (*models.Driver, error) {
	return r.swap(ctx,
		bson.M{"_id": id, "isAvailable": true, "isVerified": true, "isActive": true},
		bson.M{"$set": bson.M{"isAvailable": false, "reservedFor": orderID}})
}

func (r *DriverRepository) Release(ctx context.Context, id primitive.ObjectID, orderID string) (*models.Driver, error) {
	filter := bson.M{"_id": id, "isAvailable": false}
	if orderID == "" {
		filter["reservedFor"] = bson.M{"$exists": false}
	} else {
		filter["reservedFor"] = orderID
	}
	return r.swap(ctx, filter, bson.M{
		"$set":   bson.M{"isAvailable": true},
		"$unset": bson.M{"reservedFor": ""},
	})
}

func (r *DriverRepository) SetOffline(ctx context.Context, id primitive.ObjectID) (*models.Driver, error) {
	return r.swap(ctx, bson.M{"_id": id, "isAvailable": true}, setOnly(bson.M{"isAvailable": false}))
}

func (r *DriverRepository) Verify(ctx context.Context, id primitive.ObjectID) (*models.Driver, error) {
	return r.swap(ctx, bson.M{"_id": id, "isVerified": false}, setOnly(bson.M{"isVerified": true}))
}

// Credit pays the driver for orderID unless that order is already recorded
// in settledOrders.
func (r *DriverRepository) Credit(ctx context.Context, id primitive.ObjectID, orderID string, amount float64) (bool, error) {
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": id, "settledOrders": bson.M{"$ne": orderID}},
		bson.M{
			"$inc": bson.M{"walletBalance": amount},
			"$push": bson.M{"settledOrders": bson.M{
				"$each":  bson.A{orderID},
				"$slice": -settledWindow,
			}},
			"$set": bson.M{"updatedAt": r.now()},
		})
	if err != nil {
		return false, err
	}
	if res.ModifiedCount == 1 {
		return true, nil
	}

	n, err := r.coll.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, fmt.Errorf("driver %s not found", id.Hex())
	}
	return false, nil
}

func (r *DriverRepository) Create(ctx context.Context, d *models.Driver) error {
	if d.ID.IsZero() {
		d.ID = primitive.NewObjectID()
	}
	now := r.now()
	d.CreatedAt = now
	d.UpdatedAt = now

	if _, err := r.coll.InsertOne(ctx, d); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return utils.NewConflictError(utils.CodeDuplicate, "Driver with this email or phone already exists")
		}
		return fmt.Errorf("insert driver: %w", err)
	}
	return nil
}

func (r *DriverRepository) UpdateLocation(ctx context.Context, id primitive.ObjectID, loc models.Location) (*models.Driver, error) {
	return r.swap(ctx, bson.M{"_id": id}, setOnly(bson.M{"currentLocation": loc}))
}

func (r *DriverRepository) UpdateProfile(ctx context.Context, id primitive.ObjectID, upd models.DriverProfileUpdate) (*models.Driver, error) {
	set := bson.M{}
	if upd.Name != nil {
		set["name"] = *upd.Name
	}
	if upd.Phone != nil {
		set["phone"] = *upd.Phone
	}
	if upd.VehicleNumber != nil {
		set["vehicleNumber"] = *upd.VehicleNumber
	}
	if upd.LicenseNumber != nil {
		set["licenseNumber"] = *upd.LicenseNumber
	}

	driver, err := r.swap(ctx, bson.M{"_id": id}, setOnly(set))
	if mongo.IsDuplicateKeyError(err) {
		return nil, utils.NewConflictError(utils.CodeDuplicate, "Driver with this phone already exists")
	}
	return driver, err
}

func (r *DriverRepository) SetDeviceToken(ctx context.Context, id primitive.ObjectID, token string) error {
	_, err := r.coll.UpdateOne(ctx, bson.M{"_id": id},
		bson.M{"$set": bson.M{"fcmToken": token, "updatedAt": r.now()}})
	return err
}

func (r *DriverRepository) List(ctx context.Context, f models.DriverFilter) ([]models.Driver, error) {
	filter := bson.M{}
	if f.Available != nil {
		filter["isAvailable"] = *f.Available
	}
	if f.Verified != nil {
		filter["isVerified"] = *f.Verified
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetProjection(bson.M{"password": 0, "settledOrders": 0})
	cursor, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	drivers := []models.Driver{}
	if err := cursor.All(ctx, &drivers); err != nil {
		return nil, err
	}
	return drivers, nil
}

func (r *DriverRepository) DeviceToken(ctx context.Context, id primitive.ObjectID) (string, error) {
	d, err := r.FindByID(ctx, id)
	if err != nil || d == nil {
		return "", err
	}
	return d.FCMToken, nil
}

func (r *DriverRepository) findOne(ctx context.Context, filter bson.M) (*models.Driver, error) {
	var driver models.Driver
	err := r.coll.FindOne(ctx, filter).Decode(&driver)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &driver, nil
}

// swap applies update to the driver matching filter and returns the updated
// document, or nil when nothing matched. updatedAt is always stamped.
func (r *DriverRepository) swap(ctx context.Context, filter, update bson.M) (*models.Driver, error) {
	set, _ := update["$set"].(bson.M)
	if set == nil {
		set = bson.M{}
	}
	set["updatedAt"] = r.now()
	update["$set"] = set
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var driver models.Driver
	err := r.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&driver)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &driver, nil
}

func setOnly(fields bson.M) bson.M {
	return bson.M{"$set": fields}
}
