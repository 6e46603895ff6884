package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Location struct {
	Lat float64 `bson:"lat" json:"lat"`
	Lng float64 `bson:"lng" json:"lng"`
}

type Driver struct {
	ID              primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name            string             `bson:"name" json:"name"`
	Phone           string             `bson:"phone" json:"phone"`
	Email           string             `bson:"email" json:"email"`
	Password        string             `bson:"password,omitempty" json:"-"`
	Role            string             `bson:"role" json:"role"`
	VehicleNumber   string             `bson:"vehicleNumber" json:"vehicleNumber"`
	LicenseNumber   string             `bson:"licenseNumber" json:"licenseNumber"`
	IsAvailable     bool               `bson:"isAvailable" json:"isAvailable"`
	IsVerified      bool               `bson:"isVerified" json:"isVerified"`
	IsActive        bool               `bson:"isActive" json:"isActive"`
	WalletBalance   float64            `bson:"walletBalance" json:"walletBalance"`
	CurrentLocation *Location          `bson:"currentLocation,omitempty" json:"currentLocation,omitempty"`
	FCMToken        string             `bson:"fcmToken,omitempty" json:"-"`
	// ReservedFor names the order holding the driver. It is empty while the
	// driver is idle, whether online or offline.
	ReservedFor string `bson:"reservedFor,omitempty" json:"reservedFor,omitempty"`
	// SettledOrders keeps the most recent credited order ids so a replayed
	// credit is a no-op.
	SettledOrders []string  `bson:"settledOrders,omitempty" json:"-"`
	CreatedAt     time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt     time.Time `bson:"updatedAt" json:"updatedAt"`
}

const DriverRole = "driver"

// DriverProfileUpdate carries the optional fields a driver may edit; nil
// means unchanged.
type DriverProfileUpdate struct {
	Name          *string `json:"name"`
	Phone         *string `json:"phone"`
	VehicleNumber *string `json:"vehicleNumber"`
	LicenseNumber *string `json:"licenseNumber"`
}
