package database

import (
	"testing"
	"time"

	"github.com/Madhav-Gupta-28/dropkart-backend-go/delivery"
	"github.com/Madhav-Gupta-28/dropkart-backend-go/models"
	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestConditionFilter(t *testing.T) {
	t.Run("should always pin order id and status", func(t *testing.T) {
		f := conditionFilter(delivery.OrderCondition{OrderID: "ORD000001", Status: models.OrderStatusPending})
		assert.Equal(t, bson.M{"orderId": "ORD000001", "status": models.OrderStatusPending}, f)
	})

	t.Run("should add every optional guard that is set", func(t *testing.T) {
		driver := primitive.NewObjectID()
		customer := primitive.NewObjectID()
		now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

		f := conditionFilter(delivery.OrderCondition{
			OrderID:      "ORD000002",
			Status:       models.OrderStatusOutForDelivery,
			DriverID:     driver,
			CustomerID:   customer,
			OTPHash:      "abc",
			MaxAttempts:  3,
			NotExpiredAt: now,
		})

		assert.Equal(t, driver, f["assignedDriverId"])
		assert.Equal(t, customer, f["userId"])
		assert.Equal(t, "abc", f["deliveryOTP"])
		assert.Equal(t, bson.M{"$lt": 3}, f["otpAttempts"])
		assert.Equal(t, bson.M{"$gt": now}, f["otpExpiresAt"])
	})
}

func TestPatchUpdate(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	t.Run("should set status, milestone and driver on assignment", func(t *testing.T) {
		driver := primitive.NewObjectID()
		u := patchUpdate(delivery.OrderPatch{
			Status:    models.OrderStatusAssigned,
			Milestone: models.MilestoneAssigned,
			At:        now,
			DriverID:  &driver,
		}, now.Add(time.Hour))

		set := u["$set"].(bson.M)
		assert.Equal(t, models.OrderStatusAssigned, set["status"])
		assert.Equal(t, now, set["assignedAt"])
		assert.Equal(t, driver, set["assignedDriverId"])
		assert.Equal(t, now, set["updatedAt"])
		assert.NotContains(t, u, "$unset")
		assert.NotContains(t, u, "$inc")
	})

	t.Run("should unset the driver on reject", func(t *testing.T) {
		u := patchUpdate(delivery.OrderPatch{
			Status:      models.OrderStatusPending,
			Milestone:   models.MilestoneRejected,
			At:          now,
			ClearDriver: true,
		}, now)

		assert.Equal(t, bson.M{"assignedDriverId": ""}, u["$unset"])
	})

	t.Run("should reset attempts when a new code is issued", func(t *testing.T) {
		expires := now.Add(10 * time.Minute)
		u := patchUpdate(delivery.OrderPatch{OTPHash: "h", OTPExpires: expires, At: now}, now)

		set := u["$set"].(bson.M)
		assert.Equal(t, "h", set["deliveryOTP"])
		assert.Equal(t, expires, set["otpExpiresAt"])
		assert.Equal(t, 0, set["otpAttempts"])
	})

	t.Run("should only bump attempts and updatedAt on a wrong code", func(t *testing.T) {
		u := patchUpdate(delivery.OrderPatch{IncAttempts: true}, now)

		assert.Equal(t, bson.M{"otpAttempts": 1}, u["$inc"])
		assert.Equal(t, bson.M{"updatedAt": now}, u["$set"])
	})

	t.Run("should record an unsettled payout and drop the code on delivery", func(t *testing.T) {
		u := patchUpdate(delivery.OrderPatch{
			Status:    models.OrderStatusDelivered,
			Milestone: models.MilestoneDelivered,
			At:        now,
			ClearOTP:  true,
			Payout:    &models.Payout{Amount: 10},
		}, now)

		set := u["$set"].(bson.M)
		assert.Equal(t, bson.M{"amount": 10.0, "settledAt": nil}, set["payout"])
		assert.Equal(t, bson.M{"deliveryOTP": "", "otpExpiresAt": ""}, u["$unset"])
	})
}
