package delivery

import (
	"github.com/Madhav-Gupta-28/dropkart-backend-go/models"
	"github.com/Madhav-Gupta-28/dropkart-backend-go/utils"
)

// AllowedTransitions is the order lifecycle graph. assigned -> pending is the
// reject edge; every other edge moves forward.
var AllowedTransitions = map[models.OrderStatus][]models.OrderStatus{
	models.OrderStatusPending:        {models.OrderStatusAssigned, models.OrderStatusCancelled},
	models.OrderStatusAssigned:       {models.OrderStatusAccepted, models.OrderStatusPending},
	models.OrderStatusAccepted:       {models.OrderStatusPickedUp},
	models.OrderStatusPickedUp:       {models.OrderStatusOutForDelivery},
	models.OrderStatusOutForDelivery: {models.OrderStatusDelivered},
	models.OrderStatusDelivered:      {},
	models.OrderStatusCancelled:      {},
}

func CanTransition(from, to models.OrderStatus) bool {
	for _, next := range AllowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func IsTerminal(s models.OrderStatus) bool {
	return s == models.OrderStatusDelivered || s == models.OrderStatusCancelled
}

type Action string

const (
	ActionAccept Action = "accept"
	ActionReject Action = "reject"
)

func ParseAction(s string) (Action, error) {
	switch Action(s) {
	case ActionAccept, ActionReject:
		return Action(s), nil
	}
	return "", utils.NewValidationError("action must be accept or reject")
}

// StatusFilter selects a driver's orders by lifecycle phase.
type StatusFilter string

const (
	FilterNewOrder  StatusFilter = "newOrder"
	FilterOngoing   StatusFilter = "ongoing"
	FilterDelivered StatusFilter = "delivered"
	FilterAll       StatusFilter = "all"
)

func ParseStatusFilter(s string) (StatusFilter, error) {
	switch StatusFilter(s) {
	case "":
		return FilterAll, nil
	case FilterNewOrder, FilterOngoing, FilterDelivered, FilterAll:
		return StatusFilter(s), nil
	}
	return "", utils.NewValidationError("status must be one of newOrder, ongoing, delivered, all")
}

// Statuses expands the filter; nil means no status restriction.
func (f StatusFilter) Statuses() []models.OrderStatus {
	switch f {
	case FilterNewOrder:
		return []models.OrderStatus{models.OrderStatusAssigned}
	case FilterOngoing:
		return []models.OrderStatus{
			models.OrderStatusAccepted,
			models.OrderStatusPickedUp,
			models.OrderStatusOutForDelivery,
		}
	case FilterDelivered:
		return []models.OrderStatus{models.OrderStatusDelivered}
	}
	return nil
}
