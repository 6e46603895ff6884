package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/Madhav-Gupta-28/dropkart-backend-go/models"
	"github.com/Madhav-Gupta-28/dropkart-backend-go/utils"
	"github.com/labstack/echo/v4"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type CustomerOrderStore interface {
	Insert(ctx context.Context, o *models.Order) error
	FindByOrderID(ctx context.Context, orderID string) (*models.Order, error)
	ListForCustomer(ctx context.Context, customerID primitive.ObjectID, status models.OrderStatus) ([]models.Order, error)
}

type StockStore interface {
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Product, error)
	TakeStock(ctx context.Context, id primitive.ObjectID, qty int) (bool, error)
	ReturnStock(ctx context.Context, id primitive.ObjectID, qty int) error
}

type ShippingRules interface {
	Shipping(ctx context.Context) (*models.Shipping, error)
}

type OrderSequence interface {
	NextOrderID(ctx context.Context) (string, error)
}

type OrderCanceller interface {
	CancelOrder(ctx context.Context, orderID string, customerID primitive.ObjectID) (*models.Order, error)
}

type PlacedNotifier interface {
	OrderPlaced(ctx context.Context, order *models.Order) error
}

// CheckoutDeps groups what OrderHandler needs to turn a cart into an order.
type CheckoutDeps struct {
	Orders   CustomerOrderStore
	Carts    CartStore
	Products StockStore
	Shipping ShippingRules
	Sequence OrderSequence
	Engine   OrderCanceller
	Notifier PlacedNotifier
}

type OrderHandler struct {
	deps   CheckoutDeps
	logger *zap.Logger
}

func NewOrderHandler(deps CheckoutDeps, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{deps: deps, logger: logger.With(zap.String("component", "checkout"))}
}

type checkoutRequest struct {
	PaymentMethod   string `json:"paymentMethod"`
	ShippingAddress string `json:"shippingAddress"`
}

// CreateOrder places an order from the caller's cart at current prices.
func (h *OrderHandler) CreateOrder(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}

	var req checkoutRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if strings.TrimSpace(req.ShippingAddress) == "" {
		return utils.NewValidationError("shippingAddress is required")
	}
	if req.PaymentMethod == "" {
		req.PaymentMethod = "COD"
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	cart, err := h.deps.Carts.Get(ctx, p.ID)
	if err != nil {
		return err
	}
	if len(cart.Items) == 0 {
		return utils.NewValidationError("Cart is empty")
	}

	items, subTotal, err := h.priceItems(ctx, cart.Items)
	if err != nil {
		return err
	}

	rule, err := h.deps.Shipping.Shipping(ctx)
	if err != nil {
		return err
	}
	shipping := rule.ChargeFor(subTotal)

	orderID, err := h.deps.Sequence.NextOrderID(ctx)
	if err != nil {
		return err
	}

	if err := h.takeStock(ctx, items); err != nil {
		return err
	}

	totalItems := 0
	for _, it := range items {
		totalItems += it.Quantity
	}
	order := &models.Order{
		OrderID:         orderID,
		UserID:          p.ID,
		Items:           items,
		TotalItems:      totalItems,
		SubTotal:        subTotal,
		ShippingCharge:  shipping,
		TotalPrice:      subTotal + shipping,
		PaymentMethod:   req.PaymentMethod,
		ShippingAddress: req.ShippingAddress,
		Status:          models.OrderStatusPending,
	}
	if err := h.deps.Orders.Insert(ctx, order); err != nil {
		h.returnStock(items)
		return err
	}

	if err := h.deps.Carts.Clear(ctx, p.ID); err != nil {
		h.logger.Error("clear cart after checkout", zap.String("orderId", orderID), zap.Error(err))
	}
	if err := h.deps.Notifier.OrderPlaced(ctx, order); err != nil {
		h.logger.Error("failed to create order notification", zap.String("orderId", orderID), zap.Error(err))
	}

	h.logger.Info("order placed", zap.String("orderId", orderID), zap.String("userId", p.ID.Hex()))
	return respond(c, http.StatusCreated, order, "Order placed successfully")
}

func (h *OrderHandler) priceItems(ctx context.Context, lines []models.CartItem) ([]models.OrderItem, float64, error) {
	items := make([]models.OrderItem, 0, len(lines))
	subTotal := 0.0
	for _, line := range lines {
		product, err := h.deps.Products.FindByID(ctx, line.ProductID)
		if err != nil {
			return nil, 0, err
		}
		if product == nil {
			return nil, 0, utils.NewValidationError("A product in your cart is no longer available")
		}
		if product.Stock < line.Quantity {
			return nil, 0, utils.NewValidationError("Insufficient stock for " + product.Name)
		}
		items = append(items, models.OrderItem{
			ProductID: product.ID,
			Name:      product.Name,
			Quantity:  line.Quantity,
			Price:     product.CurrentPrice,
		})
		subTotal += product.CurrentPrice * float64(line.Quantity)
	}
	return items, subTotal, nil
}

// takeStock decrements stock line by line and puts back what it took if a
// later line runs short.
func (h *OrderHandler) takeStock(ctx context.Context, items []models.OrderItem) error {
	for i, it := range items {
		ok, err := h.deps.Products.TakeStock(ctx, it.ProductID, it.Quantity)
		if err == nil && !ok {
			err = utils.NewValidationError("Insufficient stock for " + it.Name)
		}
		if err != nil {
			h.returnStock(items[:i])
			return err
		}
	}
	return nil
}

func (h *OrderHandler) returnStock(items []models.OrderItem) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	for _, it := range items {
		if err := h.deps.Products.ReturnStock(ctx, it.ProductID, it.Quantity); err != nil {
			h.logger.Error("return stock", zap.String("productId", it.ProductID.Hex()), zap.Error(err))
		}
	}
}

// GetUserOrders lists the caller's orders, newest first.
func (h *OrderHandler) GetUserOrders(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}

	status := models.OrderStatus(c.QueryParam("status"))
	if status != "" && !status.Valid() {
		return utils.NewValidationError("Invalid status filter")
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	orders, err := h.deps.Orders.ListForCustomer(ctx, p.ID, status)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, orders, "Orders fetched successfully")
}

func (h *OrderHandler) GetOrder(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	order, err := h.deps.Orders.FindByOrderID(ctx, c.Param("orderId"))
	if err != nil {
		return err
	}
	if order == nil {
		return utils.NewNotFoundError("Order not found")
	}
	if order.UserID != p.ID {
		return utils.NewForbiddenError("Not authorized to view this order")
	}
	return respond(c, http.StatusOK, order, "Order fetched successfully")
}

func (h *OrderHandler) CancelOrder(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	order, err := h.deps.Engine.CancelOrder(ctx, c.Param("orderId"), p.ID)
	if err != nil {
		return err
	}
	h.returnStock(order.Items)
	return respond(c, http.StatusOK, order, "Order cancelled")
}
