package handlers

import (
	"context"
	"net/http"

	"github.com/Madhav-Gupta-28/dropkart-backend-go/models"
	"github.com/Madhav-Gupta-28/dropkart-backend-go/utils"
	"github.com/labstack/echo/v4"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type CartStore interface {
	Get(ctx context.Context, userID primitive.ObjectID) (*models.Cart, error)
	AddItem(ctx context.Context, userID primitive.ObjectID, item models.CartItem) error
	SetQuantity(ctx context.Context, userID, productID primitive.ObjectID, qty int) (bool, error)
	RemoveItem(ctx context.Context, userID, productID primitive.ObjectID) (bool, error)
	Clear(ctx context.Context, userID primitive.ObjectID) error
}

type ProductLookup interface {
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Product, error)
}

type CartHandler struct {
	carts    CartStore
	products ProductLookup
}

func NewCartHandler(carts CartStore, products ProductLookup) *CartHandler {
	return &CartHandler{carts: carts, products: products}
}

// GetCart retrieves the user's cart
func (h *CartHandler) GetCart(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	cart, err := h.carts.Get(ctx, p.ID)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, cart, "Cart fetched successfully")
}

type addToCartRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// AddToCart adds a product at its current price, merging with an existing line.
func (h *CartHandler) AddToCart(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}

	var req addToCartRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	productID, err := parseObjectID(req.ProductID, "productId")
	if err != nil {
		return err
	}
	if req.Quantity <= 0 {
		return utils.NewValidationError("Quantity must be at least 1")
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	product, err := h.products.FindByID(ctx, productID)
	if err != nil {
		return err
	}
	if product == nil {
		return utils.NewNotFoundError("Product not found")
	}
	if product.Stock < req.Quantity {
		return utils.NewValidationError("Insufficient stock for " + product.Name)
	}

	err = h.carts.AddItem(ctx, p.ID, models.CartItem{
		ProductID: productID,
		Quantity:  req.Quantity,
		Price:     product.CurrentPrice,
	})
	if err != nil {
		return err
	}

	cart, err := h.carts.Get(ctx, p.ID)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, cart, "Item added to cart")
}

type updateQuantityRequest struct {
	Quantity int `json:"quantity"`
}

// UpdateCartItemQuantity sets a line's quantity; zero removes the line.
func (h *CartHandler) UpdateCartItemQuantity(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	productID, err := objectIDParam(c, "productId")
	if err != nil {
		return err
	}

	var req updateQuantityRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if req.Quantity < 0 {
		return utils.NewValidationError("Quantity cannot be negative")
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	var found bool
	if req.Quantity == 0 {
		found, err = h.carts.RemoveItem(ctx, p.ID, productID)
	} else {
		product, perr := h.products.FindByID(ctx, productID)
		if perr != nil {
			return perr
		}
		if product != nil && product.Stock < req.Quantity {
			return utils.NewValidationError("Insufficient stock for " + product.Name)
		}
		found, err = h.carts.SetQuantity(ctx, p.ID, productID, req.Quantity)
	}
	if err != nil {
		return err
	}
	if !found {
		return utils.NewNotFoundError("Item not found in cart")
	}

	cart, err := h.carts.Get(ctx, p.ID)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, cart, "Cart updated")
}

// RemoveFromCart removes an item from the user's cart
func (h *CartHandler) RemoveFromCart(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	productID, err := objectIDParam(c, "productId")
	if err != nil {
		return err
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	found, err := h.carts.RemoveItem(ctx, p.ID, productID)
	if err != nil {
		return err
	}
	if !found {
		return utils.NewNotFoundError("Item not found in cart")
	}

	cart, err := h.carts.Get(ctx, p.ID)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, cart, "Item removed from cart")
}

func (h *CartHandler) ClearCart(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	if err := h.carts.Clear(ctx, p.ID); err != nil {
		return err
	}
	return respond(c, http.StatusOK, nil, "Cart cleared")
}
