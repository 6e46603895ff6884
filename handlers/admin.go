package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/Madhav-Gupta-28/dropkart-backend-go/delivery"
	"github.com/Madhav-Gupta-28/dropkart-backend-go/models"
	"github.com/Madhav-Gupta-28/dropkart-backend-go/utils"
	"github.com/labstack/echo/v4"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const adminOrderListLimit = 200

type AdminStore interface {
	FindByEmail(ctx context.Context, email string) (*models.Admin, error)
}

type DriverDirectory interface {
	List(ctx context.Context, f models.DriverFilter) ([]models.Driver, error)
}

type OrderBoard interface {
	ListByStatus(ctx context.Context, status models.OrderStatus, limit int) ([]models.Order, error)
}

type Dispatch interface {
	AssignOrder(ctx context.Context, orderID string, driverID primitive.ObjectID) (*delivery.Assignment, error)
	VerifyDriver(ctx context.Context, driverID primitive.ObjectID) (*models.Driver, error)
}

type FeeSettings interface {
	UpdateConvenience(ctx context.Context, baseFare, perKm float64, adminID primitive.ObjectID) (*models.Convenience, error)
	UpdateShipping(ctx context.Context, charge, freeAbove float64) (*models.Shipping, error)
}

type AdminDeps struct {
	Admins  AdminStore
	Drivers DriverDirectory
	Orders  OrderBoard
	Engine  Dispatch
	Fees    FeeSettings
	Tokens  TokenIssuer
}

type AdminHandler struct {
	deps AdminDeps
}

func NewAdminHandler(deps AdminDeps) *AdminHandler {
	return &AdminHandler{deps: deps}
}

func (h *AdminHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if req.Email == "" || req.Password == "" {
		return utils.NewValidationError("Email and password are required")
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	admin, err := h.deps.Admins.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		return err
	}
	if admin == nil || !passwordMatches(admin.Password, req.Password) {
		return utils.NewUnauthorizedError("Invalid credentials")
	}
	if !admin.IsActive {
		return utils.NewForbiddenError("Admin account is disabled")
	}

	token, err := h.deps.Tokens.GenerateJWT(utils.RoleAdmin, admin.ID)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, map[string]interface{}{
		"token": token,
		"admin": admin,
	}, "Login successful")
}

func (h *AdminHandler) ListDrivers(c echo.Context) error {
	var f models.DriverFilter
	var err error
	if f.Available, err = optionalBool(c, "available"); err != nil {
		return err
	}
	if f.Verified, err = optionalBool(c, "verified"); err != nil {
		return err
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	drivers, err := h.deps.Drivers.List(ctx, f)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, drivers, "Drivers fetched successfully")
}

func (h *AdminHandler) VerifyDriver(c echo.Context) error {
	driverID, err := objectIDParam(c, "driverId")
	if err != nil {
		return err
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	driver, err := h.deps.Engine.VerifyDriver(ctx, driverID)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, driver, "Driver verified successfully")
}

func (h *AdminHandler) ListOrders(c echo.Context) error {
	status := models.OrderStatus(c.QueryParam("status"))
	if status != "" && !status.Valid() {
		return utils.NewValidationError("Invalid status filter")
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	orders, err := h.deps.Orders.ListByStatus(ctx, status, adminOrderListLimit)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, orders, "Orders fetched successfully")
}

type assignRequest struct {
	OrderID          string `json:"orderId"`
	AssignedDriverID string `json:"assignedDriverId"`
}

// AssignOrder hands a pending order to an available, verified driver.
func (h *AdminHandler) AssignOrder(c echo.Context) error {
	var req assignRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if req.OrderID == "" || req.AssignedDriverID == "" {
		return utils.NewValidationError("orderId and assignedDriverId are required")
	}
	driverID, err := parseObjectID(req.AssignedDriverID, "assignedDriverId")
	if err != nil {
		return err
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	assignment, err := h.deps.Engine.AssignOrder(ctx, req.OrderID, driverID)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, assignment, "Order assigned successfully")
}

type feesRequest struct {
	BaseDriverFare *float64 `json:"baseDriverFare"`
	PerKmRate      float64  `json:"perKmRate"`
}

func (h *AdminHandler) UpdateFees(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}

	var req feesRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if req.BaseDriverFare == nil || *req.BaseDriverFare < 0 || req.PerKmRate < 0 {
		return utils.NewValidationError("baseDriverFare is required and fees cannot be negative")
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	fee, err := h.deps.Fees.UpdateConvenience(ctx, *req.BaseDriverFare, req.PerKmRate, p.ID)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, fee, "Delivery fees updated")
}

type shippingRequest struct {
	ShippingCharge    float64 `json:"shippingCharge"`
	FreeShippingAbove float64 `json:"freeShippingAbove"`
}

func (h *AdminHandler) UpdateShipping(c echo.Context) error {
	var req shippingRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if req.ShippingCharge < 0 || req.FreeShippingAbove < 0 {
		return utils.NewValidationError("Shipping values cannot be negative")
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	rule, err := h.deps.Fees.UpdateShipping(ctx, req.ShippingCharge, req.FreeShippingAbove)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, rule, "Shipping updated")
}

func optionalBool(c echo.Context, name string) (*bool, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, utils.NewValidationError(name + " must be true or false")
	}
	return &v, nil
}
