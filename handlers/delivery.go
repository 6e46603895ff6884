package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/Madhav-Gupta-28/dropkart-backend-go/delivery"
	"github.com/Madhav-Gupta-28/dropkart-backend-go/models"
	"github.com/Madhav-Gupta-28/dropkart-backend-go/utils"
	"github.com/labstack/echo/v4"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/crypto/bcrypt"
)

type DriverAccounts interface {
	Create(ctx context.Context, d *models.Driver) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Driver, error)
	FindByLogin(ctx context.Context, email, phone string) (*models.Driver, error)
	UpdateLocation(ctx context.Context, id primitive.ObjectID, loc models.Location) (*models.Driver, error)
	UpdateProfile(ctx context.Context, id primitive.ObjectID, upd models.DriverProfileUpdate) (*models.Driver, error)
	SetDeviceToken(ctx context.Context, id primitive.ObjectID, token string) error
}

// DriverWorkflow is the part of the delivery engine a driver drives.
type DriverWorkflow interface {
	RespondToOrder(ctx context.Context, orderID string, driverID primitive.ObjectID, action delivery.Action) (*models.Order, error)
	MarkPickedUp(ctx context.Context, orderID string, driverID primitive.ObjectID) (*models.Order, error)
	BeginDelivery(ctx context.Context, orderID string, driverID primitive.ObjectID) (*models.Order, error)
	VerifyDelivery(ctx context.Context, orderID string, driverID primitive.ObjectID, code string) (*models.Order, error)
	AssignedOrders(ctx context.Context, driverID primitive.ObjectID, filter delivery.StatusFilter) ([]models.Order, error)
	DeliveryHistory(ctx context.Context, driverID primitive.ObjectID) ([]models.Order, error)
	GoOnline(ctx context.Context, driverID primitive.ObjectID) (*models.Driver, error)
	GoOffline(ctx context.Context, driverID primitive.ObjectID) (*models.Driver, error)
}

type DeliveryHandler struct {
	drivers DriverAccounts
	engine  DriverWorkflow
	tokens  TokenIssuer
}

func NewDeliveryHandler(drivers DriverAccounts, engine DriverWorkflow, tokens TokenIssuer) *DeliveryHandler {
	return &DeliveryHandler{drivers: drivers, engine: engine, tokens: tokens}
}

type driverRegistrationRequest struct {
	Name          string `json:"name"`
	Phone         string `json:"phone"`
	Email         string `json:"email"`
	Password      string `json:"password"`
	VehicleNumber string `json:"vehicleNumber"`
	LicenseNumber string `json:"licenseNumber"`
}

// Register signs a driver up. New drivers wait for admin verification and
// start offline.
func (h *DeliveryHandler) Register(c echo.Context) error {
	var req driverRegistrationRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Phone = strings.TrimSpace(req.Phone)

	if req.Name == "" || req.Phone == "" || req.Email == "" || req.Password == "" ||
		req.VehicleNumber == "" || req.LicenseNumber == "" {
		return utils.NewValidationError("All fields are mandatory")
	}
	if !isValidEmail(req.Email) {
		return utils.NewValidationError("Invalid email format")
	}
	if len(req.Password) < minPasswordLength {
		return utils.NewValidationError("Password must be at least 8 characters")
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	driver := &models.Driver{
		Name:          strings.TrimSpace(req.Name),
		Phone:         req.Phone,
		Email:         req.Email,
		Password:      string(hashedPassword),
		Role:          models.DriverRole,
		VehicleNumber: req.VehicleNumber,
		LicenseNumber: req.LicenseNumber,
		IsActive:      true,
	}
	if err := h.drivers.Create(ctx, driver); err != nil {
		return err
	}
	return respond(c, http.StatusCreated, driver, "Registration completed successfully!")
}

type driverLoginRequest struct {
	// UserID is either the email address or the phone number.
	UserID   string `json:"userId"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

// Login authenticates a driver and puts them online when nothing holds them
// back: they must be verified and active with no order in hand.
func (h *DeliveryHandler) Login(c echo.Context) error {
	var req driverLoginRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	email, phone := strings.ToLower(strings.TrimSpace(req.Email)), strings.TrimSpace(req.Phone)
	if id := strings.TrimSpace(req.UserID); id != "" {
		if strings.Contains(id, "@") {
			email = strings.ToLower(id)
		} else {
			phone = id
		}
	}
	if (email == "" && phone == "") || req.Password == "" {
		return utils.NewValidationError("User ID and password are required")
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	driver, err := h.drivers.FindByLogin(ctx, email, phone)
	if err != nil {
		return err
	}
	if driver == nil || !passwordMatches(driver.Password, req.Password) {
		return utils.NewUnauthorizedError("Invalid credentials!")
	}

	online, err := h.engine.GoOnline(ctx, driver.ID)
	var apiErr *utils.ApiError
	switch {
	case err == nil:
		driver = online
	case !errors.As(err, &apiErr):
		return err
	}

	token, err := h.tokens.GenerateJWT(utils.RoleDriver, driver.ID)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, map[string]interface{}{
		"token":  token,
		"driver": driver,
	}, "Login successful")
}

func (h *DeliveryHandler) GetProfile(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	driver, err := h.drivers.FindByID(ctx, p.ID)
	if err != nil {
		return err
	}
	if driver == nil {
		return utils.NewNotFoundError("Driver not found")
	}
	return respond(c, http.StatusOK, driver, "Details fetched successfully!")
}

// UpdateProfile edits the driver's own contact and vehicle details. Account
// state such as verification and availability is not editable here.
func (h *DeliveryHandler) UpdateProfile(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}

	var upd models.DriverProfileUpdate
	if err := bind(c, &upd); err != nil {
		return err
	}
	fields := []struct {
		name  string
		value *string
	}{
		{"name", upd.Name},
		{"phone", upd.Phone},
		{"vehicleNumber", upd.VehicleNumber},
		{"licenseNumber", upd.LicenseNumber},
	}
	for _, f := range fields {
		if f.value == nil {
			continue
		}
		*f.value = strings.TrimSpace(*f.value)
		if *f.value == "" {
			return utils.NewValidationError(f.name + " cannot be empty")
		}
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	driver, err := h.drivers.UpdateProfile(ctx, p.ID, upd)
	if err != nil {
		return err
	}
	if driver == nil {
		return utils.NewNotFoundError("Driver not found")
	}
	return respond(c, http.StatusOK, driver, "Profile updated successfully")
}

type availabilityRequest struct {
	Available *bool `json:"available"`
}

func (h *DeliveryHandler) SetAvailability(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}

	var req availabilityRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if req.Available == nil {
		return utils.NewValidationError("available is required")
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	var driver *models.Driver
	if *req.Available {
		driver, err = h.engine.GoOnline(ctx, p.ID)
	} else {
		driver, err = h.engine.GoOffline(ctx, p.ID)
	}
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, driver, "Availability updated")
}

func (h *DeliveryHandler) UpdateLocation(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}

	var loc models.Location
	if err := bind(c, &loc); err != nil {
		return err
	}
	if loc.Lat < -90 || loc.Lat > 90 || loc.Lng < -180 || loc.Lng > 180 {
		return utils.NewValidationError("Invalid coordinates")
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	driver, err := h.drivers.UpdateLocation(ctx, p.ID, loc)
	if err != nil {
		return err
	}
	if driver == nil {
		return utils.NewNotFoundError("Driver not found")
	}
	return respond(c, http.StatusOK, driver, "Location updated")
}

func (h *DeliveryHandler) SetDeviceToken(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}

	var req deviceTokenRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if req.FCMToken == "" {
		return utils.NewValidationError("fcmToken is required")
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	if err := h.drivers.SetDeviceToken(ctx, p.ID, req.FCMToken); err != nil {
		return err
	}
	return respond(c, http.StatusOK, nil, "Device token updated")
}

type respondRequest struct {
	Action string `json:"action"`
}

func (h *DeliveryHandler) RespondToOrder(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}

	var req respondRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	action, err := delivery.ParseAction(req.Action)
	if err != nil {
		return err
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	order, err := h.engine.RespondToOrder(ctx, c.Param("orderId"), p.ID, action)
	if err != nil {
		return err
	}
	msg := "Order accepted"
	if action == delivery.ActionReject {
		msg = "Order rejected"
	}
	return respond(c, http.StatusOK, order, msg)
}

func (h *DeliveryHandler) MarkPickedUp(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	order, err := h.engine.MarkPickedUp(ctx, c.Param("orderId"), p.ID)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, order, "Order picked up")
}

// OutForDelivery starts the handoff. The customer receives the code; the
// driver's response never contains it.
func (h *DeliveryHandler) OutForDelivery(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	order, err := h.engine.BeginDelivery(ctx, c.Param("orderId"), p.ID)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, order, "OTP sent to customer")
}

type verifyOTPRequest struct {
	OTP string `json:"otp"`
}

func (h *DeliveryHandler) VerifyOTP(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}

	var req verifyOTPRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	order, err := h.engine.VerifyDelivery(ctx, c.Param("orderId"), p.ID, strings.TrimSpace(req.OTP))
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, order, "Order delivered successfully")
}

type assignedOrders struct {
	Orders []models.Order `json:"orders"`
	Count  int            `json:"count"`
}

func (h *DeliveryHandler) GetAssignedOrders(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	filter, err := delivery.ParseStatusFilter(c.QueryParam("status"))
	if err != nil {
		return err
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	orders, err := h.engine.AssignedOrders(ctx, p.ID, filter)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, assignedOrders{Orders: orders, Count: len(orders)}, "Orders fetched successfully")
}

func (h *DeliveryHandler) GetDeliveryHistory(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	orders, err := h.engine.DeliveryHistory(ctx, p.ID)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, orders, "Delivery history fetched successfully")
}
