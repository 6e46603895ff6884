package handlers

import (
	"context"
	"net/http"
	"net/mail"
	"strings"

	"github.com/Madhav-Gupta-28/dropkart-backend-go/models"
	"github.com/Madhav-Gupta-28/dropkart-backend-go/utils"
	"github.com/labstack/echo/v4"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 8

type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	UpdateProfile(ctx context.Context, id primitive.ObjectID, upd models.ProfileUpdate) (*models.User, error)
	SetDeviceToken(ctx context.Context, id primitive.ObjectID, token string) error
}

type TokenIssuer interface {
	GenerateJWT(role utils.Role, subject primitive.ObjectID) (string, error)
}

// UserHandler serves customer accounts.
type UserHandler struct {
	users  UserStore
	tokens TokenIssuer
}

func NewUserHandler(users UserStore, tokens TokenIssuer) *UserHandler {
	return &UserHandler{users: users, tokens: tokens}
}

type registerRequest struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	PhoneNumber string `json:"phoneNumber"`
}

func (h *UserHandler) Register(c echo.Context) error {
	var req registerRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	if strings.TrimSpace(req.Name) == "" {
		return utils.NewValidationError("Name is required")
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

	user := &models.User{
		Name:        strings.TrimSpace(req.Name),
		Email:       req.Email,
		Password:    string(hashedPassword),
		PhoneNumber: req.PhoneNumber,
	}
	if err := h.users.Create(ctx, user); err != nil {
		return err
	}

	return respond(c, http.StatusCreated, user, "User registered successfully")
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *UserHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if req.Email == "" || req.Password == "" {
		return utils.NewValidationError("Email and password are required")
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	user, err := h.users.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		return err
	}
	if user == nil || !passwordMatches(user.Password, req.Password) {
		return utils.NewUnauthorizedError("Invalid credentials")
	}

	token, err := h.tokens.GenerateJWT(utils.RoleCustomer, user.ID)
	if err != nil {
		return err
	}

	return respond(c, http.StatusOK, map[string]interface{}{
		"token": token,
		"user":  user,
	}, "Login successful")
}

func (h *UserHandler) GetProfile(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	user, err := h.users.FindByID(ctx, p.ID)
	if err != nil {
		return err
	}
	if user == nil {
		return utils.NewNotFoundError("User not found")
	}
	return respond(c, http.StatusOK, user, "Profile fetched successfully")
}

func (h *UserHandler) UpdateProfile(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}

	var upd models.ProfileUpdate
	if err := bind(c, &upd); err != nil {
		return err
	}
	if upd.Name != nil && strings.TrimSpace(*upd.Name) == "" {
		return utils.NewValidationError("Name cannot be empty")
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	user, err := h.users.UpdateProfile(ctx, p.ID, upd)
	if err != nil {
		return err
	}
	if user == nil {
		return utils.NewNotFoundError("User not found")
	}
	return respond(c, http.StatusOK, user, "Profile updated successfully")
}

type deviceTokenRequest struct {
	FCMToken string `json:"fcmToken"`
}

func (h *UserHandler) SetDeviceToken(c echo.Context) error {
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

	if err := h.users.SetDeviceToken(ctx, p.ID, req.FCMToken); err != nil {
		return err
	}
	return respond(c, http.StatusOK, nil, "Device token updated")
}

// Helper function to validate email format
func isValidEmail(email string) bool {
	_, err := mail.ParseAddress(email)
	return err == nil
}

func passwordMatches(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
