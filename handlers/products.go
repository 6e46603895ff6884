package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/Madhav-Gupta-28/dropkart-backend-go/models"
	"github.com/Madhav-Gupta-28/dropkart-backend-go/utils"
	"github.com/labstack/echo/v4"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type ProductStore interface {
	List(ctx context.Context, category string) ([]models.Product, error)
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Product, error)
	Create(ctx context.Context, p *models.Product) error
}

type ProductHandler struct {
	products ProductStore
}

func NewProductHandler(products ProductStore) *ProductHandler {
	return &ProductHandler{products: products}
}

func (h *ProductHandler) GetProducts(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	products, err := h.products.List(ctx, c.QueryParam("category"))
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, products, "Products fetched successfully")
}

func (h *ProductHandler) GetProduct(c echo.Context) error {
	id, err := objectIDParam(c, "id")
	if err != nil {
		return err
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	product, err := h.products.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if product == nil {
		return utils.NewNotFoundError("Product not found")
	}
	return respond(c, http.StatusOK, product, "Product fetched successfully")
}

type createProductRequest struct {
	Name          string   `json:"name"`
	Description   string   `json:"description"`
	Category      string   `json:"category"`
	Unit          string   `json:"unit"`
	CurrentPrice  float64  `json:"currentPrice"`
	OriginalPrice float64  `json:"originalPrice"`
	Images        []string `json:"images"`
	Stock         int      `json:"stock"`
}

func (h *ProductHandler) CreateProduct(c echo.Context) error {
	var req createProductRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if strings.TrimSpace(req.Name) == "" {
		return utils.NewValidationError("Product name is required")
	}
	if req.CurrentPrice <= 0 {
		return utils.NewValidationError("currentPrice must be positive")
	}
	if req.Stock < 0 {
		return utils.NewValidationError("stock cannot be negative")
	}
	if req.OriginalPrice == 0 {
		req.OriginalPrice = req.CurrentPrice
	}
	if req.Images == nil {
		req.Images = []string{}
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	product := &models.Product{
		Name:          strings.TrimSpace(req.Name),
		Description:   req.Description,
		Category:      req.Category,
		Unit:          req.Unit,
		CurrentPrice:  req.CurrentPrice,
		OriginalPrice: req.OriginalPrice,
		Images:        req.Images,
		Stock:         req.Stock,
	}
	if err := h.products.Create(ctx, product); err != nil {
		return err
	}
	return respond(c, http.StatusCreated, product, "Product created successfully")
}
