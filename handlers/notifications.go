package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/Madhav-Gupta-28/dropkart-backend-go/models"
	"github.com/Madhav-Gupta-28/dropkart-backend-go/utils"
	"github.com/labstack/echo/v4"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type NotificationStore interface {
	ListForRecipient(ctx context.Context, kind models.RecipientKind, id primitive.ObjectID, page, limit int) ([]models.Notification, int64, error)
	UnreadCount(ctx context.Context, kind models.RecipientKind, id primitive.ObjectID) (int64, error)
	MarkRead(ctx context.Context, kind models.RecipientKind, recipientID, id primitive.ObjectID) (*models.Notification, error)
	MarkAllRead(ctx context.Context, kind models.RecipientKind, id primitive.ObjectID) (int64, error)
}

// NotificationHandler serves the in-app inbox of one kind of recipient.
type NotificationHandler struct {
	store NotificationStore
	kind  models.RecipientKind
}

func NewNotificationHandler(store NotificationStore, kind models.RecipientKind) *NotificationHandler {
	return &NotificationHandler{store: store, kind: kind}
}

type notificationPage struct {
	Notifications []models.Notification `json:"notifications"`
	Page          int                   `json:"page"`
	Limit         int                   `json:"limit"`
	Total         int64                 `json:"total"`
}

func (h *NotificationHandler) List(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}

	page, err := positiveQueryInt(c, "page", 1)
	if err != nil {
		return err
	}
	limit, err := positiveQueryInt(c, "limit", defaultPageSize)
	if err != nil {
		return err
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	list, total, err := h.store.ListForRecipient(ctx, h.kind, p.ID, page, limit)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, notificationPage{
		Notifications: list,
		Page:          page,
		Limit:         limit,
		Total:         total,
	}, "Notifications fetched successfully")
}

func (h *NotificationHandler) UnreadCount(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	n, err := h.store.UnreadCount(ctx, h.kind, p.ID)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, map[string]int64{"count": n}, "Unread count fetched")
}

func (h *NotificationHandler) MarkRead(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	id, err := objectIDParam(c, "id")
	if err != nil {
		return err
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	n, err := h.store.MarkRead(ctx, h.kind, p.ID, id)
	if err != nil {
		return err
	}
	if n == nil {
		return utils.NewNotFoundError("Notification not found")
	}
	return respond(c, http.StatusOK, n, "Notification marked as read")
}

func (h *NotificationHandler) MarkAllRead(c echo.Context) error {
	p, err := principal(c)
	if err != nil {
		return err
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	n, err := h.store.MarkAllRead(ctx, h.kind, p.ID)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, map[string]int64{"updated": n}, "All notifications marked as read")
}

func positiveQueryInt(c echo.Context, name string, fallback int) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, utils.NewValidationError(name + " must be a positive integer")
	}
	return n, nil
}
