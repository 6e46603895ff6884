package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/Madhav-Gupta-28/dropkart-backend-go/middleware"
	"github.com/Madhav-Gupta-28/dropkart-backend-go/utils"
	"github.com/labstack/echo/v4"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

const requestTimeout = 10 * time.Second

// ErrorHandler renders every failure in the response envelope. Anything that
// is not an ApiError or an echo error is logged and reported as a 500.
func ErrorHandler(logger *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var apiErr *utils.ApiError
		var httpErr *echo.HTTPError
		switch {
		case errors.As(err, &apiErr):
			if apiErr.StatusCode == 0 {
				apiErr = utils.NewApiError(http.StatusInternalServerError, apiErr.Code, apiErr.Message)
			}
		case errors.As(err, &httpErr):
			msg, ok := httpErr.Message.(string)
			if !ok {
				msg = http.StatusText(httpErr.Code)
			}
			apiErr = utils.NewApiError(httpErr.Code, codeForStatus(httpErr.Code), msg)
		default:
			logger.Error("request failed",
				zap.String("method", c.Request().Method),
				zap.String("path", c.Path()),
				zap.String("requestId", c.Response().Header().Get(echo.HeaderXRequestID)),
				zap.Error(err))
			apiErr = utils.NewApiError(http.StatusInternalServerError, utils.CodeInternal, "internal server error")
		}

		body := utils.ErrorResponse(apiErr)
		var writeErr error
		if c.Request().Method == http.MethodHead {
			writeErr = c.NoContent(apiErr.StatusCode)
		} else {
			writeErr = c.JSON(apiErr.StatusCode, body)
		}
		if writeErr != nil {
			logger.Warn("write error response", zap.Error(writeErr))
		}
	}
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusNotFound:
		return utils.CodeNotFound
	case http.StatusUnauthorized:
		return utils.CodeUnauthorized
	case http.StatusForbidden:
		return utils.CodeForbidden
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return utils.CodeValidation
	}
	if status >= 500 {
		return utils.CodeInternal
	}
	return http.StatusText(status)
}

func respond(c echo.Context, status int, data interface{}, message string) error {
	return c.JSON(status, utils.NewApiResponse(status, data, message))
}

// requestContext bounds store calls made on behalf of a request.
func requestContext(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), requestTimeout)
}

func bind(c echo.Context, v interface{}) error {
	if err := c.Bind(v); err != nil {
		return utils.NewValidationError("Invalid request format")
	}
	return nil
}

func principal(c echo.Context) (*utils.Principal, error) {
	p, ok := middleware.PrincipalFrom(c)
	if !ok {
		return nil, utils.NewUnauthorizedError("Not authenticated")
	}
	return p, nil
}

func objectIDParam(c echo.Context, name string) (primitive.ObjectID, error) {
	return parseObjectID(c.Param(name), name)
}

func parseObjectID(hex, field string) (primitive.ObjectID, error) {
	id, err := primitive.ObjectIDFromHex(hex)
	if err != nil {
		return primitive.NilObjectID, utils.NewValidationError("Invalid " + field)
	}
	return id, nil
}
