package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Madhav-Gupta-28/dropkart-backend-go/utils"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestErrorHandler(t *testing.T) {
	render := func(t *testing.T, err error) (int, utils.ApiResponse) {
		t.Helper()
		e := echo.New()
		rec := httptest.NewRecorder()
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

		ErrorHandler(zap.NewNop())(err, c)

		var body utils.ApiResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		return rec.Code, body
	}

	t.Run("should pass an api error through", func(t *testing.T) {
		status, body := render(t, utils.NewAttemptsExceededError())
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, utils.CodeAttemptsExceeded, body.Code)
		assert.False(t, body.Success)
	})

	t.Run("should map echo errors to codes", func(t *testing.T) {
		status, body := render(t, echo.ErrNotFound)
		assert.Equal(t, http.StatusNotFound, status)
		assert.Equal(t, utils.CodeNotFound, body.Code)
	})

	t.Run("should hide unexpected errors", func(t *testing.T) {
		status, body := render(t, errors.New("mongo: connection reset"))
		assert.Equal(t, http.StatusInternalServerError, status)
		assert.Equal(t, utils.CodeInternal, body.Code)
		assert.Equal(t, "internal server error", body.Message)
	})
}

func TestParseObjectID(t *testing.T) {
	t.Run("should reject malformed ids", func(t *testing.T) {
		_, err := parseObjectID("not-an-id", "productId")
		assert.ErrorIs(t, err, &utils.ApiError{Code: utils.CodeValidation})
	})
}

func TestOptionalBool(t *testing.T) {
	e := echo.New()
	query := func(q string) echo.Context {
		return e.NewContext(httptest.NewRequest(http.MethodGet, "/?"+q, nil), httptest.NewRecorder())
	}

	t.Run("should leave an absent filter unset", func(t *testing.T) {
		v, err := optionalBool(query(""), "available")
		require.NoError(t, err)
		assert.Nil(t, v)
	})

	t.Run("should parse a present filter", func(t *testing.T) {
		v, err := optionalBool(query("available=false"), "available")
		require.NoError(t, err)
		require.NotNil(t, v)
		assert.False(t, *v)
	})

	t.Run("should reject garbage", func(t *testing.T) {
		_, err := optionalBool(query("available=maybe"), "available")
		assert.ErrorIs(t, err, &utils.ApiError{Code: utils.CodeValidation})
	})
}
