package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bakery/backoffice/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testLine struct {
	ProductID string `json:"product_id" binding:"required,uuid"`
}

type testOrder struct {
	Reason string     `json:"reason" binding:"required,oneof=defective damaged"`
	Notes  string     `json:"notes" binding:"max=5"`
	Items  []testLine `json:"items" binding:"required,min=1,dive"`
}

func TestHandleValidationError(t *testing.T) {
	SetupValidator()

	router := gin.New()
	router.Use(RequestID())
	router.POST("/test", func(c *gin.Context) {
		var req testOrder
		if err := c.ShouldBindJSON(&req); err != nil {
			HandleValidationError(c, err)
			return
		}
		c.Status(http.StatusOK)
	})

	post := func(body string) (*httptest.ResponseRecorder, dto.Response) {
		req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		var resp dto.Response
		if w.Code != http.StatusOK {
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		}
		return w, resp
	}

	t.Run("field errors use json names", func(t *testing.T) {
		w, resp := post(`{"reason": "stale", "notes": "too long", "items": [{"product_id": "nope"}]}`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		require.NotNil(t, resp.Error)
		assert.Equal(t, dto.ErrCodeValidation, resp.Error.Code)
		assert.Equal(t, "validation", resp.Error.Kind)
		assert.Equal(t, w.Header().Get("X-Request-ID"), resp.Error.RequestID)

		messages := map[string]string{}
		for _, d := range resp.Error.Details {
			messages[d.Field] = d.Message
		}
		assert.Equal(t, "Must be one of: defective damaged", messages["reason"])
		assert.Equal(t, "Must be at most 5 characters", messages["notes"])
		assert.Equal(t, "Invalid UUID format", messages["items[0].product_id"])
	})

	t.Run("empty items", func(t *testing.T) {
		w, resp := post(`{"reason": "damaged", "items": []}`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		require.Len(t, resp.Error.Details, 1)
		assert.Equal(t, "items", resp.Error.Details[0].Field)
	})

	t.Run("malformed json", func(t *testing.T) {
		w, resp := post(`{"reason":`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		require.Len(t, resp.Error.Details, 1)
		assert.Equal(t, "body", resp.Error.Details[0].Field)
	})

	t.Run("valid", func(t *testing.T) {
		w, _ := post(`{"reason": "damaged", "items": [{"product_id": "7d1c1f0e-9c55-4f4e-8a57-2b8a2c5b0f11"}]}`)
		assert.Equal(t, http.StatusOK, w.Code)
	})
}
