package payments

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edulist/backend/internal/middleware"
	"github.com/edulist/backend/internal/models"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func newRouter(svc Payments, userID uuid.UUID) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewHandler(svc, nil)
	r := gin.New()
	r.POST("/payments/webhook", h.Webhook)
	authed := r.Group("")
	authed.Use(func(c *gin.Context) { c.Set(middleware.ContextUserID, userID) })
	authed.POST("/orders", h.CreateOrder)
	authed.POST("/orders/preview", h.PreviewOrder)
	authed.POST("/coupons/validate", h.ValidateCoupon)
	authed.GET("/subscriptions/status", h.SubscriptionStatus)
	return r
}

func send(t *testing.T, r http.Handler, method, path string, body any, header map[string]string) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func TestHTTPOrderToSettlement(t *testing.T) {
	f := newFixture(t)
	user := uuid.New()
	f.world.addInstitution(user, 3)
	f.world.coupons["DISCOUNT10"] = &models.Coupon{Code: "DISCOUNT10", DiscountPercentage: 10, IsActive: true}
	r := newRouter(f.svc, user)

	code, env := send(t, r, http.MethodPost, "/orders/preview", gin.H{"planType": "yearly", "couponCode": "DISCOUNT10"}, nil)
	require.Equal(t, http.StatusOK, code, env.Error)
	var preview PreviewResponse
	require.NoError(t, json.Unmarshal(env.Data, &preview))
	assert.Equal(t, "2697.30", preview.Amount)
	assert.Equal(t, 10, preview.DiscountPercentage)
	assert.Zero(t, f.provider.n)

	code, env = send(t, r, http.MethodPost, "/orders", gin.H{"planType": "yearly", "couponCode": "DISCOUNT10"}, nil)
	require.Equal(t, http.StatusCreated, code, env.Error)
	var order OrderResult
	require.NoError(t, json.Unmarshal(env.Data, &order))
	assert.Equal(t, "2697.30", order.Amount)
	assert.Equal(t, "299.70", order.Discount)
	assert.Equal(t, 3, order.TotalInactiveCourses)

	code, env = send(t, r, http.MethodGet, "/subscriptions/status?orderId="+order.OrderID, nil, nil)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"status":"pending"}`, string(env.Data))

	sig := Sign(testSecret, order.OrderID, "pay_http")
	code, env = send(t, r, http.MethodPost, "/payments/webhook", gin.H{"orderId": order.OrderID, "paymentId": "pay_http", "signature": sig}, nil)
	require.Equal(t, http.StatusOK, code, env.Error)
	var settled Settlement
	require.NoError(t, json.Unmarshal(env.Data, &settled))
	assert.Equal(t, OutcomeSettled, settled.Status)
	assert.Equal(t, 3, *settled.ActivatedCourses)

	// redelivery, signature in header this time
	code, env = send(t, r, http.MethodPost, "/payments/webhook", gin.H{"orderId": order.OrderID, "paymentId": "pay_http"},
		map[string]string{SignatureHeader: sig})
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"status":"already_processed"}`, string(env.Data))

	code, env = send(t, r, http.MethodGet, "/subscriptions/status?orderId="+order.OrderID, nil, nil)
	require.Equal(t, http.StatusOK, code)
	var st Status
	require.NoError(t, json.Unmarshal(env.Data, &st))
	assert.Equal(t, "active", st.Status)
	assert.Equal(t, models.PlanYearly, *st.PlanType)
}

func TestHTTPErrorStatuses(t *testing.T) {
	f := newFixture(t)
	user := uuid.New()
	f.world.addInstitution(user, 1)
	r := newRouter(f.svc, user)

	code, env := send(t, r, http.MethodPost, "/orders", gin.H{"planType": "weekly"}, nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "invalid plan type", env.Error)

	code, _ = send(t, r, http.MethodPost, "/orders", gin.H{"planType": "yearly", "courseIds": []string{"not-a-uuid"}}, nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, env = send(t, r, http.MethodPost, "/coupons/validate", gin.H{"planType": "yearly", "couponCode": "GHOST"}, nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "invalid coupon: coupon not found", env.Error)

	code, env = send(t, r, http.MethodPost, "/payments/webhook", gin.H{"orderId": "order_x", "paymentId": "pay_x", "signature": "deadbeef"}, nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "invalid signature", env.Error)

	code, env = send(t, r, http.MethodPost, "/payments/webhook",
		gin.H{"orderId": "order_x", "paymentId": "pay_x", "signature": Sign(testSecret, "order_x", "pay_x")}, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, "payment context not found", env.Error)

	f.provider.err = assert.AnError
	code, env = send(t, r, http.MethodPost, "/orders", gin.H{"planType": "monthly"}, nil)
	assert.Equal(t, http.StatusBadGateway, code)
	assert.Equal(t, "payment provider error", env.Error)

	other := newRouter(f.svc, uuid.New())
	code, _ = send(t, other, http.MethodPost, "/orders", gin.H{"planType": "monthly"}, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestStatusMapping(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(assert.AnError))
	assert.Equal(t, "internal error", Message(newError(KindInternal, "db exploded", assert.AnError)))
	assert.Equal(t, http.StatusUnprocessableEntity, HTTPStatus(newError(KindContextNotFound, "payment context not found", nil)))
	assert.Equal(t, http.StatusBadGateway, HTTPStatus(newError(KindProvider, "payment provider error", nil)))
}
