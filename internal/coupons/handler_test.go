package coupons

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edulist/backend/internal/models"
)

type fakeStore struct {
	created []*models.Coupon
	codes   map[string]bool
}

func (f *fakeStore) Create(_ context.Context, c *models.Coupon) error {
	if f.codes[c.Code] {
		return &pgconn.PgError{Code: "23505"}
	}
	if f.codes == nil {
		f.codes = map[string]bool{}
	}
	f.codes[c.Code] = true
	f.created = append(f.created, c)
	return nil
}

func (f *fakeStore) List(context.Context) ([]*models.Coupon, error) { return f.created, nil }

func (f *fakeStore) SetActive(_ context.Context, code string, active bool) error {
	if !f.codes[code] {
		return ErrNotFound
	}
	return nil
}

func newTestRouter(h *Handler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/admin/coupons", h.Create)
	r.GET("/admin/coupons", h.List)
	r.PATCH("/admin/coupons/:code", h.SetActive)
	return r
}

func doJSON(r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCreateCoupon(t *testing.T) {
	store := &fakeStore{}
	r := newTestRouter(NewHandler(store, nil))

	w := doJSON(r, http.MethodPost, "/admin/coupons", gin.H{"code": "DISCOUNT10", "discount_percentage": 10, "max_uses": 100})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	require.Len(t, store.created, 1)
	assert.True(t, store.created[0].IsActive)
	assert.Equal(t, 100, *store.created[0].MaxUses)

	w = doJSON(r, http.MethodPost, "/admin/coupons", gin.H{"code": "DISCOUNT10", "discount_percentage": 10})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestCreateCouponRejectsBadPercentage(t *testing.T) {
	r := newTestRouter(NewHandler(&fakeStore{}, nil))
	for _, pct := range []int{0, 101, -5} {
		w := doJSON(r, http.MethodPost, "/admin/coupons", gin.H{"code": "BAD", "discount_percentage": pct})
		assert.Equal(t, http.StatusBadRequest, w.Code, "pct %d", pct)
	}
}

func TestSetActiveUnknownCoupon(t *testing.T) {
	r := newTestRouter(NewHandler(&fakeStore{}, nil))
	w := doJSON(r, http.MethodPatch, "/admin/coupons/NOPE", gin.H{"is_active": false})
	assert.Equal(t, http.StatusNotFound, w.Code)
}
