package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront-service/internal/cart"
	"storefront-service/internal/catalog"
	"storefront-service/internal/domain"
	"storefront-service/internal/render"
	"storefront-service/internal/session"
	"storefront-service/internal/store"
)

type testEnv struct {
	server   *httptest.Server
	client   *http.Client
	mem      *store.MemoryStore
	sessions *session.Manager
	carts    *cart.Service
}

// Helper for setting up tests with a chi router and handler
func setupTestChiServer(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	mem := store.NewMemoryStore()
	clothes, err := mem.CreateCategory(ctx, &domain.Category{Name: "Clothes", Slug: "clothes"})
	require.NoError(t, err)
	for _, p := range []domain.Product{
		{Type: domain.Bottomwear, Slug: "blue-jeans", Title: "Blue jeans", Price: decimal.RequireFromString("40.00")},
		{Type: domain.Bags, Slug: "tote", Title: "Tote", Price: decimal.RequireFromString("25.00")},
		{Type: domain.Topwear, Slug: "shirt", Title: "Shirt", Price: decimal.RequireFromString("20.00")},
		{Type: domain.Dresses, Slug: "gown", Title: "Gown", Price: decimal.RequireFromString("80.00")},
	} {
		p.CategoryID = clothes.ID
		_, err := mem.CreateProduct(ctx, &p)
		require.NoError(t, err)
	}

	pages, err := render.New()
	require.NoError(t, err)
	sessions := session.NewManager(rdb, session.Options{CookieName: "sid", TTL: time.Hour, JWTSecret: "s3cret"}, nil)
	carts := cart.NewService(mem, nil)
	handler := NewHTTPHandler(catalog.NewService(mem, mem, 5, nil), carts, sessions, pages, nil)

	router := chi.NewRouter()
	router.Use(sessions.Middleware)
	handler.RegisterRoutes(router)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	client := &http.Client{
		Jar: jar,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return &testEnv{server: server, client: client, mem: mem, sessions: sessions, carts: carts}
}

func (e *testEnv) do(t *testing.T, method, path string, form url.Values, asJSON bool) *http.Response {
	t.Helper()
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequest(method, e.server.URL+path, body)
	require.NoError(t, err)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if asJSON {
		req.Header.Set("Accept", "application/json")
	}
	res, err := e.client.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { res.Body.Close() })
	return res
}

func decodeMap(t *testing.T, res *http.Response) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(res.Body).Decode(&out))
	return out
}

func cartOf(t *testing.T, payload map[string]interface{}) map[string]interface{} {
	t.Helper()
	c, ok := payload["cart"].(map[string]interface{})
	require.True(t, ok, "payload has no cart: %v", payload)
	return c
}

func TestHTTPHandler_AddToCart_RedirectsWithFlash(t *testing.T) {
	env := setupTestChiServer(t)

	res := env.do(t, http.MethodGet, "/add-to-cart/bottomwear/blue-jeans/", nil, false)
	require.Equal(t, http.StatusSeeOther, res.StatusCode)
	assert.Equal(t, "/products/bottomwear/blue-jeans/", res.Header.Get("Location"))

	page := env.do(t, http.MethodGet, "/cart/", nil, false)
	require.Equal(t, http.StatusOK, page.StatusCode)
	html, err := io.ReadAll(page.Body)
	require.NoError(t, err)
	assert.Contains(t, string(html), cart.MsgAdded)
	assert.Contains(t, string(html), "Blue jeans")
	assert.Contains(t, string(html), "40.00")

	// the flash is shown once
	again := env.do(t, http.MethodGet, "/cart/", nil, false)
	html, err = io.ReadAll(again.Body)
	require.NoError(t, err)
	assert.NotContains(t, string(html), cart.MsgAdded)
}

func TestHTTPHandler_AddToCart_JSONIsIdempotent(t *testing.T) {
	env := setupTestChiServer(t)

	first := decodeMap(t, env.do(t, http.MethodGet, "/add-to-cart/bottomwear/blue-jeans/", nil, true))
	second := decodeMap(t, env.do(t, http.MethodGet, "/add-to-cart/bottomwear/blue-jeans/", nil, true))

	assert.Equal(t, true, first["created"])
	assert.Equal(t, false, second["created"])
	c := cartOf(t, second)
	assert.Len(t, c["products"], 1)
	assert.Equal(t, float64(1), c["total_products"])
	assert.Equal(t, "40", c["final_price"])
}

func TestHTTPHandler_ChangeQuantity(t *testing.T) {
	env := setupTestChiServer(t)
	env.do(t, http.MethodGet, "/add-to-cart/bags/tote/", nil, false)
	env.do(t, http.MethodPost, "/change-qty/bags/tote/", url.Values{"qty": {"2"}}, false)

	res := env.do(t, http.MethodPost, "/change-qty/bags/tote/", url.Values{"qty": {"5"}}, false)
	require.Equal(t, http.StatusSeeOther, res.StatusCode)
	assert.Equal(t, "/cart/", res.Header.Get("Location"))

	c := cartOf(t, decodeMap(t, env.do(t, http.MethodGet, "/cart/", nil, true)))
	assert.Equal(t, float64(5), c["total_products"])
	assert.Equal(t, "125", c["final_price"])
}

func TestHTTPHandler_ChangeQuantity_Invalid(t *testing.T) {
	env := setupTestChiServer(t)
	env.do(t, http.MethodGet, "/add-to-cart/bags/tote/", nil, false)
	env.do(t, http.MethodPost, "/change-qty/bags/tote/", url.Values{"qty": {"2"}}, false)

	for _, qty := range []string{"0", "-1", "abc", "", "1000", "9223372036854775807", "99999999999999999999"} {
		res := env.do(t, http.MethodPost, "/change-qty/bags/tote/", url.Values{"qty": {qty}}, false)
		assert.Equal(t, http.StatusBadRequest, res.StatusCode, "qty=%q", qty)
	}

	c := cartOf(t, decodeMap(t, env.do(t, http.MethodGet, "/cart/", nil, true)))
	assert.Equal(t, float64(2), c["total_products"])
}

func TestHTTPHandler_ChangeQuantity_UpperBound(t *testing.T) {
	env := setupTestChiServer(t)
	env.do(t, http.MethodGet, "/add-to-cart/bags/tote/", nil, false)

	res := env.do(t, http.MethodPost, "/change-qty/bags/tote/", url.Values{"qty": {strconv.Itoa(domain.MaxQuantity)}}, false)
	require.Equal(t, http.StatusSeeOther, res.StatusCode)

	c := cartOf(t, decodeMap(t, env.do(t, http.MethodGet, "/cart/", nil, true)))
	assert.Equal(t, float64(domain.MaxQuantity), c["total_products"])
}

func TestHTTPHandler_ChangeQuantity_LineMissing(t *testing.T) {
	env := setupTestChiServer(t)

	res := env.do(t, http.MethodPost, "/change-qty/bags/tote/", url.Values{"qty": {"3"}}, false)

	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestHTTPHandler_RemoveFromCart(t *testing.T) {
	env := setupTestChiServer(t)
	env.do(t, http.MethodGet, "/add-to-cart/topwear/shirt/", nil, false)
	env.do(t, http.MethodGet, "/add-to-cart/dresses/gown/", nil, false)

	res := env.do(t, http.MethodGet, "/remove-from-cart/topwear/shirt/", nil, false)
	require.Equal(t, http.StatusSeeOther, res.StatusCode)
	assert.Equal(t, "/cart/", res.Header.Get("Location"))

	payload := decodeMap(t, env.do(t, http.MethodGet, "/cart/", nil, true))
	assert.Equal(t, []interface{}{cart.MsgAdded, cart.MsgAdded, cart.MsgRemoved}, payload["messages"])
	c := cartOf(t, payload)
	products := c["products"].([]interface{})
	require.Len(t, products, 1)
	assert.Equal(t, "gown", products[0].(map[string]interface{})["slug"])
	assert.Equal(t, "80", c["final_price"])
}

func TestHTTPHandler_RemoveFromCart_NotInCart(t *testing.T) {
	env := setupTestChiServer(t)
	env.do(t, http.MethodGet, "/add-to-cart/dresses/gown/", nil, false)

	res := env.do(t, http.MethodGet, "/remove-from-cart/bags/tote/", nil, false)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)

	c := cartOf(t, decodeMap(t, env.do(t, http.MethodGet, "/cart/", nil, true)))
	assert.Equal(t, "80", c["final_price"])
}

func TestHTTPHandler_NotFound(t *testing.T) {
	env := setupTestChiServer(t)

	tests := []struct {
		name string
		path string
	}{
		{"unknown variant tag", "/products/shoes/sneaker/"},
		{"unknown slug", "/products/bags/backpack/"},
		{"unknown category", "/category/furniture/"},
		{"add unknown variant", "/add-to-cart/shoes/sneaker/"},
		{"add unknown slug", "/add-to-cart/bags/backpack/"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := env.do(t, http.MethodGet, tt.path, nil, false)
			assert.Equal(t, http.StatusNotFound, res.StatusCode)
			assert.Equal(t, "application/json", res.Header.Get("Content-Type"))
		})
	}
}

func TestHTTPHandler_MainPage(t *testing.T) {
	env := setupTestChiServer(t)

	payload := decodeMap(t, env.do(t, http.MethodGet, "/", nil, true))

	products := payload["products"].([]interface{})
	require.Len(t, products, 4)
	assert.Equal(t, "topwear", products[0].(map[string]interface{})["type"])
	categories := payload["categories"].([]interface{})
	require.Len(t, categories, 1)
	assert.Equal(t, float64(4), categories[0].(map[string]interface{})["product_count"])
	assert.NotNil(t, payload["cart"])

	html := env.do(t, http.MethodGet, "/", nil, false)
	assert.Equal(t, http.StatusOK, html.StatusCode)
	assert.Equal(t, "text/html; charset=utf-8", html.Header.Get("Content-Type"))
}

func TestHTTPHandler_ProductDetail(t *testing.T) {
	env := setupTestChiServer(t)

	payload := decodeMap(t, env.do(t, http.MethodGet, "/products/bags/tote/", nil, true))

	assert.Equal(t, "bags", payload["ct_model"])
	product := payload["product"].(map[string]interface{})
	assert.Equal(t, "tote", product["slug"])
	assert.Equal(t, "25", product["price"])
}

func TestHTTPHandler_CategoryDetail(t *testing.T) {
	env := setupTestChiServer(t)

	payload := decodeMap(t, env.do(t, http.MethodGet, "/category/clothes/", nil, true))

	assert.Equal(t, "clothes", payload["category"].(map[string]interface{})["slug"])
	assert.Len(t, payload["products"], 4)
}

func TestHTTPHandler_SessionCartBindsToUser(t *testing.T) {
	env := setupTestChiServer(t)
	env.do(t, http.MethodGet, "/add-to-cart/dresses/gown/", nil, false)

	token, err := env.sessions.IssueToken("user-7", time.Hour)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodGet, env.server.URL+"/cart/", nil)
	require.NoError(t, err)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	res, err := env.client.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	bound, err := env.carts.ForUser(context.Background(), "user-7")
	require.NoError(t, err)
	require.Len(t, bound.Products, 1)
	assert.Equal(t, "gown", bound.Products[0].Slug)
}

func TestHTTPHandler_MissingSessionIsInternalError(t *testing.T) {
	mem := store.NewMemoryStore()
	handler := NewHTTPHandler(catalog.NewService(mem, mem, 5, nil), cart.NewService(mem, nil), nil, nil, nil)
	router := chi.NewRouter()
	handler.RegisterRoutes(router)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/cart/", nil))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.JSONEq(t, `{"error":"Internal server error"}`, rr.Body.String())
}
