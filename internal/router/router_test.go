package router

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"coffee_pos/internal/config"
	"coffee_pos/internal/kds"
	"coffee_pos/internal/ledger"
	"coffee_pos/internal/model"

	"github.com/gin-gonic/gin"
	rd "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// newTestRouter：真实 SQLite 账本 + 不可达的 Redis（限流与镜像读会降级放行/回源）。
func newTestRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "ledger.db")), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, ledger.AutoMigrate(db))

	rdb := rd.NewClient(&rd.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond})
	cfg := config.AppConfig{
		CommitRateLimit:   100,
		CommitRateWindow:  time.Second,
		StockCacheTTL:     time.Hour,
		PreloadAdminToken: "test-admin-token",
	}

	return Setup(ledger.New(db), rdb, kds.NewHub(), cfg), db
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestCommitEndpoint(t *testing.T) {
	r, _ := newTestRouter(t)
	headers := map[string]string{"X-Business-ID": "biz-1"}

	payload := map[string]interface{}{
		"order_id":       "55555555-5555-5555-5555-555555555555",
		"is_paid":        true,
		"payment_method": "cash",
		"quick_order":    true,
		"items": []map[string]interface{}{
			{"menu_item_id": 1, "name": "latte", "quantity": 2, "price": 1400},
		},
	}

	w := doJSON(t, r, http.MethodPost, "/api/orders/commit", payload, headers)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	env := decodeEnvelope(t, w)
	assert.EqualValues(t, 0, env["code"])
	data := env["data"].(map[string]interface{})
	assert.EqualValues(t, 1, data["order_number"])

	// 同一订单 id 回放 → 409
	w = doJSON(t, r, http.MethodPost, "/api/orders/commit", payload, headers)
	assert.Equal(t, http.StatusConflict, w.Code)

	// 租户无法解析 → 400
	w = doJSON(t, r, http.MethodPost, "/api/orders/commit", payload, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCommitEditEndpoint(t *testing.T) {
	r, _ := newTestRouter(t)
	headers := map[string]string{"X-Business-ID": "biz-1"}

	create := map[string]interface{}{
		"order_id": "66666666-6666-6666-6666-666666666666",
		"items": []map[string]interface{}{
			{"menu_item_id": 1, "name": "latte", "quantity": 2, "price": 1400},
			{"menu_item_id": 2, "name": "croissant", "quantity": 1, "price": 900},
		},
	}
	w := doJSON(t, r, http.MethodPost, "/api/orders/commit", create, headers)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	edit := map[string]interface{}{
		"order_id":  "66666666-6666-6666-6666-666666666666",
		"edit_mode": true,
		"refund":    true,
		"previous_total": 3700,
		"items": []map[string]interface{}{
			{"menu_item_id": 1, "name": "latte", "quantity": 2, "price": 1400},
		},
	}
	w = doJSON(t, r, http.MethodPost, "/api/orders/commit", edit, headers)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// 编辑不存在的订单 → 404
	edit["order_id"] = "no-such-order"
	w = doJSON(t, r, http.MethodPost, "/api/orders/commit", edit, headers)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestKDSAndStatusEndpoints(t *testing.T) {
	r, _ := newTestRouter(t)
	headers := map[string]string{"X-Business-ID": "biz-1"}

	create := map[string]interface{}{
		"order_id": "77777777-7777-7777-7777-777777777777",
		"items": []map[string]interface{}{
			{"menu_item_id": 1, "name": "latte", "quantity": 1, "price": 1400},
		},
	}
	w := doJSON(t, r, http.MethodPost, "/api/orders/commit", create, headers)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, r, http.MethodGet, "/api/kds/orders?business_id=biz-1", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	env := decodeEnvelope(t, w)
	assert.Len(t, env["data"], 1)

	// 其它租户什么都看不到
	w = doJSON(t, r, http.MethodGet, "/api/kds/orders?business_id=biz-other", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	env = decodeEnvelope(t, w)
	assert.Empty(t, env["data"])

	w = doJSON(t, r, http.MethodPatch, "/api/orders/77777777-7777-7777-7777-777777777777/status",
		map[string]string{"status": model.StatusReady}, headers)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// 非法迁移 → 409
	w = doJSON(t, r, http.MethodPatch, "/api/orders/77777777-7777-7777-7777-777777777777/status",
		map[string]string{"status": model.StatusReady}, headers)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestLoyaltyEndpoints(t *testing.T) {
	r, _ := newTestRouter(t)
	headers := map[string]string{"X-Business-ID": "biz-1"}

	w := doJSON(t, r, http.MethodGet, "/api/loyalty/0529999999", nil, headers)
	assert.Equal(t, http.StatusNotFound, w.Code)

	create := map[string]interface{}{
		"order_id":       "88888888-8888-8888-8888-888888888888",
		"customer_phone": "0521234567",
		"items": []map[string]interface{}{
			{"menu_item_id": 1, "name": "latte", "quantity": 3, "price": 1400},
		},
	}
	w = doJSON(t, r, http.MethodPost, "/api/orders/commit", create, headers)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, r, http.MethodGet, "/api/loyalty/0521234567", nil, headers)
	require.Equal(t, http.StatusOK, w.Code)
	env := decodeEnvelope(t, w)
	card := env["data"].(map[string]interface{})
	assert.EqualValues(t, 3, card["points_balance"])

	w = doJSON(t, r, http.MethodPost, "/api/loyalty/0521234567/redeem",
		map[string]int{"points": 100}, headers)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doJSON(t, r, http.MethodPost, "/api/loyalty/0521234567/redeem",
		map[string]int{"points": 2}, headers)
	require.Equal(t, http.StatusOK, w.Code)
	env = decodeEnvelope(t, w)
	card = env["data"].(map[string]interface{})
	assert.EqualValues(t, 1, card["points_balance"])
}

func TestInventoryEndpoints(t *testing.T) {
	r, db := newTestRouter(t)
	headers := map[string]string{"X-Business-ID": "biz-1"}

	inv := model.InventoryItem{BusinessID: "biz-1", Name: "milk", Unit: "L", CurrentStock: 12.5}
	require.NoError(t, db.Create(&inv).Error)

	w := doJSON(t, r, http.MethodGet, "/api/inventory", nil, headers)
	require.Equal(t, http.StatusOK, w.Code)
	env := decodeEnvelope(t, w)
	assert.Len(t, env["data"], 1)

	// 镜像不可达 → 回源数据库
	w = doJSON(t, r, http.MethodGet, "/api/inventory/stock/1", nil, headers)
	require.Equal(t, http.StatusOK, w.Code)
	env = decodeEnvelope(t, w)
	data := env["data"].(map[string]interface{})
	assert.EqualValues(t, 12.5, data["current_stock"])
	assert.Equal(t, "db", data["source"])

	// 预热接口必须带管理员令牌
	w = doJSON(t, r, http.MethodPost, "/api/inventory/preload/1", nil, headers)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestPing(t *testing.T) {
	r, _ := newTestRouter(t)
	w := doJSON(t, r, http.MethodGet, "/ping", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
