package sync

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"coffee_pos/internal/ledger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientCommit(t *testing.T) {
	var gotBusiness string
	var gotPayload CommitPayload

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/orders/commit", r.URL.Path)
		gotBusiness = r.Header.Get("X-Business-ID")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))

		json.NewEncoder(w).Encode(map[string]interface{}{
			"code": 0,
			"msg":  "ok",
			"data": ledger.CommitResult{OrderID: gotPayload.OrderID, OrderNumber: 7},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "biz-1")
	res, err := c.Commit(context.Background(), CommitPayload{OrderID: "o-1", BusinessID: "biz-1"})
	require.NoError(t, err)
	assert.Equal(t, 7, res.OrderNumber)
	assert.Equal(t, "biz-1", gotBusiness)
	assert.Equal(t, "o-1", gotPayload.OrderID)
}

func TestClientCommitConflictMapsToDuplicate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]interface{}{"code": 409, "msg": "order already exists"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "biz-1")
	_, err := c.Commit(context.Background(), CommitPayload{OrderID: "o-1"})
	require.ErrorIs(t, err, ledger.ErrDuplicateOrder)
}

func TestClientCommitServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "biz-1")
	_, err := c.Commit(context.Background(), CommitPayload{OrderID: "o-1"})
	require.Error(t, err)
	require.NotErrorIs(t, err, ledger.ErrDuplicateOrder)
}

func TestClientOnline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ping" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "biz-1")
	assert.True(t, c.Online(context.Background()))

	srv.Close()
	assert.False(t, c.Online(context.Background()))
}

func TestClientPushCustomer(t *testing.T) {
	var gotPath string
	var gotBody map[string]string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPatch, r.Method)
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		json.NewEncoder(w).Encode(map[string]interface{}{"code": 0})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "biz-1")
	require.NoError(t, c.PushCustomer(context.Background(), "o-1", "Noa", "0525551234"))
	assert.Equal(t, "/api/orders/o-1/customer", gotPath)
	assert.Equal(t, "Noa", gotBody["customer_name"])
	assert.Equal(t, "0525551234", gotBody["customer_phone"])
}
