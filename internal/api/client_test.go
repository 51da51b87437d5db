package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/order-console/internal/model"
)

func writeData(t *testing.T, w http.ResponseWriter, data any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(map[string]any{"data": data}))
}

func TestFetchOrderDetail_SendsRawTokenAndUnwrapsEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/order/o-1", r.URL.Path)
		assert.Equal(t, "tok-123", r.Header.Get("Authorization"))
		writeData(t, w, []map[string]any{{
			"id":       "line-1",
			"quantity": 2,
			"orderId":  "o-1",
			"Order": map[string]any{
				"orderStatus": "preparation",
				"userId":      "u-9",
				"Payment":     map[string]any{"id": "p-1", "paymentStatus": "paid", "paymentMethod": "cod"},
			},
			"Product": map[string]any{"name": "Tea", "price": 2.5},
		}})
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/api", "tok-123")
	lines, err := c.FetchOrderDetail(context.Background(), "o-1")
	require.NoError(t, err)
	require.Len(t, lines, 1)

	o := lines[0].Order
	assert.Equal(t, model.OrderStatusPreparation, o.StatusOrDefault())
	assert.Equal(t, model.PaymentStatusPaid, o.PaymentStatusOrDefault())
	assert.Equal(t, "u-9", o.UserID)
	assert.Equal(t, "p-1", o.PaymentID())
	assert.InDelta(t, 5.0, lines[0].LineTotal(), 0.001)
}

func TestFetchOrderDetail_EmptyLines(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeData(t, w, []any{})
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "t").FetchOrderDetail(context.Background(), "o-1")
	require.ErrorIs(t, err, ErrEmptyOrder)
}

func TestDo_NonOKIsStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"message":"boom"}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "t").FetchOrderDetail(context.Background(), "o-1")
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusInternalServerError, se.Code)
	assert.Equal(t, "boom", se.Message)
	assert.False(t, IsAuthError(err))
}

func TestDo_UnauthorizedIsAuthError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "bad").FetchOrders(context.Background())
	assert.True(t, IsAuthError(err))
}

func TestDo_RetriesOnRateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		writeData(t, w, []any{})
	}))
	defer srv.Close()

	orders, err := NewClient(srv.URL, "t").FetchOrders(context.Background())
	require.NoError(t, err)
	assert.Empty(t, orders)
	assert.Equal(t, int32(2), calls.Load())
}

func TestDo_GivesUpAfterMaxRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "0")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "t", WithMaxRetries(1)).FetchOrders(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max retries (1) exceeded")
}

func TestFetchOrders_NewestFirst(t *testing.T) {
	older := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := older.Add(time.Hour)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/order/all", r.URL.Path)
		writeData(t, w, []map[string]any{
			{"id": "old", "createdAt": older, "OrderDetails": []map[string]any{{"quantity": 3}}},
			{"id": "new", "createdAt": newer},
		})
	}))
	defer srv.Close()

	orders, err := NewClient(srv.URL, "t").FetchOrders(context.Background())
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, "new", orders[0].ID)
	assert.Equal(t, "old", orders[1].ID)
	assert.Equal(t, 3, orders[1].Items())
}

func TestUpdateStatus_SendsPatchBody(t *testing.T) {
	var gotPath string
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		writeData(t, w, map[string]any{"id": "o-1"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "t")
	require.NoError(t, c.UpdateOrderStatus(context.Background(), "o-1", model.OrderStatusDelivered))
	assert.Equal(t, "/order/o-1/status", gotPath)
	assert.Equal(t, "delivered", gotBody["orderStatus"])

	require.NoError(t, c.UpdatePaymentStatus(context.Background(), "o-1", model.PaymentStatusPaid))
	assert.Equal(t, "/order/o-1/payment", gotPath)
	assert.Equal(t, "paid", gotBody["paymentStatus"])
}

func TestLogin_StoresToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/logins":
			var creds model.Credentials
			require.NoError(t, json.NewDecoder(r.Body).Decode(&creds))
			assert.Equal(t, "admin@example.com", creds.Email)
			writeData(t, w, map[string]any{"id": "u-1", "email": creds.Email, "token": "jwt-abc"})
		case "/auth/me":
			assert.Equal(t, "jwt-abc", r.Header.Get("Authorization"))
			writeData(t, w, map[string]any{"id": "u-1", "username": "admin"})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	user, err := c.Login(context.Background(), model.Credentials{Email: "admin@example.com", Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, "jwt-abc", user.Token)
	assert.Equal(t, "jwt-abc", c.Token())

	me, err := c.CurrentUser(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "admin", me.Username)
}

func TestDo_GetRequiresOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "t")
	_, err := c.FetchOrderDetail(context.Background(), "o-1")
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusNoContent, se.Code)

	require.NoError(t, c.UpdateOrderStatus(context.Background(), "o-1", model.OrderStatusDelivered))
}

func TestSetToken_ConcurrentWithRequests(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeData(t, w, map[string]any{"id": "u-1"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "a")
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			c.SetToken(fmt.Sprintf("tok-%d", i))
		}
	}()
	for i := 0; i < 20; i++ {
		_, err := c.CurrentUser(context.Background())
		require.NoError(t, err)
	}
	<-done
	assert.Equal(t, "tok-99", c.Token())
}

func TestLogin_FailureKeepsToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "old")
	_, err := c.Login(context.Background(), model.Credentials{Email: "a@b.c", Password: "x"})
	require.True(t, IsAuthError(err))
	assert.Equal(t, "old", c.Token())
}
