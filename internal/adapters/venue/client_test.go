package venue_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zonebet/engine/internal/adapters/venue"
	"github.com/zonebet/engine/internal/domain"
)

func TestOpenPosition_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/positions/open", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-API-Key"))

		var req struct {
			Side     string  `json:"side"`
			Notional float64 `json:"notional"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "SHORT", req.Side)
		assert.InDelta(t, 350.0, req.Notional, 1e-9)

		json.NewEncoder(w).Encode(map[string]string{"positionRef": "pos-123", "status": "FILLED"})
	}))
	defer srv.Close()

	client := venue.NewClient(srv.URL, "test-key", false)
	ref, err := client.OpenPosition(context.Background(), domain.DirectionDown, 350)
	require.NoError(t, err)
	assert.Equal(t, "pos-123", ref)
}

func TestOpenPosition_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"errorMsg": "insufficient margin"})
	}))
	defer srv.Close()

	client := venue.NewClient(srv.URL, "", false)
	_, err := client.OpenPosition(context.Background(), domain.DirectionUp, 100)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insufficient margin")
}

func TestClosePosition_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"closeRef": "close-9"})
	}))
	defer srv.Close()

	client := venue.NewClient(srv.URL, "", false)
	ref, err := client.ClosePosition(context.Background(), "pos-123", 350)
	require.NoError(t, err)
	assert.Equal(t, "close-9", ref)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClosePosition_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte("unknown position"))
	}))
	defer srv.Close()

	client := venue.NewClient(srv.URL, "", false)
	_, err := client.ClosePosition(context.Background(), "ghost", 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown position")
	assert.Equal(t, int32(1), calls.Load())
}

func TestAccountBalance(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/account/balance", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]float64{"total": 1000, "free": 400})
	}))
	defer srv.Close()

	client := venue.NewClient(srv.URL, "", false)
	bal, err := client.AccountBalance(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 1000.0, bal.Total, 1e-9)
	assert.InDelta(t, 400.0, bal.Free, 1e-9)
}

func TestDryRun_NeverHitsNetwork(t *testing.T) {
	client := venue.NewClient("http://venue.invalid", "", true)

	ref, err := client.OpenPosition(context.Background(), domain.DirectionUp, 100)
	require.NoError(t, err)
	assert.NotEmpty(t, ref)

	closeRef, err := client.ClosePosition(context.Background(), ref, 100)
	require.NoError(t, err)
	assert.NotEmpty(t, closeRef)
}
