package crust

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const orderCID = "QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG"

func TestPlaceStorageOrder(t *testing.T) {
	var got rpcRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%d,"result":{"txHash":"0xaa","blockHash":"0xbb"}}`, got.ID)
	}))
	defer srv.Close()

	c := New(srv.URL, 5, 600)

	receipt, err := c.PlaceStorageOrder(context.Background(), orderCID, 4096, "bucket-uuid-1")
	require.NoError(t, err)
	assert.Equal(t, "0xaa", receipt.TxHash)
	assert.Equal(t, "0xbb", receipt.BlockHash)

	assert.Equal(t, "2.0", got.JSONRPC)
	assert.Equal(t, "market.placeStorageOrder", got.Method)

	params := got.Params.(map[string]any)
	assert.Equal(t, orderCID, params["cid"])
	assert.EqualValues(t, 4096, params["size"])
	assert.EqualValues(t, 5, params["tips"])
	assert.Equal(t, "bucket-uuid-1", params["memo"])
}

func TestRequestIDsIncrement(t *testing.T) {
	var ids []int64

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		ids = append(ids, req.ID)
		fmt.Fprint(w, `{"jsonrpc":"2.0","result":{"txHash":"0x1"}}`)
	}))
	defer srv.Close()

	c := New(srv.URL, 0, 600)

	_, err := c.PlaceStorageOrder(context.Background(), orderCID, 1, "m")
	require.NoError(t, err)
	_, err = c.PlaceStorageOrder(context.Background(), orderCID, 1, "m")
	require.NoError(t, err)

	require.Len(t, ids, 2)
	assert.Equal(t, ids[0]+1, ids[1])
}

func TestCallSurfacesRPCError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"jsonrpc":"2.0","error":{"code":-32000,"message":"insufficient balance"}}`)
	}))
	defer srv.Close()

	c := New(srv.URL, 0, 600)

	_, err := c.PlaceStorageOrder(context.Background(), orderCID, 1, "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insufficient balance")
	assert.Contains(t, err.Error(), "-32000")
}

func TestCallSurfacesHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New(srv.URL, 0, 600)

	_, err := c.GetOrderStatus(context.Background(), orderCID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestGetOrderStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "market.fileInfo", req.Method)

		fmt.Fprintf(w, `{"jsonrpc":"2.0","result":{"cid":"%s","size":4096,"expiresAt":12345,"replicaCount":30,"found":true}}`, orderCID)
	}))
	defer srv.Close()

	c := New(srv.URL, 0, 600)

	status, err := c.GetOrderStatus(context.Background(), orderCID)
	require.NoError(t, err)
	assert.True(t, status.Found)
	assert.EqualValues(t, 4096, status.Size)
	assert.Equal(t, 30, status.ReplicaCount)
}

func TestPlaceStorageOrderRespectsContext(t *testing.T) {
	// One token per minute: the second call has to wait and the canceled
	// context aborts it at the limiter
	c := New("http://unreachable.invalid", 0, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.PlaceStorageOrder(ctx, orderCID, 1, "m")
	require.Error(t, err)
}
