package duplicate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPCheckerRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req CheckRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "FREF-1", req.FileReferenceID)

		json.NewEncoder(w).Encode(CheckResponse{
			Instructions: []InstructionResult{{
				BankReferenceID: "GCB2609010000001W",
				Transactions: []TransactionResult{
					{ChildBankReferenceID: "GCC2609010000002W", IsDuplicate: true},
				},
			}},
		})
	}))
	defer srv.Close()

	checker := NewHTTPChecker(srv.URL, 2*time.Second)
	resp, err := checker.Check(context.Background(), &CheckRequest{FileReferenceID: "FREF-1"})
	require.NoError(t, err)

	assert.False(t, resp.IsFileReject)
	require.Len(t, resp.Instructions, 1)
	assert.True(t, resp.Instructions[0].Transactions[0].IsDuplicate)
}

func TestHTTPCheckerNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	checker := NewHTTPChecker(srv.URL, 2*time.Second)
	_, err := checker.Check(context.Background(), &CheckRequest{FileReferenceID: "FREF-1"})
	assert.ErrorContains(t, err, "502")
}

func TestHTTPCheckerTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	checker := NewHTTPChecker(srv.URL, 20*time.Millisecond)
	_, err := checker.Check(context.Background(), &CheckRequest{FileReferenceID: "FREF-1"})
	assert.Error(t, err)
}
