package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecuteUnwrapsEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/agents/execute", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.True(t, strings.HasPrefix(r.Header.Get("X-Request-ID"), "req_"))

		var req ExecuteRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "상품 등록", req.Request)
		require.NotNil(t, req.Context)
		assert.Equal(t, 7, req.Context.SellerNo)

		fmt.Fprint(w, `{"success":true,"data":{"thread_id":"t1","status":"accepted"}}`)
	}))
	defer srv.Close()

	client := NewClient(srv.URL+"/api/v1", "tok")
	resp, err := client.Execute(context.Background(), &ExecuteRequest{
		Request: "상품 등록",
		Context: &ExecuteContext{SellerNo: 7},
	})
	require.NoError(t, err)
	assert.Equal(t, "t1", resp.ThreadID)
	assert.Equal(t, "accepted", resp.Status)
}

func TestExecuteBackendError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"success":false,"error":{"code":"RATE_LIMITED","message":"slow down"}}`)
	}))
	defer srv.Close()

	client := NewClient(srv.URL+"/api/v1", "")
	_, err := client.Execute(context.Background(), &ExecuteRequest{Request: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RATE_LIMITED")
	assert.Contains(t, err.Error(), "slow down")
}

func TestApproveSelectsDecision(t *testing.T) {
	var gotBody map[string]json.RawMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/approvals/appr_1/approve", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		fmt.Fprint(w, `{"success":true,"data":{"approval_id":"appr_1","decision":"MODIFIED"}}`)
	}))
	defer srv.Close()

	client := NewClient(srv.URL+"/api/v1", "")
	resp, err := client.Approve(context.Background(), "appr_1", json.RawMessage(`{"price":9900}`), "")
	require.NoError(t, err)
	// Modifications present means the decision is MODIFIED, not APPROVED.
	assert.JSONEq(t, `"MODIFIED"`, string(gotBody["decision"]))
	assert.JSONEq(t, `{"price":9900}`, string(gotBody["modifications"]))
	assert.Equal(t, "appr_1", resp.ApprovalID)
}

func TestUploadImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/images/upload", r.URL.Path)
		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		content, _ := io.ReadAll(file)
		assert.Equal(t, "product.jpg", header.Filename)
		assert.Equal(t, "fake image bytes", string(content))
		assert.Equal(t, "products", r.FormValue("folder"))

		fmt.Fprint(w, `{"success":true,"data":{"key":"products/abc_product.jpg","url":"http://localhost:9000/ai-commerce/products/abc_product.jpg","size":16}}`)
	}))
	defer srv.Close()

	client := NewClient(srv.URL+"/api/v1", "")
	data, err := client.UploadImage(context.Background(), "product.jpg", strings.NewReader("fake image bytes"), "products")
	require.NoError(t, err)
	assert.Equal(t, "products/abc_product.jpg", data.Key)
	assert.Contains(t, data.URL, "ai-commerce")
}
